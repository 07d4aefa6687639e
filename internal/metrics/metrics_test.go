package metrics

import (
	"net/http/httptest"
	"testing"

	dto "github.com/prometheus/client_model/go"
)

func TestRecorderObserveRequest(t *testing.T) {
	rec := NewRecorder(nil)
	rec.ObserveRequest("full", "success")

	families := gather(t, rec, "idxauth_fetch_requests_total")
	metric := findMetric(t, families["idxauth_fetch_requests_total"], map[string]string{
		"classification": "full",
		"outcome":        "success",
	})
	if got := metric.GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected counter value 1, got %v", got)
	}
}

func TestRecorderObserveCacheLookup(t *testing.T) {
	rec := NewRecorder(nil)
	rec.ObserveCacheLookup("url_map", true)
	rec.ObserveCacheLookup("realm_map", false)

	families := gather(t, rec, "idxauth_cache_lookups_total")

	hit := findMetric(t, families["idxauth_cache_lookups_total"], map[string]string{
		"map":    "url_map",
		"result": "hit",
	})
	if got := hit.GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected hit counter 1, got %v", got)
	}

	miss := findMetric(t, families["idxauth_cache_lookups_total"], map[string]string{
		"map":    "realm_map",
		"result": "miss",
	})
	if got := miss.GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected miss counter 1, got %v", got)
	}
}

func TestRecorderObserveFetch(t *testing.T) {
	rec := NewRecorder(nil)
	rec.ObserveFetch(true, true)
	rec.ObserveFetch(false, true)

	families := gather(t, rec, "idxauth_fetch_discoveries_total")

	elected := findMetric(t, families["idxauth_fetch_discoveries_total"], map[string]string{
		"elected": "true",
		"found":   "true",
	})
	if got := elected.GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected elected counter 1, got %v", got)
	}

	waited := findMetric(t, families["idxauth_fetch_discoveries_total"], map[string]string{
		"elected": "false",
		"found":   "true",
	})
	if got := waited.GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected waiter counter 1, got %v", got)
	}
}

func TestRecorderObserveProvider(t *testing.T) {
	rec := NewRecorder(nil)
	rec.ObserveProvider("netrc", true)

	families := gather(t, rec, "idxauth_provider_calls_total")
	metric := findMetric(t, families["idxauth_provider_calls_total"], map[string]string{
		"provider": "netrc",
		"found":    "true",
	})
	if got := metric.GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected counter value 1, got %v", got)
	}
}

func TestRecorderNilReceiverIsNoop(t *testing.T) {
	var rec *Recorder
	rec.ObserveRequest("full", "success")
	rec.ObserveCacheLookup("url_map", true)
	rec.ObserveFetch(true, true)
	rec.ObserveProvider("netrc", true)
	if rec.Gatherer() == nil {
		t.Fatalf("expected nil-receiver Gatherer to still return a usable value")
	}
}

func TestRecorderHandler(t *testing.T) {
	rec := NewRecorder(nil)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)

	rec.Handler().ServeHTTP(rr, req)

	if rr.Code != 200 {
		t.Fatalf("expected 200 response, got %d", rr.Code)
	}
	if rr.Body.Len() == 0 {
		t.Fatalf("expected response body")
	}
}

func gather(t *testing.T, rec *Recorder, names ...string) map[string][]*dto.Metric {
	t.Helper()
	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		wanted[name] = true
	}
	families, err := rec.Gatherer().Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	collected := make(map[string][]*dto.Metric, len(names))
	for _, mf := range families {
		if !wanted[mf.GetName()] {
			continue
		}
		collected[mf.GetName()] = append(collected[mf.GetName()], mf.GetMetric()...)
	}
	for _, name := range names {
		if len(collected[name]) == 0 {
			t.Fatalf("metric %q not collected", name)
		}
	}
	return collected
}

func findMetric(t *testing.T, metrics []*dto.Metric, labels map[string]string) *dto.Metric {
	t.Helper()
	for _, metric := range metrics {
		if matchLabels(metric, labels) {
			return metric
		}
	}
	t.Fatalf("metric with labels %v not found", labels)
	return nil
}

func matchLabels(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.GetLabel()) < len(labels) {
		return false
	}
	for key, expected := range labels {
		found := false
		for _, label := range metric.GetLabel() {
			if label.GetName() == key && label.GetValue() == expected {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
