package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/l0p7/idxauth-fetch/auth"
)

// indexDocument is the shape a single index source file decodes into: a flat
// list of index definitions, in any of the three supported formats.
type indexDocument struct {
	Indexes []auth.IndexSpec `koanf:"indexes"`
}

// IndexBundle is the aggregated, deduplicated result of loading every
// configured index source.
type IndexBundle struct {
	Indexes []auth.IndexSpec
	Sources []string
	Skipped []DefinitionSkip
}

var indexFileExtensions = []string{".yaml", ".yml", ".json", ".toml"}

// loadIndexes aggregates index definitions from cfg's configured source
// (a single file or a folder of files), skipping and recording duplicate
// index URLs rather than failing the whole load — a misconfigured index
// documented elsewhere should not take every other index down with it.
func loadIndexes(ctx context.Context, cfg IndexesConfig) (IndexBundle, error) {
	var paths []string
	switch {
	case cfg.IndexesFile != "":
		paths = []string{cfg.IndexesFile}
	case cfg.IndexesFolder != "":
		found, err := collectIndexFiles(cfg.IndexesFolder)
		if err != nil {
			return IndexBundle{}, err
		}
		paths = found
	default:
		return IndexBundle{}, nil
	}

	bundle := IndexBundle{}
	seen := make(map[string]string) // normalized URL -> source file

	for _, path := range paths {
		select {
		case <-ctx.Done():
			return IndexBundle{}, ctx.Err()
		default:
		}

		var doc indexDocument
		k := koanf.New(".")
		if err := k.Load(file.Provider(path), parserFor(path)); err != nil {
			return IndexBundle{}, fmt.Errorf("config: load index source %s: %w", path, err)
		}
		if err := k.Unmarshal("", &doc); err != nil {
			return IndexBundle{}, fmt.Errorf("config: decode index source %s: %w", path, err)
		}

		contributed := false
		for _, spec := range doc.Indexes {
			key := strings.ToLower(strings.TrimSpace(spec.URL))
			if existing, dup := seen[key]; dup {
				bundle.Skipped = append(bundle.Skipped, DefinitionSkip{
					Kind:    "index",
					Name:    spec.URL,
					Reason:  fmt.Sprintf("duplicate index url, already defined in %s", existing),
					Sources: []string{existing, path},
				})
				continue
			}
			seen[key] = path
			bundle.Indexes = append(bundle.Indexes, spec)
			contributed = true
		}
		if contributed {
			bundle.Sources = append(bundle.Sources, path)
		}
	}
	return bundle, nil
}

// collectIndexFiles lists supported-extension files directly under folder,
// sorted for deterministic aggregation order.
func collectIndexFiles(folder string) ([]string, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, fmt.Errorf("config: read indexes folder %s: %w", folder, err)
	}
	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		for _, supported := range indexFileExtensions {
			if ext == supported {
				paths = append(paths, filepath.Join(folder, entry.Name()))
				break
			}
		}
	}
	sort.Strings(paths)
	return paths, nil
}
