package providers

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
)

// defaultNetrcPath resolves the conventional netrc location: the NETRC
// environment variable if set, otherwise ~/.netrc (~/_netrc on Windows).
func defaultNetrcPath() (string, error) {
	if path := os.Getenv("NETRC"); path != "" {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("providers: unable to resolve home directory for netrc")
	}
	name := ".netrc"
	if runtime.GOOS == "windows" {
		name = "_netrc"
	}
	return filepath.Join(home, name), nil
}
