package pathutil

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
)

// Expand resolves env vars and a leading "~" so values arriving from
// config files and flags (adapter log locations, the memory home)
// become concrete paths. Registry keys additionally go through
// Canonical; Expand alone does not touch the filesystem.
func Expand(path string) (string, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return "", nil
	}
	p = os.ExpandEnv(p)
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return filepath.Clean(p), nil
	}

	home, err := homeDir()
	if err != nil {
		return "", fmt.Errorf("expand %q: %w", path, err)
	}
	return filepath.Clean(filepath.Join(home, strings.TrimPrefix(p, "~"))), nil
}

// homeDir walks the usual sources for the home directory, rejecting
// values that are themselves unresolved "~" placeholders.
func homeDir() (string, error) {
	for _, lookup := range []func() (string, error){
		os.UserHomeDir,
		func() (string, error) {
			current, err := user.Current()
			if err != nil {
				return "", err
			}
			return current.HomeDir, nil
		},
		func() (string, error) { return os.Getenv("HOME"), nil },
	} {
		home, err := lookup()
		if err != nil {
			continue
		}
		home = strings.TrimSpace(home)
		if home != "" && home != "~" && !strings.HasPrefix(home, "~/") {
			return home, nil
		}
	}
	return "", fmt.Errorf("home directory could not be resolved")
}
