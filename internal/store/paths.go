package store

import (
	"path/filepath"

	"github.com/harunnryd/kioku/internal/config"
)

// MemoryDirName is the per-project memory directory, kept inside the
// project tree so memory travels with the checkout.
const MemoryDirName = ".kioku"

// MemoryDir returns the base path of a project's memory directory.
func MemoryDir(projectPath string) string {
	return filepath.Join(projectPath, MemoryDirName)
}

// StatePath returns the path of the project's state file.
func StatePath(projectPath string) string {
	return filepath.Join(MemoryDir(projectPath), "state.json")
}

// JournalDir returns the directory holding journal segments.
func JournalDir(projectPath string) string {
	return filepath.Join(MemoryDir(projectPath), "journal")
}

// JournalPath returns the active journal segment.
func JournalPath(projectPath string) string {
	return filepath.Join(JournalDir(projectPath), "events.jsonl")
}

// VectorsDir returns the chromem collection directory.
func VectorsDir(projectPath string) string {
	return filepath.Join(MemoryDir(projectPath), "vectors")
}

// LockPath returns the project store lock file.
func LockPath(projectPath string) string {
	return filepath.Join(MemoryDir(projectPath), "project.lock")
}

// RegistryPath returns the global registry state file.
func RegistryPath() (string, error) {
	home, err := config.HomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "registry.json"), nil
}

// RegistryLockPath returns the global registry lock file.
func RegistryLockPath() (string, error) {
	home, err := config.HomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "registry.lock"), nil
}
