package pathutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandHomeShortcut(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := Expand("~/projects/demo")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "projects", "demo"), got)
}

func TestExpandEmpty(t *testing.T) {
	got, err := Expand("   ")
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestCanonicalResolvesSymlink(t *testing.T) {
	tmp := t.TempDir()
	real := filepath.Join(tmp, "real")
	require.NoError(t, os.Mkdir(real, 0755))
	link := filepath.Join(tmp, "link")
	require.NoError(t, os.Symlink(real, link))

	fromLink, err := Canonical(link)
	require.NoError(t, err)
	fromReal, err := Canonical(real)
	require.NoError(t, err)
	assert.Equal(t, fromReal, fromLink)
}

func TestCanonicalRelative(t *testing.T) {
	tmp := t.TempDir()
	t.Chdir(tmp)

	got, err := Canonical(".")
	require.NoError(t, err)
	want, err := Canonical(tmp)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestCanonicalMissingPath(t *testing.T) {
	tmp := t.TempDir()
	missing := filepath.Join(tmp, "not", "yet", "created")

	got, err := Canonical(missing)
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got))
	assert.Contains(t, got, filepath.Join("not", "yet", "created"))
}
