package sandbox

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveWithinRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("hi"), 0o644))

	s, err := New([]string{root})
	require.NoError(t, err)

	resolved, err := s.Resolve(filepath.Join(root, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "a.txt"), resolved)
}

func TestResolveOutsideRootRejected(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "b.txt"), []byte("hi"), 0o644))

	s, err := New([]string{root})
	require.NoError(t, err)

	_, err = s.Resolve(filepath.Join(outside, "b.txt"))
	require.Error(t, err)
}

func TestResolveRelativeFallsBackToNextRootOnEscape(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("hi"), 0o644))
	require.NoError(t, os.Symlink(filepath.Join(outside, "secret.txt"), filepath.Join(first, "shared.txt")))
	require.NoError(t, os.WriteFile(filepath.Join(second, "shared.txt"), []byte("hi"), 0o644))

	s, err := New([]string{first, second})
	require.NoError(t, err)

	resolved, err := s.Resolve("shared.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(second, "shared.txt"), resolved)
}

func TestDefaultRootIsFirstConfiguredRoot(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()

	s, err := New([]string{first, second})
	require.NoError(t, err)
	assert.Equal(t, first, s.DefaultRoot())
}

func TestResolveSymlinkEscapeRejected(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("hi"), 0o644))

	link := filepath.Join(root, "escape")
	require.NoError(t, os.Symlink(filepath.Join(outside, "secret.txt"), link))

	s, err := New([]string{root})
	require.NoError(t, err)

	_, err = s.Resolve(link)
	require.Error(t, err)
}
