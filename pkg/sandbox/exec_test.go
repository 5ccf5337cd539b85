package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivanvihe/jarvis-core/pkg/apperrors"
)

func newTestExecutor(t *testing.T, allowed []string) (*Executor, string) {
	t.Helper()
	root := t.TempDir()
	s, err := New([]string{root})
	require.NoError(t, err)
	return NewExecutor(s, allowed), root
}

func TestOpenDirectoryListsChildren(t *testing.T) {
	e, root := newTestExecutor(t, nil)
	require.NoError(t, os.WriteFile(filepath.Join(root, "one.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))

	result, err := e.Open(root)
	require.NoError(t, err)
	assert.Equal(t, "directory", result.Type)
	assert.Len(t, result.Children, 2)
}

func TestReadReturnsUTF8Content(t *testing.T) {
	e, root := newTestExecutor(t, nil)
	path := filepath.Join(root, "hello.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	result, err := e.Read(path, "utf-8", 0, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, "utf-8", result.Encoding)
	assert.Equal(t, "hello world", result.Content)
	assert.Equal(t, int64(0), result.Offset)
	assert.Equal(t, int64(len("hello world")), result.Length)
}

func TestReadRespectsOffsetAndLength(t *testing.T) {
	e, root := newTestExecutor(t, nil)
	path := filepath.Join(root, "hello.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	length := int64(5)
	result, err := e.Read(path, "utf-8", 6, &length, 0)
	require.NoError(t, err)
	assert.Equal(t, "world", result.Content)
	assert.Equal(t, int64(6), result.Offset)
	assert.Equal(t, int64(5), result.Length)
}

func TestReadRejectsDirectory(t *testing.T) {
	e, root := newTestExecutor(t, nil)
	_, err := e.Read(root, "utf-8", 0, nil, 0)
	require.Error(t, err)
}

func TestRunRejectsDisallowedCommand(t *testing.T) {
	e, _ := newTestExecutor(t, []string{"echo"})
	_, err := e.Run(context.Background(), RunSpec{Command: []string{"rm", "-rf", "/"}, Argv: []string{"rm", "-rf", "/"}})
	require.Error(t, err)
}

func TestRunAllowedCommandSucceeds(t *testing.T) {
	e, root := newTestExecutor(t, []string{"echo"})
	result, err := e.Run(context.Background(), RunSpec{
		Command: []string{"echo", "hi"},
		Argv:    []string{"echo", "hi"},
		Cwd:     root,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.ReturnCode)
	assert.Contains(t, result.Stdout, "hi")
}

func TestRunTimesOut(t *testing.T) {
	e, root := newTestExecutor(t, nil)
	_, err := e.Run(context.Background(), RunSpec{
		Command: []string{"sleep", "5"},
		Argv:    []string{"sleep", "5"},
		Cwd:     root,
		Timeout: 50 * time.Millisecond,
	})
	require.Error(t, err)
	appErr := apperrors.As(err)
	assert.Equal(t, apperrors.Timeout, appErr.Kind)
}
