package registry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivanvihe/jarvis-core/pkg/logging"
)

func newTestRegistry(t *testing.T, client HTTPDoer) *Registry {
	t.Helper()
	rec := logging.NewRecorder()
	log := logging.New("test", rec)
	bus := NewBus()
	r, err := New(t.TempDir(), log, bus, client)
	require.NoError(t, err)
	return r
}

type fakeRoundTripper struct {
	body       string
	statusCode int
}

func (f *fakeRoundTripper) Do(req *http.Request) (*http.Response, error) {
	return &http.Response{
		StatusCode: f.statusCode,
		Body:       io.NopCloser(strings.NewReader(f.body)),
		Header:     http.Header{"Content-Length": []string{fmt.Sprint(len(f.body))}},
	}, nil
}

func TestListModelsEmpty(t *testing.T) {
	r := newTestRegistry(t, nil)
	assert.Empty(t, r.ListModels())
}

func TestGetMetadataNotFound(t *testing.T) {
	r := newTestRegistry(t, nil)
	_, err := r.GetMetadata("missing")
	require.Error(t, err)
}

func TestStartDownloadRejectsDuplicateInFlight(t *testing.T) {
	slow := &blockingDoer{release: make(chan struct{})}
	r := newTestRegistry(t, slow)
	defer close(slow.release)

	err := r.StartDownload(context.Background(), "m1", "org/repo", "weights.bin", StartDownloadOptions{})
	require.NoError(t, err)

	err = r.StartDownload(context.Background(), "m1", "org/repo", "weights.bin", StartDownloadOptions{})
	require.Error(t, err)
}

func TestDownloadCompletesAndModelBecomesReady(t *testing.T) {
	r := newTestRegistry(t, &fakeRoundTripper{body: "hello world", statusCode: http.StatusOK})

	err := r.StartDownload(context.Background(), "m1", "org/repo", "weights.bin", StartDownloadOptions{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		m, err := r.GetMetadata("m1")
		return err == nil && m.State == Ready
	}, 2*time.Second, 10*time.Millisecond)

	p := r.GetProgress("m1")
	assert.Equal(t, Completed, p.Status)
}

func TestDownloadWritesToPerModelDirectory(t *testing.T) {
	r := newTestRegistry(t, &fakeRoundTripper{body: "hello world", statusCode: http.StatusOK})

	err := r.StartDownload(context.Background(), "alpha", "org/repo", "m.bin", StartDownloadOptions{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		m, err := r.GetMetadata("alpha")
		return err == nil && m.State == Ready
	}, 2*time.Second, 10*time.Millisecond)

	m, err := r.GetMetadata("alpha")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(r.baseDir, "alpha", "m.bin"), m.LocalPath)
}

func TestActivateModelEnforcesSingleActive(t *testing.T) {
	r := newTestRegistry(t, &fakeRoundTripper{body: "data", statusCode: http.StatusOK})
	require.NoError(t, r.StartDownload(context.Background(), "a", "org/a", "a.bin", StartDownloadOptions{}))
	require.NoError(t, r.StartDownload(context.Background(), "b", "org/b", "b.bin", StartDownloadOptions{}))

	require.Eventually(t, func() bool {
		ma, _ := r.GetMetadata("a")
		mb, _ := r.GetMetadata("b")
		return ma.State == Ready && mb.State == Ready
	}, 2*time.Second, 10*time.Millisecond)

	_, err := r.ActivateModel("a")
	require.NoError(t, err)
	_, err = r.ActivateModel("b")
	require.NoError(t, err)

	ma, _ := r.GetMetadata("a")
	mb, _ := r.GetMetadata("b")
	assert.Equal(t, Ready, ma.State)
	assert.Equal(t, Active, mb.State)
}

func TestRemoveModelNotFound(t *testing.T) {
	r := newTestRegistry(t, nil)
	err := r.RemoveModel("nope")
	require.Error(t, err)
}

type blockingDoer struct {
	release chan struct{}
}

func (b *blockingDoer) Do(req *http.Request) (*http.Response, error) {
	<-b.release
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader("x")),
		Header:     http.Header{"Content-Length": []string{"1"}},
	}, nil
}
