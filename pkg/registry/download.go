package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/ivanvihe/jarvis-core/pkg/apperrors"
)

// HTTPDoer is the subset of *http.Client the registry needs, so tests can
// substitute a fake transport without a real network call.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// chunkSize is the write granularity for streamed downloads.
const chunkSize = 1 << 20 // 1 MiB

// requestTimeout bounds a single download's HTTP round trip setup; the
// body read itself is governed by the caller's cancellable context.
const requestTimeout = 60 * time.Second

// runDownload performs the blocking download/finalize sequence for one
// model and reports terminal progress/metadata. It never panics on
// failure; every error path after the catalogue lookup records a
// ProgressRecord with Status=error (Status=cancelled for a cancelled
// download) and a stable ErrorCode, mirroring _download_and_finalize's
// failure-reporting sequence.
func (r *Registry) runDownload(ctx context.Context, modelID string, opts StartDownloadOptions) {
	if err := r.downloadSem.Acquire(ctx, 1); err != nil {
		r.failDownload(modelID, apperrors.New(apperrors.Cancelled, "download cancelled before it could start"))
		return
	}
	defer r.downloadSem.Release(1)

	meta, err := r.GetMetadata(modelID)
	if err != nil {
		return
	}

	finalPath := meta.LocalPath
	partPath := finalPath + ".part"

	total, sum, err := r.downloadToFile(ctx, meta.RepoID, meta.Filename, opts.HFToken, partPath, modelID)
	if err != nil {
		r.failDownload(modelID, err)
		os.Remove(partPath)
		return
	}

	if opts.Checksum != "" && !checksumMatches(sum, opts.Checksum) {
		r.failDownload(modelID, apperrors.New(apperrors.Validation, "checksum mismatch"))
		os.Remove(partPath)
		return
	}

	if err := os.Rename(partPath, finalPath); err != nil {
		r.failDownload(modelID, apperrors.Wrap(apperrors.Internal, "finalize downloaded file", err))
		os.Remove(partPath)
		return
	}

	r.mu.Lock()
	m := r.models[modelID]
	m.State = Ready
	m.LocalPath = finalPath
	r.models[modelID] = m
	persistErr := r.persist()
	r.mu.Unlock()
	if persistErr != nil {
		r.log.Warningf("persist catalogue after download(%s): %v", modelID, persistErr)
	}

	r.setProgress(modelID, ProgressRecord{
		Status:     Completed,
		Downloaded: total,
		Total:      int64Ptr(total),
	})
	r.bus.publishMetadata(modelID, m)
	r.log.Infof("download complete: model=%s bytes=%d", modelID, total)
}

// downloadToFile streams repoID/filename into dest, reporting progress
// as it goes, and returns the total bytes written and their sha256 sum.
func (r *Registry) downloadToFile(ctx context.Context, repoID, filename, token, dest, modelID string) (int64, string, error) {
	url := fmt.Sprintf("https://huggingface.co/%s/resolve/main/%s", repoID, filename)
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return 0, "", apperrors.Wrap(apperrors.Internal, "build download request", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := r.client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return 0, "", apperrors.New(apperrors.Cancelled, "download cancelled")
		}
		return 0, "", apperrors.Wrap(apperrors.UpstreamFailure, "download request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return 0, "", apperrors.New(apperrors.Authorization, "huggingface rejected credentials for this repo")
	}
	if resp.StatusCode == http.StatusNotFound {
		return 0, "", apperrors.New(apperrors.NotFound, "remote file not found")
	}
	if resp.StatusCode >= 400 {
		return 0, "", apperrors.New(apperrors.UpstreamFailure, fmt.Sprintf("huggingface returned status %d", resp.StatusCode))
	}

	var total *int64
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
			total = &n
		}
	}

	out, err := os.Create(dest)
	if err != nil {
		return 0, "", apperrors.Wrap(apperrors.Internal, "create destination file", err)
	}
	defer out.Close()

	hasher := sha256.New()
	writer := io.MultiWriter(out, hasher)

	buf := make([]byte, chunkSize)
	var written int64
	lastReport := time.Now()
	for {
		if err := ctx.Err(); err != nil {
			return 0, "", apperrors.New(apperrors.Cancelled, "download cancelled")
		}
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := writer.Write(buf[:n]); werr != nil {
				return 0, "", apperrors.Wrap(apperrors.Internal, "write downloaded chunk", werr)
			}
			written += int64(n)
			if time.Since(lastReport) > 200*time.Millisecond {
				r.setProgress(modelID, ProgressRecord{Status: DownloadingStatus, Downloaded: written, Total: total})
				lastReport = time.Now()
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return 0, "", apperrors.New(apperrors.Cancelled, "download cancelled")
			}
			return 0, "", apperrors.Wrap(apperrors.UpstreamFailure, "read download stream", readErr)
		}
	}

	r.setProgress(modelID, ProgressRecord{Status: DownloadingStatus, Downloaded: written, Total: total})
	return written, hex.EncodeToString(hasher.Sum(nil)), nil
}

func checksumMatches(computed, expected string) bool {
	return len(expected) > 0 && equalFoldHex(computed, expected)
}

func equalFoldHex(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if ca >= 'A' && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if cb >= 'A' && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// failDownload records a terminal error progress and reverts the
// catalogue entry to not_installed, matching _mark_download_failed.
func (r *Registry) failDownload(modelID string, err error) {
	appErr := apperrors.As(err)

	r.mu.Lock()
	m, ok := r.models[modelID]
	if ok {
		m.State = NotInstalled
		m.LocalPath = ""
		r.models[modelID] = m
	}
	persistErr := r.persist()
	r.mu.Unlock()
	if persistErr != nil {
		r.log.Warningf("persist catalogue after failDownload(%s): %v", modelID, persistErr)
	}

	status := Errored
	if appErr.Kind == apperrors.Cancelled {
		status = Cancelled
	}
	msg := appErr.Message
	code := appErr.ErrorCode()
	r.setProgress(modelID, ProgressRecord{
		Status:    status,
		Error:     &msg,
		ErrorCode: &code,
	})
	if ok {
		r.bus.publishMetadata(modelID, m)
	}
	r.log.Warningf("download failed: model=%s err=%s", modelID, appErr.Message)
}
