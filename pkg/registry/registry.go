package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/ivanvihe/jarvis-core/pkg/apperrors"
	"github.com/ivanvihe/jarvis-core/pkg/logging"
)

// catalogueFile is the persisted registry file, relative to BaseDir.
const catalogueFile = "models.json"

// maxConcurrentDownloads bounds how many downloads run at once across
// the whole catalogue, independent of the per-model in-flight check:
// many models can each have one download queued, but only this many
// actually pull bytes over the network at a time.
const maxConcurrentDownloads = 4

// download is the bookkeeping the registry keeps for an in-flight
// download so a second start_download on the same model_id can be
// rejected and a shutdown can cancel every worker.
type download struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Registry is the Model Registry: persisted per-model
// metadata, concurrent downloads with at-most-one-in-flight-per-model,
// and the single-active-model invariant. Two separate mutexes guard the
// catalogue and the progress table by design: progress is updated at
// high frequency from downloader goroutines and must never contend with
// metadata reads driving the HTTP surface.
type Registry struct {
	baseDir string
	log     *logging.Logger
	bus     *Bus
	client  HTTPDoer

	mu     sync.Mutex
	models map[string]ModelMetadata

	progressMu sync.Mutex
	progress   map[string]ProgressRecord

	downloadsMu sync.Mutex
	downloads   map[string]*download

	downloadSem *semaphore.Weighted
	wg          sync.WaitGroup
}

// New constructs a Registry rooted at baseDir, loading any persisted
// catalogue found there. baseDir is created if absent.
func New(baseDir string, log *logging.Logger, bus *Bus, client HTTPDoer) (*Registry, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create registry base dir: %w", err)
	}
	r := &Registry{
		baseDir:     baseDir,
		log:         log,
		bus:         bus,
		client:      client,
		models:      make(map[string]ModelMetadata),
		progress:    make(map[string]ProgressRecord),
		downloads:   make(map[string]*download),
		downloadSem: semaphore.NewWeighted(maxConcurrentDownloads),
	}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) catalogPath() string {
	return filepath.Join(r.baseDir, catalogueFile)
}

func (r *Registry) load() error {
	path := r.catalogPath()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read catalogue: %w", err)
	}
	var entries []ModelMetadata
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("parse catalogue: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range entries {
		if m.State == Downloading {
			// A download in flight at last shutdown cannot be resumed;
			// the partial file is orphaned and the entry reverts.
			m.State = NotInstalled
			m.LocalPath = ""
		}
		r.models[m.ModelID] = m
	}
	return nil
}

// persist writes the catalogue to disk via a temp file + rename so a
// crash mid-write never corrupts the previous good copy.
func (r *Registry) persist() error {
	entries := make([]ModelMetadata, 0, len(r.models))
	for _, m := range r.models {
		entries = append(entries, m)
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal catalogue: %w", err)
	}
	tmp, err := os.CreateTemp(r.baseDir, "models-*.json.tmp")
	if err != nil {
		return fmt.Errorf("create temp catalogue: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp catalogue: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp catalogue: %w", err)
	}
	if err := os.Rename(tmpName, r.catalogPath()); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename catalogue: %w", err)
	}
	return nil
}

// ListModels returns every catalogue entry, sorted by model_id for a
// stable response ordering.
func (r *Registry) ListModels() []ModelMetadata {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ModelMetadata, 0, len(r.models))
	for _, m := range r.models {
		out = append(out, m.clone())
	}
	sortMetadata(out)
	return out
}

// GetMetadata returns a single catalogue entry.
func (r *Registry) GetMetadata(modelID string) (ModelMetadata, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.models[modelID]
	if !ok {
		return ModelMetadata{}, apperrors.NewNotFound(fmt.Sprintf("model %q not found", modelID))
	}
	return m.clone(), nil
}

// GetProgress returns the current download progress for modelID, or a
// zero-value completed record if the model was never downloaded through
// this process.
func (r *Registry) GetProgress(modelID string) ProgressRecord {
	r.progressMu.Lock()
	defer r.progressMu.Unlock()
	p, ok := r.progress[modelID]
	if !ok {
		return ProgressRecord{Status: Completed}
	}
	return p.clone()
}

// ProgressSnapshot returns the current progress record for every model
// with a known progress entry, keyed by model_id, for the initial SSE
// snapshot event.
func (r *Registry) ProgressSnapshot() map[string]ProgressRecord {
	r.progressMu.Lock()
	defer r.progressMu.Unlock()
	out := make(map[string]ProgressRecord, len(r.progress))
	for id, p := range r.progress {
		out[id] = p.clone()
	}
	return out
}

// Subscribe registers a bus subscriber for progress/metadata events.
func (r *Registry) Subscribe() *Subscriber { return r.bus.Subscribe() }

// Unsubscribe releases a subscriber previously returned by Subscribe.
func (r *Registry) Unsubscribe(sub *Subscriber) { r.bus.Unsubscribe(sub) }

// StartDownload begins an asynchronous download of repoID/filename into
// the catalogue under modelID. It rejects a second concurrent download
// for the same model_id (invariant: at most one in-flight download
// per model) but allows different models to download in parallel.
func (r *Registry) StartDownload(ctx context.Context, modelID, repoID, filename string, opts StartDownloadOptions) error {
	r.downloadsMu.Lock()
	if _, inFlight := r.downloads[modelID]; inFlight {
		r.downloadsMu.Unlock()
		return apperrors.NewConflict(fmt.Sprintf("model %q already has a download in progress", modelID))
	}
	dctx, cancel := context.WithCancel(context.Background())
	dl := &download{cancel: cancel, done: make(chan struct{})}
	r.downloads[modelID] = dl
	r.downloadsMu.Unlock()

	modelDir := filepath.Join(r.baseDir, modelID)
	if err := os.MkdirAll(modelDir, 0o755); err != nil {
		r.downloadsMu.Lock()
		delete(r.downloads, modelID)
		r.downloadsMu.Unlock()
		return apperrors.Wrap(apperrors.Internal, fmt.Sprintf("create storage directory for %q", modelID), err)
	}

	r.mu.Lock()
	existing, hadExisting := r.models[modelID]
	meta := ModelMetadata{
		ModelID:   modelID,
		RepoID:    repoID,
		Filename:  filename,
		Checksum:  opts.Checksum,
		Tags:      opts.Tags,
		State:     Downloading,
		LocalPath: filepath.Join(modelDir, filename),
	}
	if hadExisting && meta.Tags == nil {
		meta.Tags = existing.Tags
	}
	r.models[modelID] = meta
	persistErr := r.persist()
	r.mu.Unlock()
	if persistErr != nil {
		r.log.Warningf("persist catalogue after start_download(%s): %v", modelID, persistErr)
	}

	r.setProgress(modelID, ProgressRecord{Status: Queued, Downloaded: 0})
	r.bus.publishMetadata(modelID, meta)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(dl.done)
		defer func() {
			r.downloadsMu.Lock()
			delete(r.downloads, modelID)
			r.downloadsMu.Unlock()
		}()
		r.runDownload(dctx, modelID, opts)
	}()

	_ = ctx
	return nil
}

// ActivateModel makes modelID the sole active model in the catalogue.
// Any other entry currently Active reverts to Ready first, preserving
// the single-active-model invariant even under concurrent activation
// requests since both the read and the writes happen under r.mu.
func (r *Registry) ActivateModel(modelID string) (ModelMetadata, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	target, ok := r.models[modelID]
	if !ok {
		return ModelMetadata{}, apperrors.NewNotFound(fmt.Sprintf("model %q not found", modelID))
	}
	if target.State != Ready && target.State != Active {
		return ModelMetadata{}, apperrors.NewConflict(fmt.Sprintf("model %q is not ready to activate (state=%s)", modelID, target.State))
	}

	for id, m := range r.models {
		if id != modelID && m.State == Active {
			m.State = Ready
			m.ActivePath = ""
			r.models[id] = m
			r.bus.publishMetadata(id, m)
		}
	}
	target.State = Active
	target.ActivePath = target.LocalPath
	r.models[modelID] = target

	if err := r.persist(); err != nil {
		r.log.Warningf("persist catalogue after activate(%s): %v", modelID, err)
	}
	r.bus.publishMetadata(modelID, target)
	return target.clone(), nil
}

// RemoveModel deletes modelID's local file and catalogue entry. An
// in-flight download is cancelled first and awaited so the file is not
// concurrently written while being removed.
func (r *Registry) RemoveModel(modelID string) error {
	r.downloadsMu.Lock()
	dl, inFlight := r.downloads[modelID]
	r.downloadsMu.Unlock()
	if inFlight {
		dl.cancel()
		<-dl.done
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.models[modelID]
	if !ok {
		return apperrors.NewNotFound(fmt.Sprintf("model %q not found", modelID))
	}
	if m.LocalPath != "" {
		if err := os.Remove(m.LocalPath); err != nil && !os.IsNotExist(err) {
			r.log.Warningf("remove model file for %q: %v", modelID, err)
		}
	}
	if err := os.RemoveAll(filepath.Join(r.baseDir, modelID)); err != nil {
		r.log.Warningf("remove storage directory for %q: %v", modelID, err)
	}
	delete(r.models, modelID)
	if err := r.persist(); err != nil {
		r.log.Warningf("persist catalogue after remove(%s): %v", modelID, err)
	}

	r.progressMu.Lock()
	delete(r.progress, modelID)
	r.progressMu.Unlock()

	r.bus.publishMetadata(modelID, ModelMetadata{ModelID: modelID, State: NotInstalled})
	return nil
}

// Shutdown cancels every in-flight download and waits for workers to
// exit, used during graceful server shutdown.
func (r *Registry) Shutdown() {
	r.downloadsMu.Lock()
	for _, dl := range r.downloads {
		dl.cancel()
	}
	r.downloadsMu.Unlock()
	r.wg.Wait()
}

func (r *Registry) setProgress(modelID string, p ProgressRecord) {
	p.recomputePercent()
	r.progressMu.Lock()
	r.progress[modelID] = p
	r.progressMu.Unlock()
	r.bus.publishProgress(modelID, p)
}

func sortMetadata(entries []ModelMetadata) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].ModelID < entries[j-1].ModelID; j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}
