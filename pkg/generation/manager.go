package generation

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/ivanvihe/jarvis-core/pkg/apperrors"
	"github.com/ivanvihe/jarvis-core/pkg/logging"
	"github.com/ivanvihe/jarvis-core/pkg/registry"
)

// monitorInterval is the cadence of the background liveness check on
// the backend process.
const monitorInterval = 5 * time.Second

// LaunchCommand resolves the executable and arguments used to start a
// backend worker for a given kind and model path, supplied by config
// rather than hardcoded so operators can point at their own llama.cpp
// or transformers driver build.
type LaunchCommand struct {
	GGUFCommand         string
	GGUFArgs            []string
	TransformersCommand string
	TransformersArgs    []string
}

func (lc LaunchCommand) resolve(kind BackendKind, modelPath string) (string, []string) {
	switch kind {
	case BackendGGUF:
		return lc.GGUFCommand, append(append([]string{}, lc.GGUFArgs...), modelPath)
	default:
		return lc.TransformersCommand, append(append([]string{}, lc.TransformersArgs...), modelPath)
	}
}

// Manager owns the single loaded backend (at most one runtime loaded
// at a time) and serialises generation against it. Two
// mutexes separate lifecycle transitions (load/unload) from a single
// generation in flight, so a status poll is never blocked behind a
// long-running generate call.
type Manager struct {
	log     *logging.Logger
	launch  LaunchCommand
	monitor chan struct{}

	lifecycleMu sync.Mutex
	backend     Backend
	modelID     string
	kind        BackendKind
	loadedAt    time.Time

	generateMu sync.Mutex
}

func NewManager(log *logging.Logger, launch LaunchCommand) *Manager {
	return &Manager{log: log, launch: launch}
}

// LoadFromMetadata loads meta's local file as the active backend,
// unloading any previously loaded backend first (single-runtime
// invariant: the registry must flip state only after this succeeds,
// so callers must not mark a model Active until this returns nil).
func (m *Manager) LoadFromMetadata(ctx context.Context, meta registry.ModelMetadata) error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	if m.backend != nil {
		if err := m.backend.Close(); err != nil {
			m.log.Warningf("close previous backend during reload: %v", err)
		}
		m.stopMonitor()
		m.backend = nil
	}

	kind := DetectBackendKind(meta.Filename, meta.Tags)
	command, args := m.launch.resolve(kind, meta.LocalPath)
	if command == "" {
		return apperrors.New(apperrors.Internal, "no launch command configured for backend kind "+string(kind))
	}

	backend, err := newSubprocessBackend(context.Background(), command, args)
	if err != nil {
		return apperrors.Wrap(apperrors.Internal, "load model backend", err)
	}

	m.backend = backend
	m.modelID = meta.ModelID
	m.kind = kind
	m.loadedAt = time.Now()
	m.startMonitor(backend.Pid())
	m.log.Infof("loaded model=%s backend=%s pid=%d", meta.ModelID, kind, backend.Pid())
	return nil
}

// Unload releases the active backend, if any.
func (m *Manager) Unload() error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()
	if m.backend == nil {
		return nil
	}
	err := m.backend.Close()
	m.stopMonitor()
	m.backend = nil
	m.modelID = ""
	if err != nil {
		return apperrors.Wrap(apperrors.Internal, "unload model backend", err)
	}
	return nil
}

// Generate runs a blocking completion against the loaded backend,
// returning the cleaned message and any parsed action directives.
// Generation is serialised: only one call runs at a time, since the
// backend worker process can only handle one request at a time.
func (m *Manager) Generate(ctx context.Context, prompt, systemPrompt string, history []ChatMessage, opts GenerateOptions) (GenerationResult, error) {
	backend, err := m.activeBackend()
	if err != nil {
		return GenerationResult{}, err
	}

	m.generateMu.Lock()
	defer m.generateMu.Unlock()

	built := BuildPrompt(systemPrompt, history, prompt)
	raw, err := backend.Complete(ctx, built, opts)
	if err != nil {
		return GenerationResult{}, err
	}
	message, actions := ExtractActions(raw)
	return GenerationResult{Message: message, Actions: actions}, nil
}

// GenerateStream runs a streaming completion, invoking onDelta for each
// raw chunk exactly as the backend emits it, ```actions fences included.
// The chunks are also buffered, and action directives are parsed from
// the buffer and reported only once the stream completes, since a
// ```actions block cannot be parsed until it is fully received.
func (m *Manager) GenerateStream(ctx context.Context, prompt, systemPrompt string, history []ChatMessage, opts GenerateOptions, onDelta func(string)) ([]Action, error) {
	backend, err := m.activeBackend()
	if err != nil {
		return nil, err
	}

	m.generateMu.Lock()
	defer m.generateMu.Unlock()

	built := BuildPrompt(systemPrompt, history, prompt)
	var raw string
	err = backend.CompleteStream(ctx, built, opts, func(tok string) {
		raw += tok
		onDelta(tok)
	})
	if err != nil {
		return nil, err
	}
	_, actions := ExtractActions(raw)
	return actions, nil
}

func (m *Manager) activeBackend() (Backend, error) {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()
	if m.backend == nil {
		return nil, apperrors.NewNotLoaded("model is not loaded")
	}
	return m.backend, nil
}

// Status reports the loaded backend's identity and, if it has a
// monitorable process, resource usage sampled via gopsutil.
func (m *Manager) Status() RuntimeStatus {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()
	if m.backend == nil {
		return RuntimeStatus{Loaded: false}
	}
	status := RuntimeStatus{
		Loaded:     true,
		ModelID:    m.modelID,
		Backend:    string(m.kind),
		PID:        m.backend.Pid(),
		UptimeSecs: time.Since(m.loadedAt).Seconds(),
	}
	if proc, err := process.NewProcess(int32(status.PID)); err == nil {
		if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
			status.MemoryRSS = int64(mem.RSS)
		}
		if cpu, err := proc.CPUPercent(); err == nil {
			status.CPUPercent = cpu
		}
	}
	return status
}

// startMonitor launches a background watchdog that checks every
// monitorInterval whether the backend process is still running and logs
// a warning once it is not, so an operator can see an unexpectedly dying
// worker in the logs. It does not sample or record resource usage;
// Status reads memory and CPU from the process only when it is called.
func (m *Manager) startMonitor(pid int) {
	stop := make(chan struct{})
	m.monitor = stop
	go func() {
		ticker := time.NewTicker(monitorInterval)
		defer ticker.Stop()
		proc, err := process.NewProcess(int32(pid))
		if err != nil {
			return
		}
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				running, err := proc.IsRunning()
				if err != nil || !running {
					m.log.Warningf("backend process pid=%d is no longer running", pid)
					return
				}
			}
		}
	}()
}

func (m *Manager) stopMonitor() {
	if m.monitor != nil {
		close(m.monitor)
		m.monitor = nil
	}
}
