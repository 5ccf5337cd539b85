package generation

import (
	"context"
	"strings"
)

// Backend is the loaded-model runtime interface. Two concrete kinds
// exist: a llama.cpp-style GGUF runner and a transformers
// process runner, selected by DetectBackendKind. Both are addressed
// through this common interface so the Manager never branches on kind
// past load time.
type Backend interface {
	// Complete runs a blocking completion over prompt and returns the
	// raw generated text (including any ```actions fences).
	Complete(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
	// CompleteStream runs a streaming completion, invoking onToken for
	// each chunk of generated text as it becomes available.
	CompleteStream(ctx context.Context, prompt string, opts GenerateOptions, onToken func(string)) error
	// Close releases any subprocess/model resources.
	Close() error
	// Pid returns the backend's worker process id, or 0 if it runs
	// in-process and has none to monitor.
	Pid() int
}

// DetectBackendKind infers the backend family from a model's filename
// and tags: a .gguf extension or a "gguf" tag selects the GGUF runner;
// everything else selects the transformers runner. Tags are checked in
// order, so a "transformers" tag listed before a "gguf" tag selects the
// transformers runner — matching load_from_metadata's extension/tag
// dispatch in llm.py.
func DetectBackendKind(filename string, tags []string) BackendKind {
	lower := strings.ToLower(filename)
	if strings.HasSuffix(lower, ".gguf") {
		return BackendGGUF
	}
	for _, t := range tags {
		if strings.EqualFold(t, "gguf") {
			return BackendGGUF
		}
		if strings.EqualFold(t, "transformers") {
			return BackendTransformers
		}
	}
	return BackendTransformers
}
