package generation

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/ivanvihe/jarvis-core/pkg/apperrors"
)

// subprocessBackend runs a single long-lived worker process that reads
// one JSON-free prompt per line from stdin and writes generated tokens
// to stdout, terminating each response with a "\x00END" line. Both of this
// service's backend runtimes (a llama.cpp-style CLI for GGUF, a
// transformers driver script for everything else) are external
// processes addressed the same way; only the launch command differs.
type subprocessBackend struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader

	mu sync.Mutex
}

// newSubprocessBackend launches command with args and model/runtime
// flags already baked in by the caller (LaunchCommand.resolve), and leaves
// the process running until Close.
func newSubprocessBackend(ctx context.Context, command string, args []string) (*subprocessBackend, error) {
	cmd := exec.CommandContext(ctx, command, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Internal, "open backend stdin", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Internal, "open backend stdout", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, apperrors.Wrap(apperrors.Internal, fmt.Sprintf("start backend process %q", command), err)
	}
	return &subprocessBackend{cmd: cmd, stdin: stdin, stdout: bufio.NewReader(stdout)}, nil
}

func (b *subprocessBackend) Pid() int {
	if b.cmd.Process == nil {
		return 0
	}
	return b.cmd.Process.Pid
}

func (b *subprocessBackend) Complete(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	var out string
	err := b.CompleteStream(ctx, prompt, opts, func(tok string) { out += tok })
	return out, err
}

func (b *subprocessBackend) CompleteStream(ctx context.Context, prompt string, opts GenerateOptions, onToken func(string)) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := fmt.Fprintf(b.stdin, "%s\n", encodeRequestLine(prompt, opts)); err != nil {
		return apperrors.Wrap(apperrors.UpstreamFailure, "write prompt to backend", err)
	}

	for {
		select {
		case <-ctx.Done():
			return apperrors.New(apperrors.Cancelled, "generation cancelled")
		default:
		}
		line, err := b.stdout.ReadString('\n')
		if line == "\x00END\n" || line == "\x00END" {
			return nil
		}
		if line != "" {
			onToken(line)
		}
		if err == io.EOF {
			return apperrors.New(apperrors.UpstreamFailure, "backend process ended unexpectedly")
		}
		if err != nil {
			return apperrors.Wrap(apperrors.UpstreamFailure, "read backend output", err)
		}
	}
}

func (b *subprocessBackend) Close() error {
	_ = b.stdin.Close()
	if b.cmd.Process != nil {
		_ = b.cmd.Process.Kill()
	}
	return b.cmd.Wait()
}

// encodeRequestLine serialises a single request as the line-oriented
// protocol the worker processes speak: sampling parameters inline,
// prompt newlines escaped so the whole request stays one line.
func encodeRequestLine(prompt string, opts GenerateOptions) string {
	escaped := escapeNewlines(prompt)
	return fmt.Sprintf("temperature=%.3f top_p=%.3f max_tokens=%d prompt=%s",
		opts.Temperature, opts.TopP, opts.MaxTokens, escaped)
}

func escapeNewlines(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, '\\', 'n')
			continue
		}
		out = append(out, s[i])
	}
	return string(out)
}
