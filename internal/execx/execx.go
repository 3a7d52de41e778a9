// Package execx is the process execution primitive shared by the task
// sequencer, the setup pipeline and the validator. It runs commands to
// completion, captures output and reports exit codes instead of wrapping
// them in errors, so callers can apply their own failure policy.
package execx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// Result is the outcome of a completed process.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Options control where and with what environment a command runs.
type Options struct {
	// Dir is the working directory. Empty means the caller's cwd.
	Dir string

	// Env is overlaid on the parent environment. A PATH entry replaces the
	// inherited PATH outright; use PathPrepend to extend it instead.
	Env map[string]string

	// PathPrepend entries are joined ahead of the effective PATH.
	PathPrepend []string

	// Stdout and Stderr, when set, receive output as it is produced in
	// addition to the captured Result copies. Used by tasks that stream
	// build output to the terminal.
	Stdout io.Writer
	Stderr io.Writer
}

// Runner executes external commands. The production implementation is Local;
// tests substitute fakes.
type Runner interface {
	// Run executes name with args and waits for it to exit. A non-zero exit
	// is not an error: it is reported through Result.ExitCode. The returned
	// error is reserved for spawn failures (command not found, permission
	// denied) and context cancellation.
	Run(ctx context.Context, name string, args []string, opts Options) (Result, error)
}

// Local runs commands as child processes of this one.
type Local struct{}

func (Local) Run(ctx context.Context, name string, args []string, opts Options) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = opts.Dir
	cmd.Env = mergeEnv(opts)
	configureProcAttrs(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = teeWriter(&stdout, opts.Stdout)
	cmd.Stderr = teeWriter(&stderr, opts.Stderr)

	err := cmd.Run()
	res := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err == nil {
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		slog.Debug("command exited non-zero", "cmd", name, "code", res.ExitCode)
		return res, nil
	}

	return res, fmt.Errorf("run %s: %w", name, err)
}

// Shell runs a command line through the platform shell. Manifest post-install
// commands and user task strings come through here.
func Shell(ctx context.Context, r Runner, cmdline string, opts Options) (Result, error) {
	if runtime.GOOS == "windows" {
		return r.Run(ctx, "cmd", []string{"/C", cmdline}, opts)
	}
	return r.Run(ctx, "sh", []string{"-c", cmdline}, opts)
}

func teeWriter(capture *bytes.Buffer, stream io.Writer) io.Writer {
	if stream == nil {
		return capture
	}
	return io.MultiWriter(capture, stream)
}

// mergeEnv builds the child environment: parent env, overlaid variables,
// then PATH prepends applied to whichever PATH won.
func mergeEnv(opts Options) []string {
	if len(opts.Env) == 0 && len(opts.PathPrepend) == 0 {
		return nil // inherit as-is
	}

	merged := make(map[string]string)
	var order []string
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if _, seen := merged[k]; !seen {
			order = append(order, k)
		}
		merged[k] = v
	}
	for k, v := range opts.Env {
		if _, seen := merged[k]; !seen {
			order = append(order, k)
		}
		merged[k] = v
	}

	if len(opts.PathPrepend) > 0 {
		key := pathKey(merged)
		if _, seen := merged[key]; !seen {
			order = append(order, key)
		}
		parts := append([]string{}, opts.PathPrepend...)
		if path := merged[key]; path != "" {
			parts = append(parts, path)
		}
		merged[key] = strings.Join(parts, string(os.PathListSeparator))
	}

	out := make([]string, 0, len(order))
	for _, k := range order {
		out = append(out, k+"="+merged[k])
	}
	return out
}

// pathKey resolves the PATH variable name, which is case-insensitive on
// Windows ("Path" in practice).
func pathKey(env map[string]string) string {
	for k := range env {
		if strings.EqualFold(k, "PATH") {
			return k
		}
	}
	return "PATH"
}
