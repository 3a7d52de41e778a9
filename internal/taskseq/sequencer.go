// Package taskseq serializes execution of external-process tasks. At most
// one task runs at any instant; the rest wait in a FIFO queue. A failing
// task poisons everything queued behind it, because queued work almost
// always depends on its predecessors (west update after west init, pip
// install after the venv exists).
package taskseq

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"westkit/internal/execx"
)

// Task is one external-process invocation. Immutable once pushed.
type Task struct {
	Name     string // display name, e.g. "west update"
	Category string // grouping label for logs, e.g. "build"

	Command string
	Args    []string
	Dir     string

	Env         map[string]string
	PathPrepend []string
}

// Policy controls how a task's completion is handled.
type Policy struct {
	// IgnoreError suppresses failure handling for a non-zero exit; the
	// queue continues as if the task succeeded.
	IgnoreError bool

	// Final marks the last task of a user-facing flow; its SuccessMessage
	// is surfaced on success.
	Final          bool
	SuccessMessage string
	ErrorMessage   string

	// OnComplete runs exactly once after a successful (or ignored-error)
	// completion, before the next task is dequeued. It may push further
	// tasks; they are appended to the tail of the current queue. The
	// context is the completed task's context and is cancelled if the
	// sequencer is cancelled.
	OnComplete func(context.Context)
}

// Notifier is the user-facing message side channel. Push never returns
// errors; failures long after the caller's stack frame has gone are
// reported here instead.
type Notifier interface {
	Info(msg string)
	Error(msg string)
}

type entry struct {
	task   Task
	policy Policy
}

// Sequencer runs tasks one at a time in push order. Construct with New and
// inject it; there is no package-level instance.
type Sequencer struct {
	runner execx.Runner
	notify Notifier

	// Stdout/Stderr receive streamed task output (the terminal, an output
	// buffer in tests). Nil discards the stream; output is still captured
	// for error reporting.
	Stdout io.Writer
	Stderr io.Writer

	mu      sync.Mutex
	queue   []entry
	running bool
	cancel  context.CancelFunc
	gen     int // bumped by Cancel; orphans stale completion handlers
	lastErr error
	idle    chan struct{} // closed while idle
}

// New creates an idle sequencer.
func New(runner execx.Runner, notify Notifier) *Sequencer {
	idle := make(chan struct{})
	close(idle)
	return &Sequencer{runner: runner, notify: notify, idle: idle}
}

// Push enqueues a task. If the sequencer is idle the task starts
// immediately; either way Push returns without waiting.
func (s *Sequencer) Push(task Task, policy Policy) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.queue = append(s.queue, entry{task, policy})
		slog.Debug("task queued", "task", task.Name, "depth", len(s.queue))
		return
	}

	s.lastErr = nil
	s.idle = make(chan struct{})
	s.startLocked(task, policy)
}

// Cancel kills the in-flight task (and its process group), discards the
// pending queue and returns the sequencer to idle. Dropped tasks get no
// completion callbacks.
func (s *Sequencer) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.queue = nil
	if s.running {
		s.running = false
		close(s.idle)
	}
}

// Wait blocks until the sequencer drains to idle and returns the error that
// poisoned the queue, if any. It exists for CLI flows and tests; Push
// remains fire-and-forget.
func (s *Sequencer) Wait(ctx context.Context) error {
	s.mu.Lock()
	ch := s.idle
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Sequencer) startLocked(task Task, policy Policy) {
	ctx, cancel := context.WithCancel(context.Background())
	s.running = true
	s.cancel = cancel
	gen := s.gen

	slog.Debug("task starting", "task", task.Name, "category", task.Category)
	go s.run(ctx, gen, task, policy)
}

func (s *Sequencer) run(ctx context.Context, gen int, task Task, policy Policy) {
	res, err := s.runner.Run(ctx, task.Command, task.Args, execx.Options{
		Dir:         task.Dir,
		Env:         task.Env,
		PathPrepend: task.PathPrepend,
		Stdout:      s.Stdout,
		Stderr:      s.Stderr,
	})

	s.mu.Lock()
	if gen != s.gen {
		// Cancelled while running; state is already reset.
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	failed := err != nil || res.ExitCode != 0
	if failed && !policy.IgnoreError {
		s.notify.Error(failureMessage(task, policy, res, err))
		s.abort(gen, fmt.Errorf("task %q failed: %w", task.Name, taskError(task, res, err)))
		return
	}

	if failed {
		slog.Debug("task failure ignored", "task", task.Name, "code", res.ExitCode, "err", err)
	}
	if policy.Final && policy.SuccessMessage != "" {
		s.notify.Info(policy.SuccessMessage)
	}
	// The running slot stays occupied while the callback executes, so any
	// Push it performs lands at the tail of the then-current queue. The
	// dequeue below runs only afterwards, so callback-enqueued tasks are
	// never lost.
	if policy.OnComplete != nil {
		policy.OnComplete(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return
	}
	if len(s.queue) > 0 {
		next := s.queue[0]
		s.queue = s.queue[1:]
		s.startLocked(next.task, next.policy)
		return
	}
	s.running = false
	s.cancel = nil
	close(s.idle)
}

// abort drops the pending queue after an unignored failure, mirroring
// Cancel but preserving the error for Wait.
func (s *Sequencer) abort(gen int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return
	}
	dropped := len(s.queue)
	s.queue = nil
	s.running = false
	s.cancel = nil
	s.lastErr = err
	close(s.idle)
	if dropped > 0 {
		slog.Debug("pending tasks dropped after failure", "count", dropped)
	}
}

func failureMessage(task Task, policy Policy, res execx.Result, err error) string {
	if policy.ErrorMessage != "" {
		return policy.ErrorMessage
	}
	return taskError(task, res, err).Error()
}

func taskError(task Task, res execx.Result, err error) error {
	if err != nil {
		return fmt.Errorf("task %q failed to start: %w", task.Name, err)
	}
	return fmt.Errorf("task %q exited with code %d", task.Name, res.ExitCode)
}
