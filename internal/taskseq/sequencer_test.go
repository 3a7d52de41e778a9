package taskseq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"westkit/internal/execx"
)

// fakeRunner records execution order and returns scripted results keyed by
// command name. It also watches for overlapping executions.
type fakeRunner struct {
	mu      sync.Mutex
	calls   []string
	active  int
	overlap bool

	exitCodes map[string]int
	spawnErrs map[string]error
	delay     time.Duration
}

func (r *fakeRunner) Run(ctx context.Context, name string, args []string, opts execx.Options) (execx.Result, error) {
	r.mu.Lock()
	r.active++
	if r.active > 1 {
		r.overlap = true
	}
	r.calls = append(r.calls, name)
	delay := r.delay
	r.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(delay):
		}
	}

	r.mu.Lock()
	r.active--
	r.mu.Unlock()

	if err := r.spawnErrs[name]; err != nil {
		return execx.Result{}, err
	}
	if ctx.Err() != nil {
		return execx.Result{ExitCode: -1}, ctx.Err()
	}
	return execx.Result{ExitCode: r.exitCodes[name]}, nil
}

func (r *fakeRunner) callNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// fakeNotifier collects surfaced messages.
type fakeNotifier struct {
	mu     sync.Mutex
	infos  []string
	errors []string
}

func (n *fakeNotifier) Info(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.infos = append(n.infos, msg)
}

func (n *fakeNotifier) Error(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, msg)
}

func waitIdle(t *testing.T, s *Sequencer) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Wait(ctx)
}

func TestTasksRunInPushOrderWithoutOverlap(t *testing.T) {
	runner := &fakeRunner{delay: 10 * time.Millisecond}
	s := New(runner, &fakeNotifier{})

	for i := 0; i < 5; i++ {
		s.Push(Task{Name: fmt.Sprintf("t%d", i), Command: fmt.Sprintf("cmd%d", i)}, Policy{})
	}
	if err := waitIdle(t, s); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	calls := runner.callNames()
	want := []string{"cmd0", "cmd1", "cmd2", "cmd3", "cmd4"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("call %d = %q, want %q", i, calls[i], want[i])
		}
	}
	if runner.overlap {
		t.Fatal("two tasks ran concurrently")
	}
}

func TestFailurePoisonsQueue(t *testing.T) {
	runner := &fakeRunner{exitCodes: map[string]int{"bad": 2}}
	notify := &fakeNotifier{}
	s := New(runner, notify)

	s.Push(Task{Name: "t1", Command: "bad"}, Policy{})
	s.Push(Task{Name: "t2", Command: "good"}, Policy{})

	err := waitIdle(t, s)
	if err == nil {
		t.Fatal("Wait() = nil, want poison error")
	}

	calls := runner.callNames()
	if len(calls) != 1 || calls[0] != "bad" {
		t.Fatalf("calls = %v, want only the failing task", calls)
	}
	if len(notify.errors) != 1 {
		t.Fatalf("error notifications = %v, want exactly one", notify.errors)
	}
}

func TestIgnoredFailureContinuesQueue(t *testing.T) {
	runner := &fakeRunner{exitCodes: map[string]int{"bad": 2}}
	notify := &fakeNotifier{}
	s := New(runner, notify)

	s.Push(Task{Name: "t1", Command: "bad"}, Policy{IgnoreError: true})
	s.Push(Task{Name: "t2", Command: "good"}, Policy{})

	if err := waitIdle(t, s); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	calls := runner.callNames()
	if len(calls) != 2 {
		t.Fatalf("calls = %v, want both tasks", calls)
	}
	if len(notify.errors) != 0 {
		t.Fatalf("error notifications = %v, want none", notify.errors)
	}
}

func TestSpawnFailureTreatedAsTaskFailure(t *testing.T) {
	runner := &fakeRunner{spawnErrs: map[string]error{"missing": errors.New("executable not found")}}
	notify := &fakeNotifier{}
	s := New(runner, notify)

	s.Push(Task{Name: "t1", Command: "missing"}, Policy{})
	s.Push(Task{Name: "t2", Command: "good"}, Policy{})

	if err := waitIdle(t, s); err == nil {
		t.Fatal("Wait() = nil, want error")
	}
	if got := runner.callNames(); len(got) != 1 {
		t.Fatalf("calls = %v, want only the unspawnable task", got)
	}
}

func TestCancelClearsRunningAndQueue(t *testing.T) {
	runner := &fakeRunner{delay: time.Hour}
	s := New(runner, &fakeNotifier{})

	s.Push(Task{Name: "long", Command: "sleepy"}, Policy{})
	s.Push(Task{Name: "queued", Command: "queued"}, Policy{})

	// Give the first task a moment to start, then cancel everything.
	time.Sleep(20 * time.Millisecond)
	s.Cancel()

	if err := waitIdle(t, s); err != nil {
		t.Fatalf("Wait() after Cancel error = %v", err)
	}

	// A new push starts immediately on the now-idle sequencer.
	runner.mu.Lock()
	runner.delay = 0
	runner.mu.Unlock()
	s.Push(Task{Name: "after", Command: "after"}, Policy{})
	if err := waitIdle(t, s); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	calls := runner.callNames()
	for _, c := range calls {
		if c == "queued" {
			t.Fatal("queued task ran despite Cancel")
		}
	}
	if calls[len(calls)-1] != "after" {
		t.Fatalf("calls = %v, want trailing %q", calls, "after")
	}
}

func TestFinalSuccessMessageSurfacesOnce(t *testing.T) {
	runner := &fakeRunner{}
	notify := &fakeNotifier{}
	s := New(runner, notify)

	var completions int
	var mu sync.Mutex
	s.Push(Task{Name: "a", Command: "a"}, Policy{
		Final:          true,
		SuccessMessage: "done",
		OnComplete: func(context.Context) {
			mu.Lock()
			completions++
			mu.Unlock()
		},
	})
	if err := waitIdle(t, s); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	if len(notify.infos) != 1 || notify.infos[0] != "done" {
		t.Fatalf("infos = %v, want exactly [done]", notify.infos)
	}
	mu.Lock()
	defer mu.Unlock()
	if completions != 1 {
		t.Fatalf("OnComplete ran %d times, want 1", completions)
	}
}

func TestNonFinalSuccessMessageStaysQuiet(t *testing.T) {
	runner := &fakeRunner{}
	notify := &fakeNotifier{}
	s := New(runner, notify)

	s.Push(Task{Name: "a", Command: "a"}, Policy{SuccessMessage: "quiet"})
	if err := waitIdle(t, s); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if len(notify.infos) != 0 {
		t.Fatalf("infos = %v, want none for non-final task", notify.infos)
	}
}

func TestOnCompleteCanChainTasks(t *testing.T) {
	runner := &fakeRunner{}
	s := New(runner, &fakeNotifier{})

	// t1's callback enqueues t2, whose callback enqueues t3 — the west
	// init → update → requirements pattern.
	s.Push(Task{Name: "t1", Command: "one"}, Policy{
		OnComplete: func(context.Context) {
			s.Push(Task{Name: "t2", Command: "two"}, Policy{
				OnComplete: func(context.Context) {
					s.Push(Task{Name: "t3", Command: "three"}, Policy{})
				},
			})
		},
	})

	if err := waitIdle(t, s); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	calls := runner.callNames()
	want := []string{"one", "two", "three"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("call %d = %q, want %q", i, calls[i], want[i])
		}
	}
}

func TestCallbackPushSurvivesQueueContention(t *testing.T) {
	release := make(chan struct{})
	runner := &fakeRunner{}
	s := New(runner, &fakeNotifier{})

	s.Push(Task{Name: "t1", Command: "first"}, Policy{
		OnComplete: func(context.Context) {
			<-release // hold the slot so the main goroutine can queue behind us
			s.Push(Task{Name: "chained", Command: "chained"}, Policy{})
		},
	})
	s.Push(Task{Name: "t2", Command: "second"}, Policy{})
	close(release)

	if err := waitIdle(t, s); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	// Both orders are permitted by the FIFO-per-push contract; the
	// invariant under test is only that the chained task is not lost.
	var sawChained bool
	for _, c := range runner.callNames() {
		if c == "chained" {
			sawChained = true
		}
	}
	if !sawChained {
		t.Fatalf("calls = %v, chained task was lost", runner.callNames())
	}
}

func TestWaitReturnsImmediatelyWhenIdle(t *testing.T) {
	s := New(&fakeRunner{}, &fakeNotifier{})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("Wait() on idle sequencer = %v", err)
	}
}
