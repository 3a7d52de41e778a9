// Package progress tracks the steps of a long-running operation and emits a
// snapshot on every transition. The setup pipeline registers its steps up
// front so the reporter can derive an overall percentage.
package progress

import (
	"strings"
	"sync"
)

// Status is the lifecycle state of a step.
type Status string

const (
	Pending Status = "pending"
	Running Status = "running"
	Done    Status = "done"
	Failed  Status = "failed"
)

// Step is one unit of work.
type Step struct {
	ID      string
	Title   string
	Message string
	Status  Status
}

// Snapshot is the full state of all steps at one instant.
type Snapshot struct {
	Steps []Step
}

// Percent reports overall completion, 0–100. Failed steps count as
// finished so a failed run still lands on a stable number.
func (s Snapshot) Percent() int {
	if len(s.Steps) == 0 {
		return 0
	}
	finished := 0
	for _, st := range s.Steps {
		if st.Status == Done || st.Status == Failed {
			finished++
		}
	}
	return finished * 100 / len(s.Steps)
}

// Reporter receives a snapshot whenever any step transitions.
type Reporter func(Snapshot)

// Tracker manages step state. Safe for concurrent use.
type Tracker struct {
	mu       sync.Mutex
	steps    []Step
	index    map[string]int
	reporter Reporter
}

// New creates a tracker with the given steps pre-registered as pending.
// IDs double as titles unless a title is set later via Start's message.
func New(reporter Reporter, ids ...string) *Tracker {
	t := &Tracker{
		index:    make(map[string]int, len(ids)),
		reporter: reporter,
	}
	for _, id := range ids {
		t.ensureLocked(id)
	}
	t.emitLocked()
	return t
}

// Add registers further steps after construction. The pipeline uses it once
// the manifest is resolved and the per-dependency steps are known.
func (t *Tracker) Add(ids ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range ids {
		t.ensureLocked(id)
	}
	t.emitLocked()
}

// Start transitions a step to Running and returns an end handle. Call it
// with nil on success or the failure error.
func (t *Tracker) Start(id, message string) func(error) {
	t.mu.Lock()
	idx := t.ensureLocked(id)
	t.steps[idx].Status = Running
	t.steps[idx].Message = message
	t.emitLocked()
	t.mu.Unlock()

	var once sync.Once
	return func(err error) {
		once.Do(func() { t.finish(id, err) })
	}
}

// Do is sugar for Start + fn + end(err).
func (t *Tracker) Do(id, message string, fn func() error) error {
	end := t.Start(id, message)
	err := fn()
	end(err)
	return err
}

func (t *Tracker) finish(id string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.ensureLocked(id)
	if err != nil {
		t.steps[idx].Status = Failed
		t.steps[idx].Message = strings.TrimSpace(err.Error())
	} else {
		t.steps[idx].Status = Done
	}
	t.emitLocked()
}

func (t *Tracker) ensureLocked(id string) int {
	id = strings.TrimSpace(id)
	if idx, ok := t.index[id]; ok {
		return idx
	}
	t.index[id] = len(t.steps)
	t.steps = append(t.steps, Step{ID: id, Title: id, Status: Pending})
	return t.index[id]
}

func (t *Tracker) emitLocked() {
	if t.reporter == nil {
		return
	}
	snap := make([]Step, len(t.steps))
	copy(snap, t.steps)
	t.reporter(Snapshot{Steps: snap})
}
