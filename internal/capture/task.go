package capture

import (
	"context"
	"sync"
	"time"

	"github.com/runnerr0/synapse/internal/storage"
)

// State is a stage of the capture pipeline.
type State string

const (
	StatePending     State = "PENDING"
	StateFetching    State = "FETCHING"
	StateExtracting  State = "EXTRACTING"
	StateClassifying State = "CLASSIFYING"
	StateStored      State = "STORED"
	StateFailed      State = storage.CaptureFailed
)

// Terminal reports whether s is STORED or FAILED.
func (s State) Terminal() bool {
	return s == StateStored || s == StateFailed
}

// Sources of a capture request.
const (
	SourceURL    = "url"
	SourceUpload = "upload"
)

// Request is a capture submission: either URL or Filename with Data.
type Request struct {
	URL      string
	Filename string
	Data     []byte
}

// Source returns SourceURL or SourceUpload.
func (r Request) Source() string {
	if r.URL != "" {
		return SourceURL
	}
	return SourceUpload
}

func (r Request) target() string {
	if r.URL != "" {
		return r.URL
	}
	return r.Filename
}

// Result is the outcome of a finished task. Exactly one of Item and Err is
// set.
type Result struct {
	Item           *storage.Item
	Err            error
	Rule           string // classifier rule that chose the type
	Duplicate      bool   // Item was already stored; nothing was fetched
	Degraded       bool
	DegradedReason string
}

// Task tracks one submission through the pipeline.
type Task struct {
	ID          string
	Source      string
	Target      string
	SubmittedAt time.Time

	req  Request
	done chan struct{}

	mu         sync.Mutex
	state      State
	result     Result
	startedAt  time.Time
	finishedAt time.Time
}

func newTask(id string, req Request, now time.Time) *Task {
	return &Task{
		ID:          id,
		Source:      req.Source(),
		Target:      req.target(),
		SubmittedAt: now,
		req:         req,
		done:        make(chan struct{}),
		state:       StatePending,
	}
}

// State returns the current pipeline stage.
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Done is closed when the task reaches STORED or FAILED.
func (t *Task) Done() <-chan struct{} { return t.done }

// Result returns the outcome, and false while the task is still running.
func (t *Task) Result() (Result, bool) {
	select {
	case <-t.done:
	default:
		return Result{}, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result, true
}

// Wait blocks until the task finishes or ctx is done. A pipeline failure is
// reported in Result.Err, not as the returned error.
func (t *Task) Wait(ctx context.Context) (Result, error) {
	select {
	case <-t.done:
		r, _ := t.Result()
		return r, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (t *Task) setState(s State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

func (t *Task) start(now time.Time) {
	t.mu.Lock()
	t.startedAt = now
	t.mu.Unlock()
}

// setResult records the outcome and moves the task to its terminal state.
func (t *Task) setResult(r Result, now time.Time) {
	t.mu.Lock()
	t.result = r
	t.finishedAt = now
	if r.Err != nil {
		t.state = StateFailed
	} else {
		t.state = StateStored
	}
	t.req.Data = nil
	t.mu.Unlock()
}

// release wakes waiters. It must be called exactly once, after setResult.
func (t *Task) release() { close(t.done) }

// Snapshot is a point-in-time view of a task.
type Snapshot struct {
	ID          string           `json:"id"`
	Source      string           `json:"source"`
	Target      string           `json:"target"`
	State       State            `json:"state"`
	Error       string           `json:"error,omitempty"`
	ItemID      int64            `json:"item_id,omitempty"`
	Title       string           `json:"title,omitempty"`
	ItemType    storage.ItemType `json:"item_type,omitempty"`
	Degraded    bool             `json:"degraded,omitempty"`
	Duplicate   bool             `json:"duplicate,omitempty"`
	SubmittedAt time.Time        `json:"submitted_at"`
	FinishedAt  *time.Time       `json:"finished_at,omitempty"`
}

// Snapshot returns the task's current view.
func (t *Task) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := Snapshot{
		ID:          t.ID,
		Source:      t.Source,
		Target:      t.Target,
		State:       t.state,
		SubmittedAt: t.SubmittedAt,
		Degraded:    t.result.Degraded,
		Duplicate:   t.result.Duplicate,
	}
	if t.result.Err != nil {
		s.Error = t.result.Err.Error()
	}
	if it := t.result.Item; it != nil {
		s.ItemID = it.ID
		s.Title = it.Title
		s.ItemType = it.Type
	}
	if !t.finishedAt.IsZero() {
		f := t.finishedAt
		s.FinishedAt = &f
	}
	return s
}

// record converts a finished task into a capture log entry.
func (t *Task) record() *storage.CaptureRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec := &storage.CaptureRecord{
		TaskID:     t.ID,
		Source:     t.Source,
		Target:     t.Target,
		State:      string(t.state),
		StartedAt:  t.startedAt,
		FinishedAt: t.finishedAt,
	}
	if t.result.Err != nil {
		rec.Error = t.result.Err.Error()
	}
	if t.result.Item != nil {
		rec.ItemID = t.result.Item.ID
	}
	return rec
}
