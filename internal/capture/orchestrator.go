// Package capture runs the Fetch -> Extract -> Classify -> Store pipeline
// on a bounded worker pool, off the request path.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/runnerr0/synapse/internal/classify"
	"github.com/runnerr0/synapse/internal/extract"
	"github.com/runnerr0/synapse/internal/fetch"
	"github.com/runnerr0/synapse/internal/logging"
	"github.com/runnerr0/synapse/internal/media"
	"github.com/runnerr0/synapse/internal/metrics"
	"github.com/runnerr0/synapse/internal/storage"
)

var (
	// ErrQueueFull is returned by Submit when every queue slot is taken.
	ErrQueueFull = errors.New("capture queue full")
	// ErrStopped is returned by Submit after Stop.
	ErrStopped = errors.New("capture orchestrator stopped")
	// ErrEmptyRequest is returned by Submit for a request with neither a URL
	// nor file data.
	ErrEmptyRequest = errors.New("capture request has no url or file")
)

// Fetcher retrieves a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Response, error)
}

// Classifier picks the item type.
type Classifier interface {
	Decide(in classify.Input) classify.Decision
}

// Deps are the pipeline collaborators.
type Deps struct {
	Fetcher    Fetcher
	Uploads    storage.UploadStore
	Extractor  extract.Extractor
	Classifier Classifier
	Store      storage.Store
}

// Options configure the worker pool.
type Options struct {
	Workers     int
	QueueSize   int
	HistorySize int // finished tasks kept for Get
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
}

const (
	defaultWorkers     = 4
	defaultQueueSize   = 64
	defaultHistorySize = 256
)

// Orchestrator manages the worker pool and capture tasks.
type Orchestrator struct {
	deps    Deps
	opts    Options
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	queue     chan *Task
	wg        sync.WaitGroup
	startOnce sync.Once

	mu       sync.Mutex
	stopped  bool
	inflight map[string]*Task // by URL
	tasks    map[string]*Task
	order    []string // task ids, oldest first
}

// New creates an Orchestrator. Call Start to launch the workers.
func New(deps Deps, opts Options) *Orchestrator {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.HistorySize <= 0 {
		opts.HistorySize = defaultHistorySize
	}
	return &Orchestrator{
		deps:     deps,
		opts:     opts,
		logger:   logging.OrNop(opts.Logger),
		metrics:  opts.Metrics,
		now:      time.Now,
		queue:    make(chan *Task, opts.QueueSize),
		inflight: make(map[string]*Task),
		tasks:    make(map[string]*Task),
	}
}

// Start launches the workers. Further calls do nothing.
func (o *Orchestrator) Start() {
	o.startOnce.Do(func() {
		for i := 0; i < o.opts.Workers; i++ {
			o.wg.Add(1)
			go o.worker()
		}
		o.logger.Info("capture workers started",
			zap.Int("workers", o.opts.Workers), zap.Int("queue_size", o.opts.QueueSize))
	})
}

// Stop rejects new submissions and waits until queued tasks have finished
// or ctx is done.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	if !o.stopped {
		o.stopped = true
		close(o.queue)
	}
	o.mu.Unlock()

	// Drain with at least one worker even if Start was never called.
	o.Start()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop capture workers: %w", ctx.Err())
	}
}

// Submit enqueues req and returns immediately. A URL that is already being
// captured returns the in-flight task.
func (o *Orchestrator) Submit(req Request) (*Task, error) {
	if req.URL == "" && req.Filename == "" && len(req.Data) == 0 {
		return nil, ErrEmptyRequest
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.stopped {
		return nil, ErrStopped
	}
	if req.URL != "" {
		if t, ok := o.inflight[req.URL]; ok {
			return t, nil
		}
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("task id: %w", err)
	}
	task := newTask(id.String(), req, o.now())

	select {
	case o.queue <- task:
	default:
		return nil, ErrQueueFull
	}

	if req.URL != "" {
		o.inflight[req.URL] = task
	}
	o.tasks[task.ID] = task
	o.order = append(o.order, task.ID)
	o.metrics.SetQueueDepth(len(o.queue))

	o.logger.Debug("capture queued",
		zap.String("task_id", task.ID), zap.String("source", task.Source), zap.String("target", task.Target))
	return task, nil
}

// Get returns a recent task by id.
func (o *Orchestrator) Get(id string) (*Task, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	t, ok := o.tasks[id]
	return t, ok
}

// QueueDepth returns the number of tasks waiting for a worker.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}

func (o *Orchestrator) worker() {
	defer o.wg.Done()
	for task := range o.queue {
		o.metrics.SetQueueDepth(len(o.queue))
		o.process(task)
	}
}

// process runs one task to completion. Pipelines are not cancellable; only
// the fetch is bounded, by the fetcher's own timeout.
func (o *Orchestrator) process(task *Task) {
	start := o.now()
	task.start(start)

	res := o.runSafely(context.Background(), task)
	end := o.now()
	task.setResult(res, end)
	o.finish(task, res, end.Sub(start))
	task.release()
}

func (o *Orchestrator) runSafely(ctx context.Context, task *Task) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("capture pipeline panicked",
				zap.String("task_id", task.ID), zap.Any("panic", r), zap.Stack("stack"))
			res = Result{Err: fmt.Errorf("pipeline panic: %v", r)}
		}
	}()
	return o.run(ctx, task)
}

func (o *Orchestrator) run(ctx context.Context, task *Task) Result {
	req := task.req

	// A capture of the same URL may have been stored after the caller's
	// duplicate check and before this task was queued.
	if req.URL != "" {
		existing, err := o.deps.Store.FindByURL(ctx, req.URL)
		switch {
		case err == nil:
			return Result{Item: existing, Duplicate: true}
		case !errors.Is(err, storage.ErrNotFound):
			return Result{Err: fmt.Errorf("check existing capture: %w", err)}
		}
	}

	task.setState(StateFetching)
	src, err := o.acquire(ctx, req)
	if err != nil {
		return Result{Err: err}
	}

	task.setState(StateExtracting)
	doc := o.deps.Extractor.Extract(ctx, src)
	if doc.Degraded {
		o.metrics.IncDegraded()
		o.logger.Warn("extraction degraded",
			zap.String("task_id", task.ID), zap.String("target", task.Target), zap.String("reason", doc.DegradedReason))
	}

	task.setState(StateClassifying)
	decision := o.deps.Classifier.Decide(classify.Input{
		URL:     req.URL,
		HasFile: src.Ref != "",
		Kind:    src.Kind,
		Markers: doc.Markers,
	})

	item := &storage.Item{
		Title:   doc.Title,
		Content: doc.Content,
		URL:     req.URL,
		Type:    decision.Type,
	}
	if src.Ref != "" {
		item.URL = storage.UploadURL(src.Ref)
	}
	if err := o.deps.Store.Insert(ctx, item); err != nil {
		return Result{Err: fmt.Errorf("store item: %w", err)}
	}

	return Result{
		Item:           item,
		Rule:           decision.Rule,
		Degraded:       doc.Degraded,
		DegradedReason: doc.DegradedReason,
	}
}

// acquire produces the extraction source: the fetched resource for a URL,
// or the persisted upload for a file.
func (o *Orchestrator) acquire(ctx context.Context, req Request) (extract.Source, error) {
	if req.URL != "" {
		resp, err := o.deps.Fetcher.Fetch(ctx, req.URL)
		if err != nil {
			return extract.Source{}, err
		}
		return extract.Source{
			URL:         resp.FinalURL,
			Kind:        resp.Kind,
			ContentType: resp.ContentType,
			Body:        resp.Body,
		}, nil
	}

	ref, err := o.deps.Uploads.Put(ctx, req.Filename, req.Data)
	if err != nil {
		return extract.Source{}, fmt.Errorf("save upload: %w", err)
	}
	ct := media.DetectContentType(req.Filename, req.Data)
	return extract.Source{
		Filename:    req.Filename,
		Ref:         ref,
		Kind:        media.KindForUpload(req.Filename, req.Data),
		ContentType: ct,
		Body:        req.Data,
	}, nil
}

// finish releases the in-flight slot, appends the capture log, and emits
// logs and metrics. Failures stop here.
func (o *Orchestrator) finish(task *Task, res Result, elapsed time.Duration) {
	o.mu.Lock()
	if t, ok := o.inflight[task.Target]; ok && t == task {
		delete(o.inflight, task.Target)
	}
	o.trimHistory()
	o.mu.Unlock()

	if err := o.deps.Store.RecordCapture(context.Background(), task.record()); err != nil {
		o.logger.Error("failed to record capture", zap.String("task_id", task.ID), zap.Error(err))
	}

	if res.Err != nil {
		o.metrics.ObserveCapture(task.Source, metrics.ResultFailed, elapsed)
		o.logger.Warn("capture failed",
			zap.String("task_id", task.ID),
			zap.String("source", task.Source),
			zap.String("target", task.Target),
			zap.Duration("elapsed", elapsed),
			zap.Error(res.Err))
		return
	}

	if res.Duplicate {
		o.metrics.ObserveCapture(task.Source, metrics.ResultDuplicate, elapsed)
		o.logger.Info("capture already stored",
			zap.String("task_id", task.ID),
			zap.String("target", task.Target),
			zap.Int64("item_id", res.Item.ID))
		return
	}
	o.metrics.ObserveCapture(task.Source, metrics.ResultStored, elapsed)
	o.metrics.IncStored(string(res.Item.Type))
	o.logger.Info("capture stored",
		zap.String("task_id", task.ID),
		zap.String("source", task.Source),
		zap.String("target", task.Target),
		zap.Int64("item_id", res.Item.ID),
		zap.String("item_type", string(res.Item.Type)),
		zap.String("rule", res.Rule),
		zap.Duration("elapsed", elapsed))
}

// trimHistory drops the oldest finished tasks beyond HistorySize. Unfinished
// tasks are always kept. Callers hold o.mu.
func (o *Orchestrator) trimHistory() {
	excess := len(o.order) - o.opts.HistorySize
	if excess <= 0 {
		return
	}
	kept := o.order[:0]
	for _, id := range o.order {
		t := o.tasks[id]
		if excess > 0 && t.State().Terminal() {
			delete(o.tasks, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	o.order = kept
}
