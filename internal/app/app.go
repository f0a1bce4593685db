// Package app wires the capture pipeline, store and search together and
// exposes the operations the HTTP service and CLI call.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/runnerr0/synapse/internal/capture"
	"github.com/runnerr0/synapse/internal/classify"
	"github.com/runnerr0/synapse/internal/config"
	"github.com/runnerr0/synapse/internal/extract"
	"github.com/runnerr0/synapse/internal/fetch"
	"github.com/runnerr0/synapse/internal/logging"
	"github.com/runnerr0/synapse/internal/media"
	"github.com/runnerr0/synapse/internal/metrics"
	"github.com/runnerr0/synapse/internal/search"
	"github.com/runnerr0/synapse/internal/storage"
)

var (
	ErrInvalidURL  = errors.New("invalid url")
	ErrEmptyUpload = errors.New("empty upload")
	ErrEmptyNote   = errors.New("empty note")
)

const maxNoteTitleChars = 100

// Ack acknowledges a capture submission before the pipeline has run.
type Ack struct {
	TaskID     string `json:"task_id,omitempty"`
	TitleGuess string `json:"title_guess,omitempty"`
	Message    string `json:"message"`
	Duplicate  bool   `json:"duplicate,omitempty"`
	ItemID     int64  `json:"item_id,omitempty"`
}

// Upload is a stored upload served back to a caller.
type Upload struct {
	Data        []byte
	ContentType string
}

// Status summarises the store and recent pipeline runs.
type Status struct {
	Stats      *storage.Stats
	Recent     []storage.CaptureRecord
	QueueDepth int
}

// App is a running Synapse instance.
type App struct {
	cfg        *config.Config
	logger     *zap.Logger
	metrics    *metrics.Metrics
	store      storage.Store
	uploads    storage.UploadStore
	classifier *classify.Classifier
	orch       *capture.Orchestrator
	search     *search.Engine
}

// Open opens the configured store and upload directory and starts the
// capture workers.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	logger = logging.OrNop(logger)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	uploadsDir, err := cfg.UploadsPath()
	if err != nil {
		store.Close()
		return nil, err
	}

	fetcher := &fetch.Client{
		UserAgent:    cfg.Capture.UserAgent,
		Timeout:      cfg.Capture.FetchTimeout(),
		MaxBodyBytes: cfg.Capture.MaxBodyBytes,
	}
	return New(cfg, logger, store, &storage.DiskUploads{Dir: uploadsDir}, fetcher), nil
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		s, err := storage.OpenPostgres(ctx, cfg.Storage.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return s, nil
	default:
		dbPath, err := cfg.SQLitePath()
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
		s, err := storage.OpenSQLite(dbPath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, nil
	}
}

// New assembles an App from already-opened collaborators and starts the
// capture workers. The App owns store and closes it on Close.
func New(cfg *config.Config, logger *zap.Logger, store storage.Store, uploads storage.UploadStore, fetcher capture.Fetcher) *App {
	logger = logging.OrNop(logger)
	m := metrics.New()
	classifier := classify.New(classify.Rules{
		VideoHosts: cfg.Classify.VideoHosts,
		ShopHosts:  cfg.Classify.ShopHosts,
	})

	orch := capture.New(capture.Deps{
		Fetcher:    fetcher,
		Uploads:    uploads,
		Extractor:  extract.NewDispatcher(cfg.Capture.MaxContentChars),
		Classifier: classifier,
		Store:      store,
	}, capture.Options{
		Workers:     cfg.Capture.Workers,
		QueueSize:   cfg.Capture.QueueSize,
		HistorySize: cfg.Capture.HistorySize,
		Logger:      logger.Named("capture"),
		Metrics:     m,
	})
	orch.Start()

	return &App{
		cfg:        cfg,
		logger:     logger,
		metrics:    m,
		store:      store,
		uploads:    uploads,
		classifier: classifier,
		orch:       orch,
		search:     search.New(store),
	}
}

// Metrics returns the instance's Prometheus instruments.
func (a *App) Metrics() *metrics.Metrics { return a.metrics }

// Close drains the capture queue and closes the store.
func (a *App) Close(ctx context.Context) error {
	stopErr := a.orch.Stop(ctx)
	return errors.Join(stopErr, a.store.Close())
}

// CaptureURL validates rawURL and queues it for capture. A URL that is
// already stored is acknowledged as a duplicate without running the
// pipeline.
func (a *App) CaptureURL(ctx context.Context, rawURL string) (*Ack, error) {
	u, err := normalizeURL(rawURL)
	if err != nil {
		return nil, err
	}

	existing, err := a.store.FindByURL(ctx, u)
	switch {
	case err == nil:
		return &Ack{
			TitleGuess: existing.Title,
			Message:    "Already captured.",
			Duplicate:  true,
			ItemID:     existing.ID,
		}, nil
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("check existing capture: %w", err)
	}

	task, err := a.orch.Submit(capture.Request{URL: u})
	if err != nil {
		return nil, err
	}
	return &Ack{
		TaskID:     task.ID,
		TitleGuess: titleGuess(u),
		Message:    "Capture queued.",
	}, nil
}

// CaptureUpload queues an uploaded file for capture.
func (a *App) CaptureUpload(_ context.Context, filename string, data []byte) (*Ack, error) {
	if len(data) == 0 {
		return nil, ErrEmptyUpload
	}
	name := displayName(filename)
	task, err := a.orch.Submit(capture.Request{Filename: name, Data: data})
	if err != nil {
		return nil, err
	}
	return &Ack{
		TaskID:     task.ID,
		TitleGuess: name,
		Message:    fmt.Sprintf("Upload %s queued.", name),
	}, nil
}

// CaptureNote stores a text note synchronously. A blank title falls back to
// the first line of content.
func (a *App) CaptureNote(ctx context.Context, title, content string) (*storage.Item, error) {
	title = strings.TrimSpace(title)
	if title == "" && strings.TrimSpace(content) == "" {
		return nil, ErrEmptyNote
	}
	if title == "" {
		title = firstLine(content)
	}

	item := &storage.Item{
		Title:   title,
		Content: content,
		Type:    a.classifier.Classify(classify.Input{}),
	}
	if err := a.store.Insert(ctx, item); err != nil {
		return nil, err
	}
	a.metrics.IncStored(string(item.Type))
	a.logger.Info("note stored", zap.Int64("item_id", item.ID))
	return item, nil
}

// ListItems returns every item, newest first.
func (a *App) ListItems(ctx context.Context) ([]storage.Item, error) {
	return a.store.ListAll(ctx)
}

// GetItem returns one item by id.
func (a *App) GetItem(ctx context.Context, id int64) (*storage.Item, error) {
	return a.store.GetItem(ctx, id)
}

// SearchItems runs a substring search.
func (a *App) SearchItems(ctx context.Context, query string) (*search.Result, error) {
	return a.search.Search(ctx, query)
}

// FetchUpload returns the bytes stored under ref.
func (a *App) FetchUpload(ctx context.Context, ref string) (*Upload, error) {
	data, err := a.uploads.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	return &Upload{Data: data, ContentType: media.DetectContentType(ref, data)}, nil
}

// CaptureStatus returns a snapshot of a recent capture task.
func (a *App) CaptureStatus(id string) (*capture.Snapshot, bool) {
	t, ok := a.orch.Get(id)
	if !ok {
		return nil, false
	}
	s := t.Snapshot()
	return &s, true
}

// Task returns a recent capture task for callers that wait on completion.
func (a *App) Task(id string) (*capture.Task, bool) {
	return a.orch.Get(id)
}

// Status returns store statistics and the latest capture log entries.
func (a *App) Status(ctx context.Context, recent int) (*Status, error) {
	stats, err := a.store.GetStats(ctx)
	if err != nil {
		return nil, err
	}
	recs, err := a.store.RecentCaptures(ctx, recent)
	if err != nil {
		return nil, err
	}
	return &Status{Stats: stats, Recent: recs, QueueDepth: a.orch.QueueDepth()}, nil
}

// Health reports whether the store is reachable.
func (a *App) Health(ctx context.Context) error {
	if p, ok := a.store.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// normalizeURL trims rawURL and requires an absolute http(s) URL.
func normalizeURL(rawURL string) (string, error) {
	s := strings.TrimSpace(rawURL)
	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if (scheme != "http" && scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	return s, nil
}

// titleGuess is the provisional title echoed before the page is fetched.
func titleGuess(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return strings.TrimPrefix(u.Host, "www.") + strings.TrimRight(u.Path, "/")
}

// displayName strips any directory part from a client filename.
func displayName(filename string) string {
	name := strings.TrimSpace(strings.ReplaceAll(filename, `\`, "/"))
	name = path.Base(name)
	if name == "." || name == "/" || name == ".." || name == "" {
		return "upload"
	}
	return name
}

func firstLine(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			continue
		}
		if utf8.RuneCountInString(line) > maxNoteTitleChars {
			line = string([]rune(line)[:maxNoteTitleChars])
		}
		return line
	}
	return extract.UntitledTitle
}
