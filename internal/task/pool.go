package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	stdsync "sync"

	"github.com/google/uuid"

	"github.com/pxh52013145/VNote/internal/library"
	"github.com/pxh52013145/VNote/internal/note"
	"github.com/pxh52013145/VNote/internal/sync"
)

// ErrQueueFull rejects a submit when every queue slot is taken. The HTTP
// layer maps it to 429.
var ErrQueueFull = errors.New("task: ingest queue is full")

// RequestError reports an invalid generate request. The HTTP layer maps it
// to a 400 response carrying Msg.
type RequestError struct {
	Msg string
}

func (e *RequestError) Error() string {
	return e.Msg
}

func requestErrf(format string, args ...any) error {
	return &RequestError{Msg: fmt.Sprintf(format, args...)}
}

// NoteGenerator produces the media artifacts for one request, one pipeline
// stage at a time. Implementations wrap the actual download, transcription
// and summarization tooling; the pool only sequences the calls and
// persists progress between them. Every method must honor ctx
// cancellation.
type NoteGenerator interface {
	// Parse validates and normalizes the video link.
	Parse(ctx context.Context, req note.RequestMeta) error
	// Download fetches the media and returns its metadata.
	Download(ctx context.Context, req note.RequestMeta) (*note.AudioMeta, error)
	// Transcribe produces the transcript for the downloaded media.
	Transcribe(ctx context.Context, audio *note.AudioMeta) (*note.Transcript, error)
	// Summarize renders the note markdown from the transcript.
	Summarize(ctx context.Context, audio *note.AudioMeta, transcript *note.Transcript, req note.RequestMeta) (string, error)
	// Format applies the final formatting passes to the markdown.
	Format(ctx context.Context, markdown string, req note.RequestMeta) (string, error)
}

// Publisher runs the post-success automation: bundle upload and RAG
// document creation. Satisfied by *sync.Engine.
type Publisher interface {
	PublishGenerated(ctx context.Context, taskID string, uploadBundle bool, autoDify *bool) *sync.IngestResult
}

// Config wires a Pool. Library and Generator are required; a nil Publisher
// disables the post-success automation and a nil Controller gets a private
// one.
type Config struct {
	Library    *library.Store
	Generator  NoteGenerator
	Publisher  Publisher
	Controller *Controller
	Logger     *slog.Logger

	// Workers is the number of concurrent jobs; QueueSize bounds the
	// pending jobs before submits are rejected. Both floor at 1.
	Workers   int
	QueueSize int

	// AutoBundle uploads the bundle after a successful generate.
	// AutoDify controls RAG document creation: nil defers the decision
	// to the publisher (enabled when the active profile can ingest).
	AutoBundle bool
	AutoDify   *bool
}

// job is one queued ingestion unit.
type job struct {
	taskID string
	req    note.RequestMeta
}

// Pool runs ingestion jobs on a fixed set of workers reading from a
// bounded queue. Submit never blocks: a full queue rejects with
// ErrQueueFull so the HTTP layer can shed load instead of stalling.
type Pool struct {
	cfg    Config
	logger *slog.Logger

	queue  chan job
	cancel context.CancelFunc
	wg     stdsync.WaitGroup

	// stages mirrors each live task's current stage for the metrics
	// gauges; terminal stages drop the entry.
	mu     stdsync.Mutex
	stages map[string]Stage
}

// NewPool validates the configuration and builds a stopped pool. Call
// Start to spawn the workers.
func NewPool(cfg Config) (*Pool, error) {
	if cfg.Library == nil {
		return nil, errors.New("task: library store is required")
	}
	if cfg.Generator == nil {
		return nil, errors.New("task: note generator is required")
	}

	if cfg.Controller == nil {
		cfg.Controller = NewController()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}

	return &Pool{
		cfg:    cfg,
		logger: cfg.Logger,
		queue:  make(chan job, cfg.QueueSize),
		stages: map[string]Stage{},
	}, nil
}

// Controller exposes the pool's cancellation registry.
func (p *Pool) Controller() *Controller {
	return p.cfg.Controller
}

// Start spawns the worker goroutines. The pool stops when Stop is called
// or ctx is cancelled; in-flight jobs then persist CANCELLED at their next
// stage boundary.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	for range p.cfg.Workers {
		p.wg.Add(1)

		go p.worker(ctx)
	}

	p.logger.Info("ingest pool started",
		slog.Int("workers", p.cfg.Workers),
		slog.Int("queue_size", p.cfg.QueueSize),
	)
}

// Stop cancels in-flight jobs and waits for the workers to exit. Queued
// jobs that never ran keep their PENDING status.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}

	p.wg.Wait()
}

// SubmitRequest describes one ingestion job. A non-empty TaskID retries
// that task in place, clearing the stale RAG fields of the previous
// attempt; otherwise a fresh id is minted.
type SubmitRequest struct {
	TaskID  string
	Request note.RequestMeta
}

// Submit validates the request, persists the queued status, and enqueues
// the job. The task id returns immediately; progress is observable through
// the task's status document. A full queue rejects with ErrQueueFull and
// marks the task FAILED so it does not linger as queued.
func (p *Pool) Submit(req SubmitRequest) (string, error) {
	if strings.TrimSpace(req.Request.VideoURL) == "" {
		return "", requestErrf("Missing video_url")
	}
	if strings.TrimSpace(req.Request.Platform) == "" {
		return "", requestErrf("Missing platform")
	}
	if strings.TrimSpace(req.Request.ModelName) == "" || strings.TrimSpace(req.Request.ProviderID) == "" {
		return "", requestErrf("Missing model_name or provider_id")
	}

	taskID := strings.TrimSpace(req.TaskID)
	retry := taskID != ""
	if !retry {
		taskID = uuid.NewString()
	}

	p.cfg.Controller.Ensure(taskID)

	// The queued marker makes the task visible to status polls before a
	// worker picks it up; nil extras clear leftovers from a prior attempt.
	extra := map[string]any{
		"request":       requestMap(req.Request),
		"dify":          nil,
		"dify_error":    nil,
		"dify_indexing": nil,
	}
	if err := p.cfg.Library.WriteStatus(taskID, string(StagePending), StagePending.Progress(), StagePending.Message(), extra); err != nil {
		p.cfg.Controller.Cleanup(taskID)
		return "", fmt.Errorf("persisting queued status: %w", err)
	}
	p.trackStage(taskID, StagePending)

	select {
	case p.queue <- job{taskID: taskID, req: req.Request}:
	default:
		p.setStage(taskID, StageFailed, "Ingest queue is full")
		p.cfg.Controller.Cleanup(taskID)

		return "", ErrQueueFull
	}

	p.logger.Info("ingest task queued",
		slog.String("task_id", taskID),
		slog.Bool("retry", retry),
		slog.String("platform", req.Request.Platform),
	)

	return taskID, nil
}

// Cancel flags a task for cancellation and, unless it already reached a
// terminal stage, persists CANCELLED. Terminal outcomes stay intact so a
// finished task keeps its SUCCESS or FAILED record.
func (p *Pool) Cancel(taskID string) {
	tid := strings.TrimSpace(taskID)
	if tid == "" {
		return
	}

	p.cfg.Controller.Cancel(tid)

	current := ""
	if st := p.cfg.Library.ReadStatus(tid); st != nil {
		current, _ = st["status"].(string)
	}
	if Stage(current).Terminal() {
		return
	}

	p.setStage(tid, StageCancelled, "")
}

// worker pulls jobs from the queue until the pool context is cancelled.
func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case j := <-p.queue:
			p.safeRun(ctx, j)
		}
	}
}

// safeRun guards one job with panic recovery so a generator panic cannot
// take down the pool.
func (p *Pool) safeRun(ctx context.Context, j job) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic in ingest job",
				slog.String("task_id", j.taskID),
				slog.Any("panic", r),
			)
			p.setStage(j.taskID, StageFailed, fmt.Sprintf("panic: %v", r))
		}
	}()

	p.run(ctx, j)
}
