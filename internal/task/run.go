package task

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/pxh52013145/VNote/internal/identity"
	"github.com/pxh52013145/VNote/internal/metrics"
	"github.com/pxh52013145/VNote/internal/note"
)

// run walks one job through the pipeline stages. Each boundary persists
// the new stage and checks for cancellation first, so a cancel lands
// within one stage's worth of work. The identity timestamp is fixed at
// job start: it names the item for its whole life.
func (p *Pool) run(ctx context.Context, j job) {
	defer p.cfg.Controller.Cleanup(j.taskID)

	createdAtMs := time.Now().UnixMilli()

	if !p.enterStage(ctx, j.taskID, StageParsing) {
		return
	}
	if err := p.cfg.Generator.Parse(ctx, j.req); err != nil {
		p.fail(ctx, j.taskID, err)
		return
	}

	if !p.enterStage(ctx, j.taskID, StageDownloading) {
		return
	}
	audio, err := p.cfg.Generator.Download(ctx, j.req)
	if err != nil {
		p.fail(ctx, j.taskID, err)
		return
	}
	if audio == nil {
		p.fail(ctx, j.taskID, errors.New("generator returned no audio metadata"))
		return
	}

	if !p.enterStage(ctx, j.taskID, StageTranscribing) {
		return
	}
	transcript, err := p.cfg.Generator.Transcribe(ctx, audio)
	if err != nil {
		p.fail(ctx, j.taskID, err)
		return
	}
	if transcript == nil {
		transcript = &note.Transcript{}
	}

	if !p.enterStage(ctx, j.taskID, StageSummarizing) {
		return
	}
	markdown, err := p.cfg.Generator.Summarize(ctx, audio, transcript, j.req)
	if err != nil {
		p.fail(ctx, j.taskID, err)
		return
	}

	if !p.enterStage(ctx, j.taskID, StageFormatting) {
		return
	}
	markdown, err = p.cfg.Generator.Format(ctx, markdown, j.req)
	if err != nil {
		p.fail(ctx, j.taskID, err)
		return
	}
	if strings.TrimSpace(markdown) == "" {
		p.fail(ctx, j.taskID, errors.New("generator produced no markdown"))
		return
	}

	if !p.enterStage(ctx, j.taskID, StageSaving) {
		return
	}
	if err := p.save(j.taskID, j.req, audio, transcript, markdown, createdAtMs); err != nil {
		p.fail(ctx, j.taskID, err)
		return
	}

	p.setStage(j.taskID, StageSuccess, "")
	p.logger.Info("ingest task finished",
		slog.String("task_id", j.taskID),
		slog.String("platform", j.req.Platform),
		slog.String("video_id", audio.VideoID),
	)

	p.publish(ctx, j.taskID)
}

// save persists the generated artifacts, the result document with its sync
// identity, and the identity sidecar.
func (p *Pool) save(taskID string, req note.RequestMeta, audio *note.AudioMeta, transcript *note.Transcript, markdown string, createdAtMs int64) error {
	audioMap := structMap(audio)
	transcriptMap := structMap(transcript)
	requestMeta := requestMap(req)

	sourceKey := identity.MakeSourceKey(req.Platform, audio.VideoID, createdAtMs)
	syncID := identity.ComputeSyncID(sourceKey)
	syncInfo := map[string]any{
		"created_at_ms": createdAtMs,
		"source_key":    sourceKey,
		"sync_id":       syncID,
	}

	if err := p.cfg.Library.WriteAudio(taskID, audioMap); err != nil {
		return err
	}
	if err := p.cfg.Library.WriteTranscript(taskID, transcriptMap); err != nil {
		return err
	}
	if err := p.cfg.Library.WriteMarkdown(taskID, markdown); err != nil {
		return err
	}

	result := map[string]any{
		"markdown":   markdown,
		"transcript": transcriptMap,
		"audio_meta": audioMap,
		"sync":       syncInfo,
		"request":    requestMeta,
	}
	if err := p.cfg.Library.WriteResult(taskID, result); err != nil {
		return err
	}

	if _, err := p.cfg.Library.EnsureSyncMeta(taskID, req.Platform, audio.VideoID, audio.Title, createdAtMs); err != nil {
		p.logger.Warn("writing sync sidecar failed", "task_id", taskID, "error", err)
	}

	return nil
}

// publish hands the finished task to the publisher for bundle upload and
// RAG ingestion. The publisher folds failures into the status document
// itself; the task outcome stays SUCCESS regardless.
func (p *Pool) publish(ctx context.Context, taskID string) {
	if p.cfg.Publisher == nil {
		return
	}
	if !p.cfg.AutoBundle && p.cfg.AutoDify != nil && !*p.cfg.AutoDify {
		return
	}

	res := p.cfg.Publisher.PublishGenerated(ctx, taskID, p.cfg.AutoBundle, p.cfg.AutoDify)
	if res != nil && res.DifyError != "" {
		p.logger.Debug("post-generate publication recorded failures",
			slog.String("task_id", taskID),
			slog.String("dify_error", res.DifyError),
		)
	}
}

// enterStage persists the next stage unless the task was cancelled in the
// meantime; cancellation persists CANCELLED and stops the walk.
func (p *Pool) enterStage(ctx context.Context, taskID string, s Stage) bool {
	if p.cancelledNow(ctx, taskID) {
		p.setStage(taskID, StageCancelled, "")
		return false
	}

	p.setStage(taskID, s, "")

	return true
}

// fail persists the FAILED outcome, or CANCELLED when the task was
// cancelled while the failing stage ran.
func (p *Pool) fail(ctx context.Context, taskID string, err error) {
	if p.cancelledNow(ctx, taskID) {
		p.setStage(taskID, StageCancelled, "")
		return
	}

	p.logger.Error("ingest task failed",
		slog.String("task_id", taskID),
		slog.String("error", err.Error()),
	)
	p.setStage(taskID, StageFailed, err.Error())
}

// cancelledNow reports whether the job should stop: either its task was
// flagged or the whole pool is shutting down.
func (p *Pool) cancelledNow(ctx context.Context, taskID string) bool {
	return ctx.Err() != nil || p.cfg.Controller.IsCancelled(taskID)
}

// setStage merges a stage snapshot into the task's status document.
func (p *Pool) setStage(taskID string, s Stage, message string) {
	if message == "" {
		message = s.Message()
	}

	if err := p.cfg.Library.WriteStatus(taskID, string(s), s.Progress(), message, nil); err != nil {
		p.logger.Warn("persisting task status failed",
			"task_id", taskID,
			"stage", string(s),
			"error", err,
		)
	}

	p.trackStage(taskID, s)
}

// trackStage keeps the stage gauges balanced: leaving the previous stage,
// entering the next, and counting terminal outcomes once.
func (p *Pool) trackStage(taskID string, s Stage) {
	p.mu.Lock()
	prev, had := p.stages[taskID]
	if s.Terminal() {
		delete(p.stages, taskID)
	} else {
		p.stages[taskID] = s
	}
	p.mu.Unlock()

	if had && prev == s {
		return
	}
	if had {
		metrics.IngestStageLeft(string(prev))
	}
	if s.Terminal() {
		metrics.RecordIngestOutcome(string(s))
		return
	}

	metrics.IngestStageEntered(string(s))
}

// structMap renders a struct as the generic JSON object the library
// artifacts store.
func structMap(v any) map[string]any {
	data, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}

	m := map[string]any{}
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{}
	}

	return m
}

// requestMap renders the request for persistence, keeping list fields as
// empty arrays rather than nulls.
func requestMap(r note.RequestMeta) map[string]any {
	if r.Format == nil {
		r.Format = []string{}
	}
	if r.GridSize == nil {
		r.GridSize = []int{}
	}

	return structMap(r)
}
