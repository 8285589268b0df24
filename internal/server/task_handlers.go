package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pxh52013145/VNote/internal/dify"
	"github.com/pxh52013145/VNote/internal/metrics"
	"github.com/pxh52013145/VNote/internal/note"
	"github.com/pxh52013145/VNote/internal/task"
)

// generateRequest submits one ingestion job. A non-empty task_id retries
// that task in place.
type generateRequest struct {
	TaskID string `json:"task_id"`
	note.RequestMeta
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	taskID, err := s.cfg.Pool.Submit(task.SubmitRequest{TaskID: req.TaskID, Request: req.RequestMeta})
	if err != nil {
		respondErr(w, err)
		return
	}

	writeData(w, map[string]any{"task_id": taskID})
}

func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	taskID := strings.TrimSpace(chi.URLParam(r, "id"))
	if taskID == "" {
		writeError(w, http.StatusBadRequest, "missing task id")
		return
	}

	st := s.cfg.Library.ReadStatus(taskID)
	if st == nil {
		// No status document. A bare result means a finished task whose
		// status file was lost; nothing at all means the task is unknown
		// or still queueing, which polls treat as pending.
		if result := s.cfg.Library.ReadResult(taskID); result != nil {
			payload := map[string]any{
				"task_id":  taskID,
				"status":   string(task.StageSuccess),
				"progress": 100,
				"result":   result,
			}
			if d, ok := result["dify"].(map[string]any); ok {
				payload["dify"] = d
			}
			if req, ok := result["request"].(map[string]any); ok {
				payload["request"] = req
			}

			writeData(w, payload)
			return
		}

		writeData(w, map[string]any{
			"task_id":  taskID,
			"status":   string(task.StagePending),
			"progress": 0,
			"message":  task.StagePending.Message(),
		})
		return
	}

	status, _ := st["status"].(string)
	message, _ := st["message"].(string)
	difyError, _ := st["dify_error"].(string)
	difyInfo, _ := st["dify"].(map[string]any)

	if task.Stage(status) == task.StageFailed {
		if message == "" {
			message = "task failed"
		}

		writeError(w, http.StatusInternalServerError, message)
		return
	}

	payload := map[string]any{
		"task_id":  taskID,
		"status":   status,
		"progress": progressValue(st["progress"], status),
		"message":  message,
	}
	if req, ok := st["request"].(map[string]any); ok {
		payload["request"] = req
	}

	if task.Stage(status) == task.StageSuccess {
		if result := s.cfg.Library.ReadResult(taskID); result != nil {
			payload["result"] = result

			if difyInfo == nil {
				difyInfo, _ = result["dify"].(map[string]any)
			}
			if _, ok := payload["request"]; !ok {
				if req, ok := result["request"].(map[string]any); ok {
					payload["request"] = req
				}
			}
		}

		indexing, pollErr := s.difyIndexing(r.Context(), difyInfo)
		if indexing != nil {
			payload["dify_indexing"] = indexing
			if preview := indexingErrorPreview(indexing); preview != "" && difyError == "" {
				difyError = preview
			}
		}
		if pollErr != "" && difyError == "" {
			difyError = pollErr
		}
	}

	if difyInfo != nil {
		payload["dify"] = difyInfo
	}
	if difyError != "" {
		payload["dify_error"] = difyError
	}

	writeData(w, payload)
}

// handleDeleteTask cancels a running task and removes its library files.
// Both steps are tolerant: cancelling a finished task keeps its terminal
// record, and deleting an absent directory is a no-op.
func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	taskID := strings.TrimSpace(chi.URLParam(r, "id"))
	if taskID == "" {
		writeError(w, http.StatusBadRequest, "missing task id")
		return
	}

	if s.cfg.Pool != nil {
		s.cfg.Pool.Cancel(taskID)
	}

	if err := s.cfg.Library.Delete(taskID); err != nil {
		respondErr(w, err)
		return
	}

	writeData(w, map[string]any{"task_id": taskID, "deleted": true})
}

// indexingBatch is one RAG ingestion batch recorded in the task's status,
// keyed by document kind ("note", "transcript") or "primary" for the
// legacy single-batch layout.
type indexingBatch struct {
	Key       string
	DatasetID string
	Batch     string
}

// difyIndexing polls the live indexing state for each batch the task
// recorded. The merged per-document list lands under "data" next to the
// per-kind payloads. A poll error stops the remaining polls and returns as
// the second value; nil, "" means there was nothing to poll.
func (s *Server) difyIndexing(ctx context.Context, difyInfo map[string]any) (map[string]any, string) {
	batches := collectBatches(difyInfo)
	if len(batches) == 0 {
		return nil, ""
	}

	kc := s.cfg.NewKnowledge(s.activeDify())

	out := map[string]any{}
	merged := []dify.IndexingStatus{}
	for _, b := range batches {
		resp, err := kc.BatchIndexingStatus(ctx, b.DatasetID, b.Batch)
		if err != nil {
			s.logger.Warn("indexing status poll failed",
				"dataset_id", b.DatasetID, "batch", b.Batch, "error", err)
			metrics.IncRemoteError(metrics.SideRAG)

			if len(out) == 0 {
				return nil, err.Error()
			}

			break
		}

		out[b.Key] = resp
		merged = append(merged, resp.Data...)
	}

	out["data"] = merged

	return out, ""
}

func collectBatches(difyInfo map[string]any) []indexingBatch {
	if len(difyInfo) == 0 {
		return nil
	}

	var batches []indexingBatch
	for _, key := range []string{"transcript", "note"} {
		info, ok := difyInfo[key].(map[string]any)
		if !ok {
			continue
		}

		b := indexingBatch{
			Key:       key,
			DatasetID: stringField(info, "dataset_id"),
			Batch:     stringField(info, "batch"),
		}
		if b.DatasetID != "" && b.Batch != "" {
			batches = append(batches, b)
		}
	}

	// Older status documents carried one batch at the top level.
	if len(batches) == 0 {
		b := indexingBatch{
			Key:       "primary",
			DatasetID: stringField(difyInfo, "dataset_id"),
			Batch:     stringField(difyInfo, "batch"),
		}
		if b.Batch != "" {
			batches = append(batches, b)
		}
	}

	return batches
}

// indexingErrorPreview condenses failed documents into at most three
// "docID: error" lines joined with " | ", plus a count of the rest.
func indexingErrorPreview(indexing map[string]any) string {
	statuses, _ := indexing["data"].([]dify.IndexingStatus)

	var lines []string
	for _, st := range statuses {
		state := strings.ToLower(strings.TrimSpace(st.IndexingStatus))
		if state != "error" && state != "failed" {
			continue
		}

		msg := strings.TrimSpace(st.Error)
		if msg == "" {
			msg = "indexing_status=" + state
		}
		if id := strings.TrimSpace(st.ID); id != "" {
			msg = id + ": " + msg
		}

		lines = append(lines, msg)
	}

	if len(lines) == 0 {
		return ""
	}

	preview := strings.Join(lines[:min(3, len(lines))], " | ")
	if len(lines) > 3 {
		preview = fmt.Sprintf("%s (+%d more)", preview, len(lines)-3)
	}

	return preview
}

// progressValue clamps the persisted progress to 0-100, falling back to
// the stage's nominal position when the document carries none. JSON
// numbers arrive as float64.
func progressValue(raw any, status string) int {
	var p int
	switch v := raw.(type) {
	case float64:
		p = int(v)
	case int:
		p = v
	default:
		p = task.Stage(status).Progress()
	}

	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}

	return p
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}
