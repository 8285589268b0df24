package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"

	"github.com/pxh52013145/VNote/internal/task"
)

const defaultEventPoll = 500 * time.Millisecond

// taskEvent is one status snapshot on the event stream.
type taskEvent struct {
	TaskID   string `json:"task_id"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Message  string `json:"message,omitempty"`
}

// handleTaskEvents streams status snapshots over a websocket until the task
// reaches a terminal stage. Snapshots are sent on change only; the first
// one is immediate so subscribers see the current state without waiting a
// poll interval.
func (s *Server) handleTaskEvents(w http.ResponseWriter, r *http.Request) {
	taskID := strings.TrimSpace(chi.URLParam(r, "id"))
	if taskID == "" {
		writeError(w, http.StatusBadRequest, "missing task id")
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket accept failed", "task_id", taskID, "error", err)
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	ticker := time.NewTicker(s.eventPoll())
	defer ticker.Stop()

	var last taskEvent
	for {
		ev := s.taskSnapshot(taskID)
		if ev != last {
			if err := wsjson.Write(ctx, conn, ev); err != nil {
				return
			}

			last = ev
		}

		if task.Stage(ev.Status).Terminal() {
			_ = conn.Close(websocket.StatusNormalClosure, "task finished")
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// taskSnapshot condenses the persisted status document into an event.
// Missing documents read as pending; polls before the first write are
// indistinguishable from an unknown id, and both resolve on the next tick.
func (s *Server) taskSnapshot(taskID string) taskEvent {
	st := s.cfg.Library.ReadStatus(taskID)
	if st == nil {
		return taskEvent{
			TaskID:   taskID,
			Status:   string(task.StagePending),
			Progress: 0,
			Message:  task.StagePending.Message(),
		}
	}

	status, _ := st["status"].(string)
	message, _ := st["message"].(string)

	return taskEvent{
		TaskID:   taskID,
		Status:   status,
		Progress: progressValue(st["progress"], status),
		Message:  message,
	}
}

func (s *Server) eventPoll() time.Duration {
	if s.cfg.EventPoll > 0 {
		return s.cfg.EventPoll
	}

	return defaultEventPoll
}
