package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pxh52013145/VNote/internal/profile"
	"github.com/pxh52013145/VNote/internal/raghistory"
	"github.com/pxh52013145/VNote/internal/sync"
	"github.com/pxh52013145/VNote/internal/task"
)

// maxBodyBytes bounds request bodies. Sync and task requests are small
// JSON objects; anything near a megabyte is a client bug.
const maxBodyBytes = 1 << 20

// envelope is the uniform response body. Code is 0 on success and mirrors
// the HTTP status on errors; Msg carries the human-readable outcome.
type envelope struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, env envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

// writeData responds 200 with the success envelope.
func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Code: 0, Msg: "success", Data: data})
}

// writeError responds with the given status in both the status line and
// the envelope code.
func writeError(w http.ResponseWriter, status int, msg string) {
	if msg == "" {
		msg = http.StatusText(status)
	}

	writeJSON(w, status, envelope{Code: status, Msg: msg})
}

// respondErr maps a domain error to its transport status and writes the
// error envelope.
func respondErr(w http.ResponseWriter, err error) {
	writeError(w, statusForErr(err), err.Error())
}

// statusForErr classifies an error chain into an HTTP status. Unclassified
// errors are treated as internal.
func statusForErr(err error) int {
	switch {
	case errors.Is(err, task.ErrQueueFull):
		return http.StatusTooManyRequests
	case errors.Is(err, profile.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, profile.ErrInvalid), errors.Is(err, raghistory.ErrInvalid):
		return http.StatusBadRequest
	}

	var reqErr *task.RequestError
	if errors.As(err, &reqErr) {
		return http.StatusBadRequest
	}

	switch sync.KindOf(err) {
	case sync.KindValidation:
		return http.StatusBadRequest
	case sync.KindNotFound:
		return http.StatusNotFound
	case sync.KindConflict:
		return http.StatusConflict
	case sync.KindGone:
		return http.StatusGone
	}

	return http.StatusInternalServerError
}

// decodeJSON reads a bounded JSON body into dst. An empty body is an
// error; every mutating endpoint requires an explicit payload.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return err
	}

	return nil
}
