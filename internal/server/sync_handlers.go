package server

import (
	"net/http"
	"time"

	"github.com/pxh52013145/VNote/internal/metrics"
	"github.com/pxh52013145/VNote/internal/sync"
)

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	res, err := s.cfg.Engine.Scan(r.Context())
	if err != nil {
		s.recordVerb("scan", err)
		respondErr(w, err)
		return
	}

	metrics.ObserveScanDuration(time.Since(start))
	s.recordVerb("scan", nil)
	writeData(w, res)
}

func (s *Server) handleItems(w http.ResponseWriter, r *http.Request) {
	res, err := s.cfg.Engine.CachedItems(r.Context())
	if err != nil {
		respondErr(w, err)
		return
	}

	writeData(w, res)
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	var req sync.PushRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	res, err := s.cfg.Engine.Push(r.Context(), req)
	if err != nil {
		s.recordVerb("push", err)
		respondErr(w, err)
		return
	}

	s.recordVerb("push", nil)
	s.recordDifyError(res.DifyError)
	writeData(w, res)
}

func (s *Server) handlePull(w http.ResponseWriter, r *http.Request) {
	var req sync.PullRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	res, err := s.cfg.Engine.Pull(r.Context(), req)
	if err != nil {
		s.recordVerb("pull", err)
		respondErr(w, err)
		return
	}

	s.recordVerb("pull", nil)
	writeData(w, res)
}

func (s *Server) handleCopy(w http.ResponseWriter, r *http.Request) {
	var req sync.CopyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	res, err := s.cfg.Engine.Copy(r.Context(), req)
	if err != nil {
		s.recordVerb("copy", err)
		respondErr(w, err)
		return
	}

	s.recordVerb("copy", nil)
	s.recordDifyError(res.DifyError)
	writeData(w, res)
}

func (s *Server) handleDeleteRemote(w http.ResponseWriter, r *http.Request) {
	var req sync.DeleteRemoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	res, err := s.cfg.Engine.DeleteRemote(r.Context(), req)
	if err != nil {
		s.recordVerb("delete_remote", err)
		respondErr(w, err)
		return
	}

	s.recordVerb("delete_remote", nil)
	s.recordDifyError(res.DifyError)
	writeData(w, res)
}

// recordVerb counts the sync operation and, for remote-side failures, the
// responsible side. Validation and not-found rejections are client errors,
// not remote ones, so only the op counter moves for them.
func (s *Server) recordVerb(verb string, err error) {
	if err == nil {
		metrics.RecordSyncOp(verb, metrics.OutcomeOK)
		return
	}

	metrics.RecordSyncOp(verb, metrics.OutcomeError)

	switch sync.KindOf(err) {
	case sync.KindRemoteConfig, sync.KindRemoteFailure, sync.KindIntegrity:
		metrics.IncRemoteError(metrics.SideObjectStore)
	}
}

// recordDifyError counts post-commit RAG failures, which ride back inside a
// successful response rather than as an error.
func (s *Server) recordDifyError(difyError string) {
	if difyError != "" {
		metrics.IncRemoteError(metrics.SideRAG)
	}
}
