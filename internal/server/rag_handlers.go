package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/pxh52013145/VNote/internal/dify"
	"github.com/pxh52013145/VNote/internal/metrics"
	"github.com/pxh52013145/VNote/internal/raghistory"
)

// Retrieval fallback for chat citations: when the app answer carries no
// references, a direct dataset query against the transcript dataset fills
// them in.
const (
	retrieveTopK      = 5
	retrieveThreshold = 0.3
)

type ragChatRequest struct {
	Query          string `json:"query"`
	ConversationID string `json:"conversation_id"`
	User           string `json:"user"`
}

// ragReference is one citation attached to a chat answer, flattened from a
// retrieval record's segment.
type ragReference struct {
	Position     int     `json:"position"`
	DatasetID    string  `json:"dataset_id"`
	DocumentID   string  `json:"document_id"`
	DocumentName string  `json:"document_name"`
	SegmentID    string  `json:"segment_id"`
	Score        float64 `json:"score"`
	Content      string  `json:"content"`
}

func (s *Server) handleRagChat(w http.ResponseWriter, r *http.Request) {
	var req ragChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	query := strings.TrimSpace(req.Query)
	if query == "" {
		writeError(w, http.StatusBadRequest, "missing query")
		return
	}

	cfg := s.activeDify()

	resp, err := s.cfg.NewChat(cfg).Chat(r.Context(), dify.ChatRequest{
		Query:          query,
		ConversationID: strings.TrimSpace(req.ConversationID),
		User:           strings.TrimSpace(req.User),
	})
	if err != nil {
		metrics.IncRemoteError(metrics.SideRAG)
		respondErr(w, err)
		return
	}

	references := s.retrieveReferences(r.Context(), cfg, query)
	s.appendHistory(resp.ConversationID, query, resp.Answer)

	writeData(w, map[string]any{
		"answer":              resp.Answer,
		"conversation_id":     resp.ConversationID,
		"message_id":          resp.MessageID,
		"retriever_resources": references,
	})
}

// retrieveReferences queries the transcript dataset for citation material.
// Failures degrade to an empty list; the answer already succeeded and a
// missing reference panel is better than a failed chat.
func (s *Server) retrieveReferences(ctx context.Context, cfg dify.Config, query string) []ragReference {
	datasetID := cfg.TranscriptDataset()
	if datasetID == "" {
		return []ragReference{}
	}

	threshold := retrieveThreshold
	resp, err := s.cfg.NewKnowledge(cfg).Retrieve(ctx, datasetID, query, retrieveTopK, &threshold)
	if err != nil {
		s.logger.Warn("retrieve fallback failed", "dataset_id", datasetID, "error", err)
		metrics.IncRemoteError(metrics.SideRAG)

		return []ragReference{}
	}

	references := make([]ragReference, 0, len(resp.Records))
	for _, rec := range resp.Records {
		seg := rec.Segment
		content := strings.TrimSpace(stringField(seg, "content"))
		if content == "" {
			continue
		}

		doc, _ := seg["document"].(map[string]any)
		docID := stringField(seg, "document_id")
		if docID == "" {
			docID = stringField(doc, "id")
		}

		references = append(references, ragReference{
			Position:     len(references) + 1,
			DatasetID:    datasetID,
			DocumentID:   docID,
			DocumentName: stringField(doc, "name"),
			SegmentID:    stringField(seg, "id"),
			Score:        rec.Score,
			Content:      content,
		})
	}

	return references
}

// appendHistory records the turn, one entry per side. History failures are
// logged and swallowed; the chat response does not depend on them.
func (s *Server) appendHistory(conversationID, query, answer string) {
	if s.cfg.History == nil {
		return
	}

	entries := []raghistory.Entry{
		{ConversationID: conversationID, Role: "user", Content: query},
		{ConversationID: conversationID, Role: "assistant", Content: answer},
	}
	for _, e := range entries {
		if _, err := s.cfg.History.Append(e); err != nil {
			s.logger.Warn("recording chat history failed", "role", e.Role, "error", err)
			return
		}
	}
}

func (s *Server) handleRagHistory(w http.ResponseWriter, r *http.Request) {
	conversationID := strings.TrimSpace(r.URL.Query().Get("conversation_id"))

	var (
		entries []raghistory.Entry
		err     error
	)
	if conversationID != "" {
		entries, err = s.cfg.History.Conversation(conversationID)
	} else {
		entries, err = s.cfg.History.List()
	}
	if err != nil {
		respondErr(w, err)
		return
	}

	if entries == nil {
		entries = []raghistory.Entry{}
	}

	writeData(w, map[string]any{"entries": entries})
}

func (s *Server) handleClearRagHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.History.Clear(); err != nil {
		respondErr(w, err)
		return
	}

	writeData(w, map[string]any{"cleared": true})
}
