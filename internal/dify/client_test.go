package dify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testConfig returns a Config pointing at the given test server with both
// API keys set.
func testConfig(baseURL string) Config {
	return Config{
		BaseURL:       baseURL,
		DatasetID:     "ds-main",
		ServiceAPIKey: "svc-key",
		AppAPIKey:     "app-key",
	}
}

func TestListDocuments_ClampsPageAndLimit(t *testing.T) {
	var gotPage, gotLimit string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/datasets/ds-main/documents", r.URL.Path)
		assert.Equal(t, "Bearer svc-key", r.Header.Get("Authorization"))

		gotPage = r.URL.Query().Get("page")
		gotLimit = r.URL.Query().Get("limit")

		_, _ = w.Write([]byte(`{"data":[{"id":"d1","name":"Doc One"}],"has_more":false,"total":1}`))
	}))
	defer srv.Close()

	k := NewKnowledgeClient(testConfig(srv.URL), nil, nil)

	tests := []struct {
		name      string
		page      int
		limit     int
		wantPage  string
		wantLimit string
	}{
		{"zero values get defaults", 0, 0, "1", "20"},
		{"negative page becomes first", -3, 5, "1", "5"},
		{"limit capped at 100", 1, 500, "1", "100"},
		{"limit floored at 1", 2, -1, "2", "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := k.ListDocuments(context.Background(), "", tt.page, tt.limit)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPage, gotPage)
			assert.Equal(t, tt.wantLimit, gotLimit)
			require.Len(t, resp.Data, 1)
			assert.Equal(t, "d1", resp.Data[0].ID)
			assert.Equal(t, "Doc One", resp.Data[0].Name)
		})
	}
}

func TestListDocuments_MissingCredentials(t *testing.T) {
	// No HTTP server: both checks must fail before any request is made.
	noKey := Config{BaseURL: "http://127.0.0.1:0", DatasetID: "ds"}
	_, err := NewKnowledgeClient(noKey, nil, nil).ListDocuments(context.Background(), "", 1, 20)
	assert.ErrorIs(t, err, ErrMissingServiceKey)

	noDataset := Config{BaseURL: "http://127.0.0.1:0", ServiceAPIKey: "svc"}
	_, err = NewKnowledgeClient(noDataset, nil, nil).ListDocuments(context.Background(), "", 1, 20)
	assert.ErrorIs(t, err, ErrMissingDataset)
}

func TestListDocuments_DatasetOverride(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/datasets/ds-other/documents", r.URL.Path)
		_, _ = w.Write([]byte(`{"data":[],"has_more":false}`))
	}))
	defer srv.Close()

	k := NewKnowledgeClient(testConfig(srv.URL), nil, nil)

	_, err := k.ListDocuments(context.Background(), "ds-other", 1, 20)
	require.NoError(t, err)
}

func TestListAllDocuments_Paginates(t *testing.T) {
	var pages []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		pages = append(pages, page)
		assert.Equal(t, "100", r.URL.Query().Get("limit"))

		if page == "1" {
			_, _ = w.Write([]byte(`{"data":[{"id":"d1","name":"a"},{"id":"d2","name":"b"}],"has_more":true}`))
			return
		}

		_, _ = w.Write([]byte(`{"data":[{"id":"d3","name":"c"}],"has_more":false}`))
	}))
	defer srv.Close()

	k := NewKnowledgeClient(testConfig(srv.URL), nil, nil)

	docs, err := k.ListAllDocuments(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, pages)
	require.Len(t, docs, 3)
	assert.Equal(t, "d3", docs[2].ID)
}

func TestListAllDocuments_StopsAtPageCap(t *testing.T) {
	var calls int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		_, _ = w.Write([]byte(`{"data":[{"id":"d","name":"loop"}],"has_more":true}`))
	}))
	defer srv.Close()

	k := NewKnowledgeClient(testConfig(srv.URL), nil, nil)

	docs, err := k.ListAllDocuments(context.Background(), "")
	require.NoError(t, err)

	// A server that always reports has_more must not trap the walk.
	assert.Equal(t, maxListPages, calls)
	assert.Len(t, docs, maxListPages)
}

func TestFindDocumentByName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "1" {
			_, _ = w.Write([]byte(`{"data":[{"id":"d1","name":"Other Doc"}],"has_more":true}`))
			return
		}

		_, _ = w.Write([]byte(`{"data":[{"id":"d2","name":"  Target Doc  "}],"has_more":false}`))
	}))
	defer srv.Close()

	k := NewKnowledgeClient(testConfig(srv.URL), nil, nil)

	doc, err := k.FindDocumentByName(context.Background(), "", "Target Doc")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "d2", doc.ID)

	doc, err = k.FindDocumentByName(context.Background(), "", "No Such Doc")
	require.NoError(t, err)
	assert.Nil(t, doc)

	// Blank names never hit the network.
	doc, err = k.FindDocumentByName(context.Background(), "", "   ")
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestRetrieve_Payload(t *testing.T) {
	var got map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/datasets/ds-main/retrieve", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		_, _ = w.Write([]byte(`{"records":[{"score":0.92,"segment":{"content":"hit"}}]}`))
	}))
	defer srv.Close()

	k := NewKnowledgeClient(testConfig(srv.URL), nil, nil)

	resp, err := k.Retrieve(context.Background(), "", "what videos", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, "what videos", got["query"])
	assert.Equal(t, float64(5), got["top_k"])
	_, hasThreshold := got["score_threshold"]
	assert.False(t, hasThreshold)
	require.Len(t, resp.Records, 1)
	assert.InDelta(t, 0.92, resp.Records[0].Score, 1e-9)

	threshold := 0.5
	_, err = k.Retrieve(context.Background(), "", "q", 3, &threshold)
	require.NoError(t, err)
	assert.Equal(t, float64(3), got["top_k"])
	assert.Equal(t, 0.5, got["score_threshold"])
}

func TestCreateDocumentByText_Payload(t *testing.T) {
	var got map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/datasets/ds-main/document/create-by-text", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		_, _ = w.Write([]byte(`{"document":{"id":"doc-9","name":"n"},"batch":"batch-1"}`))
	}))
	defer srv.Close()

	k := NewKnowledgeClient(testConfig(srv.URL), nil, nil)

	resp, err := k.CreateDocumentByText(context.Background(), "", "n", "body text", "")
	require.NoError(t, err)
	assert.Equal(t, "n", got["name"])
	assert.Equal(t, "body text", got["text"])
	assert.Equal(t, DefaultDocLanguage, got["doc_language"])
	assert.Equal(t, "high_quality", got["indexing_technique"])
	assert.Equal(t, "doc-9", resp.Document.ID)
	assert.Equal(t, "batch-1", resp.Batch)
}

func TestUpdateDocumentByText_Path(t *testing.T) {
	var got map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/datasets/ds-main/documents/doc-7/update-by-text", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		_, _ = w.Write([]byte(`{"document":{"id":"doc-7","name":"n2"},"batch":"batch-2"}`))
	}))
	defer srv.Close()

	k := NewKnowledgeClient(testConfig(srv.URL), nil, nil)

	resp, err := k.UpdateDocumentByText(context.Background(), "", "doc-7", "n2", "new text", "English")
	require.NoError(t, err)
	assert.Equal(t, "English", got["doc_language"])
	_, hasIndexing := got["indexing_technique"]
	assert.False(t, hasIndexing)
	assert.Equal(t, "doc-7", resp.Document.ID)
}

func TestDeleteDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/v1/datasets/ds-main/documents/doc-3", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	k := NewKnowledgeClient(testConfig(srv.URL), nil, nil)

	require.NoError(t, k.DeleteDocument(context.Background(), "", "doc-3"))
}

func TestBatchIndexingStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/datasets/ds-main/documents/batch-1/indexing-status", r.URL.Path)
		_, _ = w.Write([]byte(`{"data":[{"id":"doc-1","indexing_status":"error","error":"embedding failed"}]}`))
	}))
	defer srv.Close()

	k := NewKnowledgeClient(testConfig(srv.URL), nil, nil)

	resp, err := k.BatchIndexingStatus(context.Background(), "", "batch-1")
	require.NoError(t, err)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "error", resp.Data[0].IndexingStatus)
	assert.Equal(t, "embedding failed", resp.Data[0].Error)
}

func TestAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":"dataset_not_found"}`))
	}))
	defer srv.Close()

	k := NewKnowledgeClient(testConfig(srv.URL), nil, nil)

	_, err := k.ListDocuments(context.Background(), "", 1, 20)
	require.Error(t, err)

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "dataset_not_found")
	assert.Contains(t, err.Error(), "Dify API error 404")
}

func TestAPIError_TruncatesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(strings.Repeat("x", 5000)))
	}))
	defer srv.Close()

	k := NewKnowledgeClient(testConfig(srv.URL), nil, nil)

	_, err := k.ListDocuments(context.Background(), "", 1, 20)

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Len(t, apiErr.Body, maxBodyPreview)
}

func TestNonJSONResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>proxy error</html>"))
	}))
	defer srv.Close()

	k := NewKnowledgeClient(testConfig(srv.URL), nil, nil)

	_, err := k.ListDocuments(context.Background(), "", 1, 20)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not JSON")
	assert.Contains(t, err.Error(), "proxy error")
}

func TestChat(t *testing.T) {
	var got map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat-messages", r.URL.Path)
		assert.Equal(t, "Bearer app-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		_, _ = w.Write([]byte(`{"message_id":"m1","conversation_id":"c1","answer":"hello","created_at":123}`))
	}))
	defer srv.Close()

	cc := NewChatClient(testConfig(srv.URL), nil, nil)

	resp, err := cc.Chat(context.Background(), ChatRequest{Query: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", got["query"])
	assert.Equal(t, "blocking", got["response_mode"])
	assert.Equal(t, "bilinote", got["user"])
	assert.Equal(t, map[string]any{}, got["inputs"])
	_, hasConversation := got["conversation_id"]
	assert.False(t, hasConversation)
	assert.Equal(t, "hello", resp.Answer)
	assert.Equal(t, "c1", resp.ConversationID)

	_, err = cc.Chat(context.Background(), ChatRequest{Query: "hi again", ConversationID: "c1", User: "alice"})
	require.NoError(t, err)
	assert.Equal(t, "c1", got["conversation_id"])
	assert.Equal(t, "alice", got["user"])
}

func TestChat_RequiresAppKey(t *testing.T) {
	cfg := Config{BaseURL: "http://127.0.0.1:0", ServiceAPIKey: "svc"}

	_, err := NewChatClient(cfg, nil, nil).Chat(context.Background(), ChatRequest{Query: "hi"})
	assert.ErrorIs(t, err, ErrMissingAppKey)
}

func TestRequestError_WrapsTransport(t *testing.T) {
	// Closed server: the request fails before any status is received.
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	k := NewKnowledgeClient(testConfig(srv.URL), nil, nil)

	_, err := k.ListDocuments(context.Background(), "", 1, 20)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Dify request failed")

	var apiErr *Error
	assert.False(t, errors.As(err, &apiErr), fmt.Sprintf("transport errors must not be API errors: %v", err))
}
