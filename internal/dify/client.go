package dify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Knowledge-dataset pagination bounds. Dify rejects limits above 100;
// maxListPages keeps a misbehaving server from trapping list-all calls.
const (
	defaultListLimit = 20
	maxListLimit     = 100
	maxListPages     = 200
)

// Client is the low-level HTTP client shared by KnowledgeClient and
// ChatClient. It builds v1 URLs, attaches bearer auth, and decodes JSON
// responses. Errors with status >= 400 come back as *Error.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Dify API client. A nil httpClient gets a fresh client
// with the configured per-call timeout; a nil logger falls back to
// slog.Default().
func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger) *Client {
	cfg = cfg.Normalized()

	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Config returns the resolved configuration the client was built with.
func (c *Client) Config() Config {
	return c.cfg
}

// do executes one API request and decodes the JSON response into out.
// out may be nil (or the body empty) when the caller ignores the response.
func (c *Client) do(ctx context.Context, method, path, apiKey string, query url.Values, body, out any) error {
	reqURL := c.cfg.V1BaseURL() + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var reqBody io.Reader

	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}

		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("Dify request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return &Error{StatusCode: resp.StatusCode, Body: bodyPreview(raw)}
	}

	c.logger.Debug("dify request succeeded",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
	)

	if out == nil || len(raw) == 0 {
		return nil
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("Dify response is not JSON: %s", bodyPreview(raw))
	}

	return nil
}

// Document is a knowledge-dataset document as returned by list, create, and
// update calls. Only the fields the sync layer consumes are decoded.
type Document struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	IndexingStatus string `json:"indexing_status"`
	Error          string `json:"error"`
	WordCount      int    `json:"word_count"`
	CreatedAt      int64  `json:"created_at"`
}

// DocumentList is one page of a dataset's documents.
type DocumentList struct {
	Data    []Document `json:"data"`
	HasMore bool       `json:"has_more"`
	Total   int        `json:"total"`
	Page    int        `json:"page"`
	Limit   int        `json:"limit"`
}

// DocumentResponse is the result of create-by-text and update-by-text.
// Batch identifies the indexing run for status polling.
type DocumentResponse struct {
	Document Document `json:"document"`
	Batch    string   `json:"batch"`
}

// RetrieveRecord is one retrieval hit. Segment is kept loosely typed; its
// shape varies with the dataset's chunking settings.
type RetrieveRecord struct {
	Score   float64        `json:"score"`
	Segment map[string]any `json:"segment"`
}

// RetrieveResponse is the result of a dataset retrieval query.
type RetrieveResponse struct {
	Records []RetrieveRecord `json:"records"`
}

// IndexingStatus describes one document within an indexing batch.
type IndexingStatus struct {
	ID                string `json:"id"`
	IndexingStatus    string `json:"indexing_status"`
	Error             string `json:"error"`
	CompletedSegments int    `json:"completed_segments"`
	TotalSegments     int    `json:"total_segments"`
}

// IndexingStatusResponse is the result of a batch indexing-status poll.
type IndexingStatusResponse struct {
	Data []IndexingStatus `json:"data"`
}

// KnowledgeClient calls the dataset (knowledge) endpoints. All operations
// require the service API key; dataset ids may be overridden per call and
// otherwise fall back to the configured shared dataset.
type KnowledgeClient struct {
	c *Client
}

// NewKnowledgeClient creates a knowledge-dataset client.
func NewKnowledgeClient(cfg Config, httpClient *http.Client, logger *slog.Logger) *KnowledgeClient {
	return &KnowledgeClient{c: NewClient(cfg, httpClient, logger)}
}

// Config returns the resolved configuration the client was built with.
func (k *KnowledgeClient) Config() Config {
	return k.c.cfg
}

// dataset resolves the target dataset id: the per-call override when given,
// otherwise the configured shared dataset.
func (k *KnowledgeClient) dataset(override string) (string, error) {
	ds := strings.TrimSpace(override)
	if ds == "" {
		ds = strings.TrimSpace(k.c.cfg.DatasetID)
	}

	if ds == "" {
		return "", ErrMissingDataset
	}

	return ds, nil
}

func (k *KnowledgeClient) serviceKey() (string, error) {
	if k.c.cfg.ServiceAPIKey == "" {
		return "", ErrMissingServiceKey
	}

	return k.c.cfg.ServiceAPIKey, nil
}

// ListDocuments fetches one page of a dataset's documents. Pages start at 1;
// the limit is clamped to 1..100 with 20 as the default.
func (k *KnowledgeClient) ListDocuments(ctx context.Context, datasetID string, page, limit int) (*DocumentList, error) {
	dataset, err := k.dataset(datasetID)
	if err != nil {
		return nil, err
	}

	key, err := k.serviceKey()
	if err != nil {
		return nil, err
	}

	if page < 1 {
		page = 1
	}

	if limit == 0 {
		limit = defaultListLimit
	}

	if limit < 1 {
		limit = 1
	}

	if limit > maxListLimit {
		limit = maxListLimit
	}

	query := url.Values{
		"page":  []string{strconv.Itoa(page)},
		"limit": []string{strconv.Itoa(limit)},
	}

	var out DocumentList
	if err := k.c.do(ctx, http.MethodGet, "/datasets/"+dataset+"/documents", key, query, nil, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// ListAllDocuments walks every page of a dataset (100 documents per page),
// stopping when the server reports no more pages or after maxListPages.
func (k *KnowledgeClient) ListAllDocuments(ctx context.Context, datasetID string) ([]Document, error) {
	var docs []Document

	for page := 1; page <= maxListPages; page++ {
		resp, err := k.ListDocuments(ctx, datasetID, page, maxListLimit)
		if err != nil {
			return nil, err
		}

		docs = append(docs, resp.Data...)

		if !resp.HasMore {
			break
		}
	}

	return docs, nil
}

// FindDocumentByName returns the first document whose trimmed name equals
// the trimmed target, or nil when no page contains a match.
func (k *KnowledgeClient) FindDocumentByName(ctx context.Context, datasetID, name string) (*Document, error) {
	target := strings.TrimSpace(name)
	if target == "" {
		return nil, nil
	}

	for page := 1; page <= maxListPages; page++ {
		resp, err := k.ListDocuments(ctx, datasetID, page, maxListLimit)
		if err != nil {
			return nil, err
		}

		for i := range resp.Data {
			if strings.TrimSpace(resp.Data[i].Name) == target {
				return &resp.Data[i], nil
			}
		}

		if !resp.HasMore {
			break
		}
	}

	return nil, nil
}

// Retrieve runs a retrieval query against a dataset. topK below 1 is raised
// to the server default of 5; a nil scoreThreshold leaves filtering to the
// dataset's own settings.
func (k *KnowledgeClient) Retrieve(ctx context.Context, datasetID, query string, topK int, scoreThreshold *float64) (*RetrieveResponse, error) {
	dataset, err := k.dataset(datasetID)
	if err != nil {
		return nil, err
	}

	key, err := k.serviceKey()
	if err != nil {
		return nil, err
	}

	if topK < 1 {
		topK = 5
	}

	payload := map[string]any{
		"query": query,
		"top_k": topK,
	}
	if scoreThreshold != nil {
		payload["score_threshold"] = *scoreThreshold
	}

	var out RetrieveResponse
	if err := k.c.do(ctx, http.MethodPost, "/datasets/"+dataset+"/retrieve", key, nil, payload, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// CreateDocumentByText creates a dataset document from plain text. A blank
// docLanguage falls back to DefaultDocLanguage. The configured
// indexing_technique is always sent; Dify v1.11+ requires it.
func (k *KnowledgeClient) CreateDocumentByText(ctx context.Context, datasetID, name, text, docLanguage string) (*DocumentResponse, error) {
	dataset, err := k.dataset(datasetID)
	if err != nil {
		return nil, err
	}

	key, err := k.serviceKey()
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(docLanguage) == "" {
		docLanguage = DefaultDocLanguage
	}

	payload := map[string]any{
		"name":               name,
		"text":               text,
		"doc_language":       docLanguage,
		"indexing_technique": k.c.cfg.IndexingTechnique,
	}

	var out DocumentResponse
	if err := k.c.do(ctx, http.MethodPost, "/datasets/"+dataset+"/document/create-by-text", key, nil, payload, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// UpdateDocumentByText replaces an existing document's name and text.
func (k *KnowledgeClient) UpdateDocumentByText(ctx context.Context, datasetID, documentID, name, text, docLanguage string) (*DocumentResponse, error) {
	dataset, err := k.dataset(datasetID)
	if err != nil {
		return nil, err
	}

	key, err := k.serviceKey()
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(docLanguage) == "" {
		docLanguage = DefaultDocLanguage
	}

	payload := map[string]any{
		"name":         name,
		"text":         text,
		"doc_language": docLanguage,
	}

	var out DocumentResponse
	if err := k.c.do(ctx, http.MethodPost, "/datasets/"+dataset+"/documents/"+documentID+"/update-by-text", key, nil, payload, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// DeleteDocument removes a document from a dataset.
func (k *KnowledgeClient) DeleteDocument(ctx context.Context, datasetID, documentID string) error {
	dataset, err := k.dataset(datasetID)
	if err != nil {
		return err
	}

	key, err := k.serviceKey()
	if err != nil {
		return err
	}

	return k.c.do(ctx, http.MethodDelete, "/datasets/"+dataset+"/documents/"+documentID, key, nil, nil, nil)
}

// BatchIndexingStatus polls the indexing status of a create/update batch.
func (k *KnowledgeClient) BatchIndexingStatus(ctx context.Context, datasetID, batch string) (*IndexingStatusResponse, error) {
	dataset, err := k.dataset(datasetID)
	if err != nil {
		return nil, err
	}

	key, err := k.serviceKey()
	if err != nil {
		return nil, err
	}

	var out IndexingStatusResponse
	if err := k.c.do(ctx, http.MethodGet, "/datasets/"+dataset+"/documents/"+batch+"/indexing-status", key, nil, nil, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// ChatRequest is one chat-messages call. Blank User falls back to the
// configured app user; blank ResponseMode falls back to "blocking".
type ChatRequest struct {
	Query          string
	ConversationID string
	User           string
	ResponseMode   string
	Inputs         map[string]any
}

// ChatResponse is a blocking-mode chat answer.
type ChatResponse struct {
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
	Answer         string `json:"answer"`
	CreatedAt      int64  `json:"created_at"`
}

// ChatClient calls the application chat endpoint. It requires the app API
// key rather than the service key.
type ChatClient struct {
	c *Client
}

// NewChatClient creates a chat client.
func NewChatClient(cfg Config, httpClient *http.Client, logger *slog.Logger) *ChatClient {
	return &ChatClient{c: NewClient(cfg, httpClient, logger)}
}

// Chat sends one chat message and returns the answer.
func (cc *ChatClient) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if cc.c.cfg.AppAPIKey == "" {
		return nil, ErrMissingAppKey
	}

	inputs := req.Inputs
	if inputs == nil {
		inputs = map[string]any{}
	}

	user := strings.TrimSpace(req.User)
	if user == "" {
		user = cc.c.cfg.AppUser
	}

	mode := strings.TrimSpace(req.ResponseMode)
	if mode == "" {
		mode = "blocking"
	}

	payload := map[string]any{
		"inputs":        inputs,
		"query":         req.Query,
		"response_mode": mode,
		"user":          user,
	}
	if req.ConversationID != "" {
		payload["conversation_id"] = req.ConversationID
	}

	var out ChatResponse
	if err := cc.c.do(ctx, http.MethodPost, "/chat-messages", cc.c.cfg.AppAPIKey, nil, payload, &out); err != nil {
		return nil, err
	}

	return &out, nil
}
