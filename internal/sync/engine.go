package sync

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	stdsync "sync"
	"time"

	"github.com/pxh52013145/VNote/internal/bundle"
	"github.com/pxh52013145/VNote/internal/config"
	"github.com/pxh52013145/VNote/internal/dify"
	"github.com/pxh52013145/VNote/internal/library"
	"github.com/pxh52013145/VNote/internal/objstore"
	"github.com/pxh52013145/VNote/internal/profile"
)

// --- Consumer-defined interfaces for the remote sides ---
// These decouple the engine from the concrete clients, following the
// "accept interfaces, return structs" Go convention, and give tests a
// seam that needs no running MinIO or RAG service.

// ObjectStore is the bundle/tombstone surface of the object store.
// Satisfied by *objstore.Store.
type ObjectStore interface {
	BundleKey(syncID string) string
	TombstoneKey(syncID string) string
	EnsureBucket(ctx context.Context, bucket string) error
	PutBytes(ctx context.Context, bucket, objectKey string, data []byte, contentType string, metadata map[string]string) error
	GetBytes(ctx context.Context, bucket, objectKey string) ([]byte, error)
	Stat(ctx context.Context, bucket, objectKey string) (*objstore.ObjectStat, error)
	Remove(ctx context.Context, bucket, objectKey string) error
}

// Knowledge is the dataset-document surface of the RAG service.
// Satisfied by *dify.KnowledgeClient.
type Knowledge interface {
	ListAllDocuments(ctx context.Context, datasetID string) ([]dify.Document, error)
	FindDocumentByName(ctx context.Context, datasetID, name string) (*dify.Document, error)
	CreateDocumentByText(ctx context.Context, datasetID, name, text, docLanguage string) (*dify.DocumentResponse, error)
	UpdateDocumentByText(ctx context.Context, datasetID, documentID, name, text, docLanguage string) (*dify.DocumentResponse, error)
	DeleteDocument(ctx context.Context, datasetID, documentID string) error
}

// EngineConfig holds the collaborators for NewEngine. The two constructor
// fields default to the real clients; tests swap in fakes.
type EngineConfig struct {
	Library  *library.Store // local note library (required)
	Snapshot *SQLiteStore   // scan snapshot persistence (optional; scans skip persisting when nil)
	Registry *profile.Registry
	Minio    config.MinioConfig
	Dify     dify.Config // environment defaults; the active profile overlays these
	Logger   *slog.Logger

	// Caps for the SRT entry derived during bundle builds. Zero values
	// fall back to the srt package defaults.
	MaxSRTChars   int
	MaxSRTSeconds int

	// LocalDirty reports whether the library changed since its last call,
	// letting cached reads reuse the previous local scan. Satisfied by
	// (*library.Watcher).ConsumeDirty. Nil means every cached read rescans.
	LocalDirty func() bool

	NewObjectStore func(cfg config.MinioConfig) (ObjectStore, error)
	NewKnowledge   func(cfg dify.Config) Knowledge
}

// Engine reconciles the local library, the object store, and the RAG
// datasets, and executes the sync verbs between them. Safe for concurrent
// use; every method resolves the active profile at call time so registry
// edits take effect without a restart.
type Engine struct {
	cfg    EngineConfig
	logger *slog.Logger

	// Last local scan, reused by cached reads while LocalDirty stays false.
	localMu   stdsync.Mutex
	lastLocal []library.Item
	haveLocal bool
}

// NewEngine wires an Engine. Only Library is mandatory; a nil Snapshot
// disables snapshot persistence and cached reads fall back to empty.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if cfg.NewObjectStore == nil {
		cfg.NewObjectStore = func(mc config.MinioConfig) (ObjectStore, error) {
			return objstore.New(mc)
		}
	}

	logger := cfg.Logger
	if cfg.NewKnowledge == nil {
		cfg.NewKnowledge = func(dc dify.Config) Knowledge {
			return dify.NewKnowledgeClient(dc, nil, logger)
		}
	}

	return &Engine{cfg: cfg, logger: cfg.Logger}
}

// activeDify resolves the active profile name and its effective RAG config
// (profile values overlaid on the environment defaults).
func (e *Engine) activeDify() (string, dify.Config) {
	if e.cfg.Registry == nil {
		return profile.DefaultProfile, e.cfg.Dify.Normalized()
	}

	name, pcfg, err := e.cfg.Registry.Get()
	if err != nil {
		e.logger.Warn("profile registry read failed, using environment defaults", "error", err)
		return profile.DefaultProfile, e.cfg.Dify.Normalized()
	}

	return name, pcfg.Overlay(e.cfg.Dify)
}

// connect opens the object store and resolves the profile bucket. The
// bucket is not created here: uploads ensure it themselves, and read-only
// verbs must not leave empty buckets behind. Missing settings surface as
// a config error so callers can distinguish "not set up" from "remote
// down".
func (e *Engine) connect(profileName string) (ObjectStore, string, error) {
	store, err := e.cfg.NewObjectStore(e.cfg.Minio)
	if err != nil {
		if errors.Is(err, objstore.ErrNotConfigured) {
			return nil, "", remoteConfigErr(err)
		}

		return nil, "", remoteFailure(err)
	}

	bucket := objstore.BucketNameForProfile(profileName, e.cfg.Minio.BucketPrefix)

	return store, bucket, nil
}

// scanStore is the tolerant variant used by reconcile scans: missing
// settings disable the store entirely, while a failed bucket ensure keeps
// it (stat probes can still answer against an existing bucket).
func (e *Engine) scanStore(ctx context.Context, profileName string) (ObjectStore, string) {
	store, err := e.cfg.NewObjectStore(e.cfg.Minio)
	if err != nil {
		if !errors.Is(err, objstore.ErrNotConfigured) {
			e.logger.Warn("object store unavailable for scan", "error", err)
		}

		return nil, ""
	}

	bucket := objstore.BucketNameForProfile(profileName, e.cfg.Minio.BucketPrefix)
	if err := store.EnsureBucket(ctx, bucket); err != nil {
		e.logger.Warn("ensure bucket failed, continuing with stat probes", "bucket", bucket, "error", err)
	}

	return store, bucket
}

// bucketName derives the profile bucket without opening a connection.
// Cached reads use it so a down object store still reports where items
// were pushed.
func (e *Engine) bucketName(profileName string) string {
	mc := e.cfg.Minio
	if strings.TrimSpace(mc.Endpoint) == "" || strings.TrimSpace(mc.AccessKey) == "" || strings.TrimSpace(mc.SecretKey) == "" {
		return ""
	}

	return objstore.BucketNameForProfile(profileName, mc.BucketPrefix)
}

// encodeDifyErrors serializes per-side RAG failures for the dify_error
// response field. Empty input yields "" so the field is omitted.
func encodeDifyErrors(errs map[string]string) string {
	if len(errs) == 0 {
		return ""
	}

	data, err := json.Marshal(errs)
	if err != nil {
		return ""
	}

	return string(data)
}

// contentHashes extracts the per-part digests a freshly built archive
// recorded in its own metadata. Unreadable archives yield empty strings;
// the digests are hints, not requirements.
func contentHashes(data []byte) (noteSHA, transcriptSHA string) {
	b, err := bundle.Parse(data)
	if err != nil {
		return "", ""
	}

	return b.Meta.ContentSHA["note_md"], b.Meta.ContentSHA["transcript_json"]
}

// mapString returns the trimmed string at key, or "" when the key is
// absent or holds a non-string.
func mapString(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}

func nowUnixMs() int64 {
	return time.Now().UnixMilli()
}

// scanLocal reads the library, reusing the previous result while LocalDirty
// reports no changes. A burst of cached reads between local edits then costs
// one directory walk. A failed scan drops the cache so the next call retries.
func (e *Engine) scanLocal() ([]library.Item, error) {
	e.localMu.Lock()
	defer e.localMu.Unlock()

	if e.haveLocal && e.cfg.LocalDirty != nil && !e.cfg.LocalDirty() {
		return e.lastLocal, nil
	}

	items, err := e.cfg.Library.Scan()
	if err != nil {
		e.lastLocal = nil
		e.haveLocal = false

		return nil, err
	}

	e.lastLocal = items
	e.haveLocal = true

	return items, nil
}
