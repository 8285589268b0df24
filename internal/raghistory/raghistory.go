// Package raghistory persists the RAG chat exchanges in a JSON file next
// to the profile registry, so conversation context survives restarts
// without a browser or database. Unlike the registry, which only vnote
// writes, the history file is shared with companion tooling, so every
// read-modify-write holds a cross-process advisory lock in addition to
// the in-process mutex.
package raghistory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/renameio/v2"
	"github.com/google/uuid"

	"github.com/pxh52013145/VNote/internal/config"
)

// historyFileName is the document's file name inside the config dir.
const historyFileName = "rag_history.json"

// maxEntries caps the stored history; appends beyond it drop the oldest
// entries first.
const maxEntries = 500

// lockTimeout bounds how long an operation waits for the cross-process
// lock before giving up.
const lockTimeout = 3 * time.Second

// ErrInvalid rejects malformed entries. Use errors.Is to classify.
var ErrInvalid = errors.New("raghistory: invalid entry")

// Entry is one chat message. ConversationID groups the messages of one
// RAG conversation; entries without one stand alone.
type Entry struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id,omitempty"`
	Role           string `json:"role"`
	Content        string `json:"content"`
	CreatedAt      string `json:"created_at"`
}

// Store reads and writes the history file. Safe for concurrent use.
type Store struct {
	path   string
	logger *slog.Logger

	mu sync.Mutex
}

// NewStore creates a store persisted at path. A nil logger falls back to
// slog.Default().
func NewStore(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{path: path, logger: logger}
}

// DefaultPath returns <config-dir>/rag_history.json.
func DefaultPath() (string, error) {
	dir := config.DefaultConfigDir()
	if dir == "" {
		return "", errors.New("resolving config dir: home directory unknown")
	}

	return filepath.Join(dir, historyFileName), nil
}

// Path returns the history file location.
func (s *Store) Path() string {
	return s.path
}

// Append stores one entry and returns it with its generated fields filled:
// a fresh id when none was given and the current UTC time when CreatedAt
// was empty. The history keeps at most maxEntries, newest retained.
func (s *Store) Append(e Entry) (Entry, error) {
	e.Role = strings.TrimSpace(e.Role)
	if e.Role == "" {
		return Entry{}, fmt.Errorf("%w: missing role", ErrInvalid)
	}

	if strings.TrimSpace(e.ID) == "" {
		e.ID = uuid.NewString()
	}
	if strings.TrimSpace(e.CreatedAt) == "" {
		e.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	e.ConversationID = strings.TrimSpace(e.ConversationID)

	err := s.withLock(func() error {
		entries := s.load()
		entries = append(entries, e)
		if len(entries) > maxEntries {
			entries = entries[len(entries)-maxEntries:]
		}

		return s.save(entries)
	})
	if err != nil {
		return Entry{}, err
	}

	return e, nil
}

// List returns the stored entries, oldest first.
func (s *Store) List() ([]Entry, error) {
	var entries []Entry
	err := s.withLock(func() error {
		entries = s.load()
		return nil
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}

// Conversation returns the entries of one conversation, oldest first.
func (s *Store) Conversation(conversationID string) ([]Entry, error) {
	want := strings.TrimSpace(conversationID)
	if want == "" {
		return nil, fmt.Errorf("%w: missing conversation id", ErrInvalid)
	}

	all, err := s.List()
	if err != nil {
		return nil, err
	}

	matched := []Entry{}
	for _, e := range all {
		if e.ConversationID == want {
			matched = append(matched, e)
		}
	}

	return matched, nil
}

// Clear removes every entry.
func (s *Store) Clear() error {
	return s.withLock(func() error {
		return s.save([]Entry{})
	})
}

// withLock serializes a read-modify-write against both other goroutines
// and other processes. The advisory lock lives in a sibling .lock file so
// the atomic rename of the document itself never invalidates it.
func (s *Store) withLock(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()

	lock := flock.New(s.path + ".lock")
	locked, err := lock.TryLockContext(ctx, 25*time.Millisecond)
	if err != nil {
		return fmt.Errorf("acquiring history lock: %w", err)
	}
	if !locked {
		return errors.New("another process holds the history lock")
	}
	defer func() { _ = lock.Unlock() }()

	return fn()
}

// load reads the entry array. A missing file yields an empty history; an
// unreadable or malformed file is treated as empty rather than blocking
// every history operation.
func (s *Store) load() []Entry {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("reading RAG history", slog.String("path", s.path), slog.String("error", err.Error()))
		}

		return []Entry{}
	}

	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		s.logger.Warn("RAG history is not valid JSON, starting empty", slog.String("error", err.Error()))
		return []Entry{}
	}

	return entries
}

// save writes the entry array atomically with stable formatting.
func (s *Store) save(entries []Entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding RAG history: %w", err)
	}

	data = append(data, '\n')

	if err := renameio.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("writing RAG history: %w", err)
	}

	return nil
}
