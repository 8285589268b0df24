package sync

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".
)

// walJournalSizeLimit caps the WAL journal at 64 MiB.
const walJournalSizeLimit = 67108864

// snapshotTimeLayout is fixed-width UTC so MAX(updated_at) stays correct
// under SQLite's lexicographic text comparison.
const snapshotTimeLayout = "2006-01-02T15:04:05.000Z"

// SQLiteStore persists the reconciler's per-profile snapshot in an embedded
// SQLite database with WAL mode. Scans replace a profile's rows wholesale;
// the cached read path fuses the stored rows with fresh local state.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger

	snapshotStmts snapshotStatements
}

type snapshotStatements struct {
	deleteByProfile, insert, listByProfile, lastScanned, countByStatus *sql.Stmt
}

// NewStore opens the snapshot database at dbPath, applying migrations and
// preparing the repeated statements. Use ":memory:" for tests.
func NewStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	logger.Info("opening sync snapshot database", "path", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := setPragmas(context.Background(), db, logger); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(context.Background(), db, logger); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteStore{db: db, logger: logger}

	if err := s.prepareSnapshotStmts(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare statements: %w", err)
	}

	logger.Info("sync snapshot database ready", "path", dbPath)

	return s, nil
}

// setPragmas configures SQLite for WAL mode and safety.
func setPragmas(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	pragmas := []struct {
		sql  string
		desc string
	}{
		{"PRAGMA journal_mode = WAL", "WAL mode"},
		{"PRAGMA synchronous = FULL", "synchronous FULL"},
		{"PRAGMA foreign_keys = ON", "foreign keys"},
		{fmt.Sprintf("PRAGMA journal_size_limit = %d", walJournalSizeLimit), "journal size limit"},
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p.sql); err != nil {
			return fmt.Errorf("set pragma %s: %w", p.desc, err)
		}

		logger.Debug("pragma set", "pragma", p.desc)
	}

	return nil
}

// --- SQL query constants ---

const (
	sqlSnapshotColumns = `profile, source_key, sync_id, status, title, platform,
		video_id, created_at_ms, local_task_id, local_has_note, local_has_transcript,
		dify_note_document_id, dify_note_name,
		dify_transcript_document_id, dify_transcript_name,
		remote_has_note, remote_has_transcript,
		minio_bundle_exists, minio_tombstone_exists,
		bundle_sha256_local, bundle_sha256_remote,
		note_sha256_local, note_sha256_remote,
		transcript_sha256_local, transcript_sha256_remote, updated_at`

	sqlDeleteSnapshot = `DELETE FROM sync_items WHERE profile = ?`

	sqlInsertSnapshotItem = `INSERT INTO sync_items (` + sqlSnapshotColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	sqlListSnapshot = `SELECT ` + sqlSnapshotColumns +
		` FROM sync_items WHERE profile = ?`

	sqlLastScanned = `SELECT MAX(updated_at) FROM sync_items WHERE profile = ?`

	sqlCountByStatus = `SELECT status, COUNT(*) FROM sync_items
		WHERE profile = ? GROUP BY status`
)

// stmtDef maps a SQL string to the prepared statement pointer it should populate.
// Used by the generic prepare helper to eliminate repetitive error handling.
type stmtDef struct {
	dest **sql.Stmt
	sql  string
	name string
}

// prepareAll prepares a batch of statements, returning on first error.
func prepareAll(ctx context.Context, db *sql.DB, defs []stmtDef) error {
	for i := range defs {
		stmt, err := db.PrepareContext(ctx, defs[i].sql)
		if err != nil {
			return fmt.Errorf("prepare %s: %w", defs[i].name, err)
		}

		*defs[i].dest = stmt
	}

	return nil
}

func (s *SQLiteStore) prepareSnapshotStmts(ctx context.Context) error {
	return prepareAll(ctx, s.db, []stmtDef{
		{&s.snapshotStmts.deleteByProfile, sqlDeleteSnapshot, "deleteSnapshot"},
		{&s.snapshotStmts.insert, sqlInsertSnapshotItem, "insertSnapshotItem"},
		{&s.snapshotStmts.listByProfile, sqlListSnapshot, "listSnapshot"},
		{&s.snapshotStmts.lastScanned, sqlLastScanned, "lastScanned"},
		{&s.snapshotStmts.countByStatus, sqlCountByStatus, "countByStatus"},
	})
}

// --- Row helpers ---

// insertSnapshotArgs returns the argument slice for the insert statement.
// Blank strings and missing tri-state values are stored as NULL.
func insertSnapshotArgs(profile string, it *Item, updatedAt string) []any {
	return []any{
		profile, it.SourceKey, it.SyncID, string(it.Status),
		nullString(it.Title), nullString(it.Platform), nullString(it.VideoID),
		nullMs(it.CreatedAtMs), nullString(it.LocalTaskID),
		nullBool(it.LocalHasNote), nullBool(it.LocalHasTranscript),
		nullString(it.DifyNoteDocumentID), nullString(it.DifyNoteName),
		nullString(it.DifyTranscriptDocumentID), nullString(it.DifyTranscriptName),
		nullBool(it.RemoteHasNote), nullBool(it.RemoteHasTranscript),
		nullBool(it.BundleExists), nullBool(it.TombstoneExists),
		nullString(it.BundleSHALocal), nullString(it.BundleSHARemote),
		nullString(it.NoteSHALocal), nullString(it.NoteSHARemote),
		nullString(it.TranscriptSHALocal), nullString(it.TranscriptSHARemote),
		updatedAt,
	}
}

// scanSnapshotItem scans a full snapshot row into an Item, discarding the
// profile column and returning updated_at separately.
func scanSnapshotItem(rows *sql.Rows) (*Item, string, error) {
	var (
		it        Item
		profile   string
		status    string
		title     sql.NullString
		platform  sql.NullString
		videoID   sql.NullString
		createdAt sql.NullInt64
		taskID    sql.NullString

		localNote, localTranscript   sql.NullBool
		remoteNote, remoteTranscript sql.NullBool
		bundleExists, tombExists     sql.NullBool

		noteDocID, noteDocName             sql.NullString
		transcriptDocID, transcriptDocName sql.NullString

		bundleSHALocal, bundleSHARemote         sql.NullString
		noteSHALocal, noteSHARemote             sql.NullString
		transcriptSHALocal, transcriptSHARemote sql.NullString

		updatedAt string
	)

	err := rows.Scan(
		&profile, &it.SourceKey, &it.SyncID, &status, &title, &platform,
		&videoID, &createdAt, &taskID, &localNote, &localTranscript,
		&noteDocID, &noteDocName, &transcriptDocID, &transcriptDocName,
		&remoteNote, &remoteTranscript, &bundleExists, &tombExists,
		&bundleSHALocal, &bundleSHARemote,
		&noteSHALocal, &noteSHARemote,
		&transcriptSHALocal, &transcriptSHARemote, &updatedAt,
	)
	if err != nil {
		return nil, "", err
	}

	it.Status = Status(status)
	it.Title = title.String
	it.Platform = platform.String
	it.VideoID = videoID.String
	it.CreatedAtMs = createdAt.Int64
	it.LocalTaskID = taskID.String
	it.LocalHasNote = fromNullBool(localNote)
	it.LocalHasTranscript = fromNullBool(localTranscript)
	it.DifyNoteDocumentID = noteDocID.String
	it.DifyNoteName = noteDocName.String
	it.DifyTranscriptDocumentID = transcriptDocID.String
	it.DifyTranscriptName = transcriptDocName.String
	it.RemoteHasNote = fromNullBool(remoteNote)
	it.RemoteHasTranscript = fromNullBool(remoteTranscript)
	it.BundleExists = fromNullBool(bundleExists)
	it.TombstoneExists = fromNullBool(tombExists)
	it.BundleSHALocal = bundleSHALocal.String
	it.BundleSHARemote = bundleSHARemote.String
	it.NoteSHALocal = noteSHALocal.String
	it.NoteSHARemote = noteSHARemote.String
	it.TranscriptSHALocal = transcriptSHALocal.String
	it.TranscriptSHARemote = transcriptSHARemote.String

	return &it, updatedAt, nil
}

func nullString(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}

	return s
}

func nullMs(ms int64) any {
	if ms <= 0 {
		return nil
	}

	return ms
}

func nullBool(p *bool) any {
	if p == nil {
		return nil
	}

	return *p
}

func fromNullBool(v sql.NullBool) *bool {
	if !v.Valid {
		return nil
	}

	b := v.Bool

	return &b
}

// --- Snapshot operations ---

// ReplaceSnapshot atomically replaces the profile's snapshot with the given
// items. Rows without a source key or sync id cannot be joined on a later
// read and are skipped.
func (s *SQLiteStore) ReplaceSnapshot(ctx context.Context, profile string, items []Item) error {
	updatedAt := time.Now().UTC().Format(snapshotTimeLayout)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}

	if _, err := tx.StmtContext(ctx, s.snapshotStmts.deleteByProfile).ExecContext(ctx, profile); err != nil {
		rollbackErr := tx.Rollback()
		return fmt.Errorf("clear snapshot for %s: %w (rollback: %v)", profile, err, rollbackErr)
	}

	inserted := 0

	for i := range items {
		it := &items[i]
		if strings.TrimSpace(it.SourceKey) == "" || strings.TrimSpace(it.SyncID) == "" {
			continue
		}

		if _, err := tx.StmtContext(ctx, s.snapshotStmts.insert).ExecContext(ctx, insertSnapshotArgs(profile, it, updatedAt)...); err != nil {
			rollbackErr := tx.Rollback()
			return fmt.Errorf("insert snapshot row %s: %w (rollback: %v)", it.SourceKey, err, rollbackErr)
		}

		inserted++
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}

	s.logger.Debug("snapshot replaced", "profile", profile, "rows", inserted)

	return nil
}

// Snapshot returns the profile's stored rows plus the timestamp of the last
// scan, formatted as stored. The timestamp is "" when the snapshot is empty.
func (s *SQLiteStore) Snapshot(ctx context.Context, profile string) ([]Item, string, error) {
	rows, err := s.snapshotStmts.listByProfile.QueryContext(ctx, profile)
	if err != nil {
		return nil, "", fmt.Errorf("list snapshot for %s: %w", profile, err)
	}
	defer rows.Close()

	var (
		items       []Item
		lastScanned string
	)

	for rows.Next() {
		it, updatedAt, err := scanSnapshotItem(rows)
		if err != nil {
			return nil, "", fmt.Errorf("scan snapshot row: %w", err)
		}

		if updatedAt > lastScanned {
			lastScanned = updatedAt
		}

		items = append(items, *it)
	}

	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("iterate snapshot rows: %w", err)
	}

	return items, lastScanned, nil
}

// LastScannedAt returns the timestamp of the profile's last scan, or "" when
// no snapshot exists.
func (s *SQLiteStore) LastScannedAt(ctx context.Context, profile string) (string, error) {
	var last sql.NullString
	if err := s.snapshotStmts.lastScanned.QueryRowContext(ctx, profile).Scan(&last); err != nil {
		return "", fmt.Errorf("last scanned for %s: %w", profile, err)
	}

	return last.String, nil
}

// CountByStatus returns the profile's snapshot row counts grouped by status.
func (s *SQLiteStore) CountByStatus(ctx context.Context, profile string) (map[Status]int, error) {
	rows, err := s.snapshotStmts.countByStatus.QueryContext(ctx, profile)
	if err != nil {
		return nil, fmt.Errorf("count snapshot for %s: %w", profile, err)
	}
	defer rows.Close()

	counts := map[Status]int{}

	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan snapshot count: %w", err)
		}

		counts[Status(status)] = n
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot counts: %w", err)
	}

	return counts, nil
}

// Close closes the prepared statements and the database.
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing sync snapshot database")

	stmts := []*sql.Stmt{
		s.snapshotStmts.deleteByProfile, s.snapshotStmts.insert,
		s.snapshotStmts.listByProfile, s.snapshotStmts.lastScanned,
		s.snapshotStmts.countByStatus,
	}
	for _, stmt := range stmts {
		if stmt != nil {
			if err := stmt.Close(); err != nil {
				s.logger.Error("error closing statement", "error", err)
			}
		}
	}

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}

	return nil
}
