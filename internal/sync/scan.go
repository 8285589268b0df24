package sync

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/pxh52013145/VNote/internal/bundle"
	"github.com/pxh52013145/VNote/internal/dify"
	"github.com/pxh52013145/VNote/internal/identity"
	"github.com/pxh52013145/VNote/internal/library"
	"github.com/pxh52013145/VNote/internal/objstore"
)

// remoteDoc is one joinable dataset document: the identity parsed from its
// name tag plus the document coordinates.
type remoteDoc struct {
	Title       string
	Platform    string
	VideoID     string
	CreatedAtMs int64
	SourceKey   string
	SyncID      string
	DocumentID  string
	Name        string
}

// legacyDoc is a dataset document whose name tag predates source keys (no
// timestamp). It cannot be joined to local files or bundles.
type legacyDoc struct {
	Kind       string // "note" or "transcript"
	Title      string
	Platform   string
	VideoID    string
	DocumentID string
	Name       string
}

// Scan reconciles all three sides and returns the classified items, newest
// first. The result is also persisted as the profile's snapshot so cached
// reads and the status command can answer without touching the remotes.
//
// Remote sides degrade independently: without a service key or dataset ids
// the RAG side is skipped, and without object-store settings the bundle and
// tombstone hints stay unknown. Only a failing dataset listing aborts the
// scan; the object store never does.
func (e *Engine) Scan(ctx context.Context) (*ScanResult, error) {
	profileName, dcfg := e.activeDify()
	noteDS := dcfg.NoteDataset()
	transcriptDS := dcfg.TranscriptDataset()

	e.logger.Info("sync scan starting",
		"profile", profileName,
		"note_dataset", noteDS,
		"transcript_dataset", transcriptDS,
	)

	localItems, err := e.cfg.Library.Scan()
	if err != nil {
		return nil, fmt.Errorf("scanning library: %w", err)
	}

	localBySource := make(map[string]*library.Item, len(localItems))
	for i := range localItems {
		if localItems[i].SourceKey != "" {
			localBySource[localItems[i].SourceKey] = &localItems[i]
		}
	}

	remoteNotes := map[string]remoteDoc{}
	remoteTranscripts := map[string]remoteDoc{}
	var legacy []legacyDoc

	if dcfg.ServiceAPIKey != "" && (noteDS != "" || transcriptDS != "") {
		kc := e.cfg.NewKnowledge(dcfg)

		var noteDocs, transcriptDocs []dify.Document
		g, gctx := errgroup.WithContext(ctx)
		if noteDS != "" {
			g.Go(func() error {
				docs, err := kc.ListAllDocuments(gctx, noteDS)
				if err != nil {
					return err
				}
				noteDocs = docs

				return nil
			})
		}
		if transcriptDS != "" {
			g.Go(func() error {
				docs, err := kc.ListAllDocuments(gctx, transcriptDS)
				if err != nil {
					return err
				}
				transcriptDocs = docs

				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, remoteFailure(err)
		}

		var noteLegacy, transcriptLegacy []legacyDoc
		remoteNotes, noteLegacy = indexRemoteDocs(noteDocs, "note", "(transcript)")
		remoteTranscripts, transcriptLegacy = indexRemoteDocs(transcriptDocs, "transcript", "(note)")
		legacy = append(noteLegacy, transcriptLegacy...)
	}

	store, bucket := e.scanStore(ctx, profileName)

	keys := make([]string, 0, len(localBySource)+len(remoteNotes)+len(remoteTranscripts))
	seen := make(map[string]struct{})
	for _, m := range []map[string]remoteDoc{remoteNotes, remoteTranscripts} {
		for sk := range m {
			if _, ok := seen[sk]; !ok {
				seen[sk] = struct{}{}
				keys = append(keys, sk)
			}
		}
	}
	for sk := range localBySource {
		if _, ok := seen[sk]; !ok {
			seen[sk] = struct{}{}
			keys = append(keys, sk)
		}
	}
	sort.Strings(keys)

	items := make([]Item, 0, len(keys)+len(legacy))
	for _, sk := range keys {
		var rn, rt *remoteDoc
		if d, ok := remoteNotes[sk]; ok {
			rn = &d
		}
		if d, ok := remoteTranscripts[sk]; ok {
			rt = &d
		}

		items = append(items, e.buildScanRow(ctx, sk, localBySource[sk], rn, rt, store, bucket))
	}

	for _, d := range legacy {
		row := Item{
			Status:   StatusDifyOnlyLegacy,
			Title:    d.Title,
			Platform: d.Platform,
			VideoID:  d.VideoID,
		}
		switch d.Kind {
		case "note":
			row.DifyNoteDocumentID = d.DocumentID
			row.DifyNoteName = d.Name
		case "transcript":
			row.DifyTranscriptDocumentID = d.DocumentID
			row.DifyTranscriptName = d.Name
		}

		items = append(items, row)
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAtMs > items[j].CreatedAtMs
	})

	if e.cfg.Snapshot != nil {
		if err := e.cfg.Snapshot.ReplaceSnapshot(ctx, profileName, items); err != nil {
			e.logger.Warn("persisting scan snapshot failed", "profile", profileName, "error", err)
		}
	}

	e.logger.Info("sync scan complete",
		"profile", profileName,
		"items", len(items),
		"local", len(localBySource),
		"remote_notes", len(remoteNotes),
		"remote_transcripts", len(remoteTranscripts),
		"legacy", len(legacy),
	)

	return &ScanResult{
		Profile:             profileName,
		DifyBaseURL:         dcfg.BaseURL,
		NoteDatasetID:       noteDS,
		TranscriptDatasetID: transcriptDS,
		MinioBucket:         bucket,
		Items:               items,
	}, nil
}

// indexRemoteDocs splits one dataset's documents into joinable rows and
// legacy rows. Documents whose lowercased name contains excludeTag are
// skipped: when both kinds share a dataset, the name suffix keeps them
// apart. Documents with no parsable name tag are ignored entirely.
func indexRemoteDocs(docs []dify.Document, kind, excludeTag string) (map[string]remoteDoc, []legacyDoc) {
	bySource := make(map[string]remoteDoc)
	var legacy []legacyDoc

	for _, d := range docs {
		name := strings.TrimSpace(d.Name)
		docID := strings.TrimSpace(d.ID)
		if name == "" || docID == "" {
			continue
		}
		if strings.Contains(strings.ToLower(name), excludeTag) {
			continue
		}

		tag, ok := dify.ParseSyncTag(name)
		if !ok {
			continue
		}

		title := tag.Title
		if title == "" {
			title = name
		}

		if tag.CreatedAtMs == nil {
			legacy = append(legacy, legacyDoc{
				Kind:       kind,
				Title:      title,
				Platform:   tag.Platform,
				VideoID:    tag.VideoID,
				DocumentID: docID,
				Name:       name,
			})

			continue
		}

		sk := identity.MakeSourceKey(tag.Platform, tag.VideoID, *tag.CreatedAtMs)
		bySource[sk] = remoteDoc{
			Title:       title,
			Platform:    tag.Platform,
			VideoID:     tag.VideoID,
			CreatedAtMs: *tag.CreatedAtMs,
			SourceKey:   sk,
			SyncID:      identity.ComputeSyncID(sk),
			DocumentID:  docID,
			Name:        name,
		}
	}

	return bySource, legacy
}

// buildScanRow joins one source key across the three sides and classifies
// it. The object-store probes are best-effort: a failed stat leaves the
// corresponding hint nil rather than failing the scan.
func (e *Engine) buildScanRow(ctx context.Context, sourceKey string, local *library.Item, remoteNote, remoteTranscript *remoteDoc, store ObjectStore, bucket string) Item {
	syncID := identity.ComputeSyncID(sourceKey)

	row := Item{SourceKey: sourceKey, SyncID: syncID}

	// Identity fields: the local copy wins whenever it exists, even when
	// blank; remote names are parses of a display string, not the source
	// of truth.
	if local != nil {
		row.Title = local.Title
		row.Platform = local.Platform
		row.VideoID = local.VideoID
		row.CreatedAtMs = local.CreatedAtMs
		row.LocalTaskID = local.TaskID
	} else if remoteNote != nil || remoteTranscript != nil {
		rd := remoteNote
		if rd == nil {
			rd = remoteTranscript
		}
		row.Title = rd.Title
		row.Platform = rd.Platform
		row.VideoID = rd.VideoID
		row.CreatedAtMs = rd.CreatedAtMs
	}

	facts := Facts{
		LocalExists:         local != nil,
		RemoteHasNote:       remoteNote != nil,
		RemoteHasTranscript: remoteTranscript != nil,
	}

	if local != nil {
		facts.LocalHasNote, facts.LocalHasTranscript = e.localFlags(local)
		row.LocalHasNote = boolPtr(facts.LocalHasNote)
		row.LocalHasTranscript = boolPtr(facts.LocalHasTranscript)

		if facts.LocalHasNote || facts.LocalHasTranscript {
			row.NoteSHALocal, row.TranscriptSHALocal, row.BundleSHALocal =
				e.localHashes(local, sourceKey, syncID, facts.LocalHasNote, facts.LocalHasTranscript)
		}
	}

	if remoteNote != nil {
		row.DifyNoteDocumentID = remoteNote.DocumentID
		row.DifyNoteName = remoteNote.Name
	}
	if remoteTranscript != nil {
		row.DifyTranscriptDocumentID = remoteTranscript.DocumentID
		row.DifyTranscriptName = remoteTranscript.Name
	}

	if store != nil && bucket != "" && syncID != "" {
		if st, err := store.Stat(ctx, bucket, store.TombstoneKey(syncID)); err == nil {
			facts.TombstoneExists = boolPtr(st != nil)
		}

		if st, err := store.Stat(ctx, bucket, store.BundleKey(syncID)); err == nil {
			facts.BundleExists = boolPtr(st != nil)
			if st != nil {
				row.BundleSHARemote = objstore.MetaValue(st.Metadata, "bundle-sha256")
				row.NoteSHARemote = objstore.MetaValue(st.Metadata, "note-sha256")
				row.TranscriptSHARemote = objstore.MetaValue(st.Metadata, "transcript-sha256")
			}
		}
	}

	facts.NoteSHALocal = row.NoteSHALocal
	facts.NoteSHARemote = row.NoteSHARemote
	facts.TranscriptSHALocal = row.TranscriptSHALocal
	facts.TranscriptSHARemote = row.TranscriptSHARemote

	row.Status = Classify(sourceKey, facts, e.logger)
	row.BundleExists = facts.BundleExists
	row.TombstoneExists = facts.TombstoneExists

	// A tombstoned item with surviving local files drops its remote side:
	// the documents are scheduled for deletion and must not advertise as
	// pullable.
	if boolValue(facts.TombstoneExists) && local != nil {
		row.RemoteHasNote = boolPtr(false)
		row.RemoteHasTranscript = boolPtr(false)
		row.DifyNoteDocumentID = ""
		row.DifyNoteName = ""
		row.DifyTranscriptDocumentID = ""
		row.DifyTranscriptName = ""
	} else {
		row.RemoteHasNote = boolPtr(remoteNote != nil)
		row.RemoteHasTranscript = boolPtr(remoteTranscript != nil)
	}

	return row
}

// localFlags reports whether the item's note and transcript artifacts are
// non-empty on disk, falling back to the result document for legacy layouts
// that never split artifacts out.
func (e *Engine) localFlags(it *library.Item) (hasNote, hasTranscript bool) {
	hasNote = fileNonEmpty(it.MarkdownPath)
	hasTranscript = fileNonEmpty(it.TranscriptPath)

	if !hasNote || !hasTranscript {
		if res := e.cfg.Library.ReadResult(it.TaskID); res != nil {
			if !hasNote {
				md, _ := res["markdown"].(string)
				hasNote = strings.TrimSpace(md) != ""
			}
			if !hasTranscript {
				_, hasTranscript = res["transcript"].(map[string]any)
			}
		}
	}

	return hasNote, hasTranscript
}

// localHashes computes the digests used for conflict detection: the note
// bytes (BOM stripped), the canonical transcript JSON, and a deterministic
// rebuild of the full bundle. Any failure leaves that digest empty; hashes
// are hints, never requirements.
func (e *Engine) localHashes(it *library.Item, sourceKey, syncID string, hasNote, hasTranscript bool) (noteSHA, transcriptSHA, bundleSHA string) {
	p := e.cfg.Library.Payloads(it)

	if hasNote && strings.TrimSpace(p.NoteMarkdown) != "" {
		noteSHA = bundle.SHA256Hex(bundle.NoteBytes(p.NoteMarkdown))
	}
	if hasTranscript && p.Transcript != nil {
		if data, err := bundle.CanonicalJSON(p.Transcript); err == nil {
			transcriptSHA = bundle.SHA256Hex(data)
		}
	}

	in := bundle.Input{
		SourceKey:     sourceKey,
		SyncID:        syncID,
		Audio:         p.Audio,
		MaxSRTChars:   e.cfg.MaxSRTChars,
		MaxSRTSeconds: e.cfg.MaxSRTSeconds,
	}
	if hasNote {
		in.NoteMarkdown = p.NoteMarkdown
	}
	if hasTranscript {
		in.Transcript = p.Transcript
	}
	if req := e.cfg.Library.RequestMeta(it); len(req) > 0 {
		in.ExtraMeta = map[string]any{"request": req}
	}

	if data, err := bundle.Build(in); err == nil {
		bundleSHA = bundle.SHA256Hex(data)
	}

	return noteSHA, transcriptSHA, bundleSHA
}

func fileNonEmpty(path string) bool {
	if path == "" {
		return false
	}

	fi, err := os.Stat(path)

	return err == nil && fi.Mode().IsRegular() && fi.Size() > 0
}
