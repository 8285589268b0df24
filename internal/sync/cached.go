package sync

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/pxh52013145/VNote/internal/identity"
	"github.com/pxh52013145/VNote/internal/library"
)

// CachedItems answers from the profile's last scan snapshot without touching
// the remotes. The local side is re-read so local flags are never stale, and
// items created since the last scan appear immediately as LOCAL_ONLY.
func (e *Engine) CachedItems(ctx context.Context) (*ScanResult, error) {
	profileName, dcfg := e.activeDify()

	localItems, err := e.scanLocal()
	if err != nil {
		return nil, fmt.Errorf("scanning library: %w", err)
	}

	localBySource := make(map[string]*library.Item, len(localItems))
	for i := range localItems {
		if localItems[i].SourceKey != "" {
			localBySource[localItems[i].SourceKey] = &localItems[i]
		}
	}

	var rows []Item
	var lastScanned string
	if e.cfg.Snapshot != nil {
		rows, lastScanned, err = e.cfg.Snapshot.Snapshot(ctx, profileName)
		if err != nil {
			e.logger.Warn("reading scan snapshot failed", "profile", profileName, "error", err)
			rows, lastScanned = nil, ""
		}
	}

	items := make([]Item, 0, len(rows)+len(localBySource))
	seen := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		sk := strings.TrimSpace(row.SourceKey)
		if sk == "" {
			continue
		}
		seen[sk] = struct{}{}

		items = append(items, e.fuseSnapshotRow(row, localBySource[sk]))
	}

	// Local items that appeared after the last scan.
	newKeys := make([]string, 0)
	for sk := range localBySource {
		if _, ok := seen[sk]; !ok {
			newKeys = append(newKeys, sk)
		}
	}
	sort.Strings(newKeys)
	for _, sk := range newKeys {
		local := localBySource[sk]
		hasNote, hasTranscript := e.localFlags(local)

		items = append(items, Item{
			Status:              StatusLocalOnly,
			Title:               local.Title,
			Platform:            local.Platform,
			VideoID:             local.VideoID,
			CreatedAtMs:         local.CreatedAtMs,
			SourceKey:           sk,
			SyncID:              local.SyncID,
			LocalTaskID:         local.TaskID,
			LocalHasNote:        boolPtr(hasNote),
			LocalHasTranscript:  boolPtr(hasTranscript),
			RemoteHasNote:       boolPtr(false),
			RemoteHasTranscript: boolPtr(false),
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAtMs > items[j].CreatedAtMs
	})

	return &ScanResult{
		Profile:             profileName,
		DifyBaseURL:         dcfg.BaseURL,
		NoteDatasetID:       dcfg.NoteDataset(),
		TranscriptDatasetID: dcfg.TranscriptDataset(),
		MinioBucket:         e.bucketName(profileName),
		LastScannedAt:       lastScanned,
		Items:               items,
	}, nil
}

// fuseSnapshotRow overlays fresh local facts on one stored row. Remote facts
// keep their scan-time values; only statuses that fresh local evidence can
// prove stale get recomputed. CONFLICT and DELETED need remote hashes or
// tombstones to resolve, so they stick until the next real scan.
func (e *Engine) fuseSnapshotRow(row Item, local *library.Item) Item {
	out := row

	out.SyncID = strings.TrimSpace(row.SyncID)
	if out.SyncID == "" {
		out.SyncID = identity.ComputeSyncID(row.SourceKey)
	}

	var hasNote, hasTranscript bool
	out.LocalTaskID = ""
	out.LocalHasNote = nil
	out.LocalHasTranscript = nil
	if local != nil {
		hasNote, hasTranscript = e.localFlags(local)
		out.LocalTaskID = local.TaskID
		out.LocalHasNote = boolPtr(hasNote)
		out.LocalHasTranscript = boolPtr(hasTranscript)
	}

	// Rows written by older snapshots may miss the remote flags; the doc
	// ids imply them.
	remoteNote := boolValue(row.RemoteHasNote)
	if row.RemoteHasNote == nil {
		remoteNote = strings.TrimSpace(row.DifyNoteDocumentID) != ""
	}
	remoteTranscript := boolValue(row.RemoteHasTranscript)
	if row.RemoteHasTranscript == nil {
		remoteTranscript = strings.TrimSpace(row.DifyTranscriptDocumentID) != ""
	}

	base := strings.ToUpper(strings.TrimSpace(string(row.Status)))
	if boolValue(row.TombstoneExists) {
		if local != nil {
			out.Status = StatusLocalOnly
			remoteNote = false
			remoteTranscript = false
			out.DifyNoteDocumentID = ""
			out.DifyNoteName = ""
			out.DifyTranscriptDocumentID = ""
			out.DifyTranscriptName = ""
		} else {
			out.Status = StatusDeleted
		}
	} else if base != string(StatusConflict) && base != string(StatusDeleted) {
		hasRemote := remoteNote || remoteTranscript
		switch {
		case local != nil && hasRemote:
			if hasNote == remoteNote && hasTranscript == remoteTranscript {
				out.Status = StatusSynced
			} else {
				out.Status = StatusPartial
			}
		case local != nil && !hasRemote:
			out.Status = StatusLocalOnly
		}
	}

	out.RemoteHasNote = boolPtr(remoteNote)
	out.RemoteHasTranscript = boolPtr(remoteTranscript)

	if local != nil {
		if strings.TrimSpace(out.Title) == "" {
			out.Title = local.Title
		}
		if strings.TrimSpace(out.Platform) == "" {
			out.Platform = local.Platform
		}
		if strings.TrimSpace(out.VideoID) == "" {
			out.VideoID = local.VideoID
		}
		if out.CreatedAtMs == 0 {
			out.CreatedAtMs = local.CreatedAtMs
		}
	}

	return out
}
