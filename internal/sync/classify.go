package sync

import "log/slog"

// Facts is everything classification needs to know about one source key:
// which sides exist, which parts each side carries, the object-store hints,
// and the content hashes available for conflict detection.
//
// BundleExists and TombstoneExists are tri-state: nil means the object store
// was unreachable or unconfigured, and the corresponding rules do not fire.
type Facts struct {
	LocalExists        bool
	LocalHasNote       bool
	LocalHasTranscript bool

	RemoteHasNote       bool
	RemoteHasTranscript bool

	BundleExists    *bool
	TombstoneExists *bool

	NoteSHALocal        string
	NoteSHARemote       string
	TranscriptSHALocal  string
	TranscriptSHARemote string
}

// Classify maps the facts about one source key to its sync status. Rules are
// mutually exclusive and evaluated in order:
//
//	tombstone, no local        → DELETED
//	tombstone, local files     → LOCAL_ONLY (candidate for re-push)
//	remote only, bundle absent → DIFY_ONLY_NO_BUNDLE
//	local only                 → LOCAL_ONLY
//	remote only                → DIFY_ONLY
//	both, parts disagree       → PARTIAL
//	both, parts agree          → SYNCED, or CONFLICT on a comparable
//	                             hash mismatch
//
// sourceKey is used for logging only.
func Classify(sourceKey string, f Facts, logger *slog.Logger) Status {
	hasRemote := f.RemoteHasNote || f.RemoteHasTranscript

	if boolValue(f.TombstoneExists) {
		if f.LocalExists {
			logger.Debug("classify: tombstone with local files → LOCAL_ONLY", "source_key", sourceKey)
			return StatusLocalOnly
		}

		logger.Debug("classify: tombstone, nothing local → DELETED", "source_key", sourceKey)

		return StatusDeleted
	}

	if !f.LocalExists && hasRemote && f.BundleExists != nil && !*f.BundleExists {
		logger.Debug("classify: remote docs without bundle → DIFY_ONLY_NO_BUNDLE", "source_key", sourceKey)
		return StatusDifyOnlyNoBundle
	}

	if f.LocalExists && !hasRemote {
		logger.Debug("classify: local only → LOCAL_ONLY", "source_key", sourceKey)
		return StatusLocalOnly
	}

	if !f.LocalExists && hasRemote {
		logger.Debug("classify: remote only → DIFY_ONLY", "source_key", sourceKey)
		return StatusDifyOnly
	}

	if f.LocalExists && hasRemote {
		if f.LocalHasNote != f.RemoteHasNote || f.LocalHasTranscript != f.RemoteHasTranscript {
			logger.Debug("classify: sides carry different parts → PARTIAL", "source_key", sourceKey)
			return StatusPartial
		}

		if hashMismatch(f) {
			logger.Debug("classify: synced parts with hash mismatch → CONFLICT",
				"source_key", sourceKey,
				"note_local", f.NoteSHALocal, "note_remote", f.NoteSHARemote,
				"transcript_local", f.TranscriptSHALocal, "transcript_remote", f.TranscriptSHARemote,
			)

			return StatusConflict
		}

		logger.Debug("classify: sides agree → SYNCED", "source_key", sourceKey)

		return StatusSynced
	}

	// Neither side present: only reachable for keys injected by callers,
	// never from a scan union. Treat as remote-side absence.
	logger.Debug("classify: no side present → DIFY_ONLY", "source_key", sourceKey)

	return StatusDifyOnly
}

// hashMismatch reports whether any per-part hash pair is comparable (both
// sides carry the part and both hashes are known) and differs.
func hashMismatch(f Facts) bool {
	if f.RemoteHasNote && f.LocalHasNote &&
		f.NoteSHALocal != "" && f.NoteSHARemote != "" &&
		f.NoteSHALocal != f.NoteSHARemote {
		return true
	}

	if f.RemoteHasTranscript && f.LocalHasTranscript &&
		f.TranscriptSHALocal != "" && f.TranscriptSHARemote != "" &&
		f.TranscriptSHALocal != f.TranscriptSHARemote {
		return true
	}

	return false
}
