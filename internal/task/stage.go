// Package task runs the note ingestion pipeline: a controller for
// cooperative cancellation and a bounded worker pool that walks each
// submitted job through the generation stages, persisting progress to the
// library after every stage so status polls and the event stream observe
// the walk. The heavy media work is delegated to a NoteGenerator
// collaborator; post-success publication to the remote stores is delegated
// to a Publisher.
package task

// Stage identifies one step of the ingestion pipeline. Stages advance
// monotonically through the pipeline order; SUCCESS, FAILED and CANCELLED
// are terminal.
type Stage string

const (
	StagePending      Stage = "PENDING"
	StageParsing      Stage = "PARSING"
	StageDownloading  Stage = "DOWNLOADING"
	StageTranscribing Stage = "TRANSCRIBING"
	StageSummarizing  Stage = "SUMMARIZING"
	StageFormatting   Stage = "FORMATTING"
	StageSaving       Stage = "SAVING"
	StageSuccess      Stage = "SUCCESS"
	StageFailed       Stage = "FAILED"
	StageCancelled    Stage = "CANCELLED"
)

// Progress maps the stage to the stable 0-100 position reported by status
// polls. The values are stage-based estimates, not measured throughput: a
// long transcription sits at 55 until it finishes.
func (s Stage) Progress() int {
	switch s {
	case StageParsing:
		return 5
	case StageDownloading:
		return 20
	case StageTranscribing:
		return 55
	case StageSummarizing:
		return 85
	case StageFormatting:
		return 92
	case StageSaving:
		return 97
	case StageSuccess:
		return 100
	default:
		// PENDING, FAILED, CANCELLED and anything unknown.
		return 0
	}
}

// Terminal reports whether the stage ends the pipeline walk.
func (s Stage) Terminal() bool {
	switch s {
	case StageSuccess, StageFailed, StageCancelled:
		return true
	}

	return false
}

// Message is the short label persisted alongside the stage. FAILED has no
// fixed label; the failing error text takes its place.
func (s Stage) Message() string {
	switch s {
	case StagePending:
		return "Queued"
	case StageParsing:
		return "Parsing source link"
	case StageDownloading:
		return "Downloading media"
	case StageTranscribing:
		return "Transcribing audio"
	case StageSummarizing:
		return "Summarizing transcript"
	case StageFormatting:
		return "Formatting note"
	case StageSaving:
		return "Saving artifacts"
	case StageSuccess:
		return "Done"
	case StageCancelled:
		return "Task cancelled"
	default:
		return ""
	}
}
