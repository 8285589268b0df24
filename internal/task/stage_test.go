package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStageProgress(t *testing.T) {
	tests := []struct {
		stage Stage
		want  int
	}{
		{StagePending, 0},
		{StageParsing, 5},
		{StageDownloading, 20},
		{StageTranscribing, 55},
		{StageSummarizing, 85},
		{StageFormatting, 92},
		{StageSaving, 97},
		{StageSuccess, 100},
		{StageFailed, 0},
		{StageCancelled, 0},
		{Stage("NO_SUCH_STAGE"), 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.stage.Progress(), "stage %s", tt.stage)
	}
}

func TestStageTerminal(t *testing.T) {
	terminal := []Stage{StageSuccess, StageFailed, StageCancelled}
	for _, s := range terminal {
		assert.True(t, s.Terminal(), "stage %s", s)
	}

	running := []Stage{
		StagePending, StageParsing, StageDownloading,
		StageTranscribing, StageSummarizing, StageFormatting, StageSaving,
	}
	for _, s := range running {
		assert.False(t, s.Terminal(), "stage %s", s)
	}
}

func TestStageMessage(t *testing.T) {
	assert.Equal(t, "Queued", StagePending.Message())
	assert.Equal(t, "Transcribing audio", StageTranscribing.Message())
	assert.Equal(t, "Done", StageSuccess.Message())
	assert.Equal(t, "Task cancelled", StageCancelled.Message())
	assert.Equal(t, "", Stage("NO_SUCH_STAGE").Message())
}
