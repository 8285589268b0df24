package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordSyncOp(t *testing.T) {
	syncOperationsTotal.Reset()

	RecordSyncOp("push", OutcomeOK)
	RecordSyncOp("push", OutcomeOK)
	RecordSyncOp("push", OutcomeError)
	RecordSyncOp("pull", OutcomeOK)

	assert.Equal(t, 2.0, testutil.ToFloat64(syncOperationsTotal.WithLabelValues("push", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(syncOperationsTotal.WithLabelValues("push", OutcomeError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(syncOperationsTotal.WithLabelValues("pull", OutcomeOK)))
}

func TestIncRemoteError(t *testing.T) {
	remoteErrorsTotal.Reset()

	IncRemoteError(SideRAG)
	IncRemoteError(SideRAG)
	IncRemoteError(SideObjectStore)

	assert.Equal(t, 2.0, testutil.ToFloat64(remoteErrorsTotal.WithLabelValues(SideRAG)))
	assert.Equal(t, 1.0, testutil.ToFloat64(remoteErrorsTotal.WithLabelValues(SideObjectStore)))
}

func TestIngestStageGaugeBalances(t *testing.T) {
	ingestActiveTasks.Reset()

	IngestStageEntered("PARSING")
	IngestStageEntered("PARSING")
	assert.Equal(t, 2.0, testutil.ToFloat64(ingestActiveTasks.WithLabelValues("PARSING")))

	IngestStageLeft("PARSING")
	IngestStageEntered("DOWNLOADING")
	assert.Equal(t, 1.0, testutil.ToFloat64(ingestActiveTasks.WithLabelValues("PARSING")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ingestActiveTasks.WithLabelValues("DOWNLOADING")))
}

func TestRecordIngestOutcome(t *testing.T) {
	ingestTasksTotal.Reset()

	RecordIngestOutcome("SUCCESS")
	RecordIngestOutcome("FAILED")
	RecordIngestOutcome("SUCCESS")

	assert.Equal(t, 2.0, testutil.ToFloat64(ingestTasksTotal.WithLabelValues("SUCCESS")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ingestTasksTotal.WithLabelValues("FAILED")))
}

func TestObserveScanDuration(t *testing.T) {
	ObserveScanDuration(250 * time.Millisecond)
	ObserveScanDuration(3 * time.Second)

	assert.Equal(t, 1, testutil.CollectAndCount(scanDurationSeconds))
}
