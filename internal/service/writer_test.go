package service

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/flybeeper/taskengine/internal/repository"
	"github.com/flybeeper/taskengine/internal/task"
	"github.com/flybeeper/taskengine/pkg/utils"
)

func testWriterConfig() *WriterConfig {
	return &WriterConfig{
		FlushInterval: time.Hour,
		ChannelBuffer: 2,
		MaxRetries:    2,
		RetryDelay:    time.Millisecond,
		StopTimeout:   time.Second,
	}
}

func TestWriter_SnapshotLatestWins(t *testing.T) {
	repo := new(MockTaskRepository)
	repo.On("SaveSnapshot", mock.Anything, mock.MatchedBy(func(s *repository.Snapshot) bool {
		return s.TaskID == "second"
	})).Return(nil).Once()

	w := NewWriter(repo, nil, utils.NewLogger("error", "text"), testWriterConfig())
	w.Start()
	w.QueueSnapshot(&repository.Snapshot{TaskID: "first", Mode: task.ModeOrdered})
	w.QueueSnapshot(&repository.Snapshot{TaskID: "second", Mode: task.ModeOrdered})
	w.QueueSnapshot(nil)
	w.Stop()

	repo.AssertExpectations(t)
	stats := w.Stats()
	assert.Equal(t, int64(1), stats.SnapshotsWritten)
	assert.Equal(t, int64(1), stats.SnapshotsSkipped)
}

func TestWriter_SnapshotRetry(t *testing.T) {
	repo := new(MockTaskRepository)
	repo.On("SaveSnapshot", mock.Anything, mock.Anything).Return(errors.New("timeout")).Twice()
	repo.On("SaveSnapshot", mock.Anything, mock.Anything).Return(nil).Once()

	w := NewWriter(repo, nil, utils.NewLogger("error", "text"), testWriterConfig())
	w.QueueSnapshot(&repository.Snapshot{TaskID: "t"})
	w.Stop()

	repo.AssertNumberOfCalls(t, "SaveSnapshot", 3)
	assert.Equal(t, int64(1), w.Stats().SnapshotsWritten)
	assert.Zero(t, w.Stats().Errors)
}

func TestWriter_SnapshotGivesUp(t *testing.T) {
	repo := new(MockTaskRepository)
	repo.On("SaveSnapshot", mock.Anything, mock.Anything).Return(errors.New("down"))

	w := NewWriter(repo, nil, utils.NewLogger("error", "text"), testWriterConfig())
	w.QueueSnapshot(&repository.Snapshot{TaskID: "t"})
	w.Stop()

	repo.AssertNumberOfCalls(t, "SaveSnapshot", 3)
	assert.Equal(t, int64(1), w.Stats().Errors)
	assert.Zero(t, w.Stats().SnapshotsWritten)
}

func TestWriter_Results(t *testing.T) {
	repo := new(MockTaskRepository)
	results := new(MockResultRepository)
	results.On("SaveResult", mock.Anything, mock.Anything).Return(nil)

	w := NewWriter(repo, results, utils.NewLogger("error", "text"), testWriterConfig())
	w.Start()
	require.NoError(t, w.QueueResult(&repository.TaskResult{TaskID: "a"}))
	require.NoError(t, w.QueueResult(&repository.TaskResult{TaskID: "b"}))
	w.Stop()

	saved := results.Saved()
	require.Len(t, saved, 2)
	assert.Equal(t, "a", saved[0].TaskID)
	assert.Equal(t, "b", saved[1].TaskID)
	assert.Equal(t, int64(2), w.Stats().ResultsWritten)

	assert.Error(t, w.QueueResult(&repository.TaskResult{TaskID: "late"}))
}

func TestWriter_QueueResult(t *testing.T) {
	w := NewWriter(nil, nil, utils.NewLogger("error", "text"), testWriterConfig())

	assert.Error(t, w.QueueResult(nil))
	// worker'ы не запущены, очередь заполняется
	require.NoError(t, w.QueueResult(&repository.TaskResult{TaskID: "1"}))
	require.NoError(t, w.QueueResult(&repository.TaskResult{TaskID: "2"}))
	err := w.QueueResult(&repository.TaskResult{TaskID: "3"})
	assert.ErrorContains(t, err, "queue is full")

	// без архива результаты только логируются
	w.Stop()
	stats := w.Stats()
	assert.Equal(t, int64(2), stats.ResultsQueued)
	assert.Zero(t, stats.ResultsWritten)
	assert.Equal(t, int64(1), stats.Errors)
}
