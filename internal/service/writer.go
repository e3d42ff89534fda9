package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/flybeeper/taskengine/internal/metrics"
	"github.com/flybeeper/taskengine/internal/repository"
	"github.com/flybeeper/taskengine/pkg/utils"
)

// WriterConfig конфигурация асинхронной записи
type WriterConfig struct {
	FlushInterval time.Duration `json:"flush_interval"` // интервал записи последнего снимка
	ChannelBuffer int           `json:"channel_buffer"` // очередь результатов
	MaxRetries    int           `json:"max_retries"`
	RetryDelay    time.Duration `json:"retry_delay"`
	StopTimeout   time.Duration `json:"stop_timeout"` // на финальную запись
}

// DefaultWriterConfig конфигурация по умолчанию
func DefaultWriterConfig() *WriterConfig {
	return &WriterConfig{
		FlushInterval: time.Second,
		ChannelBuffer: 64,
		MaxRetries:    3,
		RetryDelay:    100 * time.Millisecond,
		StopTimeout:   5 * time.Second,
	}
}

// WriterStats счетчики записи
type WriterStats struct {
	SnapshotsWritten int64 `json:"snapshots_written"`
	SnapshotsSkipped int64 `json:"snapshots_skipped"` // заменены более новыми до записи
	ResultsQueued    int64 `json:"results_queued"`
	ResultsWritten   int64 `json:"results_written"`
	Errors           int64 `json:"errors"`
}

// Writer сохраняет снимки состояния в Redis и результаты в MySQL вне
// цикла вычислений. Из снимков пишется только последний.
type Writer struct {
	tasks   repository.TaskRepository
	results repository.ResultRepository
	logger  *utils.Logger
	config  *WriterConfig

	resultChan chan *repository.TaskResult

	mu      sync.Mutex
	pending *repository.Snapshot
	stats   WriterStats

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewWriter создает writer. results может быть nil, тогда результаты
// только логируются.
func NewWriter(tasks repository.TaskRepository, results repository.ResultRepository, logger *utils.Logger, config *WriterConfig) *Writer {
	if config == nil {
		config = DefaultWriterConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Writer{
		tasks:      tasks,
		results:    results,
		logger:     logger,
		config:     config,
		resultChan: make(chan *repository.TaskResult, config.ChannelBuffer),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start запускает worker'ы
func (w *Writer) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return
	}
	w.started = true

	w.wg.Add(2)
	go w.snapshotWorker()
	go w.resultWorker()

	w.logger.WithFields(map[string]interface{}{
		"flush_interval": w.config.FlushInterval,
		"channel_buffer": w.config.ChannelBuffer,
		"archive":        w.results != nil,
	}).Info("Started persistence writer")
}

// Stop останавливает worker'ы и дописывает накопленное
func (w *Writer) Stop() {
	w.cancel()
	w.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), w.config.StopTimeout)
	defer cancel()
	w.flushSnapshot(ctx)
	w.drainResults(ctx)

	w.logger.Info("Persistence writer stopped")
}

// QueueSnapshot ставит снимок на запись, заменяя еще не записанный
func (w *Writer) QueueSnapshot(s *repository.Snapshot) {
	if s == nil {
		return
	}
	w.mu.Lock()
	if w.pending != nil {
		w.stats.SnapshotsSkipped++
	}
	w.pending = s
	w.mu.Unlock()
}

// QueueResult ставит результат задания в очередь архива
func (w *Writer) QueueResult(r *repository.TaskResult) error {
	if r == nil {
		return fmt.Errorf("result cannot be nil")
	}
	select {
	case <-w.ctx.Done():
		return fmt.Errorf("writer is shutting down")
	default:
	}

	select {
	case w.resultChan <- r:
		w.mu.Lock()
		w.stats.ResultsQueued++
		w.mu.Unlock()
		metrics.PersistQueueDepth.Set(float64(len(w.resultChan)))
		return nil
	default:
		w.countError("result")
		return fmt.Errorf("result queue is full")
	}
}

// Stats возвращает копию счетчиков
func (w *Writer) Stats() WriterStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Writer) snapshotWorker() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.flushSnapshot(w.ctx)
		case <-w.ctx.Done():
			return
		}
	}
}

func (w *Writer) resultWorker() {
	defer w.wg.Done()

	for {
		select {
		case r := <-w.resultChan:
			metrics.PersistQueueDepth.Set(float64(len(w.resultChan)))
			w.writeResult(w.ctx, r)
		case <-w.ctx.Done():
			return
		}
	}
}

func (w *Writer) flushSnapshot(ctx context.Context) {
	w.mu.Lock()
	s := w.pending
	w.pending = nil
	w.mu.Unlock()
	if s == nil || w.tasks == nil {
		return
	}

	err := w.retryOperation(ctx, func() error {
		return w.tasks.SaveSnapshot(ctx, s)
	})
	if err != nil {
		w.mu.Lock()
		if w.pending == nil {
			w.pending = s
		}
		w.mu.Unlock()
		w.countError("snapshot")
		w.logger.WithField("error", err).Warn("Failed to save snapshot")
		return
	}
	w.mu.Lock()
	w.stats.SnapshotsWritten++
	w.mu.Unlock()
}

func (w *Writer) drainResults(ctx context.Context) {
	for {
		select {
		case r := <-w.resultChan:
			w.writeResult(ctx, r)
		default:
			metrics.PersistQueueDepth.Set(0)
			return
		}
	}
}

func (w *Writer) writeResult(ctx context.Context, r *repository.TaskResult) {
	if w.results == nil {
		w.logger.WithFields(map[string]interface{}{
			"task_id":  r.TaskID,
			"distance": r.DistanceScored,
			"speed":    r.Speed,
		}).Info("Task finished, result archive disabled")
		return
	}

	start := time.Now()
	err := w.retryOperation(ctx, func() error {
		return w.results.SaveResult(ctx, r)
	})
	if err != nil {
		w.countError("result")
		w.logger.WithFields(map[string]interface{}{
			"task_id":  r.TaskID,
			"duration": time.Since(start),
			"error":    err,
		}).Error("Failed to archive task result")
		return
	}

	w.mu.Lock()
	w.stats.ResultsWritten++
	w.mu.Unlock()
}

func (w *Writer) countError(kind string) {
	w.mu.Lock()
	w.stats.Errors++
	w.mu.Unlock()
	metrics.PersistErrors.WithLabelValues(kind).Inc()
}

// retryOperation выполняет операцию с повторами
func (w *Writer) retryOperation(ctx context.Context, op func() error) error {
	var lastErr error
	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(w.config.RetryDelay * time.Duration(attempt)):
			case <-ctx.Done():
				return fmt.Errorf("retry cancelled: %w", ctx.Err())
			}
		}
		if lastErr = op(); lastErr == nil {
			return nil
		}
		w.logger.WithField("attempt", attempt+1).
			WithField("error", lastErr).
			Debug("Persistence operation failed")
	}
	return fmt.Errorf("operation failed after %d attempts: %w", w.config.MaxRetries+1, lastErr)
}
