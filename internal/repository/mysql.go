package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/flybeeper/taskengine/internal/config"
	"github.com/flybeeper/taskengine/internal/metrics"
	"github.com/flybeeper/taskengine/pkg/utils"
)

const (
	defaultResultsLimit = 50
	maxResultsLimit     = 1000
)

const createResultsTable = `
	CREATE TABLE IF NOT EXISTS task_results (
		id              BIGINT AUTO_INCREMENT PRIMARY KEY,
		task_id         VARCHAR(64)  NOT NULL,
		task_name       VARCHAR(255) NOT NULL DEFAULT '',
		factory         VARCHAR(32)  NOT NULL,
		start_time      DOUBLE       NOT NULL,
		finish_time     DOUBLE       NOT NULL,
		distance_scored DOUBLE       NOT NULL,
		distance_max    DOUBLE       NOT NULL,
		speed           DOUBLE       NOT NULL,
		start_altitude  DOUBLE       NOT NULL,
		created_at      DATETIME     NOT NULL,
		INDEX idx_task_results_task (task_id),
		INDEX idx_task_results_created (created_at)
	)`

// MySQLRepository архив результатов заданий в MySQL
type MySQLRepository struct {
	db     *sql.DB
	logger *utils.Logger
	config *config.MySQLConfig
}

// NewMySQLRepository создает новый MySQL репозиторий
func NewMySQLRepository(cfg *config.MySQLConfig, logger *utils.Logger) (*MySQLRepository, error) {
	if cfg == nil {
		return nil, fmt.Errorf("mysql config cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("mysql DSN is required")
	}

	// created_at читается в time.Time
	dsn, err := mysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse MySQL DSN: %w", err)
	}
	dsn.ParseTime = true

	db, err := sql.Open("mysql", dsn.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return &MySQLRepository{
		db:     db,
		logger: logger,
		config: cfg,
	}, nil
}

// Ping проверяет соединение с MySQL
func (r *MySQLRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		metrics.MySQLConnectionStatus.Set(0)
		return fmt.Errorf("mysql ping failed: %w", err)
	}
	metrics.MySQLConnectionStatus.Set(1)
	return nil
}

// Close закрывает соединение с MySQL
func (r *MySQLRepository) Close() error {
	return r.db.Close()
}

// EnsureSchema создает таблицу результатов
func (r *MySQLRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createResultsTable); err != nil {
		return fmt.Errorf("failed to create task_results table: %w", err)
	}
	return nil
}

// SaveResult сохраняет результат пройденного задания
func (r *MySQLRepository) SaveResult(ctx context.Context, res *TaskResult) error {
	if res == nil {
		return fmt.Errorf("result cannot be nil")
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now().UTC()
	}

	out, err := r.db.ExecContext(ctx, `
		INSERT INTO task_results
			(task_id, task_name, factory, start_time, finish_time,
			 distance_scored, distance_max, speed, start_altitude, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.TaskID, res.TaskName, res.Factory, res.StartTime, res.FinishTime,
		res.DistanceScored, res.DistanceMax, res.Speed, res.StartAltitude, res.CreatedAt,
	)
	if err != nil {
		metrics.MySQLWriteErrors.Inc()
		return fmt.Errorf("failed to save result for task %s: %w", res.TaskID, err)
	}
	if id, err := out.LastInsertId(); err == nil {
		res.ID = id
	}
	metrics.ResultsSaved.Inc()

	r.logger.WithFields(map[string]interface{}{
		"task_id":  res.TaskID,
		"distance": res.DistanceScored,
		"speed":    res.Speed,
	}).Info("Task result archived")
	return nil
}

// ListResults последние результаты, новые первыми
func (r *MySQLRepository) ListResults(ctx context.Context, limit int) ([]*TaskResult, error) {
	if limit <= 0 {
		limit = defaultResultsLimit
	}
	if limit > maxResultsLimit {
		limit = maxResultsLimit
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, task_id, task_name, factory, start_time, finish_time,
		       distance_scored, distance_max, speed, start_altitude, created_at
		FROM task_results
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var results []*TaskResult
	for rows.Next() {
		var res TaskResult
		if err := rows.Scan(
			&res.ID, &res.TaskID, &res.TaskName, &res.Factory, &res.StartTime, &res.FinishTime,
			&res.DistanceScored, &res.DistanceMax, &res.Speed, &res.StartAltitude, &res.CreatedAt,
		); err != nil {
			r.logger.WithField("error", err).Warn("Failed to scan result row")
			continue
		}
		results = append(results, &res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating result rows: %w", err)
	}
	return results, nil
}
