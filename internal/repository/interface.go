package repository

import (
	"context"
	"errors"
	"time"

	"github.com/flybeeper/taskengine/internal/models"
	"github.com/flybeeper/taskengine/internal/task"
)

var (
	// ErrTaskNotFound нет задания с таким идентификатором
	ErrTaskNotFound = errors.New("task not found")
	// ErrNoActiveTask активное задание не выбрано
	ErrNoActiveTask = errors.New("no active task")
	// ErrNoSnapshot состояние вычислителя еще не сохранялось
	ErrNoSnapshot = errors.New("no snapshot")
)

// StoredTask сохраненное определение задания
type StoredTask struct {
	ID         string              `json:"id" msgpack:"id"`
	Definition task.TaskDefinition `json:"definition" msgpack:"definition"`
	CreatedAt  time.Time           `json:"created_at" msgpack:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at" msgpack:"updated_at"`
}

// Snapshot состояние вычислителя после очередного отсчета
type Snapshot struct {
	Mode        task.Mode        `json:"mode" msgpack:"mode"`
	ActiveIndex int              `json:"active_index" msgpack:"active_index"`
	TaskID      string           `json:"task_id,omitempty" msgpack:"task_id"`
	Stats       task.TaskStats   `json:"stats" msgpack:"stats"`
	Common      task.CommonStats `json:"common" msgpack:"common"`
	UpdatedAt   time.Time        `json:"updated_at" msgpack:"updated_at"`
}

// TaskResult итог пройденного задания
type TaskResult struct {
	ID             int64     `json:"id"`
	TaskID         string    `json:"task_id"`
	TaskName       string    `json:"task_name"`
	Factory        string    `json:"factory"`
	StartTime      float64   `json:"start_time"`  // с от полуночи
	FinishTime     float64   `json:"finish_time"` // с от полуночи
	DistanceScored float64   `json:"distance_scored"`
	DistanceMax    float64   `json:"distance_max"`
	Speed          float64   `json:"speed"` // м/с
	StartAltitude  float64   `json:"start_altitude"`
	CreatedAt      time.Time `json:"created_at"`
}

// TaskRepository хранилище заданий, состояния и путевых точек
type TaskRepository interface {
	Ping(ctx context.Context) error
	Close() error

	// Операции с заданиями
	SaveTask(ctx context.Context, t *StoredTask) error
	GetTask(ctx context.Context, id string) (*StoredTask, error)
	ListTasks(ctx context.Context) ([]*StoredTask, error)
	DeleteTask(ctx context.Context, id string) error
	SetActiveTask(ctx context.Context, id string) error
	GetActiveTask(ctx context.Context) (*StoredTask, error)

	// Состояние вычислителя
	SaveSnapshot(ctx context.Context, s *Snapshot) error
	GetSnapshot(ctx context.Context) (*Snapshot, error)

	// Путевые точки
	SaveWaypoints(ctx context.Context, wps []models.Waypoint) error
	GetWaypoints(ctx context.Context) ([]models.Waypoint, error)
	NearbyWaypoints(ctx context.Context, center models.GeoPoint, radiusM float64) ([]models.Waypoint, error)
	WaypointsInCell(ctx context.Context, hash string) ([]models.Waypoint, error)
}

// ResultRepository архив результатов заданий
type ResultRepository interface {
	Ping(ctx context.Context) error
	Close() error

	SaveResult(ctx context.Context, r *TaskResult) error
	ListResults(ctx context.Context, limit int) ([]*TaskResult, error)
}

// Ensure implementations
var _ TaskRepository = (*RedisRepository)(nil)
var _ ResultRepository = (*MySQLRepository)(nil)
