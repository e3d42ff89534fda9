package service

import (
	"context"
	"sync"

	"github.com/flybeeper/taskengine/internal/models"
	"github.com/flybeeper/taskengine/internal/repository"
	"github.com/stretchr/testify/mock"
)

// MockTaskRepository для тестирования
type MockTaskRepository struct {
	mock.Mock
}

func (m *MockTaskRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockTaskRepository) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockTaskRepository) SaveTask(ctx context.Context, t *repository.StoredTask) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *MockTaskRepository) GetTask(ctx context.Context, id string) (*repository.StoredTask, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.StoredTask), args.Error(1)
}

func (m *MockTaskRepository) ListTasks(ctx context.Context) ([]*repository.StoredTask, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*repository.StoredTask), args.Error(1)
}

func (m *MockTaskRepository) DeleteTask(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockTaskRepository) SetActiveTask(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockTaskRepository) GetActiveTask(ctx context.Context) (*repository.StoredTask, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.StoredTask), args.Error(1)
}

func (m *MockTaskRepository) SaveSnapshot(ctx context.Context, s *repository.Snapshot) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *MockTaskRepository) GetSnapshot(ctx context.Context) (*repository.Snapshot, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.Snapshot), args.Error(1)
}

func (m *MockTaskRepository) SaveWaypoints(ctx context.Context, wps []models.Waypoint) error {
	args := m.Called(ctx, wps)
	return args.Error(0)
}

func (m *MockTaskRepository) GetWaypoints(ctx context.Context) ([]models.Waypoint, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Waypoint), args.Error(1)
}

func (m *MockTaskRepository) NearbyWaypoints(ctx context.Context, center models.GeoPoint, radiusM float64) ([]models.Waypoint, error) {
	args := m.Called(ctx, center, radiusM)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Waypoint), args.Error(1)
}

func (m *MockTaskRepository) WaypointsInCell(ctx context.Context, hash string) ([]models.Waypoint, error) {
	args := m.Called(ctx, hash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Waypoint), args.Error(1)
}

// MockResultRepository архив результатов в памяти
type MockResultRepository struct {
	mock.Mock
	mu    sync.Mutex
	saved []*repository.TaskResult
}

func (m *MockResultRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockResultRepository) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockResultRepository) SaveResult(ctx context.Context, r *repository.TaskResult) error {
	args := m.Called(ctx, r)
	if args.Error(0) == nil {
		m.mu.Lock()
		m.saved = append(m.saved, r)
		m.mu.Unlock()
	}
	return args.Error(0)
}

func (m *MockResultRepository) ListResults(ctx context.Context, limit int) ([]*repository.TaskResult, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*repository.TaskResult), args.Error(1)
}

func (m *MockResultRepository) Saved() []*repository.TaskResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*repository.TaskResult(nil), m.saved...)
}

var (
	_ repository.TaskRepository   = (*MockTaskRepository)(nil)
	_ repository.ResultRepository = (*MockResultRepository)(nil)
)
