package repository

import (
	"context"
	"testing"
	"time"

	"github.com/flybeeper/taskengine/internal/config"
	"github.com/flybeeper/taskengine/internal/models"
	"github.com/flybeeper/taskengine/internal/oz"
	"github.com/flybeeper/taskengine/internal/task"
	"github.com/flybeeper/taskengine/pkg/utils"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

var base = models.NewGeoPoint(45, 6)

func testDefinition(name string) task.TaskDefinition {
	b := base.EndPoint(90, 30000)
	target := b.EndPoint(0, 5000)
	return task.TaskDefinition{
		Name:     name,
		Factory:  task.FactoryAAT,
		Settings: task.DefaultOrderedTaskSettings(),
		Points: []task.PointDefinition{
			{Type: task.StartLine, Waypoint: models.Waypoint{ID: 1, Name: "A", Location: base},
				Zone: oz.Spec{Shape: oz.ShapeLine, Length: 2000}},
			{Type: task.AATCylinder, Waypoint: models.Waypoint{ID: 2, Name: "B", Location: b},
				Zone: oz.Spec{Shape: oz.ShapeCylinder, Radius: 10000}, Target: &target, TargetLocked: true},
			{Type: task.FinishCylinder, Waypoint: models.Waypoint{ID: 1, Name: "A", Location: base},
				Zone: oz.Spec{Shape: oz.ShapeCylinder, Radius: 1000}},
		},
	}
}

func TestCodec_TaskDefinition(t *testing.T) {
	in := &StoredTask{
		ID:         "t1",
		Definition: testDefinition("aat"),
		CreatedAt:  time.Unix(1700000000, 0).UTC(),
		UpdatedAt:  time.Unix(1700000100, 0).UTC(),
	}
	data, err := encode(in)
	require.NoError(t, err)

	var out StoredTask
	require.NoError(t, decode(data, &out))
	assert.Equal(t, in.ID, out.ID)
	assert.True(t, in.CreatedAt.Equal(out.CreatedAt))
	assert.Equal(t, in.Definition, out.Definition)

	// определение собирается обратно в задание
	built, err := task.Build(out.Definition, task.DefaultTaskBehaviour())
	require.NoError(t, err)
	assert.Equal(t, 3, built.Size())
	assert.True(t, built.Point(1).IsTargetLocked())
}

func TestCodec_SnapshotKeepsSolution(t *testing.T) {
	s := &Snapshot{Mode: task.ModeOrdered, ActiveIndex: 2, Stats: task.NewTaskStats()}
	s.Stats.Total.Remaining.Distance = 1234
	s.Common.VBlock = 31

	data, err := encode(s)
	require.NoError(t, err)
	var out Snapshot
	require.NoError(t, decode(data, &out))
	assert.Equal(t, task.ModeOrdered, out.Mode)
	assert.Equal(t, 1234.0, out.Stats.Total.Remaining.Distance)
	assert.Equal(t, s.Stats.Total.SolutionRemaining, out.Stats.Total.SolutionRemaining)
	assert.Equal(t, 31.0, out.Common.VBlock)
}

func TestCodec_DecodeGarbage(t *testing.T) {
	var out StoredTask
	assert.Error(t, decode([]byte{0xc1}, &out))
}

func BenchmarkCodec_Snapshot(b *testing.B) {
	s := &Snapshot{Mode: task.ModeOrdered, ActiveIndex: 1, Stats: task.NewTaskStats()}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		data, err := encode(s)
		if err != nil {
			b.Fatal(err)
		}
		var out Snapshot
		if err := decode(data, &out); err != nil {
			b.Fatal(err)
		}
	}
}

func TestNewRedisRepository_Validation(t *testing.T) {
	logger := utils.NewLogger("error", "text")

	_, err := NewRedisRepository(nil, logger)
	assert.Error(t, err)
	_, err = NewRedisRepository(&config.RedisConfig{URL: "redis://localhost:6379"}, nil)
	assert.Error(t, err)
	_, err = NewRedisRepository(&config.RedisConfig{URL: "://bad"}, logger)
	assert.Error(t, err)
}

// RedisTestSuite проверки на живом Redis
type RedisTestSuite struct {
	suite.Suite
	repo   *RedisRepository
	client *redis.Client
	ctx    context.Context
}

func (s *RedisTestSuite) SetupSuite() {
	s.ctx = context.Background()
	cfg := &config.RedisConfig{
		URL:              "redis://localhost:6379",
		DB:               15, // тестовая база
		PoolSize:         5,
		MinIdleConns:     1,
		CacheSize:        8,
		GeohashPrecision: 5,
	}

	var err error
	s.repo, err = NewRedisRepository(cfg, utils.NewLogger("error", "text"))
	require.NoError(s.T(), err)
	s.client = s.repo.client

	if err := s.repo.Ping(s.ctx); err != nil {
		s.T().Skip("Redis not available for testing: " + err.Error())
	}
}

func (s *RedisTestSuite) SetupTest() {
	require.NoError(s.T(), s.client.FlushDB(s.ctx).Err())
	s.repo.cache.Purge()
}

func (s *RedisTestSuite) TearDownSuite() {
	if s.client != nil {
		s.client.FlushDB(s.ctx)
		s.client.Close()
	}
}

func (s *RedisTestSuite) TestTaskLifecycle() {
	t := s.T()
	now := time.Now().UTC().Truncate(time.Second)
	older := &StoredTask{ID: "a", Definition: testDefinition("older"), CreatedAt: now, UpdatedAt: now}
	newer := &StoredTask{ID: "b", Definition: testDefinition("newer"), CreatedAt: now, UpdatedAt: now.Add(time.Minute)}
	require.NoError(t, s.repo.SaveTask(s.ctx, older))
	require.NoError(t, s.repo.SaveTask(s.ctx, newer))

	got, err := s.repo.GetTask(s.ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "older", got.Definition.Name)

	// изменение копии не затрагивает кэш
	got.Definition.Name = "changed"
	again, err := s.repo.GetTask(s.ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "older", again.Definition.Name)

	list, err := s.repo.ListTasks(s.ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID)

	_, err = s.repo.GetActiveTask(s.ctx)
	assert.ErrorIs(t, err, ErrNoActiveTask)
	assert.ErrorIs(t, s.repo.SetActiveTask(s.ctx, "missing"), ErrTaskNotFound)
	require.NoError(t, s.repo.SetActiveTask(s.ctx, "b"))
	active, err := s.repo.GetActiveTask(s.ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", active.ID)

	require.NoError(t, s.repo.DeleteTask(s.ctx, "b"))
	_, err = s.repo.GetActiveTask(s.ctx)
	assert.ErrorIs(t, err, ErrNoActiveTask)
	_, err = s.repo.GetTask(s.ctx, "b")
	assert.ErrorIs(t, err, ErrTaskNotFound)
	assert.ErrorIs(t, s.repo.DeleteTask(s.ctx, "b"), ErrTaskNotFound)
}

func (s *RedisTestSuite) TestSnapshot() {
	t := s.T()
	_, err := s.repo.GetSnapshot(s.ctx)
	assert.ErrorIs(t, err, ErrNoSnapshot)

	snap := &Snapshot{Mode: task.ModeGoto, Stats: task.NewTaskStats(), UpdatedAt: time.Now().UTC()}
	require.NoError(t, s.repo.SaveSnapshot(s.ctx, snap))
	got, err := s.repo.GetSnapshot(s.ctx)
	require.NoError(t, err)
	assert.Equal(t, task.ModeGoto, got.Mode)

	ttl := s.client.TTL(s.ctx, SnapshotKey).Val()
	assert.Greater(t, ttl, time.Hour)
}

func (s *RedisTestSuite) TestWaypoints() {
	t := s.T()
	wps := []models.Waypoint{
		{ID: 1, Name: "Near", Location: base.EndPoint(0, 1000), Type: models.WaypointAirfield},
		{ID: 2, Name: "Mid", Location: base.EndPoint(90, 15000)},
		{ID: 3, Name: "Far", Location: base.EndPoint(180, 80000)},
		{ID: 4, Name: "Pole", Location: models.NewGeoPoint(89, 0)},
	}
	require.NoError(t, s.repo.SaveWaypoints(s.ctx, wps))

	all, err := s.repo.GetWaypoints(s.ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Near", all[0].Name)
	assert.True(t, all[0].IsLandable())

	near, err := s.repo.NearbyWaypoints(s.ctx, base, 20000)
	require.NoError(t, err)
	require.Len(t, near, 2)
	assert.Equal(t, "Near", near[0].Name)
	assert.Equal(t, "Mid", near[1].Name)

	cell, err := s.repo.WaypointsInCell(s.ctx, wps[0].Location.Geohash(5))
	require.NoError(t, err)
	require.NotEmpty(t, cell)
	assert.Equal(t, uint32(1), cell[0].ID)

	// повторное сохранение заменяет базу целиком
	require.NoError(t, s.repo.SaveWaypoints(s.ctx, wps[1:2]))
	all, err = s.repo.GetWaypoints(s.ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
	cell, err = s.repo.WaypointsInCell(s.ctx, wps[0].Location.Geohash(5))
	require.NoError(t, err)
	assert.Empty(t, cell)
}

func TestRedisTestSuite(t *testing.T) {
	suite.Run(t, new(RedisTestSuite))
}
