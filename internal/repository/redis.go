package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/brunoga/deep"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"

	"github.com/flybeeper/taskengine/internal/config"
	"github.com/flybeeper/taskengine/internal/metrics"
	"github.com/flybeeper/taskengine/internal/models"
	"github.com/flybeeper/taskengine/pkg/utils"
)

const (
	// Задания
	TaskPrefix    = "taskengine:task:" // taskengine:task:{id}
	TasksSetKey   = "taskengine:tasks"
	ActiveTaskKey = "taskengine:active"

	// Состояние вычислителя
	SnapshotKey = "taskengine:stats"

	// Путевые точки
	WaypointsGeoKey    = "taskengine:waypoints"      // GEO индекс
	WaypointDataKey    = "taskengine:waypoints:data" // HSET id -> msgpack
	WaypointCellPrefix = "taskengine:wp:gh:"         // taskengine:wp:gh:{geohash} -> SET id
	WaypointCellsKey   = "taskengine:wp:cells"       // SET ключей ячеек

	SnapshotTTL = 24 * time.Hour

	// Redis GEO ограничение по широте
	maxGeoLatitude = 85.05112878

	defaultCacheSize = 128
)

// RedisRepository хранилище заданий в Redis
type RedisRepository struct {
	client *redis.Client
	logger *utils.Logger
	config *config.RedisConfig
	cache  *lru.Cache[string, *StoredTask]
}

// NewRedisRepository создает новый Redis репозиторий
func NewRedisRepository(cfg *config.RedisConfig, logger *utils.Logger) (*RedisRepository, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if cfg.Password != "" {
		opt.Password = cfg.Password
	}
	opt.DB = cfg.DB
	opt.PoolSize = cfg.PoolSize
	opt.MinIdleConns = cfg.MinIdleConns
	opt.ConnMaxIdleTime = 30 * time.Minute
	opt.DialTimeout = 10 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second

	size := cfg.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	cache, err := lru.New[string, *StoredTask](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create task cache: %w", err)
	}

	return &RedisRepository{
		client: redis.NewClient(opt),
		logger: logger,
		config: cfg,
		cache:  cache,
	}, nil
}

// Ping проверяет соединение с Redis
func (r *RedisRepository) Ping(ctx context.Context) error {
	if _, err := r.client.Ping(ctx).Result(); err != nil {
		metrics.RedisConnectionStatus.Set(0)
		return fmt.Errorf("redis ping failed: %w", err)
	}
	metrics.RedisConnectionStatus.Set(1)
	return nil
}

// Close закрывает соединение с Redis
func (r *RedisRepository) Close() error {
	return r.client.Close()
}

// Client общий клиент для кеша токенов
func (r *RedisRepository) Client() *redis.Client {
	return r.client
}

func observe(op string, start time.Time, err error) {
	metrics.RedisOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil && !errors.Is(err, redis.Nil) {
		metrics.RedisOperationErrors.WithLabelValues(op).Inc()
	}
}

// copyTask копия из кэша, чтобы вызывающий код не менял кэшированное значение
func copyTask(t *StoredTask) (*StoredTask, error) {
	cp, err := deep.Copy(t)
	if err != nil {
		return nil, fmt.Errorf("failed to copy task %s: %w", t.ID, err)
	}
	return cp, nil
}

// SaveTask сохраняет определение задания
func (r *RedisRepository) SaveTask(ctx context.Context, t *StoredTask) (err error) {
	if t == nil || t.ID == "" {
		return fmt.Errorf("task id is required")
	}
	start := time.Now()
	defer func() { observe("save_task", start, err) }()

	data, err := encode(t)
	if err != nil {
		return err
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, TaskPrefix+t.ID, data, 0)
	pipe.SAdd(ctx, TasksSetKey, t.ID)
	if _, err = pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save task %s: %w", t.ID, err)
	}

	if cp, cerr := copyTask(t); cerr == nil {
		r.cache.Add(t.ID, cp)
	} else {
		r.cache.Remove(t.ID)
	}
	r.logger.WithFields(map[string]interface{}{
		"task_id": t.ID,
		"name":    t.Definition.Name,
		"points":  len(t.Definition.Points),
	}).Debug("Task saved")
	return nil
}

// GetTask загружает определение задания
func (r *RedisRepository) GetTask(ctx context.Context, id string) (_ *StoredTask, err error) {
	if cached, ok := r.cache.Get(id); ok {
		metrics.TaskCacheHits.WithLabelValues("hit").Inc()
		return copyTask(cached)
	}
	metrics.TaskCacheHits.WithLabelValues("miss").Inc()

	start := time.Now()
	defer func() { observe("get_task", start, err) }()

	data, err := r.client.Get(ctx, TaskPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task %s: %w", id, err)
	}
	var t StoredTask
	if err = decode(data, &t); err != nil {
		return nil, err
	}
	if cp, cerr := copyTask(&t); cerr == nil {
		r.cache.Add(id, cp)
	}
	return &t, nil
}

// ListTasks все сохраненные задания по времени изменения, новые первыми
func (r *RedisRepository) ListTasks(ctx context.Context) (_ []*StoredTask, err error) {
	start := time.Now()
	defer func() { observe("list_tasks", start, err) }()

	ids, err := r.client.SMembers(ctx, TasksSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	tasks := make([]*StoredTask, 0, len(ids))
	for _, id := range ids {
		t, gerr := r.GetTask(ctx, id)
		if errors.Is(gerr, ErrTaskNotFound) {
			// ключ задания истек или удален вручную
			r.client.SRem(ctx, TasksSetKey, id)
			continue
		}
		if gerr != nil {
			r.logger.WithField("task_id", id).WithField("error", gerr).Warn("Skipping unreadable task")
			continue
		}
		tasks = append(tasks, t)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].UpdatedAt.After(tasks[j].UpdatedAt) })
	return tasks, nil
}

// DeleteTask удаляет задание; активное задание снимается
func (r *RedisRepository) DeleteTask(ctx context.Context, id string) (err error) {
	start := time.Now()
	defer func() { observe("delete_task", start, err) }()

	active, err := r.client.Get(ctx, ActiveTaskKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to read active task: %w", err)
	}

	pipe := r.client.TxPipeline()
	del := pipe.Del(ctx, TaskPrefix+id)
	pipe.SRem(ctx, TasksSetKey, id)
	if active == id {
		pipe.Del(ctx, ActiveTaskKey)
	}
	if _, err = pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete task %s: %w", id, err)
	}
	r.cache.Remove(id)
	if del.Val() == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// SetActiveTask выбирает активное задание
func (r *RedisRepository) SetActiveTask(ctx context.Context, id string) (err error) {
	start := time.Now()
	defer func() { observe("set_active", start, err) }()

	exists, err := r.client.Exists(ctx, TaskPrefix+id).Result()
	if err != nil {
		return fmt.Errorf("failed to check task %s: %w", id, err)
	}
	if exists == 0 {
		return ErrTaskNotFound
	}
	if err = r.client.Set(ctx, ActiveTaskKey, id, 0).Err(); err != nil {
		return fmt.Errorf("failed to set active task: %w", err)
	}
	return nil
}

// GetActiveTask загружает активное задание
func (r *RedisRepository) GetActiveTask(ctx context.Context) (*StoredTask, error) {
	id, err := r.client.Get(ctx, ActiveTaskKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoActiveTask
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active task: %w", err)
	}
	return r.GetTask(ctx, id)
}

// SaveSnapshot сохраняет последнее состояние вычислителя
func (r *RedisRepository) SaveSnapshot(ctx context.Context, s *Snapshot) (err error) {
	start := time.Now()
	defer func() { observe("save_snapshot", start, err) }()

	data, err := encode(s)
	if err != nil {
		return err
	}
	if err = r.client.Set(ctx, SnapshotKey, data, SnapshotTTL).Err(); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// GetSnapshot последнее сохраненное состояние
func (r *RedisRepository) GetSnapshot(ctx context.Context) (*Snapshot, error) {
	data, err := r.client.Get(ctx, SnapshotKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	var s Snapshot
	if err := decode(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func geoIndexable(p models.GeoPoint) bool {
	return p.Latitude >= -maxGeoLatitude && p.Latitude <= maxGeoLatitude &&
		p.Longitude >= -180 && p.Longitude <= 180 &&
		!math.IsNaN(p.Latitude) && !math.IsNaN(p.Longitude)
}

func waypointMember(id uint32) string {
	return fmt.Sprintf("%d", id)
}

// SaveWaypoints заменяет базу путевых точек
func (r *RedisRepository) SaveWaypoints(ctx context.Context, wps []models.Waypoint) (err error) {
	start := time.Now()
	defer func() { observe("save_waypoints", start, err) }()

	oldCells, err := r.client.SMembers(ctx, WaypointCellsKey).Result()
	if err != nil {
		return fmt.Errorf("failed to read waypoint cells: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, WaypointsGeoKey, WaypointDataKey, WaypointCellsKey)
	if len(oldCells) > 0 {
		pipe.Del(ctx, oldCells...)
	}

	skipped := 0
	for _, wp := range wps {
		if !geoIndexable(wp.Location) {
			skipped++
			continue
		}
		data, eerr := encode(wp)
		if eerr != nil {
			return eerr
		}
		member := waypointMember(wp.ID)
		cell := WaypointCellPrefix + wp.Location.Geohash(int(r.config.GeohashPrecision))

		pipe.GeoAdd(ctx, WaypointsGeoKey, &redis.GeoLocation{
			Name:      member,
			Latitude:  wp.Location.Latitude,
			Longitude: wp.Location.Longitude,
		})
		pipe.HSet(ctx, WaypointDataKey, member, data)
		pipe.SAdd(ctx, cell, member)
		pipe.SAdd(ctx, WaypointCellsKey, cell)
	}
	if _, err = pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save waypoints: %w", err)
	}

	if skipped > 0 {
		r.logger.WithField("skipped", skipped).Warn("Skipping GEO indexing for waypoints with invalid coordinates")
	}
	r.logger.WithField("count", len(wps)-skipped).Info("Waypoints saved")
	return nil
}

func (r *RedisRepository) loadWaypoints(ctx context.Context, members []string) ([]models.Waypoint, error) {
	if len(members) == 0 {
		return nil, nil
	}
	vals, err := r.client.HMGet(ctx, WaypointDataKey, members...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load waypoints: %w", err)
	}
	wps := make([]models.Waypoint, 0, len(vals))
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var wp models.Waypoint
		if err := decode([]byte(s), &wp); err != nil {
			r.logger.WithField("error", err).Warn("Skipping unreadable waypoint")
			continue
		}
		wps = append(wps, wp)
	}
	return wps, nil
}

// GetWaypoints все путевые точки
func (r *RedisRepository) GetWaypoints(ctx context.Context) (_ []models.Waypoint, err error) {
	start := time.Now()
	defer func() { observe("get_waypoints", start, err) }()

	all, err := r.client.HGetAll(ctx, WaypointDataKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get waypoints: %w", err)
	}
	wps := make([]models.Waypoint, 0, len(all))
	for _, v := range all {
		var wp models.Waypoint
		if derr := decode([]byte(v), &wp); derr != nil {
			continue
		}
		wps = append(wps, wp)
	}
	sort.Slice(wps, func(i, j int) bool { return wps[i].ID < wps[j].ID })
	return wps, nil
}

// NearbyWaypoints путевые точки в радиусе radiusM метров, ближние первыми
func (r *RedisRepository) NearbyWaypoints(ctx context.Context, center models.GeoPoint, radiusM float64) (_ []models.Waypoint, err error) {
	start := time.Now()
	defer func() { observe("nearby_waypoints", start, err) }()

	members, err := r.client.GeoSearch(ctx, WaypointsGeoKey, &redis.GeoSearchQuery{
		Longitude:  center.Longitude,
		Latitude:   center.Latitude,
		Radius:     radiusM,
		RadiusUnit: "m",
		Sort:       "ASC",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to search waypoints: %w", err)
	}
	return r.loadWaypoints(ctx, members)
}

// WaypointsInCell путевые точки в ячейке geohash
func (r *RedisRepository) WaypointsInCell(ctx context.Context, hash string) ([]models.Waypoint, error) {
	members, err := r.client.SMembers(ctx, WaypointCellPrefix+hash).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read cell %s: %w", hash, err)
	}
	return r.loadWaypoints(ctx, members)
}
