package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/flybeeper/taskengine/internal/config"
	"github.com/flybeeper/taskengine/internal/geo"
	"github.com/flybeeper/taskengine/internal/glide"
	"github.com/flybeeper/taskengine/internal/metrics"
	"github.com/flybeeper/taskengine/internal/models"
	"github.com/flybeeper/taskengine/internal/repository"
	"github.com/flybeeper/taskengine/internal/task"
	"github.com/flybeeper/taskengine/pkg/utils"
)

var (
	// ErrInvalidTask задание не прошло проверку фабрики
	ErrInvalidTask = errors.New("invalid task")
	// ErrWaypointNotFound нет путевой точки с таким идентификатором
	ErrWaypointNotFound = errors.New("waypoint not found")
	// ErrRejected команда не применима в текущем состоянии
	ErrRejected = errors.New("command rejected")
)

// subscriberBuffer глубина очереди снимков одного подписчика
const subscriberBuffer = 8

var allModes = []string{
	task.ModeNull.String(), task.ModeOrdered.String(), task.ModeGoto.String(), task.ModeAbort.String(),
}

// ValidationReport результат проверки определения задания
type ValidationReport struct {
	Valid       bool     `json:"valid"`
	Errors      []string `json:"errors"`
	Distance    float64  `json:"distance_nominal"`
	DistanceMin float64  `json:"distance_min"`
	DistanceMax float64  `json:"distance_max"`
}

// TaskService владеет менеджером заданий: принимает отсчеты, команды
// пилота и правки задания, сохраняет состояние и рассылает снимки.
type TaskService struct {
	mu      sync.RWMutex
	manager *task.TaskManager
	index   *geo.WaypointIndex
	taskID  string
	last    models.AircraftState
	hasLast bool
	latest  *repository.Snapshot

	// finished выставляется событием финиша во время Update
	finished bool

	config  *config.EngineConfig
	repo    repository.TaskRepository
	results repository.ResultRepository
	writer  *Writer
	gate    *FixGate
	idle    *rate.Limiter
	logger  *utils.Logger

	subMu       sync.RWMutex
	subscribers map[int]chan *repository.Snapshot
	nextSub     int
}

// NewTaskService создает сервис. results может быть nil.
func NewTaskService(cfg *config.EngineConfig, repo repository.TaskRepository, results repository.ResultRepository, logger *utils.Logger) (*TaskService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("engine config cannot be nil")
	}
	if repo == nil {
		return nil, fmt.Errorf("task repository cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	behaviour, err := BehaviourFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	polar, err := PolarFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	index := geo.NewWaypointIndex()
	s := &TaskService{
		manager:     task.NewTaskManager(behaviour, polar, index),
		index:       index,
		config:      cfg,
		repo:        repo,
		results:     results,
		writer:      NewWriter(repo, results, logger, nil),
		idle:        rate.NewLimiter(rate.Every(cfg.IdleInterval), 1),
		logger:      logger,
		subscribers: make(map[int]chan *repository.Snapshot),
		gate: NewFixGate(GateConfig{
			Device:        cfg.TrackDevice,
			MaxSpeed:      cfg.MaxFixSpeed,
			ReorderWindow: cfg.ReorderWindow.Seconds(),
		}, logger),
	}
	s.manager.SetOrderedTaskSettings(behaviour.OrderedDefault)
	s.manager.Ordered().SetEvents(taskEvents{s: s})
	metrics.SetMode(task.ModeNull.String(), allModes)
	return s, nil
}

// BehaviourFromConfig собирает поведение менеджера из конфигурации
func BehaviourFromConfig(cfg *config.EngineConfig) (task.TaskBehaviour, error) {
	b := task.DefaultTaskBehaviour()

	autoMC, err := task.ParseAutoMCMode(cfg.AutoMCMode)
	if err != nil {
		return b, fmt.Errorf("failed to parse auto MC mode: %w", err)
	}
	abort, err := task.ParseAbortMode(cfg.AbortMode)
	if err != nil {
		return b, fmt.Errorf("failed to parse abort mode: %w", err)
	}
	advance, err := task.ParseAdvanceMode(cfg.AdvanceMode)
	if err != nil {
		return b, fmt.Errorf("failed to parse advance mode: %w", err)
	}

	b.AutoMC = cfg.AutoMC
	b.AutoMCMode = autoMC
	b.AbortMode = abort
	b.AdvanceMode = advance
	b.SafetyHeightArrival = cfg.SafetyHeight
	b.SafetyMC = cfg.SafetyMC
	b.RiskGamma = cfg.RiskGamma
	b.MinSearchThreshold = cfg.MinSearchThreshold
	b.OptimiseTargetsRange = cfg.OptimiseTargetsRange
	b.OptimiseTargetsBearing = cfg.OptimiseTargetsBearing

	b.OrderedDefault.AATMinTime = cfg.AATMinTime.Seconds()
	b.OrderedDefault.Start.MaxHeight = cfg.StartMaxHeight
	b.OrderedDefault.Start.MaxSpeed = cfg.StartMaxSpeed
	b.OrderedDefault.Finish.MinHeight = cfg.FinishMinHeight
	return b, nil
}

// PolarFromConfig собирает поляру с MC, загрязнением и балластом
func PolarFromConfig(cfg *config.EngineConfig) (glide.Polar, error) {
	p, err := glide.NewPolar(glide.Coefficients{A: cfg.PolarA, B: cfg.PolarB, C: cfg.PolarC},
		cfg.ReferenceMass, cfg.DryMass, cfg.BallastCapacity)
	if err != nil {
		return glide.Polar{}, fmt.Errorf("failed to build polar: %w", err)
	}
	p.SetMC(cfg.MC)
	p.SetBugs(cfg.Bugs)
	p.SetBallast(cfg.Ballast)
	return p, nil
}

// DefaultFactory тип задания для определений без явного типа
func (s *TaskService) DefaultFactory() task.FactoryType {
	f, err := task.ParseFactoryType(s.config.TaskType)
	if err != nil {
		return task.FactoryRacing
	}
	return f
}

// Start загружает путевые точки и активное задание и запускает запись
func (s *TaskService) Start(ctx context.Context) error {
	wps, err := s.repo.GetWaypoints(ctx)
	if err != nil {
		return fmt.Errorf("failed to load waypoints: %w", err)
	}

	s.mu.Lock()
	s.rebuildIndexLocked(wps)
	s.mu.Unlock()

	stored, err := s.repo.GetActiveTask(ctx)
	switch {
	case errors.Is(err, repository.ErrNoActiveTask), errors.Is(err, repository.ErrTaskNotFound):
		s.logger.Info("No active task stored")
	case err != nil:
		return fmt.Errorf("failed to load active task: %w", err)
	default:
		if _, err := s.activate(stored); err != nil {
			s.logger.WithFields(map[string]interface{}{
				"task_id": stored.ID,
				"error":   err,
			}).Warn("Stored active task cannot be restored")
		}
	}

	s.writer.Start()
	s.logger.WithFields(map[string]interface{}{
		"waypoints": len(wps),
		"mode":      s.Mode().String(),
	}).Info("Task service started")
	return nil
}

// Stop останавливает запись и закрывает подписки
func (s *TaskService) Stop() {
	s.writer.Stop()

	s.subMu.Lock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	s.subMu.Unlock()
	metrics.StreamSubscribers.Set(0)
}

// Update обрабатывает отсчет устройства и возвращает новый снимок
func (s *TaskService) Update(device string, state models.AircraftState) (*repository.Snapshot, error) {
	if err := s.gate.Check(device, state); err != nil {
		return nil, err
	}

	s.mu.Lock()
	last := state
	if s.hasLast {
		last = s.last
	}
	mode := s.manager.Mode()
	s.finished = false

	start := time.Now()
	s.manager.Update(state, last)
	metrics.UpdateDuration.WithLabelValues("update").Observe(time.Since(start).Seconds())

	start = time.Now()
	s.manager.UpdateAutoMC(state, s.config.MC)
	metrics.UpdateDuration.WithLabelValues("auto_mc").Observe(time.Since(start).Seconds())

	if s.idle.Allow() {
		start = time.Now()
		s.manager.UpdateIdle(state)
		metrics.UpdateDuration.WithLabelValues("idle").Observe(time.Since(start).Seconds())
	}

	s.last = state
	s.hasLast = true
	metrics.UpdatesTotal.WithLabelValues(mode.String()).Inc()

	var result *repository.TaskResult
	if s.finished {
		result = s.resultLocked()
	}
	snap := s.snapshotLocked()
	s.latest = snap
	s.mu.Unlock()

	if result != nil {
		s.logger.WithFields(map[string]interface{}{
			"task_id":  result.TaskID,
			"distance": result.DistanceScored,
			"speed":    result.Speed,
		}).Info("Task finished")
		if err := s.writer.QueueResult(result); err != nil {
			s.logger.WithField("error", err).Warn("Failed to queue task result")
		}
	}
	s.writer.QueueSnapshot(snap)
	s.publish(snap)
	return snap, nil
}

func (s *TaskService) resultLocked() *repository.TaskResult {
	ordered := s.manager.Ordered()
	stats := ordered.Stats()
	res := &repository.TaskResult{
		TaskID:         s.taskID,
		TaskName:       ordered.Name(),
		Factory:        ordered.FactoryType().String(),
		DistanceScored: stats.DistanceScored,
		DistanceMax:    stats.DistanceMax,
		Speed:          stats.Total.Travelled.Speed,
		CreatedAt:      time.Now().UTC(),
	}
	if st, ok := ordered.StartState(); ok {
		res.StartTime = st.Time
		res.StartAltitude = st.Altitude
	}
	if fin, ok := ordered.FinishState(); ok {
		res.FinishTime = fin.Time
	}
	return res
}

func (s *TaskService) snapshotLocked() *repository.Snapshot {
	return &repository.Snapshot{
		Mode:        s.manager.Mode(),
		ActiveIndex: s.manager.ActiveTaskPoint(),
		TaskID:      s.taskID,
		Stats:       *s.manager.Stats(),
		Common:      s.manager.CommonStats(),
		UpdatedAt:   time.Now().UTC(),
	}
}

// refreshLocked обновляет снимок после команды без нового отсчета
func (s *TaskService) refreshLocked() *repository.Snapshot {
	mode := s.manager.Mode()
	metrics.SetMode(mode.String(), allModes)
	metrics.ActiveTaskPoint.Set(float64(s.manager.ActiveTaskPoint()))
	snap := s.snapshotLocked()
	s.latest = snap
	return snap
}

func (s *TaskService) afterCommand(snap *repository.Snapshot) {
	s.writer.QueueSnapshot(snap)
	s.publish(snap)
}

// Snapshot последний снимок состояния
func (s *TaskService) Snapshot() (*repository.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return s.snapshotLocked(), false
	}
	cp := *s.latest
	return &cp, true
}

// Stats статистика активного задания
func (s *TaskService) Stats() task.TaskStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.manager.Stats()
}

// CommonStats общая статистика менеджера
func (s *TaskService) CommonStats() task.CommonStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.manager.CommonStats()
}

// Summary сводка по упорядоченному заданию
func (s *TaskService) Summary() task.TaskSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.manager.Ordered().Summary()
}

func (s *TaskService) Mode() task.Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.manager.Mode()
}

// ActiveTask идентификатор и определение задания менеджера
func (s *TaskService) ActiveTask() (string, task.TaskDefinition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.manager.Ordered().Size() == 0 {
		return "", task.TaskDefinition{}, false
	}
	return s.taskID, s.manager.Ordered().Definition(), true
}

// Validate проверяет определение без сохранения
func (s *TaskService) Validate(def task.TaskDefinition) (ValidationReport, error) {
	s.mu.RLock()
	b := s.manager.TaskBehaviour()
	s.mu.RUnlock()

	t, err := task.Build(def, b)
	if err != nil {
		return ValidationReport{}, fmt.Errorf("%w: %v", ErrInvalidTask, err)
	}
	errs := t.Factory().Validate()
	report := ValidationReport{
		Valid:       !errs.IsError(),
		Errors:      errs.Names(),
		Distance:    t.Stats().DistanceNominal,
		DistanceMin: t.Stats().DistanceMin,
		DistanceMax: t.Stats().DistanceMax,
	}
	metrics.ObserveValidation(report.Errors, !report.Valid)
	return report, nil
}

func (s *TaskService) checkDefinition(def task.TaskDefinition) error {
	report, err := s.Validate(def)
	if err != nil {
		return err
	}
	if !report.Valid {
		return fmt.Errorf("%w: %s", ErrInvalidTask, strings.Join(report.Errors, ","))
	}
	return nil
}

// CreateTask проверяет и сохраняет определение
func (s *TaskService) CreateTask(ctx context.Context, def task.TaskDefinition) (*repository.StoredTask, error) {
	if err := s.checkDefinition(def); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	stored := &repository.StoredTask{
		ID:         uuid.NewString(),
		Definition: def,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.SaveTask(ctx, stored); err != nil {
		return nil, err
	}
	s.logger.WithFields(map[string]interface{}{
		"task_id": stored.ID,
		"name":    def.Name,
		"factory": def.Factory.String(),
		"points":  len(def.Points),
	}).Info("Task created")
	return stored, nil
}

// UpdateTask заменяет определение; активное задание сразу пересобирается
func (s *TaskService) UpdateTask(ctx context.Context, id string, def task.TaskDefinition) (*repository.StoredTask, error) {
	stored, err := s.repo.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkDefinition(def); err != nil {
		return nil, err
	}
	stored.Definition = def
	stored.UpdatedAt = time.Now().UTC()
	if err := s.repo.SaveTask(ctx, stored); err != nil {
		return nil, err
	}

	s.mu.RLock()
	active := s.taskID == id
	s.mu.RUnlock()
	if active {
		if _, err := s.activate(stored); err != nil {
			return nil, err
		}
	}
	return stored, nil
}

// GetTask сохраненное задание
func (s *TaskService) GetTask(ctx context.Context, id string) (*repository.StoredTask, error) {
	return s.repo.GetTask(ctx, id)
}

// ListTasks сохраненные задания, новые первыми
func (s *TaskService) ListTasks(ctx context.Context) ([]*repository.StoredTask, error) {
	return s.repo.ListTasks(ctx)
}

// DeleteTask удаляет задание; активное задание снимается с менеджера
func (s *TaskService) DeleteTask(ctx context.Context, id string) error {
	if err := s.repo.DeleteTask(ctx, id); err != nil {
		return err
	}

	s.mu.Lock()
	if s.taskID != id {
		s.mu.Unlock()
		return nil
	}
	s.manager.Commit(task.NewOrderedTask(s.manager.TaskBehaviour()))
	s.taskID = ""
	snap := s.refreshLocked()
	s.mu.Unlock()

	s.afterCommand(snap)
	s.logger.WithField("task_id", id).Info("Active task deleted")
	return nil
}

// ActivateTask делает сохраненное задание активным
func (s *TaskService) ActivateTask(ctx context.Context, id string) (*repository.Snapshot, error) {
	stored, err := s.repo.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	snap, err := s.activate(stored)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetActiveTask(ctx, id); err != nil {
		return nil, err
	}
	return snap, nil
}

// Declare сохраняет определение и сразу делает его активным
func (s *TaskService) Declare(ctx context.Context, def task.TaskDefinition) (*repository.StoredTask, *repository.Snapshot, error) {
	stored, err := s.CreateTask(ctx, def)
	if err != nil {
		return nil, nil, err
	}
	snap, err := s.activate(stored)
	if err != nil {
		return nil, nil, err
	}
	if err := s.repo.SetActiveTask(ctx, stored.ID); err != nil {
		return nil, nil, err
	}
	return stored, snap, nil
}

func (s *TaskService) activate(stored *repository.StoredTask) (*repository.Snapshot, error) {
	s.mu.Lock()
	t, err := task.Build(stored.Definition, s.manager.TaskBehaviour())
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", ErrInvalidTask, err)
	}
	s.manager.Commit(t)
	if s.manager.Mode() == task.ModeNull {
		s.manager.SetMode(task.ModeOrdered)
	}
	s.taskID = stored.ID
	snap := s.refreshLocked()
	s.mu.Unlock()

	s.afterCommand(snap)
	s.logger.WithFields(map[string]interface{}{
		"task_id": stored.ID,
		"name":    stored.Definition.Name,
		"mode":    snap.Mode.String(),
	}).Info("Task activated")
	return snap, nil
}

// Reset сбрасывает прохождение заданий и фильтр отсчетов
func (s *TaskService) Reset() *repository.Snapshot {
	s.mu.Lock()
	s.manager.Reset()
	s.hasLast = false
	snap := s.refreshLocked()
	s.mu.Unlock()

	s.gate.Reset()
	s.afterCommand(snap)
	s.logger.Info("Task progress reset")
	return snap
}

// SetMode переключает режим менеджера; возвращает действующий режим
func (s *TaskService) SetMode(mode task.Mode) task.Mode {
	s.mu.Lock()
	got := s.manager.SetMode(mode)
	snap := s.refreshLocked()
	s.mu.Unlock()

	s.afterCommand(snap)
	if got != mode {
		s.logger.WithFields(map[string]interface{}{
			"requested": mode.String(),
			"mode":      got.String(),
		}).Warn("Mode change refused")
	}
	return got
}

// SetActiveTaskPoint выбирает активную точку
func (s *TaskService) SetActiveTaskPoint(i int) int {
	s.mu.Lock()
	s.manager.SetActiveTaskPoint(i)
	got := s.manager.ActiveTaskPoint()
	snap := s.refreshLocked()
	s.mu.Unlock()

	s.afterCommand(snap)
	return got
}

// IncrementActiveTaskPoint сдвигает активную точку
func (s *TaskService) IncrementActiveTaskPoint(offset int) int {
	s.mu.Lock()
	s.manager.IncrementActiveTaskPoint(offset)
	got := s.manager.ActiveTaskPoint()
	snap := s.refreshLocked()
	s.mu.Unlock()

	s.afterCommand(snap)
	return got
}

// SetArmed взводит или снимает взвод перехода
func (s *TaskService) SetArmed(armed bool) bool {
	s.mu.Lock()
	a := s.manager.Ordered().Advance()
	a.SetArmed(armed)
	got := a.IsArmed()
	snap := s.refreshLocked()
	s.mu.Unlock()

	s.afterCommand(snap)
	return got
}

// ToggleArmed переключает взвод перехода
func (s *TaskService) ToggleArmed() bool {
	s.mu.Lock()
	got := s.manager.Ordered().Advance().ToggleArmed()
	snap := s.refreshLocked()
	s.mu.Unlock()

	s.afterCommand(snap)
	return got
}

// SetTarget переносит цель точки AAT
func (s *TaskService) SetTarget(i int, loc models.GeoPoint, override bool) error {
	return s.targetCommand(func() bool { return s.manager.SetTarget(i, loc, override) })
}

// SetTargetRangeRadial переносит цель в координатах дальность/радиал
func (s *TaskService) SetTargetRangeRadial(i int, rng, radial float64, override bool) error {
	return s.targetCommand(func() bool { return s.manager.SetTargetRangeRadial(i, rng, radial, override) })
}

// TargetRangeRadial положение цели точки
func (s *TaskService) TargetRangeRadial(i int) (float64, float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.manager.TargetRangeRadial(i)
}

// SetTargetLock фиксирует цель точки
func (s *TaskService) SetTargetLock(i int, locked bool) error {
	return s.targetCommand(func() bool { return s.manager.SetTargetLock(i, locked) })
}

func (s *TaskService) targetCommand(fn func() bool) error {
	s.mu.Lock()
	ok := fn()
	snap := s.refreshLocked()
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: point has no adjustable target", ErrRejected)
	}
	s.afterCommand(snap)
	return nil
}

// DoGoto включает полет на путевую точку по идентификатору
func (s *TaskService) DoGoto(id uint32) (*repository.Snapshot, error) {
	s.mu.Lock()
	wp, ok := s.index.Get(id)
	if !ok {
		s.mu.Unlock()
		return nil, ErrWaypointNotFound
	}
	if !s.manager.DoGoto(wp) {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: goto %s", ErrRejected, wp.Name)
	}
	snap := s.refreshLocked()
	s.mu.Unlock()

	s.afterCommand(snap)
	s.logger.WithField("waypoint", wp.Name).Info("Goto started")
	return snap, nil
}

// SetGlideSettings меняет MC, загрязнение и балласт поляры
func (s *TaskService) SetGlideSettings(mc, bugs, ballast float64) error {
	if mc < 0 || bugs <= 0 || bugs > 1 || ballast < 0 || ballast > 1 {
		return fmt.Errorf("%w: mc=%.2f bugs=%.2f ballast=%.2f", ErrRejected, mc, bugs, ballast)
	}
	s.mu.Lock()
	p := s.manager.GlidePolar()
	p.SetMC(mc)
	p.SetBugs(bugs)
	p.SetBallast(ballast)
	s.manager.SetGlidePolar(p)
	snap := s.refreshLocked()
	s.mu.Unlock()

	s.afterCommand(snap)
	return nil
}

// SetWaypoints заменяет базу путевых точек
func (s *TaskService) SetWaypoints(ctx context.Context, wps []models.Waypoint) (int, error) {
	valid := make([]models.Waypoint, 0, len(wps))
	for _, wp := range wps {
		if err := wp.Validate(); err != nil {
			s.logger.WithField("error", err).Warn("Skipping invalid waypoint")
			continue
		}
		valid = append(valid, wp)
	}
	if err := s.repo.SaveWaypoints(ctx, valid); err != nil {
		return 0, err
	}

	s.mu.Lock()
	s.rebuildIndexLocked(valid)
	s.mu.Unlock()
	return len(valid), nil
}

func (s *TaskService) rebuildIndexLocked(wps []models.Waypoint) {
	idx := geo.NewWaypointIndex()
	for _, wp := range wps {
		idx.Insert(wp)
	}
	s.index = idx
	s.manager.SetWaypoints(idx)
}

// Waypoints путевые точки около позиции из хранилища
func (s *TaskService) Waypoints(ctx context.Context, center *models.GeoPoint, radius float64) ([]models.Waypoint, error) {
	if center == nil {
		return s.repo.GetWaypoints(ctx)
	}
	return s.repo.NearbyWaypoints(ctx, *center, radius)
}

// Results последние результаты заданий
func (s *TaskService) Results(ctx context.Context, limit int) ([]*repository.TaskResult, error) {
	if s.results == nil {
		return []*repository.TaskResult{}, nil
	}
	return s.results.ListResults(ctx, limit)
}

// TrackedDevice устройство, чьи отсчеты принимаются
func (s *TaskService) TrackedDevice() string {
	return s.gate.Device()
}

// WriterStats счетчики записи
func (s *TaskService) WriterStats() WriterStats {
	return s.writer.Stats()
}

// Subscribe подписка на снимки. Медленный подписчик теряет снимки.
func (s *TaskService) Subscribe() (<-chan *repository.Snapshot, func()) {
	ch := make(chan *repository.Snapshot, subscriberBuffer)

	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = ch
	metrics.StreamSubscribers.Set(float64(len(s.subscribers)))
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			if c, ok := s.subscribers[id]; ok {
				delete(s.subscribers, id)
				close(c)
			}
			metrics.StreamSubscribers.Set(float64(len(s.subscribers)))
			s.subMu.Unlock()
		})
	}
}

func (s *TaskService) publish(snap *repository.Snapshot) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	for _, ch := range s.subscribers {
		cp := *snap
		select {
		case ch <- &cp:
		default:
			metrics.SnapshotsDropped.Inc()
		}
	}
}
