package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/flybeeper/taskengine/internal/auth"
	"github.com/flybeeper/taskengine/internal/models"
	"github.com/flybeeper/taskengine/internal/mqtt"
	"github.com/flybeeper/taskengine/internal/repository"
	"github.com/flybeeper/taskengine/internal/service"
	"github.com/flybeeper/taskengine/internal/task"
	"github.com/flybeeper/taskengine/pkg/utils"
)

// TaskEngine операции вычислителя, доступные через API
type TaskEngine interface {
	Snapshot() (*repository.Snapshot, bool)
	Stats() task.TaskStats
	CommonStats() task.CommonStats
	Summary() task.TaskSummary
	Mode() task.Mode
	ActiveTask() (string, task.TaskDefinition, bool)
	TrackedDevice() string
	WriterStats() service.WriterStats

	Validate(def task.TaskDefinition) (service.ValidationReport, error)
	Declare(ctx context.Context, def task.TaskDefinition) (*repository.StoredTask, *repository.Snapshot, error)
	CreateTask(ctx context.Context, def task.TaskDefinition) (*repository.StoredTask, error)
	UpdateTask(ctx context.Context, id string, def task.TaskDefinition) (*repository.StoredTask, error)
	GetTask(ctx context.Context, id string) (*repository.StoredTask, error)
	ListTasks(ctx context.Context) ([]*repository.StoredTask, error)
	DeleteTask(ctx context.Context, id string) error
	ActivateTask(ctx context.Context, id string) (*repository.Snapshot, error)

	Reset() *repository.Snapshot
	SetMode(mode task.Mode) task.Mode
	SetActiveTaskPoint(i int) int
	IncrementActiveTaskPoint(offset int) int
	SetArmed(armed bool) bool
	ToggleArmed() bool
	SetTarget(i int, loc models.GeoPoint, override bool) error
	SetTargetRangeRadial(i int, rng, radial float64, override bool) error
	TargetRangeRadial(i int) (float64, float64, bool)
	SetTargetLock(i int, locked bool) error
	DoGoto(id uint32) (*repository.Snapshot, error)
	SetGlideSettings(mc, bugs, ballast float64) error

	Update(device string, s models.AircraftState) (*repository.Snapshot, error)
	SetWaypoints(ctx context.Context, wps []models.Waypoint) (int, error)
	Waypoints(ctx context.Context, center *models.GeoPoint, radius float64) ([]models.Waypoint, error)
	Results(ctx context.Context, limit int) ([]*repository.TaskResult, error)

	Subscribe() (<-chan *repository.Snapshot, func())
}

var _ TaskEngine = (*service.TaskService)(nil)

const (
	maxWaypointRadiusKm = 500
	defaultResultsLimit = 20
	maxResultsLimit     = 500
	httpFixDevice       = "http"
)

// RESTHandler обработчик REST API endpoints
type RESTHandler struct {
	engine  TaskEngine
	logger  *utils.Logger
	timeout time.Duration
}

// NewRESTHandler создает новый REST handler
func NewRESTHandler(engine TaskEngine, logger *utils.Logger) *RESTHandler {
	return &RESTHandler{
		engine:  engine,
		logger:  logger,
		timeout: 30 * time.Second,
	}
}

type modeRequest struct {
	Mode *task.Mode `json:"mode" binding:"required"`
}

type activeRequest struct {
	Index  *int `json:"index"`
	Offset *int `json:"offset"`
}

type armRequest struct {
	Armed *bool `json:"armed"` // нет значения - переключить
}

type targetRequest struct {
	Lat      *float64 `json:"lat"`
	Lon      *float64 `json:"lon"`
	Range    *float64 `json:"range"`
	Radial   *float64 `json:"radial"`
	Override bool     `json:"override"`
}

type lockRequest struct {
	Locked bool `json:"locked"`
}

type gotoRequest struct {
	WaypointID uint32 `json:"waypoint_id" binding:"required"`
}

type glideRequest struct {
	MC      float64 `json:"mc"`
	Bugs    float64 `json:"bugs" binding:"required"`
	Ballast float64 `json:"ballast"`
}

// activeTaskResponse задание менеджера вместе со сводкой
type activeTaskResponse struct {
	ID         string              `json:"id"`
	Mode       task.Mode           `json:"mode"`
	Definition task.TaskDefinition `json:"definition"`
	Summary    task.TaskSummary    `json:"summary"`
}

func badRequest(c *gin.Context, code, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"code":    code,
		"message": message,
	})
}

// fail переводит ошибку сервиса в HTTP ответ
func (h *RESTHandler) fail(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, service.ErrInvalidTask):
		status, code = http.StatusUnprocessableEntity, "invalid_task"
	case errors.Is(err, repository.ErrTaskNotFound):
		status, code = http.StatusNotFound, "task_not_found"
	case errors.Is(err, repository.ErrNoActiveTask):
		status, code = http.StatusNotFound, "no_active_task"
	case errors.Is(err, service.ErrWaypointNotFound):
		status, code = http.StatusNotFound, "waypoint_not_found"
	case errors.Is(err, service.ErrRejected):
		status, code = http.StatusConflict, "command_rejected"
	case service.IsRejected(err):
		status, code = http.StatusUnprocessableEntity, "fix_rejected"
	}

	if status == http.StatusInternalServerError {
		h.logger.WithFields(map[string]interface{}{
			"path":  c.FullPath(),
			"error": err,
		}).Error("Request failed")
	}
	c.JSON(status, gin.H{
		"code":    code,
		"message": err.Error(),
	})
}

func pointIndex(c *gin.Context) (int, bool) {
	i, err := strconv.Atoi(c.Param("index"))
	if err != nil || i < 0 {
		badRequest(c, "invalid_index", "Task point index must be a non-negative integer")
		return 0, false
	}
	return i, true
}

// GetActiveTask возвращает задание менеджера
// GET /api/v1/task
func (h *RESTHandler) GetActiveTask(c *gin.Context) {
	id, def, ok := h.engine.ActiveTask()
	if !ok {
		h.fail(c, repository.ErrNoActiveTask)
		return
	}
	c.JSON(http.StatusOK, activeTaskResponse{
		ID:         id,
		Mode:       h.engine.Mode(),
		Definition: def,
		Summary:    h.engine.Summary(),
	})
}

// DeclareTask сохраняет определение и делает его активным
// PUT /api/v1/task
func (h *RESTHandler) DeclareTask(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	var def task.TaskDefinition
	if err := c.ShouldBindJSON(&def); err != nil {
		badRequest(c, "invalid_definition", err.Error())
		return
	}

	stored, snap, err := h.engine.Declare(ctx, def)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"task":     stored,
		"snapshot": snap,
	})
}

// ValidateTask проверяет определение без сохранения
// POST /api/v1/task/validate
func (h *RESTHandler) ValidateTask(c *gin.Context) {
	var def task.TaskDefinition
	if err := c.ShouldBindJSON(&def); err != nil {
		badRequest(c, "invalid_definition", err.Error())
		return
	}

	report, err := h.engine.Validate(def)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// GetStats GET /api/v1/task/stats
func (h *RESTHandler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Stats())
}

// GetCommonStats GET /api/v1/task/common
func (h *RESTHandler) GetCommonStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.CommonStats())
}

// GetSummary GET /api/v1/task/summary
func (h *RESTHandler) GetSummary(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Summary())
}

// GetSnapshot последний снимок состояния
// GET /api/v1/task/snapshot
func (h *RESTHandler) GetSnapshot(c *gin.Context) {
	snap, _ := h.engine.Snapshot()
	c.JSON(http.StatusOK, snap)
}

// SetMode PUT /api/v1/task/mode
func (h *RESTHandler) SetMode(c *gin.Context) {
	var req modeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_mode", err.Error())
		return
	}

	got := h.engine.SetMode(*req.Mode)
	if got != *req.Mode {
		c.JSON(http.StatusConflict, gin.H{
			"code":    "command_rejected",
			"message": "Mode " + req.Mode.String() + " is not available",
			"mode":    got,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"mode": got})
}

// SetActive выбирает активную точку по номеру или сдвигу
// PUT /api/v1/task/active
func (h *RESTHandler) SetActive(c *gin.Context) {
	var req activeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request", err.Error())
		return
	}

	var got int
	switch {
	case req.Index != nil && req.Offset == nil:
		got = h.engine.SetActiveTaskPoint(*req.Index)
	case req.Offset != nil && req.Index == nil:
		got = h.engine.IncrementActiveTaskPoint(*req.Offset)
	default:
		badRequest(c, "invalid_request", "Exactly one of index or offset is required")
		return
	}
	c.JSON(http.StatusOK, gin.H{"active_index": got})
}

// Arm взводит переход к следующей точке
// POST /api/v1/task/arm
func (h *RESTHandler) Arm(c *gin.Context) {
	var req armRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid_request", err.Error())
			return
		}
	}

	var armed bool
	if req.Armed == nil {
		armed = h.engine.ToggleArmed()
	} else {
		armed = h.engine.SetArmed(*req.Armed)
	}
	c.JSON(http.StatusOK, gin.H{"armed": armed})
}

// Reset сбрасывает прохождение
// POST /api/v1/task/reset
func (h *RESTHandler) Reset(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Reset())
}

// GetTarget GET /api/v1/task/target/:index
func (h *RESTHandler) GetTarget(c *gin.Context) {
	i, ok := pointIndex(c)
	if !ok {
		return
	}
	rng, radial, ok := h.engine.TargetRangeRadial(i)
	if !ok {
		h.fail(c, service.ErrRejected)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"index":  i,
		"range":  rng,
		"radial": radial,
	})
}

// SetTarget переносит цель точкой или парой дальность/радиал
// PUT /api/v1/task/target/:index
func (h *RESTHandler) SetTarget(c *gin.Context) {
	i, ok := pointIndex(c)
	if !ok {
		return
	}
	var req targetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request", err.Error())
		return
	}

	var err error
	switch {
	case req.Lat != nil && req.Lon != nil:
		loc := models.NewGeoPoint(*req.Lat, *req.Lon)
		if verr := loc.Validate(); verr != nil {
			badRequest(c, "invalid_location", verr.Error())
			return
		}
		err = h.engine.SetTarget(i, loc, req.Override)
	case req.Range != nil && req.Radial != nil:
		if *req.Range < -1 || *req.Range > 1 {
			badRequest(c, "invalid_range", "Range must be between -1 and 1")
			return
		}
		err = h.engine.SetTargetRangeRadial(i, *req.Range, *req.Radial, req.Override)
	default:
		badRequest(c, "invalid_request", "Either lat/lon or range/radial is required")
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"index": i})
}

// LockTarget PUT /api/v1/task/target/:index/lock
func (h *RESTHandler) LockTarget(c *gin.Context) {
	i, ok := pointIndex(c)
	if !ok {
		return
	}
	var req lockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request", err.Error())
		return
	}
	if err := h.engine.SetTargetLock(i, req.Locked); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"index": i, "locked": req.Locked})
}

// Goto POST /api/v1/goto
func (h *RESTHandler) Goto(c *gin.Context) {
	var req gotoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request", err.Error())
		return
	}
	snap, err := h.engine.DoGoto(req.WaypointID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// SetGlide меняет MC, загрязнение и балласт
// PUT /api/v1/glide
func (h *RESTHandler) SetGlide(c *gin.Context) {
	var req glideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request", err.Error())
		return
	}
	if err := h.engine.SetGlideSettings(req.MC, req.Bugs, req.Ballast); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// PostFix принимает отсчет в формате MQTT ленты
// POST /api/v1/fix?device=abc
func (h *RESTHandler) PostFix(c *gin.Context) {
	var payload mqtt.FixPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		badRequest(c, "invalid_fix", err.Error())
		return
	}
	state, err := payload.State()
	if err != nil {
		badRequest(c, "invalid_fix", err.Error())
		return
	}
	device := c.DefaultQuery("device", httpFixDevice)
	if op, ok := auth.GetOperator(c); ok && !op.OwnsDevice(device) {
		c.JSON(http.StatusForbidden, gin.H{
			"code":    "device_not_owned",
			"message": "Device is not assigned to operator",
		})
		return
	}

	snap, err := h.engine.Update(device, state)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// ListTasks GET /api/v1/tasks
func (h *RESTHandler) ListTasks(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	tasks, err := h.engine.ListTasks(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

// CreateTask POST /api/v1/tasks
func (h *RESTHandler) CreateTask(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	var def task.TaskDefinition
	if err := c.ShouldBindJSON(&def); err != nil {
		badRequest(c, "invalid_definition", err.Error())
		return
	}
	stored, err := h.engine.CreateTask(ctx, def)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, stored)
}

// GetTask GET /api/v1/tasks/:id
func (h *RESTHandler) GetTask(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	stored, err := h.engine.GetTask(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stored)
}

// UpdateTask PUT /api/v1/tasks/:id
func (h *RESTHandler) UpdateTask(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	var def task.TaskDefinition
	if err := c.ShouldBindJSON(&def); err != nil {
		badRequest(c, "invalid_definition", err.Error())
		return
	}
	stored, err := h.engine.UpdateTask(ctx, c.Param("id"), def)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stored)
}

// DeleteTask DELETE /api/v1/tasks/:id
func (h *RESTHandler) DeleteTask(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	if err := h.engine.DeleteTask(ctx, c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ActivateTask POST /api/v1/tasks/:id/activate
func (h *RESTHandler) ActivateTask(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	snap, err := h.engine.ActivateTask(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// GetWaypoints все путевые точки или точки в радиусе
// GET /api/v1/waypoints?lat=45.1&lon=6.2&radius=50
func (h *RESTHandler) GetWaypoints(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	var center *models.GeoPoint
	var radiusM float64
	if c.Query("lat") != "" || c.Query("lon") != "" {
		lat, err := strconv.ParseFloat(c.Query("lat"), 64)
		if err != nil || lat < -90 || lat > 90 {
			badRequest(c, "invalid_latitude", "Latitude must be between -90 and 90")
			return
		}
		lon, err := strconv.ParseFloat(c.Query("lon"), 64)
		if err != nil || lon < -180 || lon > 180 {
			badRequest(c, "invalid_longitude", "Longitude must be between -180 and 180")
			return
		}
		radius, err := strconv.Atoi(c.DefaultQuery("radius", "50"))
		if err != nil || radius < 1 || radius > maxWaypointRadiusKm {
			badRequest(c, "invalid_radius", "Radius must be between 1 and 500 km")
			return
		}
		p := models.NewGeoPoint(lat, lon)
		center = &p
		radiusM = float64(radius) * 1000
	}

	wps, err := h.engine.Waypoints(ctx, center, radiusM)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"waypoints": wps,
		"count":     len(wps),
	})
}

// PutWaypoints заменяет базу путевых точек
// PUT /api/v1/waypoints
func (h *RESTHandler) PutWaypoints(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	var wps []models.Waypoint
	if err := c.ShouldBindJSON(&wps); err != nil {
		badRequest(c, "invalid_waypoints", err.Error())
		return
	}
	n, err := h.engine.SetWaypoints(ctx, wps)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"stored":  n,
		"skipped": len(wps) - n,
	})
}

// GetResults GET /api/v1/results?limit=20
func (h *RESTHandler) GetResults(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	limit := defaultResultsLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxResultsLimit {
			badRequest(c, "invalid_limit", "Limit must be between 1 and 500")
			return
		}
		limit = n
	}

	results, err := h.engine.Results(ctx, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}
