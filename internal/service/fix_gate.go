package service

import (
	"errors"
	"fmt"
	"sync"

	"github.com/flybeeper/taskengine/internal/metrics"
	"github.com/flybeeper/taskengine/internal/models"
	"github.com/flybeeper/taskengine/pkg/utils"
)

// Причины отказа в отсчете
const (
	RejectInvalid    = "invalid"
	RejectDevice     = "device"
	RejectDuplicate  = "duplicate"
	RejectOutOfOrder = "out_of_order"
	RejectTeleport   = "teleport"
)

// maxConsecutiveRejects после стольких отказов подряд отсчет принимается
// как новая опорная точка
const maxConsecutiveRejects = 5

// RejectError отсчет не передан вычислителю
type RejectError struct {
	Reason string
	Detail string
}

func (e *RejectError) Error() string {
	if e.Detail == "" {
		return "fix rejected: " + e.Reason
	}
	return fmt.Sprintf("fix rejected: %s: %s", e.Reason, e.Detail)
}

// IsRejected проверяет, что ошибка означает отброшенный отсчет
func IsRejected(err error) bool {
	var re *RejectError
	return errors.As(err, &re)
}

// GateConfig параметры фильтра отсчетов
type GateConfig struct {
	Device        string  // пусто - закрепляется первое увиденное устройство
	MaxSpeed      float64 // м/с
	ReorderWindow float64 // с, более ранний отсчет в пределах окна отбрасывается
}

// FixGate отбирает отсчеты одного устройства перед вычислителем. Откат
// времени больше окна пропускается: вычислитель сбрасывает задание.
type FixGate struct {
	mu     sync.Mutex
	config GateConfig
	logger *utils.Logger

	device       string
	last         models.AircraftState
	hasLast      bool
	rejectsInRow int
}

// NewFixGate создает фильтр отсчетов
func NewFixGate(cfg GateConfig, logger *utils.Logger) *FixGate {
	return &FixGate{
		config: cfg,
		logger: logger,
		device: cfg.Device,
	}
}

// Device закрепленное устройство
func (g *FixGate) Device() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.device
}

// Reset забывает последний отсчет и незакрепленное устройство
func (g *FixGate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.device = g.config.Device
	g.hasLast = false
	g.rejectsInRow = 0
}

// Check принимает или отклоняет отсчет устройства
func (g *FixGate) Check(device string, s models.AircraftState) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	err := g.check(device, s)
	if err != nil {
		var re *RejectError
		if errors.As(err, &re) {
			metrics.FixesRejected.WithLabelValues(re.Reason).Inc()
		}
		g.logger.WithFields(map[string]interface{}{
			"device_id": device,
			"time":      s.Time,
			"error":     err,
		}).Debug("Fix rejected")
		return err
	}
	metrics.FixesAccepted.Inc()
	return nil
}

func (g *FixGate) check(device string, s models.AircraftState) error {
	if err := s.Validate(); err != nil {
		return &RejectError{Reason: RejectInvalid, Detail: err.Error()}
	}

	if g.device == "" {
		g.device = device
		g.logger.WithField("device_id", device).Info("Tracking device")
	}
	if device != g.device {
		return &RejectError{Reason: RejectDevice, Detail: device}
	}

	if !g.hasLast {
		g.accept(s)
		return nil
	}

	dt := s.Time - g.last.Time
	switch {
	case dt == 0:
		return g.reject(RejectDuplicate, "")
	case dt < 0 && -dt <= g.config.ReorderWindow:
		return g.reject(RejectOutOfOrder, fmt.Sprintf("%.1fs behind", -dt))
	case dt < 0:
		// откат времени, например воспроизведение записи
		g.accept(s)
		return nil
	}

	if g.config.MaxSpeed > 0 {
		speed := g.last.Location.Distance(s.Location) / dt
		if speed > g.config.MaxSpeed && g.rejectsInRow < maxConsecutiveRejects {
			return g.reject(RejectTeleport, fmt.Sprintf("%.0f m/s", speed))
		}
	}

	g.accept(s)
	return nil
}

func (g *FixGate) accept(s models.AircraftState) {
	g.last = s
	g.hasLast = true
	g.rejectsInRow = 0
}

func (g *FixGate) reject(reason, detail string) error {
	g.rejectsInRow++
	return &RejectError{Reason: reason, Detail: detail}
}
