package task

import (
	"math"

	"github.com/flybeeper/taskengine/internal/geo"
	"github.com/flybeeper/taskengine/internal/glide"
	"github.com/flybeeper/taskengine/internal/models"
)

// TaskManager владеет упорядоченным заданием, заданиями goto и abort и
// переключает режим между ними
type TaskManager struct {
	behaviour TaskBehaviour
	polar     glide.Polar

	ordered *OrderedTask
	goTo    *GotoTask
	abort   *AbortTask
	mode    Mode

	waypoints *geo.WaypointIndex
	common    CommonStats
	nullStats TaskStats
}

// NewTaskManager создает менеджер без задания
func NewTaskManager(b TaskBehaviour, polar glide.Polar, waypoints *geo.WaypointIndex) *TaskManager {
	if waypoints == nil {
		waypoints = geo.NewWaypointIndex()
	}
	return &TaskManager{
		behaviour: b,
		polar:     polar,
		ordered:   NewOrderedTask(b),
		goTo:      NewGotoTask(b),
		abort:     NewAbortTask(b, waypoints),
		mode:      ModeNull,
		waypoints: waypoints,
		nullStats: NewTaskStats(),
	}
}

func (m *TaskManager) Mode() Mode { return m.mode }

// Ordered упорядоченное задание менеджера
func (m *TaskManager) Ordered() *OrderedTask { return m.ordered }

func (m *TaskManager) Goto() *GotoTask { return m.goTo }

func (m *TaskManager) Abort() *AbortTask { return m.abort }

func (m *TaskManager) Waypoints() *geo.WaypointIndex { return m.waypoints }

// SetWaypoints меняет индекс путевых точек для abort
func (m *TaskManager) SetWaypoints(idx *geo.WaypointIndex) {
	if idx == nil {
		idx = geo.NewWaypointIndex()
	}
	m.waypoints = idx
	m.abort.SetWaypoints(idx)
}

func (m *TaskManager) activeTask() Task {
	switch m.mode {
	case ModeOrdered:
		return m.ordered
	case ModeGoto:
		return m.goTo
	case ModeAbort:
		return m.abort
	}
	return nil
}

// SetMode переключает режим. Пустое упорядоченное задание и goto без
// цели не включаются; возвращается действующий режим.
// Непустое задание включается без проверки правил фабрики: перед
// ModeOrdered вызывающий проверяет его через Ordered().Factory().Validate().
func (m *TaskManager) SetMode(mode Mode) Mode {
	switch mode {
	case ModeOrdered:
		if m.ordered.Size() == 0 {
			return m.mode
		}
	case ModeGoto:
		if m.goTo.Size() == 0 {
			return m.mode
		}
	case ModeAbort:
		if m.mode != ModeAbort {
			m.abort.Reset()
		}
	case ModeNull:
	default:
		return m.mode
	}
	m.mode = mode
	return m.mode
}

// Update обрабатывает новый отсчет. Упорядоченное задание обновляется
// в любом режиме.
func (m *TaskManager) Update(now, last models.AircraftState) bool {
	if last.Time > now.Time {
		m.Reset()
	}
	changed := false
	if m.ordered.Size() > 1 {
		if m.ordered.Update(now, last, &m.polar) {
			changed = true
		}
	}

	if p := m.ordered.ActivePoint(); p != nil && m.ordered.Size() > 1 {
		loc := p.LocationRemaining()
		m.abort.SetTaskTarget(&loc)
	} else {
		m.abort.SetTaskTarget(nil)
	}
	if m.mode == ModeAbort {
		if m.abort.Update(now, last, &m.polar) {
			changed = true
		}
	} else {
		m.abort.UpdateOffline(now, &m.polar)
	}

	if m.mode == ModeGoto {
		if m.goTo.Update(now, last, &m.polar) {
			changed = true
		}
	}
	m.updateCommonStats(now)
	return changed
}

// UpdateIdle медленные расчеты активного задания
func (m *TaskManager) UpdateIdle(s models.AircraftState) bool {
	if t := m.activeTask(); t != nil {
		return t.UpdateIdle(s, &m.polar)
	}
	return false
}

// UpdateAutoMC подбирает MC активного задания
func (m *TaskManager) UpdateAutoMC(s models.AircraftState, fallbackMC float64) bool {
	t := m.activeTask()
	if t == nil {
		t = m.ordered
	}
	return t.UpdateAutoMC(&m.polar, s, fallbackMC)
}

// Reset сбрасывает прохождение всех заданий
func (m *TaskManager) Reset() {
	m.ordered.Reset()
	m.goTo.Reset()
	m.abort.Reset()
	m.common = CommonStats{}
}

// Commit переносит правку задания в упорядоченное задание менеджера
func (m *TaskManager) Commit(t *OrderedTask) bool {
	modified := m.ordered.Commit(t)
	if m.mode == ModeNull && m.ordered.CheckTask() {
		m.SetMode(ModeOrdered)
	}
	if m.mode == ModeOrdered && m.ordered.Size() == 0 {
		m.mode = ModeNull
	}
	return modified
}

// Clone копия упорядоченного задания для редактирования
func (m *TaskManager) Clone() *OrderedTask { return m.ordered.Clone() }

// ActiveTaskPoint индекс активной точки активного задания
func (m *TaskManager) ActiveTaskPoint() int {
	if t := m.activeTask(); t != nil {
		return t.ActiveIndex()
	}
	return 0
}

func (m *TaskManager) SetActiveTaskPoint(i int) {
	if t := m.activeTask(); t != nil {
		t.SetActiveIndex(i)
	}
}

// IncrementActiveTaskPoint сдвигает активную точку на offset
func (m *TaskManager) IncrementActiveTaskPoint(offset int) {
	if t := m.activeTask(); t != nil && t.IsValidTaskPoint(offset) {
		t.SetActiveIndex(t.ActiveIndex() + offset)
	}
}

func (m *TaskManager) ActiveWaypoint() (models.Waypoint, bool) {
	if t := m.activeTask(); t != nil {
		return t.ActiveWaypoint()
	}
	return models.Waypoint{}, false
}

// DoGoto включает полет на путевую точку
func (m *TaskManager) DoGoto(wp models.Waypoint) bool {
	if !m.goTo.DoGoto(wp) {
		return false
	}
	m.SetMode(ModeGoto)
	return true
}

func (m *TaskManager) GlidePolar() glide.Polar { return m.polar }

func (m *TaskManager) SetGlidePolar(p glide.Polar) { m.polar = p }

func (m *TaskManager) TaskBehaviour() TaskBehaviour { return m.behaviour }

func (m *TaskManager) SetTaskBehaviour(b TaskBehaviour) {
	m.behaviour = b
	m.ordered.SetTaskBehaviour(b)
	m.goTo.SetTaskBehaviour(b)
	m.abort.SetTaskBehaviour(b)
}

func (m *TaskManager) SetOrderedTaskSettings(s OrderedTaskSettings) { m.ordered.SetSettings(s) }

// FinishHeight высота прибытия активного задания
func (m *TaskManager) FinishHeight() float64 {
	if t := m.activeTask(); t != nil {
		return t.FinishHeight()
	}
	return 0
}

// Stats статистика активного задания, либо пустая статистика
func (m *TaskManager) Stats() *TaskStats {
	if t := m.activeTask(); t != nil {
		return t.Stats()
	}
	return &m.nullStats
}

func (m *TaskManager) CommonStats() CommonStats { return m.common }

// SetTarget переносит цель точки AAT упорядоченного задания
func (m *TaskManager) SetTarget(i int, loc models.GeoPoint, override bool) bool {
	return m.ordered.SetTarget(i, loc, override)
}

func (m *TaskManager) SetTargetRangeRadial(i int, rng, radial float64, override bool) bool {
	return m.ordered.SetTargetRangeRadial(i, rng, radial, override)
}

func (m *TaskManager) TargetRangeRadial(i int) (float64, float64, bool) {
	return m.ordered.TargetRangeRadial(i)
}

func (m *TaskManager) SetTargetLock(i int, locked bool) bool {
	return m.ordered.SetTargetLock(i, locked)
}

func (m *TaskManager) updateCommonStats(s models.AircraftState) {
	c := &m.common
	c.AircraftTime = s.Time

	os := m.ordered.Stats()
	c.TaskStarted = os.TaskStarted
	c.TaskFinished = os.TaskFinished
	c.OrderedHasTargets = m.ordered.HasTargets()
	c.OrderedValid = m.ordered.CheckTask()

	headWind := 0.0
	if t := m.activeTask(); t != nil {
		st := t.Stats()
		c.TaskTimeRemaining = st.Total.TimeRemainingNow
		c.TaskTimeElapsed = st.Total.TimeElapsed
		c.ActiveTaskPoint = t.ActiveIndex()
		c.ActiveHasNext = t.IsValidTaskPoint(1)
		c.ActiveHasPrevious = t.IsValidTaskPoint(-1)
		c.NextIsLast = c.ActiveHasNext && !t.IsValidTaskPoint(2)
		c.PreviousIsFirst = c.ActiveHasPrevious && !t.IsValidTaskPoint(-2)
		if sr := st.CurrentLeg.SolutionRemaining; sr.IsDefined() {
			headWind = sr.HeadWind
		}
	} else {
		c.TaskTimeRemaining, c.TaskTimeElapsed = 0, 0
		c.ActiveTaskPoint = 0
		c.ActiveHasNext, c.ActiveHasPrevious = false, false
		c.NextIsLast, c.PreviousIsFirst = false, false
	}
	m.updateAATStats(os)

	adv := m.ordered.Advance()
	c.AdvanceState = adv.State(m.ordered.ActivePoint())
	c.AdvanceNeedsArm = adv.NeedToArm()

	c.ModeAbort = m.mode == ModeAbort
	c.ModeGoto = m.mode == ModeGoto
	c.ModeOrdered = m.mode == ModeOrdered

	c.VectorHome, c.HasHome = m.abort.VectorHome()
	c.LandableReachable = m.abort.HasLandableReachable()

	c.PolarMC = m.polar.MC()
	c.PolarBugs = m.polar.Bugs()
	c.PolarBallast = m.polar.Ballast()
	c.RiskMC = m.polar.MCRisk(s.WorkingBandFraction, m.behaviour.RiskGamma)
	c.VBlock = m.polar.SpeedToFly(s.NettoVario, headWind, true)
	c.VDolphin = m.polar.SpeedToFly(s.NettoVario, headWind, false)
}

// updateAATStats время и скорости AAT; -1 для неопределенных скоростей
func (m *TaskManager) updateAATStats(os *TaskStats) {
	c := &m.common
	c.AATTimeRemaining = 0
	c.AATSpeedRemaining, c.AATSpeedMin, c.AATSpeedMax = -1, -1, -1

	minTime := m.ordered.Settings().AATMinTime
	if !c.OrderedHasTargets || minTime <= 0 || m.ordered.Size() < 2 {
		return
	}
	c.AATTimeRemaining = math.Max(0, minTime-os.Total.TimeElapsed)
	if c.AATTimeRemaining > 0 {
		c.AATSpeedRemaining = os.Total.Remaining.Distance / c.AATTimeRemaining
	}
	c.AATSpeedMax = os.DistanceMax / minTime
	c.AATSpeedMin = os.DistanceMin / minTime
}
