package task

import (
	"math"

	"github.com/flybeeper/taskengine/internal/glide"
	"github.com/flybeeper/taskengine/internal/models"
	"github.com/flybeeper/taskengine/internal/solver"
)

const (
	// finalGlideHysteresis запас высоты для входа в режим финального планирования
	finalGlideHysteresis = 120.0

	ceFilterTau  = 60.0
	emcFilterTau = 60.0
	mcFilterTau  = 8.0
)

// Task общий интерфейс заданий менеджера
type Task interface {
	Type() TaskType
	// Update обрабатывает новый отсчет; true, если изменилось состояние задания
	Update(now, last models.AircraftState, polar *glide.Polar) bool
	// UpdateIdle выполняет расчеты, которые можно пропустить под нагрузкой
	UpdateIdle(state models.AircraftState, polar *glide.Polar) bool
	UpdateAutoMC(polar *glide.Polar, state models.AircraftState, fallbackMC float64) bool
	Stats() *TaskStats
	Size() int
	ActiveIndex() int
	SetActiveIndex(i int)
	// IsValidTaskPoint существует ли точка со смещением offset от активной
	IsValidTaskPoint(offset int) bool
	ActiveWaypoint() (models.Waypoint, bool)
	FinishHeight() float64
	CheckTask() bool
	SetTaskBehaviour(b TaskBehaviour)
	Reset()
}

// route пути, по которым строятся решения планирования на тике
type route struct {
	// remaining точки после самолета и минимальные высоты прибытия в них
	remaining  []models.GeoPoint
	remainingH []float64
	// planned весь план; plannedH[i] относится к planned[i+1]
	planned  []models.GeoPoint
	plannedH []float64
	// plannedLeg индекс текущего участка в плане, -1 если его нет
	plannedLeg int
	// travelled пройденные точки, последняя точка самолет
	travelled []models.GeoPoint
}

// taskCore общий конвейер статистики заданий
type taskCore struct {
	stats TaskStats

	total    elementSpeeds
	leg      elementSpeeds
	lastHour windowSpeed

	ceFilter  lowPassFilter
	emcFilter lowPassFilter
	mcFilter  lowPassFilter

	remainingSol  solver.Solution
	remainingLegs []solver.Leg
	travelledLegs []solver.Leg
}

func newTaskCore() taskCore {
	return taskCore{
		stats:     NewTaskStats(),
		total:     newElementSpeeds(),
		leg:       newElementSpeeds(),
		lastHour:  windowSpeed{window: lastHourWindow},
		ceFilter:  lowPassFilter{tau: ceFilterTau},
		emcFilter: lowPassFilter{tau: emcFilterTau},
		mcFilter:  lowPassFilter{tau: mcFilterTau},
	}
}

func (c *taskCore) resetCore() {
	c.stats = NewTaskStats()
	c.total.reset()
	c.leg.reset()
	c.lastHour.reset()
	c.ceFilter.clear()
	c.emcFilter.clear()
	c.mcFilter.clear()
	c.remainingSol = solver.Solution{}
	c.remainingLegs = nil
	c.travelledLegs = nil
}

func withAircraft(loc models.GeoPoint, pts []models.GeoPoint) []models.GeoPoint {
	out := make([]models.GeoPoint, 0, len(pts)+1)
	out = append(out, loc)
	return append(out, pts...)
}

func samePolarMC0(p *glide.Polar) glide.Polar {
	if p.MC() == 0 {
		return *p
	}
	return p.WithMC(0)
}

// solveRoute заполняет решения остатка, плана и пройденной части
func (c *taskCore) solveRoute(p *glide.Polar, s models.AircraftState, r route) {
	polar := *p

	c.remainingLegs = solver.Legs(withAircraft(s.Location, r.remaining), r.remainingH)
	c.remainingSol = solver.Solve(polar, c.remainingLegs, s.Altitude, s.Wind)
	c.stats.Total.SolutionRemaining = c.remainingSol.Total
	c.stats.CurrentLeg.SolutionRemaining = c.remainingSol.First()

	mc0 := solver.Solve(samePolarMC0(p), c.remainingLegs, s.Altitude, s.Wind)
	c.stats.Total.SolutionMC0 = mc0.Total
	c.stats.CurrentLeg.SolutionMC0 = mc0.First()

	planned := solver.Solve(polar, solver.Legs(r.planned, r.plannedH), s.Altitude, s.Wind)
	c.stats.Total.SolutionPlanned = planned.Total
	if r.plannedLeg >= 0 && r.plannedLeg < len(planned.Legs) {
		c.stats.CurrentLeg.SolutionPlanned = planned.Legs[r.plannedLeg]
	} else {
		c.stats.CurrentLeg.SolutionPlanned = glide.NoSolution()
	}

	flat := make([]float64, 0, len(r.travelled))
	for i := 1; i < len(r.travelled); i++ {
		flat = append(flat, s.Altitude)
	}
	c.travelledLegs = solver.Legs(r.travelled, flat)
	travelled := solver.Solve(polar, c.travelledLegs, s.Altitude, s.Wind)
	c.stats.Total.SolutionTravelled = travelled.Total
	if n := len(travelled.Legs); n > 0 {
		c.stats.CurrentLeg.SolutionTravelled = travelled.Legs[n-1]
	} else {
		c.stats.CurrentLeg.SolutionTravelled = glide.NoSolution()
	}

	finalH, firstH := s.Altitude, s.Altitude
	if n := len(r.remainingH); n > 0 {
		finalH, firstH = r.remainingH[n-1], r.remainingH[0]
	}
	c.stats.Total.Gradient = gradient(c.stats.Total.Remaining.Distance, s.Altitude-finalH)
	c.stats.CurrentLeg.Gradient = gradient(c.stats.CurrentLeg.Remaining.Distance, s.Altitude-firstH)
}

// updateTimes обновляет времена. untilStart время до старта для еще не
// начатого задания.
func (c *taskCore) updateTimes(untilStart, startTime, legStart, now float64) {
	total := &c.stats.Total
	total.setTimes(untilStart, startTime, now)
	c.stats.CurrentLeg.setTimes(0, legStart, now)

	total.RemainingEffective.Distance = solver.EffectiveDistance(c.remainingSol, total.TimeRemainingStart)
	total.Pirker.Distance = total.Planned.Distance - total.RemainingEffective.Distance

	leg := &c.stats.CurrentLeg
	leg.RemainingEffective.Distance = leg.Remaining.Distance
	leg.Pirker.Distance = leg.Planned.Distance - leg.RemainingEffective.Distance
}

func (c *taskCore) updateSpeeds(t float64) {
	c.total.update(&c.stats.Total, t)
	c.leg.update(&c.stats.CurrentLeg, t)
	c.stats.LastHour = c.lastHour.update(t, c.stats.Total.Travelled.Distance)
}

// updateFlightMode режим финального планирования с гистерезисом по высоте
func (c *taskCore) updateFlightMode() bool {
	sr := c.stats.Total.SolutionRemaining
	was := c.stats.FlightModeFinalGlide
	if was {
		c.stats.FlightModeFinalGlide = sr.IsAchievable()
	} else {
		c.stats.FlightModeFinalGlide = sr.IsFinalGlide() && sr.AltitudeDifference > finalGlideHysteresis
	}
	return was != c.stats.FlightModeFinalGlide
}

// updateAutoMC подбирает MC по режиму авто-MC и выставляет его поляре
func (c *taskCore) updateAutoMC(p *glide.Polar, s models.AircraftState, fallbackMC float64, b TaskBehaviour, started bool) bool {
	if !b.AutoMC {
		c.mcFilter.clear()
		return false
	}
	switch {
	case b.IsAutoMCFinalGlideEnabled() && started && c.stats.FlightModeFinalGlide:
		mc, ok := solver.BestMC(*p, c.remainingLegs, s.Altitude, s.Wind)
		if !ok {
			mc = 0
		}
		c.stats.MCBest = math.Max(0, c.mcFilter.update(mc, s.Time))
	case b.IsAutoMCCruiseEnabled() && fallbackMC > 0:
		c.mcFilter.reset(fallbackMC, s.Time)
		c.stats.MCBest = fallbackMC
	case started:
		c.stats.MCBest = math.Max(0, c.mcFilter.update(0, s.Time))
	default:
		c.mcFilter.clear()
		return false
	}
	p.SetMC(c.stats.MCBest)
	return true
}

// updateIdleStats медленные оценки: требуемое качество, эффективность
// перехода, эффективный MC
func (c *taskCore) updateIdleStats(p *glide.Polar, s models.AircraftState, b TaskBehaviour, incremental bool) bool {
	changed := false
	if b.CalcGlideRequired {
		if g, ok := solver.GlideRequired(*p, c.remainingLegs, s.Altitude, s.Wind); ok {
			c.stats.GlideRequired = g
			changed = true
		}
	}
	if !b.AutoMC {
		if mc, ok := solver.BestMC(*p, c.remainingLegs, s.Altitude, s.Wind); ok {
			c.stats.MCBest = mc
		} else {
			c.stats.MCBest = 0
		}
		changed = true
	}
	if !incremental {
		return changed
	}
	elapsed := c.stats.Total.TimeElapsed
	if b.CalcCruiseEfficiency {
		if ce, ok := solver.CruiseEfficiency(*p, c.travelledLegs, s.Altitude, s.Wind, elapsed); ok {
			c.stats.CruiseEfficiency = c.ceFilter.update(ce, s.Time)
			changed = true
		}
	}
	if b.CalcEffectiveMC {
		if mc, ok := solver.EffectiveMC(*p, c.travelledLegs, s.Altitude, s.Wind, elapsed); ok {
			c.stats.EffectiveMC = c.emcFilter.update(mc, s.Time)
			changed = true
		}
	}
	return changed
}

func distanceOf(pts []models.GeoPoint) float64 {
	d := 0.0
	for i := 1; i < len(pts); i++ {
		d += pts[i-1].Distance(pts[i])
	}
	return d
}
