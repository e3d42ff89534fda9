package task

import (
	"math"

	"github.com/flybeeper/taskengine/internal/glide"
	"github.com/flybeeper/taskengine/internal/models"
)

// DistanceStat дистанция и скорости по ней
type DistanceStat struct {
	Distance         float64 `json:"distance" msgpack:"distance"`                   // м
	Speed            float64 `json:"speed" msgpack:"speed"`                         // м/с
	SpeedIncremental float64 `json:"speed_incremental" msgpack:"speed_incremental"` // м/с
}

func (d *DistanceStat) setSpeed(t float64) {
	if t > 0 {
		d.Speed = d.Distance / t
	} else {
		d.Speed = 0
	}
}

// ElementStat статистика задания целиком или текущего участка
type ElementStat struct {
	TimeStarted        float64 `json:"time_started" msgpack:"time_started"` // с, <0 до старта
	TimeElapsed        float64 `json:"time_elapsed" msgpack:"time_elapsed"`
	TimeRemainingNow   float64 `json:"time_remaining_now" msgpack:"time_remaining_now"`
	TimeRemainingStart float64 `json:"time_remaining_start" msgpack:"time_remaining_start"`
	TimePlanned        float64 `json:"time_planned" msgpack:"time_planned"`

	LocationRemaining models.GeoPoint  `json:"location_remaining" msgpack:"location_remaining"`
	VectorRemaining   models.GeoVector `json:"vector_remaining" msgpack:"vector_remaining"`
	NextLegVector     models.GeoVector `json:"next_leg_vector" msgpack:"next_leg_vector"`

	Remaining          DistanceStat `json:"remaining" msgpack:"remaining"`
	RemainingEffective DistanceStat `json:"remaining_effective" msgpack:"remaining_effective"`
	Planned            DistanceStat `json:"planned" msgpack:"planned"`
	Travelled          DistanceStat `json:"travelled" msgpack:"travelled"`
	Pirker             DistanceStat `json:"pirker" msgpack:"pirker"`

	SolutionRemaining glide.GlideResult `json:"solution_remaining" msgpack:"solution_remaining"`
	SolutionPlanned   glide.GlideResult `json:"solution_planned" msgpack:"solution_planned"`
	SolutionTravelled glide.GlideResult `json:"solution_travelled" msgpack:"solution_travelled"`
	SolutionMC0       glide.GlideResult `json:"solution_mc0" msgpack:"solution_mc0"`

	// Gradient требуемое качество относительно земли; 999 при нехватке высоты
	Gradient float64 `json:"gradient" msgpack:"gradient"`
}

// noGradient качество при отсутствии запаса высоты
const noGradient = 999.0

func gradient(distance, heightDiff float64) float64 {
	if heightDiff <= 0 {
		return noGradient
	}
	return distance / heightDiff
}

func (e *ElementStat) setTimes(untilStart, startTime, now float64) {
	e.TimeStarted = startTime
	if startTime < 0 {
		e.TimeElapsed = 0
	} else {
		e.TimeElapsed = math.Max(now-startTime, 0)
	}
	if e.SolutionRemaining.IsOK() {
		e.TimeRemainingNow = e.SolutionRemaining.TimeElapsed
	} else {
		e.TimeRemainingNow = 0
	}
	e.TimeRemainingStart = math.Max(e.TimeRemainingNow-untilStart, 0)
	e.TimePlanned = e.TimeElapsed + e.TimeRemainingStart
}

func (e *ElementStat) setSpeeds() {
	e.Remaining.setSpeed(e.TimeRemainingNow)
	e.RemainingEffective.setSpeed(e.TimeRemainingNow)
	e.Planned.setSpeed(e.TimePlanned)
	e.Travelled.setSpeed(e.TimeElapsed)
	e.Pirker.setSpeed(e.TimeElapsed)
}

// StartStats параметры зачтенного старта
type StartStats struct {
	TaskStarted bool    `json:"task_started" msgpack:"task_started"`
	Time        float64 `json:"time" msgpack:"time"`
	Altitude    float64 `json:"altitude" msgpack:"altitude"`
	GroundSpeed float64 `json:"ground_speed" msgpack:"ground_speed"`
}

func (s *StartStats) setStarted(st models.AircraftState) {
	s.TaskStarted = true
	s.Time = st.Time
	s.Altitude = st.Altitude
	s.GroundSpeed = st.GroundSpeed
}

// WindowStat скорость на скользящем окне времени
type WindowStat struct {
	Duration float64 `json:"duration" msgpack:"duration"`
	Distance float64 `json:"distance" msgpack:"distance"`
	Speed    float64 `json:"speed" msgpack:"speed"`
}

// TaskStats статистика задания на текущем тике
type TaskStats struct {
	Total      ElementStat `json:"total" msgpack:"total"`
	CurrentLeg ElementStat `json:"current_leg" msgpack:"current_leg"`

	DistanceNominal float64 `json:"distance_nominal" msgpack:"distance_nominal"`
	DistanceMin     float64 `json:"distance_min" msgpack:"distance_min"`
	DistanceMax     float64 `json:"distance_max" msgpack:"distance_max"`
	DistanceScored  float64 `json:"distance_scored" msgpack:"distance_scored"`

	MCBest           float64 `json:"mc_best" msgpack:"mc_best"`
	CruiseEfficiency float64 `json:"cruise_efficiency" msgpack:"cruise_efficiency"`
	EffectiveMC      float64 `json:"effective_mc" msgpack:"effective_mc"`
	GlideRequired    float64 `json:"glide_required" msgpack:"glide_required"`

	TaskValid            bool `json:"task_valid" msgpack:"task_valid"`
	HasTargets           bool `json:"has_targets" msgpack:"has_targets"`
	TaskStarted          bool `json:"task_started" msgpack:"task_started"`
	TaskFinished         bool `json:"task_finished" msgpack:"task_finished"`
	InsideOZ             bool `json:"inside_oz" msgpack:"inside_oz"`
	FlightModeFinalGlide bool `json:"flight_mode_final_glide" msgpack:"flight_mode_final_glide"`

	Start    StartStats `json:"start" msgpack:"start"`
	LastHour WindowStat `json:"last_hour" msgpack:"last_hour"`
}

// NewTaskStats статистика без активного задания
func NewTaskStats() TaskStats {
	s := TaskStats{CruiseEfficiency: 1}
	s.Total.TimeStarted = -1
	s.CurrentLeg.TimeStarted = -1
	s.Total.SolutionRemaining = glide.NoSolution()
	s.CurrentLeg.SolutionRemaining = glide.NoSolution()
	s.Total.SolutionPlanned = glide.NoSolution()
	s.CurrentLeg.SolutionPlanned = glide.NoSolution()
	s.Total.SolutionTravelled = glide.NoSolution()
	s.CurrentLeg.SolutionTravelled = glide.NoSolution()
	s.Total.SolutionMC0 = glide.NoSolution()
	s.CurrentLeg.SolutionMC0 = glide.NoSolution()
	return s
}

// CommonStats данные, общие для всех заданий менеджера
type CommonStats struct {
	AircraftTime float64 `json:"aircraft_time" msgpack:"aircraft_time"`

	TaskStarted       bool    `json:"task_started" msgpack:"task_started"`
	TaskFinished      bool    `json:"task_finished" msgpack:"task_finished"`
	OrderedHasTargets bool    `json:"ordered_has_targets" msgpack:"ordered_has_targets"`
	OrderedValid      bool    `json:"ordered_valid" msgpack:"ordered_valid"`
	TaskTimeRemaining float64 `json:"task_time_remaining" msgpack:"task_time_remaining"`
	TaskTimeElapsed   float64 `json:"task_time_elapsed" msgpack:"task_time_elapsed"`
	AATTimeRemaining  float64 `json:"aat_time_remaining" msgpack:"aat_time_remaining"`
	AATSpeedRemaining float64 `json:"aat_speed_remaining" msgpack:"aat_speed_remaining"`
	AATSpeedMin       float64 `json:"aat_speed_min" msgpack:"aat_speed_min"`
	AATSpeedMax       float64 `json:"aat_speed_max" msgpack:"aat_speed_max"`
	ActiveTaskPoint   int     `json:"active_task_point" msgpack:"active_task_point"`
	ActiveHasNext     bool    `json:"active_has_next" msgpack:"active_has_next"`
	ActiveHasPrevious bool    `json:"active_has_previous" msgpack:"active_has_previous"`
	NextIsLast        bool    `json:"next_is_last" msgpack:"next_is_last"`
	PreviousIsFirst   bool    `json:"previous_is_first" msgpack:"previous_is_first"`

	AdvanceState    AdvanceState `json:"advance_state" msgpack:"advance_state"`
	AdvanceNeedsArm bool         `json:"advance_needs_arm" msgpack:"advance_needs_arm"`

	ModeAbort   bool `json:"mode_abort" msgpack:"mode_abort"`
	ModeGoto    bool `json:"mode_goto" msgpack:"mode_goto"`
	ModeOrdered bool `json:"mode_ordered" msgpack:"mode_ordered"`

	VectorHome        models.GeoVector `json:"vector_home" msgpack:"vector_home"`
	HasHome           bool             `json:"has_home" msgpack:"has_home"`
	LandableReachable bool             `json:"landable_reachable" msgpack:"landable_reachable"`

	PolarMC      float64 `json:"polar_mc" msgpack:"polar_mc"`
	PolarBugs    float64 `json:"polar_bugs" msgpack:"polar_bugs"`
	PolarBallast float64 `json:"polar_ballast" msgpack:"polar_ballast"`
	RiskMC       float64 `json:"risk_mc" msgpack:"risk_mc"`
	VBlock       float64 `json:"v_block" msgpack:"v_block"`
	VDolphin     float64 `json:"v_dolphin" msgpack:"v_dolphin"`
}

// PointSummary сводка по точке задания
type PointSummary struct {
	Name     string    `json:"name" msgpack:"name"`
	Type     PointType `json:"type" msgpack:"type"`
	Distance float64   `json:"distance" msgpack:"distance"` // плановая длина участка к точке
	Achieved bool      `json:"achieved" msgpack:"achieved"`
}

// TaskSummary сводка по заданию
type TaskSummary struct {
	Active            int            `json:"active" msgpack:"active"`
	DistancePlanned   float64        `json:"distance_planned" msgpack:"distance_planned"`
	DistanceRemaining float64        `json:"distance_remaining" msgpack:"distance_remaining"`
	Points            []PointSummary `json:"points" msgpack:"points"`
}

// lowPassFilter фильтр первого порядка с постоянной времени tau
type lowPassFilter struct {
	tau      float64
	value    float64
	lastTime float64
	valid    bool
}

func (f *lowPassFilter) reset(x, t float64) float64 {
	f.value = x
	f.lastTime = t
	f.valid = true
	return x
}

func (f *lowPassFilter) update(x, t float64) float64 {
	if !f.valid || t < f.lastTime {
		return f.reset(x, t)
	}
	dt := t - f.lastTime
	if dt == 0 {
		return f.value
	}
	f.value += dt / (f.tau + dt) * (x - f.value)
	f.lastTime = t
	return f.value
}

func (f *lowPassFilter) clear() { f.valid = false }

// incrementalSpeed скорость изменения дистанции, сглаженная фильтром
type incrementalSpeed struct {
	filter       lowPassFilter
	lastDistance float64
	lastTime     float64
	valid        bool
}

const incrementalSpeedTau = 15.0

func newIncrementalSpeed() incrementalSpeed {
	return incrementalSpeed{filter: lowPassFilter{tau: incrementalSpeedTau}}
}

// update sign задает направление: +1 для растущей дистанции, -1 для убывающей
func (s *incrementalSpeed) update(d *DistanceStat, t, sign float64) {
	if !s.valid || t < s.lastTime {
		s.lastDistance, s.lastTime, s.valid = d.Distance, t, true
		s.filter.clear()
		d.SpeedIncremental = 0
		return
	}
	dt := t - s.lastTime
	if dt <= 0 {
		d.SpeedIncremental = s.filter.value
		return
	}
	v := sign * (d.Distance - s.lastDistance) / dt
	d.SpeedIncremental = s.filter.update(v, t)
	s.lastDistance, s.lastTime = d.Distance, t
}

func (s *incrementalSpeed) reset() {
	s.valid = false
	s.filter.clear()
}

type elementSpeeds struct {
	remaining, effective, planned, travelled incrementalSpeed
}

func newElementSpeeds() elementSpeeds {
	return elementSpeeds{
		remaining: newIncrementalSpeed(),
		effective: newIncrementalSpeed(),
		planned:   newIncrementalSpeed(),
		travelled: newIncrementalSpeed(),
	}
}

func (s *elementSpeeds) update(e *ElementStat, t float64) {
	e.setSpeeds()
	s.remaining.update(&e.Remaining, t, -1)
	s.effective.update(&e.RemainingEffective, t, -1)
	s.travelled.update(&e.Travelled, t, 1)

	// плановая скорость по сделанной части плана
	done := DistanceStat{Distance: e.Planned.Distance - e.Remaining.Distance}
	s.planned.update(&done, t, 1)
	e.Planned.SpeedIncremental = done.SpeedIncremental
}

func (s *elementSpeeds) reset() {
	s.remaining.reset()
	s.effective.reset()
	s.planned.reset()
	s.travelled.reset()
}

// windowSpeed скорость по пройденной дистанции за последний час
type windowSpeed struct {
	window  float64
	samples []windowSample
}

type windowSample struct {
	time, distance float64
}

const (
	lastHourWindow   = 3600.0
	windowSampleStep = 10.0
)

func (w *windowSpeed) update(t, distance float64) WindowStat {
	if n := len(w.samples); n > 0 && t < w.samples[n-1].time {
		w.samples = w.samples[:0]
	}
	if n := len(w.samples); n == 0 || t-w.samples[n-1].time >= windowSampleStep {
		w.samples = append(w.samples, windowSample{time: t, distance: distance})
	}
	for len(w.samples) > 1 && t-w.samples[1].time >= w.window {
		w.samples = w.samples[1:]
	}
	first := w.samples[0]
	out := WindowStat{Duration: t - first.time, Distance: distance - first.distance}
	if out.Duration > 0 {
		out.Speed = out.Distance / out.Duration
	}
	return out
}

func (w *windowSpeed) reset() { w.samples = w.samples[:0] }
