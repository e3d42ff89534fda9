package task

import (
	"sort"

	"github.com/flybeeper/taskengine/internal/geo"
	"github.com/flybeeper/taskengine/internal/glide"
	"github.com/flybeeper/taskengine/internal/models"
	"github.com/flybeeper/taskengine/internal/solver"
)

// maxAbortCandidates наибольшее число рассматриваемых площадок
const maxAbortCandidates = 10

// AbortCandidate площадка для прерывания задания и решение планирования до нее
type AbortCandidate struct {
	Waypoint  models.Waypoint   `json:"waypoint" msgpack:"waypoint"`
	Solution  glide.GlideResult `json:"solution" msgpack:"solution"`
	Reachable bool              `json:"reachable" msgpack:"reachable"`
}

// AbortTask выбор ближайшей достижимой площадки
type AbortTask struct {
	unorderedTask

	index      *geo.WaypointIndex
	candidates []AbortCandidate
	active     int

	// taskTarget активная точка упорядоченного задания для режима TASK
	taskTarget *models.GeoPoint

	vectorHome        models.GeoVector
	hasHome           bool
	landableReachable bool
}

var _ Task = (*AbortTask)(nil)

func NewAbortTask(b TaskBehaviour, idx *geo.WaypointIndex) *AbortTask {
	return &AbortTask{unorderedTask: newUnorderedTask(b), index: idx}
}

func (a *AbortTask) Type() TaskType { return TypeAbort }

// SetWaypoints меняет индекс площадок
func (a *AbortTask) SetWaypoints(idx *geo.WaypointIndex) {
	a.index = idx
	a.candidates = nil
	a.active = 0
}

// SetTaskTarget точка упорядоченного задания, к которой предпочтительно
// прерываться; nil снимает предпочтение
func (a *AbortTask) SetTaskTarget(loc *models.GeoPoint) { a.taskTarget = loc }

// Candidates площадки в порядке предпочтения
func (a *AbortTask) Candidates() []AbortCandidate {
	return append([]AbortCandidate(nil), a.candidates...)
}

// HasLandableReachable есть ли достижимая площадка
func (a *AbortTask) HasLandableReachable() bool { return a.landableReachable }

// VectorHome вектор на домашний аэродром
func (a *AbortTask) VectorHome() (models.GeoVector, bool) { return a.vectorHome, a.hasHome }

func (a *AbortTask) safetyPolar(p *glide.Polar) glide.Polar {
	return p.WithMC(a.behaviour.SafetyMC)
}

func (a *AbortTask) landables(s models.AircraftState) []models.Waypoint {
	if a.index == nil {
		return nil
	}
	var out []models.Waypoint
	for _, wp := range a.index.QueryRadius(s.Location, a.behaviour.AbortRange) {
		if wp.IsLandable() {
			out = append(out, wp)
		}
	}
	if len(out) == 0 {
		out = a.index.Nearest(s.Location, maxAbortCandidates, models.Waypoint.IsLandable)
	}
	return out
}

// fillCandidates решает планирование до каждой площадки и упорядочивает их
func (a *AbortTask) fillCandidates(s models.AircraftState, polar *glide.Polar) {
	sp := a.safetyPolar(polar)
	wps := a.landables(s)
	a.candidates = a.candidates[:0]
	for _, wp := range wps {
		legs := solver.Legs([]models.GeoPoint{s.Location, wp.Location}, []float64{a.arrivalHeight(wp)})
		sol := solver.Solve(sp, legs, s.Altitude, s.Wind).Total
		a.candidates = append(a.candidates, AbortCandidate{
			Waypoint:  wp,
			Solution:  sol,
			Reachable: sol.IsFinalGlide(),
		})
	}

	mode := a.behaviour.AbortMode
	sort.SliceStable(a.candidates, func(i, j int) bool {
		ci, cj := a.candidates[i], a.candidates[j]
		if ci.Reachable != cj.Reachable {
			return ci.Reachable
		}
		if ci.Reachable {
			switch {
			case mode == AbortModeHome && ci.Waypoint.Home != cj.Waypoint.Home:
				return ci.Waypoint.Home
			case mode == AbortModeTask && a.taskTarget != nil:
				return ci.Waypoint.Location.Distance(*a.taskTarget) < cj.Waypoint.Location.Distance(*a.taskTarget)
			}
		}
		return ci.Solution.AltitudeDifference > cj.Solution.AltitudeDifference
	})
	if len(a.candidates) > maxAbortCandidates {
		a.candidates = a.candidates[:maxAbortCandidates]
	}
	if a.active >= len(a.candidates) {
		a.active = 0
	}

	a.landableReachable = len(a.candidates) > 0 && a.candidates[0].Reachable
	a.hasHome = false
	if a.index != nil {
		if home, ok := a.index.Home(); ok {
			a.vectorHome = s.Location.DistanceBearing(home.Location)
			a.hasHome = true
		}
	}
}

// UpdateOffline обновляет площадки без статистики полета, пока
// прерывание не активно
func (a *AbortTask) UpdateOffline(s models.AircraftState, polar *glide.Polar) {
	a.fillCandidates(s, polar)
}

func (a *AbortTask) Update(now, _ models.AircraftState, polar *glide.Polar) bool {
	prev, hadPrev := a.ActiveWaypoint()
	a.fillCandidates(now, polar)
	wp, ok := a.ActiveWaypoint()
	if !ok {
		a.clearStats()
		return hadPrev
	}
	a.updateToward(now, polar, wp)
	return !hadPrev || !prev.Equals(wp)
}

func (a *AbortTask) UpdateIdle(s models.AircraftState, polar *glide.Polar) bool {
	if len(a.candidates) == 0 {
		return false
	}
	return a.updateIdleStats(polar, s, a.behaviour, false)
}

func (a *AbortTask) UpdateAutoMC(polar *glide.Polar, s models.AircraftState, fallbackMC float64) bool {
	if len(a.candidates) == 0 {
		return false
	}
	return a.updateAutoMC(polar, s, fallbackMC, a.behaviour, true)
}

func (a *AbortTask) Stats() *TaskStats { return &a.stats }

func (a *AbortTask) Size() int { return len(a.candidates) }

func (a *AbortTask) ActiveIndex() int { return a.active }

func (a *AbortTask) SetActiveIndex(i int) {
	if i >= 0 && i < len(a.candidates) {
		a.active = i
	}
}

func (a *AbortTask) IsValidTaskPoint(offset int) bool {
	i := a.active + offset
	return i >= 0 && i < len(a.candidates)
}

func (a *AbortTask) ActiveWaypoint() (models.Waypoint, bool) {
	if a.active < 0 || a.active >= len(a.candidates) {
		return models.Waypoint{}, false
	}
	return a.candidates[a.active].Waypoint, true
}

func (a *AbortTask) FinishHeight() float64 {
	if wp, ok := a.ActiveWaypoint(); ok {
		return a.arrivalHeight(wp)
	}
	return 0
}

func (a *AbortTask) CheckTask() bool { return len(a.candidates) > 0 }

func (a *AbortTask) SetTaskBehaviour(b TaskBehaviour) { a.behaviour = b }

func (a *AbortTask) Reset() {
	a.candidates = nil
	a.active = 0
	a.landableReachable = false
	a.clearStats()
}
