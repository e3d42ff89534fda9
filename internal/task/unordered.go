package task

import (
	"github.com/flybeeper/taskengine/internal/glide"
	"github.com/flybeeper/taskengine/internal/models"
)

// unorderedTask задание с единственной целью без старта и финиша
type unorderedTask struct {
	taskCore
	behaviour TaskBehaviour
}

func newUnorderedTask(b TaskBehaviour) unorderedTask {
	return unorderedTask{taskCore: newTaskCore(), behaviour: b}
}

func (u *unorderedTask) arrivalHeight(wp models.Waypoint) float64 {
	return wp.Elevation + u.behaviour.SafetyHeightArrival
}

// updateToward пересчитывает статистику полета на путевую точку wp.
// Остаток и план совпадают.
func (u *unorderedTask) updateToward(s models.AircraftState, polar *glide.Polar, wp models.Waypoint) {
	total, leg := &u.stats.Total, &u.stats.CurrentLeg
	vec := s.Location.DistanceBearing(wp.Location)
	for _, e := range []*ElementStat{total, leg} {
		e.LocationRemaining = wp.Location
		e.VectorRemaining = vec
		e.NextLegVector = models.GeoVector{}
		e.Remaining.Distance = vec.Distance
		e.Planned.Distance = vec.Distance
		e.Travelled.Distance = 0
	}
	u.stats.DistanceNominal = vec.Distance
	u.stats.DistanceMin = vec.Distance
	u.stats.DistanceMax = vec.Distance
	u.stats.TaskValid = true
	u.stats.InsideOZ = false

	h := u.arrivalHeight(wp)
	u.solveRoute(polar, s, route{
		remaining:  []models.GeoPoint{wp.Location},
		remainingH: []float64{h},
		planned:    []models.GeoPoint{s.Location, wp.Location},
		plannedH:   []float64{h},
		plannedLeg: 0,
		travelled:  []models.GeoPoint{s.Location},
	})
	u.updateTimes(0, -1, -1, s.Time)
	u.updateSpeeds(s.Time)
	u.updateFlightMode()
}

func (u *unorderedTask) clearStats() {
	u.resetCore()
	u.stats.TaskValid = false
}
