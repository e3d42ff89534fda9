package task

import (
	"github.com/flybeeper/taskengine/internal/glide"
	"github.com/flybeeper/taskengine/internal/models"
	"github.com/flybeeper/taskengine/internal/oz"
	"github.com/flybeeper/taskengine/internal/solver"
)

const (
	minTargetTolerance = 0.002
	isolineTolerance   = 0.001
	// bearingTolerance точность поиска курса цели, градусы
	bearingTolerance = 0.5
	// bearingSweep отклонение курса цели от текущего, градусы
	bearingSweep = 90.0
	// unreachableTime штраф курса, на котором нет точки равной дистанции
	unreachableTime = 1e9
)

func (t *OrderedTask) targetPoint(i int) *OrderedTaskPoint {
	p := t.Point(i)
	if p == nil || !p.HasTarget() {
		return nil
	}
	return p
}

// SetTarget переносит цель точки i
func (t *OrderedTask) SetTarget(i int, loc models.GeoPoint, override bool) bool {
	p := t.targetPoint(i)
	if p == nil || !p.SetTarget(loc, override) {
		return false
	}
	t.forceFull = true
	return true
}

// SetRange ставит цель точки i на долю r между ближней и дальней точками зоны
func (t *OrderedTask) SetRange(i int, r float64, override bool) bool {
	p := t.targetPoint(i)
	if p == nil || !p.SetRange(r, override) {
		return false
	}
	t.forceFull = true
	return true
}

// TargetRangeRadial положение цели точки i
func (t *OrderedTask) TargetRangeRadial(i int) (float64, float64, bool) {
	p := t.targetPoint(i)
	if p == nil {
		return 0, 0, false
	}
	rng, radial := p.TargetRangeRadial()
	return rng, radial, true
}

func (t *OrderedTask) SetTargetRangeRadial(i int, rng, radial float64, override bool) bool {
	p := t.targetPoint(i)
	if p == nil || !p.SetTargetRangeRadial(rng, radial, override) {
		return false
	}
	t.forceFull = true
	return true
}

// SetTargetLock закрепляет цель точки i
func (t *OrderedTask) SetTargetLock(i int, locked bool) bool {
	p := t.targetPoint(i)
	if p == nil {
		return false
	}
	p.SetTargetLocked(locked)
	return true
}

// remainingTime время до финиша через текущие цели. Если решения
// нет, время оценивается по скорости наилучшего качества.
func (t *OrderedTask) remainingTime(s models.AircraftState, polar *glide.Polar) float64 {
	pts := withAircraft(s.Location, t.remainingLocations())
	legs := solver.Legs(pts, t.remainingHeights())
	if tm, ok := solver.TimeRemaining(*polar, legs, s.Altitude, s.Wind); ok {
		return tm
	}
	v := polar.VbestLD()
	if v <= 0 {
		v = 1
	}
	return solver.Distance(legs) / v
}

// unlockedTargets незакрепленные цели от активной точки до финиша
func (t *OrderedTask) unlockedTargets() []*OrderedTaskPoint {
	var out []*OrderedTaskPoint
	for i := t.activeIndex; i < len(t.points); i++ {
		if p := t.points[i]; p.HasTarget() && !p.IsTargetLocked() {
			out = append(out, p)
		}
	}
	return out
}

// CalcMinTarget подбирает общую долю дальности незакрепленных целей так,
// чтобы время задания было не меньше tMin
func (t *OrderedTask) CalcMinTarget(s models.AircraftState, polar *glide.Polar, tMin float64) bool {
	if t.stats.DistanceMax <= t.stats.DistanceMin {
		return false
	}
	targets := t.unlockedTargets()
	if len(targets) == 0 {
		return false
	}
	tr := tMin - t.stats.Total.TimeElapsed

	f := func(r float64) float64 {
		for _, p := range targets {
			p.SetRange(r, false)
		}
		return t.remainingTime(s, polar) - tr
	}

	r := 0.0
	switch {
	case f(0) >= 0:
	case f(1) <= 0:
		r = 1
	default:
		r = glide.NewZeroFinder(0, 1, minTargetTolerance).FindZero(f, 0.5)
	}
	f(r)
	t.forceFull = true
	return true
}

// OptimiseTargetBearing перемещает цель активной точки AAT вдоль линии
// равной двойной дистанции в положение с наименьшим временем до финиша
func (t *OrderedTask) OptimiseTargetBearing(s models.AircraftState, polar *glide.Polar) bool {
	p := t.ActivePoint()
	if p == nil || !p.HasTarget() || p.IsTargetLocked() || p.activeState != CurrentActive {
		return false
	}
	ref := p.Location()
	orig := p.target
	d0 := p.doubleLegDistance(orig)
	_, radial0 := p.TargetRangeRadial()

	isoline := func(theta float64) (models.GeoPoint, bool) {
		theta = models.NormalizeBearing(theta)
		ext := oz.RadialExtent(p.zone, theta)
		if ext <= 0 {
			return ref, false
		}
		at := func(r float64) models.GeoPoint { return ref.EndPoint(theta, r*ext) }
		h := func(r float64) float64 { return p.doubleLegDistance(at(r)) - d0 }
		if h(0)*h(1) > 0 {
			return ref, false
		}
		loc := at(glide.NewZeroFinder(0, 1, isolineTolerance).FindZero(h, 0.5))
		return loc, p.zone.Contains(loc)
	}
	cost := func(theta float64) float64 {
		loc, ok := isoline(theta)
		if !ok {
			return unreachableTime
		}
		p.target = loc
		return t.remainingTime(s, polar)
	}

	base := t.remainingTime(s, polar)
	zf := glide.NewZeroFinder(radial0-bearingSweep, radial0+bearingSweep, bearingTolerance)
	best := zf.FindMin(cost, radial0)
	p.target = orig

	loc, ok := isoline(best)
	if !ok || loc.Equals(orig) {
		return false
	}
	p.target = loc
	if t.remainingTime(s, polar) >= base {
		p.target = orig
		return false
	}
	t.forceFull = true
	return true
}
