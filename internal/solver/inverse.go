package solver

import (
	"math"

	"github.com/flybeeper/taskengine/internal/glide"
	"github.com/flybeeper/taskengine/internal/models"
)

const (
	MaxMC          = 10.0
	MinEfficiency  = 0.1
	MaxEfficiency  = 2.0
	MaxSink        = 10.0
	mcTolerance    = 1e-3
	ceTolerance    = 1e-3
	sinkTolerance  = 1e-3
	infeasibleTime = 1e9
)

// bracket ищет корень убывающей функции на [min, max] с ограничением по краям
func bracket(f func(float64) float64, min, max, tol, xstart float64) float64 {
	fmin := f(min)
	if fmin <= 0 {
		return min
	}
	fmax := f(max)
	if fmax >= 0 {
		return max
	}
	return glide.NewZeroFinder(min, max, tol).FindZero(f, xstart)
}

// BestMC наибольший MC, при котором остаток задания достижим чистым планированием.
// ok == false, если планирования не хватает даже при MC 0.
func BestMC(p glide.Polar, legs []Leg, altitude float64, wind models.SpeedVector) (float64, bool) {
	if len(legs) == 0 || !p.IsValid() {
		return 0, false
	}
	f := func(mc float64) float64 {
		m, ok := straightMargin(p.WithMC(mc), legs, altitude, wind)
		if !ok {
			return -infeasibleTime
		}
		return m
	}
	if f(0) < 0 {
		return 0, false
	}
	return bracket(f, 0, MaxMC, mcTolerance, p.MC()), true
}

func sinkMargin(p glide.Polar, legs []Leg, altitude float64, wind models.SpeedVector, s float64) (float64, bool) {
	m := glide.NewMacCready(p)
	h := altitude
	margin := math.Inf(1)
	for _, leg := range legs {
		res := m.SolveSink(glide.NewGlideState(leg.Vector, leg.MinHeight, h, wind), s)
		if !res.IsDefined() || res.Validity == glide.ResultWindExcessive {
			return 0, false
		}
		h -= res.HeightGlide
		margin = math.Min(margin, h-leg.MinHeight)
	}
	return margin, !math.IsInf(margin, 1)
}

// GlideRequired градиент планирования в воздушной массе (снижение к скорости),
// при котором остаток задания достигается ровно на минимальной высоте.
func GlideRequired(p glide.Polar, legs []Leg, altitude float64, wind models.SpeedVector) (float64, bool) {
	if len(legs) == 0 || !p.IsValid() || p.VbestLD() <= 0 {
		return 0, false
	}
	if _, ok := sinkMargin(p, legs, altitude, wind, 0); !ok {
		return 0, false
	}
	f := func(s float64) float64 {
		m, _ := sinkMargin(p, legs, altitude, wind, s)
		return m
	}
	s := bracket(f, -MaxSink, MaxSink, sinkTolerance, p.SbestLD())
	return s / p.VbestLD(), true
}

// travelledTime время прохождения участков пройденной части при высоте,
// удерживаемой на текущем уровне
func travelledTime(p glide.Polar, legs []Leg, altitude float64, wind models.SpeedVector) float64 {
	sol := Solve(p, flatten(legs, altitude), altitude, wind)
	if !sol.Total.IsOK() {
		return infeasibleTime
	}
	return sol.Total.TimeElapsed
}

func flatten(legs []Leg, altitude float64) []Leg {
	out := make([]Leg, len(legs))
	for i, l := range legs {
		out[i] = Leg{Vector: l.Vector, MinHeight: altitude}
	}
	return out
}

// CruiseEfficiency эффективность перехода, при которой расчетное время
// пройденной части равно фактическому elapsed.
func CruiseEfficiency(p glide.Polar, travelled []Leg, altitude float64, wind models.SpeedVector, elapsed float64) (float64, bool) {
	if len(travelled) == 0 || elapsed <= 0 || Distance(travelled) <= 0 || p.MC() <= 0 {
		return 1, false
	}
	f := func(ce float64) float64 {
		return travelledTime(p.WithCruiseEfficiency(ce), travelled, altitude, wind) - elapsed
	}
	return bracket(f, MinEfficiency, MaxEfficiency, ceTolerance, p.CruiseEfficiency()), true
}

// EffectiveMC MC, при котором пройденная часть при эффективности 100%
// занимает фактическое время elapsed.
func EffectiveMC(p glide.Polar, travelled []Leg, altitude float64, wind models.SpeedVector, elapsed float64) (float64, bool) {
	if len(travelled) == 0 || elapsed <= 0 || Distance(travelled) <= 0 {
		return 0, false
	}
	base := p.WithCruiseEfficiency(1)
	f := func(mc float64) float64 {
		if mc <= 0 {
			return infeasibleTime
		}
		return travelledTime(base.WithMC(mc), travelled, altitude, wind) - elapsed
	}
	return bracket(f, 0, MaxMC, mcTolerance, p.MC()), true
}

// TimeRemaining время прохождения участков по полному решению
func TimeRemaining(p glide.Polar, legs []Leg, altitude float64, wind models.SpeedVector) (float64, bool) {
	sol := Solve(p, legs, altitude, wind)
	if !sol.Total.IsOK() {
		return 0, false
	}
	return sol.Total.TimeElapsed, true
}
