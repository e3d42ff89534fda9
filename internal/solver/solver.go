// Package solver решает обратные задачи теории Маккриди над участками задания:
// лучший MC, требуемое качество, эффективность перехода, эффективный MC.
package solver

import (
	"math"

	"github.com/flybeeper/taskengine/internal/glide"
	"github.com/flybeeper/taskengine/internal/models"
)

// Leg участок пути между двумя последовательными точками
type Leg struct {
	Vector    models.GeoVector
	MinHeight float64
}

// Legs строит участки по цепочке точек и минимальных высот прибытия.
// minHeights[i] относится к точке points[i+1].
func Legs(points []models.GeoPoint, minHeights []float64) []Leg {
	if len(points) < 2 {
		return nil
	}
	legs := make([]Leg, 0, len(points)-1)
	for i := 1; i < len(points); i++ {
		h := 0.0
		if i-1 < len(minHeights) {
			h = minHeights[i-1]
		}
		legs = append(legs, Leg{Vector: points[i-1].DistanceBearing(points[i]), MinHeight: h})
	}
	return legs
}

// Distance суммарная длина участков
func Distance(legs []Leg) float64 {
	d := 0.0
	for _, l := range legs {
		d += l.Vector.Distance
	}
	return d
}

// Solution решение по участкам: итог и решение для каждого участка
type Solution struct {
	Total glide.GlideResult
	Legs  []glide.GlideResult
}

// First решение первого участка, либо пустое
func (s Solution) First() glide.GlideResult {
	if len(s.Legs) == 0 {
		return glide.NoSolution()
	}
	return s.Legs[0]
}

// Solve последовательно решает участки начиная с высоты altitude.
// Высота прибытия каждого участка становится начальной высотой следующего.
func Solve(p glide.Polar, legs []Leg, altitude float64, wind models.SpeedVector) Solution {
	return solveWith(legs, altitude, wind, glide.NewMacCready(p).Solve)
}

// SolveStraight решает участки чистым планированием без наборов
func SolveStraight(p glide.Polar, legs []Leg, altitude float64, wind models.SpeedVector) Solution {
	return solveWith(legs, altitude, wind, glide.NewMacCready(p).SolveStraight)
}

func solveWith(legs []Leg, altitude float64, wind models.SpeedVector, solve func(glide.GlideState) glide.GlideResult) Solution {
	if len(legs) == 0 {
		return Solution{Total: glide.NoSolution()}
	}

	sol := Solution{Legs: make([]glide.GlideResult, 0, len(legs))}
	h := altitude
	for i, leg := range legs {
		res := solve(glide.NewGlideState(leg.Vector, leg.MinHeight, h, wind))
		sol.Legs = append(sol.Legs, res)
		if i == 0 {
			sol.Total = res
		} else {
			sol.Total.Add(res)
		}
		if !res.IsDefined() {
			break
		}
		h = h - res.HeightGlide + res.HeightClimb
	}
	sol.Total.Vector.Bearing = legs[0].Vector.Bearing
	return sol
}

// straightMargin минимальный запас высоты по всем участкам при чистом планировании
func straightMargin(p glide.Polar, legs []Leg, altitude float64, wind models.SpeedVector) (float64, bool) {
	m := glide.NewMacCready(p)
	h := altitude
	margin := math.Inf(1)
	for _, leg := range legs {
		res := m.SolveStraight(glide.NewGlideState(leg.Vector, leg.MinHeight, h, wind))
		if !res.IsOK() {
			return 0, false
		}
		h -= res.HeightGlide
		margin = math.Min(margin, h-leg.MinHeight)
	}
	if math.IsInf(margin, 1) {
		return 0, false
	}
	return margin, true
}

// EffectiveDistance расстояние в конце плана, которое пролетается за время t.
// Участки просматриваются с конца.
func EffectiveDistance(s Solution, t float64) float64 {
	if t <= 0 {
		return 0
	}
	d := 0.0
	for i := len(s.Legs) - 1; i >= 0; i-- {
		leg := s.Legs[i]
		if !leg.IsDefined() {
			continue
		}
		if leg.TimeElapsed >= t {
			if leg.TimeElapsed > 0 {
				d += leg.Vector.Distance * t / leg.TimeElapsed
			}
			return d
		}
		t -= leg.TimeElapsed
		d += leg.Vector.Distance
	}
	return d
}
