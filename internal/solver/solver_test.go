package solver

import (
	"testing"

	"github.com/flybeeper/taskengine/internal/glide"
	"github.com/flybeeper/taskengine/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func singleLeg(distance float64) []Leg {
	return []Leg{{Vector: models.GeoVector{Distance: distance, Bearing: 90}, MinHeight: 0}}
}

func TestLegs(t *testing.T) {
	pts := []models.GeoPoint{
		models.NewGeoPoint(45, 0),
		models.NewGeoPoint(45, 0.3),
		models.NewGeoPoint(46, 0.3),
	}
	legs := Legs(pts, []float64{100, 200})
	require.Len(t, legs, 2)
	assert.InDelta(t, pts[0].Distance(pts[1]), legs[0].Vector.Distance, 1e-6)
	assert.Equal(t, 200.0, legs[1].MinHeight)
	assert.InDelta(t, legs[0].Vector.Distance+legs[1].Vector.Distance, Distance(legs), 1e-6)

	assert.Nil(t, Legs(pts[:1], nil))
}

func TestSolve_MultiLegCarriesAltitude(t *testing.T) {
	p := glide.DefaultPolar()
	p.SetMC(1)

	legs := []Leg{
		{Vector: models.GeoVector{Distance: 10000, Bearing: 0}},
		{Vector: models.GeoVector{Distance: 10000, Bearing: 90}},
	}
	sol := Solve(p, legs, 2000, models.SpeedVector{})
	require.Len(t, sol.Legs, 2)
	require.True(t, sol.Total.IsOK())
	assert.InDelta(t, 20000, sol.Total.Vector.Distance, 1e-6)
	assert.InDelta(t, sol.Legs[0].TimeElapsed+sol.Legs[1].TimeElapsed, sol.Total.TimeElapsed, 1e-6)
	assert.Greater(t, sol.Legs[0].AltitudeDifference, sol.Legs[1].AltitudeDifference)

	empty := Solve(p, nil, 2000, models.SpeedVector{})
	assert.False(t, empty.Total.IsDefined())
	assert.False(t, empty.First().IsDefined())
}

func TestBestMC_DecreasesWithDistance(t *testing.T) {
	p := glide.DefaultPolar()
	p.SetMC(1)

	prev := MaxMC + 1
	for _, d := range []float64{10000, 20000, 30000, 40000} {
		mc, ok := BestMC(p, singleLeg(d), 1500, models.SpeedVector{})
		require.True(t, ok, "distance %f", d)
		assert.GreaterOrEqual(t, mc, 0.0)
		assert.Less(t, mc, prev, "distance %f", d)
		prev = mc

		// при найденном MC решение конечно и положительно
		q := p.WithMC(mc)
		tr, ok := TimeRemaining(q, singleLeg(d), 1500, models.SpeedVector{})
		require.True(t, ok)
		assert.Greater(t, tr, 0.0)
	}
}

func TestBestMC_Unreachable(t *testing.T) {
	p := glide.DefaultPolar()
	_, ok := BestMC(p, singleLeg(200000), 500, models.SpeedVector{})
	assert.False(t, ok)

	_, ok = BestMC(p, nil, 500, models.SpeedVector{})
	assert.False(t, ok)
}

func TestBestMC_ShortGlideSaturates(t *testing.T) {
	p := glide.DefaultPolar()
	mc, ok := BestMC(p, singleLeg(1000), 3000, models.SpeedVector{})
	require.True(t, ok)
	assert.Equal(t, MaxMC, mc)
}

func TestGlideRequired(t *testing.T) {
	p := glide.DefaultPolar()
	p.SetMC(1)

	near, ok := GlideRequired(p, singleLeg(10000), 1000, models.SpeedVector{})
	require.True(t, ok)
	far, ok := GlideRequired(p, singleLeg(30000), 1000, models.SpeedVector{})
	require.True(t, ok)

	// дальше при той же высоте нужно более пологое планирование
	assert.Less(t, far, near)
	assert.InDelta(t, 1000.0/10000.0, near, 0.01)

	below, ok := GlideRequired(p, []Leg{{Vector: models.GeoVector{Distance: 10000}, MinHeight: 1500}}, 1000, models.SpeedVector{})
	require.True(t, ok)
	assert.Less(t, below, 0.0)
}

func TestCruiseEfficiency(t *testing.T) {
	p := glide.DefaultPolar()
	p.SetMC(2)
	legs := singleLeg(50000)

	nominal := travelledTime(p, legs, 1000, models.SpeedVector{})
	require.Less(t, nominal, infeasibleTime)

	tests := []struct {
		name    string
		elapsed float64
		check   func(t *testing.T, ce float64)
	}{
		{name: "matches prediction", elapsed: nominal, check: func(t *testing.T, ce float64) { assert.InDelta(t, 1, ce, 0.01) }},
		{name: "slower than predicted", elapsed: nominal * 1.5, check: func(t *testing.T, ce float64) { assert.Less(t, ce, 1.0) }},
		{name: "faster than predicted", elapsed: nominal * 0.8, check: func(t *testing.T, ce float64) { assert.Greater(t, ce, 1.0) }},
		{name: "clamped low", elapsed: nominal * 1000, check: func(t *testing.T, ce float64) { assert.Equal(t, MinEfficiency, ce) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ce, ok := CruiseEfficiency(p, legs, 1000, models.SpeedVector{}, tt.elapsed)
			require.True(t, ok)
			tt.check(t, ce)
		})
	}

	_, ok := CruiseEfficiency(p, legs, 1000, models.SpeedVector{}, 0)
	assert.False(t, ok)
}

func TestEffectiveMC(t *testing.T) {
	p := glide.DefaultPolar()
	p.SetMC(2)
	legs := singleLeg(50000)

	elapsed := travelledTime(p, legs, 1000, models.SpeedVector{})
	mc, ok := EffectiveMC(p, legs, 1000, models.SpeedVector{}, elapsed)
	require.True(t, ok)
	assert.InDelta(t, 2, mc, 0.01)

	slow, ok := EffectiveMC(p, legs, 1000, models.SpeedVector{}, elapsed*2)
	require.True(t, ok)
	assert.Less(t, slow, mc)
}

func TestEffectiveDistance(t *testing.T) {
	sol := Solution{Legs: []glide.GlideResult{
		{Validity: glide.ResultOK, Vector: models.GeoVector{Distance: 1000}, TimeElapsed: 100},
		{Validity: glide.ResultOK, Vector: models.GeoVector{Distance: 2000}, TimeElapsed: 100},
	}}

	tests := []struct {
		name string
		t    float64
		want float64
	}{
		{name: "zero", t: 0, want: 0},
		{name: "half of last leg", t: 50, want: 1000},
		{name: "last leg and half of first", t: 150, want: 2500},
		{name: "beyond plan", t: 500, want: 3000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, EffectiveDistance(sol, tt.t), 1e-9)
		})
	}
}
