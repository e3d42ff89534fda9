package glide

import (
	"math"
	"testing"

	"github.com/flybeeper/taskengine/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZeroFinder_FindZero(t *testing.T) {
	tests := []struct {
		name     string
		f        func(float64) float64
		min, max float64
		want     float64
	}{
		{name: "linear", f: func(x float64) float64 { return x - 3 }, min: 0, max: 10, want: 3},
		{name: "quadratic", f: func(x float64) float64 { return x*x - 2 }, min: 0, max: 2, want: math.Sqrt(2)},
		{name: "cosine", f: math.Cos, min: 0, max: 3, want: math.Pi / 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			zf := NewZeroFinder(tt.min, tt.max, 1e-6)
			assert.InDelta(t, tt.want, zf.FindZero(tt.f, tt.min), 1e-5)
		})
	}
}

func TestZeroFinder_FindZeroShortcut(t *testing.T) {
	calls := 0
	f := func(x float64) float64 {
		calls++
		return x - 5
	}
	zf := NewZeroFinder(0, 10, 1e-3)
	assert.Equal(t, 5.0, zf.FindZero(f, 5))
	assert.Equal(t, 1, calls)
}

func TestZeroFinder_FindMin(t *testing.T) {
	tests := []struct {
		name     string
		f        func(float64) float64
		min, max float64
		want     float64
	}{
		{name: "parabola", f: func(x float64) float64 { return (x - 2) * (x - 2) }, min: 0, max: 5, want: 2},
		{name: "monotonic returns edge", f: func(x float64) float64 { return x }, min: 1, max: 4, want: 1},
		{name: "sine", f: math.Sin, min: 3, max: 6, want: 3 * math.Pi / 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			zf := NewZeroFinder(tt.min, tt.max, 1e-5)
			assert.InDelta(t, tt.want, zf.FindMin(tt.f, (tt.min+tt.max)/2+0.3), 1e-3)
		})
	}
}

func TestPolar_Basics(t *testing.T) {
	p := DefaultPolar()

	assert.InDelta(t, 25, p.Vmin(), 1e-9)
	assert.InDelta(t, 0.5, p.Smin(), 1e-9)
	assert.InDelta(t, math.Sqrt(2.46/0.003136), p.VbestLD(), 1e-9)
	assert.InDelta(t, p.VbestLD()/p.SinkRate(p.VbestLD()), p.BestLD(), 1e-9)
	assert.Equal(t, DefaultVmax, p.Vmax())

	for _, v := range []float64{20, 30, 40, 60} {
		dv := (v - 25) * 0.056
		assert.InDelta(t, 0.5+dv*dv, p.SinkRate(v), 1e-9)
	}
}

func TestPolar_BugsAndBallast(t *testing.T) {
	clean := DefaultPolar()

	dirty := DefaultPolar()
	dirty.SetBugs(0.8)
	assert.Greater(t, dirty.SinkRate(30), clean.SinkRate(30))
	assert.Less(t, dirty.BestLD(), clean.BestLD())

	ballasted, err := NewPolar(DefaultCoefficients, 400, 400, 100)
	require.NoError(t, err)
	dry := ballasted
	ballasted.SetBallast(1)
	assert.Greater(t, ballasted.VbestLD(), dry.VbestLD())
	assert.InDelta(t, dry.BestLD(), ballasted.BestLD(), 1e-6)

	_, err = NewPolar(Coefficients{A: -1, B: -1, C: 1}, 0, 0, 0)
	assert.Error(t, err)
}

func TestPolar_SpeedToFly(t *testing.T) {
	p := DefaultPolar()

	p.SetMC(0)
	assert.InDelta(t, p.VbestLD(), p.SpeedToFly(0, 0, true), 0.1)

	p.SetMC(2)
	v2 := p.SpeedToFly(0, 0, true)
	p.SetMC(4)
	v4 := p.SpeedToFly(0, 0, true)
	assert.Greater(t, v4, v2)

	// в восходящем потоке летим медленнее
	assert.Less(t, p.SpeedToFly(2, 0, false), v4)
	// при встречном ветре быстрее
	assert.Greater(t, p.SpeedToFly(0, 10, true), v4)
}

func TestPolar_MCRisk(t *testing.T) {
	p := DefaultPolar()
	p.SetMC(3)

	assert.Equal(t, 3.0, p.MCRisk(0.2, 0))
	assert.InDelta(t, 0.6, p.MCRisk(0.2, 1), 1e-9)
	mid := p.MCRisk(0.5, 0.5)
	assert.Greater(t, mid, 1.5)
	assert.Less(t, mid, 3.0)
	assert.Equal(t, 3.0, p.MCRisk(2, 0.5))
}

func newTask(distance, minHeight, altitude float64, wind models.SpeedVector) GlideState {
	return NewGlideState(models.GeoVector{Distance: distance, Bearing: 0}, minHeight, altitude, wind)
}

func TestMacCready_FinalGlide(t *testing.T) {
	p := DefaultPolar()
	p.SetMC(1)
	m := NewMacCready(p)

	res := m.Solve(newTask(20000, 0, 2000, models.SpeedVector{}))
	require.True(t, res.IsOK())
	assert.True(t, res.IsFinalGlide())
	assert.Equal(t, 0.0, res.HeightClimb)
	assert.InDelta(t, 2000-res.HeightGlide, res.AltitudeDifference, 1e-6)
	assert.Greater(t, res.VOpt, p.VbestLD())
	assert.InDelta(t, 20000/res.VOpt, res.TimeElapsed, 1e-6)
}

func TestMacCready_GlideThenCruise(t *testing.T) {
	p := DefaultPolar()
	p.SetMC(2)
	m := NewMacCready(p)

	res := m.Solve(newTask(100000, 0, 500, models.SpeedVector{}))
	require.True(t, res.IsOK())
	assert.Greater(t, res.HeightClimb, 0.0)
	assert.InDelta(t, 100000, res.Vector.Distance, 1e-3)
	assert.InDelta(t, 0, res.AltitudeDifference, 1e-6)
	assert.False(t, res.IsFinalGlide())
}

func TestMacCready_Wind(t *testing.T) {
	p := DefaultPolar()
	p.SetMC(1)
	m := NewMacCready(p)

	calm := m.Solve(newTask(20000, 0, 3000, models.SpeedVector{}))
	head := m.Solve(newTask(20000, 0, 3000, models.SpeedVector{Bearing: 0, Norm: 10}))
	tail := m.Solve(newTask(20000, 0, 3000, models.SpeedVector{Bearing: 180, Norm: 10}))

	require.True(t, head.IsOK())
	assert.Greater(t, head.TimeElapsed, calm.TimeElapsed)
	assert.Less(t, tail.TimeElapsed, calm.TimeElapsed)
	assert.Greater(t, head.HeightGlide, calm.HeightGlide)

	excessive := m.Solve(newTask(20000, 0, 3000, models.SpeedVector{Bearing: 0, Norm: 200}))
	assert.Equal(t, ResultWindExcessive, excessive.Validity)
}

func TestMacCready_Vertical(t *testing.T) {
	p := DefaultPolar()
	p.SetMC(2)
	m := NewMacCready(p)

	res := m.Solve(newTask(0, 1000, 600, models.SpeedVector{}))
	require.True(t, res.IsOK())
	assert.InDelta(t, 200, res.TimeElapsed, 1e-6)
	assert.Equal(t, 400.0, res.HeightClimb)

	above := m.Solve(newTask(0, 500, 600, models.SpeedVector{}))
	assert.True(t, above.IsOK())
	assert.Equal(t, 100.0, above.AltitudeDifference)
}

func TestMacCready_ZeroMCPartial(t *testing.T) {
	p := DefaultPolar()
	m := NewMacCready(p)

	res := m.Solve(newTask(100000, 0, 500, models.SpeedVector{}))
	assert.Equal(t, ResultPartial, res.Validity)
	assert.Less(t, res.Vector.Distance, 100000.0)
	assert.InDelta(t, 500, res.HeightGlide, 1e-6)
}

func TestMacCready_StraightGlideCanBeNegative(t *testing.T) {
	p := DefaultPolar()
	p.SetMC(1)
	m := NewMacCready(p)

	res := m.SolveStraight(newTask(100000, 0, 500, models.SpeedVector{}))
	require.True(t, res.IsOK())
	assert.Less(t, res.AltitudeDifference, 0.0)
	assert.InDelta(t, 500-res.HeightGlide, res.AltitudeDifference, 1e-6)
}

func TestMacCready_InvalidPolar(t *testing.T) {
	var p Polar
	res := NewMacCready(p).Solve(newTask(1000, 0, 500, models.SpeedVector{}))
	assert.False(t, res.IsDefined())
}

func TestGlideResult_Add(t *testing.T) {
	a := GlideResult{Validity: ResultOK, Vector: models.GeoVector{Distance: 1000}, TimeElapsed: 10, HeightGlide: 50, AltitudeDifference: 100}
	b := GlideResult{Validity: ResultPartial, Vector: models.GeoVector{Distance: 500}, TimeElapsed: 5, HeightGlide: 20, AltitudeDifference: 200}

	a.Add(b)
	assert.Equal(t, ResultPartial, a.Validity)
	assert.Equal(t, 1500.0, a.Vector.Distance)
	assert.Equal(t, 15.0, a.TimeElapsed)
	assert.Equal(t, 70.0, a.HeightGlide)
	assert.Equal(t, 200.0, a.AltitudeDifference)

	a.Add(GlideResult{Validity: ResultOK, AltitudeDifference: -30})
	assert.Equal(t, 170.0, a.AltitudeDifference)
}

func TestGlideState_DriftedDistance(t *testing.T) {
	head := newTask(10000, 0, 0, models.SpeedVector{Bearing: 0, Norm: 5})
	assert.InDelta(t, 10500, head.DriftedDistance(100), 1e-6)

	tail := newTask(10000, 0, 0, models.SpeedVector{Bearing: 180, Norm: 5})
	assert.InDelta(t, 9500, tail.DriftedDistance(100), 1e-6)

	assert.InDelta(t, 5, head.HeadWind, 1e-9)
	assert.InDelta(t, -5, tail.HeadWind, 1e-9)
}
