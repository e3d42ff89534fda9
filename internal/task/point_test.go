package task

import (
	"testing"

	"github.com/flybeeper/taskengine/internal/models"
	"github.com/flybeeper/taskengine/internal/oz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAATPoint(t *testing.T, radius float64) *OrderedTaskPoint {
	t.Helper()
	p, err := NewPointWithZone(AATCylinder, models.Waypoint{ID: 10, Name: "T", Location: origin},
		oz.Spec{Shape: oz.ShapeCylinder, Radius: radius})
	require.NoError(t, err)
	return p
}

func TestNewPointWithZone(t *testing.T) {
	wp := models.Waypoint{ID: 1, Name: "A", Location: origin}
	tests := []struct {
		name    string
		typ     PointType
		spec    oz.Spec
		wantErr bool
	}{
		{name: "cylinder", typ: ASTCylinder, spec: oz.Spec{Shape: oz.ShapeCylinder, Radius: 500}},
		{name: "line", typ: FinishLine, spec: oz.Spec{Shape: oz.ShapeLine, Length: 1000}},
		{name: "shape mismatch", typ: ASTCylinder, spec: oz.Spec{Shape: oz.ShapeLine, Length: 1000}, wantErr: true},
		{name: "unknown type", typ: PointType(200), spec: oz.Spec{Shape: oz.ShapeCylinder, Radius: 500}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPointWithZone(tt.typ, wp, tt.spec)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.typ, p.Type())
			assert.Equal(t, tt.spec.Shape, p.Zone().Shape())
		})
	}
}

func TestNewPoint_InvalidWaypoint(t *testing.T) {
	_, err := NewPoint(ASTCylinder, models.Waypoint{Location: models.NewGeoPoint(120, 0)}, SectorDefaults{})
	assert.Error(t, err)
}

func TestPoint_EnterExit(t *testing.T) {
	p := newAATPoint(t, 1000)
	outside := stateAt(origin.EndPoint(90, 1500), 0)
	inside := stateAt(origin.EndPoint(90, 500), 10)
	away := stateAt(origin.EndPoint(270, 1500), 20)

	assert.False(t, p.transitionEnter(outside, outside))
	assert.True(t, p.transitionEnter(inside, outside))
	assert.True(t, p.HasEntered())
	assert.Equal(t, 10.0, p.EnteredState().Time)

	assert.True(t, p.transitionExit(away, inside))
	assert.True(t, p.HasExited())
	assert.Equal(t, 10.0, p.ExitedState().Time)

	p.Reset()
	assert.False(t, p.HasEntered())
	assert.False(t, p.HasExited())
}

func TestPoint_SamplesKeepConvexHull(t *testing.T) {
	p := newAATPoint(t, 5000)
	p.activeState = CurrentActive

	corners := []models.GeoPoint{
		origin.EndPoint(45, 3000), origin.EndPoint(135, 3000),
		origin.EndPoint(225, 3000), origin.EndPoint(315, 3000),
	}
	for _, c := range corners {
		assert.True(t, p.updateSampleNear(stateAt(c, 0)))
	}
	require.True(t, p.HasSampled())

	// внутренняя точка не расширяет оболочку
	p.updateSampleNear(stateAt(origin, 0))
	assert.Len(t, p.Samples(), 4)

	// повтор отсчета ничего не меняет
	p.targetLocked = true
	assert.False(t, p.updateSampleNear(stateAt(corners[0], 0)))

	// вне зоны отсчеты не берутся
	assert.False(t, p.updateSampleNear(stateAt(origin.EndPoint(0, 8000), 0)))
}

func TestPoint_Target(t *testing.T) {
	p := newAATPoint(t, 5000)
	inside := origin.EndPoint(0, 2000)
	outside := origin.EndPoint(0, 7000)

	assert.True(t, p.SetTarget(inside, false))
	assert.True(t, p.Target().Equals(inside))
	assert.False(t, p.SetTarget(outside, false))

	p.SetTargetLocked(true)
	assert.False(t, p.SetTarget(origin, false))
	assert.True(t, p.SetTarget(origin, true))

	require.True(t, p.SetTargetRangeRadial(0.5, 90, true))
	rng, radial := p.TargetRangeRadial()
	assert.InDelta(t, 0.5, rng, 0.01)
	assert.InDelta(t, 90, radial, 0.5)

	require.True(t, p.SetTargetRangeRadial(-0.5, 90, true))
	_, radial = p.TargetRangeRadial()
	assert.InDelta(t, 270, radial, 0.5)
}

func TestPoint_AATOnlyTargets(t *testing.T) {
	p, err := NewPoint(ASTCylinder, models.Waypoint{ID: 1, Location: origin}, SectorDefaults{})
	require.NoError(t, err)
	assert.False(t, p.HasTarget())
	assert.False(t, p.SetTarget(origin, true))
	assert.False(t, p.SetRange(0.5, true))
}

func TestPoint_CloneAndEquals(t *testing.T) {
	p := newAATPoint(t, 5000)
	p.SetTarget(origin.EndPoint(0, 1000), false)
	p.SetTargetLocked(true)
	p.entered = true

	cp := p.Clone(nil)
	assert.True(t, p.Equals(cp))
	assert.False(t, cp.HasEntered())
	assert.True(t, cp.IsTargetLocked())
	assert.True(t, cp.Target().Equals(p.Target()))

	moved := models.Waypoint{ID: 11, Name: "U", Location: origin.EndPoint(90, 10000)}
	relocated := p.Clone(&moved)
	assert.False(t, p.Equals(relocated))
	assert.True(t, relocated.Target().Equals(moved.Location))
	assert.False(t, p.Equals(nil))
}

func TestPoint_FinishHeight(t *testing.T) {
	task := racingTask(t)
	settings := task.Settings()
	settings.Finish.MinHeight = 1000
	task.SetSettings(settings)
	fin := task.Point(2)

	low := stateAt(fin.Location(), 0)
	low.Altitude, low.AltitudeAGL = 800, 800
	assert.False(t, fin.finishHeightOK(low))

	high := low
	high.Altitude, high.AltitudeAGL = 1200, 1200
	assert.True(t, fin.finishHeightOK(high))

	// набор высоты внутри зоны засчитывается как вход
	assert.True(t, fin.checkEnter(high, low))
}
