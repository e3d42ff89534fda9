package task

import (
	"testing"

	"github.com/flybeeper/taskengine/internal/glide"
	"github.com/flybeeper/taskengine/internal/models"
	"github.com/stretchr/testify/require"
)

const (
	flightStep     = 200.0 // м
	flightSpeed    = 30.0  // м/с
	flightAltitude = 1500.0
)

var origin = models.NewGeoPoint(45.0, 0.0)

// testWaypoints A, B в 30 км к востоку, C в 20 км к северу от B
func testWaypoints() []models.Waypoint {
	b := origin.EndPoint(90, 30000)
	c := b.EndPoint(0, 20000)
	return []models.Waypoint{
		{ID: 1, Name: "A", Location: origin, Type: models.WaypointAirfield, Home: true},
		{ID: 2, Name: "B", Location: b},
		{ID: 3, Name: "C", Location: c, Type: models.WaypointAirfield},
	}
}

func racingTask(t *testing.T) *OrderedTask {
	t.Helper()
	wps := testWaypoints()
	task := NewOrderedTask(DefaultTaskBehaviour())
	f := task.Factory()
	require.True(t, f.Append(f.CreateStart(StartCylinder, wps[0]), false))
	require.True(t, f.Append(f.CreateIntermediate(ASTCylinder, wps[1]), false))
	require.True(t, f.Append(f.CreateFinish(FinishCylinder, wps[2]), false))
	return task
}

// closedTask старт и финиш на A, поворотная B
func closedTask(t *testing.T) *OrderedTask {
	t.Helper()
	wps := testWaypoints()
	task := NewOrderedTask(DefaultTaskBehaviour())
	f := task.Factory()
	require.True(t, f.Append(f.CreateStart(StartCylinder, wps[0]), false))
	require.True(t, f.Append(f.CreateIntermediate(ASTCylinder, wps[1]), false))
	require.True(t, f.Append(f.CreateFinish(FinishCylinder, wps[0]), false))
	return task
}

func lineStartTask(t *testing.T) *OrderedTask {
	t.Helper()
	wps := testWaypoints()
	task := NewOrderedTask(DefaultTaskBehaviour())
	f := task.Factory()
	require.True(t, f.Append(f.CreateStart(StartLine, wps[0]), false))
	require.True(t, f.Append(f.CreateIntermediate(ASTCylinder, wps[1]), false))
	require.True(t, f.Append(f.CreateFinish(FinishCylinder, wps[2]), false))
	return task
}

func aatTask(t *testing.T) *OrderedTask {
	t.Helper()
	wps := testWaypoints()
	task := NewOrderedTask(DefaultTaskBehaviour())
	task.SetFactory(FactoryAAT)
	f := task.Factory()
	require.True(t, f.Append(f.CreateStart(StartCylinder, wps[0]), false))
	require.True(t, f.Append(f.CreateIntermediate(AATCylinder, wps[1]), false))
	require.True(t, f.Append(f.CreateFinish(FinishCylinder, wps[2]), false))
	return task
}

func stateAt(loc models.GeoPoint, time float64) models.AircraftState {
	return models.AircraftState{
		Location:    loc,
		Altitude:    flightAltitude,
		AltitudeAGL: flightAltitude,
		GroundSpeed: flightSpeed,
		Time:        time,
		Flying:      true,
	}
}

// flight ведет воздушное судно по прямым с постоянной скоростью
type flight struct {
	task  Task
	polar glide.Polar
	last  models.AircraftState
}

func newFlight(task Task, from models.GeoPoint) *flight {
	f := &flight{task: task, polar: glide.DefaultPolar(), last: stateAt(from, 36000)}
	task.Update(f.last, f.last, &f.polar)
	return f
}

func (f *flight) step(loc models.GeoPoint) {
	now := f.last
	now.Track = f.last.Location.Bearing(loc)
	now.Time += f.last.Location.Distance(loc) / flightSpeed
	now.Location = loc
	f.task.Update(now, f.last, &f.polar)
	f.last = now
}

// to летит в dest, вызывая check после каждого шага
func (f *flight) to(dest models.GeoPoint, check func()) {
	for f.last.Location.Distance(dest) > flightStep {
		f.step(f.last.Location.EndPoint(f.last.Location.Bearing(dest), flightStep))
		if check != nil {
			check()
		}
	}
	f.step(dest)
	if check != nil {
		check()
	}
}

type recordingEvents struct {
	advanced    []int
	armRequests int
	starts      int
	finishes    int
	enters      []string
	exits       []string
}

func (r *recordingEvents) ActiveAdvanced(_ *OrderedTaskPoint, i int) { r.advanced = append(r.advanced, i) }
func (r *recordingEvents) RequestArm(*OrderedTaskPoint)            { r.armRequests++ }
func (r *recordingEvents) TaskStart()                              { r.starts++ }
func (r *recordingEvents) TaskFinish()                             { r.finishes++ }
func (r *recordingEvents) EnterTransition(p *OrderedTaskPoint) {
	r.enters = append(r.enters, p.Waypoint().Name)
}
func (r *recordingEvents) ExitTransition(p *OrderedTaskPoint) {
	r.exits = append(r.exits, p.Waypoint().Name)
}
