package task

import (
	"testing"

	"github.com/flybeeper/taskengine/internal/geo"
	"github.com/flybeeper/taskengine/internal/glide"
	"github.com/flybeeper/taskengine/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *TaskManager {
	t.Helper()
	idx := geo.NewWaypointIndex()
	for _, wp := range testWaypoints() {
		idx.Insert(wp)
	}
	return NewTaskManager(DefaultTaskBehaviour(), glide.DefaultPolar(), idx)
}

func TestTaskManager_SetModeGuards(t *testing.T) {
	m := newTestManager(t)
	assert.Equal(t, ModeNull, m.Mode())

	assert.Equal(t, ModeNull, m.SetMode(ModeOrdered))
	assert.Equal(t, ModeNull, m.SetMode(ModeGoto))
	assert.Equal(t, ModeNull, m.SetMode(Mode(42)))
	assert.Equal(t, ModeAbort, m.SetMode(ModeAbort))
	assert.Equal(t, ModeNull, m.SetMode(ModeNull))
}

func TestTaskManager_SetModeAcceptsUnvalidatedTask(t *testing.T) {
	m := newTestManager(t)
	start, err := NewPoint(StartCylinder, testWaypoints()[0], DefaultSectorDefaults())
	require.NoError(t, err)
	require.True(t, m.Ordered().Append(start))

	// задание из одного старта недействительно, но режим включается
	assert.False(t, m.Ordered().CheckTask())
	assert.True(t, m.Ordered().Factory().Validate().IsError())
	assert.Equal(t, ModeOrdered, m.SetMode(ModeOrdered))
}

func TestTaskManager_NullStats(t *testing.T) {
	m := newTestManager(t)
	s := stateAt(origin, 100)
	m.Update(s, s)

	st := m.Stats()
	assert.False(t, st.TaskValid)
	assert.Equal(t, -1.0, st.Total.TimeStarted)
	assert.Equal(t, 0, m.ActiveTaskPoint())
	_, ok := m.ActiveWaypoint()
	assert.False(t, ok)
	assert.Equal(t, 0.0, m.FinishHeight())
}

func TestTaskManager_CommitSwitchesToOrdered(t *testing.T) {
	m := newTestManager(t)
	assert.True(t, m.Commit(racingTask(t)))
	assert.Equal(t, ModeOrdered, m.Mode())
	assert.Equal(t, 3, m.Ordered().Size())

	// повторная фиксация того же задания ничего не меняет
	assert.False(t, m.Commit(m.Clone()))

	m.IncrementActiveTaskPoint(1)
	assert.Equal(t, 1, m.ActiveTaskPoint())
	m.IncrementActiveTaskPoint(5)
	assert.Equal(t, 1, m.ActiveTaskPoint())
	wp, ok := m.ActiveWaypoint()
	require.True(t, ok)
	assert.Equal(t, "B", wp.Name)

	assert.True(t, m.Commit(NewOrderedTask(DefaultTaskBehaviour())))
	assert.Equal(t, ModeNull, m.Mode())
}

func TestTaskManager_FlyOrdered(t *testing.T) {
	m := newTestManager(t)
	require.True(t, m.Commit(racingTask(t)))
	wps := testWaypoints()

	last := stateAt(origin, 36000)
	m.Update(last, last)
	for _, dest := range []models.GeoPoint{wps[1].Location, wps[2].Location} {
		for last.Location.Distance(dest) > flightStep {
			now := last
			now.Location = last.Location.EndPoint(last.Location.Bearing(dest), flightStep)
			now.Time += flightStep / flightSpeed
			m.Update(now, last)
			last = now
		}
	}
	now := last
	now.Location = wps[2].Location
	now.Time += 10
	m.Update(now, last)

	c := m.CommonStats()
	assert.True(t, c.TaskStarted)
	assert.True(t, c.TaskFinished)
	assert.True(t, c.ModeOrdered)
	assert.True(t, c.OrderedValid)
	assert.True(t, c.HasHome)
	assert.Equal(t, -1.0, c.AATSpeedMin)
	assert.True(t, m.Stats().TaskFinished)
}

func TestTaskManager_Goto(t *testing.T) {
	m := newTestManager(t)
	wps := testWaypoints()

	assert.False(t, m.DoGoto(models.Waypoint{Location: models.NewGeoPoint(95, 0)}))
	assert.Equal(t, ModeNull, m.Mode())

	require.True(t, m.DoGoto(wps[1]))
	assert.Equal(t, ModeGoto, m.Mode())

	s := stateAt(origin, 100)
	m.Update(s, s)
	st := m.Stats()
	assert.True(t, st.TaskValid)
	assert.InDelta(t, 30000, st.Total.Remaining.Distance, 1)
	assert.True(t, st.Total.SolutionRemaining.IsOK())
	assert.True(t, m.CommonStats().ModeGoto)

	wp, ok := m.ActiveWaypoint()
	require.True(t, ok)
	assert.Equal(t, "B", wp.Name)
}

func TestTaskManager_Abort(t *testing.T) {
	m := newTestManager(t)
	require.True(t, m.Commit(racingTask(t)))
	require.Equal(t, ModeAbort, m.SetMode(ModeAbort))

	s := stateAt(origin.EndPoint(90, 2000), 100)
	m.Update(s, s)

	cands := m.Abort().Candidates()
	require.Len(t, cands, 2)
	assert.Equal(t, "A", cands[0].Waypoint.Name)
	assert.True(t, cands[0].Reachable)
	assert.True(t, m.Abort().HasLandableReachable())

	c := m.CommonStats()
	assert.True(t, c.ModeAbort)
	assert.True(t, c.LandableReachable)
	assert.InDelta(t, 2000, c.VectorHome.Distance, 1)

	wp, ok := m.ActiveWaypoint()
	require.True(t, ok)
	assert.Equal(t, "A", wp.Name)
	assert.InDelta(t, 2000, m.Stats().Total.Remaining.Distance, 1)
}

func TestTaskManager_AbortNothingReachable(t *testing.T) {
	m := newTestManager(t)
	m.SetMode(ModeAbort)

	// на малой высоте вдали от A ни одна площадка не достижима
	s := stateAt(origin.EndPoint(90, 29000), 100)
	s.Altitude, s.AltitudeAGL = 350, 350
	m.Update(s, s)

	assert.False(t, m.Abort().HasLandableReachable())
	assert.False(t, m.CommonStats().LandableReachable)
}

func TestTaskManager_TimeWarpResets(t *testing.T) {
	m := newTestManager(t)
	require.True(t, m.Commit(racingTask(t)))
	m.SetActiveTaskPoint(1)

	now := stateAt(origin, 100)
	last := stateAt(origin, 200)
	m.Update(now, last)
	assert.False(t, m.Stats().TaskStarted)
}

func TestTaskManager_SetWaypoints(t *testing.T) {
	m := newTestManager(t)
	m.SetMode(ModeAbort)
	s := stateAt(origin, 100)
	m.Update(s, s)
	require.NotEmpty(t, m.Abort().Candidates())

	m.SetWaypoints(nil)
	m.Update(s, s)
	assert.Empty(t, m.Abort().Candidates())
	_, hasHome := m.Abort().VectorHome()
	assert.False(t, hasHome)
}
