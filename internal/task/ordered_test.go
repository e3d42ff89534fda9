package task

import (
	"testing"

	"github.com/flybeeper/taskengine/internal/geo"
	"github.com/flybeeper/taskengine/internal/models"
	"github.com/flybeeper/taskengine/internal/oz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertDistanceBounds(t *testing.T, task *OrderedTask) func() {
	return func() {
		s := task.Stats()
		assert.LessOrEqual(t, s.DistanceMin, s.DistanceNominal+1e-6)
		assert.LessOrEqual(t, s.DistanceNominal, s.DistanceMax+1e-6)
	}
}

func TestOrderedTask_RacingScenario(t *testing.T) {
	task := racingTask(t)
	events := &recordingEvents{}
	task.SetEvents(events)
	wps := testWaypoints()
	a, b, c := wps[0].Location, wps[1].Location, wps[2].Location
	check := assertDistanceBounds(t, task)

	fl := newFlight(task, a.EndPoint(270, 3000))
	assert.Equal(t, 0, task.ActiveIndex())
	assert.False(t, task.Stats().TaskStarted)

	fl.to(a, check)
	assert.True(t, task.Point(0).HasEntered())
	assert.False(t, task.Stats().TaskStarted)
	assert.Equal(t, 0, task.ActiveIndex())

	fl.to(a.EndPoint(90, 2000), check)
	assert.True(t, task.Stats().TaskStarted)
	assert.Equal(t, 1, task.ActiveIndex())
	assert.True(t, task.Stats().Start.TaskStarted)

	fl.to(b, check)
	assert.Equal(t, 2, task.ActiveIndex())
	assert.False(t, task.Stats().TaskFinished)

	fl.to(c, check)
	s := task.Stats()
	assert.True(t, s.TaskFinished)
	assert.Zero(t, s.Total.Remaining.Distance)
	// радиусы цилиндров старта и финиша не входят в зачет
	assert.InDelta(t, 48000, s.DistanceScored, 100)

	assert.Equal(t, []int{1, 2}, events.advanced)
	assert.Equal(t, 1, events.starts)
	assert.Equal(t, 1, events.finishes)
	assert.Contains(t, events.exits, "A")
	assert.Contains(t, events.enters, "B")

	finish, ok := task.FinishState()
	require.True(t, ok)
	assert.Less(t, finish.Location.Distance(c), 1000.0)
}

func TestOrderedTask_NotFlyingIgnoresTransitions(t *testing.T) {
	task := racingTask(t)
	wps := testWaypoints()
	fl := newFlight(task, wps[0].Location)
	fl.last.Flying = false

	fl.to(wps[0].Location.EndPoint(90, 3000), nil)
	assert.False(t, task.Stats().TaskStarted)
	assert.Equal(t, 0, task.ActiveIndex())
}

func TestOrderedTask_Restart(t *testing.T) {
	task := racingTask(t)
	events := &recordingEvents{}
	task.SetEvents(events)
	a := testWaypoints()[0].Location

	fl := newFlight(task, a)
	fl.to(a.EndPoint(90, 1500), nil)
	require.Equal(t, 1, task.ActiveIndex())
	first, _ := task.StartState()

	task.SetActiveIndex(0)
	fl.to(a, nil)
	fl.to(a.EndPoint(90, 1500), nil)
	second, ok := task.StartState()
	require.True(t, ok)
	assert.Greater(t, second.Time, first.Time)
	assert.Equal(t, 2, events.starts)
}

func TestOrderedTask_ScanActive(t *testing.T) {
	task := racingTask(t)

	for _, active := range []int{0, 1, 2, 7, -1} {
		task.SetActiveIndex(active)
		current := 0
		for i, p := range task.Points() {
			switch {
			case i < task.ActiveIndex():
				assert.Equal(t, BeforeActive, p.ActiveState())
			case i == task.ActiveIndex():
				assert.Equal(t, CurrentActive, p.ActiveState())
				current++
			default:
				assert.Equal(t, AfterActive, p.ActiveState())
			}
		}
		assert.Equal(t, 1, current)
	}
}

func TestOrderedTask_RemoveClampsActive(t *testing.T) {
	task := racingTask(t)
	task.SetActiveIndex(2)

	require.True(t, task.Remove(2))
	assert.Equal(t, 1, task.ActiveIndex())
	assert.False(t, task.Remove(5))
}

func TestOrderedTask_MutationRules(t *testing.T) {
	wps := testWaypoints()
	d := DefaultSectorDefaults()
	start, _ := NewPoint(StartCylinder, wps[0], d)
	tp, _ := NewPoint(ASTCylinder, wps[1], d)
	finish, _ := NewPoint(FinishCylinder, wps[2], d)
	start2, _ := NewPoint(StartLine, wps[1], d)

	tests := []struct {
		name string
		run  func(*OrderedTask) bool
		want bool
	}{
		{name: "start after start", run: func(o *OrderedTask) bool { return o.Append(start) && o.Append(start2) }, want: false},
		{name: "point after finish", run: func(o *OrderedTask) bool { return o.Append(start) && o.Append(finish) && o.Append(tp) }, want: false},
		{name: "insert before start", run: func(o *OrderedTask) bool { return o.Append(start) && o.Insert(tp, 0) }, want: false},
		{name: "insert turnpoint", run: func(o *OrderedTask) bool { return o.Append(start) && o.Append(finish) && o.Insert(tp, 1) }, want: true},
		{name: "replace with start in the middle", run: func(o *OrderedTask) bool {
			return o.Append(start) && o.Append(tp) && o.Append(finish) && o.Replace(start2, 1)
		}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := NewOrderedTask(DefaultTaskBehaviour())
			assert.Equal(t, tt.want, tt.run(o))
		})
	}
}

func TestOrderedTask_DistanceBounds(t *testing.T) {
	tests := []struct {
		name   string
		build  func(*testing.T) *OrderedTask
		strict bool
	}{
		{name: "racing", build: racingTask},
		{name: "aat", build: aatTask, strict: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := tt.build(t)
			newFlight(task, testWaypoints()[0].Location.EndPoint(180, 5000))
			s := task.Stats()

			assertDistanceBounds(t, task)()
			assert.InDelta(t, 50000, s.DistanceNominal, 100)
			if tt.strict {
				assert.Less(t, s.DistanceMin, s.DistanceNominal)
				assert.Greater(t, s.DistanceMax, s.DistanceNominal)
			}
		})
	}
}

func TestOrderedTask_CloneCommitRoundTrip(t *testing.T) {
	task := aatTask(t)
	task.SetName("club")

	clone := task.Clone()
	assert.False(t, task.Commit(clone))
	require.Equal(t, task.Size(), clone.Size())
	for i := range task.Points() {
		assert.True(t, task.Point(i).Equals(clone.Point(i)))
	}

	moved := testWaypoints()[1]
	moved.ID = 9
	moved.Location = moved.Location.EndPoint(0, 3000)
	require.True(t, clone.Relocate(1, moved))
	assert.True(t, task.Commit(clone))
	assert.Equal(t, uint32(9), task.Point(1).Waypoint().ID)
	assert.Equal(t, AATCylinder, task.Point(1).Type())
	assert.Equal(t, "club", task.Name())
}

func TestOrderedTask_ValidateIdempotent(t *testing.T) {
	for _, task := range []*OrderedTask{racingTask(t), aatTask(t), NewOrderedTask(DefaultTaskBehaviour())} {
		first := task.Factory().Validate()
		assert.Equal(t, first, task.Factory().Validate())
	}
}

func TestOrderedTask_OptionalStart(t *testing.T) {
	task := racingTask(t)
	wps := testWaypoints()
	alt := models.Waypoint{ID: 4, Name: "D", Location: origin.EndPoint(0, 5000)}
	require.True(t, task.AppendOptionalStart(task.Factory().CreateStart(StartCylinder, alt)))

	fl := newFlight(task, alt.Location.EndPoint(0, 3000))
	fl.to(alt.Location, nil)
	assert.Equal(t, "D", task.Point(0).Waypoint().Name)
	require.Len(t, task.OptionalStarts(), 1)
	assert.Equal(t, "A", task.OptionalStarts()[0].Waypoint().Name)

	fl.to(alt.Location.EndPoint(90, 1500), nil)
	assert.True(t, task.Stats().TaskStarted)
	assert.Equal(t, wps[1].Name, task.ActivePoint().Waypoint().Name)
}

func TestOrderedTask_DefinitionRoundTrip(t *testing.T) {
	task := aatTask(t)
	target := task.Point(1).Location().EndPoint(45, 4000)
	require.True(t, task.SetTarget(1, target, false))
	task.SetTargetLock(1, true)

	def := task.Definition()
	rebuilt, err := Build(def, DefaultTaskBehaviour())
	require.NoError(t, err)

	assert.Equal(t, FactoryAAT, rebuilt.FactoryType())
	require.Equal(t, task.Size(), rebuilt.Size())
	for i := range task.Points() {
		assert.True(t, task.Point(i).Equals(rebuilt.Point(i)))
	}
	assert.True(t, rebuilt.Point(1).IsTargetLocked())
	assert.InDelta(t, 0, rebuilt.Point(1).Target().Distance(target), 1)
}

func TestBuild_RejectsBadPoint(t *testing.T) {
	def := TaskDefinition{
		Factory: FactoryRacing,
		Points: []PointDefinition{
			{Type: StartCylinder, Waypoint: testWaypoints()[0], Zone: oz.Spec{Shape: oz.ShapeLine, Length: 2000}},
		},
	}
	_, err := Build(def, DefaultTaskBehaviour())
	assert.Error(t, err)
}

func TestOrderedTask_AATTargets(t *testing.T) {
	task := aatTask(t)
	fl := newFlight(task, origin)
	p := task.Point(1)

	t.Run("target outside zone rejected", func(t *testing.T) {
		assert.False(t, task.SetTarget(1, p.Location().EndPoint(0, 20000), false))
	})

	t.Run("range radial", func(t *testing.T) {
		require.True(t, task.SetTargetRangeRadial(1, 0.5, 90, false))
		rng, radial, ok := task.TargetRangeRadial(1)
		require.True(t, ok)
		assert.InDelta(t, 0.5, rng, 0.01)
		assert.InDelta(t, 90, radial, 0.5)
	})

	t.Run("locked target kept", func(t *testing.T) {
		task.SetTargetLock(1, true)
		before := p.Target()
		assert.False(t, task.SetRange(1, 1, false))
		assert.True(t, before.Equals(p.Target()))
		task.SetTargetLock(1, false)
	})

	t.Run("min target keeps task time", func(t *testing.T) {
		fl.step(origin.EndPoint(90, 100))
		b := DefaultTaskBehaviour()
		assert.True(t, task.CalcMinTarget(fl.last, &fl.polar, b.OrderedDefault.AATMinTime))
		// минимальное время задания велико, поэтому цель уходит в дальнюю часть зоны
		assert.Greater(t, p.Location().Distance(p.Target()), 5000.0)
	})

	t.Run("not a target point", func(t *testing.T) {
		assert.False(t, task.SetTarget(0, origin, true))
		_, _, ok := task.TargetRangeRadial(2)
		assert.False(t, ok)
	})
}

func TestOrderedTask_CheckDuplicateWaypoints(t *testing.T) {
	task := racingTask(t)
	idx := geo.NewWaypointIndex()
	updated := testWaypoints()[1]
	updated.Location = updated.Location.EndPoint(0, 50)
	idx.Insert(updated)

	assert.Equal(t, 1, task.CheckDuplicateWaypoints(idx))
	assert.True(t, task.Point(1).Location().Equals(updated.Location))
	assert.Equal(t, 0, task.CheckDuplicateWaypoints(idx))
}

func TestOrderedTask_ClearAndReset(t *testing.T) {
	task := racingTask(t)
	a := testWaypoints()[0].Location
	fl := newFlight(task, a)
	fl.to(a.EndPoint(90, 1500), nil)
	require.True(t, task.Stats().TaskStarted)

	task.Reset()
	assert.Equal(t, 0, task.ActiveIndex())
	assert.False(t, task.Point(0).HasExited())
	assert.Equal(t, 3, task.Size())

	task.Clear()
	assert.Zero(t, task.Size())
	assert.False(t, task.CheckTask())
}

func TestOrderedTask_ClosedTaskFinishesAtStart(t *testing.T) {
	task := closedTask(t)
	events := &recordingEvents{}
	task.SetEvents(events)
	wps := testWaypoints()
	a, b := wps[0].Location, wps[1].Location
	finish := task.Point(2)

	fl := newFlight(task, a)
	fl.to(a.EndPoint(90, 2000), nil)
	require.True(t, task.Stats().TaskStarted)
	assert.Equal(t, 1, task.ActiveIndex())

	// возврат в зону старта до поворотной
	fl.to(a, nil)
	assert.Equal(t, 1, task.ActiveIndex())
	assert.False(t, finish.HasEntered())
	assert.False(t, task.Stats().TaskFinished)

	fl.to(b, nil)
	assert.Equal(t, 2, task.ActiveIndex())
	assert.False(t, finish.HasEntered())
	assert.False(t, task.Stats().TaskFinished)
	assert.Zero(t, events.finishes)

	fl.to(a, nil)
	assert.Equal(t, 2, task.ActiveIndex())
	assert.True(t, task.Stats().TaskFinished)
	assert.Equal(t, 1, events.finishes)
	state, ok := task.FinishState()
	require.True(t, ok)
	assert.InDelta(t, 1000, state.Location.Distance(a), flightStep)
}

func TestOrderedTask_TurnpointBeforeStartNotCredited(t *testing.T) {
	task := racingTask(t)
	events := &recordingEvents{}
	task.SetEvents(events)
	wps := testWaypoints()
	a, b, c := wps[0].Location, wps[1].Location, wps[2].Location

	fl := newFlight(task, b.EndPoint(180, 3000))
	fl.to(b.EndPoint(0, 3000), nil)
	assert.Equal(t, 0, task.ActiveIndex())
	assert.False(t, task.Point(1).HasEntered())
	assert.NotContains(t, events.enters, "B")

	fl.to(a, nil)
	fl.to(a.EndPoint(90, 2000), nil)
	require.True(t, task.Stats().TaskStarted)
	assert.Equal(t, 1, task.ActiveIndex())

	fl.to(b.EndPoint(270, 2000), nil)
	assert.Equal(t, 1, task.ActiveIndex())
	assert.False(t, task.Point(1).HasEntered())

	fl.to(b, nil)
	assert.Equal(t, 2, task.ActiveIndex())
	assert.False(t, task.Stats().TaskFinished)

	fl.to(c, nil)
	assert.True(t, task.Stats().TaskFinished)
	assert.Equal(t, []int{1, 2}, events.advanced)
}

func TestOrderedTask_StartConstraints(t *testing.T) {
	tests := []struct {
		name    string
		start   func(*StartConstraints)
		agl     float64
		started bool
	}{
		{name: "open gate", started: true},
		{name: "before gate opens", start: func(c *StartConstraints) { c.Gate = TimeSpan{Start: 37000, End: -1} }},
		{name: "after gate closes", start: func(c *StartConstraints) { c.Gate = TimeSpan{Start: -1, End: 35000} }},
		{name: "inside gate", start: func(c *StartConstraints) { c.Gate = TimeSpan{Start: 35000, End: 37000} }, started: true},
		{name: "overspeed", start: func(c *StartConstraints) { c.MaxSpeed = 25 }},
		{name: "overspeed under small margin", start: func(c *StartConstraints) {
			c.MaxSpeed = 25
			c.MaxSpeedMargin = 3
		}},
		{name: "overspeed within margin", start: func(c *StartConstraints) {
			c.MaxSpeed = 25
			c.MaxSpeedMargin = 10
		}, started: true},
		{name: "above max height", start: func(c *StartConstraints) { c.MaxHeight = 1000 }},
		{name: "height within margin", start: func(c *StartConstraints) {
			c.MaxHeight = 1000
			c.MaxHeightMargin = 600
		}, started: true},
		{name: "height above ground", start: func(c *StartConstraints) {
			c.MaxHeight = 1000
			c.MaxHeightRef = HeightAGL
		}, agl: 800, started: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := racingTask(t)
			settings := task.Settings()
			if tt.start != nil {
				tt.start(&settings.Start)
			}
			task.SetSettings(settings)
			a := testWaypoints()[0].Location

			fl := newFlight(task, a)
			if tt.agl > 0 {
				fl.last.AltitudeAGL = tt.agl
			}
			fl.to(a.EndPoint(90, 2000), nil)

			assert.Equal(t, tt.started, task.Stats().TaskStarted)
			_, ok := task.StartState()
			assert.Equal(t, tt.started, ok)
			if tt.started {
				assert.Equal(t, 1, task.ActiveIndex())
			} else {
				assert.Equal(t, 0, task.ActiveIndex())
			}
		})
	}
}

func TestOrderedTask_StartThroughTop(t *testing.T) {
	task := racingTask(t)
	settings := task.Settings()
	settings.Start.MaxHeight = 1000
	task.SetSettings(settings)
	a := testWaypoints()[0].Location

	fl := newFlight(task, a.EndPoint(270, 300))
	fl.last.Altitude = 800
	fl.to(a, nil)
	require.False(t, task.Stats().TaskStarted)

	// набор выше предела внутри цилиндра
	now := fl.last
	now.Altitude = 1200
	now.Time += 10
	task.Update(now, fl.last, &fl.polar)
	fl.last = now

	assert.True(t, task.Stats().TaskStarted)
	assert.Equal(t, 1, task.ActiveIndex())
	start, ok := task.StartState()
	require.True(t, ok)
	assert.Equal(t, 800.0, start.Altitude)
}

func TestOrderedTask_StartLineTransition(t *testing.T) {
	a := testWaypoints()[0].Location

	t.Run("crossing the line starts", func(t *testing.T) {
		task := lineStartTask(t)
		fl := newFlight(task, a.EndPoint(270, 500))
		fl.to(a.EndPoint(90, 500), nil)
		assert.True(t, task.Stats().TaskStarted)
		assert.Equal(t, 1, task.ActiveIndex())
	})

	t.Run("passing around the end rejected", func(t *testing.T) {
		task := lineStartTask(t)
		fl := newFlight(task, a.EndPoint(0, 900).EndPoint(270, 100))
		require.True(t, task.Point(0).IsInSector(fl.last))
		fl.step(a.EndPoint(0, 1000).EndPoint(90, 300))
		fl.to(a.EndPoint(0, 1000).EndPoint(90, 3000), nil)
		assert.False(t, task.Stats().TaskStarted)
		assert.Equal(t, 0, task.ActiveIndex())
	})

	t.Run("through the top not allowed", func(t *testing.T) {
		task := lineStartTask(t)
		settings := task.Settings()
		settings.Start.MaxHeight = 1000
		task.SetSettings(settings)

		fl := newFlight(task, a.EndPoint(270, 300))
		fl.last.Altitude = 800
		now := fl.last
		now.Altitude = 1200
		now.Time += 10
		task.Update(now, fl.last, &fl.polar)
		assert.False(t, task.Stats().TaskStarted)
	})
}
