package task

import (
	"github.com/flybeeper/taskengine/internal/glide"
	"github.com/flybeeper/taskengine/internal/models"
)

// GotoTask полет на одну выбранную путевую точку
type GotoTask struct {
	unorderedTask
	destination *models.Waypoint
}

var _ Task = (*GotoTask)(nil)

func NewGotoTask(b TaskBehaviour) *GotoTask {
	return &GotoTask{unorderedTask: newUnorderedTask(b)}
}

func (g *GotoTask) Type() TaskType { return TypeGoto }

// DoGoto назначает цель. Недействительная путевая точка отклоняется.
func (g *GotoTask) DoGoto(wp models.Waypoint) bool {
	if wp.Validate() != nil {
		return false
	}
	if g.destination == nil || !g.destination.Equals(wp) {
		g.clearStats()
	}
	g.destination = &wp
	return true
}

// Clear снимает цель
func (g *GotoTask) Clear() {
	g.destination = nil
	g.clearStats()
}

// Destination текущая цель
func (g *GotoTask) Destination() (models.Waypoint, bool) {
	if g.destination == nil {
		return models.Waypoint{}, false
	}
	return *g.destination, true
}

func (g *GotoTask) Update(now, _ models.AircraftState, polar *glide.Polar) bool {
	if g.destination == nil {
		return false
	}
	g.updateToward(now, polar, *g.destination)
	return false
}

func (g *GotoTask) UpdateIdle(s models.AircraftState, polar *glide.Polar) bool {
	if g.destination == nil {
		return false
	}
	return g.updateIdleStats(polar, s, g.behaviour, false)
}

func (g *GotoTask) UpdateAutoMC(polar *glide.Polar, s models.AircraftState, fallbackMC float64) bool {
	if g.destination == nil {
		return false
	}
	return g.updateAutoMC(polar, s, fallbackMC, g.behaviour, true)
}

func (g *GotoTask) Stats() *TaskStats { return &g.stats }

func (g *GotoTask) Size() int {
	if g.destination == nil {
		return 0
	}
	return 1
}

func (g *GotoTask) ActiveIndex() int { return 0 }

func (g *GotoTask) SetActiveIndex(int) {}

func (g *GotoTask) IsValidTaskPoint(offset int) bool {
	return offset == 0 && g.destination != nil
}

func (g *GotoTask) ActiveWaypoint() (models.Waypoint, bool) { return g.Destination() }

func (g *GotoTask) FinishHeight() float64 {
	if g.destination == nil {
		return 0
	}
	return g.arrivalHeight(*g.destination)
}

func (g *GotoTask) CheckTask() bool { return g.destination != nil }

func (g *GotoTask) SetTaskBehaviour(b TaskBehaviour) { g.behaviour = b }

func (g *GotoTask) Reset() { g.clearStats() }
