package service

import (
	"github.com/flybeeper/taskengine/internal/metrics"
	"github.com/flybeeper/taskengine/internal/task"
)

// taskEvents получает события упорядоченного задания. Вызывается из
// TaskManager.Update, когда s.mu уже захвачен.
type taskEvents struct {
	s *TaskService
}

var _ task.Events = taskEvents{}

func (e taskEvents) ActiveAdvanced(p *task.OrderedTaskPoint, i int) {
	metrics.TaskTransitions.WithLabelValues("advance").Inc()
	metrics.ActiveTaskPoint.Set(float64(i))
	e.s.logger.WithFields(map[string]interface{}{
		"index":    i,
		"waypoint": p.Waypoint().Name,
	}).Info("Active task point advanced")
}

func (e taskEvents) RequestArm(p *task.OrderedTaskPoint) {
	metrics.TaskTransitions.WithLabelValues("arm_request").Inc()
	e.s.logger.WithField("waypoint", p.Waypoint().Name).Info("Advance needs arming")
}

func (e taskEvents) TaskStart() {
	metrics.TaskTransitions.WithLabelValues("start").Inc()
	e.s.logger.WithField("task_id", e.s.taskID).Info("Task started")
}

func (e taskEvents) TaskFinish() {
	metrics.TaskTransitions.WithLabelValues("finish").Inc()
	e.s.finished = true
}

func (e taskEvents) EnterTransition(p *task.OrderedTaskPoint) {
	metrics.TaskTransitions.WithLabelValues("enter").Inc()
	e.s.logger.WithField("waypoint", p.Waypoint().Name).Debug("Entered observation zone")
}

func (e taskEvents) ExitTransition(p *task.OrderedTaskPoint) {
	metrics.TaskTransitions.WithLabelValues("exit").Inc()
	e.s.logger.WithField("waypoint", p.Waypoint().Name).Debug("Exited observation zone")
}
