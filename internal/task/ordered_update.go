package task

import (
	"github.com/flybeeper/taskengine/internal/glide"
	"github.com/flybeeper/taskengine/internal/models"
)

// Update обрабатывает отсчет now после last. Возвращает true, если был
// выполнен полный пересчет задания.
func (t *OrderedTask) Update(now, last models.AircraftState, polar *glide.Polar) bool {
	t.scanActive()
	t.stats.TaskValid = t.CheckTask()
	t.stats.HasTargets = t.HasTargets()
	if len(t.points) == 0 {
		return false
	}

	transitioned, sampled := t.checkTransitions(now, last)
	full := transitioned || t.forceFull
	t.forceFull = false

	if full {
		t.updateMinMax()
	}
	t.updateRemainingMin(now, full)
	if full || sampled {
		t.updateAchieved()
	}
	t.updateDistances(now)
	t.solveRoute(polar, now, t.route(now))

	startTime := -1.0
	if t.stats.TaskStarted {
		startTime = t.points[0].ExitedState().Time
	}
	untilStart := 0.0
	if t.activeIndex == 0 && !t.stats.TaskStarted && t.stats.CurrentLeg.SolutionRemaining.IsOK() {
		untilStart = t.stats.CurrentLeg.SolutionRemaining.TimeElapsed
	}
	t.updateTimes(untilStart, startTime, t.legStartTime(), now.Time)
	if !t.stats.TaskFinished {
		t.updateSpeeds(now.Time)
	}
	t.updateFlightMode()

	if p := t.ActivePoint(); p != nil {
		t.stats.InsideOZ = p.IsInSector(now)
	}
	return full
}

// legStartTime время начала текущего участка или -1
func (t *OrderedTask) legStartTime() float64 {
	if t.activeIndex == 0 {
		return -1
	}
	prev := t.points[t.activeIndex-1]
	switch {
	case prev.Kind() == KindStart && prev.HasExited():
		return prev.ExitedState().Time
	case prev.Kind() != KindStart && prev.HasEntered():
		return prev.EnteredState().Time
	}
	return -1
}

// checkTransitions проверяет переходы активной и предыдущей точек.
// Точки после активной не сканируются: проход через них до их очереди
// не засчитывается. Возвращает признак перехода и признак новых отсчетов.
func (t *OrderedTask) checkTransitions(now, last models.AircraftState) (bool, bool) {
	if !now.Flying || len(t.points) == 0 {
		return false, false
	}
	full, sampled := false, false
	active := t.activeIndex
	lo, hi := max(0, active-1), min(len(t.points)-1, active)

	for i := lo; i <= hi; i++ {
		if i == 0 && t.checkOptionalStarts(now, last) {
			full = true
		}
		p := t.points[i]

		entered := p.transitionEnter(now, last)
		if entered {
			t.events.EnterTransition(p)
			full = true
		}
		exited := p.transitionExit(now, last)
		if exited {
			t.events.ExitTransition(p)
			full = true
			if i == 0 {
				// повторный старт
				t.lastStarted = false
			}
		}
		if p.updateSampleNear(now) {
			sampled = true
		}
		if i == 0 {
			t.updateStartTransition(now, p)
		}

		if i != active {
			continue
		}
		if t.advance.CheckReadyToAdvance(p, now, entered, exited) {
			t.advance.SetArmed(false)
			if i+1 < len(t.points) {
				t.activeIndex++
				t.scanActive()
				t.events.ActiveAdvanced(t.points[t.activeIndex], t.activeIndex)
				full = true
			}
		} else if t.advance.NeedToArm() && !t.needArmLast {
			t.events.RequestArm(p)
		}
		t.needArmLast = t.advance.NeedToArm()
	}

	started := t.HasStart() && t.points[0].HasExited()
	finished := t.HasFinish() && t.activeIndex == len(t.points)-1 &&
		t.points[len(t.points)-1].HasEntered()

	if started {
		ss := t.points[0].ExitedState()
		t.stats.Start.setStarted(ss)
		t.points[len(t.points)-1].setFAIFinishHeight(ss.Altitude - faiFinishBuffer)
		if !t.lastStarted {
			t.events.TaskStart()
		}
	}
	if finished && !t.lastFinished {
		t.events.TaskFinish()
	}
	t.lastStarted = started
	t.lastFinished = finished
	t.stats.TaskStarted = started
	t.stats.TaskFinished = finished
	return full, sampled
}

// checkOptionalStarts переключает старт на альтернативный, в который
// вошло воздушное судно
func (t *OrderedTask) checkOptionalStarts(now, last models.AircraftState) bool {
	if t.activeIndex != 0 || len(t.optionalStarts) == 0 {
		return false
	}
	for j, alt := range t.optionalStarts {
		alt.transitionEnter(now, last)
		alt.transitionExit(now, last)
		if alt.HasEntered() {
			return t.SelectOptionalStart(j)
		}
	}
	return false
}

func (t *OrderedTask) updateStartTransition(s models.AircraftState, start *OrderedTaskPoint) {
	if start.Kind() != KindStart {
		return
	}
	if t.activeIndex == 0 {
		start.updateBestStart(s, t.Point(1))
		return
	}
	// старт пропущен вручную
	if !start.HasExited() && !start.IsInSector(s) {
		start.Reset()
	}
}

// allowIncrementalBoundaryStats можно ли обновлять оценки по пройденному пути
func (t *OrderedTask) allowIncrementalBoundaryStats(s models.AircraftState) bool {
	if t.activeIndex == 0 || t.activeIndex >= len(t.points) {
		return false
	}
	p := t.points[t.activeIndex]
	inSector := p.IsInSector(s) || t.points[t.activeIndex-1].IsInSector(s)
	return p.IsBoundaryScored() || !inSector
}

// UpdateIdle обновляет медленные оценки и оптимизирует цели AAT
func (t *OrderedTask) UpdateIdle(s models.AircraftState, polar *glide.Polar) bool {
	if len(t.points) == 0 {
		return false
	}
	b := t.ctx.behaviour
	changed := t.updateIdleStats(polar, s, b, t.allowIncrementalBoundaryStats(s))

	if b.OptimiseTargetsRange && t.ctx.settings.AATMinTime > 0 {
		if t.CalcMinTarget(s, polar, t.ctx.settings.AATMinTime+b.OptimiseTargetsMargin) {
			changed = true
		}
	}
	if b.OptimiseTargetsBearing {
		if t.OptimiseTargetBearing(s, polar) {
			changed = true
		}
	}
	return changed
}

// UpdateAutoMC подбирает MC для поляры
func (t *OrderedTask) UpdateAutoMC(polar *glide.Polar, s models.AircraftState, fallbackMC float64) bool {
	return t.updateAutoMC(polar, s, fallbackMC, t.ctx.behaviour, t.stats.TaskStarted)
}
