package task

import (
	"math"

	"github.com/flybeeper/taskengine/internal/geo"
	"github.com/flybeeper/taskengine/internal/models"
)

// Events получатель событий упорядоченного задания
type Events interface {
	ActiveAdvanced(p *OrderedTaskPoint, index int)
	RequestArm(p *OrderedTaskPoint)
	TaskStart()
	TaskFinish()
	EnterTransition(p *OrderedTaskPoint)
	ExitTransition(p *OrderedTaskPoint)
}

// NopEvents игнорирует события
type NopEvents struct{}

func (NopEvents) ActiveAdvanced(*OrderedTaskPoint, int) {}
func (NopEvents) RequestArm(*OrderedTaskPoint)          {}
func (NopEvents) TaskStart()                            {}
func (NopEvents) TaskFinish()                           {}
func (NopEvents) EnterTransition(*OrderedTaskPoint)     {}
func (NopEvents) ExitTransition(*OrderedTaskPoint)      {}

// OrderedTask упорядоченное задание: последовательность точек от старта
// до финиша и альтернативные старты
type OrderedTask struct {
	taskCore

	name           string
	points         []*OrderedTaskPoint
	optionalStarts []*OrderedTaskPoint
	activeIndex    int

	ctx        *pointContext
	factory    *Factory
	advance    *TaskAdvance
	projection geo.FlatProjection
	events     Events

	lastMinLocation models.GeoPoint
	hasLastMin      bool
	forceFull       bool
	lastStarted     bool
	lastFinished    bool
	needArmLast     bool
	scoredFrozen    bool
}

var _ Task = (*OrderedTask)(nil)

// NewOrderedTask создает пустое задание гоночного типа
func NewOrderedTask(b TaskBehaviour) *OrderedTask {
	t := &OrderedTask{
		taskCore: newTaskCore(),
		ctx:      &pointContext{settings: b.OrderedDefault, behaviour: b},
		advance:  NewTaskAdvance(b.AdvanceMode),
		events:   NopEvents{},
	}
	t.factory = newFactory(FactoryRacing, t)
	t.applyFactoryConstraints()
	return t
}

func (t *OrderedTask) Type() TaskType { return TypeOrdered }

func (t *OrderedTask) Name() string { return t.name }

func (t *OrderedTask) SetName(name string) { t.name = name }

// SetEvents назначает получателя событий; nil отключает события
func (t *OrderedTask) SetEvents(e Events) {
	if e == nil {
		e = NopEvents{}
	}
	t.events = e
}

func (t *OrderedTask) Size() int { return len(t.points) }

// Point точка i или nil
func (t *OrderedTask) Point(i int) *OrderedTaskPoint {
	if i < 0 || i >= len(t.points) {
		return nil
	}
	return t.points[i]
}

// Points копия списка точек
func (t *OrderedTask) Points() []*OrderedTaskPoint {
	return append([]*OrderedTaskPoint(nil), t.points...)
}

func (t *OrderedTask) OptionalStarts() []*OrderedTaskPoint {
	return append([]*OrderedTaskPoint(nil), t.optionalStarts...)
}

func (t *OrderedTask) Factory() *Factory { return t.factory }

func (t *OrderedTask) FactoryType() FactoryType { return t.factory.Type() }

func (t *OrderedTask) Advance() *TaskAdvance { return t.advance }

func (t *OrderedTask) Stats() *TaskStats { return &t.stats }

func (t *OrderedTask) Settings() OrderedTaskSettings { return t.ctx.settings }

func (t *OrderedTask) Behaviour() TaskBehaviour { return t.ctx.behaviour }

// Projection плоская проекция задания
func (t *OrderedTask) Projection() geo.FlatProjection { return t.projection }

// SetSettings меняет правила задания
func (t *OrderedTask) SetSettings(s OrderedTaskSettings) {
	t.ctx.settings = s
	t.forceFull = true
}

func (t *OrderedTask) SetTaskBehaviour(b TaskBehaviour) {
	t.ctx.behaviour = b
	t.advance.SetMode(b.AdvanceMode)
	t.forceFull = true
}

func (t *OrderedTask) HasStart() bool {
	return len(t.points) > 0 && t.points[0].Kind() == KindStart
}

func (t *OrderedTask) HasFinish() bool {
	n := len(t.points)
	return n > 0 && t.points[n-1].Kind() == KindFinish
}

// IsFull достигнуто ли наибольшее число точек
func (t *OrderedTask) IsFull() bool {
	return len(t.points) >= t.factory.Constraints().MaxPoints
}

// IsClosed совпадает ли финиш со стартом
func (t *OrderedTask) IsClosed() bool { return t.factory.IsClosed() }

// HasTargets есть ли в задании подвижные цели
func (t *OrderedTask) HasTargets() bool {
	for _, p := range t.points {
		if p.HasTarget() {
			return true
		}
	}
	return false
}

func (t *OrderedTask) ActiveIndex() int { return t.activeIndex }

// ActivePoint активная точка или nil
func (t *OrderedTask) ActivePoint() *OrderedTaskPoint { return t.Point(t.activeIndex) }

func (t *OrderedTask) ActiveWaypoint() (models.Waypoint, bool) {
	if p := t.ActivePoint(); p != nil {
		return p.Waypoint(), true
	}
	return models.Waypoint{}, false
}

// SetActiveIndex делает активной точку i. Индекс вне диапазона
// игнорируется; смена точки снимает взведение.
func (t *OrderedTask) SetActiveIndex(i int) {
	if len(t.points) == 0 {
		t.activeIndex = 0
		return
	}
	if i < 0 || i >= len(t.points) {
		return
	}
	if i != t.activeIndex {
		t.advance.SetArmed(false)
		t.activeIndex = i
		t.forceFull = true
	}
	t.scanActive()
}

func (t *OrderedTask) IsValidTaskPoint(offset int) bool {
	i := t.activeIndex + offset
	return i >= 0 && i < len(t.points)
}

// scanActive расставляет точкам положение относительно активной
func (t *OrderedTask) scanActive() {
	if t.activeIndex >= len(t.points) {
		t.activeIndex = max(0, len(t.points)-1)
	}
	for i, p := range t.points {
		switch {
		case i < t.activeIndex:
			p.activeState = BeforeActive
		case i == t.activeIndex:
			p.activeState = CurrentActive
		default:
			p.activeState = AfterActive
		}
	}
	for _, p := range t.optionalStarts {
		p.activeState = t.activeStateOfStart()
	}
}

func (t *OrderedTask) activeStateOfStart() ActiveState {
	if len(t.points) == 0 {
		return NotActive
	}
	return t.points[0].activeState
}

// FinishHeight минимальная высота прибытия на финиш
func (t *OrderedTask) FinishHeight() float64 {
	if !t.HasFinish() {
		return 0
	}
	return t.points[len(t.points)-1].Elevation()
}

// CheckTask действительно ли задание по правилам своего типа
func (t *OrderedTask) CheckTask() bool {
	return len(t.points) > 0 && !t.factory.Validate().IsError()
}

// SetFactory меняет тип задания. Задание сбрасывается, кроме перехода в
// смешанный тип.
func (t *OrderedTask) SetFactory(kind FactoryType) {
	if kind == t.factory.Type() {
		return
	}
	if kind != FactoryMixed {
		t.Reset()
	}
	t.factory = newFactory(kind, t)
	t.applyFactoryConstraints()
	t.forceFull = true
}

func (t *OrderedTask) applyFactoryConstraints() {
	c := t.factory.Constraints()
	t.ctx.settings.Start.RequireArm = c.StartRequiresArm
	t.ctx.settings.Finish.FAIFinish = c.FAIFinish
}

func (t *OrderedTask) bind(p *OrderedTaskPoint) {
	p.ctx = t.ctx
}

// Append добавляет точку в конец задания
func (t *OrderedTask) Append(p *OrderedTaskPoint) bool {
	if p == nil {
		return false
	}
	if n := len(t.points); n > 0 {
		if !p.IsPredecessorAllowed() || !t.points[n-1].IsSuccessorAllowed() {
			return false
		}
	}
	t.bind(p)
	t.points = append(t.points, p)
	t.updateGeometry()
	return true
}

// Insert вставляет точку перед позицией pos
func (t *OrderedTask) Insert(p *OrderedTaskPoint, pos int) bool {
	if p == nil || pos < 0 {
		return false
	}
	if pos >= len(t.points) {
		return t.Append(p)
	}
	if pos > 0 && (!p.IsPredecessorAllowed() || !t.points[pos-1].IsSuccessorAllowed()) {
		return false
	}
	if !p.IsSuccessorAllowed() || !t.points[pos].IsPredecessorAllowed() {
		return false
	}
	if t.activeIndex >= pos {
		t.activeIndex++
	}
	t.bind(p)
	t.points = append(t.points, nil)
	copy(t.points[pos+1:], t.points[pos:])
	t.points[pos] = p
	t.updateGeometry()
	return true
}

// Replace заменяет точку в позиции pos
func (t *OrderedTask) Replace(p *OrderedTaskPoint, pos int) bool {
	if p == nil || pos < 0 || pos >= len(t.points) {
		return false
	}
	if t.points[pos].Equals(p) {
		return true
	}
	if pos > 0 && !p.IsPredecessorAllowed() {
		return false
	}
	if pos+1 < len(t.points) && !p.IsSuccessorAllowed() {
		return false
	}
	t.bind(p)
	t.points[pos] = p
	t.updateGeometry()
	return true
}

// Remove удаляет точку в позиции pos
func (t *OrderedTask) Remove(pos int) bool {
	n := len(t.points)
	if pos < 0 || pos >= n {
		return false
	}
	if t.activeIndex > pos || (t.activeIndex == n-1 && t.activeIndex > 0) {
		t.activeIndex--
	}
	t.points = append(t.points[:pos], t.points[pos+1:]...)
	t.updateGeometry()
	return true
}

// Relocate переносит точку pos на путевую точку wp с сохранением типа и зоны
func (t *OrderedTask) Relocate(pos int, wp models.Waypoint) bool {
	p := t.Point(pos)
	if p == nil || wp.Validate() != nil {
		return false
	}
	return t.Replace(p.Clone(&wp), pos)
}

// AppendOptionalStart добавляет альтернативный старт
func (t *OrderedTask) AppendOptionalStart(p *OrderedTaskPoint) bool {
	if p == nil || p.Kind() != KindStart {
		return false
	}
	t.bind(p)
	t.optionalStarts = append(t.optionalStarts, p)
	t.updateGeometry()
	return true
}

func (t *OrderedTask) ReplaceOptionalStart(p *OrderedTaskPoint, pos int) bool {
	if p == nil || p.Kind() != KindStart || pos < 0 || pos >= len(t.optionalStarts) {
		return false
	}
	if t.optionalStarts[pos].Equals(p) {
		return true
	}
	t.bind(p)
	t.optionalStarts[pos] = p
	t.updateGeometry()
	return true
}

func (t *OrderedTask) RemoveOptionalStart(pos int) bool {
	if pos < 0 || pos >= len(t.optionalStarts) {
		return false
	}
	t.optionalStarts = append(t.optionalStarts[:pos], t.optionalStarts[pos+1:]...)
	t.updateGeometry()
	return true
}

func (t *OrderedTask) RelocateOptionalStart(pos int, wp models.Waypoint) bool {
	if pos < 0 || pos >= len(t.optionalStarts) || wp.Validate() != nil {
		return false
	}
	return t.ReplaceOptionalStart(t.optionalStarts[pos].Clone(&wp), pos)
}

// SelectOptionalStart делает альтернативный старт pos стартом задания;
// прежний старт уходит в конец списка альтернатив
func (t *OrderedTask) SelectOptionalStart(pos int) bool {
	if len(t.points) == 0 || pos < 0 || pos >= len(t.optionalStarts) {
		return false
	}
	old := t.points[0]
	t.points[0] = t.optionalStarts[pos]
	t.optionalStarts = append(t.optionalStarts[:pos], t.optionalStarts[pos+1:]...)
	old.Reset()
	t.optionalStarts = append(t.optionalStarts, old)
	t.updateGeometry()
	return true
}

// RotateOptionalStarts переключает старт на первую альтернативу
func (t *OrderedTask) RotateOptionalStarts() bool {
	if len(t.points) == 0 || len(t.optionalStarts) == 0 {
		return false
	}
	return t.SelectOptionalStart(0)
}

// updateGeometry обновляет соседей, проекцию и сбрасывает кэши поиска
func (t *OrderedTask) updateGeometry() {
	n := len(t.points)
	for i, p := range t.points {
		var prev, next *OrderedTaskPoint
		if i > 0 {
			prev = t.points[i-1]
		}
		if i+1 < n {
			next = t.points[i+1]
		}
		p.setNeighbours(prev, next)
	}
	var next *OrderedTaskPoint
	if n > 1 {
		next = t.points[1]
	}
	for _, p := range t.optionalStarts {
		p.setNeighbours(nil, next)
	}

	if n > 0 {
		b := models.NewBounds(t.points[0].Location())
		for _, p := range t.points {
			for _, q := range p.Zone().Boundary() {
				b = b.Extend(q)
			}
			b = b.Extend(p.Location())
		}
		for _, p := range t.optionalStarts {
			b = b.Extend(p.Location())
		}
		t.projection = geo.NewFlatProjection(b.Center())
	}
	t.hasLastMin = false
	t.forceFull = true
	t.scanActive()
}

// Center центр задания
func (t *OrderedTask) Center() models.GeoPoint { return t.projection.Center() }

// Radius наибольшее удаление границ зон от центра
func (t *OrderedTask) Radius() float64 {
	c := t.Center()
	r := 0.0
	for _, p := range t.points {
		for _, q := range p.Zone().Boundary() {
			r = math.Max(r, c.Distance(q))
		}
	}
	return r
}

// Reset сбрасывает прохождение задания
func (t *OrderedTask) Reset() {
	for _, p := range t.points {
		p.Reset()
	}
	for _, p := range t.optionalStarts {
		p.Reset()
	}
	t.resetCore()
	t.advance.Reset()
	t.activeIndex = 0
	t.hasLastMin = false
	t.lastStarted = false
	t.lastFinished = false
	t.needArmLast = false
	t.scoredFrozen = false
	t.forceFull = true
	t.scanActive()
}

// Clear удаляет все точки и возвращает правила по умолчанию
func (t *OrderedTask) Clear() {
	t.points = nil
	t.optionalStarts = nil
	t.ctx.settings = t.ctx.behaviour.OrderedDefault
	t.Reset()
	t.applyFactoryConstraints()
	t.updateGeometry()
}

// Clone копия задания без состояния прохождения
func (t *OrderedTask) Clone() *OrderedTask {
	c := NewOrderedTask(t.ctx.behaviour)
	c.name = t.name
	c.factory = newFactory(t.factory.Type(), c)
	c.ctx.settings = t.ctx.settings
	for _, p := range t.points {
		c.Append(p.Clone(nil))
	}
	for _, p := range t.optionalStarts {
		c.AppendOptionalStart(p.Clone(nil))
	}
	c.advance.SetMode(t.advance.Mode())
	c.SetActiveIndex(t.activeIndex)
	return c
}

// Commit переносит в задание тип, правила и точки из that. Возвращает
// true, если задание изменилось.
func (t *OrderedTask) Commit(that *OrderedTask) bool {
	if that == nil {
		return false
	}
	modified := false
	if t.factory.Type() != that.factory.Type() {
		t.SetFactory(that.factory.Type())
		modified = true
	}
	if t.ctx.settings != that.ctx.settings {
		t.SetSettings(that.ctx.settings)
		modified = true
	}
	t.name = that.name

	if t.syncPoints(that.points) {
		modified = true
	}
	if t.syncOptionalStarts(that.optionalStarts) {
		modified = true
	}
	if modified {
		t.updateGeometry()
	}
	return modified
}

func (t *OrderedTask) syncPoints(src []*OrderedTaskPoint) bool {
	modified := false
	ok := true
	for len(t.points) > len(src) {
		ok = t.Remove(len(t.points)-1) && ok
		modified = true
	}
	for i, p := range src {
		switch {
		case i >= len(t.points):
			ok = t.Append(p.Clone(nil)) && ok
			modified = true
		case !t.points[i].Equals(p):
			ok = t.Replace(p.Clone(nil), i) && ok
			modified = true
		}
	}
	if ok {
		return modified
	}
	// пошаговая синхронизация невозможна из-за порядка вариантов
	active := t.activeIndex
	t.points = t.points[:0]
	for _, p := range src {
		cp := p.Clone(nil)
		t.bind(cp)
		t.points = append(t.points, cp)
	}
	t.activeIndex = min(active, max(0, len(t.points)-1))
	t.updateGeometry()
	return true
}

func (t *OrderedTask) syncOptionalStarts(src []*OrderedTaskPoint) bool {
	modified := false
	for len(t.optionalStarts) > len(src) {
		t.RemoveOptionalStart(len(t.optionalStarts) - 1)
		modified = true
	}
	for i, p := range src {
		switch {
		case i >= len(t.optionalStarts):
			t.AppendOptionalStart(p.Clone(nil))
			modified = true
		case !t.optionalStarts[i].Equals(p):
			t.ReplaceOptionalStart(p.Clone(nil), i)
			modified = true
		}
	}
	return modified
}

// CheckDuplicateWaypoints заменяет путевые точки задания записями
// из индекса с тем же идентификатором. Возвращает число замен.
func (t *OrderedTask) CheckDuplicateWaypoints(idx *geo.WaypointIndex) int {
	if idx == nil {
		return 0
	}
	replaced := 0
	for i, p := range t.points {
		wp, ok := idx.Get(p.Waypoint().ID)
		if !ok || wp == p.Waypoint() {
			continue
		}
		if t.Relocate(i, wp) {
			replaced++
		}
	}
	for i, p := range t.optionalStarts {
		wp, ok := idx.Get(p.Waypoint().ID)
		if !ok || wp == p.Waypoint() {
			continue
		}
		if t.RelocateOptionalStart(i, wp) {
			replaced++
		}
	}
	return replaced
}

// StartState состояние в момент зачтенного старта
func (t *OrderedTask) StartState() (models.AircraftState, bool) {
	if !t.HasStart() || !t.points[0].HasExited() {
		return models.AircraftState{}, false
	}
	return t.points[0].ExitedState(), true
}

// FinishState состояние в момент финиша
func (t *OrderedTask) FinishState() (models.AircraftState, bool) {
	if !t.HasFinish() {
		return models.AircraftState{}, false
	}
	f := t.points[len(t.points)-1]
	if !f.HasEntered() {
		return models.AircraftState{}, false
	}
	return f.EnteredState(), true
}

// Summary сводка по точкам задания
func (t *OrderedTask) Summary() TaskSummary {
	s := TaskSummary{
		Active:            t.activeIndex,
		DistancePlanned:   t.stats.Total.Planned.Distance,
		DistanceRemaining: t.stats.Total.Remaining.Distance,
		Points:            make([]PointSummary, 0, len(t.points)),
	}
	var prev models.GeoPoint
	for i, p := range t.points {
		loc := t.plannedLocation(i)
		ps := PointSummary{Name: p.Waypoint().Name, Type: p.Type()}
		if i > 0 {
			ps.Distance = prev.Distance(loc)
		}
		if p.Kind() == KindStart {
			ps.Achieved = p.HasExited()
		} else {
			ps.Achieved = p.HasSampled()
		}
		s.Points = append(s.Points, ps)
		prev = loc
	}
	return s
}

func (t *OrderedTask) plannedLocation(i int) models.GeoPoint {
	p := t.points[i]
	if i < t.activeIndex {
		return p.LocationTravelled()
	}
	return p.LocationRemaining()
}
