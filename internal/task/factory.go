package task

import "github.com/flybeeper/taskengine/internal/models"

// Factory правила типа задания, применяемые к конкретному упорядоченному
// заданию: допустимые типы точек, их преобразование при редактировании и
// проверка формы.
type Factory struct {
	policy *factoryPolicy
	task   *OrderedTask
}

func newFactory(kind FactoryType, t *OrderedTask) *Factory {
	p, ok := factoryCatalog[kind]
	if !ok {
		p = factoryCatalog[FactoryRacing]
	}
	return &Factory{policy: p, task: t}
}

// Type тип задания
func (f *Factory) Type() FactoryType { return f.policy.kind }

// Constraints ограничения формы
func (f *Factory) Constraints() FactoryConstraints { return f.policy.constraints }

func (f *Factory) StartTypes() []PointType {
	return append([]PointType(nil), f.policy.starts...)
}

func (f *Factory) IntermediateTypes() []PointType {
	return append([]PointType(nil), f.policy.intermediate...)
}

func (f *Factory) FinishTypes() []PointType {
	return append([]PointType(nil), f.policy.finishes...)
}

func (f *Factory) typesFor(k PointKind) []PointType {
	switch k {
	case KindStart:
		return f.policy.starts
	case KindFinish:
		return f.policy.finishes
	default:
		return f.policy.intermediate
	}
}

// IsValidType допустим ли тип точки в этом задании
func (f *Factory) IsValidType(t PointType) bool {
	return containsType(f.typesFor(t.Kind()), t)
}

func (f *Factory) create(t PointType, wp models.Waypoint) *OrderedTaskPoint {
	if !f.IsValidType(t) {
		return nil
	}
	p, err := NewPoint(t, wp, f.task.ctx.behaviour.SectorDefaults)
	if err != nil {
		return nil
	}
	return p
}

// CreatePoint создает точку допустимого типа; nil для недопустимого
func (f *Factory) CreatePoint(t PointType, wp models.Waypoint) *OrderedTaskPoint {
	return f.create(t, wp)
}

// CreateStart создает старт типа t
func (f *Factory) CreateStart(t PointType, wp models.Waypoint) *OrderedTaskPoint {
	if t.Kind() != KindStart {
		return nil
	}
	return f.create(t, wp)
}

// CreateIntermediate создает промежуточную точку типа t
func (f *Factory) CreateIntermediate(t PointType, wp models.Waypoint) *OrderedTaskPoint {
	if !t.Kind().IsIntermediate() {
		return nil
	}
	return f.create(t, wp)
}

// CreateFinish создает финиш типа t
func (f *Factory) CreateFinish(t PointType, wp models.Waypoint) *OrderedTaskPoint {
	if t.Kind() != KindFinish {
		return nil
	}
	return f.create(t, wp)
}

func (f *Factory) CreateDefaultStart(wp models.Waypoint) *OrderedTaskPoint {
	return f.create(f.policy.starts[0], wp)
}

func (f *Factory) CreateDefaultIntermediate(wp models.Waypoint) *OrderedTaskPoint {
	return f.create(f.policy.intermediate[0], wp)
}

func (f *Factory) CreateDefaultFinish(wp models.Waypoint) *OrderedTaskPoint {
	return f.create(f.policy.finishes[0], wp)
}

// MutatedPointType ближайший допустимый тип для точки p при ее варианте
func (f *Factory) MutatedPointType(p *OrderedTaskPoint) PointType {
	return f.mutatedTypeFor(p.Type(), p.Kind())
}

func (f *Factory) mutatedTypeFor(t PointType, k PointKind) PointType {
	candidate := f.policy.mutate(t)
	list := f.typesFor(k)
	if containsType(list, candidate) {
		return candidate
	}
	return list[0]
}

// createMutated переводит точку в вариант k с сохранением зоны, если
// тип не меняется
func (f *Factory) createMutated(p *OrderedTaskPoint, k PointKind) *OrderedTaskPoint {
	t := f.mutatedTypeFor(p.Type(), k)
	if t == p.Type() {
		return p.Clone(nil)
	}
	return f.create(t, p.Waypoint())
}

// IsPositionFinish станет ли точка в позиции pos финишем
func (f *Factory) IsPositionFinish(pos int) bool {
	return pos > 0 && pos+1 >= f.task.Size()
}

// IsPositionIntermediate может ли позиция pos быть промежуточной
func (f *Factory) IsPositionIntermediate(pos int) bool {
	if pos <= 0 || f.IsPositionFinish(pos) {
		return false
	}
	return pos+1 < f.policy.constraints.MaxPoints
}

// ValidAbstractType допустим ли вариант k в позиции pos
func (f *Factory) ValidAbstractType(k PointKind, pos int) bool {
	isStart := pos == 0
	isFinish := f.IsPositionFinish(pos)
	switch k {
	case KindStart:
		return isStart
	case KindFinish:
		return isFinish
	default:
		return !isStart && !isFinish
	}
}

// ValidType допустима ли точка p в позиции pos
func (f *Factory) ValidType(p *OrderedTaskPoint, pos int) bool {
	return f.ValidAbstractType(p.Kind(), pos) && f.IsValidType(p.Type())
}

func (f *Factory) validForAppend(p *OrderedTaskPoint, pos int) bool {
	if pos == 0 {
		return p.Kind() == KindStart && f.IsValidType(p.Type())
	}
	return p.Kind() == KindFinish && f.IsValidType(p.Type())
}

// Append добавляет точку в конец. С autoMutate пустое задание получает
// старт, прежний финиш становится промежуточной точкой, новая точка
// становится финишем.
func (f *Factory) Append(p *OrderedTaskPoint, autoMutate bool) bool {
	if p == nil {
		return false
	}
	t := f.task
	if !autoMutate {
		return t.Append(p)
	}
	if t.Size() >= f.policy.constraints.MaxPoints {
		return false
	}
	if t.Size() == 0 {
		if !f.validForAppend(p, 0) {
			p = f.createMutated(p, KindStart)
		}
		return p != nil && t.Append(p)
	}
	if t.HasFinish() {
		last := t.Size() - 1
		if tp := f.createMutated(t.points[last], KindAST); tp != nil {
			t.Replace(tp, last)
		}
	}
	if !f.validForAppend(p, t.Size()) {
		p = f.createMutated(p, KindFinish)
	}
	return p != nil && t.Append(p)
}

// Insert вставляет точку в позицию pos
func (f *Factory) Insert(p *OrderedTaskPoint, pos int, autoMutate bool) bool {
	if p == nil {
		return false
	}
	t := f.task
	if pos >= t.Size() {
		return f.Append(p, autoMutate)
	}
	if !autoMutate {
		return t.Insert(p, pos)
	}
	if pos <= 0 {
		if t.HasStart() {
			if tp := f.createMutated(t.points[0], KindAST); tp != nil {
				t.Replace(tp, 0)
			}
		}
		if p.Kind() != KindStart || !f.IsValidType(p.Type()) {
			p = f.createMutated(p, KindStart)
		}
		return p != nil && t.Insert(p, 0)
	}
	if !p.Kind().IsIntermediate() || !f.IsValidType(p.Type()) {
		p = f.createMutated(p, KindAST)
	}
	return p != nil && t.Insert(p, pos)
}

// Replace заменяет точку в позиции pos
func (f *Factory) Replace(p *OrderedTaskPoint, pos int, autoMutate bool) bool {
	if p == nil {
		return false
	}
	t := f.task
	if !autoMutate || f.ValidType(p, pos) {
		return t.Replace(p, pos)
	}
	switch {
	case pos == 0:
		p = f.createMutated(p, KindStart)
	case pos+1 == t.Size():
		p = f.createMutated(p, KindFinish)
	default:
		p = f.createMutated(p, KindAST)
	}
	return p != nil && t.Replace(p, pos)
}

// Remove удаляет точку. С autoMutate следующая точка становится стартом
// при удалении старта, а предыдущая финишем при удалении финиша.
func (f *Factory) Remove(pos int, autoMutate bool) bool {
	t := f.task
	if pos < 0 || pos >= t.Size() {
		return false
	}
	if !autoMutate {
		return t.Remove(pos)
	}
	switch {
	case pos == 0:
		if t.Size() == 1 {
			return t.Remove(0)
		}
		sp := f.createMutated(t.points[1], KindStart)
		if sp == nil {
			return false
		}
		return t.Remove(0) && t.Replace(sp, 0)
	case pos+1 == t.Size() && pos-1 > 0:
		fp := f.createMutated(t.points[pos-1], KindFinish)
		if fp == nil {
			return false
		}
		return t.Remove(pos) && t.Replace(fp, pos-1)
	default:
		return t.Remove(pos)
	}
}

// Swap меняет местами точки pos и pos+1
func (f *Factory) Swap(pos int, autoMutate bool) bool {
	t := f.task
	if pos < 0 || pos+1 >= t.Size() {
		return false
	}
	next := t.points[pos+1].Clone(nil)
	if !f.Insert(next, pos, autoMutate) {
		return false
	}
	return f.Remove(pos+2, autoMutate)
}

// Relocate переносит точку pos на другую путевую точку
func (f *Factory) Relocate(pos int, wp models.Waypoint) bool {
	return f.task.Relocate(pos, wp)
}

// HasEntered пройдена ли точка pos; для отсутствующей точки true
func (f *Factory) HasEntered(pos int) bool {
	if p := f.task.Point(pos); p != nil {
		return p.HasEntered()
	}
	return true
}

// IsClosed совпадает ли финиш со стартом
func (f *Factory) IsClosed() bool {
	t := f.task
	if t.Size() < 3 {
		return false
	}
	return t.points[0].Waypoint().Equals(t.points[t.Size()-1].Waypoint())
}

// IsHomogeneous одного ли типа промежуточные точки
func (f *Factory) IsHomogeneous() bool {
	t := f.task
	if t.Size() < 3 {
		return true
	}
	first := t.points[1].Type()
	for _, p := range t.points[2 : t.Size()-1] {
		if p.Type() != first {
			return false
		}
	}
	return true
}

// IsUnique не повторяются ли путевые точки, кроме замыкающего финиша
func (f *Factory) IsUnique() bool {
	pts := f.task.points
	n := len(pts)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if i == 0 && j == n-1 && f.policy.constraints.IsClosed {
				continue
			}
			if pts[i].Waypoint().Equals(pts[j].Waypoint()) {
				return false
			}
		}
	}
	return true
}

// CheckAddFinish превращает последнюю точку в финиш. Возвращает true,
// если задание изменилось.
func (f *Factory) CheckAddFinish() bool {
	t := f.task
	if t.Size() < 2 || t.HasFinish() {
		return false
	}
	last := t.Size() - 1
	fp := f.createMutated(t.points[last], KindFinish)
	if fp == nil {
		return false
	}
	return t.Replace(fp, last)
}

// MutateTPsToTaskType приводит все точки к допустимым типам задания
func (f *Factory) MutateTPsToTaskType() bool {
	t := f.task
	changed := false
	for i := 0; i < t.Size(); i++ {
		p := t.points[i]
		if f.ValidType(p, i) && f.mutatedTypeFor(p.Type(), p.Kind()) == p.Type() {
			continue
		}
		var k PointKind
		switch {
		case i == 0:
			k = KindStart
		case f.IsPositionFinish(i):
			k = KindFinish
		default:
			k = KindAST
		}
		if np := f.createMutated(p, k); np != nil && t.Replace(np, i) {
			changed = true
		}
	}
	return changed
}

// MutateClosedFinishPerTaskType переносит финиш в точку старта для
// заданий, которые должны быть замкнуты
func (f *Factory) MutateClosedFinishPerTaskType() bool {
	t := f.task
	if t.Size() < 2 || !f.policy.constraints.IsClosed || f.IsClosed() {
		return false
	}
	last := t.Size() - 1
	if t.points[last].Kind() != KindFinish {
		return false
	}
	fp := f.create(f.mutatedTypeFor(t.points[last].Type(), KindFinish), t.points[0].Waypoint())
	if fp == nil {
		return false
	}
	return t.Remove(last) && t.Append(fp)
}

// Validate проверяет задание по ограничениям типа
func (f *Factory) Validate() ValidationErrors {
	t := f.task
	c := f.policy.constraints
	var errs ValidationErrors

	if t.Size() == 0 {
		return EmptyTask | NoValidStart | NoValidFinish | UnderMinTurnpoints
	}
	if !t.HasStart() {
		errs |= NoValidStart
	}
	if !t.HasFinish() {
		errs |= NoValidFinish
	}
	if c.IsClosed && !f.IsClosed() {
		errs |= TaskNotClosed
	}
	if c.IsFixedSize() {
		if t.Size() != c.MaxPoints {
			errs |= IncorrectNumberTurnpoints
		}
	} else {
		if t.Size() < c.MinPoints {
			errs |= UnderMinTurnpoints
		}
		if t.Size() > c.MaxPoints {
			errs |= ExceedsMaxTurnpoints
		}
	}
	if c.Homogeneous && !f.IsHomogeneous() {
		errs |= TaskNotHomogeneous
	}
	if !f.IsUnique() {
		errs |= TurnpointsNotUnique
	}
	if f.policy.validate != nil {
		errs |= f.policy.validate(t.points)
	}
	return errs
}
