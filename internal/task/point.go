package task

import (
	"fmt"
	"math"

	"github.com/flybeeper/taskengine/internal/geo"
	"github.com/flybeeper/taskengine/internal/models"
	"github.com/flybeeper/taskengine/internal/oz"
)

// faiFinishBuffer допустимая потеря высоты от старта до финиша по правилам FAI
const faiFinishBuffer = 1000.0

// boundaryInset доля радиуса, на которую цель с границы сдвигается внутрь зоны
const boundaryInset = 0.999

// pointContext настройки задания, разделяемые его точками
type pointContext struct {
	settings  OrderedTaskSettings
	behaviour TaskBehaviour
}

var defaultContext = &pointContext{
	settings:  DefaultOrderedTaskSettings(),
	behaviour: DefaultTaskBehaviour(),
}

// OrderedTaskPoint точка упорядоченного задания. Вариант определяется типом:
// старт, промежуточная (AST или AAT) и финиш. Поведение вариантов
// различается переключением по Kind.
type OrderedTaskPoint struct {
	pointType PointType
	waypoint  models.Waypoint
	zone      oz.Zone
	ctx       *pointContext

	prev, next  *OrderedTaskPoint
	activeState ActiveState

	entered      bool
	exited       bool
	enteredState models.AircraftState
	exitedState  models.AircraftState

	// samples выпуклая оболочка отсчетов внутри зоны
	samples []models.GeoPoint

	searchMin   models.GeoPoint
	searchMax   models.GeoPoint
	achieved    models.GeoPoint
	hasAchieved bool

	target       models.GeoPoint
	targetLocked bool

	faiFinishHeight float64
}

// NewPoint создает точку типа t с зоной размеров по умолчанию
func NewPoint(t PointType, wp models.Waypoint, d SectorDefaults) (*OrderedTaskPoint, error) {
	if _, ok := pointTypes[t]; !ok {
		return nil, fmt.Errorf("unknown point type %d", t)
	}
	if err := wp.Validate(); err != nil {
		return nil, err
	}
	return newPoint(t, wp, defaultZone(t, wp.Location, d)), nil
}

// NewPointWithZone создает точку с явно заданной зоной. Форма зоны должна
// соответствовать типу точки.
func NewPointWithZone(t PointType, wp models.Waypoint, spec oz.Spec) (*OrderedTaskPoint, error) {
	info, ok := pointTypes[t]
	if !ok {
		return nil, fmt.Errorf("unknown point type %d", t)
	}
	if err := wp.Validate(); err != nil {
		return nil, err
	}
	if spec.Shape != info.shape {
		return nil, fmt.Errorf("zone %s does not match point type %s", spec.Shape, t)
	}
	z, err := oz.New(spec, wp.Location)
	if err != nil {
		return nil, fmt.Errorf("failed to create zone: %w", err)
	}
	return newPoint(t, wp, z), nil
}

func newPoint(t PointType, wp models.Waypoint, z oz.Zone) *OrderedTaskPoint {
	return &OrderedTaskPoint{
		pointType: t,
		waypoint:  wp,
		zone:      z,
		searchMin: wp.Location,
		searchMax: wp.Location,
		target:    wp.Location,
	}
}

func defaultZone(t PointType, ref models.GeoPoint, d SectorDefaults) oz.Zone {
	orDef := func(v, def float64) float64 {
		if v <= 0 {
			return def
		}
		return v
	}
	startR := orDef(d.StartRadius, 1000)
	finishR := orDef(d.FinishRadius, 1000)
	tpR := orDef(d.TurnpointRadius, 500)
	aatR := orDef(d.AATRadius, oz.DefaultSectorRadius)

	switch t {
	case StartSector:
		return oz.NewFAISector(ref, startR)
	case StartLine:
		return oz.NewLine(ref, 2*startR)
	case StartCylinder:
		return oz.NewCylinder(ref, startR)
	case StartBGA:
		return oz.NewBGAStart(ref)
	case FAISector:
		return oz.NewFAISector(ref, oz.DefaultSectorRadius)
	case KeyholeSector:
		return oz.NewKeyhole(ref, oz.DefaultSectorRadius, oz.KeyholeInnerRadius)
	case BGAFixedCourseSector:
		return oz.NewBGAFixedCourse(ref)
	case BGAEnhancedOptionSector:
		return oz.NewBGAEnhancedOption(ref)
	case SymmetricQuadrant:
		return oz.NewSymmetricQuadrant(ref, oz.DefaultSectorRadius)
	case ASTCylinder:
		return oz.NewCylinder(ref, tpR)
	case AATCylinder:
		return oz.NewCylinder(ref, aatR)
	case AATSegment:
		return oz.NewSector(ref, aatR, 0, 360)
	case AATAnnularSector:
		return oz.NewAnnularSector(ref, aatR, aatR/10, 0, 360)
	case AATKeyhole:
		return oz.NewKeyhole(ref, aatR, oz.KeyholeInnerRadius)
	case MATCylinder:
		return oz.NewMATCylinder(ref)
	case FinishSector:
		return oz.NewFAISector(ref, finishR)
	case FinishLine:
		return oz.NewLine(ref, 2*finishR)
	default:
		return oz.NewCylinder(ref, finishR)
	}
}

func (p *OrderedTaskPoint) context() *pointContext {
	if p.ctx == nil {
		return defaultContext
	}
	return p.ctx
}

// Type тип точки
func (p *OrderedTaskPoint) Type() PointType { return p.pointType }

// Kind вариант точки
func (p *OrderedTaskPoint) Kind() PointKind { return p.pointType.Kind() }

// Waypoint путевая точка
func (p *OrderedTaskPoint) Waypoint() models.Waypoint { return p.waypoint }

// Zone зона наблюдения
func (p *OrderedTaskPoint) Zone() oz.Zone { return p.zone }

// Location опорная точка
func (p *OrderedTaskPoint) Location() models.GeoPoint { return p.waypoint.Location }

func (p *OrderedTaskPoint) ActiveState() ActiveState { return p.activeState }

func (p *OrderedTaskPoint) HasEntered() bool { return p.entered }

func (p *OrderedTaskPoint) HasExited() bool { return p.exited }

func (p *OrderedTaskPoint) EnteredState() models.AircraftState { return p.enteredState }

func (p *OrderedTaskPoint) ExitedState() models.AircraftState { return p.exitedState }

// IsPredecessorAllowed может ли точка иметь предыдущую
func (p *OrderedTaskPoint) IsPredecessorAllowed() bool { return p.Kind() != KindStart }

// IsSuccessorAllowed может ли точка иметь следующую
func (p *OrderedTaskPoint) IsSuccessorAllowed() bool { return p.Kind() != KindFinish }

// IsBoundaryScored зачет по фактической точке внутри зоны
func (p *OrderedTaskPoint) IsBoundaryScored() bool { return p.Kind() == KindAAT }

// HasTarget есть ли у точки подвижная цель
func (p *OrderedTaskPoint) HasTarget() bool { return p.Kind() == KindAAT }

// HasSampled учтено ли прохождение точки
func (p *OrderedTaskPoint) HasSampled() bool {
	switch p.Kind() {
	case KindStart:
		return p.exited
	case KindAAT:
		return len(p.samples) > 0
	default:
		return p.entered
	}
}

// Samples копия отсчетов внутри зоны
func (p *OrderedTaskPoint) Samples() []models.GeoPoint {
	out := make([]models.GeoPoint, len(p.samples))
	copy(out, p.samples)
	return out
}

// IsInSector находится ли воздушное судно в зоне
func (p *OrderedTaskPoint) IsInSector(s models.AircraftState) bool {
	return p.zone.Contains(s.Location)
}

// Elevation минимальная высота прибытия
func (p *OrderedTaskPoint) Elevation() float64 {
	ctx := p.context()
	h := p.waypoint.Elevation + ctx.behaviour.SafetyHeightArrival
	if p.Kind() != KindFinish {
		return h
	}
	fc := ctx.settings.Finish
	if fc.MinHeight > 0 {
		if fc.MinHeightRef == HeightAGL {
			h = math.Max(h, p.waypoint.Elevation+fc.MinHeight)
		} else {
			h = math.Max(h, fc.MinHeight)
		}
	}
	if fc.FAIFinish {
		h = math.Max(h, p.faiFinishHeight)
	}
	return h
}

func (p *OrderedTaskPoint) setFAIFinishHeight(h float64) {
	p.faiFinishHeight = math.Max(0, h)
}

func (p *OrderedTaskPoint) setNeighbours(prev, next *OrderedTaskPoint) {
	p.prev, p.next = prev, next
	var pl, nl *models.GeoPoint
	if prev != nil {
		l := prev.Location()
		pl = &l
	}
	if next != nil {
		l := next.Location()
		nl = &l
	}
	p.zone.SetLegs(pl, nl)
}

// LocationRemaining точка, через которую строится оставшийся путь
func (p *OrderedTaskPoint) LocationRemaining() models.GeoPoint {
	switch p.Kind() {
	case KindAAT:
		return p.target
	case KindStart:
		return p.searchMin
	default:
		return p.waypoint.Location
	}
}

// LocationTravelled точка, через которую прошел пройденный путь
func (p *OrderedTaskPoint) LocationTravelled() models.GeoPoint {
	switch p.Kind() {
	case KindStart:
		if p.exited {
			return p.exitedState.Location
		}
		return p.waypoint.Location
	case KindAAT:
		if p.hasAchieved {
			return p.achieved
		}
		return p.target
	default:
		return p.waypoint.Location
	}
}

// LocationScored точка зачетной дистанции
func (p *OrderedTaskPoint) LocationScored() models.GeoPoint {
	if p.Kind() == KindAAT {
		return p.LocationTravelled()
	}
	return p.waypoint.Location
}

// LocationMin ближайшая точка зоны на кратчайшем пути
func (p *OrderedTaskPoint) LocationMin() models.GeoPoint { return p.searchMin }

// LocationMax дальняя точка зоны на длиннейшем пути
func (p *OrderedTaskPoint) LocationMax() models.GeoPoint { return p.searchMax }

// boundary точки зоны для поиска. Точки без зачета по границе
// представлены своей опорной точкой.
func (p *OrderedTaskPoint) boundary() []models.GeoPoint {
	if !p.IsBoundaryScored() {
		return []models.GeoPoint{p.waypoint.Location}
	}
	return p.zone.Boundary()
}

func (p *OrderedTaskPoint) inExitWindow(now, last models.AircraftState) bool {
	return p.IsInSector(last) && !p.IsInSector(now) &&
		p.zone.TransitionConstraint(last.Location, now.Location)
}

func (p *OrderedTaskPoint) inEnterWindow(now, last models.AircraftState) bool {
	return !p.IsInSector(last) && p.IsInSector(now) &&
		p.zone.TransitionConstraint(last.Location, now.Location)
}

func (p *OrderedTaskPoint) finishHeightOK(s models.AircraftState) bool {
	fc := p.context().settings.Finish
	if fc.MinHeight > 0 {
		h := s.Altitude
		if fc.MinHeightRef == HeightAGL {
			h = s.AltitudeAGL
		}
		if h < fc.MinHeight {
			return false
		}
	}
	if fc.FAIFinish && p.faiFinishHeight > 0 && s.Altitude < p.faiFinishHeight {
		return false
	}
	return true
}

func (p *OrderedTaskPoint) checkEnter(now, last models.AircraftState) bool {
	if p.Kind() != KindFinish {
		return p.inEnterWindow(now, last)
	}
	nowH, lastH := p.finishHeightOK(now), p.finishHeightOK(last)
	if nowH && lastH {
		return p.inEnterWindow(now, last)
	}
	// вход в допустимый диапазон высот внутри зоны
	return nowH && !lastH && p.IsInSector(now) && p.IsInSector(last)
}

func (p *OrderedTaskPoint) checkExit(now, last models.AircraftState) bool {
	if p.Kind() != KindStart {
		return p.inExitWindow(now, last)
	}
	c := p.context().settings.Start
	if !c.Gate.HasBegun(last.Time) || c.Gate.HasEnded(now.Time) {
		return false
	}
	if !c.CheckSpeed(now.GroundSpeed, true) {
		return false
	}
	lastH := c.CheckHeight(last.Altitude, last.AltitudeAGL, true)
	nowH := c.CheckHeight(now.Altitude, now.AltitudeAGL, true)
	if lastH && nowH {
		return p.inExitWindow(now, last)
	}
	// старт через верхнюю границу
	return p.zone.CanStartThroughTop() && lastH && p.IsInSector(last) && !nowH
}

// transitionEnter проверяет и фиксирует вход в зону
func (p *OrderedTaskPoint) transitionEnter(now, last models.AircraftState) bool {
	if !p.checkEnter(now, last) {
		return false
	}
	if !p.entered || p.Kind() == KindStart {
		p.enteredState = now
	}
	p.entered = true
	return true
}

// transitionExit проверяет и фиксирует выход из зоны
func (p *OrderedTaskPoint) transitionExit(now, last models.AircraftState) bool {
	if !p.checkExit(now, last) {
		return false
	}
	switch p.Kind() {
	case KindStart:
		// засчитывается последний выход
		p.exitedState = last
		p.samples = p.samples[:0]
		p.samples = append(p.samples, last.Location)
	default:
		if !p.exited {
			p.exitedState = last
		}
	}
	p.exited = true
	return true
}

// updateSampleNear учитывает отсчет вблизи зоны. Возвращает true, если
// изменились отсчеты или цель.
func (p *OrderedTaskPoint) updateSampleNear(s models.AircraftState) bool {
	if p.Kind() != KindAAT || p.activeState == AfterActive || !p.IsInSector(s) {
		return false
	}
	changed := p.addSample(s.Location)
	if p.activeState == CurrentActive && p.checkTargetInside(s.Location) {
		changed = true
	}
	return changed
}

func (p *OrderedTaskPoint) addSample(loc models.GeoPoint) bool {
	for _, q := range p.samples {
		if q.Equals(loc) {
			return false
		}
	}
	p.samples = append(p.samples, loc)
	if len(p.samples) < 4 {
		return true
	}

	proj := geo.NewFlatProjection(p.waypoint.Location)
	flat := make([]geo.FlatPoint, len(p.samples))
	for i, q := range p.samples {
		flat[i] = proj.Project(q)
	}
	hull := geo.ConvexHull(flat)
	if len(hull) < 3 {
		return true
	}
	pruned := make([]models.GeoPoint, 0, len(hull))
	for _, i := range hull {
		pruned = append(pruned, p.samples[i])
	}
	p.samples = pruned
	return true
}

func (p *OrderedTaskPoint) doubleLegDistance(loc models.GeoPoint) float64 {
	d := 0.0
	if p.prev != nil {
		d += p.prev.LocationTravelled().Distance(loc)
	}
	if p.next != nil {
		d += loc.Distance(p.next.LocationRemaining())
	}
	return d
}

// checkTargetInside переносит незакрепленную цель в точку самолета,
// если это удлиняет двойное плечо
func (p *OrderedTaskPoint) checkTargetInside(loc models.GeoPoint) bool {
	if p.targetLocked {
		return false
	}
	if p.doubleLegDistance(loc) > p.doubleLegDistance(p.target) {
		p.target = loc
		return true
	}
	return false
}

// Target цель точки AAT
func (p *OrderedTaskPoint) Target() models.GeoPoint { return p.target }

// IsTargetLocked закреплена ли цель
func (p *OrderedTaskPoint) IsTargetLocked() bool { return p.targetLocked }

// SetTargetLocked закрепляет или освобождает цель
func (p *OrderedTaskPoint) SetTargetLocked(locked bool) { p.targetLocked = locked }

// SetTarget переносит цель. Цель должна лежать в зоне; закрепленная цель
// переносится только при override.
func (p *OrderedTaskPoint) SetTarget(loc models.GeoPoint, override bool) bool {
	if !p.HasTarget() || (p.targetLocked && !override) {
		return false
	}
	if !p.zone.Contains(loc) {
		return false
	}
	p.target = loc
	return true
}

// SetRange ставит цель на долю p пути от ближней к дальней точке зоны
func (p *OrderedTaskPoint) SetRange(r float64, override bool) bool {
	if !p.HasTarget() || (p.targetLocked && !override) {
		return false
	}
	r = math.Max(0, math.Min(1, r))
	loc := p.searchMin.Interpolate(p.searchMax, r)
	if !p.zone.Contains(loc) {
		// точки поиска лежат на границе зоны
		loc = p.waypoint.Location.Interpolate(loc, boundaryInset)
		if !p.zone.Contains(loc) {
			return false
		}
	}
	p.target = loc
	return true
}

// TargetRangeRadial дальность цели в долях радиального размера зоны и курс от центра
func (p *OrderedTaskPoint) TargetRangeRadial() (float64, float64) {
	ref := p.waypoint.Location
	d := ref.Distance(p.target)
	if d <= 0 {
		return 0, 0
	}
	radial := ref.Bearing(p.target)
	ext := oz.RadialExtent(p.zone, radial)
	if ext <= 0 {
		return 0, radial
	}
	return math.Min(1, d/ext), radial
}

// SetTargetRangeRadial ставит цель по дальности и курсу от центра зоны.
// Отрицательная дальность откладывается по обратному курсу.
func (p *OrderedTaskPoint) SetTargetRangeRadial(rng, radial float64, override bool) bool {
	if !p.HasTarget() {
		return false
	}
	if rng < 0 {
		rng = -rng
		radial = models.Reciprocal(radial)
	}
	rng = math.Min(1, rng)
	ext := oz.RadialExtent(p.zone, radial)
	loc := p.waypoint.Location.EndPoint(radial, rng*ext)
	return p.SetTarget(loc, override)
}

func (p *OrderedTaskPoint) setSearchMin(loc models.GeoPoint) { p.searchMin = loc }

func (p *OrderedTaskPoint) setSearchMax(loc models.GeoPoint) { p.searchMax = loc }

func (p *OrderedTaskPoint) setAchieved(loc models.GeoPoint) {
	p.achieved = loc
	p.hasAchieved = true
}

// updateBestStart выбирает на границе старта точку, кратчайшую по
// сумме расстояний от самолета и до следующей точки
func (p *OrderedTaskPoint) updateBestStart(s models.AircraftState, next *OrderedTaskPoint) {
	if next == nil {
		p.searchMin = p.waypoint.Location
		return
	}
	target := next.LocationRemaining()
	best := p.waypoint.Location
	bestD := s.Location.Distance(best) + best.Distance(target)
	for _, q := range p.zone.Boundary() {
		if d := s.Location.Distance(q) + q.Distance(target); d < bestD {
			best, bestD = q, d
		}
	}
	p.searchMin = best
}

// Reset сбрасывает состояние прохождения
func (p *OrderedTaskPoint) Reset() {
	p.entered = false
	p.exited = false
	p.enteredState = models.AircraftState{}
	p.exitedState = models.AircraftState{}
	p.samples = nil
	p.hasAchieved = false
	p.searchMin = p.waypoint.Location
	p.searchMax = p.waypoint.Location
	p.faiFinishHeight = 0
}

// Clone копия точки без состояния прохождения. При wp != nil точка
// переносится на другую путевую точку.
func (p *OrderedTaskPoint) Clone(wp *models.Waypoint) *OrderedTaskPoint {
	w := p.waypoint
	if wp != nil {
		w = *wp
	}
	cp := newPoint(p.pointType, w, p.zone.Clone(w.Location))
	cp.targetLocked = p.targetLocked
	if wp == nil && p.HasTarget() {
		cp.target = p.target
	}
	return cp
}

// Equals совпадают ли тип, путевая точка и зона
func (p *OrderedTaskPoint) Equals(o *OrderedTaskPoint) bool {
	if o == nil {
		return false
	}
	return p.pointType == o.pointType &&
		p.waypoint.Equals(o.waypoint) &&
		oz.Equal(p.zone, o.zone)
}
