package oz

import "github.com/flybeeper/taskengine/internal/models"

// Line стартовая или финишная линия, перпендикулярная плечу
type Line struct {
	Sector
}

// NewLine создает линию заданной длины
func NewLine(ref models.GeoPoint, length float64) *Line {
	return &Line{Sector: *newSymmetric(ref, length/2, 180, ShapeLine)}
}

// Length длина линии
func (l *Line) Length() float64 { return 2 * l.radius }

// SetLength меняет длину линии
func (l *Line) SetLength(length float64) {
	if length > 0 {
		l.radius = length / 2
	}
}

func (l *Line) CanStartThroughTop() bool { return false }

// TransitionConstraint оба отсчета должны быть не дальше половины длины
func (l *Line) TransitionConstraint(last, now models.GeoPoint) bool {
	return l.ref.Distance(last) <= l.radius && l.ref.Distance(now) <= l.radius
}

func (l *Line) Boundary() []models.GeoPoint {
	return []models.GeoPoint{
		l.ref.EndPoint(l.startRadial, l.radius),
		l.ref,
		l.ref.EndPoint(l.endRadial, l.radius),
	}
}

func (l *Line) Spec() Spec {
	return Spec{Shape: ShapeLine, Length: l.Length()}
}

func (l *Line) Clone(ref models.GeoPoint) Zone {
	cp := *l
	cp.ref = ref
	return &cp
}
