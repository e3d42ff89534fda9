package task

import (
	"math"

	"github.com/flybeeper/taskengine/internal/models"
)

const (
	// MinFAILeg минимальная длина стороны треугольника FAI
	MinFAILeg = 2000.0
	// faiLargeThreshold периметр, после которого действует правило 25/45%
	faiLargeThreshold = 500000.0

	faiSmallMinRatio = 0.28
	faiLargeMinRatio = 0.25
	faiLargeMaxRatio = 0.45

	faiMinAngle = 31.5
	faiMaxAngle = 114.0
)

// FAITriangle проверка геометрии треугольника FAI по трем вершинам
type FAITriangle struct {
	Vertices [3]models.GeoPoint
}

// Legs длины сторон a->b, b->c, c->a
func (t FAITriangle) Legs() [3]float64 {
	v := t.Vertices
	return [3]float64{v[0].Distance(v[1]), v[1].Distance(v[2]), v[2].Distance(v[0])}
}

// Perimeter периметр треугольника
func (t FAITriangle) Perimeter() float64 {
	l := t.Legs()
	return l[0] + l[1] + l[2]
}

// Valid удовлетворяет ли треугольник правилам FAI
func (t FAITriangle) Valid() bool {
	legs := t.Legs()
	total := legs[0] + legs[1] + legs[2]
	if total <= 0 {
		return false
	}
	for _, l := range legs {
		if l < MinFAILeg {
			return false
		}
		r := l / total
		if total < faiLargeThreshold {
			if r < faiSmallMinRatio {
				return false
			}
		} else if r < faiLargeMinRatio || r > faiLargeMaxRatio {
			return false
		}
	}
	for _, a := range t.angles(legs) {
		if a < faiMinAngle || a > faiMaxAngle {
			return false
		}
	}
	return true
}

// angles внутренние углы по теореме косинусов
func (t FAITriangle) angles(l [3]float64) [3]float64 {
	angle := func(opposite, s1, s2 float64) float64 {
		c := (s1*s1 + s2*s2 - opposite*opposite) / (2 * s1 * s2)
		c = math.Max(-1, math.Min(1, c))
		return math.Acos(c) * 180 / math.Pi
	}
	return [3]float64{
		angle(l[1], l[0], l[2]),
		angle(l[2], l[0], l[1]),
		angle(l[0], l[1], l[2]),
	}
}

// validateFAITriangle проверяет замкнутое задание из четырех точек:
// старт, две точки поворота, финиш в точке старта.
func validateFAITriangle(points []*OrderedTaskPoint) bool {
	if len(points) != 4 {
		return false
	}
	tri := FAITriangle{Vertices: [3]models.GeoPoint{
		points[0].Location(), points[1].Location(), points[2].Location(),
	}}
	return tri.Valid()
}
