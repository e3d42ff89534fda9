// Package oz описывает зоны наблюдения поворотных точек.
package oz

import (
	"fmt"
	"math"

	"github.com/flybeeper/taskengine/internal/models"
)

// Shape форма зоны наблюдения
type Shape uint8

const (
	ShapeCylinder Shape = iota
	ShapeMATCylinder
	ShapeSector
	ShapeAnnularSector
	ShapeFAISector
	ShapeSymmetricQuadrant
	ShapeKeyhole
	ShapeBGAFixedCourse
	ShapeBGAEnhancedOption
	ShapeBGAStart
	ShapeLine
)

var shapeNames = map[Shape]string{
	ShapeCylinder:          "cylinder",
	ShapeMATCylinder:       "mat_cylinder",
	ShapeSector:            "sector",
	ShapeAnnularSector:     "annular_sector",
	ShapeFAISector:         "fai_sector",
	ShapeSymmetricQuadrant: "symmetric_quadrant",
	ShapeKeyhole:           "keyhole",
	ShapeBGAFixedCourse:    "bga_fixed_course",
	ShapeBGAEnhancedOption: "bga_enhanced_option",
	ShapeBGAStart:          "bga_start",
	ShapeLine:              "line",
}

func (s Shape) String() string {
	if name, ok := shapeNames[s]; ok {
		return name
	}
	return fmt.Sprintf("shape(%d)", uint8(s))
}

// ParseShape разбирает имя формы
func ParseShape(name string) (Shape, error) {
	for s, n := range shapeNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown zone shape: %q", name)
}

func (s Shape) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Shape) UnmarshalText(b []byte) error {
	v, err := ParseShape(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Значения по умолчанию
const (
	MATCylinderRadius   = 1609.344
	DefaultLineLength   = 1000.0
	DefaultSectorRadius = 10000.0
	KeyholeInnerRadius  = 500.0
	BGAStartRadius      = 5000.0
	BGAFixedRadius      = 20000.0
	boundarySteps       = 64
)

// Zone зона наблюдения вокруг опорной точки
type Zone interface {
	Shape() Shape
	Reference() models.GeoPoint
	Contains(p models.GeoPoint) bool
	// Boundary замкнутый многоугольник границы без повтора первой точки
	Boundary() []models.GeoPoint
	// TransitionConstraint ограничение на пересечение между двумя отсчетами
	TransitionConstraint(last, now models.GeoPoint) bool
	// ScoreAdjustment расстояние, исключаемое из зачетной дистанции
	ScoreAdjustment() float64
	// CanStartThroughTop разрешен ли старт через верхнюю границу
	CanStartThroughTop() bool
	MaxRadius() float64
	SetLegs(prev, next *models.GeoPoint)
	Spec() Spec
	Clone(ref models.GeoPoint) Zone
}

// Spec параметры зоны без опорной точки
type Spec struct {
	Shape       Shape   `json:"shape" msgpack:"shape"`
	Radius      float64 `json:"radius,omitempty" msgpack:"radius"`
	InnerRadius float64 `json:"inner_radius,omitempty" msgpack:"inner_radius"`
	StartRadial float64 `json:"start_radial,omitempty" msgpack:"start_radial"`
	EndRadial   float64 `json:"end_radial,omitempty" msgpack:"end_radial"`
	Length      float64 `json:"length,omitempty" msgpack:"length"`
}

// New создает зону по параметрам
func New(spec Spec, ref models.GeoPoint) (Zone, error) {
	switch spec.Shape {
	case ShapeCylinder:
		return NewCylinder(ref, orDefault(spec.Radius, DefaultSectorRadius)), nil
	case ShapeMATCylinder:
		return NewMATCylinder(ref), nil
	case ShapeSector:
		return NewSector(ref, orDefault(spec.Radius, DefaultSectorRadius), spec.StartRadial, spec.EndRadial), nil
	case ShapeAnnularSector:
		if spec.InnerRadius >= orDefault(spec.Radius, DefaultSectorRadius) {
			return nil, fmt.Errorf("inner radius %.0f must be less than radius", spec.InnerRadius)
		}
		return NewAnnularSector(ref, orDefault(spec.Radius, DefaultSectorRadius), spec.InnerRadius,
			spec.StartRadial, spec.EndRadial), nil
	case ShapeFAISector:
		return NewFAISector(ref, orDefault(spec.Radius, DefaultSectorRadius)), nil
	case ShapeSymmetricQuadrant:
		return NewSymmetricQuadrant(ref, orDefault(spec.Radius, DefaultSectorRadius)), nil
	case ShapeBGAStart:
		return NewBGAStart(ref), nil
	case ShapeKeyhole:
		return NewKeyhole(ref, orDefault(spec.Radius, DefaultSectorRadius), orDefault(spec.InnerRadius, KeyholeInnerRadius)), nil
	case ShapeBGAFixedCourse:
		return NewBGAFixedCourse(ref), nil
	case ShapeBGAEnhancedOption:
		return NewBGAEnhancedOption(ref), nil
	case ShapeLine:
		return NewLine(ref, orDefault(spec.Length, DefaultLineLength)), nil
	}
	return nil, fmt.Errorf("unknown zone shape: %d", spec.Shape)
}

// Equal сравнивает зоны по форме, опорной точке и параметрам
func Equal(a, b Zone) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Reference().Equals(b.Reference()) && a.Spec() == b.Spec()
}

// RadialExtent максимальное расстояние от опорной точки внутри зоны по курсу
func RadialExtent(z Zone, bearing float64) float64 {
	ref := z.Reference()
	limit := z.MaxRadius()
	if z.Contains(ref.EndPoint(bearing, limit)) {
		return limit
	}

	// Ищем самую дальнюю точку внутри, затем уточняем делением пополам
	step := limit / boundarySteps
	inner := -1.0
	for d := limit - step; d >= 0; d -= step {
		if z.Contains(ref.EndPoint(bearing, d)) {
			inner = d
			break
		}
	}
	if inner < 0 {
		return 0
	}
	outer := inner + step
	for i := 0; i < 30 && outer-inner > 0.1; i++ {
		mid := (inner + outer) / 2
		if z.Contains(ref.EndPoint(bearing, mid)) {
			inner = mid
		} else {
			outer = mid
		}
	}
	return inner
}

func orDefault(v, def float64) float64 {
	if v <= 0 {
		return def
	}
	return v
}

// arc точки дуги от start до end по часовой стрелке
func arc(ref models.GeoPoint, radius, start, end float64) []models.GeoPoint {
	span := models.NormalizeBearing(end - start)
	if span == 0 {
		span = 360
	}
	steps := int(math.Ceil(span / (360.0 / boundarySteps)))
	if steps < 1 {
		steps = 1
	}
	pts := make([]models.GeoPoint, 0, steps+1)
	for i := 0; i <= steps; i++ {
		pts = append(pts, ref.EndPoint(start+span*float64(i)/float64(steps), radius))
	}
	return pts
}

// bisector курс биссектрисы, направленной от соседних точек
func bisector(ref models.GeoPoint, prev, next *models.GeoPoint) float64 {
	switch {
	case prev != nil && next != nil:
		bp := ref.Bearing(*prev) * math.Pi / 180
		bn := ref.Bearing(*next) * math.Pi / 180
		x := -(math.Sin(bp) + math.Sin(bn))
		y := -(math.Cos(bp) + math.Cos(bn))
		if math.Hypot(x, y) < 1e-9 {
			return models.NormalizeBearing(ref.Bearing(*next) + 90)
		}
		return models.NormalizeBearing(math.Atan2(x, y) * 180 / math.Pi)
	case next != nil:
		return next.Bearing(ref)
	case prev != nil:
		return prev.Bearing(ref)
	}
	return 0
}
