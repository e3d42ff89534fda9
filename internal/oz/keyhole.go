package oz

import "github.com/flybeeper/taskengine/internal/models"

// Keyhole цилиндр малого радиуса, объединенный с симметричным сектором
type Keyhole struct {
	Sector
	cylinderRadius float64
}

func newKeyhole(ref models.GeoPoint, radius, inner, angle float64, shape Shape) *Keyhole {
	return &Keyhole{
		Sector:         *newSymmetric(ref, radius, angle, shape),
		cylinderRadius: inner,
	}
}

// NewKeyhole классическая замочная скважина: 500 м и сектор 90 градусов
func NewKeyhole(ref models.GeoPoint, radius, inner float64) *Keyhole {
	return newKeyhole(ref, radius, inner, 90, ShapeKeyhole)
}

// NewBGAFixedCourse зона BGA с фиксированным курсом
func NewBGAFixedCourse(ref models.GeoPoint) *Keyhole {
	return newKeyhole(ref, BGAFixedRadius, KeyholeInnerRadius, 90, ShapeBGAFixedCourse)
}

// NewBGAEnhancedOption расширенная зона BGA
func NewBGAEnhancedOption(ref models.GeoPoint) *Keyhole {
	return newKeyhole(ref, DefaultSectorRadius, KeyholeInnerRadius, 180, ShapeBGAEnhancedOption)
}

// CylinderRadius радиус внутреннего цилиндра
func (k *Keyhole) CylinderRadius() float64 { return k.cylinderRadius }

func (k *Keyhole) Contains(p models.GeoPoint) bool {
	d := k.ref.Distance(p)
	if d <= k.cylinderRadius {
		return true
	}
	return d <= k.radius && k.inAngle(p)
}

func (k *Keyhole) Boundary() []models.GeoPoint {
	pts := arc(k.ref, k.radius, k.startRadial, k.endRadial)
	// внутренняя дуга цилиндра вне сектора
	rest := arc(k.ref, k.cylinderRadius, k.endRadial, k.startRadial)
	return append(pts, rest...)
}

func (k *Keyhole) Spec() Spec {
	return Spec{Shape: k.shape, Radius: k.radius, InnerRadius: k.cylinderRadius}
}

func (k *Keyhole) Clone(ref models.GeoPoint) Zone {
	cp := *k
	cp.ref = ref
	return &cp
}
