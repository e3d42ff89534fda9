package oz

import "github.com/flybeeper/taskengine/internal/models"

// Cylinder круговая зона
type Cylinder struct {
	ref    models.GeoPoint
	radius float64
	shape  Shape
}

// NewCylinder создает цилиндр
func NewCylinder(ref models.GeoPoint, radius float64) *Cylinder {
	return &Cylinder{ref: ref, radius: radius, shape: ShapeCylinder}
}

// NewMATCylinder создает цилиндр MAT радиусом в одну милю
func NewMATCylinder(ref models.GeoPoint) *Cylinder {
	return &Cylinder{ref: ref, radius: MATCylinderRadius, shape: ShapeMATCylinder}
}

func (c *Cylinder) Shape() Shape                { return c.shape }
func (c *Cylinder) Reference() models.GeoPoint { return c.ref }
func (c *Cylinder) Radius() float64            { return c.radius }
func (c *Cylinder) MaxRadius() float64         { return c.radius }
func (c *Cylinder) ScoreAdjustment() float64   { return c.radius }
func (c *Cylinder) CanStartThroughTop() bool   { return true }

func (c *Cylinder) SetLegs(prev, next *models.GeoPoint) {}

// SetRadius меняет радиус
func (c *Cylinder) SetRadius(r float64) {
	if r > 0 {
		c.radius = r
	}
}

func (c *Cylinder) Contains(p models.GeoPoint) bool {
	return c.ref.Distance(p) <= c.radius
}

func (c *Cylinder) TransitionConstraint(last, now models.GeoPoint) bool {
	return true
}

func (c *Cylinder) Boundary() []models.GeoPoint {
	pts := arc(c.ref, c.radius, 0, 360)
	return pts[:len(pts)-1]
}

func (c *Cylinder) Spec() Spec {
	return Spec{Shape: c.shape, Radius: c.radius}
}

func (c *Cylinder) Clone(ref models.GeoPoint) Zone {
	cp := *c
	cp.ref = ref
	return &cp
}
