package oz

import "github.com/flybeeper/taskengine/internal/models"

// Sector секторная зона. Симметричные сектора ориентируются по соседним плечам.
type Sector struct {
	ref         models.GeoPoint
	radius      float64
	innerRadius float64
	startRadial float64
	endRadial   float64
	shape       Shape

	symmetric   bool
	sectorAngle float64
}

// NewSector сектор с фиксированными радиалами
func NewSector(ref models.GeoPoint, radius, startRadial, endRadial float64) *Sector {
	return &Sector{
		ref:         ref,
		radius:      radius,
		startRadial: models.NormalizeBearing(startRadial),
		endRadial:   models.NormalizeBearing(endRadial),
		shape:       ShapeSector,
	}
}

// NewAnnularSector кольцевой сектор
func NewAnnularSector(ref models.GeoPoint, radius, innerRadius, startRadial, endRadial float64) *Sector {
	s := NewSector(ref, radius, startRadial, endRadial)
	s.innerRadius = innerRadius
	s.shape = ShapeAnnularSector
	return s
}

func newSymmetric(ref models.GeoPoint, radius, angle float64, shape Shape) *Sector {
	return &Sector{
		ref:         ref,
		radius:      radius,
		shape:       shape,
		symmetric:   true,
		sectorAngle: angle,
		startRadial: models.NormalizeBearing(-angle / 2),
		endRadial:   models.NormalizeBearing(angle / 2),
	}
}

// NewFAISector сектор FAI 90 градусов
func NewFAISector(ref models.GeoPoint, radius float64) *Sector {
	return newSymmetric(ref, radius, 90, ShapeFAISector)
}

// NewSymmetricQuadrant симметричный квадрант
func NewSymmetricQuadrant(ref models.GeoPoint, radius float64) *Sector {
	return newSymmetric(ref, radius, 90, ShapeSymmetricQuadrant)
}

// NewBGAStart стартовый полукруг BGA
func NewBGAStart(ref models.GeoPoint) *Sector {
	return newSymmetric(ref, BGAStartRadius, 180, ShapeBGAStart)
}

func (s *Sector) Shape() Shape                { return s.shape }
func (s *Sector) Reference() models.GeoPoint { return s.ref }
func (s *Sector) Radius() float64            { return s.radius }
func (s *Sector) InnerRadius() float64       { return s.innerRadius }
func (s *Sector) StartRadial() float64       { return s.startRadial }
func (s *Sector) EndRadial() float64         { return s.endRadial }
func (s *Sector) MaxRadius() float64         { return s.radius }
func (s *Sector) ScoreAdjustment() float64   { return 0 }
func (s *Sector) CanStartThroughTop() bool   { return true }

// SetLegs ориентирует симметричный сектор относительно плеч
func (s *Sector) SetLegs(prev, next *models.GeoPoint) {
	if !s.symmetric {
		return
	}
	b := bisector(s.ref, prev, next)
	s.startRadial = models.NormalizeBearing(b - s.sectorAngle/2)
	s.endRadial = models.NormalizeBearing(b + s.sectorAngle/2)
}

// SetRadials задает радиалы несимметричного сектора
func (s *Sector) SetRadials(start, end float64) {
	if s.symmetric {
		return
	}
	s.startRadial = models.NormalizeBearing(start)
	s.endRadial = models.NormalizeBearing(end)
}

func (s *Sector) inAngle(p models.GeoPoint) bool {
	return models.BearingBetween(s.ref.Bearing(p), s.startRadial, s.endRadial)
}

func (s *Sector) Contains(p models.GeoPoint) bool {
	d := s.ref.Distance(p)
	if d > s.radius || d < s.innerRadius {
		return false
	}
	if d == 0 {
		return true
	}
	return s.inAngle(p)
}

func (s *Sector) TransitionConstraint(last, now models.GeoPoint) bool {
	return true
}

func (s *Sector) Boundary() []models.GeoPoint {
	outer := arc(s.ref, s.radius, s.startRadial, s.endRadial)
	if s.innerRadius > 0 {
		inner := arc(s.ref, s.innerRadius, s.startRadial, s.endRadial)
		for i := len(inner) - 1; i >= 0; i-- {
			outer = append(outer, inner[i])
		}
		return outer
	}
	return append([]models.GeoPoint{s.ref}, outer...)
}

func (s *Sector) Spec() Spec {
	spec := Spec{Shape: s.shape, Radius: s.radius, InnerRadius: s.innerRadius}
	if !s.symmetric {
		spec.StartRadial = s.startRadial
		spec.EndRadial = s.endRadial
	}
	return spec
}

func (s *Sector) Clone(ref models.GeoPoint) Zone {
	cp := *s
	cp.ref = ref
	return &cp
}
