package glide

import (
	"math"

	"github.com/flybeeper/taskengine/internal/models"
)

// GlideState постановка задачи для одного участка
type GlideState struct {
	Vector    models.GeoVector
	MinHeight float64
	Altitude  float64
	Wind      models.SpeedVector

	// EffectiveWindAngle угол ветра (откуда дует) относительно курса, градусы
	EffectiveWindAngle float64
	HeadWind           float64
}

// NewGlideState создает постановку. Ветер задается курсом, откуда дует.
func NewGlideState(vector models.GeoVector, minHeight, altitude float64, wind models.SpeedVector) GlideState {
	s := GlideState{
		Vector:    vector,
		MinHeight: minHeight,
		Altitude:  altitude,
		Wind:      wind,
	}
	if !wind.IsZero() {
		s.EffectiveWindAngle = models.BearingDiff(vector.Bearing, wind.Bearing)
		s.HeadWind = wind.Norm * math.Cos(s.EffectiveWindAngle*math.Pi/180)
	}
	return s
}

// HeightDifference запас высоты над минимальной высотой
func (s GlideState) HeightDifference() float64 {
	return s.Altitude - s.MinHeight
}

// DriftedDistance расстояние до цели после набора в течение tClimb со сносом ветром
func (s GlideState) DriftedDistance(tClimb float64) float64 {
	if s.Vector.Distance <= 0 {
		return 0
	}
	if s.Wind.IsZero() || tClimb <= 0 {
		return s.Vector.Distance
	}
	tb := s.Vector.Bearing * math.Pi / 180
	wb := s.Wind.Bearing * math.Pi / 180
	drift := s.Wind.Norm * tClimb
	// снос по ветру уводит в сторону, противоположную wb
	dx := s.Vector.Distance*math.Sin(tb) + drift*math.Sin(wb)
	dy := s.Vector.Distance*math.Cos(tb) + drift*math.Cos(wb)
	return math.Hypot(dx, dy)
}
