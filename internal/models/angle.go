package models

import "math"

// NormalizeBearing приводит курс к диапазону [0, 360)
func NormalizeBearing(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

// BearingDiff возвращает разность курсов b-a в диапазоне (-180, 180]
func BearingDiff(a, b float64) float64 {
	d := NormalizeBearing(b - a)
	if d > 180 {
		d -= 360
	}
	return d
}

// BearingBetween проверяет, лежит ли курс в секторе от start до end по часовой стрелке
func BearingBetween(bearing, start, end float64) bool {
	span := NormalizeBearing(end - start)
	if span == 0 {
		// полный круг
		return true
	}
	return NormalizeBearing(bearing-start) <= span
}

// Reciprocal возвращает обратный курс
func Reciprocal(deg float64) float64 {
	return NormalizeBearing(deg + 180)
}

// SpeedVector вектор скорости (ветер): курс откуда дует и скорость, м/с
type SpeedVector struct {
	Bearing float64 `json:"bearing"`
	Norm    float64 `json:"norm"`
}

// IsZero проверяет штиль
func (v SpeedVector) IsZero() bool {
	return v.Norm <= 0
}
