package models

import (
	"fmt"
	"math"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
	"github.com/mmcloughlin/geohash"
)

// EarthRadius средний радиус Земли в метрах
const EarthRadius = 6371000.0

// GeoPoint представляет географическую точку (градусы)
type GeoPoint struct {
	Latitude  float64 `json:"lat" msgpack:"lat"`
	Longitude float64 `json:"lon" msgpack:"lon"`
}

// NewGeoPoint создает точку из широты и долготы
func NewGeoPoint(lat, lon float64) GeoPoint {
	return GeoPoint{Latitude: lat, Longitude: lon}
}

// Validate проверяет корректность координат
func (p GeoPoint) Validate() error {
	if math.IsNaN(p.Latitude) || p.Latitude < -90 || p.Latitude > 90 {
		return fmt.Errorf("invalid latitude: %f", p.Latitude)
	}
	if math.IsNaN(p.Longitude) || p.Longitude < -180 || p.Longitude > 180 {
		return fmt.Errorf("invalid longitude: %f", p.Longitude)
	}
	return nil
}

// IsValid возвращает true для корректных координат
func (p GeoPoint) IsValid() bool {
	return p.Validate() == nil
}

func (p GeoPoint) latLng() s2.LatLng {
	return s2.LatLngFromDegrees(p.Latitude, p.Longitude)
}

// Distance возвращает расстояние по большому кругу в метрах
func (p GeoPoint) Distance(other GeoPoint) float64 {
	return float64(p.latLng().Distance(other.latLng())) * EarthRadius
}

// Bearing возвращает начальный курс на другую точку в градусах [0, 360)
func (p GeoPoint) Bearing(other GeoPoint) float64 {
	a, b := p.latLng(), other.latLng()
	lat1, lat2 := a.Lat.Radians(), b.Lat.Radians()
	dlon := b.Lng.Radians() - a.Lng.Radians()

	y := math.Sin(dlon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dlon)
	if x == 0 && y == 0 {
		return 0
	}
	return NormalizeBearing(s1.Angle(math.Atan2(y, x)).Degrees())
}

// DistanceBearing возвращает вектор на другую точку
func (p GeoPoint) DistanceBearing(other GeoPoint) GeoVector {
	return GeoVector{Distance: p.Distance(other), Bearing: p.Bearing(other)}
}

// EndPoint возвращает точку на заданном курсе и расстоянии
func (p GeoPoint) EndPoint(bearing, distance float64) GeoPoint {
	if distance == 0 {
		return p
	}
	lat1 := p.Latitude * math.Pi / 180
	lon1 := p.Longitude * math.Pi / 180
	brg := bearing * math.Pi / 180
	d := distance / EarthRadius

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(d) + math.Cos(lat1)*math.Sin(d)*math.Cos(brg))
	lon2 := lon1 + math.Atan2(math.Sin(brg)*math.Sin(d)*math.Cos(lat1),
		math.Cos(d)-math.Sin(lat1)*math.Sin(lat2))

	return GeoPoint{
		Latitude:  lat2 * 180 / math.Pi,
		Longitude: normalizeLongitude(lon2 * 180 / math.Pi),
	}
}

// Interpolate линейная интерполяция координат, t в [0, 1]
func (p GeoPoint) Interpolate(other GeoPoint, t float64) GeoPoint {
	return GeoPoint{
		Latitude:  p.Latitude + (other.Latitude-p.Latitude)*t,
		Longitude: p.Longitude + (other.Longitude-p.Longitude)*t,
	}
}

// Middle возвращает середину отрезка
func (p GeoPoint) Middle(other GeoPoint) GeoPoint {
	return p.Interpolate(other, 0.5)
}

// ProjectedDistance возвращает расстояние вдоль from->to до проекции точки p
func (p GeoPoint) ProjectedDistance(from, to GeoPoint) float64 {
	leg := from.DistanceBearing(to)
	if leg.Distance <= 0 {
		return 0
	}
	v := from.DistanceBearing(p)
	along := v.Distance * math.Cos((v.Bearing-leg.Bearing)*math.Pi/180)
	return math.Max(0, math.Min(leg.Distance, along))
}

// Equals проверяет совпадение координат
func (p GeoPoint) Equals(other GeoPoint) bool {
	return p.Latitude == other.Latitude && p.Longitude == other.Longitude
}

// Geohash возвращает geohash для точки с заданной точностью
func (p GeoPoint) Geohash(precision int) string {
	return geohash.EncodeWithPrecision(p.Latitude, p.Longitude, uint(precision))
}

// IsInBounds проверяет, находится ли точка в границах
func (p GeoPoint) IsInBounds(sw, ne GeoPoint) bool {
	return p.Latitude >= sw.Latitude && p.Latitude <= ne.Latitude &&
		p.Longitude >= sw.Longitude && p.Longitude <= ne.Longitude
}

func (p GeoPoint) String() string {
	return fmt.Sprintf("(%.6f, %.6f)", p.Latitude, p.Longitude)
}

// GeoVector расстояние (м) и курс (градусы)
type GeoVector struct {
	Distance float64 `json:"distance"`
	Bearing  float64 `json:"bearing"`
}

// EndPoint возвращает конец вектора от заданной точки
func (v GeoVector) EndPoint(origin GeoPoint) GeoPoint {
	return origin.EndPoint(v.Bearing, v.Distance)
}

// IsZero проверяет нулевую длину вектора
func (v GeoVector) IsZero() bool {
	return v.Distance <= 0
}

// Bounds представляет географические границы
type Bounds struct {
	Southwest GeoPoint `json:"sw"`
	Northeast GeoPoint `json:"ne"`
}

// NewBounds границы, состоящие из одной точки
func NewBounds(p GeoPoint) Bounds {
	return Bounds{Southwest: p, Northeast: p}
}

// Validate проверяет корректность границ
func (b Bounds) Validate() error {
	if err := b.Southwest.Validate(); err != nil {
		return fmt.Errorf("southwest: %w", err)
	}
	if err := b.Northeast.Validate(); err != nil {
		return fmt.Errorf("northeast: %w", err)
	}
	if b.Southwest.Latitude > b.Northeast.Latitude {
		return fmt.Errorf("southwest latitude must be less than northeast latitude")
	}
	if b.Southwest.Longitude > b.Northeast.Longitude {
		return fmt.Errorf("southwest longitude must be less than northeast longitude")
	}
	return nil
}

// Extend расширяет границы до точки
func (b Bounds) Extend(p GeoPoint) Bounds {
	b.Southwest.Latitude = math.Min(b.Southwest.Latitude, p.Latitude)
	b.Southwest.Longitude = math.Min(b.Southwest.Longitude, p.Longitude)
	b.Northeast.Latitude = math.Max(b.Northeast.Latitude, p.Latitude)
	b.Northeast.Longitude = math.Max(b.Northeast.Longitude, p.Longitude)
	return b
}

// Contains проверяет, содержится ли точка в границах
func (b Bounds) Contains(point GeoPoint) bool {
	return point.IsInBounds(b.Southwest, b.Northeast)
}

// Center возвращает центральную точку границ
func (b Bounds) Center() GeoPoint {
	return b.Southwest.Middle(b.Northeast)
}

// Expand расширяет границы на заданное расстояние в метрах
func (b Bounds) Expand(meters float64) Bounds {
	latDeg := meters / MetersPerDegreeLat
	cosLat := math.Cos(b.Center().Latitude * math.Pi / 180)
	lonDeg := latDeg
	if cosLat > 1e-6 {
		lonDeg = latDeg / cosLat
	}
	return Bounds{
		Southwest: GeoPoint{Latitude: b.Southwest.Latitude - latDeg, Longitude: b.Southwest.Longitude - lonDeg},
		Northeast: GeoPoint{Latitude: b.Northeast.Latitude + latDeg, Longitude: b.Northeast.Longitude + lonDeg},
	}
}

// MetersPerDegreeLat длина градуса широты
const MetersPerDegreeLat = 111320.0

func normalizeLongitude(lon float64) float64 {
	for lon > 180 {
		lon -= 360
	}
	for lon < -180 {
		lon += 360
	}
	return lon
}
