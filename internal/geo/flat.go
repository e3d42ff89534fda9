package geo

import (
	"math"
	"sort"

	"github.com/flybeeper/taskengine/internal/models"
)

// FlatPoint точка локальной плоской проекции, метры
type FlatPoint struct {
	X, Y float64
}

// Sub разность векторов
func (p FlatPoint) Sub(o FlatPoint) FlatPoint { return FlatPoint{p.X - o.X, p.Y - o.Y} }

// Add сумма векторов
func (p FlatPoint) Add(o FlatPoint) FlatPoint { return FlatPoint{p.X + o.X, p.Y + o.Y} }

// Scale умножение на скаляр
func (p FlatPoint) Scale(k float64) FlatPoint { return FlatPoint{p.X * k, p.Y * k} }

// Dot скалярное произведение
func (p FlatPoint) Dot(o FlatPoint) float64 { return p.X*o.X + p.Y*o.Y }

// Cross z-компонента векторного произведения
func (p FlatPoint) Cross(o FlatPoint) float64 { return p.X*o.Y - p.Y*o.X }

// Length длина вектора
func (p FlatPoint) Length() float64 { return math.Hypot(p.X, p.Y) }

// Distance расстояние между точками
func (p FlatPoint) Distance(o FlatPoint) float64 { return p.Sub(o).Length() }

// FlatProjection равнопромежуточная проекция вокруг центра
type FlatProjection struct {
	center models.GeoPoint
	cosLat float64
}

// NewFlatProjection создает проекцию с центром center
func NewFlatProjection(center models.GeoPoint) FlatProjection {
	c := math.Cos(center.Latitude * math.Pi / 180)
	if c < 1e-6 {
		c = 1e-6
	}
	return FlatProjection{center: center, cosLat: c}
}

// Center возвращает центр проекции
func (fp FlatProjection) Center() models.GeoPoint {
	return fp.center
}

// Project переводит географическую точку в плоскую
func (fp FlatProjection) Project(p models.GeoPoint) FlatPoint {
	return FlatPoint{
		X: (p.Longitude - fp.center.Longitude) * models.MetersPerDegreeLat * fp.cosLat,
		Y: (p.Latitude - fp.center.Latitude) * models.MetersPerDegreeLat,
	}
}

// Unproject переводит плоскую точку обратно в географическую
func (fp FlatProjection) Unproject(p FlatPoint) models.GeoPoint {
	return models.GeoPoint{
		Latitude:  fp.center.Latitude + p.Y/models.MetersPerDegreeLat,
		Longitude: fp.center.Longitude + p.X/(models.MetersPerDegreeLat*fp.cosLat),
	}
}

// ConvexHull оболочка точек по алгоритму монотонной цепи (против часовой стрелки).
// Возвращает индексы исходных точек.
func ConvexHull(pts []FlatPoint) []int {
	n := len(pts)
	if n < 3 {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		pa, pb := pts[order[a]], pts[order[b]]
		if pa.X != pb.X {
			return pa.X < pb.X
		}
		return pa.Y < pb.Y
	})

	hull := make([]int, 0, 2*n)
	// нижняя цепь
	for _, i := range order {
		for len(hull) >= 2 && turn(pts[hull[len(hull)-2]], pts[hull[len(hull)-1]], pts[i]) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, i)
	}
	// верхняя цепь
	lower := len(hull) + 1
	for k := n - 2; k >= 0; k-- {
		i := order[k]
		for len(hull) >= lower && turn(pts[hull[len(hull)-2]], pts[hull[len(hull)-1]], pts[i]) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, i)
	}
	return hull[:len(hull)-1]
}

func turn(o, a, b FlatPoint) float64 {
	return a.Sub(o).Cross(b.Sub(o))
}
