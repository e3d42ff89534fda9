// Package search ищет кратчайший и длиннейший путь через слои точек границ зон.
package search

import (
	"math"

	"github.com/flybeeper/taskengine/internal/geo"
	"github.com/flybeeper/taskengine/pkg/pool"
)

// Arena переиспользуемые буферы поиска
type Arena struct {
	cost    []float64
	pred    []int
	offsets []int
	path    []int
}

var arenas = pool.New(
	func() *Arena { return &Arena{} },
	func(a *Arena) *Arena {
		a.cost = a.cost[:0]
		a.pred = a.pred[:0]
		a.offsets = a.offsets[:0]
		a.path = a.path[:0]
		return a
	},
)

// Acquire берет арену из общего пула
func Acquire() *Arena {
	return arenas.Get()
}

// Release возвращает арену в пул
func Release(a *Arena) {
	if a != nil {
		arenas.Put(a)
	}
}

// Result выбранный индекс точки в каждом слое и длина пути в плоской проекции
type Result struct {
	Path  []int
	Value float64
}

// Valid проверяет, что путь найден
func (r Result) Valid() bool {
	return len(r.Path) > 0
}

// Shortest кратчайший путь, проходящий по одной точке каждого слоя по порядку
func (a *Arena) Shortest(layers [][]geo.FlatPoint) Result {
	return a.solve(layers, false)
}

// Longest длиннейший путь, проходящий по одной точке каждого слоя по порядку
func (a *Arena) Longest(layers [][]geo.FlatPoint) Result {
	return a.solve(layers, true)
}

func (a *Arena) prepare(layers [][]geo.FlatPoint) (int, bool) {
	a.offsets = a.offsets[:0]
	total := 0
	for _, l := range layers {
		if len(l) == 0 {
			return 0, false
		}
		a.offsets = append(a.offsets, total)
		total += len(l)
	}

	if cap(a.cost) < total {
		a.cost = make([]float64, total)
		a.pred = make([]int, total)
	}
	a.cost = a.cost[:total]
	a.pred = a.pred[:total]
	return total, true
}

func (a *Arena) solve(layers [][]geo.FlatPoint, maximise bool) Result {
	if len(layers) == 0 {
		return Result{}
	}
	if _, ok := a.prepare(layers); !ok {
		return Result{}
	}

	worst := math.Inf(1)
	if maximise {
		worst = math.Inf(-1)
	}
	better := func(c, best float64) bool {
		if maximise {
			return c > best
		}
		return c < best
	}

	for j := range layers[0] {
		a.cost[j] = 0
		a.pred[j] = -1
	}

	// Релаксация ребер между соседними слоями
	for li := 1; li < len(layers); li++ {
		prev, cur := layers[li-1], layers[li]
		po, co := a.offsets[li-1], a.offsets[li]
		for j, p := range cur {
			best := worst
			bestK := -1
			for k, q := range prev {
				c := a.cost[po+k] + q.Distance(p)
				if better(c, best) {
					best, bestK = c, k
				}
			}
			a.cost[co+j] = best
			a.pred[co+j] = bestK
		}
	}

	last := len(layers) - 1
	lo := a.offsets[last]
	best := worst
	bestJ := -1
	for j := range layers[last] {
		if better(a.cost[lo+j], best) {
			best, bestJ = a.cost[lo+j], j
		}
	}
	if bestJ < 0 {
		return Result{}
	}

	// Восстанавливаем путь с конца
	if cap(a.path) < len(layers) {
		a.path = make([]int, len(layers))
	}
	a.path = a.path[:len(layers)]
	j := bestJ
	for li := last; li >= 0; li-- {
		a.path[li] = j
		j = a.pred[a.offsets[li]+j]
	}

	path := make([]int, len(layers))
	copy(path, a.path)
	return Result{Path: path, Value: best}
}
