package task

import (
	"math"

	"github.com/flybeeper/taskengine/internal/geo"
	"github.com/flybeeper/taskengine/internal/models"
	"github.com/flybeeper/taskengine/internal/search"
)

// appendUnique добавляет точки, которых еще нет в слое
func appendUnique(layer []models.GeoPoint, pts ...models.GeoPoint) []models.GeoPoint {
	for _, p := range pts {
		dup := false
		for _, q := range layer {
			if q.Equals(p) {
				dup = true
				break
			}
		}
		if !dup {
			layer = append(layer, p)
		}
	}
	return layer
}

// searchPath ищет путь через слои в плоской проекции задания и
// возвращает выбранные точки каждого слоя
func (t *OrderedTask) searchPath(layers [][]models.GeoPoint, longest bool) ([]models.GeoPoint, bool) {
	if len(layers) == 0 {
		return nil, false
	}
	flat := make([][]geo.FlatPoint, len(layers))
	for i, l := range layers {
		if len(l) == 0 {
			return nil, false
		}
		flat[i] = make([]geo.FlatPoint, len(l))
		for j, p := range l {
			flat[i][j] = t.projection.Project(p)
		}
	}

	a := search.Acquire()
	defer search.Release(a)
	var res search.Result
	if longest {
		res = a.Longest(flat)
	} else {
		res = a.Shortest(flat)
	}
	if !res.Valid() || len(res.Path) != len(layers) {
		return nil, false
	}
	out := make([]models.GeoPoint, len(layers))
	for i, j := range res.Path {
		out[i] = layers[i][j]
	}
	return out, true
}

// nominalDistance длина задания через опорные точки
func (t *OrderedTask) nominalDistance() float64 {
	pts := make([]models.GeoPoint, len(t.points))
	for i, p := range t.points {
		pts[i] = p.Location()
	}
	return distanceOf(pts)
}

// updateMinMax полный поиск кратчайшего и длиннейшего пути через зоны.
// Опорная точка входит в каждый слой, поэтому min <= nominal <= max.
func (t *OrderedTask) updateMinMax() {
	nominal := t.nominalDistance()
	t.stats.DistanceNominal = nominal
	if len(t.points) < 2 {
		t.stats.DistanceMin, t.stats.DistanceMax = nominal, nominal
		return
	}

	layers := make([][]models.GeoPoint, len(t.points))
	for i, p := range t.points {
		var l []models.GeoPoint
		if p.IsBoundaryScored() && p.activeState == BeforeActive && p.HasSampled() {
			l = appendUnique(l, p.samples...)
		} else {
			l = appendUnique(l, p.boundary()...)
			if p.activeState == CurrentActive {
				l = appendUnique(l, p.samples...)
			}
		}
		layers[i] = appendUnique(l, p.Location())
	}

	t.stats.DistanceMin = nominal
	if path, ok := t.searchPath(layers, false); ok {
		t.stats.DistanceMin = math.Min(distanceOf(path), nominal)
	}
	t.stats.DistanceMax = nominal
	if path, ok := t.searchPath(layers, true); ok {
		t.stats.DistanceMax = math.Max(distanceOf(path), nominal)
		for i, p := range t.points {
			p.setSearchMax(path[i])
		}
	}
}

// updateRemainingMin кратчайший путь от самолета до финиша. Повторяется
// только после смещения больше порога.
func (t *OrderedTask) updateRemainingMin(s models.AircraftState, full bool) {
	if len(t.points) == 0 {
		return
	}
	threshold := t.ctx.behaviour.MinSearchThreshold
	if !full && t.hasLastMin && t.lastMinLocation.Distance(s.Location) <= threshold {
		return
	}

	layers := make([][]models.GeoPoint, 0, len(t.points)-t.activeIndex+1)
	layers = append(layers, []models.GeoPoint{s.Location})
	for i := t.activeIndex; i < len(t.points); i++ {
		p := t.points[i]
		switch {
		case i == 0 && p.Kind() == KindStart:
			layers = append(layers, []models.GeoPoint{p.searchMin})
		case i == t.activeIndex && p.IsBoundaryScored():
			layers = append(layers, appendUnique(p.boundary(), p.samples...))
		default:
			layers = append(layers, p.boundary())
		}
	}
	path, ok := t.searchPath(layers, false)
	if !ok {
		return
	}
	for i := t.activeIndex; i < len(t.points); i++ {
		t.points[i].setSearchMin(path[i-t.activeIndex+1])
	}
	t.lastMinLocation = s.Location
	t.hasLastMin = true
}

// updateAchieved длиннейший путь через учтенные отсчеты пройденных зон
func (t *OrderedTask) updateAchieved() {
	k := t.activeIndex - 1
	if p := t.ActivePoint(); p != nil && p.IsBoundaryScored() && p.HasSampled() {
		k = t.activeIndex
	}
	if k < 0 {
		return
	}

	layers := make([][]models.GeoPoint, 0, k+2)
	for i := 0; i <= k; i++ {
		p := t.points[i]
		switch {
		case p.Kind() == KindStart:
			layers = append(layers, []models.GeoPoint{p.LocationTravelled()})
		case p.IsBoundaryScored() && p.HasSampled():
			layers = append(layers, p.Samples())
		default:
			layers = append(layers, []models.GeoPoint{p.Location()})
		}
	}
	if k+1 < len(t.points) {
		layers = append(layers, []models.GeoPoint{t.points[k+1].LocationRemaining()})
	}
	path, ok := t.searchPath(layers, true)
	if !ok {
		return
	}
	for i := 0; i <= k; i++ {
		if p := t.points[i]; p.IsBoundaryScored() && p.HasSampled() {
			p.setAchieved(path[i])
		}
	}
}

func (t *OrderedTask) remainingLocations() []models.GeoPoint {
	out := make([]models.GeoPoint, 0, len(t.points)-t.activeIndex)
	for i := t.activeIndex; i < len(t.points); i++ {
		out = append(out, t.points[i].LocationRemaining())
	}
	return out
}

func (t *OrderedTask) remainingHeights() []float64 {
	out := make([]float64, 0, len(t.points)-t.activeIndex)
	for i := t.activeIndex; i < len(t.points); i++ {
		out = append(out, t.points[i].Elevation())
	}
	return out
}

func (t *OrderedTask) travelledLocations(s models.AircraftState) []models.GeoPoint {
	out := make([]models.GeoPoint, 0, t.activeIndex+1)
	for i := 0; i < t.activeIndex; i++ {
		out = append(out, t.points[i].LocationTravelled())
	}
	return append(out, s.Location)
}

func (t *OrderedTask) plannedLocations() []models.GeoPoint {
	out := make([]models.GeoPoint, len(t.points))
	for i := range t.points {
		out[i] = t.plannedLocation(i)
	}
	return out
}

// updateDistances дистанции остатка, плана, пройденного и зачета
func (t *OrderedTask) updateDistances(s models.AircraftState) {
	total, leg := &t.stats.Total, &t.stats.CurrentLeg
	if len(t.points) == 0 {
		*total, *leg = ElementStat{TimeStarted: -1}, ElementStat{TimeStarted: -1}
		return
	}
	active := t.ActivePoint()
	target := active.LocationRemaining()

	if t.stats.TaskFinished {
		total.Remaining.Distance = 0
		leg.Remaining.Distance = 0
	} else {
		total.Remaining.Distance = distanceOf(withAircraft(s.Location, t.remainingLocations()))
		leg.Remaining.Distance = s.Location.Distance(target)
	}
	total.LocationRemaining = t.points[len(t.points)-1].LocationRemaining()
	leg.LocationRemaining = target
	leg.VectorRemaining = s.Location.DistanceBearing(target)
	total.VectorRemaining = leg.VectorRemaining
	if next := t.Point(t.activeIndex + 1); next != nil {
		leg.NextLegVector = target.DistanceBearing(next.LocationRemaining())
	} else {
		leg.NextLegVector = models.GeoVector{}
	}
	total.NextLegVector = leg.NextLegVector

	total.Travelled.Distance = distanceOf(t.travelledLocations(s))
	planned := t.plannedLocations()
	total.Planned.Distance = distanceOf(planned)
	if t.activeIndex > 0 {
		prev := t.points[t.activeIndex-1].LocationTravelled()
		leg.Travelled.Distance = prev.Distance(s.Location)
		leg.Planned.Distance = planned[t.activeIndex-1].Distance(planned[t.activeIndex])
	} else {
		leg.Travelled.Distance = 0
		leg.Planned.Distance = 0
	}

	t.updateScored(s)
}

// updateScored зачетная дистанция. После финиша не меняется.
func (t *OrderedTask) updateScored(s models.AircraftState) {
	if t.scoredFrozen {
		return
	}
	if !t.factory.Constraints().TaskScored || !t.stats.TaskStarted || len(t.points) < 2 {
		t.stats.DistanceScored = 0
		return
	}
	d := 0.0
	for i := 1; i < t.activeIndex; i++ {
		d += t.points[i-1].LocationScored().Distance(t.points[i].LocationScored())
	}
	if t.activeIndex > 0 {
		from := t.points[t.activeIndex-1].LocationScored()
		to := t.points[t.activeIndex].LocationScored()
		if t.stats.TaskFinished {
			d += from.Distance(to)
		} else {
			d += s.Location.ProjectedDistance(from, to)
		}
	}
	d -= t.points[0].Zone().ScoreAdjustment()
	if t.stats.TaskFinished {
		d -= t.points[len(t.points)-1].Zone().ScoreAdjustment()
		t.scoredFrozen = true
	}
	t.stats.DistanceScored = math.Max(0, d)
}

// route пути для решений планирования
func (t *OrderedTask) route(s models.AircraftState) route {
	r := route{plannedLeg: t.activeIndex - 1}
	if !t.stats.TaskFinished {
		r.remaining = t.remainingLocations()
		r.remainingH = t.remainingHeights()
	}
	r.planned = t.plannedLocations()
	for i := 1; i < len(t.points); i++ {
		r.plannedH = append(r.plannedH, t.points[i].Elevation())
	}
	r.travelled = t.travelledLocations(s)
	return r
}
