package geo

import (
	"math"
	"sort"
	"sync"

	"github.com/flybeeper/taskengine/internal/models"
)

const (
	// Maximum number of waypoints in a node before splitting
	nodeCapacity = 16

	// Maximum depth of the tree
	maxDepth = 14

	// Minimum node size in degrees
	minNodeSize = 0.0005
)

// WaypointIndex spatial index over waypoints for reachability queries
type WaypointIndex struct {
	mu     sync.RWMutex
	root   *node
	byID   map[uint32]models.Waypoint
	bounds models.Bounds
}

type node struct {
	bounds    models.Bounds
	waypoints []models.Waypoint
	depth     int

	// Child nodes (nil if leaf)
	nw, ne, sw, se *node
}

var worldBounds = models.Bounds{
	Southwest: models.GeoPoint{Latitude: -90, Longitude: -180},
	Northeast: models.GeoPoint{Latitude: 90, Longitude: 180},
}

// NewWaypointIndex creates an empty index with world bounds
func NewWaypointIndex() *WaypointIndex {
	return &WaypointIndex{
		root: newNode(worldBounds, 0),
		byID: make(map[uint32]models.Waypoint),
	}
}

func newNode(b models.Bounds, depth int) *node {
	return &node{bounds: b, depth: depth, waypoints: make([]models.Waypoint, 0, nodeCapacity)}
}

// Insert adds or replaces a waypoint
func (idx *WaypointIndex) Insert(wp models.Waypoint) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if old, ok := idx.byID[wp.ID]; ok {
		idx.root.remove(old)
	}
	if len(idx.byID) == 0 {
		idx.bounds = models.NewBounds(wp.Location)
	} else {
		idx.bounds = idx.bounds.Extend(wp.Location)
	}
	idx.byID[wp.ID] = wp
	idx.root.insert(wp)
}

// Remove removes a waypoint by id
func (idx *WaypointIndex) Remove(id uint32) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	wp, ok := idx.byID[id]
	if !ok {
		return
	}
	delete(idx.byID, id)
	idx.root.remove(wp)
}

// Get returns a waypoint by id
func (idx *WaypointIndex) Get(id uint32) (models.Waypoint, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	wp, ok := idx.byID[id]
	return wp, ok
}

// Home returns the first waypoint flagged as home
func (idx *WaypointIndex) Home() (models.Waypoint, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	for _, wp := range idx.byID {
		if wp.Home {
			return wp, true
		}
	}
	return models.Waypoint{}, false
}

// Size returns the number of waypoints
func (idx *WaypointIndex) Size() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.byID)
}

// QueryRadius returns waypoints within radius meters from center, nearest first
func (idx *WaypointIndex) QueryRadius(center models.GeoPoint, radius float64) []models.Waypoint {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	box := models.NewBounds(center).Expand(radius)
	candidates := idx.root.query(box, nil)

	result := candidates[:0]
	for _, wp := range candidates {
		if center.Distance(wp.Location) <= radius {
			result = append(result, wp)
		}
	}
	sortByDistance(center, result)
	return result
}

// QueryBounds returns all waypoints within bounds
func (idx *WaypointIndex) QueryBounds(b models.Bounds) []models.Waypoint {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.root.query(b, nil)
}

// Nearest returns up to k nearest waypoints that satisfy accept
func (idx *WaypointIndex) Nearest(center models.GeoPoint, k int, accept func(models.Waypoint) bool) []models.Waypoint {
	idx.mu.RLock()
	total := len(idx.byID)
	extent := idx.bounds
	idx.mu.RUnlock()

	if k <= 0 || total == 0 {
		return nil
	}

	// Расширяем радиус поиска, пока не наберем k точек
	maxRadius := math.Max(center.Distance(extent.Southwest), center.Distance(extent.Northeast)) +
		extent.Southwest.Distance(extent.Northeast)
	for radius := 10000.0; ; radius *= 2 {
		found := idx.QueryRadius(center, radius)
		if accept != nil {
			filtered := found[:0]
			for _, wp := range found {
				if accept(wp) {
					filtered = append(filtered, wp)
				}
			}
			found = filtered
		}
		if len(found) >= k {
			return found[:k]
		}
		if radius > maxRadius {
			return found
		}
	}
}

func sortByDistance(center models.GeoPoint, wps []models.Waypoint) {
	sort.SliceStable(wps, func(i, j int) bool {
		return center.Distance(wps[i].Location) < center.Distance(wps[j].Location)
	})
}

func (n *node) insert(wp models.Waypoint) {
	if !n.bounds.Contains(wp.Location) {
		return
	}
	if n.nw != nil {
		n.child(wp.Location).insert(wp)
		return
	}
	n.waypoints = append(n.waypoints, wp)
	if len(n.waypoints) > nodeCapacity && n.shouldSplit() {
		n.split()
	}
}

func (n *node) child(p models.GeoPoint) *node {
	c := n.bounds.Center()
	if p.Latitude >= c.Latitude {
		if p.Longitude >= c.Longitude {
			return n.ne
		}
		return n.nw
	}
	if p.Longitude >= c.Longitude {
		return n.se
	}
	return n.sw
}

func (n *node) shouldSplit() bool {
	return n.depth < maxDepth &&
		n.bounds.Northeast.Longitude-n.bounds.Southwest.Longitude > minNodeSize &&
		n.bounds.Northeast.Latitude-n.bounds.Southwest.Latitude > minNodeSize
}

func (n *node) split() {
	c := n.bounds.Center()
	sw, ne := n.bounds.Southwest, n.bounds.Northeast

	n.nw = newNode(models.Bounds{
		Southwest: models.GeoPoint{Latitude: c.Latitude, Longitude: sw.Longitude},
		Northeast: models.GeoPoint{Latitude: ne.Latitude, Longitude: c.Longitude},
	}, n.depth+1)
	n.ne = newNode(models.Bounds{Southwest: c, Northeast: ne}, n.depth+1)
	n.sw = newNode(models.Bounds{Southwest: sw, Northeast: c}, n.depth+1)
	n.se = newNode(models.Bounds{
		Southwest: models.GeoPoint{Latitude: sw.Latitude, Longitude: c.Longitude},
		Northeast: models.GeoPoint{Latitude: c.Latitude, Longitude: ne.Longitude},
	}, n.depth+1)

	old := n.waypoints
	n.waypoints = nil
	for _, wp := range old {
		n.child(wp.Location).insert(wp)
	}
}

func (n *node) remove(wp models.Waypoint) bool {
	if n.nw != nil {
		return n.child(wp.Location).remove(wp)
	}
	for i, o := range n.waypoints {
		if o.ID == wp.ID {
			n.waypoints = append(n.waypoints[:i], n.waypoints[i+1:]...)
			return true
		}
	}
	return false
}

func intersects(a, b models.Bounds) bool {
	return !(a.Northeast.Latitude < b.Southwest.Latitude || a.Southwest.Latitude > b.Northeast.Latitude ||
		a.Northeast.Longitude < b.Southwest.Longitude || a.Southwest.Longitude > b.Northeast.Longitude)
}

func (n *node) query(b models.Bounds, result []models.Waypoint) []models.Waypoint {
	if !intersects(n.bounds, b) {
		return result
	}
	if n.nw != nil {
		result = n.nw.query(b, result)
		result = n.ne.query(b, result)
		result = n.sw.query(b, result)
		return n.se.query(b, result)
	}
	for _, wp := range n.waypoints {
		if b.Contains(wp.Location) {
			result = append(result, wp)
		}
	}
	return result
}
