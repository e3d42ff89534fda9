package geo

import (
	"testing"

	"github.com/flybeeper/taskengine/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlatProjection_RoundTrip(t *testing.T) {
	fp := NewFlatProjection(models.NewGeoPoint(45.5, 0.5))

	tests := []struct {
		name  string
		point models.GeoPoint
	}{
		{name: "center", point: models.NewGeoPoint(45.5, 0.5)},
		{name: "north east", point: models.NewGeoPoint(46, 1)},
		{name: "south west", point: models.NewGeoPoint(45, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			back := fp.Unproject(fp.Project(tt.point))
			assert.InDelta(t, tt.point.Latitude, back.Latitude, 1e-9)
			assert.InDelta(t, tt.point.Longitude, back.Longitude, 1e-9)
		})
	}
}

func TestFlatProjection_DistanceCloseToGreatCircle(t *testing.T) {
	a := models.NewGeoPoint(45, 0)
	b := models.NewGeoPoint(45.3, 0.2)
	fp := NewFlatProjection(a.Middle(b))

	flat := fp.Project(a).Distance(fp.Project(b))
	assert.InEpsilon(t, a.Distance(b), flat, 0.005)
}

func TestConvexHull(t *testing.T) {
	pts := []FlatPoint{
		{0, 0}, {10, 0}, {10, 10}, {0, 10},
		{5, 5}, {2, 3}, {7, 8},
	}
	hull := ConvexHull(pts)

	require.Len(t, hull, 4)
	assert.ElementsMatch(t, []int{0, 1, 2, 3}, hull)
}

func TestConvexHull_UnsortedCounterClockwise(t *testing.T) {
	pts := []FlatPoint{
		{3, 4}, {10, 10}, {-2, 5}, {4, 1}, {0, 0},
		{10, 0}, {6, 9}, {0, 10}, {5, -3}, {8, 2},
	}
	hull := ConvexHull(pts)

	assert.ElementsMatch(t, []int{1, 2, 4, 5, 7, 8}, hull)
	area := 0.0
	for i := range hull {
		a, b := pts[hull[i]], pts[hull[(i+1)%len(hull)]]
		area += a.Cross(b)
	}
	assert.Greater(t, area, 0.0)
}

func TestConvexHull_Degenerate(t *testing.T) {
	assert.Len(t, ConvexHull(nil), 0)
	assert.Equal(t, []int{0, 1}, ConvexHull([]FlatPoint{{0, 0}, {1, 1}}))

	collinear := ConvexHull([]FlatPoint{{0, 0}, {1, 1}, {2, 2}})
	assert.ElementsMatch(t, []int{0, 2}, collinear)
}

func TestWaypointIndex(t *testing.T) {
	idx := NewWaypointIndex()
	base := models.NewGeoPoint(46.0, 14.5)

	for i := 0; i < 100; i++ {
		idx.Insert(models.Waypoint{
			ID:       uint32(i + 1),
			Name:     "wp",
			Location: base.EndPoint(float64(i*37%360), float64(1000*(i+1))),
			Type:     models.WaypointAirfield,
		})
	}
	require.Equal(t, 100, idx.Size())

	t.Run("radius query sorted by distance", func(t *testing.T) {
		found := idx.QueryRadius(base, 10500)
		require.Len(t, found, 10)
		for i := 1; i < len(found); i++ {
			assert.LessOrEqual(t, base.Distance(found[i-1].Location), base.Distance(found[i].Location))
		}
	})

	t.Run("nearest with filter", func(t *testing.T) {
		found := idx.Nearest(base, 3, func(wp models.Waypoint) bool { return wp.ID%2 == 0 })
		require.Len(t, found, 3)
		assert.Equal(t, []uint32{2, 4, 6}, []uint32{found[0].ID, found[1].ID, found[2].ID})
	})

	t.Run("replace and remove", func(t *testing.T) {
		idx.Insert(models.Waypoint{ID: 1, Location: base.EndPoint(0, 200000)})
		assert.Equal(t, 100, idx.Size())
		assert.Len(t, idx.QueryRadius(base, 1500), 0)

		idx.Remove(1)
		_, ok := idx.Get(1)
		assert.False(t, ok)
		assert.Equal(t, 99, idx.Size())
	})

	t.Run("home", func(t *testing.T) {
		_, ok := idx.Home()
		assert.False(t, ok)
		idx.Insert(models.Waypoint{ID: 500, Location: base, Home: true})
		home, ok := idx.Home()
		require.True(t, ok)
		assert.Equal(t, uint32(500), home.ID)
	})
}
