package models

import "fmt"

// WaypointType тип путевой точки
type WaypointType uint8

const (
	WaypointNormal WaypointType = iota
	WaypointAirfield
	WaypointOutlanding
)

// String возвращает строковое представление типа
func (t WaypointType) String() string {
	switch t {
	case WaypointAirfield:
		return "airfield"
	case WaypointOutlanding:
		return "outlanding"
	default:
		return "normal"
	}
}

// Waypoint неизменяемая запись путевой точки
type Waypoint struct {
	ID        uint32       `json:"id" msgpack:"id"`
	Name      string       `json:"name" msgpack:"name"`
	Location  GeoPoint     `json:"location" msgpack:"location"`
	Elevation float64      `json:"elevation" msgpack:"elevation"`
	Type      WaypointType `json:"type" msgpack:"type"`
	Home      bool         `json:"home,omitempty" msgpack:"home"`
}

// Validate проверяет путевую точку
func (w Waypoint) Validate() error {
	if err := w.Location.Validate(); err != nil {
		return fmt.Errorf("waypoint %q: %w", w.Name, err)
	}
	return nil
}

// IsLandable возвращает true для аэродромов и площадок
func (w Waypoint) IsLandable() bool {
	return w.Type == WaypointAirfield || w.Type == WaypointOutlanding
}

// IsAirport возвращает true для аэродромов
func (w Waypoint) IsAirport() bool {
	return w.Type == WaypointAirfield
}

// Equals сравнивает путевые точки по идентичности
func (w Waypoint) Equals(other Waypoint) bool {
	return w.ID == other.ID && w.Name == other.Name && w.Location.Equals(other.Location)
}

// Интерфейс для quadtree индекса
func (w Waypoint) GetID() uint32        { return w.ID }
func (w Waypoint) GetLatitude() float64  { return w.Location.Latitude }
func (w Waypoint) GetLongitude() float64 { return w.Location.Longitude }
