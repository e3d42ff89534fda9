package models

import "fmt"

// AircraftState состояние воздушного судна на один тик вычислений
type AircraftState struct {
	Location     GeoPoint    `json:"location"`
	Altitude     float64     `json:"altitude"`      // м над уровнем моря
	AltitudeAGL  float64     `json:"altitude_agl"`  // м над рельефом
	GroundSpeed  float64     `json:"ground_speed"`  // м/с
	TrueAirspeed float64     `json:"true_airspeed"` // м/с
	Track        float64     `json:"track"`         // градусы
	Vario        float64     `json:"vario"`         // м/с
	NettoVario   float64     `json:"netto_vario"`   // м/с
	Wind         SpeedVector `json:"wind"`
	// Time секунды от начала суток, монотонно
	Time                float64 `json:"time"`
	Flying              bool    `json:"flying"`
	WorkingBandFraction float64 `json:"working_band_fraction"`
}

// Validate проверяет корректность состояния
func (s AircraftState) Validate() error {
	if err := s.Location.Validate(); err != nil {
		return fmt.Errorf("location: %w", err)
	}
	if s.Time < 0 {
		return fmt.Errorf("invalid time: %f", s.Time)
	}
	if s.GroundSpeed < 0 {
		return fmt.Errorf("invalid ground speed: %f", s.GroundSpeed)
	}
	return nil
}

// PredictedState экстраполирует состояние на dt секунд по треку
func (s AircraftState) PredictedState(dt float64) AircraftState {
	next := s
	next.Location = s.Location.EndPoint(s.Track, s.GroundSpeed*dt)
	next.Altitude = s.Altitude + s.Vario*dt
	next.Time = s.Time + dt
	return next
}
