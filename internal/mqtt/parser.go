package mqtt

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/flybeeper/taskengine/internal/models"
	"github.com/flybeeper/taskengine/pkg/utils"
)

// FixPayload отсчет вычислителя полета в JSON.
// Необязательные поля заданы указателями.
type FixPayload struct {
	Time        float64      `json:"time"` // с от полуночи
	Latitude    float64      `json:"lat"`
	Longitude   float64      `json:"lon"`
	Altitude    float64      `json:"alt"`             // м MSL
	AltitudeAGL *float64     `json:"agl,omitempty"`   // м над рельефом
	GroundSpeed float64      `json:"gs"`              // м/с
	Airspeed    *float64     `json:"tas,omitempty"`   // м/с
	Track       float64      `json:"track"`           // градусы
	Vario       float64      `json:"vario"`           // м/с
	Netto       *float64     `json:"netto,omitempty"` // м/с
	Flying      bool         `json:"flying"`
	WorkingBand float64      `json:"working_band"`
	Wind        *WindPayload `json:"wind,omitempty"`
}

// WindPayload ветер: откуда дует и скорость
type WindPayload struct {
	Bearing float64 `json:"bearing"`
	Speed   float64 `json:"speed"` // м/с
}

// Fix распарсенный отсчет одного устройства
type Fix struct {
	DeviceID string               `json:"device_id"`
	Topic    string               `json:"topic"`
	State    models.AircraftState `json:"state"`
}

// Parser парсер отсчетов из MQTT
type Parser struct {
	logger  *utils.Logger
	pattern []string
}

// NewParser создает парсер для шаблона топика вида prefix/+/fix.
// Идентификатор устройства берется из позиции первого '+'.
func NewParser(pattern string, logger *utils.Logger) *Parser {
	return &Parser{
		logger:  logger,
		pattern: strings.Split(pattern, "/"),
	}
}

// DeviceID извлекает идентификатор устройства из топика
func (p *Parser) DeviceID(topic string) (string, error) {
	parts := strings.Split(topic, "/")
	device := ""
	for i, seg := range p.pattern {
		if seg == "#" {
			if i >= len(parts) {
				return "", fmt.Errorf("invalid topic format: %s", topic)
			}
			return device, nil
		}
		if i >= len(parts) {
			return "", fmt.Errorf("invalid topic format: %s", topic)
		}
		switch seg {
		case "+":
			if parts[i] == "" {
				return "", fmt.Errorf("empty device id in topic: %s", topic)
			}
			if device == "" {
				device = parts[i]
			}
		default:
			if parts[i] != seg {
				return "", fmt.Errorf("invalid topic format: %s", topic)
			}
		}
	}
	if len(parts) != len(p.pattern) {
		return "", fmt.Errorf("invalid topic format: %s", topic)
	}
	return device, nil
}

// Parse разбирает сообщение с отсчетом
func (p *Parser) Parse(topic string, payload []byte) (*Fix, error) {
	device, err := p.DeviceID(topic)
	if err != nil {
		return nil, err
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("empty payload")
	}

	state, err := ParseFix(payload)
	if err != nil {
		return nil, fmt.Errorf("device %s: %w", device, err)
	}

	return &Fix{DeviceID: device, Topic: topic, State: state}, nil
}

// ParseFix преобразует JSON отсчет в состояние воздушного судна
func ParseFix(payload []byte) (models.AircraftState, error) {
	var fp FixPayload
	if err := json.Unmarshal(payload, &fp); err != nil {
		return models.AircraftState{}, fmt.Errorf("failed to decode fix: %w", err)
	}
	return fp.State()
}

// State переводит отсчет в состояние и проверяет его
func (fp FixPayload) State() (models.AircraftState, error) {
	s := models.AircraftState{
		Location:            models.NewGeoPoint(fp.Latitude, fp.Longitude),
		Altitude:            fp.Altitude,
		AltitudeAGL:         fp.Altitude,
		GroundSpeed:         fp.GroundSpeed,
		TrueAirspeed:        fp.GroundSpeed,
		Track:               models.NormalizeBearing(fp.Track),
		Vario:               fp.Vario,
		NettoVario:          fp.Vario,
		Time:                fp.Time,
		Flying:              fp.Flying,
		WorkingBandFraction: clamp01(fp.WorkingBand),
	}
	if fp.AltitudeAGL != nil {
		s.AltitudeAGL = *fp.AltitudeAGL
	}
	if fp.Airspeed != nil {
		s.TrueAirspeed = *fp.Airspeed
	}
	if fp.Netto != nil {
		s.NettoVario = *fp.Netto
	}
	if fp.Wind != nil && fp.Wind.Speed > 0 {
		s.Wind = models.SpeedVector{
			Bearing: models.NormalizeBearing(fp.Wind.Bearing),
			Norm:    fp.Wind.Speed,
		}
	}

	if s.TrueAirspeed < 0 {
		return models.AircraftState{}, fmt.Errorf("invalid airspeed: %f", s.TrueAirspeed)
	}
	if err := s.Validate(); err != nil {
		return models.AircraftState{}, fmt.Errorf("invalid fix: %w", err)
	}
	return s, nil
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
