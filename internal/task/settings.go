package task

import (
	"fmt"
	"strings"
)

// HeightReference отсчет высоты для ограничений
type HeightReference uint8

const (
	HeightMSL HeightReference = iota
	HeightAGL
)

func (h HeightReference) String() string {
	if h == HeightAGL {
		return "agl"
	}
	return "msl"
}

// ParseHeightReference разбирает отсчет высоты
func ParseHeightReference(s string) (HeightReference, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "msl":
		return HeightMSL, nil
	case "agl":
		return HeightAGL, nil
	}
	return HeightMSL, fmt.Errorf("unknown height reference: %q", s)
}

// AutoMCMode режим автоматического MC
type AutoMCMode uint8

const (
	AutoMCFinalGlide AutoMCMode = iota
	AutoMCClimbAverage
	AutoMCBoth
)

// ParseAutoMCMode разбирает режим автоматического MC
func ParseAutoMCMode(s string) (AutoMCMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "final_glide", "":
		return AutoMCFinalGlide, nil
	case "climb_average":
		return AutoMCClimbAverage, nil
	case "both":
		return AutoMCBoth, nil
	}
	return AutoMCFinalGlide, fmt.Errorf("unknown auto mc mode: %q", s)
}

// AbortMode выбор точки в задании abort
type AbortMode uint8

const (
	AbortModeSimple AbortMode = iota
	AbortModeTask
	AbortModeHome
)

// ParseAbortMode разбирает режим abort
func ParseAbortMode(s string) (AbortMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "simple", "":
		return AbortModeSimple, nil
	case "task":
		return AbortModeTask, nil
	case "home":
		return AbortModeHome, nil
	}
	return AbortModeSimple, fmt.Errorf("unknown abort mode: %q", s)
}

// SectorDefaults размеры зон, создаваемых фабриками
type SectorDefaults struct {
	StartRadius     float64 `json:"start_radius"`
	TurnpointRadius float64 `json:"turnpoint_radius"`
	FinishRadius    float64 `json:"finish_radius"`
	AATRadius       float64 `json:"aat_radius"`
}

// DefaultSectorDefaults размеры по умолчанию
func DefaultSectorDefaults() SectorDefaults {
	return SectorDefaults{
		StartRadius:     1000,
		TurnpointRadius: 500,
		FinishRadius:    1000,
		AATRadius:       10000,
	}
}

// TaskBehaviour настройки поведения заданий, не зависящие от конкретного задания
type TaskBehaviour struct {
	OptimiseTargetsRange   bool    `json:"optimise_targets_range"`
	OptimiseTargetsBearing bool    `json:"optimise_targets_bearing"`
	OptimiseTargetsMargin  float64 `json:"optimise_targets_margin"` // с

	AutoMC               bool       `json:"auto_mc"`
	AutoMCMode           AutoMCMode `json:"auto_mc_mode"`
	CalcCruiseEfficiency bool       `json:"calc_cruise_efficiency"`
	CalcEffectiveMC      bool       `json:"calc_effective_mc"`
	CalcGlideRequired    bool       `json:"calc_glide_required"`

	SafetyHeightArrival float64   `json:"safety_height_arrival"` // м
	SafetyMC            float64   `json:"safety_mc"`             // м/с
	RiskGamma           float64   `json:"risk_gamma"`
	AbortMode           AbortMode `json:"abort_mode"`
	AbortRange          float64   `json:"abort_range"` // м

	// MinSearchThreshold смещение, после которого повторяется поиск минимума
	MinSearchThreshold float64 `json:"min_search_threshold"` // м

	AdvanceMode    AdvanceMode         `json:"advance_mode"`
	SectorDefaults SectorDefaults      `json:"sector_defaults"`
	OrderedDefault OrderedTaskSettings `json:"ordered_defaults"`
}

// DefaultTaskBehaviour поведение по умолчанию
func DefaultTaskBehaviour() TaskBehaviour {
	return TaskBehaviour{
		OptimiseTargetsRange:   true,
		OptimiseTargetsBearing: true,
		OptimiseTargetsMargin:  300,
		AutoMC:                 false,
		AutoMCMode:             AutoMCBoth,
		CalcCruiseEfficiency:   true,
		CalcEffectiveMC:        true,
		CalcGlideRequired:      true,
		SafetyHeightArrival:    300,
		SafetyMC:               0.5,
		RiskGamma:              0,
		AbortMode:              AbortModeSimple,
		AbortRange:             100000,
		MinSearchThreshold:     1,
		AdvanceMode:            AdvanceAuto,
		SectorDefaults:         DefaultSectorDefaults(),
		OrderedDefault:         DefaultOrderedTaskSettings(),
	}
}

// IsAutoMCFinalGlideEnabled включен ли расчет MC на финальном планировании
func (b TaskBehaviour) IsAutoMCFinalGlideEnabled() bool {
	return b.AutoMC && b.AutoMCMode != AutoMCClimbAverage
}

// IsAutoMCCruiseEnabled включена ли подстановка среднего набора
func (b TaskBehaviour) IsAutoMCCruiseEnabled() bool {
	return b.AutoMC && b.AutoMCMode != AutoMCFinalGlide
}

// TimeSpan интервал времени суток в секундах; отрицательная граница не задана
type TimeSpan struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// OpenSpan интервал без границ
func OpenSpan() TimeSpan { return TimeSpan{Start: -1, End: -1} }

// HasBegun началось ли окно к моменту t
func (s TimeSpan) HasBegun(t float64) bool { return s.Start < 0 || t >= s.Start }

// HasEnded закончилось ли окно к моменту t
func (s TimeSpan) HasEnded(t float64) bool { return s.End >= 0 && t > s.End }

// StartConstraints ограничения старта
type StartConstraints struct {
	Gate            TimeSpan        `json:"gate"`
	MaxSpeed        float64         `json:"max_speed"` // м/с, 0 без ограничения
	MaxSpeedMargin  float64         `json:"max_speed_margin"`
	MaxHeight       float64         `json:"max_height"` // м, 0 без ограничения
	MaxHeightMargin float64         `json:"max_height_margin"`
	MaxHeightRef    HeightReference `json:"max_height_ref"`
	RequireArm      bool            `json:"require_arm"`
	ScoreExit       bool            `json:"score_exit"`
}

// CheckSpeed скорость в допуске
func (c StartConstraints) CheckSpeed(groundSpeed float64, withMargin bool) bool {
	if c.MaxSpeed <= 0 {
		return true
	}
	limit := c.MaxSpeed
	if withMargin {
		limit += c.MaxSpeedMargin
	}
	return groundSpeed <= limit
}

// CheckHeight высота в допуске
func (c StartConstraints) CheckHeight(altitude, altitudeAGL float64, withMargin bool) bool {
	if c.MaxHeight <= 0 {
		return true
	}
	limit := c.MaxHeight
	if withMargin {
		limit += c.MaxHeightMargin
	}
	h := altitude
	if c.MaxHeightRef == HeightAGL {
		h = altitudeAGL
	}
	return h <= limit
}

// FinishConstraints ограничения финиша
type FinishConstraints struct {
	MinHeight    float64         `json:"min_height"` // м, 0 без ограничения
	MinHeightRef HeightReference `json:"min_height_ref"`
	FAIFinish    bool            `json:"fai_finish"`
}

// OrderedTaskSettings правила конкретного упорядоченного задания
type OrderedTaskSettings struct {
	AATMinTime float64           `json:"aat_min_time"` // с
	Start      StartConstraints  `json:"start"`
	Finish     FinishConstraints `json:"finish"`
}

// DefaultOrderedTaskSettings правила по умолчанию
func DefaultOrderedTaskSettings() OrderedTaskSettings {
	return OrderedTaskSettings{
		AATMinTime: 3 * 3600,
		Start: StartConstraints{
			Gate:      OpenSpan(),
			ScoreExit: true,
		},
	}
}
