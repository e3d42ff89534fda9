package glide

import (
	"fmt"
	"math"

	"github.com/flybeeper/taskengine/internal/models"
)

// Validity результат решения; большее значение хуже
type Validity uint8

const (
	ResultOK Validity = iota
	ResultPartial
	ResultWindExcessive
	ResultMacCreadyInsufficient
	ResultNoSolution
)

func (v Validity) String() string {
	switch v {
	case ResultOK:
		return "ok"
	case ResultPartial:
		return "partial"
	case ResultWindExcessive:
		return "wind_excessive"
	case ResultMacCreadyInsufficient:
		return "maccready_insufficient"
	default:
		return "no_solution"
	}
}

// MarshalText для JSON представления
func (v Validity) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

func (v *Validity) UnmarshalText(b []byte) error {
	name := string(b)
	for r := ResultOK; r <= ResultNoSolution; r++ {
		if r.String() == name {
			*v = r
			return nil
		}
	}
	return fmt.Errorf("unknown glide result validity: %q", name)
}

// GlideResult решение задачи Маккриди
type GlideResult struct {
	Validity           Validity         `json:"validity"`
	Vector             models.GeoVector `json:"vector"`
	VOpt               float64          `json:"v_opt"`
	HeightClimb        float64          `json:"height_climb"`
	HeightGlide        float64          `json:"height_glide"`
	TimeElapsed        float64          `json:"time_elapsed"`
	TimeVirtual        float64          `json:"time_virtual"`
	AltitudeDifference float64          `json:"altitude_difference"`
	MinHeight          float64          `json:"min_height"`
	HeadWind           float64          `json:"head_wind"`
	EffectiveWindSpeed float64          `json:"effective_wind_speed"`
	EffectiveWindAngle float64          `json:"effective_wind_angle"`
}

// NoSolution пустое решение
func NoSolution() GlideResult {
	return GlideResult{Validity: ResultNoSolution}
}

func newResult(task GlideState, v float64) GlideResult {
	return GlideResult{
		Validity:           ResultNoSolution,
		Vector:             task.Vector,
		VOpt:               v,
		MinHeight:          task.MinHeight,
		AltitudeDifference: task.HeightDifference(),
		HeadWind:           task.HeadWind,
		EffectiveWindSpeed: task.Wind.Norm,
		EffectiveWindAngle: task.EffectiveWindAngle,
	}
}

// IsOK решение найдено полностью
func (r GlideResult) IsOK() bool { return r.Validity == ResultOK }

// IsDefined решение существует
func (r GlideResult) IsDefined() bool { return r.Validity != ResultNoSolution }

// IsAchievable цель достижима
func (r GlideResult) IsAchievable() bool {
	return r.IsOK() && r.AltitudeDifference >= 0
}

// IsFinalGlide цель достижима без набора высоты
func (r GlideResult) IsFinalGlide() bool {
	return r.IsAchievable() && r.HeightClimb <= 0
}

// AltitudeRequired высота, необходимая для прибытия на минимальную высоту
func (r GlideResult) AltitudeRequired() float64 {
	return r.MinHeight + r.HeightGlide
}

// GlideAngleGround требуемый градиент планирования относительно земли
func (r GlideResult) GlideAngleGround() float64 {
	if r.Vector.Distance <= 0 {
		return 0
	}
	return r.HeightGlide / r.Vector.Distance
}

// TimeTotal время с учетом виртуального времени набора
func (r GlideResult) TimeTotal() float64 {
	return r.TimeElapsed + r.TimeVirtual
}

// AverageSpeed средняя путевая скорость
func (r GlideResult) AverageSpeed() float64 {
	if r.TimeElapsed <= 0 {
		return 0
	}
	return r.Vector.Distance / r.TimeElapsed
}

// InvSpeed обратная виртуальная скорость при заданном 1/MC
func (r *GlideResult) InvSpeed(invMC float64) float64 {
	if invMC > 0 && r.HeightGlide > 0 {
		r.TimeVirtual = r.HeightGlide * invMC
	} else {
		r.TimeVirtual = 0
	}
	if r.Vector.Distance > 0 {
		return (r.TimeElapsed + r.TimeVirtual) / r.Vector.Distance
	}
	return 0
}

// Add присоединяет решение следующей части пути
func (r *GlideResult) Add(s2 GlideResult) {
	if s2.Validity > r.Validity {
		r.Validity = s2.Validity
	}
	r.Vector.Distance += s2.Vector.Distance
	if !r.IsDefined() {
		return
	}
	r.TimeElapsed += s2.TimeElapsed
	r.TimeVirtual += s2.TimeVirtual
	r.HeightGlide += s2.HeightGlide
	r.HeightClimb += s2.HeightClimb
	if r.AltitudeDifference > 0 && s2.AltitudeDifference > 0 {
		r.AltitudeDifference = math.Max(r.AltitudeDifference, s2.AltitudeDifference)
	} else {
		r.AltitudeDifference += math.Min(s2.AltitudeDifference, 0)
	}
}

func (r GlideResult) sane() bool {
	for _, v := range []float64{r.TimeElapsed, r.HeightGlide, r.HeightClimb, r.AltitudeDifference, r.Vector.Distance} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
