// Package glide содержит модель поляры и решатель задач Маккриди.
package glide

import (
	"fmt"
	"math"
)

// Coefficients коэффициенты квадратичной поляры: снижение S(V) = A*V^2 + B*V + C, м/с вниз
type Coefficients struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
	C float64 `json:"c"`
}

// Validate проверяет, что поляра имеет минимум
func (c Coefficients) Validate() error {
	if c.A <= 0 {
		return fmt.Errorf("polar coefficient a must be positive: %f", c.A)
	}
	if c.B >= 0 {
		return fmt.Errorf("polar coefficient b must be negative: %f", c.B)
	}
	if c.C <= 0 {
		return fmt.Errorf("polar coefficient c must be positive: %f", c.C)
	}
	return nil
}

// DefaultCoefficients поляра 0.5 + ((V-25)*0.056)^2
var DefaultCoefficients = Coefficients{A: 0.003136, B: -0.1568, C: 2.46}

const (
	DefaultVmax = 75.0
	minVmax     = 10.0
)

// Polar поляра планера с учетом MC, загрязнения, балласта и эффективности перехода
type Polar struct {
	ideal Coefficients
	coeff Coefficients

	mc               float64
	invMC            float64
	bugs             float64
	ballast          float64
	cruiseEfficiency float64

	referenceMass   float64
	dryMass         float64
	ballastCapacity float64

	vmin    float64
	smin    float64
	vbestLD float64
	sbestLD float64
	bestLD  float64
	vmax    float64
}

// NewPolar создает поляру. Массы в кг; при нулевой эталонной массе загрузка не учитывается.
func NewPolar(c Coefficients, referenceMass, dryMass, ballastCapacity float64) (Polar, error) {
	if err := c.Validate(); err != nil {
		return Polar{}, err
	}
	if referenceMass < 0 || dryMass < 0 || ballastCapacity < 0 {
		return Polar{}, fmt.Errorf("polar masses must be non-negative")
	}
	p := Polar{
		ideal:            c,
		bugs:             1,
		cruiseEfficiency: 1,
		referenceMass:    referenceMass,
		dryMass:          dryMass,
		ballastCapacity:  ballastCapacity,
		vmax:             DefaultVmax,
	}
	p.update()
	return p, nil
}

// DefaultPolar поляра по умолчанию без балласта
func DefaultPolar() Polar {
	p, _ := NewPolar(DefaultCoefficients, 0, 0, 0)
	return p
}

// IsValid проверяет, что поляра инициализирована
func (p *Polar) IsValid() bool {
	return p.coeff.A > 0
}

func (p *Polar) totalMass() float64 {
	return p.dryMass + p.ballast*p.ballastCapacity
}

func (p *Polar) update() {
	loading := 1.0
	if p.referenceMass > 0 && p.totalMass() > 0 {
		loading = math.Sqrt(p.totalMass() / p.referenceMass)
	}
	invBugs := 1 / p.bugs

	p.coeff = Coefficients{
		A: invBugs * p.ideal.A / loading,
		B: invBugs * p.ideal.B,
		C: invBugs * p.ideal.C * loading,
	}

	p.vmin = -p.coeff.B / (2 * p.coeff.A)
	p.smin = p.SinkRate(p.vmin)
	p.vbestLD = math.Sqrt(p.coeff.C / p.coeff.A)
	p.sbestLD = p.SinkRate(p.vbestLD)
	p.bestLD = p.vbestLD / p.sbestLD
	if p.vmax < p.vbestLD {
		p.vmax = p.vbestLD
	}
}

// SinkRate скорость снижения при воздушной скорости V
func (p *Polar) SinkRate(v float64) float64 {
	return (p.coeff.A*v+p.coeff.B)*v + p.coeff.C
}

// SetMC задает настройку Маккриди
func (p *Polar) SetMC(mc float64) {
	p.mc = math.Max(0, mc)
	if p.mc > 0 {
		p.invMC = 1 / p.mc
	} else {
		p.invMC = 0
	}
}

// SetBugs задает коэффициент чистоты крыла (1 = чистое)
func (p *Polar) SetBugs(bugs float64) {
	p.bugs = math.Max(0.5, math.Min(1, bugs))
	p.update()
}

// SetBallast задает долю заполнения балласта [0, 1]
func (p *Polar) SetBallast(fraction float64) {
	p.ballast = math.Max(0, math.Min(1, fraction))
	p.update()
}

// SetCruiseEfficiency задает эффективность перехода
func (p *Polar) SetCruiseEfficiency(ce float64) {
	if ce > 0 {
		p.cruiseEfficiency = ce
	}
}

// SetVmax задает максимальную скорость перехода
func (p *Polar) SetVmax(v float64) {
	p.vmax = math.Max(minVmax, v)
	p.update()
}

func (p *Polar) MC() float64               { return p.mc }
func (p *Polar) InvMC() float64            { return p.invMC }
func (p *Polar) Bugs() float64             { return p.bugs }
func (p *Polar) Ballast() float64          { return p.ballast }
func (p *Polar) CruiseEfficiency() float64 { return p.cruiseEfficiency }
func (p *Polar) Vmin() float64             { return p.vmin }
func (p *Polar) Smin() float64             { return p.smin }
func (p *Polar) Vmax() float64             { return p.vmax }
func (p *Polar) VbestLD() float64          { return p.vbestLD }
func (p *Polar) SbestLD() float64          { return p.sbestLD }
func (p *Polar) BestLD() float64           { return p.bestLD }
func (p *Polar) Coefficients() Coefficients { return p.coeff }

// LD аэродинамическое качество при скорости V
func (p *Polar) LD(v float64) float64 {
	s := p.SinkRate(v)
	if s <= 0 {
		return 0
	}
	return v / s
}

// SpeedToFly оптимальная воздушная скорость. При block не учитывается местный netto.
func (p *Polar) SpeedToFly(netto, headWind float64, block bool) float64 {
	m := p.mc
	if !block {
		m -= netto
	}
	f := func(v float64) float64 {
		vg := v - headWind
		if vg <= 0 {
			return math.MaxFloat64
		}
		return (p.SinkRate(v) + m) / vg
	}
	zf := NewZeroFinder(p.vmin, p.vmax, 0.01)
	return zf.FindMin(f, p.vbestLD)
}

// MCRisk настройка MC с учетом риска. heightFraction доля рабочего диапазона высот,
// riskGamma в [0, 1]: 0 без учета риска, 1 линейное уменьшение.
func (p *Polar) MCRisk(heightFraction, riskGamma float64) float64 {
	h := math.Max(0, math.Min(1, heightFraction))
	if riskGamma < 0.1 {
		return p.mc
	}
	if riskGamma > 0.9 {
		return p.mc * h
	}
	k := 1/(riskGamma*riskGamma) - 1
	return p.mc * h * (1 + k) / (1 + k*h)
}

// WithMC копия поляры с другим MC
func (p Polar) WithMC(mc float64) Polar {
	p.SetMC(mc)
	return p
}

// WithCruiseEfficiency копия поляры с другой эффективностью перехода
func (p Polar) WithCruiseEfficiency(ce float64) Polar {
	p.SetCruiseEfficiency(ce)
	return p
}
