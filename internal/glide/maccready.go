package glide

import "math"

// virtualHeight смещение высоты для решений без ограничения по высоте
const virtualHeight = 1.0e6

// MacCready решатель задачи перехода для заданной поляры
type MacCready struct {
	polar Polar
}

// NewMacCready создает решатель
func NewMacCready(p Polar) MacCready {
	return MacCready{polar: p}
}

// Polar возвращает поляру решателя
func (m MacCready) Polar() Polar { return m.polar }

// Solve полное решение: финальное планирование либо переход с наборами
func (m MacCready) Solve(task GlideState) GlideResult {
	if !m.polar.IsValid() {
		return NoSolution()
	}
	if task.Vector.Distance <= 0 {
		return m.SolveVertical(task)
	}
	if m.polar.MC() <= 0 {
		return m.OptimiseGlide(task)
	}

	fg := m.OptimiseGlide(task)
	if fg.IsOK() {
		return fg
	}
	if fg.Validity == ResultWindExcessive {
		return fg
	}

	sub := task
	sub.Vector.Distance -= fg.Vector.Distance
	sub.MinHeight += fg.HeightGlide
	cc := m.SolveCruise(sub)
	if !cc.IsOK() {
		return cc
	}
	fg.Validity = ResultOK
	cc.Add(fg)
	cc.Vector.Bearing = task.Vector.Bearing
	cc.MinHeight = task.MinHeight
	return m.checked(cc)
}

// SolveStraight чистое планирование без ограничения по высоте;
// разность высот может быть отрицательной.
func (m MacCready) SolveStraight(task GlideState) GlideResult {
	if !m.polar.IsValid() {
		return NoSolution()
	}
	virt := task
	virt.Altitude += virtualHeight
	var res GlideResult
	if task.Vector.Distance <= 0 {
		res = newResult(task, m.polar.VbestLD())
		res.Validity = ResultOK
	} else {
		res = m.OptimiseGlide(virt)
	}
	if !res.IsDefined() {
		return res
	}
	res.AltitudeDifference = task.Altitude - res.HeightGlide - task.MinHeight
	res.MinHeight = task.MinHeight
	return m.checked(res)
}

// SolveVertical набор высоты над точкой
func (m MacCready) SolveVertical(task GlideState) GlideResult {
	res := newResult(task, m.polar.VbestLD())
	dh := task.MinHeight - task.Altitude
	if dh <= 0 {
		res.Validity = ResultOK
		return res
	}

	mc := m.polar.MC()
	v := m.polar.VbestLD() * m.polar.CruiseEfficiency()
	w := task.Wind.Norm
	denom1 := v - w
	if denom1 <= 0 {
		res.Validity = ResultWindExcessive
		return res
	}
	denom2 := mc*denom1 - w
	if mc <= 0 || denom2 <= 0 {
		res.Validity = ResultMacCreadyInsufficient
		return res
	}

	tcl := dh * denom1 / denom2
	tcr := w * tcl / denom1
	res.TimeElapsed = tcl + tcr
	res.HeightClimb = dh
	res.HeightGlide = 0
	res.AltitudeDifference = 0
	res.Validity = ResultOK
	return m.checked(res)
}

// groundSpeed путевая скорость вдоль курса при воздушной скорости v
func groundSpeed(task GlideState, v float64) (float64, bool) {
	w := task.Wind.Norm
	if w <= 0 {
		return v, v > 0
	}
	cosTheta := math.Cos(task.EffectiveWindAngle * math.Pi / 180)
	// Vn^2 + 2 W cos(theta) Vn + W^2 - V^2 = 0
	b := w * cosTheta
	disc := b*b - (w*w - v*v)
	if disc < 0 {
		return 0, false
	}
	vn := -b + math.Sqrt(disc)
	return vn, vn > 0
}

// SolveGlide планирование на скорости vset с поляры
func (m MacCready) SolveGlide(task GlideState, vset float64) GlideResult {
	return m.SolveGlideSink(task, vset, m.polar.SinkRate(vset))
}

// SolveGlideSink планирование на скорости vset с заданным снижением s
func (m MacCready) SolveGlideSink(task GlideState, vset, s float64) GlideResult {
	res := newResult(task, vset)
	dh := task.MinHeight - task.Altitude

	vn, ok := groundSpeed(task, vset*m.polar.CruiseEfficiency())
	if !ok {
		res.Validity = ResultWindExcessive
		res.Vector.Distance = 0
		return res
	}

	distance := task.Vector.Distance
	if s > 0 && vn*dh+s*distance > 0 {
		if dh >= 0 {
			res.Vector.Distance = 0
			res.Validity = ResultMacCreadyInsufficient
			return res
		}
		distance = -vn * dh / s
		res.Validity = ResultPartial
	} else {
		res.Validity = ResultOK
	}

	tcr := distance / vn
	res.Vector.Distance = distance
	res.TimeElapsed = tcr
	res.HeightGlide = tcr * s
	res.AltitudeDifference = -dh - res.HeightGlide
	return m.checked(res)
}

// SolveSink планирование с заданным снижением без ограничения по высоте
func (m MacCready) SolveSink(task GlideState, s float64) GlideResult {
	virt := task
	virt.Altitude += virtualHeight
	res := m.SolveGlideSink(virt, m.polar.VbestLD(), s)
	if !res.IsDefined() {
		return res
	}
	res.AltitudeDifference = task.Altitude - res.HeightGlide - task.MinHeight
	return res
}

// SolveCruise переход с наборами высоты в потоках силой MC
func (m MacCready) SolveCruise(task GlideState) GlideResult {
	mc := m.polar.MC()
	vopt := m.polar.SpeedToFly(0, 0, true)
	res := newResult(task, vopt)
	if mc <= 0 {
		res.Validity = ResultMacCreadyInsufficient
		res.Vector.Distance = 0
		return res
	}

	dh := task.MinHeight - task.Altitude
	s := m.polar.SinkRate(vopt)
	rho := s / mc
	k := 1 + rho

	vn, ok := groundSpeed(task, vopt*m.polar.CruiseEfficiency()/k)
	if !ok {
		res.Validity = ResultWindExcessive
		res.Vector.Distance = 0
		return res
	}

	tcl1 := 0.0
	distance := task.Vector.Distance
	if dh > 0 {
		tcl1 = dh / mc
		distance = task.DriftedDistance(tcl1)
	}

	tcr := distance / vn / k
	tcl := tcr*rho + tcl1
	res.TimeElapsed = tcr + tcl
	res.HeightClimb = tcl * mc
	res.HeightGlide = tcr * s
	res.AltitudeDifference = -dh + res.HeightClimb - res.HeightGlide
	res.EffectiveWindSpeed = task.Wind.Norm * k
	res.Validity = ResultOK
	return m.checked(res)
}

// OptimiseGlide планирование на оптимальной скорости
func (m MacCready) OptimiseGlide(task GlideState) GlideResult {
	vmin := math.Max(m.polar.Vmin(), 1)
	vmax := m.polar.Vmax()
	invMC := m.polar.InvMC()

	f := func(v float64) float64 {
		r := m.SolveGlide(task, v)
		if !r.IsDefined() || r.Validity == ResultWindExcessive || r.Validity == ResultMacCreadyInsufficient {
			return math.MaxFloat64
		}
		if invMC > 0 {
			return r.InvSpeed(invMC)
		}
		// без потоков максимизируем качество относительно земли
		if r.Vector.Distance <= 0 {
			return math.MaxFloat64
		}
		return r.HeightGlide / r.Vector.Distance
	}

	zf := NewZeroFinder(vmin, vmax, 0.01)
	vopt := zf.FindMin(f, m.polar.VbestLD())
	res := m.SolveGlide(task, vopt)
	res.InvSpeed(invMC)
	return res
}

func (m MacCready) checked(r GlideResult) GlideResult {
	if !r.sane() {
		return NoSolution()
	}
	return r
}
