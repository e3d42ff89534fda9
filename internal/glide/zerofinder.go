package glide

import "math"

var (
	epsilon     = math.Nextafter(1, 2) - 1
	sqrtEpsilon = math.Sqrt(epsilon)
	goldenRatio = (3 - math.Sqrt(5)) / 2
)

const maxIterations = 200

// ZeroFinder одномерный поиск корня (zeroin) и минимума (fminbr) на отрезке
type ZeroFinder struct {
	Min       float64
	Max       float64
	Tolerance float64
}

// NewZeroFinder создает искатель на отрезке [min, max]
func NewZeroFinder(min, max, tolerance float64) ZeroFinder {
	return ZeroFinder{Min: min, Max: max, Tolerance: tolerance}
}

func (z ZeroFinder) tolActualMin(x float64) float64 {
	return sqrtEpsilon*math.Abs(x) + z.Tolerance/3
}

func (z ZeroFinder) tolActualZero(x float64) float64 {
	return 2*epsilon*math.Abs(x) + z.Tolerance/2
}

func limitTolerance(step, tol float64) float64 {
	if math.Abs(step) < tol {
		if step > 0 {
			return tol
		}
		return -tol
	}
	return step
}

// FindZero ищет корень f на отрезке. Если xstart уже является решением, возвращает его.
func (z ZeroFinder) FindZero(f func(float64) float64, xstart float64) float64 {
	if xstart >= z.Min && xstart <= z.Max && math.Abs(f(xstart)) < sqrtEpsilon {
		return xstart
	}
	return z.findZeroActual(f)
}

func (z ZeroFinder) findZeroActual(f func(float64) float64) float64 {
	a, c := z.Min, z.Min
	fa := f(a)
	fc := fa
	b := z.Max
	fb := f(b)

	for iter := 0; iter < maxIterations; iter++ {
		prevStep := b - a

		if math.Abs(fc) < math.Abs(fb) {
			// b должна быть лучшим приближением
			a, b, c = b, c, b
			fa, fb, fc = fb, fc, fb
		}

		tolAct := z.tolActualZero(b)
		newStep := (c - b) / 2

		if math.Abs(newStep) <= tolAct || math.Abs(fb) < sqrtEpsilon {
			return b
		}

		if math.Abs(prevStep) >= tolAct && math.Abs(fa) > math.Abs(fb) {
			var p, q float64
			cb := c - b
			if a == c {
				// линейная интерполяция
				t1 := fb / fa
				p = cb * t1
				q = 1 - t1
			} else {
				// обратная квадратичная интерполяция
				q = fa / fc
				t1 := fb / fc
				t2 := fb / fa
				p = t2 * (cb*q*(q-t1) - (b-a)*(t1-1))
				q = (q - 1) * (t1 - 1) * (t2 - 1)
			}
			if p > 0 {
				q = -q
			} else {
				p = -p
			}
			if p < 0.75*cb*q-math.Abs(tolAct*q)/2 && p < math.Abs(prevStep*q/2) {
				newStep = p / q
			}
		}

		newStep = limitTolerance(newStep, tolAct)

		a, fa = b, fb
		b += newStep
		fb = f(b)

		if (fb > 0 && fc > 0) || (fb < 0 && fc < 0) {
			c, fc = a, fa
		}
	}
	return b
}

// FindMin ищет минимум f на отрезке. Если xstart уже локальный минимум в пределах допуска, возвращает его.
func (z ZeroFinder) FindMin(f func(float64) float64, xstart float64) float64 {
	if z.withinTolerance(f, xstart, z.tolActualMin(xstart)) {
		return xstart
	}
	return z.findMinActual(f)
}

func (z ZeroFinder) withinTolerance(f func(float64) float64, x, tol float64) bool {
	if x-tol <= z.Min || x+tol >= z.Max {
		return false
	}
	fx := f(x)
	return f(x+tol) >= fx && f(x-tol) >= fx
}

func (z ZeroFinder) findMinActual(f func(float64) float64) float64 {
	a, b := z.Min, z.Max
	x := a + goldenRatio*(b-a)
	v, w := x, x
	fx := f(x)
	fv, fw := fx, fx

	for iter := 0; iter < maxIterations; iter++ {
		rng := b - a
		mid := (a + b) / 2
		tolAct := z.tolActualMin(x)
		tol2 := 2 * tolAct

		if math.Abs(x-mid)+rng/2 <= tol2 {
			return x
		}

		// шаг золотого сечения
		var newStep float64
		if x < mid {
			newStep = goldenRatio * (b - x)
		} else {
			newStep = goldenRatio * (a - x)
		}

		if math.Abs(x-w) >= tolAct {
			// параболическая интерполяция
			t := (x - w) * (fx - fv)
			q := (x - v) * (fx - fw)
			p := (x-v)*q - (x-w)*t
			q = 2 * (q - t)
			if q > 0 {
				p = -p
			} else {
				q = -q
			}
			if math.Abs(p) < math.Abs(newStep*q) && p > q*(a-x+tol2) && p < q*(b-x-tol2) {
				newStep = p / q
			}
		}

		newStep = limitTolerance(newStep, tolAct)

		t := x + newStep
		ft := f(t)
		if ft <= fx {
			if t < x {
				b = x
			} else {
				a = x
			}
			v, w, x = w, x, t
			fv, fw, fx = fw, fx, ft
		} else {
			if t < x {
				a = t
			} else {
				b = t
			}
			if ft <= fw || w == x {
				v, w = w, t
				fv, fw = fw, ft
			} else if ft <= fv || v == x || v == w {
				v, fv = t, ft
			}
		}
	}
	return x
}
