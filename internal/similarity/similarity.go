// Package similarity implements Monin-Obukhov similarity functions.
//
// Stable forms follow Grachev et al. (2007), fitted to the SHEBA sea-ice
// tower data; unstable forms are the Kansas (Businger-Dyer) profiles, with
// the integrated profiles blended toward the free-convection limit as in
// Fairall et al. (1996, COARE). All functions are pure and return NaN for a
// NaN stability parameter.
package similarity

import "math"

const (
	// Kappa is the von Karman constant.
	Kappa = 0.4
	// Gravity is the gravitational acceleration, m/s2.
	Gravity = 9.81
	// KelvinOffset converts degC to K.
	KelvinOffset = 273.15
)

// SHEBA coefficients.
const (
	shebaAm = 5.0
	shebaBm = shebaAm / 6.5
	shebaAh = 5.0
	shebaBh = 5.0
	shebaCh = 3.0
)

var sqrt3 = math.Sqrt(3)

// PhiM is the dimensionless wind shear at stability zeta.
func PhiM(zeta float64) float64 {
	switch {
	case math.IsNaN(zeta):
		return math.NaN()
	case zeta >= 0:
		return 1 + 6.5*zeta*math.Cbrt(1+zeta)/(1.3+zeta)
	default:
		return math.Pow(1-15*zeta, -0.25)
	}
}

// PhiH is the dimensionless temperature gradient at stability zeta.
func PhiH(zeta float64) float64 {
	switch {
	case math.IsNaN(zeta):
		return math.NaN()
	case zeta >= 0:
		return 1 + 5*zeta*(1+zeta)/(1+3*zeta+zeta*zeta)
	default:
		return math.Pow(1-15*zeta, -0.5)
	}
}

// PsiM is the integrated stability correction for momentum.
func PsiM(zeta float64) float64 {
	switch {
	case math.IsNaN(zeta):
		return math.NaN()
	case zeta >= 0:
		x := math.Cbrt(1 + zeta)
		b := math.Cbrt((1 - shebaBm) / shebaBm)
		return -3*shebaAm/shebaBm*(x-1) + shebaAm*b/(2*shebaBm)*(2*math.Log((x+b)/(1+b))-
			math.Log((x*x-x*b+b*b)/(1-b+b*b))+
			2*sqrt3*(math.Atan((2*x-b)/(sqrt3*b))-math.Atan((2-b)/(sqrt3*b))))
	default:
		x := math.Pow(1-15*zeta, 0.25)
		kansas := 2*math.Log((1+x)/2) + math.Log((1+x*x)/2) - 2*math.Atan(x) + math.Pi/2
		return blend(zeta, kansas, convective(1-10.15*zeta))
	}
}

// PsiH is the integrated stability correction for heat and moisture.
func PsiH(zeta float64) float64 {
	switch {
	case math.IsNaN(zeta):
		return math.NaN()
	case zeta >= 0:
		b := math.Sqrt(shebaCh*shebaCh - 4)
		return -shebaBh/2*math.Log(1+shebaCh*zeta+zeta*zeta) +
			(-shebaAh/b+shebaBh*shebaCh/(2*b))*
				(math.Log((2*zeta+shebaCh-b)/(2*zeta+shebaCh+b))-math.Log((shebaCh-b)/(shebaCh+b)))
	default:
		x := math.Sqrt(1 - 15*zeta)
		kansas := 2 * math.Log((1+x)/2)
		return blend(zeta, kansas, convective(1-34.15*zeta))
	}
}

func convective(arg float64) float64 {
	y := math.Cbrt(arg)
	return 1.5*math.Log((y*y+y+1)/3) - sqrt3*math.Atan((2*y+1)/sqrt3) + math.Pi/sqrt3
}

func blend(zeta, kansas, conv float64) float64 {
	f := zeta * zeta / (1 + zeta*zeta)
	return (1-f)*kansas + f*conv
}

// ObukhovLength returns L from the friction velocity, the temperature
// scale and the mean (virtual) temperature in K. L is NaN when tstar is
// zero or any input is not finite.
func ObukhovLength(ustar, tstar, tempK float64) float64 {
	if !finite(ustar) || !finite(tstar) || !finite(tempK) || tstar == 0 {
		return math.NaN()
	}
	return tempK * ustar * ustar / (Kappa * Gravity * tstar)
}

// Zeta returns z/L, NaN when L is zero or not finite.
func Zeta(z, l float64) float64 {
	if !finite(z) || !finite(l) || l == 0 {
		return math.NaN()
	}
	return z / l
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
