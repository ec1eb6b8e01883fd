package bulk

import "math"

// MomentumRoughness is the Andreas et al. snow and sea ice roughness length
// (m) for friction velocity ustar and kinematic viscosity nu.
func MomentumRoughness(ustar, nu float64) float64 {
	if !(ustar > 0) {
		return 1e-4
	}
	g := 9.81
	d := (ustar - 0.1357) / 0.0813
	return 0.135*nu/ustar + 0.035*ustar*ustar/g*(5*math.Exp(-9*d*d)+0.03)
}

// ScalarRoughness returns the temperature and humidity roughness lengths
// from the roughness Reynolds number (Andreas 1987).
func ScalarRoughness(rstar, z0 float64) (zot, zoq float64) {
	var bt, bq [3]float64
	switch {
	case rstar <= 0.135:
		bt = [3]float64{1.250, 0, 0}
		bq = [3]float64{1.610, 0, 0}
	case rstar < 2.5:
		bt = [3]float64{0.149, -0.550, 0}
		bq = [3]float64{0.351, -0.628, 0}
	default:
		bt = [3]float64{0.317, -0.565, -0.183}
		bq = [3]float64{0.396, -0.512, -0.180}
	}
	lr := math.Log(rstar)
	poly := func(b [3]float64) float64 { return b[0] + b[1]*lr + b[2]*lr*lr }
	return z0 * math.Exp(poly(bt)), z0 * math.Exp(poly(bq))
}

// SaturationVaporPressureIce is the Buck (1981) saturation vapour pressure
// over ice (hPa) at t degC and pressure p hPa.
func SaturationVaporPressureIce(t, p float64) float64 {
	return 6.1115 * math.Exp(22.452*t/(272.55+t)) * (1.0003 + 4.18e-6*p)
}

// SaturationVaporPressureWater is the Buck (1981) saturation vapour
// pressure over liquid water (hPa).
func SaturationVaporPressureWater(t, p float64) float64 {
	return 6.1121 * math.Exp(17.502*t/(240.97+t)) * (1.0007 + 3.46e-6*p)
}

// SpecificHumidity converts vapour pressure e to kg/kg at pressure p, both
// in hPa.
func SpecificHumidity(e, p float64) float64 {
	return eps * e / (p - 0.378*e)
}

// KinematicViscosity of air (m2/s) at t degC.
func KinematicViscosity(t float64) float64 {
	return 1.326e-5 * (1 + 6.542e-3*t + 8.301e-6*t*t - 4.84e-9*t*t*t)
}
