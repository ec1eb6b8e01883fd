package flux

// WebbInput holds the kinematic covariances and mean densities used by the
// density correction. Densities are kg/m3 except RhoC.
type WebbInput struct {
	WQ    float64 // w'ρv', kg/m2/s
	WC    float64 // w'ρc', mg/m2/s
	WT    float64 // w'T', K m/s
	RhoV  float64 // water vapour
	RhoD  float64 // dry air
	RhoC  float64 // CO2, mg/m3
	TempK float64
}

// Webb applies the Webb, Pearman and Leuning (1980) density correction and
// returns the corrected water vapour flux (kg/m2/s) and CO2 flux (mg/m2/s).
func Webb(in WebbInput) (e, fc float64) {
	sigma := safeDiv(in.RhoV, in.RhoD)
	heat := 1 + MuWebb*sigma
	e = heat * (in.WQ + safeDiv(in.RhoV, in.TempK)*in.WT)
	fc = in.WC + MuWebb*safeDiv(in.RhoC, in.RhoD)*in.WQ + heat*safeDiv(in.RhoC, in.TempK)*in.WT
	return e, fc
}

// AirDensity returns the moist air density (kg/m3) and its dry and vapour
// parts from pressure (hPa), temperature (K) and vapour density (kg/m3).
func AirDensity(pressure, tempK, rhoV float64) (rho, rhoD float64) {
	e := rhoV * Rv * tempK // vapour pressure, Pa
	rhoD = safeDiv(pressure*100-e, Rd*tempK)
	return rhoD + rhoV, rhoD
}
