package flux

import (
	"math"

	"github.com/couchcryptid/turbulent-flux-etl/internal/domain"
	"github.com/couchcryptid/turbulent-flux-etl/internal/rotation"
	"github.com/couchcryptid/turbulent-flux-etl/internal/similarity"
	"github.com/couchcryptid/turbulent-flux-etl/internal/spectral"
)

// WindowInput is one averaging window after streamline rotation.
type WindowInput struct {
	Height float64 // sonic height above the surface, m

	U, V, W []float64 // streamline frame, m/s
	T       []float64 // sonic temperature, degC
	Q       []float64 // water vapour density, g/m3; nil without a gas analyzer
	C       []float64 // CO2 density, mg/m3; nil without a gas analyzer

	EarthU, EarthV []float64 // earth frame, for the vector mean wind
	MeanSpeed      float64   // streamwise mean, m/s
	Pressure       float64   // hPa, NaN when unknown
}

// Result carries one value per output column computed from turbulence.
// Bulk columns are left missing.
type Result struct {
	Values domain.Values
	Fits   [numSeries]ISRFit
}

type series int

const (
	su series = iota
	sv
	sw
	st
	sq
	sc
	numSeries
)

// Integrator computes the turbulence columns of a window.
type Integrator struct {
	p Params
}

// NewIntegrator returns an integrator using p.
func NewIntegrator(p Params) *Integrator {
	return &Integrator{p: p}
}

// Integrate computes every turbulence column of the window. Channels with
// too few valid samples, and every quantity that depends on them, are
// missing; nothing is extrapolated.
func (ig *Integrator) Integrate(in WindowInput) Result {
	sp := ig.p.Spectral
	res := Result{Values: domain.MissingValues()}
	v := &res.Values

	raw := [numSeries][]float64{in.U, in.V, in.W, in.T, in.Q, in.C}
	var (
		prep [numSeries]spectral.Prepared
		ok   [numSeries]bool
		psd  [numSeries]spectral.Spectrum
	)
	for c := range raw {
		prep[c], ok[c] = spectral.Prepare(raw[c], sp.MinValidFraction)
		if ok[c] {
			psd[c] = spectral.Welch(prep[c].Values, sp)
		}
	}
	variance := func(c series) float64 {
		if !ok[c] {
			return math.NaN()
		}
		return psd[c].Integrate()
	}
	cov := func(a, b series) float64 {
		if !ok[a] || !ok[b] {
			return math.NaN()
		}
		return spectral.CrossWelch(prep[a].Values, prep[b].Values, sp).Cospectrum().Integrate()
	}

	wu, wv, uv := cov(sw, su), cov(sw, sv), cov(su, sv)
	wT, uT, vT := cov(sw, st), cov(su, st), cov(sv, st)
	wq, wc := cov(sw, sq), cov(sw, sc)
	v[domain.WUCsp], v[domain.WVCsp], v[domain.UVCsp] = wu, wv, uv
	v[domain.WTCsp], v[domain.UTCsp], v[domain.VTCsp] = wT, uT, vT
	v[domain.WQCsp], v[domain.WCCsp] = wq, wc

	sigU, sigV, sigW, sigT := safeSqrt(variance(su)), safeSqrt(variance(sv)), safeSqrt(variance(sw)), safeSqrt(variance(st))
	v[domain.SigU], v[domain.SigV], v[domain.SigW], v[domain.SigT] = sigU, sigV, sigW, sigT

	meanT := nanMean(in.T)
	tempK := meanT + similarity.KelvinOffset
	u := in.MeanSpeed
	z := in.Height

	ustar := safeSqrt(math.Hypot(wu, wv))
	tstar := safeDiv(-wT, ustar)
	l := similarity.ObukhovLength(ustar, tstar, tempK)
	zeta := similarity.Zeta(z, l)
	v[domain.Ustar], v[domain.Tstar] = ustar, tstar
	v[domain.MOLength], v[domain.Zeta] = l, zeta
	v[domain.Cd] = safeDiv(ustar*ustar, u*u)

	// Densities: vapour and CO2 from the gas analyzer, air from the gas law.
	rhoV := nanMean(in.Q) * 1e-3
	rhoC := nanMean(in.C)
	rhoVAir := rhoV
	if math.IsNaN(rhoVAir) {
		rhoVAir = 0
	}
	rho, rhoD := AirDensity(in.Pressure, tempK, rhoVAir)
	v[domain.Hs] = rho * Cp * wT
	v[domain.Hl] = Lv * wq * 1e-3
	v[domain.CO2Flux] = wc
	e, fc := Webb(WebbInput{WQ: wq * 1e-3, WC: wc, WT: wT, RhoV: rhoV, RhoD: rhoD, RhoC: rhoC, TempK: tempK})
	v[domain.HlWebb] = Lv * e
	v[domain.CO2FluxWebb] = fc

	v[domain.WspdVecMean], v[domain.WdirVecMean] = rotation.WindSpeedDirection(in.EarthU, in.EarthV)
	v[domain.TempSonicMean] = meanT

	v[domain.PhiU] = safeDiv(sigU, ustar)
	v[domain.PhiV] = safeDiv(sigV, ustar)
	v[domain.PhiW] = safeDiv(sigW, ustar)
	v[domain.PhiT] = safeDiv(sigT, math.Abs(tstar))
	v[domain.PhiUT] = safeDiv(uT, ustar*tstar)
	v[domain.PhiMSheba] = similarity.PhiM(zeta)
	v[domain.PhiHSheba] = similarity.PhiH(zeta)

	slopes := [numSeries]domain.Column{domain.NSu, domain.NSv, domain.NSw, domain.NSt, domain.NSq, domain.NSc}
	var fitted [numSeries]bool
	for c := range psd {
		if !ok[c] {
			continue
		}
		res.Fits[c], fitted[c] = FitInertialSubrange(psd[c], ig.p)
		if fitted[c] {
			v[slopes[c]] = res.Fits[c].Slope
		}
	}
	level := func(c series) float64 {
		if !fitted[c] {
			return math.NaN()
		}
		return res.Fits[c].Level
	}
	alphaVW := 4.0 / 3.0 * ig.p.AlphaU
	epsU := Dissipation(level(su), ig.p.AlphaU, u)
	epsV := Dissipation(level(sv), alphaVW, u)
	epsW := Dissipation(level(sw), alphaVW, u)
	eps := MedianEpsilon(epsU, epsV, epsW)
	v[domain.EpsilonU], v[domain.EpsilonV], v[domain.EpsilonW] = epsU, epsV, epsW
	v[domain.Epsilon] = eps
	v[domain.PhiEpsilon] = safeDiv(similarity.Kappa*z*eps, ustar*ustar*ustar)
	nt := TemperatureDissipation(level(st), eps, ig.p.BetaT, u)
	v[domain.NT] = nt
	v[domain.PhiNT] = safeDiv(similarity.Kappa*z*nt, ustar*tstar*tstar)

	deltas := map[series]domain.Column{su: domain.DeltaU, sv: domain.DeltaV, st: domain.DeltaT}
	for c, col := range deltas {
		if ok[c] {
			v[col] = prep[c].Delta
		}
	}

	ig.moments(v, prep, ok)
	return res
}

func (ig *Integrator) moments(v *domain.Values, prep [numSeries]spectral.Prepared, ok [numSeries]bool) {
	single := []struct {
		s          series
		skew, kurt domain.Column
	}{
		{su, domain.SkewU, domain.KurtU},
		{sv, domain.SkewV, domain.KurtV},
		{sw, domain.SkewW, domain.KurtW},
		{st, domain.SkewT, domain.KurtT},
	}
	for _, m := range single {
		if !ok[m.s] {
			continue
		}
		mo := spectral.ComputeMoments(prep[m.s].Values)
		v[m.skew], v[m.kurt] = mo.Skewness, mo.Kurtosis
	}

	pairs := []struct {
		a, b       series
		skew, kurt domain.Column
	}{
		{su, sw, domain.SkewUW, domain.KurtUW},
		{sv, sw, domain.SkewVW, domain.KurtVW},
		{sw, st, domain.SkewWT, domain.KurtWT},
		{su, st, domain.SkewUT, domain.KurtUT},
	}
	for _, m := range pairs {
		if !ok[m.a] || !ok[m.b] {
			continue
		}
		mo := spectral.ComputeMoments(spectral.Product(prep[m.a].Values, prep[m.b].Values))
		v[m.skew], v[m.kurt] = mo.Skewness, mo.Kurtosis
	}
}

func nanMean(x []float64) float64 {
	sum, n := 0.0, 0
	for _, v := range x {
		if !math.IsNaN(v) {
			sum += v
			n++
		}
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}
