// Package bulk estimates surface fluxes over snow and sea ice from mean
// meteorological state with Monin-Obukhov bulk iteration.
package bulk

import (
	"fmt"
	"math"

	"github.com/couchcryptid/turbulent-flux-etl/internal/domain"
	"github.com/couchcryptid/turbulent-flux-etl/internal/similarity"
)

const (
	cp       = 1004.67 // J/kg/K
	ls       = 2.834e6 // latent heat of sublimation, J/kg
	rd       = 287.05
	eps      = 0.622
	gustBeta = 1.25
	zetaMin  = -20.0
	zetaMax  = 50.0
	defaultZ = 2.0
	// Snow roughness falls steeply with ustar near 0.14 m/s, so plain
	// fixed-point steps oscillate there.
	relax = 0.5
)

// Input is the window mean state.
type Input struct {
	U  float64 // wind speed at Zu, m/s
	Ts float64 // surface temperature, degC
	Ta float64 // air temperature at Zt, degC
	RH float64 // relative humidity over water at Zq, %; NaN skips moisture
	P  float64 // surface pressure, hPa

	Zu, Zt, Zq float64 // measurement heights, m
	Zi         float64 // boundary layer depth for gustiness, m
}

// Params bounds the iteration.
type Params struct {
	MaxIterations int
	Tolerance     float64
}

// DefaultParams returns the standard iteration bounds.
func DefaultParams() Params {
	return Params{MaxIterations: 20, Tolerance: 1e-4}
}

// Result is the bulk estimate. Qstar is in kg/kg.
type Result struct {
	Ustar, Tstar, Qstar float64
	Z0, Zot, Zoq        float64
	L, Zeta             float64
	Hs, Hl              float64 // W/m2, positive upward
	Cd, Ch, Ce          float64
	Iterations          int
	Converged           bool
}

// Fill writes the bulk columns of r into v.
func (r Result) Fill(v *domain.Values) {
	v[domain.BulkHs] = r.Hs
	v[domain.BulkHl] = r.Hl
	v[domain.BulkUstar] = r.Ustar
	v[domain.BulkTstar] = r.Tstar
	v[domain.BulkQstar] = r.Qstar
	v[domain.BulkZ0] = r.Z0
	v[domain.BulkZot] = r.Zot
	v[domain.BulkZoq] = r.Zoq
	v[domain.BulkCd] = r.Cd
	v[domain.BulkZeta] = r.Zeta
}

// Solve iterates from neutral stability until friction velocity and
// stability settle. When the iteration does not converge the last iterate
// is returned with an error wrapping domain.ErrConvergence.
func Solve(in Input, p Params) (Result, error) {
	if err := in.validate(); err != nil {
		return Result{}, err
	}
	if p.MaxIterations <= 0 {
		p.MaxIterations = DefaultParams().MaxIterations
	}
	zu, zt, zq := height(in.Zu), height(in.Zt), height(in.Zq)

	tak := in.Ta + similarity.KelvinOffset
	qa := math.NaN()
	if !math.IsNaN(in.RH) {
		qa = SpecificHumidity(in.RH/100*SaturationVaporPressureWater(in.Ta, in.P), in.P)
	}
	qs := SpecificHumidity(SaturationVaporPressureIce(in.Ts, in.P), in.P)
	moist := qa
	if math.IsNaN(moist) {
		moist = 0
	}
	tvk := tak * (1 + 0.61*moist)
	rho := in.P * 100 / (rd * tvk)
	nu := KinematicViscosity(in.Ta)

	var r Result
	s := in.U
	ustar := similarity.Kappa * s / math.Log(zu/1e-4)
	zeta := 0.0
	for r.Iterations = 1; r.Iterations <= p.MaxIterations; r.Iterations++ {
		r.Z0 = MomentumRoughness(ustar, nu)
		r.Zot, r.Zoq = ScalarRoughness(ustar*r.Z0/nu, r.Z0)

		next := similarity.Kappa * s / (math.Log(zu/r.Z0) - similarity.PsiM(zeta))
		next = relax*next + (1-relax)*ustar
		r.Tstar = similarity.Kappa * (in.Ta - in.Ts) / (math.Log(zt/r.Zot) - similarity.PsiH(zeta*zt/zu))
		r.Qstar = similarity.Kappa * (qa - qs) / (math.Log(zq/r.Zoq) - similarity.PsiH(zeta*zq/zu))

		tvstar := r.Tstar * (1 + 0.61*moist)
		if !math.IsNaN(r.Qstar) {
			tvstar += 0.61 * tak * r.Qstar
		}
		nextZeta := clamp(zu*similarity.Kappa*similarity.Gravity*tvstar/(tvk*next*next), zetaMin, zetaMax)

		// Convective gustiness keeps the wind scale finite in free convection.
		wg := 0.0
		if tvstar < 0 && in.Zi > 0 {
			wg = gustBeta * math.Cbrt(-similarity.Gravity/tvk*next*tvstar*in.Zi)
		}
		s = math.Hypot(in.U, wg)

		if !finite(next) || next <= 0 || math.IsNaN(nextZeta) {
			return r, fmt.Errorf("bulk iteration %d: %w", r.Iterations, domain.ErrNumericalDegeneracy)
		}
		done := math.Abs(next-ustar)/next < p.Tolerance && math.Abs(nextZeta-zeta) < p.Tolerance
		ustar, zeta = next, nextZeta
		if done {
			r.Converged = true
			break
		}
	}
	if r.Iterations > p.MaxIterations {
		r.Iterations = p.MaxIterations
	}

	r.Ustar = ustar
	r.Zeta = zeta
	r.L = safeDiv(zu, zeta)
	r.Hs = -rho * cp * r.Ustar * r.Tstar
	r.Hl = -rho * ls * r.Ustar * r.Qstar
	r.Cd = safeDiv(r.Ustar*r.Ustar, in.U*in.U)
	r.Ch = safeDiv(r.Ustar*r.Tstar, in.U*(in.Ta-in.Ts))
	r.Ce = safeDiv(r.Ustar*r.Qstar, in.U*(qa-qs))
	if !r.Converged {
		return r, fmt.Errorf("bulk fluxes after %d iterations: %w", r.Iterations, domain.ErrConvergence)
	}
	return r, nil
}

func (in Input) validate() error {
	for _, x := range []float64{in.U, in.Ts, in.Ta, in.P} {
		if !finite(x) {
			return fmt.Errorf("bulk input not finite: %w", domain.ErrInsufficientData)
		}
	}
	if in.U <= 0 {
		return fmt.Errorf("bulk wind speed %.3g: %w", in.U, domain.ErrInsufficientData)
	}
	return nil
}

func height(z float64) float64 {
	if !(z > 0) {
		return defaultZ
	}
	return z
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return math.NaN()
	}
	q := a / b
	if math.IsInf(q, 0) {
		return math.NaN()
	}
	return q
}

func finite(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) }
