// Package flux turns one streamline-rotated window into covariances,
// fluxes, similarity diagnostics and inertial subrange statistics.
package flux

import "github.com/couchcryptid/turbulent-flux-etl/internal/spectral"

// Physical constants.
const (
	Cp      = 1004.67 // specific heat of dry air, J/kg/K
	Lv      = 2.501e6 // latent heat of vaporization, J/kg
	Rd      = 287.05  // gas constant of dry air, J/kg/K
	Rv      = 461.5   // gas constant of water vapour, J/kg/K
	MuWebb  = 1.6077  // ratio of dry air to water vapour molar mass
	twoPi   = 6.283185307179586
	fiveBy3 = 5.0 / 3.0
)

// Params configures the integrator.
type Params struct {
	Spectral spectral.Params

	ISRMinFreq     float64 // Hz
	ISRMaxFraction float64 // of the Nyquist frequency
	ISRBins        int     // log bins per candidate band
	ISRMinR2       float64

	AlphaU float64 // Kolmogorov constant for u; v and w use 4/3 of it
	BetaT  float64 // Obukhov-Corrsin constant
}

// DefaultParams returns the standard integrator settings.
func DefaultParams() Params {
	return Params{
		Spectral:       spectral.DefaultParams(),
		ISRMinFreq:     0.5,
		ISRMaxFraction: 0.8,
		ISRBins:        6,
		ISRMinR2:       0.8,
		AlphaU:         0.55,
		BetaT:          0.8,
	}
}
