package conditioning

import (
	"math"

	"github.com/couchcryptid/turbulent-flux-etl/internal/domain"
)

var (
	sonicChannels = []domain.Channel{domain.U, domain.V, domain.W, domain.Ts}
	gasChannels   = []domain.Channel{domain.H2O, domain.CO2}
	windChannels  = []domain.Channel{domain.U, domain.V, domain.W}
	// A wind gap takes the covariance partners down with it.
	windGapChannels = []domain.Channel{domain.U, domain.V, domain.W, domain.Ts, domain.H2O, domain.CO2}
)

// Condition returns a cleaned copy of s. Steps run in a fixed order:
// diagnostic decoding, signal strength, physical bounds, zero runs,
// despiking and finally wind-gap masking.
func Condition(s domain.Series, p Params) (domain.Series, Report) {
	out := s.Clone()
	var rep Report

	applyDiagnostics(&out, p, &rep)
	applySignalStrength(&out, p, &rep)
	applyBounds(&out, p, &rep)

	for _, c := range p.ZeroChannels {
		x := out.Values[c]
		minRun := ZeroRunLength(ZeroFraction(x), p)
		rep.ZeroRun[c] += zeroRunsInPlace(x, minRun)
	}

	for c, thr := range p.DespikeThresholds {
		if p.DespikeWindow <= 0 || thr <= 0 {
			continue
		}
		rep.Spikes[c] += despikeInPlace(out.Values[c], p.DespikeWindow, thr)
	}

	maskWindGaps(&out, &rep)
	return out, rep
}

func applyDiagnostics(s *domain.Series, p Params, rep *Report) {
	sonic := s.Values[domain.SonicDiag]
	gas := s.Values[domain.GasDiag]
	for i := 0; i < s.Len(); i++ {
		if sonic != nil {
			if f, ok := DecodeSonicDiag(sonic[i], p.Diag); ok && f.Exceeds(p.BadPathTolerance) {
				for _, c := range sonicChannels {
					if x := s.Values[c]; x != nil && invalidate(x, i) {
						rep.Diagnostic[c]++
					}
				}
			}
		}
		if gas != nil {
			if f, ok := DecodeGasDiag(gas[i], p.Diag); ok && f.Any() {
				for _, c := range gasChannels {
					if x := s.Values[c]; x != nil && invalidate(x, i) {
						rep.Diagnostic[c]++
					}
				}
			}
		}
	}
}

func applySignalStrength(s *domain.Series, p Params, rep *Report) {
	sig := s.Values[domain.SignalStrength]
	if sig == nil {
		return
	}
	for i, v := range sig {
		if math.IsNaN(v) || v >= p.MinSignalStrength {
			continue
		}
		for _, c := range gasChannels {
			if x := s.Values[c]; x != nil && invalidate(x, i) {
				rep.WeakSignal[c]++
			}
		}
	}
}

func applyBounds(s *domain.Series, p Params, rep *Report) {
	for c, b := range p.Bounds {
		x := s.Values[c]
		for i, v := range x {
			if !math.IsNaN(v) && !b.Contains(v) {
				x[i] = math.NaN()
				rep.OutOfRange[c]++
			}
		}
	}
}

func maskWindGaps(s *domain.Series, rep *Report) {
	for i := 0; i < s.Len(); i++ {
		gap := false
		for _, c := range windChannels {
			if x := s.Values[c]; x == nil || math.IsNaN(x[i]) {
				gap = true
				break
			}
		}
		if !gap {
			continue
		}
		for _, c := range windGapChannels {
			if x := s.Values[c]; x != nil && invalidate(x, i) {
				rep.WindGap[c]++
			}
		}
	}
}
