package conditioning

import (
	"math"
)

// DigitField selects Width decimal digits starting at digit Pos (0 = units).
type DigitField struct {
	Pos   int
	Width int
}

// Extract returns the field's value from a non-negative packed code.
func (f DigitField) Extract(code int64) int64 {
	for i := 0; i < f.Pos; i++ {
		code /= 10
	}
	mod := int64(1)
	for i := 0; i < f.Width; i++ {
		mod *= 10
	}
	return code % mod
}

// DiagLayout places each diagnostic flag inside the packed decimal codes.
type DiagLayout struct {
	// Gas analyzer code.
	PLL          DigitField
	DetectorTemp DigitField
	ChopperTemp  DigitField
	// Sonic anemometer code.
	BadPaths   DigitField
	TotalPaths DigitField
}

// DefaultDiagLayout packs gas faults as CDP (chopper, detector, PLL) and the
// sonic path counts as TTBB (total paths, bad paths).
var DefaultDiagLayout = DiagLayout{
	PLL:          DigitField{Pos: 0, Width: 1},
	DetectorTemp: DigitField{Pos: 1, Width: 1},
	ChopperTemp:  DigitField{Pos: 2, Width: 1},
	BadPaths:     DigitField{Pos: 0, Width: 2},
	TotalPaths:   DigitField{Pos: 2, Width: 2},
}

// GasFlags are the decoded gas analyzer faults for one sample.
type GasFlags struct {
	PLL          bool
	DetectorTemp bool
	ChopperTemp  bool
}

// Any reports whether any fault is set.
func (g GasFlags) Any() bool { return g.PLL || g.DetectorTemp || g.ChopperTemp }

// SonicFlags are the decoded sonic path statistics for one sample.
type SonicFlags struct {
	BadPaths   int
	TotalPaths int
}

// BadFraction returns the fraction of bad acoustic paths, 0 when unknown.
func (s SonicFlags) BadFraction() float64 {
	if s.TotalPaths <= 0 {
		return 0
	}
	return float64(s.BadPaths) / float64(s.TotalPaths)
}

// Exceeds reports whether the bad path fraction is above tolerance.
func (s SonicFlags) Exceeds(tolerance float64) bool {
	return s.BadFraction() > tolerance
}

// DecodeGasDiag unpacks a gas analyzer code. ok is false when the code is
// missing or negative and carries no information.
func DecodeGasDiag(code float64, layout DiagLayout) (flags GasFlags, ok bool) {
	c, ok := packed(code)
	if !ok {
		return GasFlags{}, false
	}
	return GasFlags{
		PLL:          layout.PLL.Extract(c) != 0,
		DetectorTemp: layout.DetectorTemp.Extract(c) != 0,
		ChopperTemp:  layout.ChopperTemp.Extract(c) != 0,
	}, true
}

// DecodeSonicDiag unpacks a sonic anemometer code.
func DecodeSonicDiag(code float64, layout DiagLayout) (flags SonicFlags, ok bool) {
	c, ok := packed(code)
	if !ok {
		return SonicFlags{}, false
	}
	return SonicFlags{
		BadPaths:   int(layout.BadPaths.Extract(c)),
		TotalPaths: int(layout.TotalPaths.Extract(c)),
	}, true
}

func packed(code float64) (int64, bool) {
	if math.IsNaN(code) || math.IsInf(code, 0) || code < 0 {
		return 0, false
	}
	return int64(math.Round(code)), true
}
