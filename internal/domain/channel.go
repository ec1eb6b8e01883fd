package domain

import (
	"fmt"
	"math"
	"time"
)

// Channel identifies one measured quantity in a sample.
type Channel int

const (
	U Channel = iota
	V
	W
	Ts
	H2O
	CO2
	Pressure
	SignalStrength
	SonicDiag
	GasDiag
	Heading
	Roll
	Pitch
	AirTemp
	SurfaceTemp
	RH

	NumChannels int = iota
)

var channelNames = [NumChannels]string{
	U:              "u",
	V:              "v",
	W:              "w",
	Ts:             "T_sonic",
	H2O:            "h2o",
	CO2:            "co2",
	Pressure:       "pressure",
	SignalStrength: "signal_strength",
	SonicDiag:      "sonic_diag",
	GasDiag:        "gas_diag",
	Heading:        "heading",
	Roll:           "roll",
	Pitch:          "pitch",
	AirTemp:        "temp_air",
	SurfaceTemp:    "temp_surface",
	RH:             "rh",
}

var channelUnits = [NumChannels]string{
	U:              "m/s",
	V:              "m/s",
	W:              "m/s",
	Ts:             "degC",
	H2O:            "g/m3",
	CO2:            "mg/m3",
	Pressure:       "hPa",
	SignalStrength: "%",
	SonicDiag:      "1",
	GasDiag:        "1",
	Heading:        "degrees",
	Roll:           "degrees",
	Pitch:          "degrees",
	AirTemp:        "degC",
	SurfaceTemp:    "degC",
	RH:             "%",
}

var channelByName = func() map[string]Channel {
	m := make(map[string]Channel, NumChannels)
	for i, name := range channelNames {
		m[name] = Channel(i)
	}
	return m
}()

func (c Channel) String() string {
	if c < 0 || int(c) >= NumChannels {
		return fmt.Sprintf("channel(%d)", int(c))
	}
	return channelNames[c]
}

// Units returns the physical units the channel is stored in.
func (c Channel) Units() string {
	if c < 0 || int(c) >= NumChannels {
		return ""
	}
	return channelUnits[c]
}

// ParseChannel maps a column name to its Channel.
func ParseChannel(name string) (Channel, error) {
	c, ok := channelByName[name]
	if !ok {
		return 0, fmt.Errorf("unknown channel %q", name)
	}
	return c, nil
}

// Channels returns every channel in declaration order.
func Channels() []Channel {
	out := make([]Channel, NumChannels)
	for i := range out {
		out[i] = Channel(i)
	}
	return out
}

// Series holds samples in columnar form. Missing values are NaN.
type Series struct {
	Start  time.Time
	Rate   float64 // samples per second; 0 when timestamps are irregular
	Time   []int64 // unix nanoseconds
	Values [NumChannels][]float64
}

// NewSeries allocates a series of n samples with every value missing.
func NewSeries(n int) Series {
	s := Series{Time: make([]int64, n)}
	for c := range s.Values {
		s.Values[c] = make([]float64, n)
		for i := range s.Values[c] {
			s.Values[c][i] = math.NaN()
		}
	}
	return s
}

// Len returns the number of samples.
func (s Series) Len() int { return len(s.Time) }

// Channel returns the values of one channel. The slice is shared.
func (s Series) Channel(c Channel) []float64 { return s.Values[c] }

// Clone returns a deep copy.
func (s Series) Clone() Series {
	out := Series{Start: s.Start, Rate: s.Rate, Time: append([]int64(nil), s.Time...)}
	for c := range s.Values {
		out.Values[c] = append([]float64(nil), s.Values[c]...)
	}
	return out
}

// Slice returns the samples in [from, to). Slices share storage with s.
func (s Series) Slice(from, to int) Series {
	out := Series{Rate: s.Rate, Time: s.Time[from:to]}
	if from < len(s.Time) {
		out.Start = time.Unix(0, s.Time[from]).UTC()
	}
	for c := range s.Values {
		if s.Values[c] != nil {
			out.Values[c] = s.Values[c][from:to]
		}
	}
	return out
}
