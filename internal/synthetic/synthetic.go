// Package synthetic generates station days with known turbulence so the
// engine can be run end to end without field data.
package synthetic

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/couchcryptid/turbulent-flux-etl/internal/domain"
	"github.com/couchcryptid/turbulent-flux-etl/internal/rotation"
)

// Options shape a generated day. Zero values take the defaults of
// DefaultOptions.
type Options struct {
	Rate     float64       // Hz
	Duration time.Duration // of data from midnight; the rest of the day is absent
	Seed     uint64

	WindSpeed float64 // m/s
	WindFrom  float64 // degrees, meteorological
	Heading   float64 // sonic body x axis, degrees from north
	Roll      float64
	Pitch     float64

	SigmaU float64 // m/s
	CovUW  float64 // m2/s2, negative for downward momentum flux
	CovWT  float64 // K m/s, positive for upward heat flux
	SigmaT float64 // K

	AirTemp     float64 // degC
	SurfaceTemp float64 // degC
	Pressure    float64 // hPa
	RH          float64 // %
	Gas         bool    // emit H2O and CO2

	// SpikeEvery adds a +25 m/s spike to W every n samples; 0 disables.
	SpikeEvery int
	// NoHeading leaves the compass channel empty.
	NoHeading bool
}

// DefaultOptions describes a moderately windy, slightly unstable day.
func DefaultOptions() Options {
	return Options{
		Rate:        20,
		Duration:    24 * time.Hour,
		Seed:        1,
		WindSpeed:   6,
		WindFrom:    270,
		Heading:     30,
		Roll:        1.5,
		Pitch:       -2,
		SigmaU:      0.6,
		CovUW:       -0.09,
		CovWT:       0.01,
		SigmaT:      0.15,
		AirTemp:     -15,
		SurfaceTemp: -13,
		Pressure:    1005,
		RH:          85,
		Gas:         true,
	}
}

// correlation of successive samples of each driving process.
const persistence = 0.9

// Day generates one station day.
func Day(st domain.Station, day time.Time, o Options) (domain.DayBatch, error) {
	o = withDefaults(o)
	day = domain.DayStart(day)
	n := int(o.Duration.Seconds() * o.Rate)
	s := domain.NewSeries(n)
	s.Start = day
	s.Rate = o.Rate

	rot, err := rotation.NewRotator(domain.Orientation{Start: day, Heading: o.Heading, Roll: o.Roll, Pitch: o.Pitch})
	if err != nil {
		return domain.DayBatch{}, err
	}
	r := rand.New(rand.NewPCG(o.Seed, 0x5eed))
	var a, b, c, d float64
	innov := math.Sqrt(1 - persistence*persistence)

	// w' = ka·a + kb·b, u' = σu·a, T' = kt·b + kc·c: cov(u,w) = σu·ka and
	// cov(w,T) = kb·kt for unit-variance drivers.
	ka := o.CovUW / o.SigmaU
	kb := 0.3
	kt := o.CovWT / kb
	kc := math.Sqrt(math.Max(o.SigmaT*o.SigmaT-kt*kt, 1e-6))

	from := o.WindFrom * math.Pi / 180
	meanE := -o.WindSpeed * math.Sin(from)
	meanN := -o.WindSpeed * math.Cos(from)
	alongE, alongN := -math.Sin(from), -math.Cos(from)

	step := time.Duration(float64(time.Second) / o.Rate)
	for i := 0; i < n; i++ {
		a = persistence*a + innov*r.NormFloat64()
		b = persistence*b + innov*r.NormFloat64()
		c = persistence*c + innov*r.NormFloat64()
		d = persistence*d + innov*r.NormFloat64()

		up := o.SigmaU * a
		cross := 0.8 * o.SigmaU * d
		wp := ka*a + kb*b
		tp := kt*b + kc*c

		e := meanE + up*alongE + cross*alongN
		nn := meanN + up*alongN - cross*alongE
		bu, bv, bw := rot.Inverse(e, nn, wp)

		s.Time[i] = day.Add(time.Duration(i) * step).UnixNano()
		s.Values[domain.U][i] = bu
		s.Values[domain.V][i] = bv
		s.Values[domain.W][i] = bw
		s.Values[domain.Ts][i] = o.AirTemp + tp
		s.Values[domain.Pressure][i] = o.Pressure
		s.Values[domain.SignalStrength][i] = 95
		s.Values[domain.SonicDiag][i] = 900
		s.Values[domain.GasDiag][i] = 0
		s.Values[domain.AirTemp][i] = o.AirTemp
		s.Values[domain.SurfaceTemp][i] = o.SurfaceTemp
		s.Values[domain.RH][i] = o.RH
		s.Values[domain.Roll][i] = o.Roll
		s.Values[domain.Pitch][i] = o.Pitch
		if !o.NoHeading {
			s.Values[domain.Heading][i] = o.Heading
		}
		if o.Gas {
			s.Values[domain.H2O][i] = 1.5 + 0.02*b
			s.Values[domain.CO2][i] = 720 - 0.5*b + 0.2*c
		}
		if o.SpikeEvery > 0 && i%o.SpikeEvery == o.SpikeEvery/2 {
			s.Values[domain.W][i] += 25
		}
	}
	return domain.DayBatch{Station: st, Day: day, Samples: s}, nil
}

func withDefaults(o Options) Options {
	def := DefaultOptions()
	if o.Rate <= 0 {
		o.Rate = def.Rate
	}
	if o.Duration <= 0 {
		o.Duration = def.Duration
	}
	if o.WindSpeed <= 0 {
		o.WindSpeed = def.WindSpeed
	}
	if o.SigmaU <= 0 {
		o.SigmaU = def.SigmaU
	}
	if o.SigmaT <= 0 {
		o.SigmaT = def.SigmaT
	}
	if o.Pressure <= 0 {
		o.Pressure = def.Pressure
	}
	return o
}
