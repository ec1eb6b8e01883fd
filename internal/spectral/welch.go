package spectral

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Spectrum is a one-sided spectral density on a uniform frequency grid.
// A channel that could not be estimated has every Density value NaN.
type Spectrum struct {
	Freq    []float64 // Hz
	Density []float64 // units²/Hz
}

// Missing reports whether the spectrum carries no estimate.
func (s Spectrum) Missing() bool {
	for _, d := range s.Density {
		if !math.IsNaN(d) {
			return false
		}
	}
	return true
}

// Integrate sums the density over the grid with the rectangle rule, which
// on the Welch grid recovers the tapered variance exactly.
func (s Spectrum) Integrate() float64 {
	if len(s.Freq) < 2 {
		return math.NaN()
	}
	df := s.Freq[1] - s.Freq[0]
	sum := 0.0
	for _, d := range s.Density {
		sum += d
	}
	return sum * df
}

// CrossSpectrum is a one-sided cross spectral density.
type CrossSpectrum struct {
	Freq []float64
	Co   []float64 // cospectrum, real part
	Quad []float64 // quadrature spectrum, imaginary part
}

// Cospectrum returns the real part as a Spectrum.
func (c CrossSpectrum) Cospectrum() Spectrum {
	return Spectrum{Freq: c.Freq, Density: c.Co}
}

// Hamming returns the symmetric Hamming taper of length n.
func Hamming(n int) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	for i := range w {
		w[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

// Welch estimates the power spectral density of x.
func Welch(x []float64, p Params) Spectrum {
	return CrossWelch(x, x, p).Cospectrum()
}

// CrossWelch estimates the cross spectral density of x and y, which must
// have the same length. Segments are Hamming tapered, overlap by half and
// have their mean removed. A window shorter than one segment is a single
// segment of the window's length. Any NaN in the input yields a missing
// estimate.
func CrossWelch(x, y []float64, p Params) CrossSpectrum {
	n := len(x)
	if len(y) < n {
		n = len(y)
	}
	seg := p.SegmentLength
	if seg <= 0 || seg > n {
		seg = n
	}
	if seg < 2 || p.Rate <= 0 {
		return CrossSpectrum{}
	}
	nf := seg/2 + 1
	out := CrossSpectrum{
		Freq: make([]float64, nf),
		Co:   make([]float64, nf),
		Quad: make([]float64, nf),
	}
	for k := range out.Freq {
		out.Freq[k] = float64(k) * p.Rate / float64(seg)
	}
	if hasNaN(x[:n]) || hasNaN(y[:n]) {
		for k := range out.Co {
			out.Co[k], out.Quad[k] = math.NaN(), math.NaN()
		}
		return out
	}

	win := Hamming(seg)
	wss := 0.0
	for _, w := range win {
		wss += w * w
	}
	fft := fourier.NewFFT(seg)
	bx := make([]float64, seg)
	by := make([]float64, seg)
	cx := make([]complex128, nf)
	cy := make([]complex128, nf)
	same := &x[0] == &y[0]

	step := seg / 2
	segments := 0
	for start := 0; start+seg <= n; start += step {
		taper(bx, x[start:start+seg], win)
		cx = fft.Coefficients(cx, bx)
		if same {
			copy(cy, cx)
		} else {
			taper(by, y[start:start+seg], win)
			cy = fft.Coefficients(cy, by)
		}
		for k := range cx {
			c := cmplx.Conj(cx[k]) * cy[k]
			out.Co[k] += real(c)
			out.Quad[k] += imag(c)
		}
		segments++
		if step == 0 {
			break
		}
	}

	scale := 1 / (p.Rate * wss * float64(segments))
	for k := range out.Co {
		s := scale
		if k != 0 && !(seg%2 == 0 && k == nf-1) {
			s *= 2
		}
		out.Co[k] *= s
		out.Quad[k] *= s
	}
	return out
}

func taper(dst, src, win []float64) {
	m := 0.0
	for _, v := range src {
		m += v
	}
	m /= float64(len(src))
	for i, v := range src {
		dst[i] = (v - m) * win[i]
	}
}

func hasNaN(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}
