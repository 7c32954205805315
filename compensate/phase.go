package compensate

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"

	"github.com/opd-ai/retime/video"
)

// phaseCorrelate estimates the pure translation carrying ref onto target via
// the peak of the normalized cross-power spectrum of the two luminance
// planes. Confidence derives from the peak-to-mean ratio of the correlation
// surface.
func phaseCorrelate(ref, target *video.Frame) (dx, dy, confidence float64) {
	width, height := ref.Width, ref.Height
	lumRef := ref.Luminance()
	lumTgt := target.Luminance()

	a := make([][]complex128, height)
	b := make([][]complex128, height)
	for y := 0; y < height; y++ {
		a[y] = make([]complex128, width)
		b[y] = make([]complex128, width)
		for x := 0; x < width; x++ {
			idx := y*width + x
			a[y][x] = complex(lumRef[idx], 0)
			b[y][x] = complex(lumTgt[idx], 0)
		}
	}

	fa := fft.FFT2(a)
	fb := fft.FFT2(b)

	// Cross-power spectrum of target against reference: the inverse
	// transform peaks at the content displacement.
	const eps = 1e-12
	cross := make([][]complex128, height)
	for y := 0; y < height; y++ {
		cross[y] = make([]complex128, width)
		for x := 0; x < width; x++ {
			c := fb[y][x] * cmplx.Conj(fa[y][x])
			mag := cmplx.Abs(c)
			cross[y][x] = c / complex(mag+eps, 0)
		}
	}

	surface := fft.IFFT2(cross)

	peak := 0.0
	sum := 0.0
	px, py := 0, 0
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			m := cmplx.Abs(surface[y][x])
			sum += m
			if m > peak {
				peak = m
				px, py = x, y
			}
		}
	}
	mean := sum / float64(width*height)

	// Wrap peak coordinates into signed displacements.
	dx = float64(px)
	if px > width/2 {
		dx = float64(px - width)
	}
	dy = float64(py)
	if py > height/2 {
		dy = float64(py - height)
	}

	ratio := peak / (mean + eps)
	confidence = math.Min(1.0, ratio/20.0)
	return dx, dy, confidence
}
