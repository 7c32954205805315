package video

import "math"

// SobelGradients computes 3×3 Sobel spatial gradients of a luminance plane.
// Border samples are edge-clamped.
func SobelGradients(lum []float64, width, height int) (gx, gy []float64) {
	gx = make([]float64, width*height)
	gy = make([]float64, width*height)

	at := func(x, y int) float64 {
		if x < 0 {
			x = 0
		} else if x >= width {
			x = width - 1
		}
		if y < 0 {
			y = 0
		} else if y >= height {
			y = height - 1
		}
		return lum[y*width+x]
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			tl := at(x-1, y-1)
			tc := at(x, y-1)
			tr := at(x+1, y-1)
			ml := at(x-1, y)
			mr := at(x+1, y)
			bl := at(x-1, y+1)
			bc := at(x, y+1)
			br := at(x+1, y+1)

			idx := y*width + x
			gx[idx] = (tr + 2*mr + br - tl - 2*ml - bl) / 8.0
			gy[idx] = (bl + 2*bc + br - tl - 2*tc - tr) / 8.0
		}
	}
	return gx, gy
}

// EdgeMagnitude returns the per-pixel Sobel gradient magnitude of a frame's
// luminance plane.
func EdgeMagnitude(f *Frame) []float64 {
	lum := f.Luminance()
	gx, gy := SobelGradients(lum, f.Width, f.Height)
	mag := make([]float64, len(lum))
	for i := range mag {
		mag[i] = math.Hypot(gx[i], gy[i])
	}
	return mag
}

// Histogram256 returns the normalized 256-bin luminance histogram of a frame.
// Bin values sum to 1 for any non-empty frame.
func Histogram256(f *Frame) [256]float64 {
	var hist [256]float64
	lum := f.Luminance()
	for _, v := range lum {
		bin := int(v)
		if bin < 0 {
			bin = 0
		} else if bin > 255 {
			bin = 255
		}
		hist[bin]++
	}
	n := float64(len(lum))
	for i := range hist {
		hist[i] /= n
	}
	return hist
}

// ChannelHistogram32 returns normalized 32-bin histograms, one per channel.
func ChannelHistogram32(f *Frame) [][32]float64 {
	hists := make([][32]float64, f.Channels)
	pixels := f.Width * f.Height
	for i := 0; i < pixels; i++ {
		for c := 0; c < f.Channels; c++ {
			bin := int(f.Pix[i*f.Channels+c]) / 8
			hists[c][bin]++
		}
	}
	for c := range hists {
		for b := range hists[c] {
			hists[c][b] /= float64(pixels)
		}
	}
	return hists
}

// BilinearSample reads a frame channel at a fractional position with
// edge-clamped bilinear interpolation.
func BilinearSample(f *Frame, x, y float64, c int) uint8 {
	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	fx := x - float64(x0)
	fy := y - float64(y0)

	p00 := float64(f.At(x0, y0, c))
	p10 := float64(f.At(x0+1, y0, c))
	p01 := float64(f.At(x0, y0+1, c))
	p11 := float64(f.At(x0+1, y0+1, c))

	top := p00*(1-fx) + p10*fx
	bottom := p01*(1-fx) + p11*fx
	v := top*(1-fy) + bottom*fy
	if v < 0 {
		v = 0
	} else if v > 255 {
		v = 255
	}
	return uint8(v + 0.5)
}

// HistogramL1 returns the L1 distance between two equally sized histograms.
func HistogramL1(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += math.Abs(a[i] - b[i])
	}
	return sum
}
