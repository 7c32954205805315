// Package video provides the shared pixel-buffer representation and the
// per-pixel numeric kernels used by every stage of the retime pipeline.
//
// Frames are treated as immutable once produced: every stage allocates a
// fresh output buffer rather than mutating its inputs in place. This is what
// makes the per-frame and per-pair operations safe to run concurrently.
package video

import (
	"fmt"
)

// Frame is an H×W×C 8-bit sample buffer in row-major interleaved layout.
// Channels is 1 (luminance) or 3 (RGB).
type Frame struct {
	Width    int
	Height   int
	Channels int
	Pix      []uint8
}

// NewFrame allocates a zeroed frame with the given dimensions.
func NewFrame(width, height, channels int) (*Frame, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	if channels != 1 && channels != 3 {
		return nil, fmt.Errorf("%w: %d channels", ErrInvalidDimensions, channels)
	}
	return &Frame{
		Width:    width,
		Height:   height,
		Channels: channels,
		Pix:      make([]uint8, width*height*channels),
	}, nil
}

// NewFrameFilled allocates a frame with every sample set to value.
func NewFrameFilled(width, height, channels int, value uint8) (*Frame, error) {
	f, err := NewFrame(width, height, channels)
	if err != nil {
		return nil, err
	}
	for i := range f.Pix {
		f.Pix[i] = value
	}
	return f, nil
}

// Clone returns a deep copy of the frame.
func (f *Frame) Clone() *Frame {
	return &Frame{
		Width:    f.Width,
		Height:   f.Height,
		Channels: f.Channels,
		Pix:      append([]uint8(nil), f.Pix...),
	}
}

// SameShape reports whether two frames have identical dimensions.
func (f *Frame) SameShape(other *Frame) bool {
	if f == nil || other == nil {
		return false
	}
	return f.Width == other.Width && f.Height == other.Height && f.Channels == other.Channels
}

// At returns the sample at (x, y) in channel c. Coordinates are clamped to
// the frame bounds, so edge-adjacent kernel taps never index out of range.
func (f *Frame) At(x, y, c int) uint8 {
	if x < 0 {
		x = 0
	} else if x >= f.Width {
		x = f.Width - 1
	}
	if y < 0 {
		y = 0
	} else if y >= f.Height {
		y = f.Height - 1
	}
	return f.Pix[(y*f.Width+x)*f.Channels+c]
}

// SetAt writes the sample at (x, y) in channel c. Intended for building
// frames before they enter the pipeline; stages never mutate inputs.
func (f *Frame) SetAt(x, y, c int, v uint8) {
	if x < 0 || x >= f.Width || y < 0 || y >= f.Height || c < 0 || c >= f.Channels {
		return
	}
	f.Pix[(y*f.Width+x)*f.Channels+c] = v
}

// Luminance derives a float64 luminance plane. Three-channel frames use
// BT.601 weights; single-channel frames copy their samples.
func (f *Frame) Luminance() []float64 {
	lum := make([]float64, f.Width*f.Height)
	if f.Channels == 1 {
		for i, p := range f.Pix {
			lum[i] = float64(p)
		}
		return lum
	}
	for i := 0; i < f.Width*f.Height; i++ {
		r := float64(f.Pix[i*3])
		g := float64(f.Pix[i*3+1])
		b := float64(f.Pix[i*3+2])
		lum[i] = 0.299*r + 0.587*g + 0.114*b
	}
	return lum
}

// MeanBrightness returns the average luminance of the frame.
func (f *Frame) MeanBrightness() float64 {
	lum := f.Luminance()
	sum := 0.0
	for _, v := range lum {
		sum += v
	}
	return sum / float64(len(lum))
}

// MeanAbsDiff returns the mean absolute per-sample difference between two
// equally shaped frames.
func MeanAbsDiff(a, b *Frame) (float64, error) {
	if a == nil || b == nil {
		return 0, ErrNilFrame
	}
	if !a.SameShape(b) {
		return 0, fmt.Errorf("%w: %dx%dx%d vs %dx%dx%d", ErrShapeMismatch,
			a.Width, a.Height, a.Channels, b.Width, b.Height, b.Channels)
	}
	sum := 0.0
	for i := range a.Pix {
		d := int(a.Pix[i]) - int(b.Pix[i])
		if d < 0 {
			d = -d
		}
		sum += float64(d)
	}
	return sum / float64(len(a.Pix)), nil
}

// MSE returns the mean squared per-sample difference between two equally
// shaped frames.
func MSE(a, b *Frame) (float64, error) {
	if a == nil || b == nil {
		return 0, ErrNilFrame
	}
	if !a.SameShape(b) {
		return 0, fmt.Errorf("%w: %dx%dx%d vs %dx%dx%d", ErrShapeMismatch,
			a.Width, a.Height, a.Channels, b.Width, b.Height, b.Channels)
	}
	sum := 0.0
	for i := range a.Pix {
		d := float64(a.Pix[i]) - float64(b.Pix[i])
		sum += d * d
	}
	return sum / float64(len(a.Pix)), nil
}

// BlendFrames returns wa·a + wb·b per sample, clamped to [0, 255].
func BlendFrames(a, b *Frame, wa, wb float64) (*Frame, error) {
	if a == nil || b == nil {
		return nil, ErrNilFrame
	}
	if !a.SameShape(b) {
		return nil, fmt.Errorf("%w: blend inputs differ", ErrShapeMismatch)
	}
	out := &Frame{Width: a.Width, Height: a.Height, Channels: a.Channels, Pix: make([]uint8, len(a.Pix))}
	for i := range a.Pix {
		v := wa*float64(a.Pix[i]) + wb*float64(b.Pix[i])
		out.Pix[i] = clampU8(v)
	}
	return out, nil
}

// Accumulator builds a weighted average over an arbitrary number of frames
// without intermediate quantization.
type Accumulator struct {
	width    int
	height   int
	channels int
	sum      []float64
	weight   float64
}

// NewAccumulator creates an accumulator shaped like the prototype frame.
func NewAccumulator(prototype *Frame) *Accumulator {
	return &Accumulator{
		width:    prototype.Width,
		height:   prototype.Height,
		channels: prototype.Channels,
		sum:      make([]float64, len(prototype.Pix)),
	}
}

// Add accumulates frame with the given weight. Mismatched shapes are
// rejected so a bad window never corrupts the running sum.
func (ac *Accumulator) Add(f *Frame, w float64) error {
	if f == nil {
		return ErrNilFrame
	}
	if f.Width != ac.width || f.Height != ac.height || f.Channels != ac.channels {
		return fmt.Errorf("%w: accumulator is %dx%dx%d", ErrShapeMismatch, ac.width, ac.height, ac.channels)
	}
	for i, p := range f.Pix {
		ac.sum[i] += w * float64(p)
	}
	ac.weight += w
	return nil
}

// Weight returns the total accumulated weight.
func (ac *Accumulator) Weight() float64 { return ac.weight }

// Resolve quantizes the normalized accumulation into a fresh frame.
// A zero total weight resolves to a zeroed frame rather than dividing by zero.
func (ac *Accumulator) Resolve() *Frame {
	out := &Frame{Width: ac.width, Height: ac.height, Channels: ac.channels, Pix: make([]uint8, len(ac.sum))}
	if ac.weight == 0 {
		return out
	}
	inv := 1.0 / ac.weight
	for i, s := range ac.sum {
		out.Pix[i] = clampU8(s * inv)
	}
	return out
}

func clampU8(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v + 0.5)
}
