// Package compensate aligns frames to a reference by estimating and
// inverting a geometric transform, from either a supplied flow field or FFT
// phase correlation.
package compensate

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/retime/flow"
	"github.com/opd-ai/retime/video"
)

// Mode selects the transform model the compensator estimates.
type Mode int

const (
	// ModeTranslation estimates a pure 2D shift.
	ModeTranslation Mode = iota
	// ModeAffine fits a 6-parameter affine transform to the flow field.
	ModeAffine
	// ModePerspective is an explicit alias for ModeAffine with a confidence
	// penalty; a full homography solver is not implemented.
	ModePerspective
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeTranslation:
		return "translation"
	case ModeAffine:
		return "affine"
	case ModePerspective:
		return "perspective"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

// ReferenceMode selects how StabilizeSequence picks its reference frame.
type ReferenceMode int

const (
	// ReferenceFixed compensates every frame against the original reference
	// independently.
	ReferenceFixed ReferenceMode = iota
	// ReferenceChained uses each newly stabilized frame as the next
	// reference. Drift accumulates across the sequence by construction.
	ReferenceChained
)

// Config holds the compensator's tunable parameters.
type Config struct {
	Mode                Mode
	MaxShift            float64
	ConfidenceThreshold float64
	Reference           ReferenceMode
}

// DefaultConfig returns the compensator defaults.
func DefaultConfig() Config {
	return Config{
		Mode:                ModeTranslation,
		MaxShift:            50,
		ConfidenceThreshold: 0.5,
		Reference:           ReferenceFixed,
	}
}

// Result describes one compensation attempt. When confidence falls below the
// configured threshold the frame passes through unmodified and Applied is
// false; callers observe the failure mode through Confidence rather than an
// error.
type Result struct {
	Frame          *video.Frame
	Transform      [3][3]float64
	Type           string
	Confidence     float64
	ResidualMotion float64
	Applied        bool
}

// Compensator aligns target frames to references.
type Compensator struct {
	cfg Config
}

// Confidence penalty applied when perspective mode aliases to affine.
const perspectivePenalty = 0.9

// NewCompensator validates the configuration and creates a compensator.
// Perspective mode is accepted but aliased to the affine estimate; the alias
// is logged loudly here, once, rather than silently substituted per frame.
func NewCompensator(cfg Config) (*Compensator, error) {
	if cfg.Mode < ModeTranslation || cfg.Mode > ModePerspective {
		return nil, fmt.Errorf("%w: mode %d", ErrInvalidMode, int(cfg.Mode))
	}
	if cfg.MaxShift <= 0 {
		return nil, fmt.Errorf("%w: max shift %v", ErrInvalidConfig, cfg.MaxShift)
	}
	if cfg.ConfidenceThreshold < 0 || cfg.ConfidenceThreshold > 1 {
		return nil, fmt.Errorf("%w: confidence threshold %v", ErrInvalidConfig, cfg.ConfidenceThreshold)
	}

	if cfg.Mode == ModePerspective {
		logrus.WithFields(logrus.Fields{
			"function": "NewCompensator",
			"mode":     cfg.Mode.String(),
			"penalty":  perspectivePenalty,
		}).Warn("Perspective compensation aliases to the affine estimate; confidence is penalized accordingly")
	}

	return &Compensator{cfg: cfg}, nil
}

// Compensate aligns target to reference. The flow field is optional: with a
// field the estimate comes from flow statistics, without one from phase
// correlation.
func (c *Compensator) Compensate(reference, target *video.Frame, field *flow.Field) (*Result, error) {
	if reference == nil || target == nil {
		return nil, video.ErrNilFrame
	}
	if !reference.SameShape(target) {
		return nil, fmt.Errorf("%w: reference %dx%dx%d vs target %dx%dx%d", video.ErrShapeMismatch,
			reference.Width, reference.Height, reference.Channels,
			target.Width, target.Height, target.Channels)
	}

	var transform [3][3]float64
	var confidence float64

	switch c.cfg.Mode {
	case ModeTranslation:
		transform, confidence = c.estimateTranslation(reference, target, field)
	case ModeAffine:
		transform, confidence = c.estimateAffine(reference, target, field)
	case ModePerspective:
		transform, confidence = c.estimateAffine(reference, target, field)
		confidence *= perspectivePenalty
	}

	c.clampShift(&transform)

	if confidence < c.cfg.ConfidenceThreshold {
		residual, _ := video.MeanAbsDiff(reference, target)
		logrus.WithFields(logrus.Fields{
			"function":   "Compensator.Compensate",
			"confidence": confidence,
			"threshold":  c.cfg.ConfidenceThreshold,
		}).Debug("Confidence below threshold; passing frame through")
		return &Result{
			Frame:          target.Clone(),
			Transform:      identity(),
			Type:           c.cfg.Mode.String(),
			Confidence:     confidence,
			ResidualMotion: residual / 255,
			Applied:        false,
		}, nil
	}

	compensated := warp(target, transform)
	residual, _ := video.MeanAbsDiff(reference, compensated)

	return &Result{
		Frame:          compensated,
		Transform:      transform,
		Type:           c.cfg.Mode.String(),
		Confidence:     confidence,
		ResidualMotion: residual / 255,
		Applied:        true,
	}, nil
}

// estimateTranslation returns a translation transform from flow medians or
// phase correlation.
func (c *Compensator) estimateTranslation(reference, target *video.Frame, field *flow.Field) ([3][3]float64, float64) {
	var dx, dy, confidence float64
	if field != nil {
		dx, dy = field.MedianShift()
		confidence = 1 / (1 + field.MagnitudeStdDev()/10)
	} else {
		dx, dy, confidence = phaseCorrelate(reference, target)
	}
	t := identity()
	t[0][2] = dx
	t[1][2] = dy
	return t, confidence
}

// estimateAffine fits target coords = A·(x, y) + t by least squares over
// stride-sampled flow vectors. Without a field it degrades to the phase
// correlation translation; a degenerate sample set degrades to the flow
// median translation.
func (c *Compensator) estimateAffine(reference, target *video.Frame, field *flow.Field) ([3][3]float64, float64) {
	if field == nil {
		return c.estimateTranslation(reference, target, nil)
	}

	vectors := field.Vectors
	if len(vectors) == 0 {
		vectors = resampleVectors(field, 16)
	}
	if len(vectors) < 3 {
		return c.estimateTranslation(reference, target, field)
	}

	// Shared normal-equations matrix for both component fits.
	var sxx, sxy, sx, syy, sy, n float64
	var bx [3]float64
	var by [3]float64
	for _, v := range vectors {
		x, y := float64(v.X), float64(v.Y)
		sxx += x * x
		sxy += x * y
		syy += y * y
		sx += x
		sy += y
		n++
		bx[0] += x * v.DX
		bx[1] += y * v.DX
		bx[2] += v.DX
		by[0] += x * v.DY
		by[1] += y * v.DY
		by[2] += v.DY
	}
	m := [3][3]float64{
		{sxx, sxy, sx},
		{sxy, syy, sy},
		{sx, sy, n},
	}

	cx, okX := solve3(m, bx)
	cy, okY := solve3(m, by)
	if !okX || !okY {
		return c.estimateTranslation(reference, target, field)
	}

	confidence := 1 / (1 + field.MagnitudeStdDev()/10)
	t := [3][3]float64{
		{1 + cx[0], cx[1], cx[2]},
		{cy[0], 1 + cy[1], cy[2]},
		{0, 0, 1},
	}
	return t, confidence
}

// clampShift bounds the translation component to ±MaxShift.
func (c *Compensator) clampShift(t *[3][3]float64) {
	t[0][2] = math.Max(-c.cfg.MaxShift, math.Min(c.cfg.MaxShift, t[0][2]))
	t[1][2] = math.Max(-c.cfg.MaxShift, math.Min(c.cfg.MaxShift, t[1][2]))
}

// warp samples the target along the transform with edge-clamped bilinear
// interpolation, producing a fresh frame aligned to the reference grid.
func warp(target *video.Frame, t [3][3]float64) *video.Frame {
	out := &video.Frame{
		Width:    target.Width,
		Height:   target.Height,
		Channels: target.Channels,
		Pix:      make([]uint8, len(target.Pix)),
	}
	for y := 0; y < target.Height; y++ {
		for x := 0; x < target.Width; x++ {
			fx := float64(x)
			fy := float64(y)
			srcX := t[0][0]*fx + t[0][1]*fy + t[0][2]
			srcY := t[1][0]*fx + t[1][1]*fy + t[1][2]
			for ch := 0; ch < target.Channels; ch++ {
				out.Pix[(y*target.Width+x)*target.Channels+ch] = video.BilinearSample(target, srcX, srcY, ch)
			}
		}
	}
	return out
}

// resampleVectors builds a stride grid of vectors from the dense arrays when
// the field carries no sampled diagnostics.
func resampleVectors(field *flow.Field, stride int) []flow.MotionVector {
	var vectors []flow.MotionVector
	for y := 0; y < field.Height; y += stride {
		for x := 0; x < field.Width; x += stride {
			idx := y*field.Width + x
			vectors = append(vectors, flow.MotionVector{
				X: x, Y: y,
				DX: field.FlowX[idx], DY: field.FlowY[idx],
				Magnitude: field.Magnitude[idx],
				Angle:     field.Angle[idx],
			})
		}
	}
	return vectors
}

// solve3 solves a 3×3 linear system by Gaussian elimination with partial
// pivoting. ok is false for singular systems.
func solve3(m [3][3]float64, b [3]float64) (x [3]float64, ok bool) {
	const eps = 1e-10
	var a [3][4]float64
	for i := 0; i < 3; i++ {
		copy(a[i][:3], m[i][:])
		a[i][3] = b[i]
	}
	for col := 0; col < 3; col++ {
		pivot := col
		for row := col + 1; row < 3; row++ {
			if math.Abs(a[row][col]) > math.Abs(a[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(a[pivot][col]) < eps {
			return x, false
		}
		a[col], a[pivot] = a[pivot], a[col]
		for row := col + 1; row < 3; row++ {
			factor := a[row][col] / a[col][col]
			for k := col; k < 4; k++ {
				a[row][k] -= factor * a[col][k]
			}
		}
	}
	for i := 2; i >= 0; i-- {
		x[i] = a[i][3]
		for j := i + 1; j < 3; j++ {
			x[i] -= a[i][j] * x[j]
		}
		x[i] /= a[i][i]
	}
	return x, true
}

func identity() [3][3]float64 {
	return [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}
