// Package interpolate synthesizes frames at fractional sequence positions
// from multiple context frames.
package interpolate

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/retime/flow"
	"github.com/opd-ai/retime/video"
)

// BlendMode selects the synthesis strategy. The mode is bound to a strategy
// function at construction; no per-pixel dispatch happens in the hot loops.
type BlendMode int

const (
	// BlendWeighted linearly blends the immediate neighbors plus a small
	// contribution from farther context frames.
	BlendWeighted BlendMode = iota
	// BlendOpticalFlow warps both immediate neighbors along the estimated
	// motion field before blending.
	BlendOpticalFlow
	// BlendAdaptive selects between multi-context weighted blending and a
	// plain two-frame blend based on the motion between the neighbors.
	BlendAdaptive
)

// String returns the mode name.
func (m BlendMode) String() string {
	switch m {
	case BlendWeighted:
		return "weighted"
	case BlendOpticalFlow:
		return "optical_flow"
	case BlendAdaptive:
		return "adaptive"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

// Config holds the interpolator's tunable parameters.
type Config struct {
	// ContextFrames is how many extra frames each side of the immediate
	// neighbors contribute to the blend.
	ContextFrames int
	// BlendMode selects the synthesis strategy.
	BlendMode BlendMode
	// QualityThreshold flags synthesized frames whose self-referential
	// quality score falls below it.
	QualityThreshold float64
}

// DefaultConfig returns the interpolator defaults.
func DefaultConfig() Config {
	return Config{
		ContextFrames:    2,
		BlendMode:        BlendWeighted,
		QualityThreshold: 0.7,
	}
}

// Result carries the interpolated sequence plus per-frame diagnostics.
type Result struct {
	Frames []*video.Frame
	// Quality holds a self-referential similarity score per output frame;
	// it is a method-selection diagnostic, not ground truth.
	Quality []float64
	// Flagged lists output indices whose quality fell below the threshold.
	Flagged []int
	// NoOp is true when the inputs were returned unchanged.
	NoOp    bool
	Elapsed time.Duration
}

// Interpolator synthesizes frames at fractional positions.
type Interpolator struct {
	cfg      Config
	analyzer *flow.Analyzer
	synth    func(frames []*video.Frame, before, after int, w float64) (*video.Frame, error)
}

// Motion magnitude above which adaptive mode avoids multi-context blending
// to prevent ghosting.
const adaptiveMotionLimit = 5.0

// NewInterpolator validates the configuration and binds the blend strategy.
func NewInterpolator(cfg Config) (*Interpolator, error) {
	if cfg.ContextFrames < 0 {
		return nil, fmt.Errorf("%w: context frames %d", ErrInvalidConfig, cfg.ContextFrames)
	}
	if cfg.BlendMode < BlendWeighted || cfg.BlendMode > BlendAdaptive {
		return nil, fmt.Errorf("%w: blend mode %d", ErrInvalidConfig, int(cfg.BlendMode))
	}
	if cfg.QualityThreshold < 0 || cfg.QualityThreshold > 1 {
		return nil, fmt.Errorf("%w: quality threshold %v", ErrInvalidConfig, cfg.QualityThreshold)
	}

	it := &Interpolator{cfg: cfg}
	switch cfg.BlendMode {
	case BlendWeighted:
		it.synth = it.synthWeighted
	case BlendOpticalFlow:
		analyzer, err := flow.NewAnalyzer(flow.DefaultConfig())
		if err != nil {
			return nil, err
		}
		it.analyzer = analyzer
		it.synth = it.synthOpticalFlow
	case BlendAdaptive:
		it.synth = it.synthAdaptive
	}

	logrus.WithFields(logrus.Fields{
		"function":       "NewInterpolator",
		"blend_mode":     cfg.BlendMode.String(),
		"context_frames": cfg.ContextFrames,
	}).Info("Interpolator created")
	return it, nil
}

// InterpolateMulti resamples the sequence to targetCount frames at uniform
// fractional positions across the input index range. It requires at least
// two inputs and targetCount > len(frames); anything else returns the inputs
// unchanged as a documented no-op.
func (it *Interpolator) InterpolateMulti(ctx context.Context, frames []*video.Frame, targetCount int, preserveEndpoints bool) (*Result, error) {
	start := time.Now()

	if len(frames) < 2 || targetCount <= len(frames) {
		quality := make([]float64, len(frames))
		for i := range quality {
			quality[i] = 1.0
		}
		return &Result{
			Frames:  frames,
			Quality: quality,
			NoOp:    true,
			Elapsed: time.Since(start),
		}, nil
	}
	for i := 1; i < len(frames); i++ {
		if !frames[0].SameShape(frames[i]) {
			return nil, fmt.Errorf("%w: frame %d differs from frame 0", video.ErrShapeMismatch, i)
		}
	}

	n := len(frames)
	out := make([]*video.Frame, 0, targetCount)
	quality := make([]float64, 0, targetCount)
	var flagged []int

	for k := 0; k < targetCount; k++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var p float64
		if preserveEndpoints {
			p = float64(k) * float64(n-1) / float64(targetCount-1)
		} else {
			p = (float64(k) + 0.5) * float64(n-1) / float64(targetCount)
		}

		frame, q, err := it.synthesizeAt(frames, p)
		if err != nil {
			return nil, err
		}
		if q < it.cfg.QualityThreshold {
			flagged = append(flagged, len(out))
		}
		out = append(out, frame)
		quality = append(quality, q)
	}

	logrus.WithFields(logrus.Fields{
		"function":     "Interpolator.InterpolateMulti",
		"input_count":  n,
		"target_count": targetCount,
		"flagged":      len(flagged),
		"elapsed":      time.Since(start),
	}).Info("Multi-frame interpolation completed")

	return &Result{
		Frames:  out,
		Quality: quality,
		Flagged: flagged,
		Elapsed: time.Since(start),
	}, nil
}

// synthesizeAt produces the frame for fractional position p together with
// its quality score.
func (it *Interpolator) synthesizeAt(frames []*video.Frame, p float64) (*video.Frame, float64, error) {
	n := len(frames)
	before := int(math.Floor(p))
	after := int(math.Ceil(p))
	if before < 0 {
		before = 0
	}
	if after > n-1 {
		after = n - 1
	}
	w := p - float64(before)

	if before == after || w < 1e-9 {
		return frames[before].Clone(), 1.0, nil
	}

	frame, err := it.synth(frames, before, after, w)
	if err != nil {
		return nil, 0, err
	}
	q := it.scoreQuality(frame, frames[before], frames[after])
	return frame, q, nil
}

// Between synthesizes a single frame at fractional weight w between a and b
// using the bound blend strategy. w is clamped to [0, 1].
func (it *Interpolator) Between(a, b *video.Frame, w float64) (*video.Frame, error) {
	if a == nil || b == nil {
		return nil, video.ErrNilFrame
	}
	if !a.SameShape(b) {
		return nil, fmt.Errorf("%w: interpolation neighbors differ", video.ErrShapeMismatch)
	}
	if w <= 1e-9 {
		return a.Clone(), nil
	}
	if w >= 1-1e-9 {
		return b.Clone(), nil
	}
	return it.synth([]*video.Frame{a, b}, 0, 1, w)
}

// synthWeighted blends the immediate neighbors, plus a distance-decaying
// context contribution capped at 20% of the result.
func (it *Interpolator) synthWeighted(frames []*video.Frame, before, after int, w float64) (*video.Frame, error) {
	primary, err := video.BlendFrames(frames[before], frames[after], 1-w, w)
	if err != nil {
		return nil, err
	}

	if it.cfg.ContextFrames == 0 {
		return primary, nil
	}

	ctxAcc := video.NewAccumulator(frames[before])
	for i := 1; i <= it.cfg.ContextFrames; i++ {
		weight := 1.0 / float64(i+1)
		if idx := before - i; idx >= 0 {
			if err := ctxAcc.Add(frames[idx], weight); err != nil {
				return nil, err
			}
		}
		if idx := after + i; idx < len(frames) {
			if err := ctxAcc.Add(frames[idx], weight); err != nil {
				return nil, err
			}
		}
	}
	if ctxAcc.Weight() == 0 {
		return primary, nil
	}

	return video.BlendFrames(primary, ctxAcc.Resolve(), 0.8, 0.2)
}

// synthOpticalFlow warps both neighbors toward the target position along the
// estimated flow field and cross-blends them.
func (it *Interpolator) synthOpticalFlow(frames []*video.Frame, before, after int, w float64) (*video.Frame, error) {
	field, err := it.analyzer.ComputeFlow(frames[before], frames[after])
	if err != nil {
		return nil, err
	}

	a := frames[before]
	b := frames[after]
	out := &video.Frame{
		Width:    a.Width,
		Height:   a.Height,
		Channels: a.Channels,
		Pix:      make([]uint8, len(a.Pix)),
	}

	for y := 0; y < a.Height; y++ {
		for x := 0; x < a.Width; x++ {
			idx := y*a.Width + x
			u := field.FlowX[idx]
			v := field.FlowY[idx]

			// Sample each neighbor at the position the moving content
			// occupied in that frame.
			ax := float64(x) - w*u
			ay := float64(y) - w*v
			bx := float64(x) + (1-w)*u
			by := float64(y) + (1-w)*v

			for c := 0; c < a.Channels; c++ {
				va := float64(video.BilinearSample(a, ax, ay, c))
				vb := float64(video.BilinearSample(b, bx, by, c))
				blended := (1-w)*va + w*vb
				if blended < 0 {
					blended = 0
				} else if blended > 255 {
					blended = 255
				}
				out.Pix[idx*a.Channels+c] = uint8(blended + 0.5)
			}
		}
	}
	return out, nil
}

// synthAdaptive estimates motion between the neighbors; low motion uses the
// multi-context weighted blend, high motion falls back to a plain two-frame
// blend to avoid ghosting.
func (it *Interpolator) synthAdaptive(frames []*video.Frame, before, after int, w float64) (*video.Frame, error) {
	motion, err := video.MeanAbsDiff(frames[before], frames[after])
	if err != nil {
		return nil, err
	}
	if motion < adaptiveMotionLimit {
		return it.synthWeighted(frames, before, after, w)
	}
	return video.BlendFrames(frames[before], frames[after], 1-w, w)
}

// scoreQuality returns the mean similarity 1/(1+MSE/1000) of the synthesized
// frame against its immediate neighbors.
func (it *Interpolator) scoreQuality(frame, before, after *video.Frame) float64 {
	simSum := 0.0
	n := 0
	for _, neighbor := range []*video.Frame{before, after} {
		mse, err := video.MSE(frame, neighbor)
		if err != nil {
			continue
		}
		simSum += 1 / (1 + mse/1000)
		n++
	}
	if n == 0 {
		return 0
	}
	q := simSum / float64(n)
	if q > 1 {
		q = 1
	}
	return q
}

// InterpolateBetweenKeyframes spreads the keyframes across totalFrames fixed
// indices, interpolates each gap independently, and fills any index the gap
// interpolation left unresolved with a copy of the nearest resolved frame.
func (it *Interpolator) InterpolateBetweenKeyframes(ctx context.Context, keyframes []*video.Frame, totalFrames int) (*Result, error) {
	start := time.Now()

	if len(keyframes) == 0 {
		return nil, ErrNoKeyframes
	}
	if totalFrames < len(keyframes) {
		return nil, fmt.Errorf("%w: %d total frames for %d keyframes", ErrInvalidConfig, totalFrames, len(keyframes))
	}

	out := make([]*video.Frame, totalFrames)
	quality := make([]float64, totalFrames)

	// Fixed keyframe placement.
	positions := make([]int, len(keyframes))
	if len(keyframes) == 1 {
		positions[0] = 0
	} else {
		for k := range keyframes {
			positions[k] = int(math.Round(float64(k) * float64(totalFrames-1) / float64(len(keyframes)-1)))
		}
	}
	for k, pos := range positions {
		out[pos] = keyframes[k].Clone()
		quality[pos] = 1.0
	}

	// Interpolate each gap independently.
	for k := 0; k+1 < len(positions); k++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		gap := positions[k+1] - positions[k] - 1
		if gap <= 0 {
			continue
		}
		pair := []*video.Frame{keyframes[k], keyframes[k+1]}
		res, err := it.InterpolateMulti(ctx, pair, gap+2, true)
		if err != nil {
			return nil, fmt.Errorf("interpolating keyframe gap %d: %w", k, err)
		}
		for g := 0; g < gap; g++ {
			out[positions[k]+1+g] = res.Frames[g+1]
			quality[positions[k]+1+g] = res.Quality[g+1]
		}
	}

	// Nearest-neighbor fill for anything still unresolved.
	for i := range out {
		if out[i] != nil {
			continue
		}
		nearest := -1
		for d := 1; d < totalFrames; d++ {
			if i-d >= 0 && out[i-d] != nil {
				nearest = i - d
				break
			}
			if i+d < totalFrames && out[i+d] != nil {
				nearest = i + d
				break
			}
		}
		if nearest >= 0 {
			out[i] = out[nearest].Clone()
			quality[i] = quality[nearest]
		}
	}

	var flagged []int
	for i, q := range quality {
		if q < it.cfg.QualityThreshold {
			flagged = append(flagged, i)
		}
	}

	return &Result{
		Frames:  out,
		Quality: quality,
		Flagged: flagged,
		Elapsed: time.Since(start),
	}, nil
}
