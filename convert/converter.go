// Package convert resamples frame sequences to arbitrary target frame rates,
// delegating upsampling quality to multi-pass interpolation.
package convert

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/retime/video"
)

// Quality selects the interpolation effort for upsampling.
type Quality int

const (
	// QualityLow uses a single blend pass with one context frame.
	QualityLow Quality = iota
	// QualityMedium uses two passes with two context frames.
	QualityMedium
	// QualityHigh uses three passes with three context frames.
	QualityHigh
)

// String returns the quality name.
func (q Quality) String() string {
	switch q {
	case QualityLow:
		return "low"
	case QualityMedium:
		return "medium"
	case QualityHigh:
		return "high"
	default:
		return fmt.Sprintf("unknown(%d)", int(q))
	}
}

// contextFrames and blendPasses for each quality preset.
func (q Quality) params() (contextFrames, blendPasses int) {
	switch q {
	case QualityLow:
		return 1, 1
	case QualityHigh:
		return 3, 3
	default:
		return 2, 2
	}
}

// Config holds the converter's tunable parameters.
type Config struct {
	Quality Quality
	// PreserveMotion selects blended synthesis for upsampled positions;
	// when false, new frames duplicate the nearest source frame instead.
	PreserveMotion bool
	// AdaptiveInterpolation drops the context passes across high-motion
	// neighbor pairs to avoid ghosting.
	AdaptiveInterpolation bool
}

// DefaultConfig returns the converter defaults.
func DefaultConfig() Config {
	return Config{
		Quality:               QualityMedium,
		PreserveMotion:        true,
		AdaptiveInterpolation: true,
	}
}

// Result carries the converted sequence and its diagnostics.
type Result struct {
	Frames    []*video.Frame
	Method    string
	Ratio     float64
	SourceFPS float64
	TargetFPS float64
	// Quality holds the per-output-frame self-referential similarity score.
	Quality []float64
	Elapsed time.Duration
}

// Converter resamples sequences between frame rates.
type Converter struct {
	mu  sync.Mutex
	cfg Config
}

// Conversion ratios within this distance of 1 are treated as identity.
const identityRatioEpsilon = 0.01

// NewConverter validates the configuration and creates a converter.
func NewConverter(cfg Config) (*Converter, error) {
	if cfg.Quality < QualityLow || cfg.Quality > QualityHigh {
		return nil, fmt.Errorf("%w: quality %d", ErrInvalidConfig, int(cfg.Quality))
	}
	return &Converter{cfg: cfg}, nil
}

// Convert resamples frames from sourceFPS to targetFPS. Invalid rates fail
// before any frame is touched; a ratio within 1% of unity is returned as an
// identity passthrough of cloned frames.
func (c *Converter) Convert(ctx context.Context, frames []*video.Frame, sourceFPS, targetFPS float64) (*Result, error) {
	start := time.Now()

	if sourceFPS <= 0 || targetFPS <= 0 {
		return nil, fmt.Errorf("%w: source %v, target %v", ErrInvalidFrameRate, sourceFPS, targetFPS)
	}
	if len(frames) == 0 {
		return nil, ErrEmptySequence
	}
	for i := 1; i < len(frames); i++ {
		if !frames[0].SameShape(frames[i]) {
			return nil, fmt.Errorf("%w: frame %d differs from frame 0", video.ErrShapeMismatch, i)
		}
	}

	ratio := targetFPS / sourceFPS

	if math.Abs(ratio-1) < identityRatioEpsilon {
		out := make([]*video.Frame, len(frames))
		quality := make([]float64, len(frames))
		for i, f := range frames {
			out[i] = f.Clone()
			quality[i] = 1.0
		}
		return &Result{
			Frames:    out,
			Method:    "passthrough",
			Ratio:     ratio,
			SourceFPS: sourceFPS,
			TargetFPS: targetFPS,
			Quality:   quality,
			Elapsed:   time.Since(start),
		}, nil
	}

	duration := float64(len(frames)) / sourceFPS
	targetCount := int(math.Round(duration * targetFPS))
	if targetCount < 1 {
		targetCount = 1
	}

	var (
		out     []*video.Frame
		quality []float64
		method  string
		err     error
	)
	if ratio > 1 {
		method = "interpolate"
		out, quality, err = c.upsample(ctx, frames, targetCount, sourceFPS, targetFPS)
	} else {
		method = "decimate"
		out, quality, err = c.downsample(ctx, frames, targetCount, sourceFPS, targetFPS)
	}
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function":     "Converter.Convert",
		"method":       method,
		"input_count":  len(frames),
		"output_count": len(out),
		"ratio":        ratio,
		"elapsed":      time.Since(start),
	}).Info("Frame rate conversion completed")

	return &Result{
		Frames:    out,
		Method:    method,
		Ratio:     ratio,
		SourceFPS: sourceFPS,
		TargetFPS: targetFPS,
		Quality:   quality,
		Elapsed:   time.Since(start),
	}, nil
}

// Motion magnitude above which adaptive interpolation drops the context
// passes to avoid ghosting.
const upsampleMotionLimit = 5.0

// upsample synthesizes targetCount frames at evenly spaced source positions
// via multi-pass blending: an initial two-neighbor blend, then decaying
// context passes per the quality preset. With PreserveMotion disabled, new
// positions duplicate the nearest source frame instead of blending; with
// AdaptiveInterpolation enabled, high-motion neighbor pairs skip the context
// passes.
func (c *Converter) upsample(ctx context.Context, frames []*video.Frame, targetCount int, sourceFPS, targetFPS float64) ([]*video.Frame, []float64, error) {
	c.mu.Lock()
	contextFrames, blendPasses := c.cfg.Quality.params()
	preserveMotion := c.cfg.PreserveMotion
	adaptive := c.cfg.AdaptiveInterpolation
	c.mu.Unlock()

	n := len(frames)
	out := make([]*video.Frame, 0, targetCount)
	quality := make([]float64, 0, targetCount)

	for i := 0; i < targetCount; i++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		// Source position for output frame i on the shared timeline.
		pos := float64(i) * sourceFPS / targetFPS
		before := int(math.Floor(pos))
		after := before + 1
		if before >= n {
			before = n - 1
		}
		if after >= n {
			after = n - 1
		}
		w := pos - float64(before)

		var frame *video.Frame
		if before == after || w < 1e-9 {
			frame = frames[before].Clone()
		} else if !preserveMotion {
			idx := before
			if w >= 0.5 {
				idx = after
			}
			frame = frames[idx].Clone()
		} else {
			blended, err := video.BlendFrames(frames[before], frames[after], 1-w, w)
			if err != nil {
				return nil, nil, err
			}
			frame = blended

			contextPasses := blendPasses
			if adaptive && contextPasses > 1 {
				motion, err := video.MeanAbsDiff(frames[before], frames[after])
				if err != nil {
					return nil, nil, err
				}
				if motion > upsampleMotionLimit {
					contextPasses = 1
				}
			}

			for pass := 1; pass < contextPasses; pass++ {
				ctxAcc := video.NewAccumulator(frame)
				for j := 1; j <= contextFrames; j++ {
					weight := 1.0 / float64(j+1)
					if idx := before - j; idx >= 0 {
						if err := ctxAcc.Add(frames[idx], weight); err != nil {
							return nil, nil, err
						}
					}
					if idx := after + j; idx < n {
						if err := ctxAcc.Add(frames[idx], weight); err != nil {
							return nil, nil, err
						}
					}
				}
				if ctxAcc.Weight() == 0 {
					break
				}
				alpha := 0.2 / float64(pass)
				frame, err = video.BlendFrames(frame, ctxAcc.Resolve(), 1-alpha, alpha)
				if err != nil {
					return nil, nil, err
				}
			}
		}

		out = append(out, frame)
		quality = append(quality, similarityScore(frame, frames[before], frames[after]))
	}
	return out, quality, nil
}

// downsample selects the nearest source frame for each evenly spaced target
// position. No blending: a deliberate speed/simplicity tradeoff.
func (c *Converter) downsample(ctx context.Context, frames []*video.Frame, targetCount int, sourceFPS, targetFPS float64) ([]*video.Frame, []float64, error) {
	n := len(frames)
	out := make([]*video.Frame, 0, targetCount)
	quality := make([]float64, 0, targetCount)

	for i := 0; i < targetCount; i++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		pos := float64(i) * sourceFPS / targetFPS
		idx := int(math.Round(pos))
		if idx >= n {
			idx = n - 1
		}
		out = append(out, frames[idx].Clone())
		quality = append(quality, 1.0)
	}
	return out, quality, nil
}

func similarityScore(frame, before, after *video.Frame) float64 {
	simSum := 0.0
	count := 0
	for _, neighbor := range []*video.Frame{before, after} {
		mse, err := video.MSE(frame, neighbor)
		if err != nil {
			continue
		}
		simSum += 1 / (1 + mse/1000)
		count++
	}
	if count == 0 {
		return 0
	}
	q := simSum / float64(count)
	if q > 1 {
		q = 1
	}
	return q
}

// CreateSlowMotion stretches the sequence by slowdownFactor, forcing the
// high quality preset for the duration of the call and restoring the
// caller's setting afterward.
func (c *Converter) CreateSlowMotion(ctx context.Context, frames []*video.Frame, sourceFPS, slowdownFactor float64) (*Result, error) {
	if slowdownFactor <= 0 {
		return nil, fmt.Errorf("%w: slowdown factor %v", ErrInvalidFactor, slowdownFactor)
	}

	c.mu.Lock()
	saved := c.cfg.Quality
	c.cfg.Quality = QualityHigh
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.cfg.Quality = saved
		c.mu.Unlock()
	}()

	return c.Convert(ctx, frames, sourceFPS, sourceFPS*slowdownFactor)
}

// CreateTimeLapse compresses the sequence by speedupFactor. The output is
// floored at two frames so even extreme speedups keep a playable clip.
func (c *Converter) CreateTimeLapse(ctx context.Context, frames []*video.Frame, sourceFPS, speedupFactor float64) (*Result, error) {
	if speedupFactor <= 0 {
		return nil, fmt.Errorf("%w: speedup factor %v", ErrInvalidFactor, speedupFactor)
	}
	if len(frames) == 0 {
		return nil, ErrEmptySequence
	}

	targetFPS := sourceFPS / speedupFactor
	duration := float64(len(frames)) / sourceFPS
	expected := int(math.Round(duration * targetFPS))

	if expected < 2 && len(frames) >= 2 {
		start := time.Now()
		return &Result{
			Frames:    []*video.Frame{frames[0].Clone(), frames[len(frames)-1].Clone()},
			Method:    "decimate",
			Ratio:     targetFPS / sourceFPS,
			SourceFPS: sourceFPS,
			TargetFPS: targetFPS,
			Quality:   []float64{1.0, 1.0},
			Elapsed:   time.Since(start),
		}, nil
	}

	return c.Convert(ctx, frames, sourceFPS, targetFPS)
}

// Info is a pure pre-flight description of a prospective conversion.
type Info struct {
	InputCount     int
	SourceFPS      float64
	TargetFPS      float64
	Ratio          float64
	Direction      string
	ExpectedOutput int
	InputDuration  float64
	OutputDuration float64
}

// ConversionInfo reports what Convert would do for the given inputs without
// touching any frames.
func ConversionInfo(inputCount int, sourceFPS, targetFPS float64) (*Info, error) {
	if sourceFPS <= 0 || targetFPS <= 0 {
		return nil, fmt.Errorf("%w: source %v, target %v", ErrInvalidFrameRate, sourceFPS, targetFPS)
	}
	if inputCount < 0 {
		return nil, fmt.Errorf("%w: input count %d", ErrInvalidConfig, inputCount)
	}

	ratio := targetFPS / sourceFPS
	duration := float64(inputCount) / sourceFPS

	direction := "upsample"
	expected := int(math.Round(duration * targetFPS))
	switch {
	case math.Abs(ratio-1) < identityRatioEpsilon:
		direction = "identity"
		expected = inputCount
	case ratio < 1:
		direction = "downsample"
	}
	if expected < 1 && inputCount > 0 {
		expected = 1
	}

	return &Info{
		InputCount:     inputCount,
		SourceFPS:      sourceFPS,
		TargetFPS:      targetFPS,
		Ratio:          ratio,
		Direction:      direction,
		ExpectedOutput: expected,
		InputDuration:  duration,
		OutputDuration: float64(expected) / targetFPS,
	}, nil
}
