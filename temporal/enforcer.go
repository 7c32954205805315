// Package temporal reduces flicker through windowed temporal blending and
// produces per-pair consistency diagnostics.
package temporal

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/retime/video"
)

// Config holds the enforcer's tunable parameters.
type Config struct {
	// WindowSize is the temporal window span; each frame blends with
	// ⌊WindowSize/2⌋ neighbors on each side.
	WindowSize int
	// TemporalWeight and SpatialWeight balance the window average against
	// the original frame. They are normalized before use.
	TemporalWeight float64
	SpatialWeight  float64
	// FlickerThreshold drives the diagnostic recommendations.
	FlickerThreshold float64
}

// DefaultConfig returns the enforcer defaults.
func DefaultConfig() Config {
	return Config{
		WindowSize:       5,
		TemporalWeight:   0.3,
		SpatialWeight:    0.7,
		FlickerThreshold: 10.0,
	}
}

// Enforcer applies temporal consistency filtering over frame windows.
//
// It keeps a bounded ring of recent consistency scores as rolling
// diagnostics for the adaptive smoothing path.
type Enforcer struct {
	cfg Config

	mu           sync.Mutex
	scoreHistory []float64
	scoreNext    int
	scoreCount   int
}

// Capacity of the rolling consistency-score history.
const scoreHistorySize = 32

// NewEnforcer validates the configuration and creates an enforcer.
func NewEnforcer(cfg Config) (*Enforcer, error) {
	if cfg.WindowSize < 1 {
		return nil, fmt.Errorf("%w: window size %d", ErrInvalidConfig, cfg.WindowSize)
	}
	if cfg.TemporalWeight < 0 || cfg.SpatialWeight < 0 || cfg.TemporalWeight+cfg.SpatialWeight == 0 {
		return nil, fmt.Errorf("%w: weights %v/%v", ErrInvalidConfig, cfg.TemporalWeight, cfg.SpatialWeight)
	}
	return &Enforcer{
		cfg:          cfg,
		scoreHistory: make([]float64, scoreHistorySize),
	}, nil
}

// EnforceConsistency blends each frame with a Gaussian-weighted temporal
// window of its neighbors. The output has the same length and per-frame
// shape as the input; boundary frames use edge-clamped truncated windows.
func (e *Enforcer) EnforceConsistency(ctx context.Context, frames []*video.Frame) ([]*video.Frame, error) {
	if len(frames) == 0 {
		return nil, nil
	}
	for i := 1; i < len(frames); i++ {
		if !frames[0].SameShape(frames[i]) {
			return nil, fmt.Errorf("%w: frame %d differs from frame 0", video.ErrShapeMismatch, i)
		}
	}
	if len(frames) == 1 {
		return []*video.Frame{frames[0].Clone()}, nil
	}

	half := e.cfg.WindowSize / 2
	sigma := float64(e.cfg.WindowSize) / 4.0
	if sigma <= 0 {
		sigma = 0.5
	}
	norm := e.cfg.TemporalWeight + e.cfg.SpatialWeight
	temporalW := e.cfg.TemporalWeight / norm
	spatialW := e.cfg.SpatialWeight / norm

	out := make([]*video.Frame, len(frames))
	for i := range frames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		acc := video.NewAccumulator(frames[i])
		for j := i - half; j <= i+half; j++ {
			k := j
			if k < 0 {
				k = 0
			} else if k >= len(frames) {
				k = len(frames) - 1
			}
			d := float64(j - i)
			w := math.Exp(-d * d / (2 * sigma * sigma))
			if err := acc.Add(frames[k], w); err != nil {
				return nil, err
			}
		}
		windowAvg := acc.Resolve()

		blended, err := video.BlendFrames(windowAvg, frames[i], temporalW, spatialW)
		if err != nil {
			return nil, err
		}
		out[i] = blended
	}

	logrus.WithFields(logrus.Fields{
		"function": "Enforcer.EnforceConsistency",
		"frames":   len(frames),
		"window":   e.cfg.WindowSize,
	}).Info("Temporal consistency enforcement completed")
	return out, nil
}

// recordScore pushes a consistency score into the bounded rolling history.
func (e *Enforcer) recordScore(score float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scoreHistory[e.scoreNext] = score
	e.scoreNext = (e.scoreNext + 1) % len(e.scoreHistory)
	if e.scoreCount < len(e.scoreHistory) {
		e.scoreCount++
	}
}

// RecentScores returns a copy of the rolling consistency-score history,
// oldest first.
func (e *Enforcer) RecentScores() []float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	scores := make([]float64, 0, e.scoreCount)
	start := e.scoreNext - e.scoreCount
	for i := 0; i < e.scoreCount; i++ {
		idx := (start + i + len(e.scoreHistory)) % len(e.scoreHistory)
		scores = append(scores, e.scoreHistory[idx])
	}
	return scores
}
