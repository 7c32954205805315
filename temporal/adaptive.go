package temporal

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/retime/video"
)

// ApplyAdaptiveSmoothing re-blends each frame with its already-smoothed
// predecessor at a strength chosen by consistency-score bucket. Unlike
// EnforceConsistency's bidirectional window filter, this is a causal,
// forward-only recursive filter: frame i only ever sees the smoothed frame
// i-1. Scores feed the enforcer's rolling history.
func (e *Enforcer) ApplyAdaptiveSmoothing(ctx context.Context, frames []*video.Frame) ([]*video.Frame, error) {
	if len(frames) == 0 {
		return nil, nil
	}
	for i := 1; i < len(frames); i++ {
		if !frames[0].SameShape(frames[i]) {
			return nil, fmt.Errorf("%w: frame %d differs from frame 0", video.ErrShapeMismatch, i)
		}
	}

	out := make([]*video.Frame, len(frames))
	out[0] = frames[0].Clone()

	for i := 1; i < len(frames); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		m := e.analyzePair(out[i-1], frames[i])
		e.recordScore(m.ConsistencyScore)

		strength := smoothingStrength(m.ConsistencyScore)
		blended, err := video.BlendFrames(frames[i], out[i-1], 1-strength, strength)
		if err != nil {
			return nil, err
		}
		out[i] = blended
	}

	logrus.WithFields(logrus.Fields{
		"function": "Enforcer.ApplyAdaptiveSmoothing",
		"frames":   len(frames),
	}).Info("Adaptive smoothing completed")
	return out, nil
}

// smoothingStrength maps a consistency score to a blend strength bucket.
func smoothingStrength(score float64) float64 {
	switch {
	case score < 0.7:
		return 0.5
	case score < 0.85:
		return 0.3
	default:
		return 0.1
	}
}
