package compensate

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/retime/video"
)

// StabilizeSequence compensates every frame toward the reference frame,
// working outward from referenceIndex (negative selects the middle frame).
//
// Reference selection follows the configured ReferenceMode: chained mode
// uses each newly stabilized frame as the next reference and accumulates
// drift across the sequence; fixed mode aligns every frame against the
// original reference independently. Results are returned in input order,
// with the reference itself passed through at full confidence.
func (c *Compensator) StabilizeSequence(ctx context.Context, frames []*video.Frame, referenceIndex int) ([]*Result, error) {
	if len(frames) == 0 {
		return nil, ErrEmptySequence
	}
	if referenceIndex < 0 {
		referenceIndex = len(frames) / 2
	}
	if referenceIndex >= len(frames) {
		return nil, fmt.Errorf("%w: index %d, sequence length %d", ErrReferenceOutOfRange, referenceIndex, len(frames))
	}

	if c.cfg.Reference == ReferenceChained {
		logrus.WithFields(logrus.Fields{
			"function": "Compensator.StabilizeSequence",
			"frames":   len(frames),
		}).Warn("Chained reference mode accumulates drift across the sequence")
	}

	results := make([]*Result, len(frames))
	results[referenceIndex] = &Result{
		Frame:      frames[referenceIndex].Clone(),
		Transform:  identity(),
		Type:       c.cfg.Mode.String(),
		Confidence: 1.0,
		Applied:    false,
	}

	reference := func(prev int) *video.Frame {
		if c.cfg.Reference == ReferenceChained {
			return results[prev].Frame
		}
		return results[referenceIndex].Frame
	}

	for i := referenceIndex + 1; i < len(frames); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result, err := c.Compensate(reference(i-1), frames[i], nil)
		if err != nil {
			return nil, fmt.Errorf("stabilizing frame %d: %w", i, err)
		}
		results[i] = result
	}
	for i := referenceIndex - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result, err := c.Compensate(reference(i+1), frames[i], nil)
		if err != nil {
			return nil, fmt.Errorf("stabilizing frame %d: %w", i, err)
		}
		results[i] = result
	}

	logrus.WithFields(logrus.Fields{
		"function":  "Compensator.StabilizeSequence",
		"frames":    len(frames),
		"reference": referenceIndex,
		"mode":      c.cfg.Mode.String(),
	}).Info("Sequence stabilization completed")
	return results, nil
}
