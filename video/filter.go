package video

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Filter is the pluggable per-frame transform surface. Corrective filters
// (denoise, deblur, color grade, tone map) are supplied by callers and
// invoked by the pipeline at configured stages; this package never
// implements them itself.
type Filter interface {
	// Apply processes a frame and returns a fresh output frame.
	Apply(frame *Frame) (*Frame, error)
	// Name returns the filter name for identification and logging.
	Name() string
}

// FilterFunc adapts a plain function to the Filter interface.
type FilterFunc struct {
	Fn    func(*Frame) (*Frame, error)
	Label string
}

// Apply invokes the wrapped function.
func (ff FilterFunc) Apply(frame *Frame) (*Frame, error) { return ff.Fn(frame) }

// Name returns the label supplied at construction.
func (ff FilterFunc) Name() string { return ff.Label }

// FilterChain applies multiple filters in sequence, preserving the
// immutable-input discipline: the input frame is never modified.
type FilterChain struct {
	filters []Filter
}

// NewFilterChain creates a chain over the given filters.
func NewFilterChain(filters ...Filter) *FilterChain {
	return &FilterChain{filters: append([]Filter(nil), filters...)}
}

// Add appends a filter to the chain.
func (fc *FilterChain) Add(f Filter) {
	fc.filters = append(fc.filters, f)
}

// Len returns the number of filters in the chain.
func (fc *FilterChain) Len() int { return len(fc.filters) }

// Apply runs the frame through every filter in order. With no filters the
// input is returned as a copy, so callers always own the result.
func (fc *FilterChain) Apply(frame *Frame) (*Frame, error) {
	if frame == nil {
		return nil, ErrNilFrame
	}
	if len(fc.filters) == 0 {
		return frame.Clone(), nil
	}

	current := frame
	for i, f := range fc.filters {
		result, err := f.Apply(current)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "FilterChain.Apply",
				"filter":   f.Name(),
				"index":    i,
				"error":    err,
			}).Error("Filter application failed")
			return nil, fmt.Errorf("filter %d (%s) failed: %w", i, f.Name(), err)
		}
		if result == nil {
			return nil, fmt.Errorf("filter %d (%s) returned %w", i, f.Name(), ErrNilFrame)
		}
		current = result
	}

	// Guard against filters that return their input unchanged.
	if current == frame {
		current = frame.Clone()
	}
	return current, nil
}
