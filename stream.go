package retime

import (
	"context"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/retime/convert"
	"github.com/opd-ai/retime/video"
)

// ProcessStream runs the pipeline over a frame channel with a bounded
// sliding window instead of materializing the whole clip: at most one
// temporal window of frames is held at a time. Each frame is smoothed once
// its lookahead neighbors have arrived, then retimed against its smoothed
// predecessor. Scene cuts detected on the trailing pair reset the window so
// no blending crosses a boundary.
//
// The output channel is closed when the input drains or the context is
// canceled; cancellation is checked between frames.
func (p *Pipeline) ProcessStream(ctx context.Context, in <-chan *video.Frame, out chan<- *video.Frame, sourceFPS, targetFPS float64) error {
	defer close(out)

	if sourceFPS <= 0 || targetFPS <= 0 {
		return fmt.Errorf("%w: source %v, target %v", convert.ErrInvalidFrameRate, sourceFPS, targetFPS)
	}

	half := p.opts.Temporal.WindowSize / 2
	step := sourceFPS / targetFPS

	s := &streamState{
		pipeline: p,
		ctx:      ctx,
		out:      out,
		half:     half,
		step:     step,
		latest:   -1,
		cuts:     make(map[int]bool),
	}

	frameCount := 0
	for {
		var frame *video.Frame
		var ok bool
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok = <-in:
		}
		if !ok {
			break
		}
		if frame == nil {
			return video.ErrNilFrame
		}

		filtered, err := p.pre.Apply(frame)
		if err != nil {
			return fmt.Errorf("pre-filters at frame %d: %w", frameCount, err)
		}
		if err := s.push(filtered); err != nil {
			return err
		}
		frameCount++
	}

	if err := s.flush(); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"function":     "Pipeline.ProcessStream",
		"input_count":  frameCount,
		"output_count": s.emitted,
	}).Info("Streaming run completed")
	return nil
}

// streamState carries the bounded window and retiming clock of one
// ProcessStream run.
type streamState struct {
	pipeline *Pipeline
	ctx      context.Context
	out      chan<- *video.Frame

	half int
	step float64

	// Bounded raw-frame window. bufStart is the global index of buf[0].
	buf      []*video.Frame
	bufStart int
	latest   int // global index of the newest buffered frame; -1 before any
	segStart int // global index where the current scene segment begins
	smooth   int // next global index to smooth

	// cuts marks global indices that start a new segment.
	cuts map[int]bool

	// Retiming state: the last smoothed frame and the output clock.
	prevSmoothed *video.Frame
	prevIndex    int
	nextOut      int
	emitted      int
}

// push admits one pre-filtered frame, detects cuts against the trailing
// frame, smooths every index whose lookahead is satisfied, and trims the
// window.
func (s *streamState) push(frame *video.Frame) error {
	idx := s.latest + 1

	if len(s.buf) > 0 {
		prev := s.buf[len(s.buf)-1]
		changes, err := s.pipeline.detector.DetectChanges(s.ctx, []*video.Frame{prev, frame}, 1)
		if err != nil {
			return fmt.Errorf("cut detection at frame %d: %w", idx, err)
		}
		if len(changes) > 0 {
			// Finish the old segment before the boundary frame enters the
			// window.
			if err := s.smoothThrough(idx - 1); err != nil {
				return err
			}
			s.cuts[idx] = true
			s.segStart = idx
		}
	}

	s.buf = append(s.buf, frame)
	s.latest = idx

	// Smooth every frame whose full lookahead is buffered.
	for s.smooth+s.half <= s.latest {
		if err := s.smoothOne(s.smooth); err != nil {
			return err
		}
		s.smooth++
	}

	s.trim()
	return nil
}

// flush smooths and emits everything still pending at end of input.
func (s *streamState) flush() error {
	if s.latest < 0 {
		return nil
	}
	if err := s.smoothThrough(s.latest); err != nil {
		return err
	}
	// Emit the tail positions at or beyond the final frame, clamped to it,
	// so the stream's output count matches the batch converter's.
	expected := int(math.Round(float64(s.latest+1) / s.step))
	for s.nextOut < expected {
		if err := s.emit(s.prevSmoothed.Clone()); err != nil {
			return err
		}
		s.nextOut++
	}
	return nil
}

// smoothThrough drains the smoother up to and including global index end.
func (s *streamState) smoothThrough(end int) error {
	for s.smooth <= end {
		if err := s.smoothOne(s.smooth); err != nil {
			return err
		}
		s.smooth++
	}
	s.trim()
	return nil
}

// smoothOne blends global index i against its buffered window, clamped to
// the current segment, and hands the result to the retimer.
func (s *streamState) smoothOne(i int) error {
	if err := s.ctx.Err(); err != nil {
		return err
	}

	lo := i - s.half
	if lo < s.segStart {
		lo = s.segStart
	}
	if lo < s.bufStart {
		lo = s.bufStart
	}
	hi := i + s.half
	if hi > s.latest {
		hi = s.latest
	}

	window := s.buf[lo-s.bufStart : hi-s.bufStart+1]
	smoothed := window[i-lo]
	if s.pipeline.opts.EnforceConsistency && len(window) > 1 {
		result, err := s.pipeline.enforcer.EnforceConsistency(s.ctx, window)
		if err != nil {
			return fmt.Errorf("smoothing frame %d: %w", i, err)
		}
		smoothed = result[i-lo]
	} else {
		smoothed = smoothed.Clone()
	}

	return s.retime(smoothed, i)
}

// retime emits every output position that falls between the previous
// smoothed frame and this one. Pairs straddling a cut copy the nearest
// neighbor instead of blending.
func (s *streamState) retime(frame *video.Frame, index int) error {
	if s.prevSmoothed == nil {
		s.prevSmoothed = frame
		s.prevIndex = index
		return nil
	}

	for {
		pos := float64(s.nextOut) * s.step
		if pos >= float64(index) {
			break
		}
		if pos < float64(s.prevIndex) {
			s.nextOut++
			continue
		}
		w := pos - float64(s.prevIndex)

		var synthesized *video.Frame
		var err error
		if s.cuts[index] && index == s.prevIndex+1 {
			// Never blend across a scene boundary.
			if w < 0.5 {
				synthesized = s.prevSmoothed.Clone()
			} else {
				synthesized = frame.Clone()
			}
		} else {
			synthesized, err = s.pipeline.interp.Between(s.prevSmoothed, frame, w/float64(index-s.prevIndex))
			if err != nil {
				return fmt.Errorf("interpolating output %d: %w", s.nextOut, err)
			}
		}
		if err := s.emit(synthesized); err != nil {
			return err
		}
		s.nextOut++
	}

	delete(s.cuts, index)
	s.prevSmoothed = frame
	s.prevIndex = index
	return nil
}

// emit applies the post-filters and sends one frame downstream.
func (s *streamState) emit(frame *video.Frame) error {
	result, err := s.pipeline.post.Apply(frame)
	if err != nil {
		return fmt.Errorf("post-filters: %w", err)
	}
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	case s.out <- result:
	}
	s.emitted++
	return nil
}

// trim drops buffered frames no longer reachable by any future window.
func (s *streamState) trim() {
	keepFrom := s.smooth - s.half
	if keepFrom < s.segStart-s.half {
		keepFrom = s.segStart - s.half
	}
	if keepFrom <= s.bufStart {
		return
	}
	if keepFrom > s.latest+1 {
		keepFrom = s.latest + 1
	}
	s.buf = append([]*video.Frame(nil), s.buf[keepFrom-s.bufStart:]...)
	s.bufStart = keepFrom
}
