// Package scan turns a capture device into a sequential stream of decoded
// texts. A Source handles one text at a time: it pauses while the handler
// runs and drops every frame captured before it resumed.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"seminar-attendance/internal/metrics"
)

// ErrSourceUnavailable is returned by Start when the device cannot be acquired.
var ErrSourceUnavailable = errors.New("scan source unavailable")

// State is the lifecycle state of a Source.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "STOPPED"
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StatePaused:
		return "PAUSED"
	}
	return "UNKNOWN"
}

// Frame is one decoded text and the time it was captured.
type Frame struct {
	Text string
	At   time.Time
}

// Capture is an acquired device. Frames is closed when the device ends.
// Close must be safe to call more than once.
type Capture interface {
	Frames() <-chan Frame
	Close() error
}

// Device can be acquired to produce frames.
type Device interface {
	ID() string
	Open(ctx context.Context) (Capture, error)
}

// Handler processes one decoded text. It runs to completion before the next
// frame is accepted and is not cancelled by Stop.
type Handler func(ctx context.Context, text string) error

// devices held by a running Source in this process
var claims sync.Map

func claim(id string) bool {
	_, loaded := claims.LoadOrStore(id, struct{}{})
	return !loaded
}

func release(id string) {
	claims.Delete(id)
}

// Source drives a Device and feeds its frames to a Handler.
type Source struct {
	device Device
	handle Handler
	guard  Guard
	logger *slog.Logger

	state atomic.Int32

	lc      sync.Mutex
	capture Capture
	cancel  context.CancelFunc
	done    chan struct{}
}

// Option configures a Source.
type Option func(*Source)

// WithGuard suppresses texts the guard has seen recently.
func WithGuard(g Guard) Option {
	return func(s *Source) { s.guard = g }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Source) { s.logger = l }
}

// NewSource creates a stopped source.
func NewSource(device Device, handle Handler, opts ...Option) *Source {
	s := &Source{device: device, handle: handle, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State reports the current lifecycle state.
func (s *Source) State() State {
	return State(s.state.Load())
}

// Done is closed when the frame loop of the current run exits. It is nil
// before the first successful Start.
func (s *Source) Done() <-chan struct{} {
	s.lc.Lock()
	defer s.lc.Unlock()
	return s.done
}

// Start acquires the device and begins delivering frames. ctx bounds the
// acquisition only; the frame loop runs until Stop or the end of the device.
// Starting a running source is a no-op. A device already held by another
// Source fails with ErrSourceUnavailable.
func (s *Source) Start(ctx context.Context) error {
	s.lc.Lock()
	defer s.lc.Unlock()
	if s.capture != nil {
		return nil
	}

	s.state.Store(int32(StateStarting))
	id := s.device.ID()
	if !claim(id) {
		s.state.Store(int32(StateStopped))
		return fmt.Errorf("%w: device %s is in use", ErrSourceUnavailable, id)
	}
	capture, err := s.device.Open(ctx)
	if err != nil {
		release(id)
		s.state.Store(int32(StateStopped))
		return fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.capture = capture
	s.cancel = cancel
	s.done = make(chan struct{})
	s.state.Store(int32(StateRunning))
	s.logger.Info("scan source started", "device", id)

	go s.run(runCtx, capture, s.done)
	return nil
}

// Stop releases the device. It is idempotent and does not wait for an
// in-flight handler.
func (s *Source) Stop() error {
	s.lc.Lock()
	defer s.lc.Unlock()
	return s.stopLocked()
}

func (s *Source) stopLocked() error {
	s.state.Store(int32(StateStopped))
	if s.capture == nil {
		return nil
	}
	s.cancel()
	err := s.capture.Close()
	release(s.device.ID())
	s.capture = nil
	s.logger.Info("scan source stopped", "device", s.device.ID())
	return err
}

func (s *Source) run(ctx context.Context, capture Capture, done chan struct{}) {
	defer close(done)
	var resumedAt time.Time
	frames := capture.Frames()
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				s.logger.Info("capture ended", "device", s.device.ID())
				s.lc.Lock()
				if s.done == done {
					_ = s.stopLocked()
				}
				s.lc.Unlock()
				return
			}
			if ctx.Err() != nil {
				return
			}
			if f.At.Before(resumedAt) {
				metrics.SuppressedFrames.WithLabelValues("paused").Inc()
				continue
			}
			if s.recentlySeen(ctx, f.Text) {
				metrics.SuppressedFrames.WithLabelValues("cooldown").Inc()
				continue
			}
			resumedAt = s.process(ctx, done, f.Text)
		}
	}
}

// process runs the handler while paused and returns the resume time.
func (s *Source) process(ctx context.Context, done chan struct{}, text string) time.Time {
	s.transition(done, StateRunning, StatePaused)
	if err := s.handle(context.WithoutCancel(ctx), text); err != nil {
		s.logger.Warn("scan handler failed", "device", s.device.ID(), "error", err)
	}
	if s.guard != nil {
		if err := s.guard.Mark(context.WithoutCancel(ctx), text); err != nil {
			s.logger.Warn("cooldown guard mark failed", "error", err)
		}
	}
	resumed := time.Now()
	s.transition(done, StatePaused, StateRunning)
	return resumed
}

// transition moves from one state to another only while the run identified by
// done is still current, so a handler outliving Stop cannot touch a later run.
func (s *Source) transition(done chan struct{}, from, to State) {
	s.lc.Lock()
	defer s.lc.Unlock()
	if s.done == done {
		s.state.CompareAndSwap(int32(from), int32(to))
	}
}

// recentlySeen fails open when the guard errors.
func (s *Source) recentlySeen(ctx context.Context, text string) bool {
	if s.guard == nil {
		return false
	}
	seen, err := s.guard.Seen(ctx, text)
	if err != nil {
		s.logger.Warn("cooldown guard check failed", "error", err)
		return false
	}
	return seen
}
