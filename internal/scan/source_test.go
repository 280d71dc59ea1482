package scan

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chanDevice struct {
	id      string
	frames  chan Frame
	openErr error
	closed  atomic.Int32
}

func newChanDevice(id string) *chanDevice {
	return &chanDevice{id: id, frames: make(chan Frame, 16)}
}

func (d *chanDevice) ID() string { return d.id }

func (d *chanDevice) Open(context.Context) (Capture, error) {
	if d.openErr != nil {
		return nil, d.openErr
	}
	return d, nil
}

func (d *chanDevice) Frames() <-chan Frame { return d.frames }

func (d *chanDevice) Close() error {
	d.closed.Add(1)
	return nil
}

func (d *chanDevice) emit(text string) {
	d.frames <- Frame{Text: text, At: time.Now()}
}

func waitState(t *testing.T, s *Source, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return s.State() == want }, time.Second, time.Millisecond,
		"state %s, want %s", s.State(), want)
}

func recvText(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case text := <-ch:
		return text
	case <-time.After(time.Second):
		t.Fatal("handler not called")
		return ""
	}
}

func TestSourceLifecycle(t *testing.T) {
	dev := newChanDevice(t.Name())
	src := NewSource(dev, func(context.Context, string) error { return nil })

	assert.Equal(t, StateStopped, src.State())
	require.NoError(t, src.Stop(), "stop before start")

	require.NoError(t, src.Start(context.Background()))
	assert.Equal(t, StateRunning, src.State())
	require.NoError(t, src.Start(context.Background()), "start while running")

	require.NoError(t, src.Stop())
	require.NoError(t, src.Stop())
	assert.Equal(t, StateStopped, src.State())
	assert.Equal(t, int32(1), dev.closed.Load())

	select {
	case <-src.Done():
	case <-time.After(time.Second):
		t.Fatal("frame loop did not exit")
	}
}

func TestSourceOpenFailure(t *testing.T) {
	dev := newChanDevice(t.Name())
	dev.openErr = errors.New("permission denied")
	src := NewSource(dev, func(context.Context, string) error { return nil })

	err := src.Start(context.Background())
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.Equal(t, StateStopped, src.State())

	dev.openErr = nil
	require.NoError(t, src.Start(context.Background()), "claim released after failure")
	require.NoError(t, src.Stop())
}

func TestSourceExclusiveDevice(t *testing.T) {
	dev := newChanDevice(t.Name())
	noop := func(context.Context, string) error { return nil }
	first := NewSource(dev, noop)
	second := NewSource(dev, noop)

	require.NoError(t, first.Start(context.Background()))
	err := second.Start(context.Background())
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.Equal(t, StateStopped, second.State())

	require.NoError(t, first.Stop())
	require.NoError(t, second.Start(context.Background()))
	require.NoError(t, second.Stop())
}

func TestSourcePausesDuringHandler(t *testing.T) {
	dev := newChanDevice(t.Name())
	handled := make(chan string, 8)
	unblock := make(chan struct{})
	src := NewSource(dev, func(_ context.Context, text string) error {
		handled <- text
		if text == "first" {
			<-unblock
		}
		return nil
	})
	require.NoError(t, src.Start(context.Background()))
	defer src.Stop()

	dev.emit("first")
	assert.Equal(t, "first", recvText(t, handled))
	assert.Equal(t, StatePaused, src.State())

	// duplicate frames captured while the first one is being resolved
	dev.emit("first")
	dev.emit("stale")
	close(unblock)
	waitState(t, src, StateRunning)

	dev.emit("fresh")
	assert.Equal(t, "fresh", recvText(t, handled))
	assert.Empty(t, handled)
}

func TestSourceHandlerErrorKeepsAccepting(t *testing.T) {
	dev := newChanDevice(t.Name())
	handled := make(chan string, 8)
	src := NewSource(dev, func(_ context.Context, text string) error {
		handled <- text
		return errors.New("store unavailable")
	})
	require.NoError(t, src.Start(context.Background()))
	defer src.Stop()

	dev.emit("a")
	recvText(t, handled)
	waitState(t, src, StateRunning)
	dev.emit("b")
	assert.Equal(t, "b", recvText(t, handled))
}

func TestSourceCooldownGuard(t *testing.T) {
	dev := newChanDevice(t.Name())
	handled := make(chan string, 8)
	src := NewSource(dev, func(_ context.Context, text string) error {
		handled <- text
		return nil
	}, WithGuard(NewMemoryGuard(time.Minute)))
	require.NoError(t, src.Start(context.Background()))
	defer src.Stop()

	dev.emit("42|p@q.io")
	recvText(t, handled)
	waitState(t, src, StateRunning)

	dev.emit("42|p@q.io")
	dev.emit("42|other@q.io")
	assert.Equal(t, "42|other@q.io", recvText(t, handled))
	assert.Empty(t, handled)
}

func TestSourceStopDoesNotCancelInFlight(t *testing.T) {
	dev := newChanDevice(t.Name())
	entered := make(chan struct{})
	unblock := make(chan struct{})
	ctxErr := make(chan error, 1)
	src := NewSource(dev, func(ctx context.Context, _ string) error {
		close(entered)
		<-unblock
		ctxErr <- ctx.Err()
		return nil
	})
	require.NoError(t, src.Start(context.Background()))

	dev.emit("x")
	<-entered
	require.NoError(t, src.Stop())
	close(unblock)

	assert.NoError(t, <-ctxErr)
	<-src.Done()
	assert.Equal(t, StateStopped, src.State())
}

func TestSourceStopsAtEndOfDevice(t *testing.T) {
	dev := NewReaderDevice(t.Name(), strings.NewReader("  x|a@b.com  \n\n"))
	handled := make(chan string, 4)
	src := NewSource(dev, func(_ context.Context, text string) error {
		handled <- text
		return nil
	})
	require.NoError(t, src.Start(context.Background()))

	assert.Equal(t, "x|a@b.com", recvText(t, handled))
	select {
	case <-src.Done():
	case <-time.After(time.Second):
		t.Fatal("source did not stop at end of input")
	}
	waitState(t, src, StateStopped)

	// the device can be claimed again
	again := NewSource(dev, func(context.Context, string) error { return nil })
	require.NoError(t, again.Start(context.Background()))
	require.NoError(t, again.Stop())
}

func TestMemoryGuardWindow(t *testing.T) {
	g := NewMemoryGuard(3 * time.Second)
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }
	ctx := context.Background()

	seen, err := g.Seen(ctx, "a")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, g.Mark(ctx, "a"))
	seen, _ = g.Seen(ctx, "a")
	assert.True(t, seen)

	now = now.Add(3 * time.Second)
	seen, _ = g.Seen(ctx, "a")
	assert.False(t, seen)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "PAUSED", StatePaused.String())
	assert.Equal(t, "STARTING", StateStarting.String())
}

func TestSourceStaleHandlerDoesNotResumeNewRun(t *testing.T) {
	dev := newChanDevice(t.Name())
	handled := make(chan string, 8)
	gates := map[string]chan struct{}{
		"old": make(chan struct{}),
		"new": make(chan struct{}),
	}
	src := NewSource(dev, func(_ context.Context, text string) error {
		handled <- text
		<-gates[text]
		return nil
	})
	ctx := context.Background()

	require.NoError(t, src.Start(ctx))
	dev.emit("old")
	assert.Equal(t, "old", recvText(t, handled))
	oldDone := src.Done()

	require.NoError(t, src.Stop())
	require.NoError(t, src.Start(ctx))
	defer src.Stop()
	dev.emit("new")
	assert.Equal(t, "new", recvText(t, handled))
	waitState(t, src, StatePaused)

	close(gates["old"])
	select {
	case <-oldDone:
	case <-time.After(time.Second):
		t.Fatal("previous run did not exit")
	}
	assert.Equal(t, StatePaused, src.State(), "previous run must not resume the current one")

	close(gates["new"])
	waitState(t, src, StateRunning)
}

func TestLineDeviceDropsLinesReadDuringPause(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	handled := make(chan string, 8)
	unblock := make(chan struct{})
	src := NewSource(NewReaderDevice(t.Name(), pr), func(_ context.Context, text string) error {
		handled <- text
		if text == "first" {
			<-unblock
		}
		return nil
	})
	require.NoError(t, src.Start(context.Background()))
	defer src.Stop()

	_, err := io.WriteString(pw, "first\n")
	require.NoError(t, err)
	assert.Equal(t, "first", recvText(t, handled))

	// read and stamped while the first line is still being handled
	_, err = io.WriteString(pw, "during\n")
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	close(unblock)
	waitState(t, src, StateRunning)

	_, err = io.WriteString(pw, "after\n")
	require.NoError(t, err)
	assert.Equal(t, "after", recvText(t, handled))
	assert.Empty(t, handled)
}
