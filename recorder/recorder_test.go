package recorder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"murmur/audio"
	"murmur/live"
	"murmur/pcm"
)

type stubCapture struct {
	mu        sync.Mutex
	cb        audio.FrameCallback
	startErr  error
	starts    int
	stops     int
	cbAtStart bool
}

func (c *stubCapture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.startErr != nil {
		return c.startErr
	}
	c.starts++
	c.cbAtStart = c.cb != nil
	return nil
}

func (c *stubCapture) Stop() {
	c.mu.Lock()
	c.stops++
	c.mu.Unlock()
}

func (c *stubCapture) Close() {}

func (c *stubCapture) SetCallback(cb audio.FrameCallback) {
	c.mu.Lock()
	c.cb = cb
	c.mu.Unlock()
}

func (c *stubCapture) ClearCallback() {
	c.mu.Lock()
	c.cb = nil
	c.mu.Unlock()
}

func (c *stubCapture) DeviceName() string { return "stub" }

func (c *stubCapture) stopCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stops
}

func (c *stubCapture) startCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.starts
}

func (c *stubCapture) callbackAtStart() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cbAtStart
}

// emit delivers one frame as the capture cadence would.
func (c *stubCapture) emit(samples []float32) {
	c.mu.Lock()
	cb := c.cb
	c.mu.Unlock()
	if cb != nil {
		cb(samples)
	}
}

type stubSink struct {
	mu         sync.Mutex
	errors     []string
	notices    []string
	states     []bool
	transcript string
}

func (s *stubSink) RecordingChanged(recording bool) {
	s.mu.Lock()
	s.states = append(s.states, recording)
	s.mu.Unlock()
}

func (s *stubSink) TranscriptChanged(text string) {
	s.mu.Lock()
	s.transcript = text
	s.mu.Unlock()
}

func (s *stubSink) AudioLevel(float64)  {}
func (s *stubSink) SilenceWarning(bool) {}

func (s *stubSink) Notice(msg string) {
	s.mu.Lock()
	s.notices = append(s.notices, msg)
	s.mu.Unlock()
}

func (s *stubSink) Error(msg string) {
	s.mu.Lock()
	s.errors = append(s.errors, msg)
	s.mu.Unlock()
}

func (s *stubSink) errorCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.errors)
}

func (s *stubSink) lastTranscript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript
}

func (s *stubSink) recordingStates() []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]bool, len(s.states))
	copy(out, s.states)
	return out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// newConnDialer hands out a fresh fake connection per dial.
func newConnDialer(conns *[]*live.FakeConn, mu *sync.Mutex) live.Dialer {
	return func(ctx context.Context) (live.Conn, error) {
		conn := live.NewFakeConn()
		mu.Lock()
		*conns = append(*conns, conn)
		mu.Unlock()
		return conn, nil
	}
}

func newTestRecorder(t *testing.T) (*Recorder, *stubCapture, *stubSink, func() *live.FakeConn) {
	t.Helper()
	capture := &stubCapture{}
	sink := &stubSink{}
	var mu sync.Mutex
	var conns []*live.FakeConn
	r := New(capture, newConnDialer(&conns, &mu), sink, nil, Config{})
	latest := func() *live.FakeConn {
		mu.Lock()
		defer mu.Unlock()
		if len(conns) == 0 {
			return nil
		}
		return conns[len(conns)-1]
	}
	return r, capture, sink, latest
}

func TestStopBeforeStartIsNoOp(t *testing.T) {
	r, capture, sink, _ := newTestRecorder(t)

	r.Stop()
	r.Stop()

	if r.State() != Idle {
		t.Error("state should be Idle")
	}
	if capture.stopCount() != 0 {
		t.Errorf("capture stopped %d times before any start", capture.stopCount())
	}
	if sink.errorCount() != 0 {
		t.Errorf("unexpected errors: %v", sink.errors)
	}
}

func TestStopIdempotent(t *testing.T) {
	r, capture, sink, latest := newTestRecorder(t)

	r.Start()
	waitFor(t, "connection", func() bool { return latest() != nil })

	r.Stop()
	r.Stop()

	if r.State() != Idle {
		t.Error("state should be Idle after Stop")
	}
	if got := capture.stopCount(); got != 1 {
		t.Errorf("capture stopped %d times, want 1", got)
	}
	if sink.errorCount() != 0 {
		t.Errorf("unexpected errors: %v", sink.errors)
	}
}

func TestStartCaptureFailureStaysIdle(t *testing.T) {
	capture := &stubCapture{startErr: errors.New("permission denied")}
	sink := &stubSink{}
	var mu sync.Mutex
	var conns []*live.FakeConn
	r := New(capture, newConnDialer(&conns, &mu), sink, nil, Config{})

	r.Start()

	if r.State() != Idle {
		t.Error("state should stay Idle when capture fails")
	}
	if sink.errorCount() != 1 {
		t.Errorf("got %d errors, want exactly 1: %v", sink.errorCount(), sink.errors)
	}
	// The session dialed ahead of the device must not outlive the failure.
	waitFor(t, "session close", func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			if !c.Closed() {
				return false
			}
		}
		return true
	})
	if states := sink.recordingStates(); len(states) != 0 {
		t.Errorf("recording state reported %v for a start that never happened", states)
	}
}

func TestCallbackRegisteredBeforeCaptureStarts(t *testing.T) {
	r, capture, _, latest := newTestRecorder(t)

	r.Start()
	defer r.Stop()

	if !capture.callbackAtStart() {
		t.Error("no frame callback registered when the device started")
	}

	// A frame delivered the instant the device starts must reach the wire.
	capture.emit([]float32{0.25, -0.25})
	waitFor(t, "connection", func() bool { return latest() != nil })
	conn := latest()
	waitFor(t, "first frame", func() bool { return len(conn.Sent()) == 1 })
	if want := pcm.EncodeFrame([]float32{0.25, -0.25}); conn.Sent()[0] != want {
		t.Errorf("payload = %q, want %q", conn.Sent()[0], want)
	}
}

func TestFramesForwardedInOrder(t *testing.T) {
	r, capture, _, latest := newTestRecorder(t)

	r.Start()
	waitFor(t, "connection", func() bool { return latest() != nil })
	defer r.Stop()

	frames := [][]float32{
		{0.1, 0.2},
		{0.3, 0.4},
		{-0.5, 0.5},
	}
	for _, f := range frames {
		capture.emit(f)
	}

	conn := latest()
	waitFor(t, "frames to flush", func() bool { return len(conn.Sent()) == len(frames) })
	sent := conn.Sent()
	for i, f := range frames {
		if want := pcm.EncodeFrame(f); sent[i] != want {
			t.Errorf("payload %d = %q, want %q", i, sent[i], want)
		}
	}
}

func TestInboundOrderingIntoTranscript(t *testing.T) {
	r, _, sink, latest := newTestRecorder(t)

	r.Start()
	waitFor(t, "connection", func() bool { return latest() != nil })
	defer r.Stop()

	conn := latest()
	conn.Push(live.Update{Text: "a"})
	conn.Push(live.Update{Text: "b"})
	conn.Push(live.Update{TurnComplete: true})
	conn.Push(live.Update{Text: "c"})

	waitFor(t, "transcript", func() bool { return sink.lastTranscript() == "ab\n\nc" })
	if got := r.Transcript(); got != "ab\n\nc" {
		t.Errorf("Transcript() = %q, want %q", got, "ab\n\nc")
	}
}

func TestMidSessionFailureTearsDown(t *testing.T) {
	r, capture, sink, latest := newTestRecorder(t)

	r.Start()
	waitFor(t, "connection", func() bool { return latest() != nil })

	conn := latest()
	conn.Push(live.Update{Text: "hello"})
	waitFor(t, "transcript", func() bool { return r.Transcript() == "hello" })

	conn.FailRecv(errors.New("connection reset"))

	waitFor(t, "teardown", func() bool { return r.State() == Idle })
	waitFor(t, "error report", func() bool { return sink.errorCount() == 1 })
	if got := capture.stopCount(); got != 1 {
		t.Errorf("capture stopped %d times, want exactly 1", got)
	}
	// The transcript is preserved as-is up to the failure point.
	if got := r.Transcript(); got != "hello" {
		t.Errorf("Transcript() = %q, want %q", got, "hello")
	}
}

func TestSendFailureTearsDown(t *testing.T) {
	capture := &stubCapture{}
	sink := &stubSink{}
	conn := live.NewFakeConn()
	conn.FailSend(errors.New("broken pipe"))
	connected := make(chan struct{})
	r := New(capture, func(ctx context.Context) (live.Conn, error) {
		defer close(connected)
		return conn, nil
	}, sink, nil, Config{})

	r.Start()
	<-connected
	capture.emit([]float32{0.1, 0.2})

	waitFor(t, "teardown", func() bool { return r.State() == Idle })
	if got := capture.stopCount(); got != 1 {
		t.Errorf("capture stopped %d times, want exactly 1", got)
	}
	waitFor(t, "error report", func() bool { return sink.errorCount() == 1 })
}

func TestRestartResetsTranscript(t *testing.T) {
	r, _, sink, latest := newTestRecorder(t)

	r.Start()
	waitFor(t, "connection", func() bool { return latest() != nil })
	latest().Push(live.Update{Text: "first recording"})
	waitFor(t, "transcript", func() bool { return r.Transcript() == "first recording" })
	r.Stop()

	// Transcript survives Stop, cleared only by the next Start.
	if got := r.Transcript(); got != "first recording" {
		t.Errorf("Transcript() after Stop = %q", got)
	}

	first := latest()
	r.Start()
	waitFor(t, "new connection", func() bool { return latest() != first })
	defer r.Stop()

	if got := r.Transcript(); got != "" {
		t.Errorf("Transcript() after restart = %q, want empty", got)
	}
	latest().Push(live.Update{Text: "second"})
	waitFor(t, "transcript", func() bool { return sink.lastTranscript() == "second" })
}

func TestStartWhileRecordingIsNoOp(t *testing.T) {
	r, capture, _, latest := newTestRecorder(t)

	r.Start()
	waitFor(t, "connection", func() bool { return latest() != nil })
	defer r.Stop()

	first := latest()
	r.Start()
	if latest() != first {
		t.Error("second Start dialed a new session while recording")
	}
	if got := capture.startCount(); got != 1 {
		t.Errorf("capture started %d times, want 1", got)
	}
}
