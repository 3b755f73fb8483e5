// Package recorder coordinates the capture device, the live transcription
// session, and the transcript buffer for one recording at a time. It is
// the sole owner of the recording state and the single teardown path.
package recorder

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"murmur/audio"
	"murmur/live"
	"murmur/log"
	"murmur/pcm"
	"murmur/transcript"
)

type State int

const (
	Idle State = iota
	Recording
)

// Sink receives everything the recorder reports upward: state
// transitions, transcript contents on every change, audio levels, and
// user-facing messages. Methods may be called from multiple goroutines
// and must not block.
type Sink interface {
	RecordingChanged(recording bool)
	TranscriptChanged(text string)
	AudioLevel(level float64)
	SilenceWarning(active bool)
	Notice(msg string)
	Error(msg string)
}

// SpeechDetector reports per-tick voice activity (see package vad). A nil
// detector disables silence monitoring.
type SpeechDetector interface {
	Process(data []byte)
	HasSpeechTick() bool
	Reset()
}

type Config struct {
	AutoStop bool // end the recording after prolonged silence
}

// Recorder is the lifecycle coordinator. At most one capture session and
// one transcription session exist at a time; all teardown, whether user
// initiated or failure triggered, funnels through one idempotent path.
type Recorder struct {
	capture  audio.CaptureDevice
	dial     live.Dialer
	sink     Sink
	detector SpeechDetector
	cfg      Config

	acc *transcript.Accumulator

	mu    sync.Mutex
	state State
	gen   int // recording generation; guards stale async events
	sess  *live.Session
	done  chan struct{}

	startedAt   time.Time
	sentFrames  atomic.Int64
	sentBytes   atomic.Int64
	recvUpdates atomic.Int64
	turnsSeen   atomic.Int64
}

func New(capture audio.CaptureDevice, dial live.Dialer, sink Sink, detector SpeechDetector, cfg Config) *Recorder {
	return &Recorder{
		capture:  capture,
		dial:     dial,
		sink:     sink,
		detector: detector,
		cfg:      cfg,
		acc:      transcript.New(sink.TranscriptChanged),
	}
}

func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Transcript returns the text accumulated so far. It is preserved across
// Stop and failures, and cleared only when a new recording starts.
func (r *Recorder) Transcript() string {
	return r.acc.Text()
}

// Start begins a new recording. If the capture device cannot be started
// the error is reported to the sink, the session is torn back down, and
// the recorder stays Idle.
func (r *Recorder) Start() {
	r.mu.Lock()
	if r.state == Recording {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	r.acc.Reset()
	if r.detector != nil {
		r.detector.Reset()
	}

	// The session queues frames until the dial resolves, so it can come up
	// before the device does.
	sess := live.Dial(context.Background(), r.dial)

	r.mu.Lock()
	r.state = Recording
	r.gen++
	gen := r.gen
	r.sess = sess
	done := make(chan struct{})
	r.done = done
	r.mu.Unlock()

	r.startedAt = time.Now()
	r.sentFrames.Store(0)
	r.sentBytes.Store(0)
	r.recvUpdates.Store(0)
	r.turnsSeen.Store(0)

	// Registered before the device starts so the first frame is never lost.
	r.capture.SetCallback(func(samples []float32) {
		r.onFrame(gen, sess, samples)
	})

	if err := r.capture.Start(); err != nil {
		log.Errorf("capture start: %v", err)
		r.capture.ClearCallback()
		sess.Close()
		r.mu.Lock()
		// A racing Stop may have torn this generation down already.
		if r.state == Recording && gen == r.gen {
			r.state = Idle
			r.sess = nil
			r.done = nil
			r.mu.Unlock()
			close(done)
		} else {
			r.mu.Unlock()
		}
		r.sink.Error("microphone unavailable: " + err.Error())
		return
	}

	go r.consumeUpdates(gen, sess)
	go r.watchFatal(gen, sess)
	if r.detector != nil {
		go r.monitorSilence(gen, done)
	}

	log.Info("recording_start: " + r.capture.DeviceName())
	r.sink.RecordingChanged(true)
}

// Stop ends the active recording. Safe to call repeatedly or when idle.
func (r *Recorder) Stop() {
	r.mu.Lock()
	gen := r.gen
	r.mu.Unlock()
	r.teardown(gen)
}

func (r *Recorder) isCurrent(gen int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == Recording && gen == r.gen
}

// onFrame runs on the capture cadence: transform, forward, meter. A
// forwarding failure tears the whole recording down, not just this frame.
func (r *Recorder) onFrame(gen int, sess *live.Session, samples []float32) {
	data := pcm.Pack(samples)
	if err := sess.Send(pcm.Encode(data)); err != nil {
		log.Errorf("frame send: %v", err)
		// Teardown stops this capture device; never from its own callback.
		go func() {
			if r.teardown(gen) {
				r.sink.Error("transcription interrupted: " + err.Error())
			}
		}()
		return
	}
	r.sentFrames.Add(1)
	r.sentBytes.Add(int64(len(data)))
	if r.detector != nil {
		r.detector.Process(data)
	}
	r.sink.AudioLevel(rms(samples))
}

func (r *Recorder) consumeUpdates(gen int, sess *live.Session) {
	for u := range sess.Updates() {
		if !r.isCurrent(gen) {
			continue // drain without processing once stopped
		}
		if u.Text != "" {
			r.acc.Append(u.Text)
			r.recvUpdates.Add(1)
		}
		if u.TurnComplete {
			r.acc.MarkTurnComplete()
			r.turnsSeen.Add(1)
		}
	}
}

func (r *Recorder) watchFatal(gen int, sess *live.Session) {
	err, ok := <-sess.Fatal()
	if !ok || err == nil {
		return // clean close
	}
	log.Errorf("session fatal: %v", err)
	if r.teardown(gen) {
		r.sink.Error("transcription connection lost: " + err.Error())
	}
}

func (r *Recorder) monitorSilence(gen int, done <-chan struct{}) {
	mon := newSilenceMonitor(r.cfg.AutoStop)
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			switch mon.Tick(r.detector.HasSpeechTick()) {
			case SilenceWarn, SilenceRepeat:
				log.Info("no_voice_warning")
				r.sink.SilenceWarning(true)
			case SilenceWarnClear:
				r.sink.SilenceWarning(false)
			case SilenceAutoStop:
				log.Info("silence_auto_stop")
				if r.teardown(gen) {
					r.sink.Notice("stopped: no speech detected")
				}
				return
			}
		}
	}
}

// teardown is the single teardown path: silence the frame callback, stop
// capture, close the session, release references. Every step runs even if
// an earlier one misbehaved; only the first call for a given recording
// generation acts.
func (r *Recorder) teardown(gen int) bool {
	r.mu.Lock()
	if r.state != Recording || gen != r.gen {
		r.mu.Unlock()
		return false
	}
	r.state = Idle
	sess := r.sess
	r.sess = nil
	done := r.done
	r.done = nil
	r.mu.Unlock()

	r.capture.ClearCallback()
	r.capture.Stop()
	if sess != nil {
		sess.Close() // close-path errors are swallowed and logged inside
	}
	if done != nil {
		close(done)
	}

	r.logMetrics()
	if text := r.acc.Text(); text != "" {
		log.TranscriptionText(text)
	}
	log.Info("recording_stop")
	r.sink.SilenceWarning(false)
	r.sink.RecordingChanged(false)
	return true
}

func (r *Recorder) logMetrics() {
	sentBytes := r.sentBytes.Load()
	log.RecordingMetrics(log.RecordingMetricsData{
		AudioS:      float64(sentBytes) / float64(pcm.SampleRate*2),
		SentFrames:  int(r.sentFrames.Load()),
		SentKB:      float64(sentBytes) / 1024,
		RecvUpdates: int(r.recvUpdates.Load()),
		Turns:       int(r.turnsSeen.Load()),
		TotalMs:     float64(time.Since(r.startedAt).Milliseconds()),
	})
}

func rms(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
