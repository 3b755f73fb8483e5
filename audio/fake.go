package audio

import (
	"encoding/binary"
	"os"
	"sync"
	"time"

	"murmur/pcm"
)

// FakeContext replays prerecorded samples through the CaptureDevice
// interface. Used by tests and by headless test mode.
type FakeContext struct {
	samples  []float32
	realtime bool
}

// NewFakeContext loads 16-bit mono PCM from a WAV file.
func NewFakeContext(wavPath string, realtime bool) (*FakeContext, error) {
	data, err := os.ReadFile(wavPath)
	if err != nil {
		return nil, err
	}
	if len(data) > WAVHeaderSize {
		data = data[WAVHeaderSize:]
	}
	samples := make([]float32, len(data)/2)
	for i := range samples {
		samples[i] = float32(int16(binary.LittleEndian.Uint16(data[i*2:]))) / 32768
	}
	return &FakeContext{samples: samples, realtime: realtime}, nil
}

// NewFakeContextFromSamples wraps in-memory samples directly.
func NewFakeContextFromSamples(samples []float32, realtime bool) *FakeContext {
	return &FakeContext{samples: samples, realtime: realtime}
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) { return nil, nil }
func (f *FakeContext) Close()                         {}

func (f *FakeContext) NewCapture(_ *DeviceInfo, _ CaptureConfig) (CaptureDevice, error) {
	return &FakeCapture{
		samples:   f.samples,
		realtime:  f.realtime,
		audioDone: make(chan struct{}),
	}, nil
}

// FakeCapture feeds its samples in FrameSize chunks, then silence, until
// stopped. AudioDone closes once the prerecorded samples are exhausted.
type FakeCapture struct {
	samples   []float32
	realtime  bool
	audioDone chan struct{}

	mu       sync.Mutex
	cb       FrameCallback
	stopCh   chan struct{}
	feedDone chan struct{}
}

func (f *FakeCapture) AudioDone() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.audioDone
}

func (f *FakeCapture) SetCallback(cb FrameCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeCapture) ClearCallback() {
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
}

func (f *FakeCapture) loadCallback() FrameCallback {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cb
}

func (f *FakeCapture) DeviceName() string { return "fake" }

func (f *FakeCapture) feedFrame(cb FrameCallback, pos int) int {
	end := min(pos+pcm.FrameSize, len(f.samples))
	frame := make([]float32, end-pos)
	copy(frame, f.samples[pos:end])
	cb(frame)
	return end
}

func (f *FakeCapture) Start() error {
	f.mu.Lock()
	f.stopCh = make(chan struct{})
	f.feedDone = make(chan struct{})
	stopCh, feedDone := f.stopCh, f.feedDone
	f.mu.Unlock()

	interval := time.Millisecond
	if f.realtime {
		interval = time.Duration(pcm.FrameSize) * time.Second / time.Duration(pcm.SampleRate)
	}

	f.mu.Lock()
	audioDone := f.audioDone
	f.mu.Unlock()

	go func() {
		defer close(feedDone)
		pos := 0
		silence := make([]float32, pcm.FrameSize)
		audioFinished := false

		for {
			select {
			case <-stopCh:
				return
			default:
			}

			cb := f.loadCallback()
			if cb == nil {
				time.Sleep(time.Millisecond)
				continue
			}

			if pos < len(f.samples) {
				pos = f.feedFrame(cb, pos)
			} else {
				if !audioFinished {
					audioFinished = true
					close(audioDone)
				}
				cb(silence)
			}

			select {
			case <-stopCh:
				return
			case <-time.After(interval):
			}
		}
	}()

	return nil
}

func (f *FakeCapture) Stop() {
	f.mu.Lock()
	stopCh, feedDone := f.stopCh, f.feedDone
	f.mu.Unlock()
	if stopCh == nil {
		return
	}
	select {
	case <-stopCh:
	default:
		close(stopCh)
	}
	<-feedDone
	f.mu.Lock()
	f.audioDone = make(chan struct{}) // reset for replay
	f.mu.Unlock()
}

func (f *FakeCapture) Close() {}
