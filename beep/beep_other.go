//go:build !linux

package beep

import (
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

var (
	malgoCtx     *malgo.AllocatedContext
	device       *malgo.Device
	startSamples []int16
	endSamples   []int16
	warnSamples  []int16
	soundOnce    sync.Once

	// Playback cursor, read from the device callback.
	playSamples atomic.Pointer[[]int16]
	playPos     atomic.Uint32
	playMu      sync.Mutex
)

func initDevice() error {
	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.Playback.Format = malgo.FormatS16
	config.Playback.Channels = 1
	config.SampleRate = sampleRate

	callbacks := malgo.DeviceCallbacks{Data: dataCallback}

	var err error
	device, err = malgo.InitDevice(malgoCtx.Context, config, callbacks)
	return err
}

func initSound() {
	var err error
	malgoCtx, err = malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return
	}

	startSamples = generateTone(startFreq, 0.03, startVolume, startDecay)
	endSamples = generateTone(endFreq, 0.05, endVolume, endDecay)
	warnSamples = generateDouble(warnFreq, 0.08, 0.05, warnVolume, warnDecay)

	if err := initDevice(); err != nil {
		malgoCtx.Uninit()
		malgoCtx = nil
	}
}

func dataCallback(pOutput, _ []byte, frameCount uint32) {
	for i := range pOutput {
		pOutput[i] = 0
	}
	samples := playSamples.Load()
	if samples == nil {
		return
	}

	pos := playPos.Load()
	total := uint32(len(*samples))
	if pos >= total {
		playSamples.Store(nil)
		return
	}

	n := frameCount
	if n > total-pos {
		n = total - pos
	}
	for i := uint32(0); i < n; i++ {
		s := (*samples)[pos+i]
		pOutput[i*2] = byte(s)
		pOutput[i*2+1] = byte(s >> 8)
	}
	playPos.Store(pos + n)
}

func play(samples []int16) {
	if malgoCtx == nil || len(samples) == 0 {
		return
	}

	playMu.Lock()
	defer playMu.Unlock()

	if device == nil {
		return
	}

	device.Stop()
	playPos.Store(0)
	playSamples.Store(&samples)

	if err := device.Start(); err != nil {
		// Recreate the device (handles macOS sleep/wake).
		device.Uninit()
		if err := initDevice(); err != nil {
			playSamples.Store(nil)
			return
		}
		if err := device.Start(); err != nil {
			playSamples.Store(nil)
		}
	}
}

func Init() {
	soundOnce.Do(initSound)
}

// Start plays the recording-started cue.
func Start() {
	if disabled {
		return
	}
	soundOnce.Do(initSound)
	play(startSamples)
}

// End plays the recording-stopped cue.
func End() {
	if disabled {
		return
	}
	soundOnce.Do(initSound)
	play(endSamples)
}

// Warn plays the silence-warning cue.
func Warn() {
	if disabled {
		return
	}
	soundOnce.Do(initSound)
	play(warnSamples)
}
