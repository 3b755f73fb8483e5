//go:build linux

package beep

import (
	"sync"

	"github.com/jfreymuth/pulse"
)

var (
	startSamples []int16
	endSamples   []int16
	warnSamples  []int16
	soundOnce    sync.Once
)

func initSound() {
	// 200ms tails give the PulseAudio buffer time to fill.
	startSamples = generateTone(startFreq, 0.2, startVolume, startDecay)
	endSamples = generateTone(endFreq, 0.2, endVolume, endDecay)
	warnSamples = generateDouble(warnFreq, 0.08, 0.05, warnVolume, warnDecay)
}

func play(samples []int16) {
	if len(samples) == 0 {
		return
	}
	c, err := pulse.NewClient()
	if err != nil {
		return
	}
	defer c.Close()

	pos := 0
	reader := pulse.Int16Reader(func(buf []int16) (int, error) {
		if pos >= len(samples) {
			return 0, pulse.EndOfData
		}
		n := copy(buf, samples[pos:])
		pos += n
		return n, nil
	})
	stream, err := c.NewPlayback(reader,
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(sampleRate),
		pulse.PlaybackLatency(0.1),
	)
	if err != nil {
		return
	}
	stream.Start()
	stream.Drain()
	stream.Stop()
	stream.Close()
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
	go play(startSamples)
}

// End plays the recording-stopped cue.
func End() {
	if disabled {
		return
	}
	soundOnce.Do(initSound)
	go play(endSamples)
}

// Warn plays the silence-warning cue.
func Warn() {
	if disabled {
		return
	}
	soundOnce.Do(initSound)
	go play(warnSamples)
}
