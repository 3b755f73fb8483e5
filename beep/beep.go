// Package beep plays short audio cues for recording state changes.
package beep

import "math"

var disabled bool

// Disable turns all cues into no-ops (headless test mode).
func Disable() { disabled = true }

const (
	sampleRate = 44100

	// Recording started: high pitch, snappy decay.
	startFreq   = 1200.0
	startVolume = 0.5
	startDecay  = 60.0

	// Recording stopped: slightly lower, softer decay.
	endFreq   = 900.0
	endVolume = 0.5
	endDecay  = 40.0

	// Silence warning: low double-beep.
	warnFreq   = 350.0
	warnVolume = 0.6
	warnDecay  = 30.0
)

// generateTone renders a decaying mono sine tone.
func generateTone(freq, duration, volume, decay float64) []int16 {
	n := int(float64(sampleRate) * duration)
	samples := make([]int16, n)
	for i := 0; i < n; i++ {
		t := float64(i) / float64(sampleRate)
		envelope := math.Exp(-t * decay)
		samples[i] = int16(math.Sin(2*math.Pi*freq*t) * 32767 * volume * envelope)
	}
	return samples
}

func generateDouble(freq, toneDur, gapDur, volume, decay float64) []int16 {
	tone := generateTone(freq, toneDur, volume, decay)
	gap := make([]int16, int(float64(sampleRate)*gapDur))
	out := make([]int16, 0, len(tone)*2+len(gap))
	out = append(out, tone...)
	out = append(out, gap...)
	out = append(out, tone...)
	return out
}
