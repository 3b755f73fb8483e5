// Package audio owns microphone access. A Context enumerates capture
// devices and opens them; a CaptureDevice delivers fixed-cadence frames of
// float32 samples to a registered callback.
package audio

import (
	"errors"
	"strings"

	"murmur/pcm"
)

const WAVHeaderSize = 44

// ErrNoDevice is returned when no capture device can be acquired.
var ErrNoDevice = errors.New("no capture device available")

var btKeywords = []string{
	"airpods", "beats", "bose", "wh-1000", "wf-1000",
	"sony wh-", "sony wf-",
	"jabra", "galaxy buds", "pixel buds", "powerbeats",
	"jbl ", "sennheiser momentum", "plantronics",
	"tozo", "anker soundcore", "skullcandy",
	"bluetooth", " bt ", " bt)", " bt]",
}

// IsBluetooth reports whether a device name looks like a Bluetooth
// microphone, which typically captures at reduced quality.
func IsBluetooth(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range btKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// FrameCallback receives one frame of mono float32 samples in [-1.0, 1.0].
type FrameCallback func(samples []float32)

type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
}

// DefaultConfig matches the format the transcription service expects.
func DefaultConfig() CaptureConfig {
	return CaptureConfig{SampleRate: pcm.SampleRate, Channels: pcm.Channels}
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	Close()
}

// CaptureDevice is one microphone acquisition. Stop and Close are safe to
// call when capture is inactive, repeatedly, and after partial failure.
type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb FrameCallback)
	ClearCallback()
	DeviceName() string
}
