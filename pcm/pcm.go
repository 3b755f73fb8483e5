// Package pcm converts captured audio frames into the text-safe payloads
// the transcription service accepts over its message envelope.
package pcm

import (
	"encoding/base64"
	"encoding/binary"
)

const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
	FrameSize     = 4096 // samples per capture frame

	// MimeType tags every outbound media payload.
	MimeType = "audio/pcm;rate=16000"
)

// Pack converts float32 samples in [-1.0, 1.0] to little-endian 16-bit
// signed PCM. Samples outside the representable range are clamped.
func Pack(samples []float32) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := int32(s * 32768)
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(data[i*2:], uint16(int16(v)))
	}
	return data
}

// Encode returns the base64 text form of raw bytes.
func Encode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// Decode reverses Encode.
func Decode(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

// EncodeFrame transforms one capture frame into its transport payload.
func EncodeFrame(samples []float32) string {
	return Encode(Pack(samples))
}
