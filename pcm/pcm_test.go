package pcm

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, tt := range []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"single", []byte{0x7f}},
		{"binary", []byte{0x00, 0xff, 0x80, 0x01, 0xfe}},
		{"long", bytes.Repeat([]byte{0xab, 0xcd}, 4096)},
	} {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(Encode(tt.data))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !bytes.Equal(got, tt.data) {
				t.Errorf("round trip mismatch: got %v, want %v", got, tt.data)
			}
		})
	}
}

func TestEncodeEmpty(t *testing.T) {
	if got := Encode(nil); got != "" {
		t.Errorf("Encode(nil) = %q, want empty", got)
	}
}

func TestPackLength(t *testing.T) {
	for _, n := range []int{0, 1, 100, FrameSize} {
		samples := make([]float32, n)
		if got := len(Pack(samples)); got != n*2 {
			t.Errorf("Pack of %d samples = %d bytes, want %d", n, got, n*2)
		}
	}
}

func TestPackValues(t *testing.T) {
	for _, tt := range []struct {
		name   string
		sample float32
		want   int16
	}{
		{"zero", 0, 0},
		{"half", 0.5, 16384},
		{"neg_half", -0.5, -16384},
		{"full_neg", -1.0, -32768},
		{"full_pos_clamped", 1.0, 32767},
		{"over_range_clamped", 2.0, 32767},
		{"under_range_clamped", -2.0, -32768},
	} {
		t.Run(tt.name, func(t *testing.T) {
			data := Pack([]float32{tt.sample})
			got := int16(binary.LittleEndian.Uint16(data))
			if got != tt.want {
				t.Errorf("Pack(%v) = %d, want %d", tt.sample, got, tt.want)
			}
		})
	}
}

func TestPackLittleEndianOrder(t *testing.T) {
	// 0.5 -> 16384 -> 0x4000 -> bytes 0x00, 0x40
	data := Pack([]float32{0.5})
	if data[0] != 0x00 || data[1] != 0x40 {
		t.Errorf("Pack(0.5) = %#x %#x, want 0x00 0x40", data[0], data[1])
	}
}

func TestEncodeFrameDeterministic(t *testing.T) {
	samples := make([]float32, FrameSize)
	for i := range samples {
		samples[i] = float32(i%100)/100 - 0.5
	}
	a := EncodeFrame(samples)
	b := EncodeFrame(samples)
	if a != b {
		t.Error("EncodeFrame not deterministic")
	}
	decoded, err := Decode(a)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(decoded) != FrameSize*2 {
		t.Errorf("decoded frame = %d bytes, want %d", len(decoded), FrameSize*2)
	}
}
