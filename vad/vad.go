// Package vad runs WebRTC voice-activity detection over captured PCM so
// the recorder can warn when the microphone hears no speech.
package vad

import (
	"sync"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"

	"murmur/pcm"
)

const (
	vadMode    = 3
	frameMs    = 20
	frameBytes = pcm.SampleRate * frameMs / 1000 * 2 // 640 bytes

	// speechThreshold is the fraction of VAD frames in one tick window
	// that must be active to count the tick as speech.
	speechThreshold = 0.10
)

type Processor struct {
	vad *webrtcvad.VAD

	mu           sync.Mutex
	buf          []byte
	totalFrames  int
	speechFrames int
	tickTotal    int
	tickSpeech   int
}

func New() (*Processor, error) {
	v, err := webrtcvad.New()
	if err != nil {
		return nil, err
	}
	if err := v.SetMode(vadMode); err != nil {
		return nil, err
	}
	return &Processor{vad: v}, nil
}

// Process consumes little-endian 16-bit PCM, running detection on each
// complete 20ms frame. Partial frames carry over to the next call.
func (p *Processor) Process(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.buf = append(p.buf, data...)
	for len(p.buf) >= frameBytes {
		frame := p.buf[:frameBytes]
		p.buf = p.buf[frameBytes:]

		active, err := p.vad.Process(pcm.SampleRate, frame)
		if err != nil {
			continue
		}
		p.totalFrames++
		if active {
			p.speechFrames++
		}
	}
}

// HasSpeechTick reports whether speech was detected since the last call.
func (p *Processor) HasSpeechTick() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	t := p.totalFrames - p.tickTotal
	s := p.speechFrames - p.tickSpeech
	p.tickTotal, p.tickSpeech = p.totalFrames, p.speechFrames
	if t == 0 {
		return false
	}
	return float64(s)/float64(t) >= speechThreshold
}

func (p *Processor) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buf = p.buf[:0]
	p.totalFrames = 0
	p.speechFrames = 0
	p.tickTotal = 0
	p.tickSpeech = 0
}
