package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"murmur/audio"
	"murmur/beep"
	"murmur/live"
	"murmur/log"
	"murmur/recorder"
	"murmur/vad"
)

const echoScript = "the quick brown fox jumps over the lazy dog"

// stdioSink prints recorder events line by line so an external driver can
// assert on them, and counts completed recordings however they ended.
type stdioSink struct {
	recordings atomic.Int64
}

func (s *stdioSink) RecordingChanged(recording bool) {
	if !recording {
		s.recordings.Add(1)
	}
	fmt.Printf("RECORDING %v\n", recording)
}

func (s *stdioSink) count() int { return int(s.recordings.Load()) }

func (s *stdioSink) TranscriptChanged(text string) { fmt.Printf("TRANSCRIPT %q\n", text) }
func (s *stdioSink) AudioLevel(float64)            {}
func (s *stdioSink) SilenceWarning(active bool)    { fmt.Printf("SILENCE_WARNING %v\n", active) }
func (s *stdioSink) Notice(msg string)             { fmt.Printf("NOTICE %s\n", msg) }
func (s *stdioSink) Error(msg string)              { fmt.Printf("ERROR %s\n", msg) }

// runTestMode drives the full pipeline headlessly: a fake capture device
// replays a WAV file and a loopback session echoes scripted text back, so
// the whole recorder path runs without hardware or network. Commands come
// from stdin: START, STOP, WAIT_AUDIO_DONE, SLEEP <ms>, QUIT.
func runTestMode(wavPath string, autoStop bool) {
	beep.Disable()

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()
	log.SessionStart("loopback", wavPath)

	fakeCtx, err := audio.NewFakeContext(wavPath, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading WAV: %v\n", err)
		os.Exit(1)
	}

	capture, err := fakeCtx.NewCapture(nil, audio.DefaultConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating capture: %v\n", err)
		os.Exit(1)
	}
	defer capture.Close()
	fakeCapture := capture.(*audio.FakeCapture)

	var detector recorder.SpeechDetector
	if v, err := vad.New(); err != nil {
		log.Warnf("vad init failed: %v", err)
	} else {
		detector = v
	}

	sink := &stdioSink{}
	rec := recorder.New(capture, live.EchoDialer(echoScript, 4), sink, detector, recorder.Config{AutoStop: autoStop})

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		cmd := strings.TrimSpace(scanner.Text())
		switch cmd {
		case "START":
			rec.Start()
		case "STOP":
			rec.Stop()
			fmt.Printf("FINAL %q\n", rec.Transcript())
		case "WAIT_AUDIO_DONE":
			<-fakeCapture.AudioDone()
		case "QUIT":
			rec.Stop()
			log.SessionEnd(sink.count())
			return
		default:
			if strings.HasPrefix(cmd, "SLEEP ") {
				if ms, err := strconv.Atoi(cmd[6:]); err == nil {
					time.Sleep(time.Duration(ms) * time.Millisecond)
				}
			}
		}
	}
	rec.Stop()
	log.SessionEnd(sink.count())
}
