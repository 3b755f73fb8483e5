package main

import (
	"testing"

	"murmur/beep"
)

func TestSinkCountsEveryCompletedRecording(t *testing.T) {
	beep.Disable()
	s := &tuiSink{}

	// However a recording ends, the sink sees RecordingChanged(false):
	// user stop, connection failure, or silence auto-stop.
	s.RecordingChanged(true)
	s.RecordingChanged(false)
	s.RecordingChanged(true)
	s.RecordingChanged(false)

	if got := s.count(); got != 2 {
		t.Errorf("count() = %d, want 2", got)
	}
}
