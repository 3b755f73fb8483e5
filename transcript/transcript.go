// Package transcript accumulates recognized text for the current recording.
package transcript

import (
	"strings"
	"sync"
)

// turnBreak separates completed turns in the buffer.
const turnBreak = "\n\n"

// Notify receives the full buffer contents after every mutation.
type Notify func(text string)

// Accumulator is an append-only text buffer with turn-boundary breaks.
// It is reset only when a new recording starts.
type Accumulator struct {
	mu     sync.Mutex
	buf    strings.Builder
	notify Notify
}

func New(notify Notify) *Accumulator {
	return &Accumulator{notify: notify}
}

// Append adds a recognized text fragment to the buffer.
func (a *Accumulator) Append(fragment string) {
	if fragment == "" {
		return
	}
	a.mu.Lock()
	a.buf.WriteString(fragment)
	text := a.buf.String()
	a.mu.Unlock()
	a.emit(text)
}

// MarkTurnComplete inserts a paragraph break after the text received so
// far. A break before any text is suppressed so the buffer never starts
// with a blank paragraph.
func (a *Accumulator) MarkTurnComplete() {
	a.mu.Lock()
	if a.buf.Len() == 0 || strings.HasSuffix(a.buf.String(), turnBreak) {
		a.mu.Unlock()
		return
	}
	a.buf.WriteString(turnBreak)
	text := a.buf.String()
	a.mu.Unlock()
	a.emit(text)
}

// Reset clears the buffer for a new recording.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	a.buf.Reset()
	a.mu.Unlock()
	a.emit("")
}

// Text returns the current buffer contents.
func (a *Accumulator) Text() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.buf.String()
}

func (a *Accumulator) emit(text string) {
	if a.notify != nil {
		a.notify(text)
	}
}
