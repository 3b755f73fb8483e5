package live

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"murmur/log"
)

const (
	sendQueueSize = 128 // ~32s of frames buffered while the dial resolves
	closeTimeout  = 2 * time.Second
)

var (
	// ErrClosed rejects sends on a session that has been closed.
	ErrClosed = errors.New("live: session closed")
	// ErrQueueFull rejects sends when the connection has not resolved in
	// time to drain the pending queue.
	ErrQueueFull = errors.New("live: send queue full")
)

// Session is one logical connection to the transcription service. It is
// usable as soon as Dial returns: Send enqueues payloads that flush in
// FIFO order once the connection resolves. At most one Session should be
// live at a time; Close is idempotent and never returns an error.
type Session struct {
	sendCh    chan string
	updates   chan Update
	fatal     chan error
	connected chan struct{}
	stopSend  chan struct{}
	stopRecv  chan struct{}
	sendDone  chan struct{}
	recvDone  chan struct{}

	mu      sync.Mutex
	conn    Conn
	err     error
	closing bool
	pumping bool // sender/receiver goroutines were started

	failOnce  sync.Once
	fatalOnce sync.Once
	closeOnce sync.Once
}

// Dial returns immediately; the connection resolves in the background.
func Dial(ctx context.Context, dial Dialer) *Session {
	s := &Session{
		sendCh:    make(chan string, sendQueueSize),
		updates:   make(chan Update, 16),
		fatal:     make(chan error, 1),
		connected: make(chan struct{}),
		stopSend:  make(chan struct{}),
		stopRecv:  make(chan struct{}),
		sendDone:  make(chan struct{}),
		recvDone:  make(chan struct{}),
	}

	go func() {
		conn, err := dial(ctx)
		if err != nil {
			s.fail(fmt.Errorf("session open: %w", err))
			close(s.connected)
			close(s.sendDone)
			close(s.recvDone)
			return
		}

		s.mu.Lock()
		s.conn = conn
		closing := s.closing
		if !closing {
			s.pumping = true
		}
		s.mu.Unlock()
		close(s.connected)

		if closing {
			// Close raced the dial; nothing was pumped, so tear down here.
			if err := conn.Close(); err != nil {
				log.Warnf("session close: %v", err)
			}
			close(s.sendDone)
			close(s.recvDone)
			return
		}
		go s.runSender()
		go s.runReceiver()
	}()

	return s
}

// Send enqueues one encoded payload for transmission once the session is
// open. It fails once the session has resolved to an error or is closed.
func (s *Session) Send(payload string) error {
	s.mu.Lock()
	if s.err != nil {
		err := s.err
		s.mu.Unlock()
		return err
	}
	if s.closing {
		s.mu.Unlock()
		return ErrClosed
	}
	s.mu.Unlock()

	select {
	case s.sendCh <- payload:
		return nil
	default:
		return ErrQueueFull
	}
}

// Updates delivers recognized inbound events in receive order. The channel
// closes when the session is closed.
func (s *Session) Updates() <-chan Update {
	return s.updates
}

// Fatal delivers at most one connection-level error, then closes. A clean
// Close closes the channel without a value.
func (s *Session) Fatal() <-chan error {
	return s.fatal
}

// Err returns the session's fatal error, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close tears the session down. Safe to call repeatedly and on a session
// whose connection never opened; errors on the close path are logged and
// swallowed so teardown always succeeds from the caller's point of view.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closing = true
		s.mu.Unlock()

		// Bounded: a hung dial must not block teardown.
		select {
		case <-s.connected:
		case <-time.After(closeTimeout):
		}

		close(s.stopSend)
		close(s.stopRecv)

		s.mu.Lock()
		conn := s.conn
		pumping := s.pumping
		s.mu.Unlock()
		if conn != nil {
			if err := conn.Close(); err != nil {
				log.Warnf("session close: %v", err)
			}
		}

		if pumping {
			awaitOrTimeout(s.sendDone, closeTimeout)
			if awaitOrTimeout(s.recvDone, closeTimeout) {
				close(s.updates)
			} else {
				log.Warn("session receiver drain timeout")
			}
		} else {
			// The pumps never started (dial pending, failed, or raced the
			// close), so nothing can send on updates; consumers must not
			// be left ranging a channel that will never close.
			close(s.updates)
		}

		s.reportFatal(nil)
	})
}

func (s *Session) runSender() {
	defer close(s.sendDone)
	for {
		select {
		case <-s.stopSend:
			return
		case payload := <-s.sendCh:
			if err := s.conn.Send(payload); err != nil {
				s.fail(fmt.Errorf("send media: %w", err))
				return
			}
		}
	}
}

func (s *Session) runReceiver() {
	defer close(s.recvDone)
	for {
		u, err := s.conn.Recv()
		if err != nil {
			s.mu.Lock()
			closing := s.closing
			s.mu.Unlock()
			if closing {
				return
			}
			s.fail(fmt.Errorf("session receive: %w", err))
			return
		}
		if u.empty() {
			continue
		}
		select {
		case s.updates <- u:
		case <-s.stopRecv:
			return
		}
	}
}

func (s *Session) fail(err error) {
	s.failOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		conn := s.conn
		closing := s.closing
		s.mu.Unlock()

		if closing {
			log.Warnf("session error during close: %v", err)
		} else {
			s.reportFatal(err)
		}
		if conn != nil {
			conn.Close()
		}
	})
}

func (s *Session) reportFatal(err error) {
	s.fatalOnce.Do(func() {
		if err != nil {
			s.fatal <- err
		}
		close(s.fatal)
	})
}

func awaitOrTimeout(ch <-chan struct{}, d time.Duration) bool {
	select {
	case <-ch:
		return true
	case <-time.After(d):
		return false
	}
}
