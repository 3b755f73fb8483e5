package live

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// errConnClosed terminates Recv on a closed FakeConn.
var errConnClosed = errors.New("live: fake connection closed")

// FakeConn is an in-memory Conn for tests and headless test mode. Inbound
// updates are injected with Push; sent payloads are recorded.
type FakeConn struct {
	mu      sync.Mutex
	sent    []string
	sendErr error
	closed  bool

	inbound chan inboundEvent
	done    chan struct{}
}

type inboundEvent struct {
	update Update
	err    error
}

func NewFakeConn() *FakeConn {
	return &FakeConn{
		inbound: make(chan inboundEvent, 64),
		done:    make(chan struct{}),
	}
}

func (c *FakeConn) Send(payload string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errConnClosed
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, payload)
	return nil
}

func (c *FakeConn) Recv() (Update, error) {
	select {
	case ev := <-c.inbound:
		return ev.update, ev.err
	case <-c.done:
		return Update{}, errConnClosed
	}
}

func (c *FakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
	return nil
}

// Push injects an inbound update as if received from the service.
func (c *FakeConn) Push(u Update) {
	c.inbound <- inboundEvent{update: u}
}

// FailRecv makes the next Recv return err, simulating a mid-session
// connection failure.
func (c *FakeConn) FailRecv(err error) {
	c.inbound <- inboundEvent{err: err}
}

// FailSend makes subsequent Sends return err.
func (c *FakeConn) FailSend(err error) {
	c.mu.Lock()
	c.sendErr = err
	c.mu.Unlock()
}

// Closed reports whether Close has been called.
func (c *FakeConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Sent returns a copy of the payloads sent so far.
func (c *FakeConn) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.sent))
	copy(out, c.sent)
	return out
}

// EchoDialer returns a Dialer whose connection emits one word of text for
// every `every` media payloads received, and a turn boundary after each
// full pass over words. Used by headless test mode to exercise the whole
// pipeline without a network.
func EchoDialer(script string, every int) Dialer {
	return func(ctx context.Context) (Conn, error) {
		if every <= 0 {
			every = 4
		}
		return &echoConn{
			conn:  NewFakeConn(),
			words: strings.Fields(script),
			every: every,
		}, nil
	}
}

type echoConn struct {
	conn  *FakeConn
	words []string
	every int

	mu   sync.Mutex
	n    int
	next int
}

func (c *echoConn) Send(payload string) error {
	if err := c.conn.Send(payload); err != nil {
		return err
	}
	c.mu.Lock()
	c.n++
	emit := c.n%c.every == 0 && c.next < len(c.words)
	var u Update
	if emit {
		u.Text = c.words[c.next]
		if c.next > 0 {
			u.Text = " " + u.Text
		}
		c.next++
		u.TurnComplete = c.next == len(c.words)
	}
	c.mu.Unlock()
	if emit {
		c.conn.Push(u)
	}
	return nil
}

func (c *echoConn) Recv() (Update, error) { return c.conn.Recv() }
func (c *echoConn) Close() error          { return c.conn.Close() }
