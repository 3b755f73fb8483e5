package live

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func gatedDialer(conn Conn, gate <-chan struct{}) Dialer {
	return func(ctx context.Context) (Conn, error) {
		<-gate
		return conn, nil
	}
}

func immediateDialer(conn Conn) Dialer {
	return func(ctx context.Context) (Conn, error) {
		return conn, nil
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSendsBeforeResolutionFlushInOrder(t *testing.T) {
	conn := NewFakeConn()
	gate := make(chan struct{})
	s := Dial(context.Background(), gatedDialer(conn, gate))
	defer s.Close()

	want := []string{"p1", "p2", "p3", "p4", "p5"}
	for _, p := range want {
		if err := s.Send(p); err != nil {
			t.Fatalf("Send(%q) before resolution: %v", p, err)
		}
	}
	if got := conn.Sent(); len(got) != 0 {
		t.Fatalf("payloads sent before resolution: %v", got)
	}

	close(gate)
	waitFor(t, "queued payloads to flush", func() bool { return len(conn.Sent()) == len(want) })

	got := conn.Sent()
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("payload %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSendAfterFailedResolutionRejects(t *testing.T) {
	dialErr := errors.New("connection refused")
	s := Dial(context.Background(), func(ctx context.Context) (Conn, error) {
		return nil, dialErr
	})
	defer s.Close()

	select {
	case err := <-s.Fatal():
		if !errors.Is(err, dialErr) {
			t.Errorf("fatal = %v, want wrapped %v", err, dialErr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no fatal event after failed resolution")
	}

	if err := s.Send("payload"); err == nil {
		t.Error("Send after failed resolution should reject")
	}
}

func TestUpdatesDeliveredInOrder(t *testing.T) {
	conn := NewFakeConn()
	s := Dial(context.Background(), immediateDialer(conn))
	defer s.Close()

	conn.Push(Update{Text: "a"})
	conn.Push(Update{Text: "b"})
	conn.Push(Update{TurnComplete: true})
	conn.Push(Update{Text: "c"})

	want := []Update{
		{Text: "a"},
		{Text: "b"},
		{TurnComplete: true},
		{Text: "c"},
	}
	for i, w := range want {
		select {
		case got := <-s.Updates():
			if got != w {
				t.Errorf("update %d = %+v, want %+v", i, got, w)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for update %d", i)
		}
	}
}

func TestEmptyUpdatesIgnored(t *testing.T) {
	conn := NewFakeConn()
	s := Dial(context.Background(), immediateDialer(conn))
	defer s.Close()

	conn.Push(Update{}) // e.g. an audio-output payload we discard
	conn.Push(Update{Text: "real"})

	select {
	case got := <-s.Updates():
		if got.Text != "real" {
			t.Errorf("got %+v, want the non-empty update", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for update")
	}
}

func TestRecvFailureSurfacesFatal(t *testing.T) {
	conn := NewFakeConn()
	s := Dial(context.Background(), immediateDialer(conn))
	defer s.Close()

	recvErr := errors.New("connection reset")
	conn.FailRecv(recvErr)

	select {
	case err := <-s.Fatal():
		if !errors.Is(err, recvErr) {
			t.Errorf("fatal = %v, want wrapped %v", err, recvErr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no fatal event after receive failure")
	}

	waitFor(t, "send rejection", func() bool { return s.Send("payload") != nil })
}

func TestSendFailureSurfacesFatal(t *testing.T) {
	conn := NewFakeConn()
	sendErr := errors.New("broken pipe")
	conn.FailSend(sendErr)

	s := Dial(context.Background(), immediateDialer(conn))
	defer s.Close()

	if err := s.Send("payload"); err != nil {
		// Enqueue itself succeeds; the failure surfaces on Fatal.
		t.Fatalf("enqueue: %v", err)
	}

	select {
	case err := <-s.Fatal():
		if !errors.Is(err, sendErr) {
			t.Errorf("fatal = %v, want wrapped %v", err, sendErr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no fatal event after send failure")
	}
}

func TestCloseIdempotent(t *testing.T) {
	conn := NewFakeConn()
	s := Dial(context.Background(), immediateDialer(conn))

	s.Close()
	s.Close()

	if err := s.Send("payload"); !errors.Is(err, ErrClosed) {
		t.Errorf("Send after Close = %v, want ErrClosed", err)
	}
}

func TestCloseAfterFailure(t *testing.T) {
	conn := NewFakeConn()
	s := Dial(context.Background(), immediateDialer(conn))

	conn.FailRecv(errors.New("gone"))
	<-s.Fatal()

	s.Close() // must not panic or block
}

func TestCloseEndsUpdates(t *testing.T) {
	conn := NewFakeConn()
	s := Dial(context.Background(), immediateDialer(conn))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range s.Updates() {
		}
	}()

	s.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Updates channel not closed by Close")
	}
}

func TestCloseWithPendingDialEndsUpdates(t *testing.T) {
	gate := make(chan struct{}) // never opened: the dial hangs forever
	defer close(gate)
	s := Dial(context.Background(), gatedDialer(NewFakeConn(), gate))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range s.Updates() {
		}
	}()

	closed := make(chan struct{})
	go func() {
		s.Close()
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(closeTimeout + time.Second):
		t.Fatal("Close blocked on the pending dial")
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Updates consumer still blocked after Close")
	}
}

func TestServerMessageDecoding(t *testing.T) {
	for _, tt := range []struct {
		name string
		raw  string
		want Update
	}{
		{
			"text fragment",
			`{"serverContent":{"inputTranscription":{"text":"hello"}}}`,
			Update{Text: "hello"},
		},
		{
			"turn complete",
			`{"serverContent":{"turnComplete":true}}`,
			Update{TurnComplete: true},
		},
		{
			"text and turn in one message",
			`{"serverContent":{"inputTranscription":{"text":"bye"},"turnComplete":true}}`,
			Update{Text: "bye", TurnComplete: true},
		},
		{
			"unknown fields ignored",
			`{"serverContent":{"audio":{"data":"AAAA"}},"usage":{"tokens":3}}`,
			Update{},
		},
		{
			"no server content",
			`{"ping":1}`,
			Update{},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			var msg serverMessage
			if err := json.Unmarshal([]byte(tt.raw), &msg); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got := msg.update(); got != tt.want {
				t.Errorf("update() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestMediaMessageEncoding(t *testing.T) {
	data, err := json.Marshal(newMediaMessage("cGNt"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"media":{"data":"cGNt","mimeType":"audio/pcm;rate=16000"}}`
	if string(data) != want {
		t.Errorf("media message = %s, want %s", data, want)
	}
}

func TestSetupMessageEncoding(t *testing.T) {
	data, err := json.Marshal(newSetupMessage())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"setup":{"audioFormat":"pcm;rate=16000","inputTranscription":true,"responseModalities":["AUDIO"]}}`
	if string(data) != want {
		t.Errorf("setup message = %s, want %s", data, want)
	}
}
