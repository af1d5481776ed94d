package seat

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/autopeer-io/seatlink/pkg/log"
)

func testConfig() Config {
	return Config{WriteTimeout: time.Second, Logger: log.NewNopLogger()}
}

// loopback returns a connected endpoint and the robot side of the socket.
func loopback(t *testing.T) (*Endpoint, net.Conn) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			close(accepted)
			return
		}
		accepted <- c
	}()

	e, err := Dial(context.Background(), 1, ln.Addr().String(), testConfig())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	peer, ok := <-accepted
	if !ok {
		t.Fatal("accept failed")
	}
	t.Cleanup(func() {
		e.Close()
		peer.Close()
	})
	return e, peer
}

func TestSendWritesFrame(t *testing.T) {
	e, peer := loopback(t)
	frame := []byte{0x05, 0x00, 0x00, 0x40, 0x3F}

	if err := e.Send(context.Background(), frame); err != nil {
		t.Fatalf("Send: %v", err)
	}

	got := make([]byte, len(frame))
	peer.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := io.ReadFull(peer, got); err != nil {
		t.Fatalf("peer read: %v", err)
	}
	if !bytes.Equal(got, frame) {
		t.Fatalf("peer got % x, want % x", got, frame)
	}
}

func TestReceiveTimeoutIsNotAnError(t *testing.T) {
	e, _ := loopback(t)

	b, err := e.Receive(20 * time.Millisecond)
	if err != nil || b != nil {
		t.Fatalf("got (%v, %v), want (nil, nil)", b, err)
	}
	if e.Closed() {
		t.Fatal("timeout closed the endpoint")
	}
}

func TestReceiveBounded(t *testing.T) {
	e, peer := loopback(t)

	if _, err := peer.Write(bytes.Repeat([]byte{1}, 250)); err != nil {
		t.Fatalf("peer write: %v", err)
	}

	b, err := e.Receive(time.Second)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if len(b) == 0 || len(b) > DefaultReadBufferSize {
		t.Fatalf("got %d bytes, want 1..%d", len(b), DefaultReadBufferSize)
	}
}

func TestPeerDisconnectClosesEndpoint(t *testing.T) {
	e, peer := loopback(t)

	var (
		mu    sync.Mutex
		calls int
	)
	e.OnClose(func(id ID, cause error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if cause == nil {
			t.Errorf("expected a cause for seat %d", id)
		}
	})

	peer.Close()

	_, err := e.Receive(time.Second)
	if !errors.Is(err, ErrIO) {
		t.Fatalf("got %v, want ErrIO", err)
	}
	if !e.Closed() {
		t.Fatal("endpoint still open after EOF")
	}
	if _, err := e.Receive(time.Millisecond); !errors.Is(err, ErrClosed) {
		t.Fatalf("receive after close: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("hook ran %d times, want 1", calls)
	}
}

func TestSendOnClosed(t *testing.T) {
	e, _ := loopback(t)
	e.Close()

	if err := e.Send(context.Background(), []byte{1, 2, 3, 4, 5}); !errors.Is(err, ErrClosed) {
		t.Fatalf("got %v, want ErrClosed", err)
	}
}

func TestWriteFailureClosesEndpoint(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	e := New(2, client, testConfig())

	// the robot side is gone, so the write fails
	server.Close()

	if err := e.Send(context.Background(), []byte{1, 0, 0, 0, 0}); !errors.Is(err, ErrIO) {
		t.Fatalf("got %v, want ErrIO", err)
	}
	if !e.Closed() {
		t.Fatal("write failure did not close the endpoint")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	e, _ := loopback(t)

	if err := e.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if !e.Closed() || e.State() != StateClosed {
		t.Fatalf("state %q after close", e.State())
	}
}

func TestOnCloseAfterClose(t *testing.T) {
	e := Unreachable(3, "10.0.0.3:31338", errors.New("connection refused"), testConfig())
	if !e.Closed() {
		t.Fatal("unreachable endpoint is open")
	}

	ran := false
	e.OnClose(func(ID, error) { ran = true })
	if !ran {
		t.Fatal("hook registered on a closed endpoint did not run")
	}
	if e.Close() != nil {
		t.Fatal("Close on unreachable endpoint returned an error")
	}
}

func TestDrainDiscards(t *testing.T) {
	e, peer := loopback(t)

	go func() {
		peer.Write([]byte{100, 1, 2, 3, 4, 5, 6, 7, 8})
	}()

	n, err := e.Drain(200 * time.Millisecond)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if n != 9 {
		t.Fatalf("drained %d bytes, want 9", n)
	}
	if e.Closed() {
		t.Fatal("drain closed the endpoint")
	}
}

func TestDialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	_, err = Dial(context.Background(), 4, addr, Config{ConnectTimeout: 500 * time.Millisecond, Logger: log.NewNopLogger()})
	if !errors.Is(err, ErrIO) {
		t.Fatalf("got %v, want ErrIO", err)
	}
}
