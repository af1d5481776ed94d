package server

import (
	"context"
	"errors"
	"testing"
	"time"
)

type serverFunc func(ctx context.Context) error

func (f serverFunc) Start(ctx context.Context) error { return f(ctx) }

func TestManagerStopsAllOnFailure(t *testing.T) {
	boom := errors.New("bind: address already in use")
	stopped := make(chan struct{})

	m := NewManager(serverFunc(func(ctx context.Context) error {
		<-ctx.Done()
		close(stopped)
		return nil
	}))
	m.Add(serverFunc(func(context.Context) error { return boom }))

	if err := m.Start(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Start = %v, want %v", err, boom)
	}
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("sibling server was not cancelled")
	}
}

func TestManagerReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := NewManager(
		serverFunc(func(ctx context.Context) error { <-ctx.Done(); return nil }),
		serverFunc(func(ctx context.Context) error { <-ctx.Done(); return nil }),
	)

	done := make(chan error, 1)
	go func() { done <- m.Start(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("manager did not return")
	}
}
