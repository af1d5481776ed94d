package grpc

import (
	"context"
	"testing"
	"time"

	"google.golang.org/grpc"
)

func TestUnaryTimeoutInterceptor(t *testing.T) {
	var got time.Duration
	invoker := func(ctx context.Context, _ string, _, _ any, _ *grpc.ClientConn, _ ...grpc.CallOption) error {
		dl, ok := ctx.Deadline()
		if !ok {
			t.Fatal("no deadline set")
		}
		got = time.Until(dl)
		return nil
	}

	if err := UnaryTimeoutInterceptor(time.Second)(context.Background(), "/m", nil, nil, nil, invoker); err != nil {
		t.Fatal(err)
	}
	if got <= 0 || got > time.Second {
		t.Errorf("deadline in %s, want within 1s", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := UnaryTimeoutInterceptor(time.Second)(ctx, "/m", nil, nil, nil, invoker); err != nil {
		t.Fatal(err)
	}
	if got < 30*time.Second {
		t.Errorf("existing deadline was shortened to %s", got)
	}
}
