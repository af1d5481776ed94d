package controller

import (
	"context"
	"errors"
	"time"

	"github.com/autopeer-io/seatlink/internal/pkg/metrics"
	"github.com/autopeer-io/seatlink/internal/protocol"
	"github.com/autopeer-io/seatlink/internal/seat"
)

type drainResult struct {
	n   int
	err error
}

type drainRequest struct {
	window time.Duration
	result chan drainResult
}

// inbound is the handle other goroutines use to reach a running receive loop.
type inbound struct {
	drains chan drainRequest
	done   chan struct{}
}

func newInbound() *inbound {
	return &inbound{
		drains: make(chan drainRequest),
		done:   make(chan struct{}),
	}
}

// drain asks the loop to discard its buffered bytes and what arrives within
// window. ran is false if the loop has already exited.
func (in *inbound) drain(window time.Duration) (n int, ran bool, err error) {
	req := drainRequest{window: window, result: make(chan drainResult, 1)}
	select {
	case in.drains <- req:
	case <-in.done:
		return 0, false, nil
	}
	r := <-req.result
	return r.n, true, r.err
}

// receiveLoop reads one seat until its endpoint closes or ctx is cancelled.
// Cancellation leaves the endpoint open; closing it is Shutdown's job.
// Drains requested through in run between two reads, so the decoder never
// keeps half of a frame whose other half was thrown away.
func (c *Controller) receiveLoop(ctx context.Context, ep *seat.Endpoint, in *inbound, l Listener) {
	defer close(in.done)

	id := ep.ID()
	label := id.String()
	logger := c.log.WithValues("seat", int(id))

	var dec protocol.Decoder
	var lastFeed time.Time
	for {
		if ctx.Err() != nil {
			return
		}

		select {
		case req := <-in.drains:
			n := dec.Buffered()
			dec.Reset()
			m, err := ep.Drain(req.window)
			req.result <- drainResult{n: n + m, err: err}
			continue
		default:
		}

		b, err := ep.Receive(c.cfg.ReceiveTimeout)
		if err != nil {
			if errors.Is(err, seat.ErrClosed) && ctx.Err() != nil {
				return
			}
			logger.Warn("Seat reading loop ended", "error", err)
			return
		}

		if dec.Buffered() > 0 && time.Since(lastFeed) > c.cfg.FrameTimeout {
			metrics.DecodeErrorsTotal.WithLabelValues(label).Inc()
			logger.Warn("Dropped incomplete frame", "bytes", dec.Buffered(), "idle", time.Since(lastFeed))
			dec.Reset()
		}
		if len(b) == 0 {
			continue
		}

		dec.Feed(b)
		lastFeed = time.Now()
		for {
			f, ok, err := dec.Next()
			if err != nil {
				metrics.DecodeErrorsTotal.WithLabelValues(label).Inc()
				logger.Warn("Dropped malformed inbound data", "error", err)
				break
			}
			if !ok {
				break
			}

			msg, err := decodeMessage(id, f)
			if err != nil {
				metrics.DecodeErrorsTotal.WithLabelValues(label).Inc()
				logger.Warn("Dropped malformed frame", "command", f.Command.String(), "error", err)
				continue
			}
			metrics.FramesReceivedTotal.WithLabelValues(label, f.Command.String()).Inc()
			logger.Debug("Got frame", "command", f.Command.String())
			l.Dispatch(ctx, msg)
		}
	}
}
