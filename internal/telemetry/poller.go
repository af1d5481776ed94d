package telemetry

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/autopeer-io/seatlink/internal/pkg/metrics"
	"github.com/autopeer-io/seatlink/internal/seat"
	"github.com/autopeer-io/seatlink/pkg/log"
)

// DefaultInterval is the time between two poll cycles.
const DefaultInterval = 10 * time.Second

// Requester is the part of the controller the poller needs.
type Requester interface {
	OpenSeats() []seat.ID
	RequestBattery(ctx context.Context, id seat.ID) error
	Drain(id seat.ID, window time.Duration) (int, error)
}

type PollerConfig struct {
	Interval time.Duration
	// DrainAfterRequest discards everything the seat sends within
	// DrainWindow after the request. The response is discarded as well, so
	// readings only change through unsolicited status frames.
	DrainAfterRequest bool
	DrainWindow       time.Duration
	Clock             clock.WithTicker
	Logger            log.Logger
}

// Poller requests battery status from every open seat on a fixed interval.
// Responses are not awaited; they come back through the inbound loops.
type Poller struct {
	req    Requester
	cfg    PollerConfig
	log    log.Logger
	cycles atomic.Int64
}

func NewPoller(req Requester, cfg PollerConfig) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Std()
	}
	return &Poller{req: req, cfg: cfg, log: cfg.Logger.WithName("poller")}
}

// Start polls once right away and then on every tick until ctx is done.
func (p *Poller) Start(ctx context.Context) error {
	p.log.Info("Starting battery polling", "interval", p.cfg.Interval, "drain", p.cfg.DrainAfterRequest)

	ticker := p.cfg.Clock.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.PollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			p.log.Info("Battery polling stopped", "cycles", p.Cycles())
			return nil
		case <-ticker.C():
			p.PollOnce(ctx)
		}
	}
}

// PollOnce sends one request to every open seat concurrently and returns
// how many were written. A failing seat is logged and skipped.
func (p *Poller) PollOnce(ctx context.Context) int {
	start := p.cfg.Clock.Now()
	defer func() {
		metrics.PollDuration.Observe(p.cfg.Clock.Since(start).Seconds())
		p.cycles.Add(1)
	}()

	var sent atomic.Int32
	var g errgroup.Group
	for _, id := range p.req.OpenSeats() {
		id := id
		g.Go(func() error {
			if err := p.req.RequestBattery(ctx, id); err != nil {
				p.log.Warn("Battery status request failed", "seat", int(id), "error", err)
				return nil
			}
			sent.Add(1)
			if p.cfg.DrainAfterRequest {
				n, err := p.req.Drain(id, p.cfg.DrainWindow)
				if err != nil {
					p.log.Warn("Draining seat failed", "seat", int(id), "error", err)
				} else if n > 0 {
					p.log.Debug("Drained stale bytes", "seat", int(id), "bytes", n)
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	return int(sent.Load())
}

// Cycles is the number of completed poll cycles.
func (p *Poller) Cycles() int64 { return p.cycles.Load() }
