package controller

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/autopeer-io/seatlink/internal/actuator"
	"github.com/autopeer-io/seatlink/internal/pkg/metrics"
	"github.com/autopeer-io/seatlink/internal/protocol"
	"github.com/autopeer-io/seatlink/internal/seat"
	"github.com/autopeer-io/seatlink/pkg/log"
)

// DefaultReceiveTimeout bounds a single read in the inbound loop and so also
// how quickly a loop notices cancellation.
const DefaultReceiveTimeout = 500 * time.Millisecond

// DefaultFrameTimeout is how long a partial inbound frame may wait for the
// rest of its bytes before it is discarded.
const DefaultFrameTimeout = time.Second

// Config holds the controller's static settings.
type Config struct {
	// Port is appended to seat addresses that carry none.
	Port int
	// Seat tunes every endpoint the controller dials.
	Seat seat.Config
	// ReceiveTimeout bounds each Receive of the inbound loops.
	ReceiveTimeout time.Duration
	// FrameTimeout bounds how long a partial frame stays buffered.
	FrameTimeout time.Duration
	// LocalSeats overrides session addresses per seat.
	LocalSeats map[seat.ID]string
	// SetFile is read when the session carries no current set.
	SetFile string
	Logger  log.Logger
}

// SeatStatus is a point-in-time view of one configured seat.
type SeatStatus struct {
	Seat    seat.ID `json:"seat"`
	Address string  `json:"address"`
	Set     int     `json:"set"`
	Enabled bool    `json:"enabled"`
	State   string  `json:"state"`
	Error   string  `json:"error,omitempty"`
}

type session struct {
	endpoints  map[seat.ID]*seat.Endpoint
	seats      map[seat.ID]SeatConfig
	currentSet int
	inbound    map[seat.ID]*inbound
	cancel     context.CancelFunc
	loops      *errgroup.Group
}

// Controller owns every seat endpoint of a session. It turns operator input
// into frames on the right endpoint and feeds inbound frames to a Listener.
type Controller struct {
	cfg      Config
	model    Model
	bindings *actuator.Bindings
	log      log.Logger

	// configMu serialises HandleConfig and Shutdown.
	configMu sync.Mutex

	mu        sync.RWMutex
	sess      *session
	observers []seat.CloseHook
}

// New builds a controller for one robot model. Bindings are frozen here.
func New(model Model, cfg Config) (*Controller, error) {
	b, err := model.Bindings()
	if err != nil {
		return nil, err
	}
	if cfg.Port <= 0 {
		cfg.Port = DefaultPort
	}
	if cfg.ReceiveTimeout <= 0 {
		cfg.ReceiveTimeout = DefaultReceiveTimeout
	}
	if cfg.FrameTimeout <= 0 {
		cfg.FrameTimeout = DefaultFrameTimeout
	}
	if cfg.SetFile == "" {
		cfg.SetFile = DefaultSetFile
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Std()
	}
	cfg.Seat.Logger = cfg.Logger

	return &Controller{
		cfg:      cfg,
		model:    model,
		bindings: b,
		log:      cfg.Logger.WithName("controller"),
		sess:     emptySession(),
	}, nil
}

func emptySession() *session {
	return &session{
		endpoints: map[seat.ID]*seat.Endpoint{},
		seats:     map[seat.ID]SeatConfig{},
		inbound:   map[seat.ID]*inbound{},
	}
}

// Model returns the robot model the controller drives.
func (c *Controller) Model() Model { return c.model }

// Inputs lists the bound input names.
func (c *Controller) Inputs() []string { return c.bindings.Names() }

// Observe registers a hook attached to every endpoint of every later session.
func (c *Controller) Observe(h seat.CloseHook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, h)
}

// HandleConfig replaces the current session with one built from raw. The
// running session is kept when raw cannot be parsed or the current set cannot
// be read. Every configured seat is dialed; a seat that cannot be reached is kept as a
// closed endpoint so sends to it are dropped rather than rejected. When
// listener is non-nil one inbound goroutine per connected seat feeds it
// until ctx is cancelled or Shutdown is called. It returns the number of
// connected seats.
func (c *Controller) HandleConfig(ctx context.Context, raw map[string]any, listener Listener) (int, error) {
	c.configMu.Lock()
	defer c.configMu.Unlock()

	parsed, err := ParseSession(raw, c.cfg.LocalSeats, c.cfg.Port, c.log)
	if err != nil {
		return 0, err
	}

	currentSet := 0
	if parsed.CurrentSet != nil {
		currentSet = *parsed.CurrentSet
	} else {
		c.log.Info("Reading current set from file", "path", c.cfg.SetFile)
		if currentSet, err = ReadSetFile(c.cfg.SetFile, c.log); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrConfig, err)
		}
	}

	c.shutdown(ctx)
	endpoints := c.dialAll(ctx, parsed.Seats)

	c.mu.RLock()
	observers := append([]seat.CloseHook(nil), c.observers...)
	c.mu.RUnlock()

	sess := &session{
		endpoints:  make(map[seat.ID]*seat.Endpoint, len(parsed.Seats)),
		seats:      make(map[seat.ID]SeatConfig, len(parsed.Seats)),
		inbound:    make(map[seat.ID]*inbound, len(parsed.Seats)),
		currentSet: currentSet,
	}
	connected := 0
	for i, sc := range parsed.Seats {
		ep := endpoints[i]
		for _, h := range observers {
			ep.OnClose(h)
		}
		sess.endpoints[sc.Seat] = ep
		sess.seats[sc.Seat] = sc
		if !ep.Closed() {
			connected++
		}
	}

	if listener != nil {
		loopCtx, cancel := context.WithCancel(ctx)
		sess.cancel = cancel
		sess.loops = &errgroup.Group{}
		for _, ep := range sess.endpoints {
			if ep.Closed() {
				continue
			}
			ep, in := ep, newInbound()
			sess.inbound[ep.ID()] = in
			sess.loops.Go(func() error {
				c.receiveLoop(loopCtx, ep, in, listener)
				return nil
			})
		}
	}

	c.mu.Lock()
	c.sess = sess
	c.mu.Unlock()

	c.log.Info("Seat config done", "connected", connected, "configured", len(parsed.Seats), "declared", parsed.Declared, "set", currentSet)
	if connected < parsed.Declared {
		c.log.Warn("Not every robot could be configured", "connected", connected, "declared", parsed.Declared)
	}
	return connected, nil
}

// dialAll connects every seat concurrently; a failure yields a closed endpoint.
func (c *Controller) dialAll(ctx context.Context, seats []SeatConfig) []*seat.Endpoint {
	out := make([]*seat.Endpoint, len(seats))
	var g errgroup.Group
	for i, sc := range seats {
		i, sc := i, sc
		g.Go(func() error {
			ep, err := seat.Dial(ctx, sc.Seat, sc.Address, c.cfg.Seat)
			if err != nil {
				c.log.Error(err, "Connection failed to seat", "seat", int(sc.Seat), "address", sc.Address)
				ep = seat.Unreachable(sc.Seat, sc.Address, err, c.cfg.Seat)
			}
			out[i] = ep
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (c *Controller) endpoint(id seat.ID) (*seat.Endpoint, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ep, ok := c.sess.endpoints[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownSeat, id)
	}
	return ep, nil
}

// Send encodes value for the named input and writes it to the seat. An
// unknown seat or input is returned; an unreachable seat is logged and the
// frame dropped.
func (c *Controller) Send(ctx context.Context, id seat.ID, input string, value float32) error {
	ep, err := c.endpoint(id)
	if err != nil {
		return err
	}
	frame, err := c.bindings.Encode(input, value)
	if err != nil {
		return err
	}
	c.dropOnFailure(c.write(ctx, ep, frame))
	return nil
}

// Drive sends steering then throttle through the model's drive joystick.
func (c *Controller) Drive(ctx context.Context, id seat.ID, throttle, steering float32) error {
	if c.model.Drive == nil {
		return fmt.Errorf("%w: model %s has no drive joystick", ErrUnknownInput, c.model.Name)
	}
	ep, err := c.endpoint(id)
	if err != nil {
		return err
	}
	frames, err := c.model.Drive.Encode(c.bindings, steering, throttle)
	if err != nil {
		return err
	}
	for _, f := range frames {
		if err := c.write(ctx, ep, f); err != nil {
			c.dropOnFailure(err)
			return nil
		}
	}
	return nil
}

// Throttle drives forward or backward with neutral steering.
func (c *Controller) Throttle(ctx context.Context, id seat.ID, throttle float32) error {
	return c.Drive(ctx, id, throttle, 0)
}

// Steer steers with neutral throttle.
func (c *Controller) Steer(ctx context.Context, id seat.ID, steering float32) error {
	return c.Drive(ctx, id, 0, steering)
}

// SetSwitch flips the model's on/off input.
func (c *Controller) SetSwitch(ctx context.Context, id seat.ID, on bool) error {
	if c.model.Switch == nil {
		return fmt.Errorf("%w: model %s has no switch", ErrUnknownInput, c.model.Name)
	}
	ep, err := c.endpoint(id)
	if err != nil {
		return err
	}
	frame, err := c.model.Switch.Encode(c.bindings, on)
	if err != nil {
		return err
	}
	c.dropOnFailure(c.write(ctx, ep, frame))
	return nil
}

// SendFrame writes a prebuilt frame. Unlike Send it reports
// ErrSeatUnavailable so periodic callers can log per seat.
func (c *Controller) SendFrame(ctx context.Context, id seat.ID, frame []byte) error {
	ep, err := c.endpoint(id)
	if err != nil {
		return err
	}
	return c.write(ctx, ep, frame)
}

// RequestBattery sends a battery status request without waiting for the reply.
func (c *Controller) RequestBattery(ctx context.Context, id seat.ID) error {
	return c.SendFrame(ctx, id, protocol.EncodeBatteryRequest())
}

// Drain discards whatever the seat sends within window. When the seat has an
// inbound loop the drain runs inside it, and bytes of a partial frame the loop
// had already buffered are discarded too and counted in the result.
func (c *Controller) Drain(id seat.ID, window time.Duration) (int, error) {
	c.mu.RLock()
	ep, ok := c.sess.endpoints[id]
	in := c.sess.inbound[id]
	c.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnknownSeat, id)
	}

	var n int
	var err error
	ran := false
	if in != nil {
		n, ran, err = in.drain(window)
	}
	if !ran {
		n, err = ep.Drain(window)
	}
	if err != nil {
		return n, fmt.Errorf("%w: seat %d: %v", ErrSeatUnavailable, id, err)
	}
	return n, nil
}

func (c *Controller) write(ctx context.Context, ep *seat.Endpoint, frame []byte) error {
	if len(frame) == 0 {
		return fmt.Errorf("%w: empty frame for seat %d", protocol.ErrEncoding, ep.ID())
	}
	label := ep.ID().String()
	command := protocol.CommandID(frame[0]).String()

	if ep.Closed() {
		metrics.DroppedSendsTotal.WithLabelValues(label).Inc()
		return fmt.Errorf("%w: seat %d is closed, dropped %s", ErrSeatUnavailable, ep.ID(), command)
	}
	if err := ep.Send(ctx, frame); err != nil {
		metrics.FramesSentTotal.WithLabelValues(label, command, "error").Inc()
		metrics.DroppedSendsTotal.WithLabelValues(label).Inc()
		return fmt.Errorf("%w: seat %d: %v", ErrSeatUnavailable, ep.ID(), err)
	}
	metrics.FramesSentTotal.WithLabelValues(label, command, "ok").Inc()
	c.log.Debug("Sent frame", "seat", int(ep.ID()), "command", command, "frame", frame)
	return nil
}

func (c *Controller) dropOnFailure(err error) {
	if err == nil {
		return
	}
	if errors.Is(err, seat.ErrIO) {
		c.log.Warn("Send failed, seat marked unreachable", "error", err)
		return
	}
	c.log.Debug("Send dropped", "error", err)
}

// OpenSeats returns the seats whose endpoint is open, in ascending order.
func (c *Controller) OpenSeats() []seat.ID {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]seat.ID, 0, len(c.sess.endpoints))
	for id, ep := range c.sess.endpoints {
		if !ep.Closed() {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CurrentSet is the set number selected by the last configuration.
func (c *Controller) CurrentSet() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sess.currentSet
}

// SeatsInCurrentSet returns the connected, enabled seats of the current set.
func (c *Controller) SeatsInCurrentSet() []seat.ID {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []seat.ID
	for id, sc := range c.sess.seats {
		if sc.Set == c.sess.currentSet && sc.Enabled && !c.sess.endpoints[id].Closed() {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Seats reports every configured seat.
func (c *Controller) Seats() []SeatStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]SeatStatus, 0, len(c.sess.seats))
	for id, sc := range c.sess.seats {
		ep := c.sess.endpoints[id]
		st := SeatStatus{
			Seat:    id,
			Address: sc.Address,
			Set:     sc.Set,
			Enabled: sc.Enabled,
			State:   ep.State(),
		}
		if cause := ep.Cause(); cause != nil {
			st.Error = cause.Error()
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seat < out[j].Seat })
	return out
}

// Shutdown stops the inbound loops, returns every input of every seat to
// neutral and closes the endpoints.
func (c *Controller) Shutdown(ctx context.Context) {
	c.configMu.Lock()
	defer c.configMu.Unlock()
	c.shutdown(ctx)
}

func (c *Controller) shutdown(ctx context.Context) {
	c.mu.Lock()
	sess := c.sess
	c.sess = emptySession()
	c.mu.Unlock()

	if sess.cancel != nil {
		sess.cancel()
		_ = sess.loops.Wait()
	}

	ids := make([]seat.ID, 0, len(sess.endpoints))
	for id := range sess.endpoints {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		ep := sess.endpoints[id]
		if !ep.Closed() {
			c.log.Info("Shutting down inputs for seat", "seat", int(id))
			for _, name := range c.bindings.Names() {
				frame, err := c.bindings.Encode(name, 0)
				if err != nil {
					continue
				}
				if err := c.write(ctx, ep, frame); err != nil {
					c.dropOnFailure(err)
					break
				}
			}
		}
		if err := ep.Close(); err != nil {
			c.log.Warn("Closing seat failed", "seat", int(id), "error", err)
		}
	}
}
