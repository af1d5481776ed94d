package seat

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/looplab/fsm"

	"github.com/autopeer-io/seatlink/internal/pkg/metrics"
	fsmutil "github.com/autopeer-io/seatlink/internal/pkg/util/fsm"
	"github.com/autopeer-io/seatlink/pkg/log"
)

// ID distinguishes one robot connection among those controlled by a session.
type ID int

func (id ID) String() string { return strconv.Itoa(int(id)) }

const (
	StateOpen   = "open"
	StateClosed = "closed"

	// EventClose is the only transition; closed is terminal.
	EventClose = "close"
)

var (
	// ErrClosed is returned by Send and Receive once the endpoint is closed.
	ErrClosed = errors.New("seat: endpoint closed")
	// ErrIO wraps transport failures; an ErrIO always leaves the endpoint closed.
	ErrIO = errors.New("seat: i/o error")
)

const (
	DefaultReadBufferSize = 100
	DefaultWriteTimeout   = 2 * time.Second
	DefaultConnectTimeout = 5 * time.Second
)

// Config tunes a single endpoint.
type Config struct {
	// ReadBufferSize bounds how many bytes one Receive returns.
	ReadBufferSize int
	// WriteTimeout bounds one Send when the context carries no deadline.
	WriteTimeout time.Duration
	// ConnectTimeout bounds Dial.
	ConnectTimeout time.Duration
	Logger         log.Logger
}

func (c Config) withDefaults() Config {
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = DefaultReadBufferSize
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Logger == nil {
		c.Logger = log.Std()
	}
	return c
}

// CloseHook observes the open → closed transition. cause is nil for an
// explicit Close.
type CloseHook func(id ID, cause error)

// Endpoint owns one TCP connection to one seat. Writes are serialised so
// frames never interleave; reads are serialised so that an inbound loop and
// a drain never split a frame between them.
type Endpoint struct {
	id   ID
	addr string
	conn net.Conn
	cfg  Config
	log  log.Logger
	sm   *fsm.FSM

	writeMu sync.Mutex
	readMu  sync.Mutex
	buf     []byte

	closeOnce sync.Once
	closeErr  error

	hookMu sync.Mutex
	hooks  []CloseHook
	fired  bool
	cause  error
}

// New wraps an established connection.
func New(id ID, conn net.Conn, cfg Config) *Endpoint {
	cfg = cfg.withDefaults()
	e := &Endpoint{
		id:   id,
		conn: conn,
		cfg:  cfg,
		log:  cfg.Logger.WithValues("seat", int(id)),
		buf:  make([]byte, cfg.ReadBufferSize),
	}
	if conn != nil && conn.RemoteAddr() != nil {
		e.addr = conn.RemoteAddr().String()
	}

	e.sm = fsm.NewFSM(
		StateOpen,
		fsm.Events{
			{Name: EventClose, Src: []string{StateOpen}, Dst: StateClosed},
		},
		fsm.Callbacks{
			"enter_" + StateClosed: fsmutil.WrapEvent(e.actionEnterClosed),
		},
	)
	metrics.SeatUp.WithLabelValues(id.String()).Set(1)
	return e
}

// Dial connects to addr and returns an open endpoint.
func Dial(ctx context.Context, id ID, addr string, cfg Config) (*Endpoint, error) {
	cfg = cfg.withDefaults()
	d := net.Dialer{Timeout: cfg.ConnectTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial seat %d at %s: %v", ErrIO, id, addr, err)
	}
	e := New(id, conn, cfg)
	e.addr = addr
	e.log.Info("Seat connected", "address", addr)
	return e, nil
}

// Unreachable returns an endpoint that starts closed. It stands in for a
// configured seat whose connection could not be established, so sends to it
// are dropped instead of reported as an unknown seat.
func Unreachable(id ID, addr string, cause error, cfg Config) *Endpoint {
	e := New(id, nil, cfg)
	e.addr = addr
	e.markClosed(cause)
	return e
}

func (e *Endpoint) ID() ID { return e.id }

// Addr is the remote address the endpoint was created for.
func (e *Endpoint) Addr() string { return e.addr }

// Closed reports whether the endpoint has reached its terminal state.
func (e *Endpoint) Closed() bool {
	return e.sm.Is(StateClosed)
}

// State returns "open" or "closed".
func (e *Endpoint) State() string {
	return e.sm.Current()
}

// Cause returns the error that closed the endpoint, nil while open or after an explicit Close.
func (e *Endpoint) Cause() error {
	e.hookMu.Lock()
	defer e.hookMu.Unlock()
	return e.cause
}

// OnClose registers a hook run once when the endpoint closes. Registering on
// an already closed endpoint runs the hook immediately.
func (e *Endpoint) OnClose(h CloseHook) {
	e.hookMu.Lock()
	if !e.fired {
		e.hooks = append(e.hooks, h)
		e.hookMu.Unlock()
		return
	}
	cause := e.cause
	e.hookMu.Unlock()
	h(e.id, cause)
}

// Send writes one full frame. On any write failure the endpoint is closed.
func (e *Endpoint) Send(ctx context.Context, frame []byte) error {
	if e.Closed() {
		return ErrClosed
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	// Close may have won the race for the lock.
	if e.Closed() {
		return ErrClosed
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(e.cfg.WriteTimeout)
	}
	if err := e.conn.SetWriteDeadline(deadline); err != nil {
		e.markClosed(err)
		return fmt.Errorf("%w: set write deadline: %v", ErrIO, err)
	}

	if _, err := e.conn.Write(frame); err != nil {
		e.markClosed(err)
		return fmt.Errorf("%w: write to seat %d: %v", ErrIO, e.id, err)
	}
	return nil
}

// Receive reads at most ReadBufferSize bytes, waiting up to timeout.
// A timeout yields (nil, nil); any other failure closes the endpoint.
func (e *Endpoint) Receive(timeout time.Duration) ([]byte, error) {
	if e.Closed() {
		return nil, ErrClosed
	}

	e.readMu.Lock()
	defer e.readMu.Unlock()
	return e.read(timeout)
}

// Drain discards everything that arrives within window and returns the
// number of bytes thrown away. It holds the read side for the whole window.
func (e *Endpoint) Drain(window time.Duration) (int, error) {
	if e.Closed() {
		return 0, ErrClosed
	}

	e.readMu.Lock()
	defer e.readMu.Unlock()

	end := time.Now().Add(window)
	total := 0
	for {
		left := time.Until(end)
		if left <= 0 {
			return total, nil
		}
		b, err := e.read(left)
		if err != nil {
			return total, err
		}
		if len(b) == 0 {
			return total, nil
		}
		total += len(b)
	}
}

// read must be called with readMu held. The returned slice is a copy.
func (e *Endpoint) read(timeout time.Duration) ([]byte, error) {
	if e.Closed() {
		return nil, ErrClosed
	}
	if err := e.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		e.markClosed(err)
		return nil, fmt.Errorf("%w: set read deadline: %v", ErrIO, err)
	}

	n, err := e.conn.Read(e.buf)
	if n > 0 {
		out := make([]byte, n)
		copy(out, e.buf[:n])
		return out, nil
	}
	if err == nil {
		return nil, nil
	}
	if isTimeout(err) {
		return nil, nil
	}
	if e.Closed() {
		// Close raced the read and tore the socket down.
		return nil, ErrClosed
	}
	e.markClosed(err)
	return nil, fmt.Errorf("%w: read from seat %d: %v", ErrIO, e.id, err)
}

// Close releases the socket. Closing a closed endpoint is a no-op.
func (e *Endpoint) Close() error {
	if e.markClosed(nil) {
		return e.closeErr
	}
	return nil
}

// markClosed reports whether this call performed the transition.
func (e *Endpoint) markClosed(cause error) bool {
	first := false
	e.closeOnce.Do(func() {
		first = true
		if err := e.sm.Event(context.Background(), EventClose, cause); err != nil && !fsmutil.IsNoTransition(err) {
			e.log.Warn("Seat close transition failed", "error", err)
		}
		if e.conn != nil {
			e.closeErr = e.conn.Close()
		}

		e.hookMu.Lock()
		e.cause = cause
		e.fired = true
		hooks := e.hooks
		e.hooks = nil
		e.hookMu.Unlock()

		for _, h := range hooks {
			h(e.id, cause)
		}
	})
	return first
}

func (e *Endpoint) actionEnterClosed(_ context.Context, ev *fsm.Event) error {
	metrics.SeatUp.WithLabelValues(e.id.String()).Set(0)
	if cause := fsmutil.ErrorArg(ev); cause != nil {
		e.log.Warn("Seat connection lost", "address", e.addr, "error", cause)
		return nil
	}
	e.log.Info("Seat connection closed", "address", e.addr)
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
