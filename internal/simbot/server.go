package simbot

import (
	"context"
	"errors"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/autopeer-io/seatlink/internal/protocol"
	"github.com/autopeer-io/seatlink/pkg/log"
)

type Config struct {
	// Addr to listen on, e.g. ":31338".
	Addr    string
	Battery Battery
	// Discharge is the SoC lost per status request.
	Discharge float32
	// Ack answers every actuator frame with a 2-byte [cmd, 0x01] reply.
	// PING is always answered.
	Ack bool
	// ResponseDelay postpones battery responses.
	ResponseDelay time.Duration
	Logger        log.Logger
}

const ackOK = 0x01

// Server speaks the robot side of the seat protocol.
type Server struct {
	cfg    Config
	dev    *Device
	log    log.Logger
	ln     net.Listener
	listen chan struct{}
}

func New(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":31338"
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Std()
	}
	logger := cfg.Logger.WithName("simbot")
	return &Server{
		cfg:    cfg,
		dev:    NewDevice(cfg.Battery, cfg.Discharge, logger),
		log:    logger,
		listen: make(chan struct{}),
	}
}

// Device exposes the simulated state.
func (s *Server) Device() *Device { return s.dev }

// Listening is closed once Start has bound its address.
func (s *Server) Listening() <-chan struct{} { return s.listen }

// Addr is the bound address; valid after Listening is closed.
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Start accepts connections until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	close(s.listen)
	s.log.Info("[SimBot] Listening", "addr", ln.Addr().String())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return ln.Close()
	})
	g.Go(func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if gctx.Err() != nil || errors.Is(err, net.ErrClosed) {
					return nil
				}
				return err
			}
			g.Go(func() error {
				s.serve(gctx, conn)
				return nil
			})
		}
	})
	return g.Wait()
}

func (s *Server) serve(ctx context.Context, conn net.Conn) {
	logger := s.log.WithValues("peer", conn.RemoteAddr().String())
	logger.Info("[SimBot] Controller connected")
	done := make(chan struct{})
	defer func() {
		close(done)
		conn.Close()
	}()

	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	dec := protocol.NewRequestDecoder()
	buf := make([]byte, 256)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			dec.Feed(buf[:n])
			if !s.process(ctx, conn, dec, logger) {
				return
			}
		}
		if err != nil {
			logger.Info("[SimBot] Controller disconnected", "reason", err.Error())
			return
		}
	}
}

// process handles every complete frame buffered in dec. It returns false
// once the connection is unusable.
func (s *Server) process(ctx context.Context, conn net.Conn, dec *protocol.Decoder, logger log.Logger) bool {
	for {
		f, ok, err := dec.Next()
		if err != nil {
			logger.Warn("[SimBot] Garbage on the wire", "error", err)
			return true
		}
		if !ok {
			return true
		}

		var reply []byte
		switch f.Command {
		case protocol.BatteryStatus:
			if s.cfg.ResponseDelay > 0 {
				select {
				case <-ctx.Done():
					return false
				case <-time.After(s.cfg.ResponseDelay):
				}
			}
			b := s.dev.ReadBattery()
			reply = append([]byte{byte(protocol.BatteryStatus)}, protocol.EncodeBatteryResponse(b.Voltage, b.SoC)...)
		case protocol.Stop:
			s.dev.Stop()
		default:
			v, _ := protocol.DecodeValue(f.Payload)
			s.dev.Set(f.Command, v)
			if s.cfg.Ack || f.Command == protocol.Ping {
				reply = protocol.EncodeAck(f.Command, ackOK)
			}
		}

		if reply != nil {
			if _, err := conn.Write(reply); err != nil {
				logger.Error(err, "[SimBot] Reply failed")
				return false
			}
		}
	}
}
