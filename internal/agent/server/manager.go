package server

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/autopeer-io/seatlink/pkg/log"
)

// Server is anything the agent runs until its context ends: protocol
// servers, the battery poller, the session watcher.
type Server interface {
	Start(ctx context.Context) error
}

// Manager runs a set of servers; the first one to fail stops the others.
type Manager struct {
	servers []Server
}

func NewManager(servers ...Server) *Manager {
	return &Manager{servers: servers}
}

// Add appends s; it must be called before Start.
func (m *Manager) Add(s Server) {
	m.servers = append(m.servers, s)
}

// Start launches all servers in parallel and waits for termination.
func (m *Manager) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, srv := range m.servers {
		g.Go(func() error {
			return srv.Start(ctx)
		})
	}

	log.Info("All servers starting...", "count", len(m.servers))
	return g.Wait()
}
