// Package session serves the line-based TCP chat protocol. Each
// connection gets one goroutine running the authenticate → replay →
// read loop state machine; a paired writer goroutine owns the socket's
// write half and drains the session's send channel.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"parley/server/internal/core"
	"parley/server/internal/registry"
)

// Server accepts chat connections and runs a session per connection.
type Server struct {
	state *core.State
	users *registry.Store
	wg    sync.WaitGroup
}

// NewServer binds the accept loop to the room state and the user
// registry.
func NewServer(state *core.State, users *registry.Store) *Server {
	return &Server{state: state, users: users}
}

// Run listens on addr and serves until ctx is canceled. Cancellation
// closes the listener and every session socket; Run returns once all
// session goroutines have finished.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	slog.Info("chat server listening", "addr", ln.Addr().String())
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("accept: %w", err)
			}
			slog.Warn("accept failed", "err", err)
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					slog.Error("session panicked", "panic", r)
					_ = conn.Close()
				}
			}()
			s.serveConn(ctx, conn)
		}()
	}

	s.wg.Wait()
	slog.Info("chat server stopped")
	return nil
}
