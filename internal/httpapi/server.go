// Package httpapi is the operational HTTP surface: health, room
// introspection and the Prometheus scrape endpoint. The chat protocol
// itself stays on the raw TCP listener.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"parley/server/internal/core"
	"parley/server/internal/metrics"
	"parley/server/internal/registry"
)

// Server is the Echo application.
type Server struct {
	echo  *echo.Echo
	state *core.State
	users *registry.Store
}

// New constructs the Echo app with all routes registered.
func New(state *core.State, users *registry.Store) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{echo: e, state: state, users: users}
	s.registerRoutes()
	return s
}

// Echo exposes the underlying Echo instance for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/api/state", s.handleState)
	s.echo.GET("/api/history", s.handleHistory)
	s.echo.GET("/metrics", echo.WrapHandler(metrics.Handler()))
}

// Run starts Echo and blocks until ctx cancellation or startup failure.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		err := s.echo.Start(addr)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.echo.Shutdown(shutCtx)
		return nil
	}
}

type healthResponse struct {
	Status  string `json:"status"`
	Clients int    `json:"clients"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{
		Status:  "ok",
		Clients: s.state.ClientCount(),
	})
}

type stateResponse struct {
	Clients       int      `json:"clients"`
	Online        []string `json:"online"`
	Registered    int      `json:"registered"`
	HistoryLen    int      `json:"history_len"`
	NextIndex     int      `json:"next_index"`
	PendingQueues int      `json:"pending_queues"`
	ActiveBans    []string `json:"active_bans"`
}

func (s *Server) handleState(c echo.Context) error {
	online := s.state.RosterNames()
	return c.JSON(http.StatusOK, stateResponse{
		Clients:       len(online),
		Online:        online,
		Registered:    s.users.Count(),
		HistoryLen:    s.state.HistoryLen(),
		NextIndex:     s.state.NextIndex(),
		PendingQueues: s.state.PendingQueues(),
		ActiveBans:    s.state.ActiveBans(),
	})
}

type historyEntry struct {
	Index  int    `json:"index"`
	Stamp  string `json:"stamp"`
	Author string `json:"author"`
	Text   string `json:"text"`
}

// handleHistory returns the retained room history, most recent last.
// limit=0 means everything still inside the TTL.
func (s *Server) handleHistory(c echo.Context) error {
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
		}
		limit = n
	}

	msgs := s.state.RecentHistory(limit)
	out := make([]historyEntry, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, historyEntry{
			Index:  m.Index,
			Stamp:  m.Stamp.Format(time.RFC3339),
			Author: m.Author,
			Text:   m.Text,
		})
	}
	return c.JSON(http.StatusOK, out)
}
