package status

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	slogecho "github.com/samber/slog-echo"

	"support-feed-worker/internal/worker"
)

// Source exposes the current poll loop state.
type Source interface {
	Snapshot() worker.Stats
}

type Server struct {
	e      *echo.Echo
	source Source
	runID  string
}

func New(log *slog.Logger, source Source, runID string) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(slogecho.New(log))
	e.Use(middleware.Recover())

	s := &Server{e: e, source: source, runID: runID}
	e.GET("/healthz", s.health)
	e.GET("/status", s.status)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.e
}

// Start serves until Shutdown is called.
func (s *Server) Start(addr string) error {
	if err := s.e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	RunID string `json:"run_id"`
	worker.Stats
}

func (s *Server) status(c echo.Context) error {
	return c.JSON(http.StatusOK, statusResponse{RunID: s.runID, Stats: s.source.Snapshot()})
}
