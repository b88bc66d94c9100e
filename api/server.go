// Package api is the HTTP control plane. Every handler goes through the
// daemon's own methods, so requests share the control loop's lock.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rustyeddy/tradectl/broker"
	"github.com/rustyeddy/tradectl/daemon"
	"github.com/rustyeddy/tradectl/journal"
	"github.com/rustyeddy/tradectl/logger"
	"github.com/rustyeddy/tradectl/state"
	"github.com/sirupsen/logrus"
)

// Controller is the slice of the daemon the control plane drives.
type Controller interface {
	Status() daemon.Status
	Pause() daemon.Status
	Resume() daemon.Status
	SetMode(state.Mode) (daemon.Status, error)
	StartPortfolio() (daemon.Status, error)
	StopPortfolio() daemon.Status
	SubmitManual(context.Context, broker.Order) (broker.Fill, daemon.Status, error)
	Transactions(limit int) ([]journal.Transaction, error)
	Subscribe() (<-chan daemon.Status, func())
}

type Config struct {
	Addr string
	// APIToken, when set, is required as a bearer token on every route
	// except /health and /metrics.
	APIToken string
	// OrderTimeout bounds a manual order's broker call; zero means none
	// beyond the executor's own.
	OrderTimeout time.Duration
	// AllowedOrigins lists extra browser origins that may open
	// /ws/status. Same-origin pages are always allowed.
	AllowedOrigins []string
}

// Server HTTP API server
type Server struct {
	router     *gin.Engine
	ctl        Controller
	cfg        Config
	httpServer *http.Server
	upgrader   *websocket.Upgrader
	log        *logrus.Entry
}

func NewServer(ctl Controller, cfg Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery(), requestIDMiddleware(), logMiddleware())

	s := &Server{
		router: router,
		ctl:    ctl,
		cfg:    cfg,
		log:    logger.WithField("component", "api"),
	}
	s.upgrader = s.newUpgrader()
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	protected := s.router.Group("/", s.authMiddleware())
	{
		protected.GET("/status", s.handleStatus)
		protected.POST("/pause", s.handlePause)
		protected.POST("/resume", s.handleResume)
		protected.POST("/mode", s.handleMode)
		protected.POST("/portfolio/start", s.handlePortfolioStart)
		protected.POST("/portfolio/stop", s.handlePortfolioStop)
		protected.POST("/order", s.handleOrder)
		protected.GET("/transactions", s.handleTransactions)
		protected.GET("/ws/status", s.handleStatusStream)
	}
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.WithField("addr", s.cfg.Addr).Info("control plane listening")
	s.log.Info("  GET  /status        POST /pause   POST /resume")
	s.log.Info("  POST /mode          POST /order   GET  /transactions")
	s.log.Info("  GET  /ws/status     GET  /health  GET  /metrics")

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
