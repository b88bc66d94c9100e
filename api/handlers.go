package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rustyeddy/tradectl/broker"
	"github.com/rustyeddy/tradectl/daemon"
	"github.com/rustyeddy/tradectl/journal"
	"github.com/rustyeddy/tradectl/risk"
	"github.com/rustyeddy/tradectl/state"
)

type modeRequest struct {
	Mode string `json:"mode"`
}

// OrderResponse is the /order success body.
type OrderResponse struct {
	Fill   broker.Fill   `json:"fill"`
	Status daemon.Status `json:"status"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.ctl.Status())
}

func (s *Server) handlePause(c *gin.Context) {
	c.JSON(http.StatusOK, s.ctl.Pause())
}

func (s *Server) handleResume(c *gin.Context) {
	c.JSON(http.StatusOK, s.ctl.Resume())
}

func (s *Server) handleMode(c *gin.Context) {
	var req modeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	st, err := s.ctl.SetMode(state.Mode(req.Mode))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) handlePortfolioStart(c *gin.Context) {
	st, err := s.ctl.StartPortfolio()
	if errors.Is(err, daemon.ErrNoPortfolio) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "status": st})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "status": st})
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) handlePortfolioStop(c *gin.Context) {
	c.JSON(http.StatusOK, s.ctl.StopPortfolio())
}

func (s *Server) handleOrder(c *gin.Context) {
	var o broker.Order
	if err := c.ShouldBindJSON(&o); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	ctx := c.Request.Context()
	if s.cfg.OrderTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.OrderTimeout)
		defer cancel()
	}

	fill, st, err := s.ctl.SubmitManual(ctx, o)
	if err != nil {
		c.JSON(orderStatusCode(err), gin.H{"error": err.Error(), "status": st})
		return
	}
	c.JSON(http.StatusOK, OrderResponse{Fill: fill, Status: st})
}

// orderStatusCode maps a manual order error to its HTTP status.
func orderStatusCode(err error) int {
	switch {
	case errors.Is(err, daemon.ErrInvalidOrder):
		return http.StatusBadRequest
	case errors.Is(err, risk.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, risk.ErrWindowClosed), errors.Is(err, risk.ErrDailyHalted):
		return http.StatusForbidden
	case errors.Is(err, daemon.ErrExecution):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleTransactions(c *gin.Context) {
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	txs, err := s.ctl.Transactions(limit)
	if err != nil {
		s.log.WithError(err).Warn("journal read failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "journal unavailable"})
		return
	}
	if txs == nil {
		txs = []journal.Transaction{}
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}
