package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/theirongolddev/redline/internal/auth"
	"github.com/theirongolddev/redline/internal/graph"
	"github.com/theirongolddev/redline/internal/output"
	"github.com/theirongolddev/redline/internal/refresh"
	"github.com/theirongolddev/redline/internal/util"
)

// AutoRequest is the body of POST /api/auto.
type AutoRequest struct {
	Enabled  *bool  `json:"enabled"`
	Interval string `json:"interval,omitempty"`
}

// Health reports liveness.
func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// State returns the current status without refreshing.
func (s *Server) State(c *gin.Context) {
	c.JSON(http.StatusOK, s.status())
}

// Events returns recent session events, newest first. ?limit caps the
// count (default 20).
func (s *Server) Events(c *gin.Context) {
	limit := 20
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, output.NewCLIError("limit must be a positive integer").WithCode("BAD_REQUEST"))
			return
		}
		limit = n
	}
	c.JSON(http.StatusOK, gin.H{"events": s.session.History(limit)})
}

// Refresh runs one cycle and returns the resulting status.
func (s *Server) Refresh(c *gin.Context) {
	if err := s.session.RefreshOnce(c.Request.Context()); err != nil {
		s.fail(c, "refresh", err)
		return
	}
	c.JSON(http.StatusOK, s.status())
}

// Baseline captures the displayed counts as the baseline.
func (s *Server) Baseline(c *gin.Context) {
	if _, err := s.session.SetBaselineFromCurrent(); err != nil {
		s.fail(c, "baseline", err)
		return
	}
	c.JSON(http.StatusOK, s.status())
}

// Auto turns auto-refresh on or off. The interval defaults to the
// configured one; a bare number is seconds.
func (s *Server) Auto(c *gin.Context) {
	var req AutoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, output.NewCLIError("invalid request: "+err.Error()).WithCode("BAD_REQUEST"))
		return
	}
	if req.Enabled == nil {
		c.JSON(http.StatusBadRequest, output.NewCLIError(`"enabled" is required`).WithCode("BAD_REQUEST"))
		return
	}

	if !*req.Enabled {
		s.session.StopAutoRefresh()
		c.JSON(http.StatusOK, s.status())
		return
	}

	interval := s.opts.AutoInterval
	if req.Interval != "" {
		d, err := util.ParseInterval(req.Interval, time.Second)
		if err != nil {
			c.JSON(http.StatusBadRequest, output.NewCLIError(err.Error()).WithCode("BAD_REQUEST"))
			return
		}
		interval = d
	}
	if err := s.session.StartAutoRefresh(interval); err != nil {
		s.fail(c, "auto-refresh", err)
		return
	}
	c.JSON(http.StatusOK, s.status())
}

func (s *Server) fail(c *gin.Context, action string, err error) {
	status := errorStatus(err)
	entry := s.log.WithError(err).WithField("action", action)
	if status >= http.StatusInternalServerError {
		entry.Warn("action failed")
	} else {
		entry.Debug("action rejected")
	}
	c.JSON(status, output.Classify(err))
}

// errorStatus maps a session error onto an HTTP status.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, refresh.ErrBusy), errors.Is(err, refresh.ErrStale):
		return http.StatusConflict
	case errors.Is(err, auth.ErrNoClientID):
		return http.StatusInternalServerError
	case auth.IsAuthError(err), graph.IsUnauthorized(err):
		return http.StatusUnauthorized
	case graph.IsTimeout(err):
		return http.StatusGatewayTimeout
	case graph.IsServerUnavailable(err):
		return http.StatusServiceUnavailable
	case graph.StatusCode(err) != 0:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
