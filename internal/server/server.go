// Package server is the browser surface: a JSON API over the refresh
// session, a websocket stream of state and a small HTML status page.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/theirongolddev/redline/internal/counter"
	"github.com/theirongolddev/redline/internal/events"
	"github.com/theirongolddev/redline/internal/output"
	"github.com/theirongolddev/redline/internal/refresh"
)

// Session is the part of the refresh loop the server drives.
type Session interface {
	Snapshot() refresh.Snapshot
	RefreshOnce(ctx context.Context) error
	SetBaselineFromCurrent() (counter.Snapshot, error)
	StartAutoRefresh(interval time.Duration) error
	StopAutoRefresh()
	Subscribe(fn events.EventHandler) events.UnsubscribeFunc
	History(limit int) []events.BusEvent
}

// Options configures a Server.
type Options struct {
	Channels     []output.Channel
	Total        output.Channel
	AutoInterval time.Duration
	Log          *logrus.Entry
}

// Server serves the API, the websocket stream and the status page.
type Server struct {
	session Session
	opts    Options
	log     *logrus.Entry
	engine  *gin.Engine
	hub     *Hub

	unsubscribe events.UnsubscribeFunc
}

// New builds the router and starts forwarding session events to websocket
// clients. Call Close to stop.
func New(session Session, opts Options) *Server {
	if opts.Log == nil {
		opts.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	if opts.AutoInterval <= 0 {
		opts.AutoInterval = time.Minute
	}

	s := &Server{
		session: session,
		opts:    opts,
		log:     opts.Log.WithField("component", "server"),
	}
	s.hub = NewHub(s.log)
	s.engine = s.router()
	s.unsubscribe = session.Subscribe(func(events.BusEvent) {
		s.hub.Broadcast(s.status())
	})
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Run listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// Close stops forwarding events and disconnects websocket clients.
func (s *Server) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.hub.Close()
}

func (s *Server) status() output.Status {
	return output.NewStatus(s.session.Snapshot(), s.opts.Channels, s.opts.Total)
}
