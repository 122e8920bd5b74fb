// Package diag serves the diagnostic HTTP surface: health, sync status,
// outbox inspection, manual drains, quarantine handling and a websocket
// stream of drain events.
package diag

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/emaamul/core/internal/app"
	apperrors "github.com/emaamul/core/internal/errors"
	"github.com/emaamul/core/internal/logging"
	"github.com/emaamul/core/internal/models"
	"github.com/emaamul/core/internal/outbox"
	"github.com/emaamul/core/internal/sync/scheduler"
)

// SessionSource yields the active session.
type SessionSource interface {
	Session() *app.Session
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SyncStatus is the body of GET /sync/status.
type SyncStatus struct {
	Owner     string            `json:"owner" yaml:"owner"`
	Storage   string            `json:"storage" yaml:"storage"`
	Status    string            `json:"status" yaml:"status"`
	LastSync  *time.Time        `json:"last_sync,omitempty" yaml:"last_sync,omitempty"`
	LastError string            `json:"last_error,omitempty" yaml:"last_error,omitempty"`
	Outbox    outbox.Stats      `json:"outbox" yaml:"outbox"`
	Scheduler *scheduler.Status `json:"scheduler,omitempty" yaml:"scheduler,omitempty"`
}

// Server routes diagnostic requests to the active session.
type Server struct {
	sessions  SessionSource
	scheduler *scheduler.Scheduler
	hub       *Hub
	router    *gin.Engine
}

// NewServer builds the router. sched may be nil.
func NewServer(sessions SessionSource, sched *scheduler.Scheduler, hub *Hub) *Server {
	s := &Server{sessions: sessions, scheduler: sched, hub: hub}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	r.GET("/health", s.health)

	g := r.Group("/sync")
	{
		g.GET("/status", s.status)
		g.POST("/drain", s.drain)
		g.GET("/queue", s.queue)
		g.GET("/quarantine", s.quarantine)
		g.POST("/quarantine/requeue", s.requeueAll)
		g.POST("/quarantine/:id/requeue", s.requeue)
		g.DELETE("/quarantine/:id", s.discard)
		if hub != nil {
			g.GET("/events", hub.Handle)
		}
	}
	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve listens on addr until ctx ends.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logging.Info("Diagnostics listening", map[string]any{"addr": addr})

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logging.Debug("Diagnostics request", map[string]any{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		})
	}
}

func httpStatus(err error) int {
	switch apperrors.CodeOf(err) {
	case apperrors.ErrNotFound:
		return http.StatusNotFound
	case apperrors.ErrValidation:
		return http.StatusBadRequest
	case apperrors.ErrSyncInProgress:
		return http.StatusConflict
	case apperrors.ErrStorageUnavailable:
		return http.StatusServiceUnavailable
	case apperrors.ErrRemoteWriteFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	c.JSON(httpStatus(err), ErrorResponse{Code: string(apperrors.CodeOf(err)), Message: err.Error()})
}

func (s *Server) health(c *gin.Context) {
	sess := s.sessions.Session()
	status := http.StatusOK
	state := "ok"
	if !sess.Available() {
		status = http.StatusServiceUnavailable
		state = "storage_unavailable"
	}
	c.JSON(status, gin.H{"status": state, "owner": sess.Owner, "storage": string(sess.Store.Engine())})
}

// Status builds the sync status of the active session.
func (s *Server) Status(ctx context.Context) (*SyncStatus, error) {
	sess := s.sessions.Session()
	stats, err := sess.Outbox.Stats(ctx)
	if err != nil {
		return nil, err
	}
	out := &SyncStatus{
		Owner:    sess.Owner,
		Storage:  string(sess.Store.Engine()),
		Status:   string(sess.Engine.Status()),
		LastSync: sess.Engine.LastSync(),
		Outbox:   stats,
	}
	if err := sess.Engine.LastError(); err != nil {
		out.LastError = err.Error()
	}
	if s.scheduler != nil {
		st := s.scheduler.GetStatus()
		out.Scheduler = &st
	}
	return out, nil
}

func (s *Server) status(c *gin.Context) {
	st, err := s.Status(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) drain(c *gin.Context) {
	ran, err := s.sessions.Session().Engine.DrainQueue(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ran": ran})
}

func (s *Server) queue(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil {
		fail(c, apperrors.Wrap(apperrors.ErrValidation, "limit", err))
		return
	}
	entries, err := s.sessions.Session().Outbox.Pending(c.Request.Context(), limit)
	if err != nil {
		fail(c, err)
		return
	}
	if entries == nil {
		entries = []models.OutboxEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (s *Server) quarantine(c *gin.Context) {
	entries, err := s.sessions.Session().Outbox.Quarantined(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	if entries == nil {
		entries = []models.QuarantinedEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func entryID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		fail(c, apperrors.Wrap(apperrors.ErrValidation, "entry id", err))
		return 0, false
	}
	return id, true
}

func (s *Server) requeue(c *gin.Context) {
	id, ok := entryID(c)
	if !ok {
		return
	}
	newID, err := s.sessions.Session().Outbox.Requeue(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	if s.scheduler != nil {
		s.scheduler.Trigger()
	}
	c.JSON(http.StatusOK, gin.H{"id": newID})
}

func (s *Server) requeueAll(c *gin.Context) {
	n, err := s.sessions.Session().Outbox.RequeueAll(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	if n > 0 && s.scheduler != nil {
		s.scheduler.Trigger()
	}
	c.JSON(http.StatusOK, gin.H{"requeued": n})
}

func (s *Server) discard(c *gin.Context) {
	id, ok := entryID(c)
	if !ok {
		return
	}
	if err := s.sessions.Session().Outbox.Discard(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
