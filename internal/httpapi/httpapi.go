package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/livetrack/mapview/internal/geo"
	"github.com/livetrack/mapview/internal/reconcile"
	"github.com/livetrack/mapview/internal/surface"
	"github.com/livetrack/mapview/internal/viewport"
	"github.com/livetrack/mapview/pkg/core"
)

// Status is the health report of a running session.
type Status struct {
	DeviceID    string    `json:"deviceId"`
	Surface     string    `json:"surface"`
	Passes      int64     `json:"passes"`
	Failures    int64     `json:"failures"`
	LastApplied time.Time `json:"lastApplied,omitempty"`
	LastError   string    `json:"lastError,omitempty"`
}

type session interface {
	Status() Status
	Zoom(target viewport.Target) error
	Clear(c reconcile.Component) (reconcile.Result, error)
}

type zoomRequest struct {
	Target     string `json:"target" binding:"required"`
	Coordinate string `json:"coordinate"`
}

// Handler serves health and the current surface contents.
type Handler struct {
	state   surface.Stater
	session session
	log     *slog.Logger
}

func NewHandler(state surface.Stater, s session, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{state: state, session: s, log: log.With("component", "http")}
}

func (h *Handler) Register(r *gin.RouterGroup) {
	r.GET("/healthz", h.Health)
	r.GET("/api/entities", h.Entities)
	r.GET("/api/entities/:kind", h.EntitiesOfKind)
	r.DELETE("/api/entities", h.Clear)
	r.POST("/api/zoom", h.Zoom)
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, h.session.Status())
}

func (h *Handler) Entities(c *gin.Context) {
	c.JSON(http.StatusOK, h.state.State())
}

func (h *Handler) EntitiesOfKind(c *gin.Context) {
	kind := core.ParseEntityKind(c.Param("kind"))
	if kind == core.KindUnknown {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown entity kind"})
		return
	}

	st := h.state.State()
	list := st.Markers
	if kind.IsOverlay() {
		list = st.Overlays
	}
	out := make([]surface.EntityState, 0, 1)
	for _, es := range list {
		if es.Kind == kind.String() {
			out = append(out, es)
		}
	}
	c.JSON(http.StatusOK, out)
}

// Clear removes a component (?component=device|trip|everything).
func (h *Handler) Clear(c *gin.Context) {
	comp, ok := reconcile.ParseComponent(c.DefaultQuery("component", "everything"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown component"})
		return
	}

	res, err := h.session.Clear(comp)
	if err != nil {
		h.log.Error("clear failed", "component", c.Query("component"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "clear failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": res.Removed.Total()})
}

func (h *Handler) Zoom(c *gin.Context) {
	var req zoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid zoom request"})
		return
	}

	target, ok := viewport.ParseTarget(req.Target)
	if !ok {
		if req.Target != "coordinate" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown target"})
			return
		}
		coord, err := geo.ParseCoordinate(req.Coordinate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		target = viewport.TargetCoordinate(coord)
	}

	if err := h.session.Zoom(target); err != nil {
		if errors.Is(err, viewport.ErrNoTarget) {
			c.JSON(http.StatusNotFound, gin.H{"error": "nothing to zoom on"})
			return
		}
		h.log.Error("zoom failed", "target", req.Target, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "zoom failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

// Server runs the gin engine on addr until Shutdown.
type Server struct {
	srv *http.Server
	log *slog.Logger
}

func NewServer(addr string, h *Handler, log *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	h.Register(r.Group(""))
	if log == nil {
		log = slog.Default()
	}
	return &Server{srv: &http.Server{Addr: addr, Handler: r}, log: log}
}

// Start listens in the background. Listener errors other than a clean
// shutdown are logged.
func (s *Server) Start() {
	go func() {
		s.log.Info("http listening", "address", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server stopped", "error", err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
