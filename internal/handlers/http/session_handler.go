package http

import (
	"context"
	"net/http"
	"time"

	"edgeview/internal/core/domain"
	"edgeview/internal/core/ports"
	apperrors "edgeview/pkg/errors"
	"edgeview/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Pool is what the session API drives.
type Pool interface {
	ports.SessionPool
	MaxConcurrency() int
}

// StatsSource reports per-source negotiation statistics.
type StatsSource interface {
	AllStats() []domain.SourceStats
}

type SessionHandler struct {
	pool           Pool
	sources        ports.SourceService
	stats          StatsSource
	connectTimeout time.Duration
	logger         *zap.SugaredLogger
}

func NewSessionHandler(pool Pool, sources ports.SourceService, stats StatsSource, connectTimeout time.Duration, logger *zap.SugaredLogger) *SessionHandler {
	if connectTimeout <= 0 {
		connectTimeout = 30 * time.Second
	}
	return &SessionHandler{
		pool:           pool,
		sources:        sources,
		stats:          stats,
		connectTimeout: connectTimeout,
		logger:         logger,
	}
}

func (h *SessionHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		api.GET("/sessions", h.ListSessions)
		api.POST("/sessions", h.AddSession)
		api.GET("/sessions/:id", h.GetSession)
		api.DELETE("/sessions/:id", h.RemoveSession)
		api.POST("/sessions/:id/activate", h.Activate)
		api.POST("/sessions/:id/connect", h.Connect)
		api.POST("/sessions/:id/disconnect", h.Disconnect)
		api.POST("/sessions/:id/reconnect", h.Reconnect)

		api.GET("/layout", h.GetLayout)
		api.PUT("/layout/fullscreen/:id", h.SetFullscreen)
		api.DELETE("/layout/fullscreen", h.ClearFullscreen)

		api.GET("/stats", h.GetStats)
	}
}

func (h *SessionHandler) ListSessions(c *gin.Context) {
	active, _ := h.pool.Active()
	c.JSON(http.StatusOK, gin.H{
		"slots":           h.pool.Slots(),
		"active":          active,
		"size":            h.pool.Size(),
		"max_concurrency": h.pool.MaxConcurrency(),
		"layout":          h.pool.Layout(),
	})
}

func (h *SessionHandler) slotView(id domain.SlotID) (domain.SlotView, error) {
	for _, v := range h.pool.Slots() {
		if v.ID == id {
			return v, nil
		}
	}
	return domain.SlotView{}, domain.ErrSlotNotFound
}

func (h *SessionHandler) GetSession(c *gin.Context) {
	view, err := h.slotView(domain.SlotID(c.Param("id")))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"slot": view})
}

// AddSession puts a stored source into a new slot. With "connect": true
// the session is negotiated before responding; a negotiation failure is
// reported in the slot's session state, not as a request error.
func (h *SessionHandler) AddSession(c *gin.Context) {
	var req struct {
		SourceID domain.SourceID `json:"source_id" binding:"required"`
		Connect  bool            `json:"connect"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}

	ctx := c.Request.Context()
	src, err := h.sources.Get(ctx, req.SourceID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	id, err := h.pool.AddSession(src)
	if err != nil {
		_ = c.Error(err)
		return
	}

	if req.Connect {
		if session, err := h.pool.Session(id); err == nil {
			cctx, cancel := h.connectContext(ctx, id)
			if err := session.Connect(cctx); err != nil {
				h.logger.Warnw("connect on add failed", "slot_id", id, "source_id", src.ID, "error", err)
			}
			cancel()
		}
	}

	view, err := h.slotView(id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"slot": view})
}

func (h *SessionHandler) RemoveSession(c *gin.Context) {
	if err := h.pool.RemoveSession(domain.SlotID(c.Param("id"))); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *SessionHandler) Activate(c *gin.Context) {
	if err := h.pool.SetActive(domain.SlotID(c.Param("id"))); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"active": c.Param("id"), "layout": h.pool.Layout()})
}

// connectContext outlives the HTTP request so a client hanging up does not
// abort a negotiation half way; connectTimeout bounds it instead.
func (h *SessionHandler) connectContext(ctx context.Context, id domain.SlotID) (context.Context, context.CancelFunc) {
	ctx = logger.WithSlotID(context.WithoutCancel(ctx), string(id))
	return context.WithTimeout(ctx, h.connectTimeout)
}

func (h *SessionHandler) drive(c *gin.Context, op func(ctx context.Context, s ports.Session) error) {
	id := domain.SlotID(c.Param("id"))
	session, err := h.pool.Session(id)
	if err != nil {
		_ = c.Error(err)
		return
	}

	ctx, cancel := h.connectContext(c.Request.Context(), id)
	defer cancel()
	if err := op(ctx, session); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session.Snapshot()})
}

func (h *SessionHandler) Connect(c *gin.Context) {
	h.drive(c, func(ctx context.Context, s ports.Session) error { return s.Connect(ctx) })
}

func (h *SessionHandler) Disconnect(c *gin.Context) {
	h.drive(c, func(_ context.Context, s ports.Session) error {
		s.Disconnect()
		return nil
	})
}

func (h *SessionHandler) Reconnect(c *gin.Context) {
	h.drive(c, func(ctx context.Context, s ports.Session) error { return s.Reconnect(ctx) })
}

func (h *SessionHandler) GetLayout(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"layout": h.pool.Layout()})
}

func (h *SessionHandler) SetFullscreen(c *gin.Context) {
	if err := h.pool.SetFullscreen(domain.SlotID(c.Param("id"))); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"layout": h.pool.Layout()})
}

func (h *SessionHandler) ClearFullscreen(c *gin.Context) {
	h.pool.ClearFullscreen()
	c.JSON(http.StatusOK, gin.H{"layout": h.pool.Layout()})
}

func (h *SessionHandler) GetStats(c *gin.Context) {
	if h.stats == nil {
		c.JSON(http.StatusOK, gin.H{"sources": []domain.SourceStats{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sources": h.stats.AllStats()})
}
