package http

import (
	"bytes"
	"io"
	"net/http"

	"edgeview/internal/core/domain"
	apperrors "edgeview/pkg/errors"

	"github.com/gin-gonic/gin"
)

// DetectionFeed is the overlay channel as seen by the API.
type DetectionFeed interface {
	Latest() (domain.DetectionBatch, bool)
	Connected() bool
}

// Surface is the painted overlay.
type Surface interface {
	EncodePNG(w io.Writer) error
	Resize(width, height int)
	Size() (width, height int)
	Slot() domain.SlotID
}

type OverlayHandler struct {
	feed    DetectionFeed
	surface Surface
}

func NewOverlayHandler(feed DetectionFeed, surface Surface) *OverlayHandler {
	return &OverlayHandler{feed: feed, surface: surface}
}

func (h *OverlayHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api/v1/overlay")
	{
		api.GET("/detections", h.GetDetections)
		api.GET("/frame.png", h.GetFrame)
		api.PUT("/size", h.Resize)
	}
}

func (h *OverlayHandler) GetDetections(c *gin.Context) {
	if h.feed == nil {
		c.JSON(http.StatusOK, gin.H{"enabled": false})
		return
	}
	batch, ok := h.feed.Latest()
	resp := gin.H{
		"enabled":   true,
		"connected": h.feed.Connected(),
	}
	if ok {
		resp["batch"] = batch
	}
	if h.surface != nil {
		if slot := h.surface.Slot(); slot != "" {
			resp["slot_id"] = slot
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *OverlayHandler) GetFrame(c *gin.Context) {
	if h.surface == nil {
		_ = c.Error(apperrors.NewNotFoundError("overlay"))
		return
	}
	var buf bytes.Buffer
	if err := h.surface.EncodePNG(&buf); err != nil {
		_ = c.Error(err)
		return
	}
	c.Header("Cache-Control", "no-store")
	if slot := h.surface.Slot(); slot != "" {
		c.Header("X-Overlay-Slot", string(slot))
	}
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

// Resize follows the rendered video dimensions.
func (h *OverlayHandler) Resize(c *gin.Context) {
	if h.surface == nil {
		_ = c.Error(apperrors.NewNotFoundError("overlay"))
		return
	}
	var req struct {
		Width  int `json:"width" binding:"required,min=1,max=7680"`
		Height int `json:"height" binding:"required,min=1,max=4320"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}
	h.surface.Resize(req.Width, req.Height)
	w, hgt := h.surface.Size()
	c.JSON(http.StatusOK, gin.H{"width": w, "height": hgt})
}
