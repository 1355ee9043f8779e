package http

import (
	"context"
	"net/http"

	"edgeview/internal/core/domain"
	"edgeview/internal/core/ports"
	apperrors "edgeview/pkg/errors"

	"github.com/gin-gonic/gin"
)

// AvailabilityLister reports stored sources that are not in the pool.
type AvailabilityLister interface {
	Available(ctx context.Context, sources ports.SourceService) []domain.StreamSource
}

type SourceHandler struct {
	sources ports.SourceService
	pool    AvailabilityLister
}

func NewSourceHandler(sources ports.SourceService, pool AvailabilityLister) *SourceHandler {
	return &SourceHandler{sources: sources, pool: pool}
}

func (h *SourceHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		api.GET("/sources", h.ListSources)
		api.POST("/sources", h.CreateSource)
		api.GET("/sources/available", h.ListAvailable)
		api.GET("/sources/:id", h.GetSource)
		api.PUT("/sources/:id", h.UpdateSource)
		api.DELETE("/sources/:id", h.DeleteSource)
	}
}

type sourceRequest struct {
	ID          domain.SourceID   `json:"id"`
	Label       string            `json:"label" binding:"required,max=200"`
	URL         string            `json:"url" binding:"required"`
	Description string            `json:"description"`
	Type        domain.SourceType `json:"type"`
	Protocol    domain.Protocol   `json:"protocol"`
	Transport   domain.Transport  `json:"transport"`
	AISources   []string          `json:"aiSources"`
}

func (r sourceRequest) toSource() domain.StreamSource {
	return domain.StreamSource{
		ID:          r.ID,
		Label:       r.Label,
		URL:         r.URL,
		Description: r.Description,
		Type:        r.Type,
		Protocol:    r.Protocol,
		Transport:   r.Transport,
		AISources:   r.AISources,
	}
}

// ListSources returns every source, or those of one type with ?type=.
func (h *SourceHandler) ListSources(c *gin.Context) {
	ctx := c.Request.Context()
	if t := c.Query("type"); t != "" {
		st := domain.SourceType(t)
		if !st.Valid() {
			_ = c.Error(apperrors.NewInvalidInputError("unknown source type: " + t))
			return
		}
		c.JSON(http.StatusOK, gin.H{"sources": h.sources.ByType(ctx, st)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sources": h.sources.List(ctx)})
}

func (h *SourceHandler) ListAvailable(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sources": h.pool.Available(c.Request.Context(), h.sources)})
}

func (h *SourceHandler) GetSource(c *gin.Context) {
	src, err := h.sources.Get(c.Request.Context(), domain.SourceID(c.Param("id")))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"source": src})
}

func (h *SourceHandler) CreateSource(c *gin.Context) {
	var req sourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}

	src, err := h.sources.Add(c.Request.Context(), req.toSource())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"source": src})
}

func (h *SourceHandler) UpdateSource(c *gin.Context) {
	var req sourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}
	id := domain.SourceID(c.Param("id"))
	if req.ID != "" && req.ID != id {
		_ = c.Error(apperrors.NewInvalidInputError("body id does not match path"))
		return
	}
	req.ID = id

	src, err := h.sources.Update(c.Request.Context(), req.toSource())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"source": src})
}

func (h *SourceHandler) DeleteSource(c *gin.Context) {
	if err := h.sources.Remove(c.Request.Context(), domain.SourceID(c.Param("id"))); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}
