package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// EventStream upgrades dashboard requests to the live event socket.
type EventStream interface {
	HandleWebSocket(w http.ResponseWriter, r *http.Request)
	Clients() int
}

type EventsHandler struct {
	stream EventStream
}

func NewEventsHandler(stream EventStream) *EventsHandler {
	return &EventsHandler{stream: stream}
}

func (h *EventsHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api/v1/events")
	{
		api.GET("", h.Stream)
		api.GET("/clients", h.CountClients)
	}
}

func (h *EventsHandler) Stream(c *gin.Context) {
	h.stream.HandleWebSocket(c.Writer, c.Request)
}

func (h *EventsHandler) CountClients(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"clients": h.stream.Clients()})
}
