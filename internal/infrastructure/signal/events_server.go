package signal

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"edgeview/internal/core/domain"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const maxClientMessage = 4096

type Config struct {
	PingInterval time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// SendBuffer is the number of events queued per client before the
	// client is dropped as too slow.
	SendBuffer int
}

func DefaultConfig() Config {
	return Config{
		PingInterval: 30 * time.Second,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
		SendBuffer:   64,
	}
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// EventServer pushes viewer events to dashboard websocket clients. Clients
// only listen; anything they send is discarded.
type EventServer struct {
	cfg      Config
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*client
	closed  bool

	logger *zap.SugaredLogger
}

func NewEventServer(cfg Config, logger *zap.SugaredLogger) *EventServer {
	def := DefaultConfig()
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = def.SendBuffer
	}
	return &EventServer{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			// Dashboards are served from other origins on the LAN.
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clients: make(map[string]*client),
		logger:  logger,
	}
}

func (s *EventServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("websocket upgrade failed", "error", err)
		return
	}

	c := &client{id: uuid.NewString(), conn: conn, send: make(chan []byte, s.cfg.SendBuffer)}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.clients[c.id] = c
	count := len(s.clients)
	s.mu.Unlock()

	s.logger.Infow("event client connected", "client_id", c.id, "clients", count)

	go s.writeLoop(c)
	s.readLoop(c)
}

func (s *EventServer) readLoop(c *client) {
	defer s.remove(c.id)

	c.conn.SetReadLimit(maxClientMessage)
	c.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Infow("event client read failed", "client_id", c.id, "error", err)
			}
			return
		}
	}
}

func (s *EventServer) writeLoop(c *client) {
	pingTicker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		pingTicker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.logger.Debugw("event write failed", "client_id", c.id, "error", err)
				return
			}
		case <-pingTicker.C:
			c.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// remove unregisters the client and closes its queue; the write loop then
// sends a close frame and releases the socket.
func (s *EventServer) remove(id string) {
	s.mu.Lock()
	c, ok := s.clients[id]
	if ok {
		delete(s.clients, id)
		close(c.send)
	}
	count := len(s.clients)
	s.mu.Unlock()

	if ok {
		s.logger.Infow("event client disconnected", "client_id", id, "clients", count)
	}
}

// Broadcast queues ev for every client without blocking. Clients whose
// queue is full are dropped.
func (s *EventServer) Broadcast(ev domain.ViewerEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		s.logger.Errorw("failed to marshal event", "type", ev.Type, "error", err)
		return
	}

	var slow []string
	s.mu.RLock()
	for id, c := range s.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, id)
		}
	}
	s.mu.RUnlock()

	for _, id := range slow {
		s.logger.Warnw("dropping slow event client", "client_id", id)
		s.remove(id)
	}
}

func (s *EventServer) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Close disconnects every client and rejects new ones.
func (s *EventServer) Close() {
	s.mu.Lock()
	s.closed = true
	ids := make([]string, 0, len(s.clients))
	for id := range s.clients {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.remove(id)
	}
}
