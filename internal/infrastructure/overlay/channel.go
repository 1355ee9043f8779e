package overlay

import (
	"context"
	"errors"
	"sync"
	"time"

	"edgeview/internal/core/domain"
	"edgeview/pkg/retry"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var ErrChannelClosed = errors.New("overlay channel is closed")

type Config struct {
	Endpoint         string
	Reconnect        retry.Config
	MaxMessageSize   int64
	HandshakeTimeout time.Duration
}

// Metrics is the subset of the collector the channel reports to.
type Metrics interface {
	SetOverlayConnected(connected bool)
	RecordDetectionBatch(boxes int)
	RecordOverlayReconnect()
	RecordOverlayDecodeError()
}

// Channel is the viewer's single subscription to the detection socket. It
// runs independently of any session: it dials on Open, redials with
// backoff when the socket drops, and repaints the renderer on every
// message.
type Channel struct {
	cfg      Config
	decoder  *Decoder
	renderer *Renderer
	metrics  Metrics
	dialer   *websocket.Dialer
	logger   *zap.SugaredLogger

	mu        sync.Mutex
	running   bool
	closed    bool
	connected bool
	conn      *websocket.Conn
	cancel    context.CancelFunc
	done      chan struct{}
	latest    domain.DetectionBatch
	received  uint64
}

func NewChannel(cfg Config, decoder *Decoder, renderer *Renderer, metrics Metrics, logger *zap.SugaredLogger) *Channel {
	timeout := cfg.HandshakeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Channel{
		cfg:      cfg,
		decoder:  decoder,
		renderer: renderer,
		metrics:  metrics,
		dialer:   &websocket.Dialer{HandshakeTimeout: timeout},
		logger:   logger.With("endpoint", cfg.Endpoint),
	}
}

// Open starts the receive loop. It returns immediately; connection
// progress is visible through Connected. Opening an open channel is a
// no-op.
func (c *Channel) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrChannelClosed
	}
	if c.running {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.running = true
	go c.run(ctx, c.done)
	return nil
}

// Close stops the loop, releases the socket and waits for the loop to exit.
func (c *Channel) Close() {
	c.mu.Lock()
	c.closed = true
	cancel, done, conn := c.cancel, c.done, c.conn
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
	if done != nil {
		<-done
	}
}

func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Channel) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Latest returns the most recent batch and whether any batch has arrived.
func (c *Channel) Latest() (domain.DetectionBatch, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest, c.received > 0
}

func (c *Channel) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	backoff := retry.NewBackoff(c.cfg.Reconnect)
	for {
		err := c.session(ctx, backoff)
		if ctx.Err() != nil {
			return
		}
		if !c.cfg.Reconnect.Enabled {
			c.logger.Warnw("overlay channel stopped", "error", err)
			return
		}

		delay := backoff.Next()
		c.logger.Warnw("overlay channel dropped, redialing",
			"error", err,
			"attempt", backoff.Attempt(),
			"delay", delay,
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		if c.metrics != nil {
			c.metrics.RecordOverlayReconnect()
		}
	}
}

// session dials once and reads until the socket fails.
func (c *Channel) session(ctx context.Context, backoff *retry.Backoff) error {
	conn, _, err := c.dialer.DialContext(ctx, c.cfg.Endpoint, nil)
	if err != nil {
		return err
	}
	if c.cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(c.cfg.MaxMessageSize)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return ErrChannelClosed
	}
	c.conn = conn
	c.connected = true
	c.mu.Unlock()
	backoff.Reset()
	c.setConnectedMetric(true)
	c.logger.Infow("overlay channel connected")

	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.connected = false
		c.mu.Unlock()
		_ = conn.Close()
		c.setConnectedMetric(false)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		batch, err := c.decoder.Decode(data, time.Now())
		if err != nil {
			if c.metrics != nil {
				c.metrics.RecordOverlayDecodeError()
			}
			c.logger.Debugw("dropping detection message", "error", err)
			continue
		}
		c.apply(batch)
	}
}

func (c *Channel) apply(batch domain.DetectionBatch) {
	c.mu.Lock()
	c.latest = batch
	c.received++
	c.mu.Unlock()

	if c.renderer != nil {
		c.renderer.Render(batch)
	}
	if c.metrics != nil {
		c.metrics.RecordDetectionBatch(len(batch.Detections))
	}
}

func (c *Channel) setConnectedMetric(v bool) {
	if c.metrics != nil {
		c.metrics.SetOverlayConnected(v)
	}
}
