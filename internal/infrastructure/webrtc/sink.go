package webrtc

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"edgeview/internal/core/domain"
	"edgeview/internal/core/ports"

	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
	"github.com/pion/webrtc/v3/pkg/media/h264writer"
	"github.com/pion/webrtc/v3/pkg/media/ivfwriter"
	"github.com/pion/webrtc/v3/pkg/media/oggwriter"
	"go.uber.org/zap"
)

var ErrUnsupportedCodec = errors.New("codec cannot be recorded")

// RTPCollector receives per-packet accounting from sinks.
type RTPCollector interface {
	RecordRTP(sourceID domain.SourceID, kind string, payloadBytes int)
}

// CountingSink drains inbound tracks and accounts every packet. Reads stop
// when the track ends or the sink is detached.
type CountingSink struct {
	source  domain.SourceID
	metrics RTPCollector
	logger  *zap.SugaredLogger

	mu    sync.Mutex
	epoch uint64

	packets atomic.Uint64
	bytes   atomic.Uint64
}

func NewCountingSink(source domain.SourceID, metrics RTPCollector, logger *zap.SugaredLogger) *CountingSink {
	return &CountingSink{source: source, metrics: metrics, logger: logger}
}

func (s *CountingSink) Attach(track ports.Track) error {
	s.mu.Lock()
	epoch := s.epoch
	s.mu.Unlock()

	go s.read(track, epoch)
	return nil
}

func (s *CountingSink) read(track ports.Track, epoch uint64) {
	kind := track.Kind().String()
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return
		}
		if !s.live(epoch) {
			return
		}
		s.packets.Add(1)
		s.bytes.Add(uint64(len(pkt.Payload)))
		if s.metrics != nil {
			s.metrics.RecordRTP(s.source, kind, len(pkt.Payload))
		}
	}
}

func (s *CountingSink) live(epoch uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch == epoch
}

func (s *CountingSink) Detach() {
	s.mu.Lock()
	s.epoch++
	s.mu.Unlock()
}

// Stats returns packets and payload bytes seen since creation.
func (s *CountingSink) Stats() (packets, bytes uint64) {
	return s.packets.Load(), s.bytes.Load()
}

// RecorderSink writes inbound media to disk: VP8 as IVF, H264 as Annex-B
// and Opus as Ogg. One file per attached track.
type RecorderSink struct {
	dir    string
	source domain.SourceID
	logger *zap.SugaredLogger

	mu      sync.Mutex
	epoch   uint64
	writers map[media.Writer]string
}

func NewRecorderSink(dir string, source domain.SourceID, logger *zap.SugaredLogger) *RecorderSink {
	return &RecorderSink{
		dir:     dir,
		source:  source,
		logger:  logger,
		writers: make(map[media.Writer]string),
	}
}

func (s *RecorderSink) Attach(track ports.Track) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create recording directory: %w", err)
	}

	mime := track.Codec().MimeType
	stamp := time.Now().UnixMilli()
	base := filepath.Join(s.dir, fmt.Sprintf("%s_%s_%d", s.source, track.Kind(), stamp))

	var (
		w    media.Writer
		path string
		err  error
	)
	switch {
	case strings.EqualFold(mime, webrtc.MimeTypeVP8):
		path = base + ".ivf"
		w, err = ivfwriter.New(path)
	case strings.EqualFold(mime, webrtc.MimeTypeH264):
		path = base + ".h264"
		w, err = h264writer.New(path)
	case strings.EqualFold(mime, webrtc.MimeTypeOpus):
		path = base + ".ogg"
		w, err = oggwriter.New(path, 48000, 2)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedCodec, mime)
	}
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}

	s.mu.Lock()
	epoch := s.epoch
	s.writers[w] = path
	s.mu.Unlock()

	s.logger.Infow("recording track", "source_id", s.source, "kind", track.Kind(), "path", path)
	go s.record(track, w, epoch)
	return nil
}

func (s *RecorderSink) record(track ports.Track, w media.Writer, epoch uint64) {
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			s.closeWriter(w)
			return
		}

		s.mu.Lock()
		if s.epoch != epoch {
			s.mu.Unlock()
			return
		}
		err = w.WriteRTP(pkt)
		s.mu.Unlock()

		if err != nil {
			s.logger.Warnw("recording write failed", "source_id", s.source, "error", err)
			s.closeWriter(w)
			return
		}
	}
}

func (s *RecorderSink) closeWriter(w media.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.writers[w]; !ok {
		return
	}
	delete(s.writers, w)
	if err := w.Close(); err != nil {
		s.logger.Debugw("recording close failed", "error", err)
	}
}

// Detach finalizes every open file.
func (s *RecorderSink) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	for w, path := range s.writers {
		if err := w.Close(); err != nil {
			s.logger.Debugw("recording close failed", "path", path, "error", err)
		}
		delete(s.writers, w)
	}
}

// MultiSink fans a track out to several sinks.
type MultiSink []ports.Sink

func (m MultiSink) Attach(track ports.Track) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Attach(track); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiSink) Detach() {
	for _, sink := range m {
		sink.Detach()
	}
}

// SinkConfig selects which sinks a new slot receives.
type SinkConfig struct {
	RecordingEnabled bool
	RecordingDir     string
}

// NewSinkFactory builds the per-slot render target.
func NewSinkFactory(cfg SinkConfig, metrics RTPCollector, logger *zap.SugaredLogger) ports.SinkFactory {
	return func(slot domain.SlotID, source domain.StreamSource) (ports.Sink, error) {
		counting := NewCountingSink(source.ID, metrics, logger)
		if !cfg.RecordingEnabled {
			return counting, nil
		}
		dir := filepath.Join(cfg.RecordingDir, string(slot))
		return MultiSink{counting, NewRecorderSink(dir, source.ID, logger)}, nil
	}
}
