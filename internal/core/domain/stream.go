package domain

type SourceID string
type SlotID string

type SourceType string

const (
	SourceTypeMain      SourceType = "main"
	SourceTypeDetection SourceType = "detection"
	SourceTypeCustom    SourceType = "custom"
)

type Protocol string

const (
	ProtocolWebRTC Protocol = "webrtc"
	ProtocolRTMP   Protocol = "rtmp"
	ProtocolHLS    Protocol = "hls"
)

type Transport string

const (
	TransportWHEP Transport = "whep"
	TransportUDP  Transport = "udp"
	TransportTCP  Transport = "tcp"
)

// StreamSource is the persisted description of one camera endpoint.
// The JSON shape is shared with the dashboard's local storage.
type StreamSource struct {
	ID             SourceID   `json:"id"`
	Label          string     `json:"label"`
	URL            string     `json:"url"`
	Description    string     `json:"description,omitempty"`
	Type           SourceType `json:"type"`
	Protocol       Protocol   `json:"protocol"`
	Transport      Transport  `json:"transport"`
	AISources      []string   `json:"aiSources,omitempty"`
	AISourcesCount int        `json:"aiSourcesCount,omitempty"`
}

func (t SourceType) Valid() bool {
	switch t {
	case SourceTypeMain, SourceTypeDetection, SourceTypeCustom:
		return true
	}
	return false
}

func (p Protocol) Valid() bool {
	switch p {
	case ProtocolWebRTC, ProtocolRTMP, ProtocolHLS:
		return true
	}
	return false
}

func (t Transport) Valid() bool {
	switch t {
	case TransportWHEP, TransportUDP, TransportTCP:
		return true
	}
	return false
}

// Normalize fills derived fields and protocol defaults.
func (s StreamSource) Normalize() StreamSource {
	if s.Type == "" {
		s.Type = SourceTypeCustom
	}
	if s.Protocol == "" {
		s.Protocol = ProtocolWebRTC
	}
	if s.Transport == "" {
		s.Transport = TransportWHEP
	}
	s.AISourcesCount = len(s.AISources)
	if len(s.AISources) > 0 {
		s.AISources = append([]string(nil), s.AISources...)
	}
	return s
}

// DefaultSources is the built-in pair used when nothing valid is persisted.
func DefaultSources() []StreamSource {
	return []StreamSource{
		{
			ID:             "edge01",
			Label:          "OR Camera 1",
			URL:            "http://192.168.7.166:8889/live/cam/whep",
			Description:    "Primary surgical monitoring camera with AI detection capabilities",
			Type:           SourceTypeMain,
			Protocol:       ProtocolWebRTC,
			Transport:      TransportWHEP,
			AISources:      []string{"yolov8", "llm"},
			AISourcesCount: 2,
		},
		{
			ID:             "edge02",
			Label:          "OR Camera 2",
			URL:            "http://192.168.7.166:8890/live/cam/whep",
			Description:    "Secondary surgical monitoring camera for comprehensive coverage",
			Type:           SourceTypeMain,
			Protocol:       ProtocolWebRTC,
			Transport:      TransportWHEP,
			AISources:      []string{"yolov8", "llm"},
			AISourcesCount: 2,
		},
	}
}
