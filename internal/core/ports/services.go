package ports

import (
	"context"

	"edgeview/internal/core/domain"

	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
)

type SourceService interface {
	List(ctx context.Context) []domain.StreamSource
	Get(ctx context.Context, id domain.SourceID) (domain.StreamSource, error)
	Add(ctx context.Context, source domain.StreamSource) (domain.StreamSource, error)
	Update(ctx context.Context, source domain.StreamSource) (domain.StreamSource, error)
	Remove(ctx context.Context, id domain.SourceID) error
	ByType(ctx context.Context, t domain.SourceType) []domain.StreamSource
}

// Session is one WHEP playback session bound to a single stream source.
type Session interface {
	Source() domain.StreamSource
	Connect(ctx context.Context) error
	Disconnect()
	Reconnect(ctx context.Context) error
	// Close is terminal: the handle is released and later connects fail
	// with domain.ErrSessionClosed.
	Close()
	Snapshot() domain.SessionSnapshot
}

type SessionFactory func(slot domain.SlotID, source domain.StreamSource) (Session, error)

type SessionPool interface {
	AddSession(source domain.StreamSource) (domain.SlotID, error)
	RemoveSession(id domain.SlotID) error
	SetActive(id domain.SlotID) error
	Active() (domain.SlotID, bool)
	Session(id domain.SlotID) (Session, error)
	Slots() []domain.SlotView
	Size() int
	Layout() domain.LayoutView
	SetFullscreen(id domain.SlotID) error
	ClearFullscreen()
	Close()
}

// Signaler performs the WHEP offer/answer exchange for one endpoint URL.
type Signaler interface {
	Exchange(ctx context.Context, url string, offer string) (answer string, err error)
}

// PeerConnection is the subset of a pion peer connection a WHEP session drives.
type PeerConnection interface {
	AddTransceiverFromKind(kind webrtc.RTPCodecType, init ...webrtc.RTPTransceiverInit) (*webrtc.RTPTransceiver, error)
	OnTrack(f func(Track))
	OnConnectionStateChange(f func(webrtc.PeerConnectionState))
	CreateOffer(options *webrtc.OfferOptions) (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	LocalDescription() *webrtc.SessionDescription
	SetRemoteDescription(desc webrtc.SessionDescription) error
	WriteRTCP(pkts []rtcp.Packet) error
	// GatheringComplete must be called before SetLocalDescription.
	GatheringComplete() <-chan struct{}
	Close() error
}

type PeerConnectionFactory interface {
	NewPeerConnection() (PeerConnection, error)
}

// Track is an inbound media track; *webrtc.TrackRemote satisfies it.
type Track interface {
	ID() string
	Kind() webrtc.RTPCodecType
	SSRC() webrtc.SSRC
	Codec() webrtc.RTPCodecParameters
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// Sink is the render target inbound media is attached to. Detach must be
// safe to call repeatedly.
type Sink interface {
	Attach(track Track) error
	Detach()
}

type SinkFactory func(slot domain.SlotID, source domain.StreamSource) (Sink, error)
