package webrtc

import (
	"context"
	"errors"
	"io"
	"sync"

	"edgeview/internal/core/ports"

	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
)

type fakePeer struct {
	mu        sync.Mutex
	onTrack   func(ports.Track)
	onState   func(webrtc.PeerConnectionState)
	local     *webrtc.SessionDescription
	remote    string
	remoteErr error
	kinds     []webrtc.RTPCodecType
	rtcp      []rtcp.Packet
	closed    int
}

func (p *fakePeer) AddTransceiverFromKind(kind webrtc.RTPCodecType, _ ...webrtc.RTPTransceiverInit) (*webrtc.RTPTransceiver, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.kinds = append(p.kinds, kind)
	return nil, nil
}

func (p *fakePeer) OnTrack(f func(ports.Track)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onTrack = f
}

func (p *fakePeer) OnConnectionStateChange(f func(webrtc.PeerConnectionState)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onState = f
}

func (p *fakePeer) CreateOffer(*webrtc.OfferOptions) (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer"}, nil
}

func (p *fakePeer) SetLocalDescription(desc webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.local = &desc
	return nil
}

func (p *fakePeer) LocalDescription() *webrtc.SessionDescription {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.local
}

func (p *fakePeer) SetRemoteDescription(desc webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.remoteErr != nil {
		return p.remoteErr
	}
	p.remote = desc.SDP
	return nil
}

func (p *fakePeer) WriteRTCP(pkts []rtcp.Packet) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed > 0 {
		return io.ErrClosedPipe
	}
	p.rtcp = append(p.rtcp, pkts...)
	return nil
}

func (p *fakePeer) GatheringComplete() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}

func (p *fakePeer) emitTrack(t ports.Track) {
	p.mu.Lock()
	fn := p.onTrack
	p.mu.Unlock()
	fn(t)
}

func (p *fakePeer) emitState(state webrtc.PeerConnectionState) {
	p.mu.Lock()
	fn := p.onState
	p.mu.Unlock()
	fn(state)
}

func (p *fakePeer) closeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakePeer) rtcpCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.rtcp)
}

type fakePeerFactory struct {
	mu        sync.Mutex
	peers     []*fakePeer
	err       error
	remoteErr error
}

func (f *fakePeerFactory) NewPeerConnection() (ports.PeerConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	p := &fakePeer{remoteErr: f.remoteErr}
	f.peers = append(f.peers, p)
	return p, nil
}

func (f *fakePeerFactory) created() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.peers)
}

func (f *fakePeerFactory) last() *fakePeer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peers[len(f.peers)-1]
}

func (f *fakePeerFactory) closedTotal() int {
	f.mu.Lock()
	peers := append([]*fakePeer(nil), f.peers...)
	f.mu.Unlock()
	n := 0
	for _, p := range peers {
		n += p.closeCount()
	}
	return n
}

type fakeSignaler struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, url, offer string) (string, error)
}

func (s *fakeSignaler) Exchange(ctx context.Context, url, offer string) (string, error) {
	s.mu.Lock()
	s.calls++
	fn := s.fn
	s.mu.Unlock()
	if fn == nil {
		return "v=0 answer", nil
	}
	return fn(ctx, url, offer)
}

type fakeSink struct {
	mu        sync.Mutex
	attached  []ports.Track
	detaches  int
	attachErr error
}

func (s *fakeSink) Attach(track ports.Track) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attachErr != nil {
		return s.attachErr
	}
	s.attached = append(s.attached, track)
	return nil
}

func (s *fakeSink) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detaches++
}

func (s *fakeSink) counts() (attached, detaches int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.attached), s.detaches
}

type fakeTrack struct {
	id      string
	kind    webrtc.RTPCodecType
	ssrc    webrtc.SSRC
	mime    string
	packets chan *rtp.Packet
}

func newFakeTrack(kind webrtc.RTPCodecType, mime string) *fakeTrack {
	return &fakeTrack{
		id:      kind.String(),
		kind:    kind,
		ssrc:    4242,
		mime:    mime,
		packets: make(chan *rtp.Packet, 16),
	}
}

func (t *fakeTrack) ID() string                { return t.id }
func (t *fakeTrack) Kind() webrtc.RTPCodecType { return t.kind }
func (t *fakeTrack) SSRC() webrtc.SSRC         { return t.ssrc }

func (t *fakeTrack) Codec() webrtc.RTPCodecParameters {
	clock := uint32(90000)
	if t.kind == webrtc.RTPCodecTypeAudio {
		clock = 48000
	}
	return webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: t.mime, ClockRate: clock},
		PayloadType:        96,
	}
}

func (t *fakeTrack) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	p, ok := <-t.packets
	if !ok {
		return nil, nil, io.EOF
	}
	return p, nil, nil
}

var errBoom = errors.New("boom")
