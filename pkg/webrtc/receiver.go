package webrtc

import (
	"github.com/camstream/camstream/pkg/logger"
	"github.com/camstream/camstream/pkg/pipeline"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
)

// Receiver is the viewer side adapter of a camera,
// its peers only receive video.
type Receiver struct {
	id       string
	api      *ApiFactory
	onStream pipeline.StreamFunc
	log      *logger.Logger
}

func NewReceiver(id string, api *ApiFactory, onStream pipeline.StreamFunc, log *logger.Logger) *Receiver {
	return &Receiver{id: id, api: api, onStream: onStream, log: log}
}

func (r *Receiver) Start() error { return nil }
func (r *Receiver) Stop() error  { return nil }

func (r *Receiver) NewPeer() (pipeline.Peer, error) {
	conn, err := r.api.NewPeer()
	if err != nil {
		return nil, err
	}
	_, err = conn.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo,
		webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly})
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	conn.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		r.log.Info().Msgf("Got [%s] track", track.Codec().MimeType)
		if r.onStream != nil {
			r.onStream(r.id, remoteStream{track})
		}
	})
	return newPeer(conn, r.log), nil
}

type remoteStream struct{ t *webrtc.TrackRemote }

func (s remoteStream) Id() string       { return s.t.ID() }
func (s remoteStream) Kind() string     { return s.t.Kind().String() }
func (s remoteStream) MimeType() string { return s.t.Codec().MimeType }

func (s remoteStream) ReadRTP() (*rtp.Packet, error) {
	p, _, err := s.t.ReadRTP()
	return p, err
}

// CameraFactory makes server side adapters. The sources func
// returns the media source of a camera or nil.
func CameraFactory(api *ApiFactory, codec string, sources func(cameraId string) Source, log *logger.Logger) pipeline.Factory {
	return func(cameraId string, _ pipeline.StreamFunc) (pipeline.Adapter, error) {
		var src Source
		if sources != nil {
			src = sources(cameraId)
		}
		return NewCamera(cameraId, api, codec, src, log.Extend(log.With().Str(logger.CameraField, cameraId)))
	}
}

// ReceiverFactory makes viewer side adapters.
func ReceiverFactory(api *ApiFactory, log *logger.Logger) pipeline.Factory {
	return func(cameraId string, onStream pipeline.StreamFunc) (pipeline.Adapter, error) {
		return NewReceiver(cameraId, api, onStream, log.Extend(log.With().Str(logger.CameraField, cameraId))), nil
	}
}
