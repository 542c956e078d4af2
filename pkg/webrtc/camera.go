package webrtc

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/camstream/camstream/pkg/logger"
	"github.com/camstream/camstream/pkg/pipeline"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
)

// Source feeds media samples into a camera.
type Source interface {
	MimeType() string
	// Run writes samples until ctx is done or the source breaks.
	Run(ctx context.Context, write func(media.Sample) error) error
}

// Camera is the server side adapter of a camera. It owns one video
// track shared by the peers of every viewer.
type Camera struct {
	id     string
	api    *ApiFactory
	track  *webrtc.TrackLocalStaticSample
	source Source
	log    *logger.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewCamera makes a camera adapter with a video track of the codec
// (h264, vp8, vp9). The source is optional, the media can be
// pushed with WriteSample instead.
func NewCamera(id string, api *ApiFactory, codec string, source Source, log *logger.Logger) (*Camera, error) {
	mime, err := videoMime(codec)
	if err != nil {
		return nil, err
	}
	if source != nil {
		mime = source.MimeType()
	}
	track, err := newTrack("video", "camera-"+id, mime)
	if err != nil {
		return nil, err
	}
	return &Camera{id: id, api: api, track: track, source: source, log: log}, nil
}

func (c *Camera) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}
	c.running = true
	if c.source == nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.log.Info().Msgf("Camera source [%v] started", c.source.MimeType())
		if err := c.source.Run(ctx, c.feed); err != nil {
			c.log.Error().Err(err).Msg("Camera source")
		}
	}()
	return nil
}

func (c *Camera) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.mu.Unlock()
	c.wg.Wait()
	return nil
}

// NewPeer makes a peer connection sending the camera track.
func (c *Camera) NewPeer() (pipeline.Peer, error) {
	conn, err := c.api.NewPeer()
	if err != nil {
		return nil, err
	}
	sender, err := conn.AddTrack(c.track)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	// Read incoming RTCP packets
	go func() {
		rtcpBuf := make([]byte, 1500)
		for {
			if _, _, rtcpErr := sender.Read(rtcpBuf); rtcpErr != nil {
				return
			}
		}
	}()
	return newPeer(conn, c.log), nil
}

// WriteSample sends a sample to all the connected viewers.
func (c *Camera) WriteSample(s media.Sample) error { return c.track.WriteSample(s) }

// feed keeps the source going when some viewer track breaks.
func (c *Camera) feed(s media.Sample) error {
	if err := c.track.WriteSample(s); err != nil {
		c.log.Debug().Err(err).Msg("Sample")
	}
	return nil
}

func (c *Camera) MimeType() string { return c.track.Codec().MimeType }

func videoMime(codec string) (string, error) {
	switch strings.ToLower(codec) {
	case "h264", "":
		return webrtc.MimeTypeH264, nil
	case "vpx", "vp8":
		return webrtc.MimeTypeVP8, nil
	case "vp9":
		return webrtc.MimeTypeVP9, nil
	}
	return "", fmt.Errorf("unsupported codec video:%s", codec)
}

func newTrack(id string, label string, mime string) (*webrtc.TrackLocalStaticSample, error) {
	return webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: mime}, id, label)
}
