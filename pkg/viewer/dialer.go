package viewer

import (
	"context"
	"net/url"

	"github.com/camstream/camstream/pkg/logger"
	"github.com/camstream/camstream/pkg/network/websocket"
	"github.com/camstream/camstream/pkg/session"
	"github.com/camstream/camstream/pkg/signaling"
	"github.com/gofrs/uuid"
)

// Dialer opens signaling channels to the camera server.
// All the channels of one dialer carry the same viewer token.
type Dialer struct {
	server string
	path   string
	secure bool
	token  string
	log    *logger.Logger
}

func NewDialer(server string, path string, secure bool, log *logger.Logger) *Dialer {
	if path == "" {
		path = "/ws"
	}
	return &Dialer{
		server: server,
		path:   path,
		secure: secure,
		token:  uuid.Must(uuid.NewV4()).String(),
		log:    log,
	}
}

func (d *Dialer) Token() string { return d.token }

// URL is the signaling address of the camera.
func (d *Dialer) URL(cameraId string) url.URL {
	scheme := "ws"
	if d.secure {
		scheme = "wss"
	}
	q := url.Values{}
	q.Set("camera_id", cameraId)
	q.Set("viewer", d.token)
	return url.URL{Scheme: scheme, Host: d.server, Path: d.path, RawQuery: q.Encode()}
}

// Dial connects to the camera, the server greets the channel with a welcome.
func (d *Dialer) Dial(ctx context.Context, cameraId string) (session.Channel, error) {
	addr := d.URL(cameraId)
	log := d.log.Extend(d.log.With().Str(logger.CameraField, cameraId))
	conn, err := websocket.NewClient(ctx, addr, log)
	if err != nil {
		return nil, err
	}
	log.Debug().Msgf("Dialed %v", addr.Redacted())
	return signaling.Connect(conn, cameraId, log), nil
}
