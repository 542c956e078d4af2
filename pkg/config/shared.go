package config

import (
	"time"

	"github.com/spf13/pflag"
)

type Monitoring struct {
	Port             int
	URLPrefix        string
	MetricEnabled    bool
	ProfilingEnabled bool
}

func (c *Monitoring) IsEnabled() bool { return c.MetricEnabled || c.ProfilingEnabled }

type Server struct {
	Address string `default:":8080"`
	Https   bool
	Tls     struct {
		Address   string
		Domain    string
		HttpsKey  string
		HttpsCert string
	}
}

func (s *Server) WithFlags(fs *pflag.FlagSet) {
	fs.StringVar(&s.Address, "addr", s.Address, "HTTP server address (host:port)")
	fs.StringVar(&s.Tls.Address, "httpsAddress", s.Tls.Address, "HTTPS server address (host:port)")
	fs.StringVar(&s.Tls.HttpsKey, "httpsKey", s.Tls.HttpsKey, "HTTPS key")
	fs.StringVar(&s.Tls.HttpsCert, "httpsCert", s.Tls.HttpsCert, "HTTPS chain")
}

func (s *Server) GetAddr() string {
	if s.Https {
		return s.Tls.Address
	}
	return s.Address
}

// Session is the reconnection policy of the sessions.
type Session struct {
	MaxAttempts int           `default:"3"`
	BaseDelay   time.Duration `default:"1s"`
	MaxDelay    time.Duration `default:"30s"`
	// MultiViewer lets many viewers watch one camera at once.
	MultiViewer bool
}

// Cameras tells where the camera list comes from.
// The first one set of File, Url and List wins.
type Cameras struct {
	File         string
	Url          string
	PollInterval time.Duration `default:"30s"`
	List         []Camera
}

type Camera struct {
	Id      string
	Name    string
	RtspUrl string
	Enabled bool
	// Sample is an IVF file looped into the camera track.
	Sample string
}

type Discovery struct {
	Enabled  bool
	Instance string        `default:"camstream"`
	Service  string        `default:"_camstream._tcp"`
	Domain   string        `default:"local."`
	Timeout  time.Duration `default:"3s"`
}
