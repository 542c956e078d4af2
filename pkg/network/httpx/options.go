package httpx

import (
	"time"

	"github.com/camstream/camstream/pkg/config"
	"github.com/camstream/camstream/pkg/logger"
)

type (
	Options struct {
		Tls      bool
		CertFile string
		KeyFile  string
		// Domain is the host Let's Encrypt certificates are issued for
		// when no certificate files are given.
		Domain string
		// RedirectAddr is a plain HTTP address sending viewers to HTTPS.
		RedirectAddr string
		PortRoll     bool
		IdleTimeout  time.Duration
		HeaderTimeout time.Duration
		Log          *logger.Logger
	}
	Option func(*Options)
)

func (o *Options) autoCert() bool { return o.Tls && (o.CertFile == "" || o.KeyFile == "") }

func WithPortRoll(roll bool) Option        { return func(o *Options) { o.PortRoll = roll } }
func WithLogger(log *logger.Logger) Option { return func(o *Options) { o.Log = log } }

// WithServerConfig turns on TLS as configured. The plain address
// of the config then serves the HTTPS redirect.
func WithServerConfig(conf config.Server) Option {
	return func(o *Options) {
		if !conf.Https {
			return
		}
		o.Tls = true
		o.CertFile = conf.Tls.HttpsCert
		o.KeyFile = conf.Tls.HttpsKey
		o.Domain = conf.Tls.Domain
		o.RedirectAddr = conf.Address
	}
}
