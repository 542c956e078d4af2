// Package httpx serves the camstream HTTP endpoints over plain HTTP or TLS.
package httpx

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/camstream/camstream/pkg/logger"
	"golang.org/x/crypto/acme/autocert"
)

type (
	Handler        = http.Handler
	ResponseWriter = http.ResponseWriter
	Request        = http.Request
)

// Mux registers the handlers under a common path prefix.
type Mux struct {
	*http.ServeMux
	prefix string
}

func NewServeMux(prefix string) *Mux { return &Mux{ServeMux: http.NewServeMux(), prefix: prefix} }

// HandleW serves a response that doesn't depend on the request.
func (m *Mux) HandleW(pattern string, h func(ResponseWriter)) *Mux {
	return m.HandleFunc(pattern, func(w ResponseWriter, _ *Request) { h(w) })
}

func (m *Mux) Handle(pattern string, h Handler) *Mux {
	m.ServeMux.Handle(m.prefix+pattern, h)
	return m
}

func (m *Mux) HandleFunc(pattern string, h func(ResponseWriter, *Request)) *Mux {
	m.ServeMux.HandleFunc(m.prefix+pattern, h)
	return m
}

type Server struct {
	http.Server

	opts     Options
	listener *Listener
	certs    *autocert.Manager
	redirect *Server
	log      *logger.Logger
}

// NewServer binds the address right away, so the Addr of the server
// handed to the handler func is the one viewers can reach.
func NewServer(address string, handler func(*Server) Handler, options ...Option) (*Server, error) {
	opts := Options{IdleTimeout: 120 * time.Second, HeaderTimeout: 10 * time.Second}
	for _, o := range options {
		o(&opts)
	}
	if opts.Log == nil {
		opts.Log = logger.Default()
	}

	if address == "" {
		address = ":http"
		if opts.Tls {
			address = ":https"
		}
	}
	ls, err := NewListener(address, opts.PortRoll, opts.Log)
	if err != nil {
		return nil, err
	}

	s := &Server{
		Server: http.Server{
			Addr:              publicAddress(address, ls.Port()),
			IdleTimeout:       opts.IdleTimeout,
			ReadHeaderTimeout: opts.HeaderTimeout,
		},
		opts:     opts,
		listener: ls,
		log:      opts.Log,
	}
	if opts.autoCert() {
		s.certs = newCertManager(opts.Domain)
		s.TLSConfig = s.certs.TLSConfig()
	}
	s.Handler = handler(s)
	s.log.Info().Msgf("%v listens on %v", s.scheme(), ls.Addr())
	return s, nil
}

func (s *Server) Run() {
	if s.opts.Tls && s.opts.RedirectAddr != "" {
		rdr, err := s.redirection()
		if err != nil {
			s.log.Error().Err(err).Msg("no HTTPS redirect")
		} else {
			s.redirect = rdr
			rdr.Run()
		}
	}
	go s.serve()
}

func (s *Server) serve() {
	var err error
	if s.opts.Tls {
		err = s.ServeTLS(s.listener, s.opts.CertFile, s.opts.KeyFile)
	} else {
		err = s.Serve(s.listener)
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Error().Err(err).Msgf("%v server", s.scheme())
	}
}

// Shutdown stops the server gracefully. Hijacked connections,
// the signaling websockets, are not waited for.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.redirect != nil {
		_ = s.redirect.Shutdown(ctx)
	}
	return s.Server.Shutdown(ctx)
}

// GetPort returns the port the server actually listens on.
func (s *Server) GetPort() int { return s.listener.Port() }

func (s *Server) String() string { return s.scheme() + "::" + s.Addr }

func (s *Server) scheme() string {
	if s.opts.Tls {
		return "https"
	}
	return "http"
}

// redirection sends plain HTTP requests to the HTTPS server,
// it also answers the ACME challenges of the certificate manager.
func (s *Server) redirection() (*Server, error) {
	host := s.Addr
	if s.opts.Domain != "" {
		host = publicAddress(s.opts.Domain, s.GetPort())
	}
	return NewServer(s.opts.RedirectAddr, func(*Server) Handler {
		var h Handler = http.HandlerFunc(func(w ResponseWriter, r *Request) {
			to := url.URL{Scheme: "https", Host: host, Path: r.URL.Path, RawQuery: r.URL.RawQuery}
			http.Redirect(w, r, to.String(), http.StatusFound)
		})
		if s.certs != nil {
			h = s.certs.HTTPHandler(h)
		}
		return h
	}, WithLogger(s.log))
}
