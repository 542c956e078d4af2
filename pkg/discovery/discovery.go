// Package discovery advertises and finds the signaling endpoint over mDNS.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/camstream/camstream/pkg/config"
	"github.com/camstream/camstream/pkg/logger"
	"github.com/grandcat/zeroconf"
)

var ErrNotFound = errors.New("discovery: no signaling server found")

// Server is a running mDNS responder.
type Server interface{ Shutdown() }

// Registrar publishes a service instance.
type Registrar func(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (Server, error)

func zeroconfRegister(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (Server, error) {
	return zeroconf.Register(instance, service, domain, port, txt, ifaces)
}

// Browser looks services up, entries are sent until ctx is done.
type Browser interface {
	Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
}

// Advertiser announces the signaling endpoint while it runs.
type Advertiser struct {
	conf     config.Discovery
	port     int
	txt      []string
	register Registrar
	log      *logger.Logger

	mu     sync.Mutex
	server Server
}

// NewAdvertiser makes an advertiser of the port, the path is published in the TXT record.
func NewAdvertiser(conf config.Discovery, port int, path string, log *logger.Logger) *Advertiser {
	return &Advertiser{
		conf:     conf,
		port:     port,
		txt:      []string{"path=" + path},
		register: zeroconfRegister,
		log:      log,
	}
}

// Run starts the mDNS responder, a failure is logged only.
func (a *Advertiser) Run() {
	if err := a.Start(); err != nil {
		a.log.Error().Err(err).Msg("mDNS advertisement")
	}
}

func (a *Advertiser) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		return nil
	}
	srv, err := a.register(a.conf.Instance, a.conf.Service, a.conf.Domain, a.port, a.txt, nil)
	if err != nil {
		return fmt.Errorf("register %v: %w", a.conf.Service, err)
	}
	a.server = srv
	a.log.Info().Msgf("Advertising %v.%v%v on port %v", a.conf.Instance, a.conf.Service, a.conf.Domain, a.port)
	return nil
}

func (a *Advertiser) Shutdown(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
	return nil
}

func (a *Advertiser) String() string { return "mdns::" + a.conf.Service }

// Endpoint is a found signaling server.
type Endpoint struct {
	Instance string
	Host     string
	Port     int
	Path     string
}

// Address returns host:port of the endpoint.
func (e Endpoint) Address() string { return net.JoinHostPort(e.Host, strconv.Itoa(e.Port)) }

// NewBrowser makes a zeroconf resolver on all the interfaces.
func NewBrowser() (Browser, error) { return zeroconf.NewResolver(nil) }

// Find returns the first signaling server that answers within the configured timeout.
// With an instance name set only that instance is accepted.
func Find(ctx context.Context, conf config.Discovery, b Browser) (Endpoint, error) {
	if conf.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, conf.Timeout)
		defer cancel()
	}
	entries := make(chan *zeroconf.ServiceEntry, 4)
	if err := b.Browse(ctx, conf.Service, conf.Domain, entries); err != nil {
		return Endpoint{}, err
	}
	for {
		select {
		case e, ok := <-entries:
			if !ok {
				return Endpoint{}, ErrNotFound
			}
			if e == nil || (conf.Instance != "" && e.Instance != conf.Instance) {
				continue
			}
			if ep, ok := endpointOf(e); ok {
				return ep, nil
			}
		case <-ctx.Done():
			return Endpoint{}, ErrNotFound
		}
	}
}

func endpointOf(e *zeroconf.ServiceEntry) (Endpoint, bool) {
	ep := Endpoint{Instance: e.Instance, Port: e.Port, Path: "/ws"}
	switch {
	case len(e.AddrIPv4) > 0:
		ep.Host = e.AddrIPv4[0].String()
	case len(e.AddrIPv6) > 0:
		ep.Host = e.AddrIPv6[0].String()
	case e.HostName != "":
		ep.Host = strings.TrimSuffix(e.HostName, ".")
	default:
		return ep, false
	}
	for _, kv := range e.Text {
		if v, ok := strings.CutPrefix(kv, "path="); ok && v != "" {
			ep.Path = v
		}
	}
	return ep, ep.Port > 0
}
