// Package server is the camera side orchestrator. It serves the signaling
// endpoint and keeps one pipeline adapter per configured camera.
package server

import (
	"context"
	"fmt"

	"github.com/camstream/camstream/pkg/cameras"
	"github.com/camstream/camstream/pkg/config"
	"github.com/camstream/camstream/pkg/discovery"
	"github.com/camstream/camstream/pkg/logger"
	"github.com/camstream/camstream/pkg/manager"
	"github.com/camstream/camstream/pkg/monitoring"
	"github.com/camstream/camstream/pkg/network/httpx"
	"github.com/camstream/camstream/pkg/service"
	"github.com/camstream/camstream/pkg/session"
	"github.com/camstream/camstream/pkg/webrtc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type Camstream struct {
	conf     config.CamstreamConfig
	api      *webrtc.ApiFactory
	manager  *manager.Manager
	server   *httpx.Server
	services service.Group
	log      *logger.Logger
	done     chan struct{}
}

// New wires the camera side: pion API, camera adapters, session manager,
// HTTP server, camera list watcher, mDNS and monitoring.
func New(conf config.CamstreamConfig, log *logger.Logger) (*Camstream, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	api, err := webrtc.NewApiFactory(conf.Webrtc, log, nil)
	if err != nil {
		return nil, fmt.Errorf("webrtc: %w", err)
	}
	samples := sampleFiles(conf.Cameras.List)
	factory := webrtc.CameraFactory(api, conf.Webrtc.Codec, func(cameraId string) webrtc.Source {
		path, ok := samples[cameraId]
		if !ok {
			return nil
		}
		src, err := webrtc.NewFileSource(path)
		if err != nil {
			log.Warn().Err(err).Str(logger.CameraField, cameraId).Msg("Camera sample")
			return nil
		}
		return src
	}, log)

	m := manager.New(session.Offerer, factory,
		manager.WithSessionConfig(conf.Session),
		manager.WithLogger(log),
		manager.WithMetrics(reg),
	)

	h := NewHandler(m, log)
	srv, err := httpx.NewServer(
		conf.Camstream.Server.GetAddr(),
		func(*httpx.Server) httpx.Handler { return h.Routes(httpx.NewServeMux("")) },
		httpx.WithServerConfig(conf.Camstream.Server),
		httpx.WithLogger(log),
	)
	if err != nil {
		_ = api.Close()
		return nil, fmt.Errorf("http: %w", err)
	}

	c := &Camstream{conf: conf, api: api, manager: m, server: srv, log: log, done: make(chan struct{})}
	source, interval := cameras.FromConfig(conf.Cameras)
	watcher := cameras.NewWatcher(source, interval,
		func(list []cameras.Camera) { m.Sync(list, nil) }, log)

	c.services.Add(srv, watcher)
	c.services.AddIf(conf.Discovery.Enabled, discovery.NewAdvertiser(conf.Discovery, srv.GetPort(), WsPath, log))
	if conf.Camstream.Monitoring.IsEnabled() {
		mon, err := monitoring.New(conf.Camstream.Monitoring, reg, log)
		if err != nil {
			log.Error().Err(err).Msg("monitoring")
		} else {
			c.services.Add(mon)
		}
	}
	return c, nil
}

func (c *Camstream) Start() {
	c.services.Start()
	go c.report()
}

func (c *Camstream) Manager() *manager.Manager { return c.manager }

// Addr is the address of the signaling server.
func (c *Camstream) Addr() string { return c.server.Addr }

func (c *Camstream) Shutdown(ctx context.Context) error {
	err := c.services.Shutdown(ctx)
	close(c.done)
	c.manager.Close()
	if cerr := c.api.Close(); cerr != nil {
		c.log.Warn().Err(cerr).Msg("webrtc close")
	}
	return err
}

// report logs the failures that ended sessions or made cameras unusable.
func (c *Camstream) report() {
	for {
		select {
		case err := <-c.manager.Errors():
			c.log.Error().Err(err).Msg("Session failure")
		case <-c.done:
			return
		}
	}
}

func sampleFiles(list []config.Camera) map[string]string {
	samples := make(map[string]string)
	for _, c := range list {
		if c.Sample != "" {
			samples[c.Id] = c.Sample
		}
	}
	return samples
}
