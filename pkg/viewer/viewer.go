// Package viewer is the client side orchestrator. It watches a set of
// cameras of a signaling server, one negotiation per camera.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/camstream/camstream/pkg/cameras"
	"github.com/camstream/camstream/pkg/config"
	"github.com/camstream/camstream/pkg/discovery"
	"github.com/camstream/camstream/pkg/logger"
	"github.com/camstream/camstream/pkg/manager"
	"github.com/camstream/camstream/pkg/service"
	"github.com/camstream/camstream/pkg/session"
	"github.com/camstream/camstream/pkg/webrtc"
)

var ErrNoServer = errors.New("no signaling server address, set one or enable discovery")

type Viewer struct {
	conf     config.ViewerConfig
	api      *webrtc.ApiFactory
	manager  *manager.Manager
	recorder *Recorder
	dialer   *Dialer
	services service.Group
	log      *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wires the viewer side. Without a server address
// the server is looked up with mDNS.
func New(ctx context.Context, conf config.ViewerConfig, log *logger.Logger) (*Viewer, error) {
	server, path, err := serverAddress(ctx, conf)
	if err != nil {
		return nil, err
	}
	api, err := webrtc.NewApiFactory(conf.Webrtc, log, nil)
	if err != nil {
		return nil, fmt.Errorf("webrtc: %w", err)
	}

	folder := ""
	if conf.Viewer.Recording.Enabled {
		folder = conf.Viewer.Recording.Folder
	}
	v := &Viewer{
		conf:     conf,
		api:      api,
		recorder: NewRecorder(folder, log),
		dialer:   NewDialer(server, path, conf.Viewer.Secure, log),
		log:      log,
	}
	v.ctx, v.cancel = context.WithCancel(context.Background())
	v.manager = manager.New(session.Answerer, webrtc.ReceiverFactory(api, log),
		manager.WithDialer(v.dialer.Dial),
		manager.WithSessionConfig(conf.Session),
		manager.WithLogger(log),
	)
	log.Info().Msgf("Viewer %v of %v", v.dialer.Token(), server)

	source, interval := watchList(conf)
	v.services.Add(cameras.NewWatcher(source, interval, v.sync, log))
	return v, nil
}

func serverAddress(ctx context.Context, conf config.ViewerConfig) (string, string, error) {
	if conf.Viewer.Server != "" {
		return conf.Viewer.Server, "", nil
	}
	if !conf.Discovery.Enabled {
		return "", "", ErrNoServer
	}
	b, err := discovery.NewBrowser()
	if err != nil {
		return "", "", fmt.Errorf("mdns: %w", err)
	}
	ep, err := discovery.Find(ctx, conf.Discovery, b)
	if err != nil {
		return "", "", err
	}
	return ep.Address(), ep.Path, nil
}

// watchList returns the explicitly watched cameras or the configured camera source.
func watchList(conf config.ViewerConfig) (cameras.Source, time.Duration) {
	if len(conf.Viewer.Watch) == 0 {
		return cameras.FromConfig(conf.Cameras)
	}
	list := make(cameras.Static, 0, len(conf.Viewer.Watch))
	for _, id := range conf.Viewer.Watch {
		list = append(list, cameras.Camera{Id: id, Enabled: true})
	}
	return list, 0
}

func (v *Viewer) Start() {
	v.services.Start()
	v.wg.Add(2)
	go v.report()
	go v.status()
}

func (v *Viewer) Manager() *manager.Manager { return v.manager }

func (v *Viewer) Shutdown(ctx context.Context) error {
	err := v.services.Shutdown(ctx)
	v.cancel()
	v.manager.Close()
	v.wg.Wait()
	v.recorder.Wait()
	if cerr := v.api.Close(); cerr != nil {
		v.log.Warn().Err(cerr).Msg("webrtc close")
	}
	return err
}

// sync follows the camera list and connects the new cameras.
func (v *Viewer) sync(list []cameras.Camera) {
	v.manager.Sync(list, v.recorder.Consume)
	if err := v.manager.ConnectAll(v.ctx); err != nil {
		v.log.Warn().Err(err).Msg("Some cameras are not connected")
	}
}

func (v *Viewer) report() {
	defer v.wg.Done()
	for {
		select {
		case err := <-v.manager.Errors():
			v.log.Error().Err(err).Msg("Camera failure")
		case <-v.ctx.Done():
			return
		}
	}
}

// status logs the session health periodically and retries the cameras
// that have never been connected.
func (v *Viewer) status() {
	defer v.wg.Done()
	if v.conf.Viewer.StatusInterval <= 0 {
		return
	}
	ticker := time.NewTicker(v.conf.Viewer.StatusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			v.tick()
		case <-v.ctx.Done():
			return
		}
	}
}

func (v *Viewer) tick() {
	sum := v.manager.Summary()
	v.log.Info().
		Int("sessions", sum.TotalSessions).
		Int("connected", sum.Connected).
		Int("disconnected", sum.Disconnected).
		Int64("closed", sum.Closed).
		Msg("Status")
	for id, st := range v.manager.Status() {
		v.log.Debug().
			Str(logger.CameraField, id).
			Str(logger.StateField, st.State.String()).
			Int("attempts", st.ReconnectAttempts).
			Uint64("packets", v.recorder.Packets(id)).
			Msg("Camera")
		if st.State == session.Idle {
			if err := v.manager.Connect(v.ctx, id); err != nil {
				v.log.Debug().Err(err).Str(logger.CameraField, id).Msg("Retry")
			}
		}
	}
}
