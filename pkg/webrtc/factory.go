package webrtc

import (
	"fmt"
	"net"

	"github.com/camstream/camstream/pkg/config"
	"github.com/camstream/camstream/pkg/logger"
	"github.com/camstream/camstream/pkg/network/socket"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v3"
)

// ApiFactory makes the peer connections of all the cameras of a process,
// they share the codecs, the interceptors and the ICE settings.
type ApiFactory struct {
	api  *webrtc.API
	conf webrtc.Configuration
	// the ICE socket in the single port mode
	udp *net.UDPConn
}

// ModApiFun adjusts the engines before the API is made.
type ModApiFun func(m *webrtc.MediaEngine, i *interceptor.Registry, s *webrtc.SettingEngine)

func NewApiFactory(conf config.Webrtc, log *logger.Logger, mod ModApiFun) (*ApiFactory, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("codecs: %w", err)
	}
	i := &interceptor.Registry{}
	if !conf.DisableDefaultInterceptors {
		if err := webrtc.RegisterDefaultInterceptors(m, i); err != nil {
			return nil, fmt.Errorf("interceptors: %w", err)
		}
	}

	f := &ApiFactory{conf: webrtc.Configuration{ICEServers: iceServers(conf.IceServers)}}
	s, err := f.settings(conf, log)
	if err != nil {
		return nil, err
	}
	if mod != nil {
		mod(m, i, &s)
	}
	f.api = webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(i), webrtc.WithSettingEngine(s))
	return f, nil
}

// settings turns the ICE and DTLS options into a setting engine.
// In the single port mode it opens the shared socket.
func (f *ApiFactory) settings(conf config.Webrtc, log *logger.Logger) (webrtc.SettingEngine, error) {
	pion := logger.NewPionLogger(log, conf.LogLevel)
	s := webrtc.SettingEngine{LoggerFactory: pion}
	s.SetLite(conf.IceLite)
	if conf.HasDtlsRole() {
		if err := s.SetAnsweringDTLSRole(webrtc.DTLSRole(conf.DtlsRole)); err != nil {
			return s, fmt.Errorf("dtls role: %w", err)
		}
	}
	if conf.HasPortRange() {
		if err := s.SetEphemeralUDPPortRange(conf.IcePorts.Min, conf.IcePorts.Max); err != nil {
			return s, fmt.Errorf("ice ports: %w", err)
		}
	}
	if conf.HasIceIpMap() {
		s.SetNAT1To1IPs([]string{conf.IceIpMap}, webrtc.ICECandidateTypeHost)
	}
	if conf.HasSinglePort() {
		udp, err := socket.ListenUDP(conf.SinglePort, true)
		if err != nil {
			return s, fmt.Errorf("ice single port: %w", err)
		}
		f.udp = udp
		s.SetICEUDPMux(webrtc.NewICEUDPMux(pion, udp))
		log.Info().Msgf("ICE runs on the single port %v", udp.LocalAddr())
	}
	return s, nil
}

func iceServers(list []config.IceServer) []webrtc.ICEServer {
	servers := make([]webrtc.ICEServer, 0, len(list))
	for _, ice := range list {
		servers = append(servers, webrtc.ICEServer{
			URLs:       []string{ice.Urls},
			Username:   ice.Username,
			Credential: ice.Credential,
		})
	}
	return servers
}

func (f *ApiFactory) NewPeer() (*webrtc.PeerConnection, error) { return f.api.NewPeerConnection(f.conf) }

// Close releases the single port socket.
func (f *ApiFactory) Close() error {
	if f.udp != nil {
		return f.udp.Close()
	}
	return nil
}
