package config

import (
	"fmt"
	"strings"
)

type Webrtc struct {
	DisableDefaultInterceptors bool
	DtlsRole                   byte
	IceServers                 []IceServer
	IcePorts                   struct {
		Min uint16
		Max uint16
	}
	IceIpMap   string
	IceLite    bool
	SinglePort int
	LogLevel   int
	// Codec of the camera video tracks: h264, vp8 or vp9.
	Codec string `default:"h264"`
}

type IceServer struct {
	Urls       string `json:"urls,omitempty"`
	Username   string `json:"username,omitempty"`
	Credential string `json:"credential,omitempty"`
}

func (w *Webrtc) HasDtlsRole() bool   { return w.DtlsRole > 0 }
func (w *Webrtc) HasPortRange() bool  { return w.IcePorts.Min > 0 && w.IcePorts.Max > 0 }
func (w *Webrtc) HasSinglePort() bool { return w.SinglePort > 0 }
func (w *Webrtc) HasIceIpMap() bool   { return w.IceIpMap != "" }

// AddIceServersEnv merges up to five ICE servers from the
// CAMSTREAM_WEBRTC_ICESERVERS_<n>_{URLS,USERNAME,CREDENTIAL} environment variables.
func (w *Webrtc) AddIceServersEnv() error {
	var cfg struct{ Webrtc struct{ IceServers []IceServer } }
	cfg.Webrtc.IceServers = make([]IceServer, 5)
	if err := LoadConfigEnv(&cfg); err != nil {
		return fmt.Errorf("ice servers env: %w", err)
	}
	for i, ice := range cfg.Webrtc.IceServers {
		if ice.Urls == "" {
			continue
		}
		if strings.HasPrefix(ice.Urls, "turn:") || strings.HasPrefix(ice.Urls, "turns:") {
			if ice.Username == "" || ice.Credential == "" {
				return fmt.Errorf("TURN or TURNS servers should have both username and credential: %+v", ice)
			}
		}
		if i > len(w.IceServers)-1 {
			w.IceServers = append(w.IceServers, ice)
		} else {
			w.IceServers[i] = ice
		}
	}
	return nil
}
