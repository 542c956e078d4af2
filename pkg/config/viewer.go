package config

import (
	"time"

	"github.com/spf13/pflag"
)

type ViewerConfig struct {
	Viewer    Viewer
	Cameras   Cameras
	Discovery Discovery
	Session   Session
	Webrtc    Webrtc
}

type Viewer struct {
	Debug bool
	// Server is the host:port of the signaling server,
	// if empty it is looked up with mDNS.
	Server string
	Secure bool
	// Watch lists the cameras to open, all the known ones if empty.
	Watch          []string
	StatusInterval time.Duration `default:"10s"`
	Recording      struct {
		Enabled bool
		Folder  string `default:"recordings"`
	}
}

func NewViewerConfig(args []string) (conf ViewerConfig, err error) {
	if err = LoadConfig(&conf, "viewer.yaml", configPath(args)); err != nil {
		return
	}
	if err = conf.Webrtc.AddIceServersEnv(); err != nil {
		return
	}
	err = conf.parseFlags(args)
	return
}

func (c *ViewerConfig) parseFlags(args []string) error {
	fs := pflag.NewFlagSet("viewer", pflag.ContinueOnError)
	fs.StringVar(&c.Viewer.Server, "server", c.Viewer.Server, "Signaling server address (host:port)")
	fs.BoolVar(&c.Viewer.Debug, "debug", c.Viewer.Debug, "Verbose logging")
	fs.StringSliceVar(&c.Viewer.Watch, "watch", c.Viewer.Watch, "Cameras to watch")
	fs.BoolVar(&c.Viewer.Recording.Enabled, "record", c.Viewer.Recording.Enabled, "Record the received video")
	fs.String("conf", "", "Set custom configuration file path")
	return fs.Parse(args)
}
