package config

import "github.com/spf13/pflag"

type CamstreamConfig struct {
	Camstream Camstream
	Cameras   Cameras
	Discovery Discovery
	Session   Session
	Webrtc    Webrtc
}

type Camstream struct {
	Debug      bool
	Lock       string `default:"camstream.lock"`
	Monitoring Monitoring
	Server     Server
}

// NewCamstreamConfig loads the server configuration, the command line flags
// in args take precedence over the file and the environment.
func NewCamstreamConfig(args []string) (conf CamstreamConfig, err error) {
	if err = LoadConfig(&conf, "config.yaml", configPath(args)); err != nil {
		return
	}
	if err = conf.Webrtc.AddIceServersEnv(); err != nil {
		return
	}
	err = conf.parseFlags(args)
	return
}

func (c *CamstreamConfig) parseFlags(args []string) error {
	fs := pflag.NewFlagSet("camstream", pflag.ContinueOnError)
	c.Camstream.Server.WithFlags(fs)
	fs.BoolVar(&c.Camstream.Debug, "debug", c.Camstream.Debug, "Verbose logging")
	fs.IntVar(&c.Camstream.Monitoring.Port, "monitoring.port", c.Camstream.Monitoring.Port, "Monitoring server port")
	fs.StringVar(&c.Cameras.File, "cameras", c.Cameras.File, "Camera list file")
	fs.String("conf", "", "Set custom configuration file path")
	return fs.Parse(args)
}

// configPath picks the --conf flag out of the command line.
func configPath(args []string) string {
	fs := pflag.NewFlagSet("conf", pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.Usage = func() {}
	path := fs.String("conf", "", "")
	_ = fs.Parse(args)
	return *path
}
