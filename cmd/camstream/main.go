package main

import (
	"context"
	"os"
	"time"

	"github.com/camstream/camstream/pkg/config"
	"github.com/camstream/camstream/pkg/logger"
	cos "github.com/camstream/camstream/pkg/os"
	"github.com/camstream/camstream/pkg/server"
)

var Version = "?"

func main() {
	conf, err := config.NewCamstreamConfig(os.Args[1:])
	log := logger.NewConsole(conf.Camstream.Debug, "cam", false)
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	log.Info().Msgf("version %s", Version)
	log.Debug().Msgf("config: %+v", conf)

	lock, err := cos.NewFileLock(conf.Camstream.Lock)
	if err != nil {
		log.Fatal().Err(err).Msg("lock")
	}
	if err = lock.TryLock(); err != nil {
		log.Fatal().Err(err).Msgf("another camstream owns %v", lock.Path())
	}
	defer func() { _ = lock.Unlock() }()

	c, err := server.New(conf, log)
	if err != nil {
		log.Fatal().Err(err).Msg("init")
	}
	c.Start()
	log.Info().Msgf("Signaling at %v", c.Addr())

	sig := <-cos.ExpectTermination()
	log.Info().Msgf("Got %v, stopping", sig)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("service shutdown errors")
	}
}
