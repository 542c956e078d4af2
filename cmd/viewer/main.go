package main

import (
	"context"
	"os"
	"time"

	"github.com/camstream/camstream/pkg/config"
	"github.com/camstream/camstream/pkg/logger"
	cos "github.com/camstream/camstream/pkg/os"
	"github.com/camstream/camstream/pkg/viewer"
)

var Version = "?"

func main() {
	conf, err := config.NewViewerConfig(os.Args[1:])
	log := logger.NewConsole(conf.Viewer.Debug, "view", false)
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	log.Info().Msgf("version %s", Version)

	ctx, cancel := context.WithCancel(context.Background())
	v, err := viewer.New(ctx, conf, log)
	if err != nil {
		log.Fatal().Err(err).Msg("init")
	}
	v.Start()

	sig := <-cos.ExpectTermination()
	log.Info().Msgf("Got %v, stopping", sig)
	cancel()
	sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer scancel()
	if err := v.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("service shutdown errors")
	}
}
