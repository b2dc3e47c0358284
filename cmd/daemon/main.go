package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pixoo/daemon/internal/bootstrap"
	"github.com/pixoo/daemon/internal/log"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	log.Configure(log.Config{Level: "info", Service: "pixoo-daemon", Version: version})
	logger := log.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := bootstrap.WireServices(*configPath, version)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to wire dependency container")
	}

	logger.Info().
		Str("version", version).
		Str("commit", commit).
		Int("devices", len(container.Config.Devices)).
		Int("rest_port", container.Config.REST.Port).
		Msg("starting pixoo-daemon")

	if err := container.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("daemon exited with error")
	}

	if container.RestartRequested() {
		logger.Info().Msg("restart requested, exiting for process supervisor restart")
		os.Exit(0)
	}

	logger.Info().Msg("daemon exiting")
}
