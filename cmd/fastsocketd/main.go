package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fastsocket/fastsocket/internal/admission"
	"github.com/fastsocket/fastsocket/internal/catalog"
	fsconfig "github.com/fastsocket/fastsocket/internal/config"
	"github.com/fastsocket/fastsocket/internal/dispatch"
	"github.com/fastsocket/fastsocket/internal/obs"
	"github.com/fastsocket/fastsocket/internal/registry"
	"github.com/fastsocket/fastsocket/internal/runtime"
	"github.com/prometheus/client_golang/prometheus"
	_ "go.uber.org/automaxprocs"
)

func main() {
	debug := flag.Bool("debug", false, "enable debug logging (overrides FASTSOCKET_LOG_LEVEL)")
	flag.Parse()

	bootstrap := log.New(os.Stdout, "[fastsocketd] ", log.LstdFlags)

	cfg, err := fsconfig.Load(nil)
	if err != nil {
		bootstrap.Fatalf("failed to load configuration: %v", err)
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	logger := obs.NewLogger(obs.LoggerConfig{
		Level:  obs.LogLevel(cfg.LogLevel),
		Format: obs.LogFormat(cfg.LogFormat),
	})
	cfg.LogConfig(logger)

	cat, err := catalog.NewJSONFile(cfg.CatalogPath, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load application catalog")
	}
	defer cat.Close()

	reg := registry.New(logger)
	disp := dispatch.New(reg, logger)

	adm := admission.New(admission.Config{
		PerIPBurst:  cfg.PerIPBurst,
		PerIPRate:   cfg.PerIPRate,
		PerIPTTL:    cfg.PerIPTTL,
		GlobalBurst: cfg.GlobalBurst,
		GlobalRate:  cfg.GlobalRate,
	}, logger)
	defer adm.Stop()

	metrics := obs.NewMetrics(prometheus.DefaultRegisterer)

	srv := runtime.New(runtime.Config{
		MaxConnections:  cfg.MaxConnections,
		ActivityTimeout: cfg.ActivityTimeout,
		WriteTimeout:    cfg.WriteTimeout,
	}, cat, reg, disp, adm, metrics, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(cfg.Addr); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.Error().Err(err).Msg("server stopped unexpectedly")
		os.Exit(1)
	case <-sigCh:
		logger.Info().Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("error during shutdown")
	}
}
