package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ekisa-team/ttsd/internal/backend"
	"github.com/ekisa-team/ttsd/internal/backend/piper"
	"github.com/ekisa-team/ttsd/internal/backend/xtts"
	"github.com/ekisa-team/ttsd/internal/config"
	"github.com/ekisa-team/ttsd/internal/env"
	"github.com/ekisa-team/ttsd/internal/envvar"
	"github.com/ekisa-team/ttsd/internal/logger"
	"github.com/ekisa-team/ttsd/internal/model"
	httpserver "github.com/ekisa-team/ttsd/internal/server/http"
	"github.com/ekisa-team/ttsd/internal/service"
	"github.com/ekisa-team/ttsd/internal/voice"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

var version = "dev"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	defaultConfig := os.Getenv(envvar.TtsdConfig)
	if defaultConfig == "" {
		defaultConfig = config.DefaultConfigPath()
	}

	var (
		flagConfigPath = flag.String("config", defaultConfig, "Path to config file")
		flagPort       = flag.Int("port", 0, "HTTP port to listen on (overrides config and PORT)")
	)
	flag.Parse()

	environment := env.FromEnv()
	slog.SetDefault(logger.New(environment))

	cfg, err := config.Load(*flagConfigPath)
	if err != nil {
		slog.Error("Failed to load config", "path", *flagConfigPath, "error", err)
		os.Exit(1)
	}
	if *flagPort != 0 {
		cfg.Server.Port = *flagPort
	}

	slog.SetDefault(
		logger.New(environment,
			logger.WithLevel(logger.ParseLevel(cfg.Log.Level)),
			logger.WithLogToFile(cfg.Log.ToFile),
			logger.WithLogFile(cfg.Log.File),
		),
	)

	if err := run(cfg, environment); err != nil {
		slog.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, environment env.Environment) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	catalog := voice.NewCatalog(cfg.Voices.Dir)

	models, err := model.NewRegistry(cfg.Entries())
	if err != nil {
		return err
	}
	if voices, err := catalog.List(); err != nil {
		slog.Warn("Voice directory not readable", "dir", catalog.Dir(), "error", err)
	} else {
		slog.Info("Voices found", "dir", catalog.Dir(), "count", len(voices))
		for _, id := range model.Conflicts(models, voices) {
			slog.Warn("Model id shadows a voice file", "model", id)
		}
	}

	backends := backend.NewRegistry()
	defer func() {
		if err := backends.Close(); err != nil {
			slog.Error("Failed to close backends", "error", err)
		}
	}()

	if pb, err := piper.NewBackend(cfg.Piper.Bin, cfg.Piper.Timeout); err != nil {
		slog.Error("Piper unavailable", "bin", cfg.Piper.Bin, "error", err)
	} else if err := backends.Register(pb); err != nil {
		return err
	}

	var (
		status  httpserver.XTTSStatus
		loader  *model.Loader[xtts.Model]
		servers = backend.NewServerManager()
	)
	defer servers.StopAll()

	if cfg.XTTS.Enabled {
		loader = model.NewLoader(model.XTTSModelName, xtts.NewLoadFunc(xtts.ServerOptions{
			URL:            cfg.XTTS.ServerURL,
			Bin:            cfg.XTTS.ServerBin,
			Args:           cfg.XTTS.ServerArgs,
			Port:           cfg.XTTS.Port,
			ReadyTimeout:   cfg.XTTS.LoadTimeout,
			RequestTimeout: cfg.XTTS.RequestTimeout,
		}, servers))

		if err := backends.Register(xtts.NewBackend(models, loader, "", cfg.XTTS.RequestTimeout)); err != nil {
			return err
		}
		status = loader
	}

	tts := service.NewTTS(backends, models, catalog, cfg.Voices.Default)

	server := httpserver.NewServer(cfg.Server, version, !environment.IsProduction() && cfg.Log.Level == "debug")
	httpserver.NewTTSHandler(server.API(), tts, status)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Run(gctx)
	})

	if cfg.Voices.Watch {
		g.Go(func() error {
			if err := catalog.Watch(gctx); err != nil {
				slog.Warn("Voice directory is not watched, listings are read on every call", "error", err)
			}
			return nil
		})
	}

	if loader != nil && cfg.XTTS.Preload {
		g.Go(func() error {
			// A failed preload is retried on the first request.
			if err := loader.Preload(gctx); err != nil {
				slog.Warn("XTTS preload failed", "error", err)
			}
			return nil
		})
	}

	slog.Info("ttsd started",
		"version", version,
		"env", environment,
		"addr", cfg.Server.Addr(),
		"voice_dir", catalog.Dir(),
		"xtts_enabled", cfg.XTTS.Enabled,
	)

	return g.Wait()
}
