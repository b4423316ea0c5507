package xtts

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/ekisa-team/ttsd/internal/backend"
	"github.com/ekisa-team/ttsd/internal/model"
)

// ServerOptions describes where the XTTS server lives and how to start it.
type ServerOptions struct {
	// URL of a running server. Used as is when Bin is empty.
	URL string
	// Bin is the xtts-api-server executable. When set, the server is started
	// on demand and listens on Port.
	Bin  string
	Args []string
	Port int
	// ReadyTimeout bounds how long model loading may take.
	ReadyTimeout time.Duration
	// RequestTimeout bounds a single HTTP call to the server.
	RequestTimeout time.Duration
}

// NewLoadFunc returns the function that brings the model up for a model.Loader.
func NewLoadFunc(opts ServerOptions, sm *backend.ServerManager) model.LoadFunc[Model] {
	return func(ctx context.Context) (Model, error) {
		baseURL := opts.URL

		if opts.Bin != "" {
			args := append([]string{"-hs", "127.0.0.1", "-p", strconv.Itoa(opts.Port)}, opts.Args...)

			var err error
			baseURL, err = sm.StartServer(ctx, backend.ServerConfig{
				Name:         "xtts",
				BinPath:      opts.Bin,
				Args:         args,
				Port:         opts.Port,
				HealthPath:   speakersEndpoint,
				ReadyTimeout: opts.ReadyTimeout,
			})
			if err != nil {
				return nil, err
			}
		} else {
			if _, err := url.ParseRequestURI(baseURL); err != nil {
				return nil, fmt.Errorf("invalid xtts server url %q: %w", baseURL, err)
			}
			slog.Info("Waiting for XTTS server", "url", baseURL)
			if err := sm.WaitReady(ctx, baseURL+speakersEndpoint, opts.ReadyTimeout); err != nil {
				return nil, err
			}
		}

		client := NewClient(baseURL, model.XTTSModelName, opts.RequestTimeout)
		speakers, err := client.Speakers(ctx)
		if err != nil {
			return nil, err
		}
		slog.Info("XTTS server ready", "url", baseURL, "speakers", len(speakers))

		return client, nil
	}
}
