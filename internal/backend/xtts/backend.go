package xtts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ekisa-team/ttsd/internal/audio"
	"github.com/ekisa-team/ttsd/internal/backend"
	"github.com/ekisa-team/ttsd/internal/model"
	"github.com/ekisa-team/ttsd/internal/sentence"
	"github.com/ekisa-team/ttsd/internal/xfs"
	"github.com/ekisa-team/ttsd/mapsafe"
)

// Backend implements backend.StreamingBackend for the XTTS v2 voice-cloning model.
type Backend struct {
	registry *model.Registry
	loader   *model.Loader[Model]
	tempDir  string
	timeout  time.Duration
}

// NewBackend creates a new XTTS backend. timeout bounds each model call.
func NewBackend(registry *model.Registry, loader *model.Loader[Model], tempDir string, timeout time.Duration) *Backend {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Backend{
		registry: registry,
		loader:   loader,
		tempDir:  tempDir,
		timeout:  timeout,
	}
}

// Provider returns the engine identifier.
func (b *Backend) Provider() backend.Engine {
	return backend.EngineXTTS
}

// call is a validated synthesis request.
type call struct {
	entry model.Entry
	model Model
	text  string
	speed float64
}

// prepare runs the checks shared by Infer and InferStream. The order is
// registry, engine, loader, reference file.
func (b *Backend) prepare(ctx context.Context, req *backend.Request) (*call, error) {
	entry, err := b.registry.Resolve(req.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("xtts: %w: %s", backend.ErrUnknownModel, req.ModelPath)
	}
	if entry.Engine != backend.EngineXTTS {
		return nil, fmt.Errorf("xtts: %w: %s is a %s voice", backend.ErrUnsupportedEngine, entry.ID, entry.Engine)
	}

	m, err := b.waitModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("xtts: %w", err)
	}

	if !xfs.Exists(entry.SpeakerWav) {
		return nil, fmt.Errorf("xtts: %w: %s", backend.ErrMissingReference, entry.SpeakerWav)
	}

	var text []byte
	if req.Input != nil {
		if text, err = io.ReadAll(req.Input); err != nil {
			return nil, fmt.Errorf("xtts: read input: %w", err)
		}
	}

	return &call{
		entry: entry,
		model: m,
		text:  strings.TrimSpace(string(text)),
		speed: SpeedFromLengthScale(mapsafe.Get(req.Parameters, "length_scale", 1.0)),
	}, nil
}

// waitModel waits for the loader at most one call budget, so a request that
// arrives during a slow load gets ErrEngineUnavailable instead of hanging.
func (b *Backend) waitModel(ctx context.Context) (Model, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}
	return b.loader.Get(ctx)
}

// synthesize runs one model call through a scoped temp file.
func (b *Backend) synthesize(ctx context.Context, c *call, text string) ([]byte, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	var data []byte
	err := xfs.WithTempFile(b.tempDir, "xtts-*.wav", func(path string) error {
		err := c.model.TTSToFile(ctx, FileRequest{
			Text:       text,
			SpeakerWav: c.entry.SpeakerWav,
			Language:   c.entry.Language,
			OutputPath: path,
			Speed:      c.speed,
		})
		if err != nil {
			return err
		}

		data, err = os.ReadFile(path)
		return err
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
			return nil, fmt.Errorf("xtts: %w after %s", backend.ErrTimeout, b.timeout)
		}
		return nil, fmt.Errorf("xtts: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("xtts: %w: empty output file", backend.ErrSynthesisFailed)
	}
	return data, nil
}

// Infer synthesizes the whole text in one model call. Waiting for the model
// and the call itself share one budget.
func (b *Backend) Infer(ctx context.Context, req *backend.Request) (*backend.Response, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	c, err := b.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	data, err := b.synthesize(ctx, c, c.text)
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	slog.Debug("XTTS synthesis finished",
		"model", c.entry.ID,
		"duration_ms", elapsed.Milliseconds(),
		"size", humanize.Bytes(uint64(len(data))),
	)

	return &backend.Response{
		Output: bytes.NewReader(data),
		Metadata: &backend.ResponseMetadata{
			Engine:          b.Provider(),
			Model:           c.entry.ID,
			Timestamp:       time.Now(),
			DurationSeconds: elapsed.Seconds(),
			OutputSizeBytes: int64(len(data)),
			BackendSpecific: map[string]any{
				"speed":    c.speed,
				"language": c.entry.Language,
			},
		},
	}, nil
}

// InferStream synthesizes one sentence at a time. The checks run once before
// the first chunk; a failure after that ends the stream with an error chunk.
func (b *Backend) InferStream(ctx context.Context, req *backend.Request) (<-chan backend.StreamChunk, error) {
	c, err := b.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	sentences := sentence.Split(c.text)
	ch := make(chan backend.StreamChunk)

	go func() {
		defer close(ch)

		send := func(chunk backend.StreamChunk) bool {
			select {
			case ch <- chunk:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for i, s := range sentences {
			if ctx.Err() != nil {
				return
			}

			data, err := b.synthesize(ctx, c, s)
			if err != nil {
				slog.Error("XTTS stream aborted", "model", c.entry.ID, "sentence", i, "error", err)
				send(backend.StreamChunk{Error: err})
				return
			}

			if i > 0 {
				data = audio.Payload(data)
			}
			if !send(backend.StreamChunk{Data: data}) {
				return
			}
		}

		send(backend.StreamChunk{Done: true})
	}()

	return ch, nil
}

// Close cleans up resources. The model lives for the whole process.
func (b *Backend) Close() error {
	return nil
}

var _ backend.StreamingBackend = (*Backend)(nil)
