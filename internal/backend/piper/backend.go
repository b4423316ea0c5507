package piper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ekisa-team/ttsd/internal/backend"
	"github.com/ekisa-team/ttsd/internal/xfs"
	"github.com/ekisa-team/ttsd/mapsafe"
)

// DefaultLengthScale is the speaking rate used when none is given.
const DefaultLengthScale = 1.0

// Backend implements backend.Backend for Piper TTS.
type Backend struct {
	executor *backend.Executor
	tempDir  string
}

// NewBackend creates a new Piper backend. Every call runs binPath once and is
// killed when it exceeds timeout.
func NewBackend(binPath string, timeout time.Duration) (*Backend, error) {
	executor, err := backend.NewExecutor(binPath, timeout)
	if err != nil {
		return nil, err
	}

	return NewBackendWithExecutor(executor, os.TempDir()), nil
}

// NewBackendWithExecutor creates a Piper backend on top of an existing executor.
func NewBackendWithExecutor(executor *backend.Executor, tempDir string) *Backend {
	return &Backend{
		executor: executor,
		tempDir:  tempDir,
	}
}

// Provider returns the engine identifier.
func (b *Backend) Provider() backend.Engine {
	return backend.EnginePiper
}

// Infer synthesizes speech from text.
// Input: text bytes.
// Output: WAV audio bytes.
func (b *Backend) Infer(ctx context.Context, req *backend.Request) (*backend.Response, error) {
	if !xfs.Exists(req.ModelPath) {
		return nil, fmt.Errorf("%w: %s", backend.ErrModelNotFound, req.ModelPath)
	}

	start := time.Now()

	var (
		audioData []byte
		args      []string
		stderr    []byte
	)

	// Piper writes to a file, so synthesis goes through a scoped temp file.
	err := xfs.WithTempFile(b.tempDir, "piper-*.wav", func(outputFile string) error {
		args = b.buildArgs(req, outputFile)

		var err error
		_, stderr, err = b.executor.Execute(ctx, args, req.Input)
		if err != nil {
			return err
		}

		audioData, err = os.ReadFile(outputFile)
		if err != nil {
			return fmt.Errorf("failed to read audio file: %w", err)
		}
		return nil
	})
	if err != nil {
		var exitErr *backend.ExitError
		if errors.As(err, &exitErr) {
			slog.Error("Piper failed", "model", req.ModelPath, "stderr", exitErr.Stderr)
		}
		return nil, fmt.Errorf("piper: %w", err)
	}

	if len(audioData) == 0 {
		return nil, fmt.Errorf("piper: %w: empty output file", backend.ErrSynthesisFailed)
	}

	elapsed := time.Since(start)
	slog.Debug("Piper synthesis finished",
		"model", req.ModelPath,
		"duration_ms", elapsed.Milliseconds(),
		"size", humanize.Bytes(uint64(len(audioData))),
	)

	return &backend.Response{
		Output: bytes.NewReader(audioData),
		Metadata: &backend.ResponseMetadata{
			Engine:          b.Provider(),
			Model:           req.ModelPath,
			Timestamp:       time.Now(),
			DurationSeconds: elapsed.Seconds(),
			OutputSizeBytes: int64(len(audioData)),
			BackendSpecific: map[string]any{
				"stderr": string(stderr),
				"args":   args,
			},
		},
	}, nil
}

// buildArgs builds Piper command-line arguments.
func (b *Backend) buildArgs(req *backend.Request, outputFile string) []string {
	lengthScale := mapsafe.Get(req.Parameters, "length_scale", DefaultLengthScale)
	if lengthScale <= 0 {
		lengthScale = DefaultLengthScale
	}

	args := []string{
		"--model", req.ModelPath,
		"--output_file", outputFile,
		"--length_scale", strconv.FormatFloat(lengthScale, 'f', -1, 64),
	}

	if mapsafe.Has(req.Parameters, "speaker_id") {
		args = append(args, "--speaker", strconv.Itoa(mapsafe.Get(req.Parameters, "speaker_id", 0)))
	}

	return args
}

// Close cleans up resources. Piper does not have any resources to clean up.
func (b *Backend) Close() error {
	return nil
}

var _ backend.Backend = (*Backend)(nil)
