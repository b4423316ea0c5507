package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ekisa-team/ttsd/internal/backend"
	"github.com/ekisa-team/ttsd/internal/model"
)

// DefaultVoice is the piper voice used when a request names no model.
const DefaultVoice = "de_DE-thorsten-medium"

// VoiceCatalog lists installed piper voices.
type VoiceCatalog interface {
	List() ([]string, error)
	Exists(name string) bool
	Path(name string) string
}

// SynthesisRequest is a request to speak Text.
type SynthesisRequest struct {
	Text        string
	Model       string
	Engine      string
	Speaker     *int
	LengthScale float64
}

// Result is a complete synthesized WAV file with its metrics.
type Result struct {
	Audio    []byte
	Engine   backend.Engine
	Model    string
	Duration time.Duration
}

// Size returns the audio size in bytes.
func (r *Result) Size() int {
	return len(r.Audio)
}

// Stream is the outcome of SynthesizeStream. Exactly one of Chunks and
// Buffered is set: engines without sentence streaming answer in one piece.
type Stream struct {
	Chunks   <-chan backend.StreamChunk
	Buffered *Result
	Started  time.Time
	Engine   backend.Engine
	Model    string
}

// target is a resolved request.
type target struct {
	engine backend.Engine
	model  string
	req    *backend.Request
}

// TTS is a service abstraction for text-to-speech.
type TTS struct {
	backends     *backend.Registry
	models       *model.Registry
	voices       VoiceCatalog
	defaultVoice string
}

// NewTTS creates a new TTS service. defaultVoice may be empty for DefaultVoice.
func NewTTS(backends *backend.Registry, models *model.Registry, voices VoiceCatalog, defaultVoice string) *TTS {
	if defaultVoice == "" {
		defaultVoice = DefaultVoice
	}
	return &TTS{
		backends:     backends,
		models:       models,
		voices:       voices,
		defaultVoice: defaultVoice,
	}
}

// Synthesize synthesizes the whole text into one WAV file.
func (s *TTS) Synthesize(ctx context.Context, req SynthesisRequest) (*Result, error) {
	t, err := s.resolve(req)
	if err != nil {
		return nil, err
	}

	b, err := s.backend(t.engine)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := b.Infer(ctx, t.req)
	if err != nil {
		slog.Error("Failed to synthesize speech", "engine", t.engine, "model", t.model, "error", err)
		return nil, err
	}

	data, err := io.ReadAll(resp.Output)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}

	res := &Result{
		Audio:    data,
		Engine:   t.engine,
		Model:    t.model,
		Duration: time.Since(start),
	}

	slog.Info("Speech synthesized",
		"engine", res.Engine,
		"model", res.Model,
		"duration_ms", res.Duration.Milliseconds(),
		"size", humanize.Bytes(uint64(res.Size())),
	)
	return res, nil
}

// SynthesizeStream streams sentence by sentence when the engine supports it
// and falls back to a single buffered result otherwise.
func (s *TTS) SynthesizeStream(ctx context.Context, req SynthesisRequest) (*Stream, error) {
	t, err := s.resolve(req)
	if err != nil {
		return nil, err
	}

	sb, ok := s.backends.GetStreaming(t.engine)
	if !ok {
		res, err := s.Synthesize(ctx, req)
		if err != nil {
			return nil, err
		}
		return &Stream{Buffered: res, Started: time.Now().Add(-res.Duration), Engine: res.Engine, Model: res.Model}, nil
	}

	start := time.Now()
	chunks, err := sb.InferStream(ctx, t.req)
	if err != nil {
		slog.Error("Failed to start speech stream", "engine", t.engine, "model", t.model, "error", err)
		return nil, err
	}

	return &Stream{Chunks: chunks, Started: start, Engine: t.engine, Model: t.model}, nil
}

// Enabled reports whether a backend for engine is registered.
func (s *TTS) Enabled(engine backend.Engine) bool {
	_, ok := s.backends.Get(engine)
	return ok
}

func (s *TTS) backend(engine backend.Engine) (backend.Backend, error) {
	b, ok := s.backends.Get(engine)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not enabled", backend.ErrEngineUnavailable, engine)
	}
	return b, nil
}

// resolve validates req and picks engine and model. The engine comes from,
// in order: the explicit request field, the registry entry, the -xtts
// suffix, and finally piper.
func (s *TTS) resolve(req SynthesisRequest) (*target, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, ErrEmptyText
	}

	lengthScale := req.LengthScale
	if lengthScale <= 0 {
		lengthScale = 1.0
	}

	id := strings.TrimSpace(req.Model)
	entry, inRegistry := s.lookup(id)

	var engine backend.Engine
	switch {
	case req.Engine != "":
		e, err := backend.ParseEngine(strings.ToLower(strings.TrimSpace(req.Engine)))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidEngine, err)
		}
		engine = e
	case inRegistry:
		engine = entry.Engine
	default:
		if e, ok := model.InferEngine(id); ok {
			engine = e
		} else {
			engine = backend.EnginePiper
		}
	}

	params := map[string]any{"length_scale": lengthScale}

	switch engine {
	case backend.EngineXTTS:
		if id == "" {
			return nil, fmt.Errorf("%w: a model is required for the xtts engine", backend.ErrUnknownModel)
		}
		return &target{
			engine: engine,
			model:  id,
			req:    &backend.Request{ModelPath: id, Input: strings.NewReader(text), Parameters: params},
		}, nil

	default:
		voice := id
		switch {
		case voice == "":
			voice = s.defaultVoice
		case inRegistry && entry.Engine == backend.EnginePiper:
			voice = entry.Model
		}
		if !s.voices.Exists(voice) {
			return nil, fmt.Errorf("%w: %s", backend.ErrModelNotFound, voice)
		}
		if req.Speaker != nil {
			params["speaker_id"] = *req.Speaker
		}
		return &target{
			engine: engine,
			model:  voice,
			req:    &backend.Request{ModelPath: s.voices.Path(voice), Input: strings.NewReader(text), Parameters: params},
		}, nil
	}
}

func (s *TTS) lookup(id string) (model.Entry, bool) {
	if id == "" {
		return model.Entry{}, false
	}
	e, err := s.models.Resolve(id)
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			slog.Warn("Registry lookup failed", "model", id, "error", err)
		}
		return model.Entry{}, false
	}
	return e, true
}

// Voices lists installed piper voices and registered XTTS voices.
func (s *TTS) Voices() (piper []string, xtts []string, err error) {
	piper, err = s.voices.List()
	if err != nil {
		return nil, nil, err
	}
	return piper, s.models.IDs(backend.EngineXTTS), nil
}

