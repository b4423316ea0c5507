package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dustin/go-humanize"
	"github.com/ekisa-team/ttsd/internal/backend"
	"github.com/ekisa-team/ttsd/internal/model"
	"github.com/ekisa-team/ttsd/internal/service"
)

const (
	headerDuration = "X-TTS-Duration-Ms"
	headerSize     = "X-Audio-Size-Bytes"
	headerEngine   = "X-TTS-Engine"
	headerModel    = "X-TTS-Model"
	headerError    = "X-TTS-Error"

	contentTypeWAV   = "audio/wav"
	cacheControlWAV  = "public, max-age=3600"
	cacheControlLive = "no-cache"
)

type (
	SynthesizeRequestDTO struct {
		_           struct{} `json:"-" additionalProperties:"true"`
		Text        string   `json:"text,omitempty"        maxLength:"10000" doc:"Text to speak"`
		Model       string   `json:"model,omitempty"       doc:"Voice file name or registry id" example:"de_DE-thorsten-medium"`
		Engine      string   `json:"engine,omitempty"      doc:"Force an engine: piper or xtts"`
		Speaker     *int     `json:"speaker,omitempty"     doc:"Speaker index of multi-speaker piper voices"`
		LengthScale float64  `json:"lengthScale,omitempty" doc:"Speech duration factor, below 1 is faster" example:"1.0"`
	}

	HealthResponseDTO struct {
		Status          string   `json:"status"`
		Error           string   `json:"error,omitempty"`
		PiperAvailable  *bool    `json:"piperAvailable,omitempty"`
		PiperVoiceCount *int     `json:"piperVoiceCount,omitempty"`
		Voices          []string `json:"voices,omitempty"`
		XTTSEnabled     *bool    `json:"xttsEnabled,omitempty"`
		XTTSAvailable   *bool    `json:"xttsAvailable,omitempty"`
		XTTSState       string   `json:"xttsState,omitempty"`
		XTTSError       string   `json:"xttsError,omitempty"`
		XTTSModels      []string `json:"xttsModels,omitempty"`
	}

	VoicesResponseDTO struct {
		Piper []string `json:"piper"`
		XTTS  []string `json:"xtts"`
	}
)

func (b SynthesizeRequestDTO) toRequest() service.SynthesisRequest {
	return service.SynthesisRequest{
		Text:        b.Text,
		Model:       b.Model,
		Engine:      b.Engine,
		Speaker:     b.Speaker,
		LengthScale: b.LengthScale,
	}
}

type (
	SynthesizeInput struct {
		Body SynthesizeRequestDTO
	}

	SynthesizeOutput struct {
		ContentType  string `header:"Content-Type"`
		CacheControl string `header:"Cache-Control"`
		DurationMs   int64  `header:"X-TTS-Duration-Ms"`
		SizeBytes    int    `header:"X-Audio-Size-Bytes"`
		Engine       string `header:"X-TTS-Engine"`
		Model        string `header:"X-TTS-Model"`
		Body         []byte
	}

	HealthOutput struct {
		Status int
		Body   HealthResponseDTO
	}

	VoicesOutput struct {
		Body VoicesResponseDTO
	}
)

// XTTSStatus reports the state of the lazily loaded voice-cloning model.
type XTTSStatus interface {
	State() model.State
	Ready() bool
	Err() error
}

// TTSHandler handles HTTP requests for TTS.
type TTSHandler struct {
	service *service.TTS
	xtts    XTTSStatus
}

// NewTTSHandler creates a new TTSHandler instance. xtts is nil when the
// voice-cloning engine is disabled.
func NewTTSHandler(api huma.API, service *service.TTS, xtts XTTSStatus) *TTSHandler {
	h := &TTSHandler{service: service, xtts: xtts}

	audioResponse := map[string]*huma.Response{
		"200": {
			Description: "WAV audio",
			Content:     map[string]*huma.MediaType{contentTypeWAV: {}},
		},
	}

	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Report engine availability",
		Tags:        []string{"health"},
	}, h.handleHealth)

	huma.Register(api, huma.Operation{
		OperationID: "list-voices",
		Method:      http.MethodGet,
		Path:        "/voices",
		Summary:     "List installed piper voices and XTTS voices",
		Tags:        []string{"tts"},
	}, h.handleVoices)

	huma.Register(api, huma.Operation{
		OperationID:   "synthesize",
		Method:        http.MethodPost,
		Path:          "/synthesize",
		Summary:       "Synthesize speech into a WAV file",
		Tags:          []string{"tts"},
		DefaultStatus: http.StatusOK,
		Responses:     audioResponse,
	}, h.handleSynthesize)

	huma.Register(api, huma.Operation{
		OperationID:   "synthesize-stream",
		Method:        http.MethodPost,
		Path:          "/synthesize-stream",
		Summary:       "Synthesize speech sentence by sentence as a chunked WAV stream",
		Tags:          []string{"tts"},
		DefaultStatus: http.StatusOK,
		Responses:     audioResponse,
	}, h.handleSynthesizeStream)

	return h
}

// handleHealth handles the health operation.
func (h *TTSHandler) handleHealth(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
	voices, xttsModels, err := h.service.Voices()
	if err != nil {
		slog.Error("Health check failed", "error", err)
		return &HealthOutput{
			Status: http.StatusServiceUnavailable,
			Body:   HealthResponseDTO{Status: "error", Error: err.Error()},
		}, nil
	}

	var (
		piperAvailable = h.service.Enabled(backend.EnginePiper)
		voiceCount     = len(voices)
		xttsEnabled    = h.xtts != nil
		xttsAvailable  = xttsEnabled && h.xtts.Ready()
		xttsState      = "disabled"
		xttsError      = ""
	)
	if xttsEnabled {
		xttsState = string(h.xtts.State())
		if err := h.xtts.Err(); err != nil {
			xttsError = err.Error()
		}
	} else {
		xttsModels = nil
	}

	return &HealthOutput{
		Status: http.StatusOK,
		Body: HealthResponseDTO{
			Status:          "ok",
			PiperAvailable:  &piperAvailable,
			PiperVoiceCount: &voiceCount,
			Voices:          voices,
			XTTSEnabled:     &xttsEnabled,
			XTTSAvailable:   &xttsAvailable,
			XTTSState:       xttsState,
			XTTSError:       xttsError,
			XTTSModels:      xttsModels,
		},
	}, nil
}

// handleVoices handles the list-voices operation.
func (h *TTSHandler) handleVoices(ctx context.Context, _ *struct{}) (*VoicesOutput, error) {
	piper, xtts, err := h.service.Voices()
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to list voices", err)
	}
	if h.xtts == nil {
		xtts = []string{}
	}

	return &VoicesOutput{Body: VoicesResponseDTO{Piper: piper, XTTS: xtts}}, nil
}

// handleSynthesize handles the synthesize operation.
func (h *TTSHandler) handleSynthesize(ctx context.Context, input *SynthesizeInput) (*SynthesizeOutput, error) {
	res, err := h.service.Synthesize(ctx, input.Body.toRequest())
	if err != nil {
		return nil, toHTTPError(err)
	}

	return &SynthesizeOutput{
		ContentType:  contentTypeWAV,
		CacheControl: cacheControlWAV,
		DurationMs:   res.Duration.Milliseconds(),
		SizeBytes:    res.Size(),
		Engine:       string(res.Engine),
		Model:        res.Model,
		Body:         res.Audio,
	}, nil
}

// handleSynthesizeStream handles the synthesize-stream operation. Engines
// without sentence streaming answer exactly like synthesize.
func (h *TTSHandler) handleSynthesizeStream(ctx context.Context, input *SynthesizeInput) (*huma.StreamResponse, error) {
	stream, err := h.service.SynthesizeStream(ctx, input.Body.toRequest())
	if err != nil {
		return nil, toHTTPError(err)
	}

	if res := stream.Buffered; res != nil {
		return &huma.StreamResponse{Body: func(hctx huma.Context) {
			hctx.SetHeader("Content-Type", contentTypeWAV)
			hctx.SetHeader("Cache-Control", cacheControlWAV)
			hctx.SetHeader(headerDuration, strconv.FormatInt(res.Duration.Milliseconds(), 10))
			hctx.SetHeader(headerSize, strconv.Itoa(res.Size()))
			hctx.SetHeader(headerEngine, string(res.Engine))
			hctx.SetHeader(headerModel, res.Model)
			hctx.SetStatus(http.StatusOK)
			if _, err := hctx.BodyWriter().Write(res.Audio); err != nil {
				slog.Warn("Failed to write audio", "error", err)
			}
		}}, nil
	}

	return &huma.StreamResponse{Body: func(hctx huma.Context) {
		writeStream(hctx, stream)
	}}, nil
}

// writeStream copies chunks to the client as they arrive. Metrics are only
// known at the end, so they travel as trailers.
func writeStream(hctx huma.Context, stream *service.Stream) {
	hctx.SetHeader("Content-Type", contentTypeWAV)
	hctx.SetHeader("Cache-Control", cacheControlLive)
	hctx.SetHeader(headerEngine, string(stream.Engine))
	hctx.SetHeader(headerModel, stream.Model)
	hctx.AppendHeader("Trailer", headerDuration)
	hctx.AppendHeader("Trailer", headerSize)
	hctx.AppendHeader("Trailer", headerError)
	hctx.SetStatus(http.StatusOK)

	w := hctx.BodyWriter()
	flusher, _ := w.(http.Flusher)

	var (
		size   int
		chunks int
	)

loop:
	for chunk := range stream.Chunks {
		switch {
		case chunk.Error != nil:
			// Status and earlier chunks are already on the wire.
			slog.Error("Speech stream failed", "engine", stream.Engine, "model", stream.Model, "chunks", chunks, "error", chunk.Error)
			hctx.SetHeader(headerError, chunk.Error.Error())
			break loop
		case chunk.Done:
			break loop
		}

		n, err := w.Write(chunk.Data)
		size += n
		if err != nil {
			slog.Warn("Client went away during speech stream", "error", err)
			return
		}
		chunks++
		if flusher != nil {
			flusher.Flush()
		}
	}

	elapsed := time.Since(stream.Started)
	hctx.SetHeader(headerDuration, strconv.FormatInt(elapsed.Milliseconds(), 10))
	hctx.SetHeader(headerSize, strconv.Itoa(size))

	slog.Info("Speech streamed",
		"engine", stream.Engine,
		"model", stream.Model,
		"chunks", chunks,
		"duration_ms", elapsed.Milliseconds(),
		"size", humanize.Bytes(uint64(size)),
	)
}
