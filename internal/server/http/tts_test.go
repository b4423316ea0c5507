package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/ekisa-team/ttsd/internal/audio"
	"github.com/ekisa-team/ttsd/internal/backend"
	"github.com/ekisa-team/ttsd/internal/model"
	"github.com/ekisa-team/ttsd/internal/service"
	"github.com/ekisa-team/ttsd/internal/voice"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePiper struct {
	wav   []byte
	err   error
	calls int
}

func (f *fakePiper) Provider() backend.Engine { return backend.EnginePiper }
func (f *fakePiper) Close() error             { return nil }

func (f *fakePiper) Infer(_ context.Context, _ *backend.Request) (*backend.Response, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &backend.Response{Output: bytes.NewReader(f.wav), Metadata: &backend.ResponseMetadata{}}, nil
}

type fakeXTTS struct {
	chunks []backend.StreamChunk
	err    error
	calls  int
}

func (f *fakeXTTS) Provider() backend.Engine { return backend.EngineXTTS }
func (f *fakeXTTS) Close() error             { return nil }

func (f *fakeXTTS) Infer(_ context.Context, _ *backend.Request) (*backend.Response, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &backend.Response{Output: bytes.NewReader(bytes.Join(f.data(), nil)), Metadata: &backend.ResponseMetadata{}}, nil
}

func (f *fakeXTTS) InferStream(_ context.Context, _ *backend.Request) (<-chan backend.StreamChunk, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan backend.StreamChunk, len(f.chunks))
	for _, c := range f.chunks {
		ch <- c
	}
	close(ch)
	return ch, nil
}

func (f *fakeXTTS) data() [][]byte {
	var out [][]byte
	for _, c := range f.chunks {
		if c.Data != nil {
			out = append(out, c.Data)
		}
	}
	return out
}

type fakeStatus struct {
	state model.State
	err   error
}

func (s fakeStatus) State() model.State { return s.state }
func (s fakeStatus) Ready() bool        { return s.state == model.StateReady }
func (s fakeStatus) Err() error         { return s.err }

type fixture struct {
	api   humatest.TestAPI
	piper *fakePiper
	xtts  *fakeXTTS
	dir   string
}

func newFixture(t *testing.T, status XTTSStatus) *fixture {
	t.Helper()

	dir := t.TempDir()
	for _, v := range []string{"de_DE-thorsten-medium", "en_US-amy-medium"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, v+".onnx"), []byte("onnx"), 0o644))
	}

	reg, err := model.NewRegistry(model.DefaultEntries(dir))
	require.NoError(t, err)

	f := &fixture{
		piper: &fakePiper{wav: audio.Encode(bytes.Repeat([]byte{1}, 64), 22050, 1)},
		xtts:  &fakeXTTS{},
		dir:   dir,
	}

	backends := backend.NewRegistry()
	require.NoError(t, backends.Register(f.piper))
	require.NoError(t, backends.Register(f.xtts))

	_, api := humatest.New(t)
	NewTTSHandler(api, service.NewTTS(backends, reg, voice.NewCatalog(dir), ""), status)
	f.api = api
	return f
}

func TestHealth(t *testing.T) {
	f := newFixture(t, fakeStatus{state: model.StateLoading})

	resp := f.api.Get("/health")
	require.Equal(t, http.StatusOK, resp.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["piperAvailable"])
	assert.Equal(t, float64(2), body["piperVoiceCount"])
	assert.Equal(t, []any{"de_DE-thorsten-medium", "en_US-amy-medium"}, body["voices"])
	assert.Equal(t, true, body["xttsEnabled"])
	assert.Equal(t, false, body["xttsAvailable"])
	assert.Equal(t, "loading", body["xttsState"])
	assert.Len(t, body["xttsModels"], 4)
}

func TestHealth_XTTSFailed(t *testing.T) {
	f := newFixture(t, fakeStatus{state: model.StateFailed, err: errors.New("engine unavailable: connection refused")})

	resp := f.api.Get("/health")
	require.Equal(t, http.StatusOK, resp.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, "failed", body["xttsState"])
	assert.Equal(t, false, body["xttsAvailable"])
	assert.Contains(t, body["xttsError"], "connection refused")
}

func TestHealth_VoiceDirMissing(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, os.RemoveAll(f.dir))

	resp := f.api.Get("/health")
	require.Equal(t, http.StatusServiceUnavailable, resp.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, "error", body["status"])
	assert.NotEmpty(t, body["error"])
}

func TestHealth_XTTSDisabled(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.api.Get("/health")
	require.Equal(t, http.StatusOK, resp.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, false, body["xttsEnabled"])
	assert.Equal(t, "disabled", body["xttsState"])
	assert.NotContains(t, body, "xttsModels")
}

func TestVoices(t *testing.T) {
	f := newFixture(t, fakeStatus{state: model.StateReady})

	resp := f.api.Get("/voices")
	require.Equal(t, http.StatusOK, resp.Code)

	var body VoicesResponseDTO
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, []string{"de_DE-thorsten-medium", "en_US-amy-medium"}, body.Piper)
	assert.Equal(t, []string{"de-eva-xtts", "de-max-xtts", "en-ava-xtts", "en-leo-xtts"}, body.XTTS)
}

func TestVoices_ListFailure(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, os.RemoveAll(f.dir))

	resp := f.api.Get("/voices")
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
}

func TestSynthesize(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.api.Post("/synthesize", map[string]any{"text": "Hallo Welt.", "lengthScale": 1.1})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	assert.Equal(t, f.piper.wav, resp.Body.Bytes())
	assert.Equal(t, "audio/wav", resp.Header().Get("Content-Type"))
	assert.Equal(t, "public, max-age=3600", resp.Header().Get("Cache-Control"))
	assert.Equal(t, strconv.Itoa(resp.Body.Len()), resp.Header().Get("X-Audio-Size-Bytes"))
	assert.Equal(t, "piper", resp.Header().Get("X-TTS-Engine"))
	assert.Equal(t, "de_DE-thorsten-medium", resp.Header().Get("X-TTS-Model"))

	ms, err := strconv.Atoi(resp.Header().Get("X-TTS-Duration-Ms"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, ms, 0)
}

func TestSynthesize_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       map[string]any
		piperErr   error
		wantStatus int
	}{
		{"missing text", map[string]any{"model": "en-amy"}, nil, http.StatusBadRequest},
		{"blank text", map[string]any{"text": "   "}, nil, http.StatusBadRequest},
		{"invalid engine", map[string]any{"text": "Hallo.", "engine": "coqui"}, nil, http.StatusBadRequest},
		{"unknown voice", map[string]any{"text": "Hallo.", "model": "fr_FR-siwis-medium"}, nil, http.StatusNotFound},
		{"timeout", map[string]any{"text": "Hallo."}, backend.ErrTimeout, http.StatusGatewayTimeout},
		{"piper failure", map[string]any{"text": "Hallo."}, &backend.ExitError{Err: errors.New("exit status 1"), Stderr: "bad voice"}, http.StatusInternalServerError},
		{"engine unavailable", map[string]any{"text": "Hallo."}, backend.ErrEngineUnavailable, http.StatusServiceUnavailable},
		{"missing reference", map[string]any{"text": "Hallo."}, backend.ErrMissingReference, http.StatusNotFound},
		{"unexpected", map[string]any{"text": "Hallo."}, errors.New("disk full"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.piper.err = tt.piperErr

			resp := f.api.Post("/synthesize", tt.body)
			assert.Equal(t, tt.wantStatus, resp.Code, resp.Body.String())
		})
	}
}

func TestEmptyText_NoBackendCall(t *testing.T) {
	bodies := map[string]map[string]any{
		"missing text":       {"model": "de-eva-xtts"},
		"empty text":         {"text": ""},
		"blank text":         {"text": " \n\t "},
		"blank text to xtts": {"text": "   ", "model": "de-eva-xtts"},
	}

	for _, path := range []string{"/synthesize", "/synthesize-stream"} {
		for name, body := range bodies {
			t.Run(path+" "+name, func(t *testing.T) {
				f := newFixture(t, fakeStatus{state: model.StateReady})

				resp := f.api.Post(path, body)
				assert.Equal(t, http.StatusBadRequest, resp.Code, resp.Body.String())
				assert.Zero(t, f.piper.calls)
				assert.Zero(t, f.xtts.calls)
			})
		}
	}
}

func TestSynthesize_PiperStderrInDetail(t *testing.T) {
	f := newFixture(t, nil)
	f.piper.err = &backend.ExitError{Err: errors.New("exit status 1"), Stderr: "Failed to load voice"}

	resp := f.api.Post("/synthesize", map[string]any{"text": "Hallo."})
	require.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.Contains(t, resp.Body.String(), "Failed to load voice")
}

func TestSynthesizeStream_PiperIsBuffered(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.api.Post("/synthesize-stream", map[string]any{"text": "Hallo. Welt."})
	require.Equal(t, http.StatusOK, resp.Code)

	assert.Equal(t, f.piper.wav, resp.Body.Bytes())
	assert.Equal(t, "public, max-age=3600", resp.Header().Get("Cache-Control"))
	assert.Equal(t, strconv.Itoa(len(f.piper.wav)), resp.Header().Get("X-Audio-Size-Bytes"))
	assert.Equal(t, "piper", resp.Header().Get("X-TTS-Engine"))
}

func TestSynthesizeStream_XTTS(t *testing.T) {
	f := newFixture(t, fakeStatus{state: model.StateReady})

	first := audio.Encode(bytes.Repeat([]byte{1}, 100), 24000, 1)
	f.xtts.chunks = []backend.StreamChunk{
		{Data: first},
		{Data: bytes.Repeat([]byte{2}, 50)},
		{Data: bytes.Repeat([]byte{3}, 70)},
		{Done: true},
	}

	resp := f.api.Post("/synthesize-stream", map[string]any{"text": "Eins. Zwei. Drei.", "model": "de-eva-xtts"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	res := resp.Result()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	assert.Len(t, body, len(first)+50+70)
	assert.Equal(t, first, body[:len(first)])
	assert.Equal(t, "no-cache", res.Header.Get("Cache-Control"))
	assert.Equal(t, "xtts", res.Header.Get("X-TTS-Engine"))
	assert.Equal(t, "de-eva-xtts", res.Header.Get("X-TTS-Model"))
	assert.Equal(t, strconv.Itoa(len(body)), res.Trailer.Get("X-Audio-Size-Bytes"))
	assert.NotEmpty(t, res.Trailer.Get("X-TTS-Duration-Ms"))
	assert.Empty(t, res.Trailer.Get("X-TTS-Error"))
}

func TestSynthesizeStream_XTTSMidStreamError(t *testing.T) {
	f := newFixture(t, fakeStatus{state: model.StateReady})

	first := audio.Encode(bytes.Repeat([]byte{1}, 10), 24000, 1)
	f.xtts.chunks = []backend.StreamChunk{
		{Data: first},
		{Error: errors.New("cuda out of memory")},
	}

	resp := f.api.Post("/synthesize-stream", map[string]any{"text": "Eins. Zwei.", "model": "de-eva-xtts"})
	require.Equal(t, http.StatusOK, resp.Code)

	res := resp.Result()
	assert.Equal(t, first, resp.Body.Bytes())
	assert.Equal(t, strconv.Itoa(len(first)), res.Trailer.Get("X-Audio-Size-Bytes"))
	assert.Contains(t, res.Trailer.Get("X-TTS-Error"), "cuda out of memory")
}

func TestSynthesizeStream_XTTSUnavailable(t *testing.T) {
	f := newFixture(t, fakeStatus{state: model.StateFailed})
	f.xtts.err = backend.ErrEngineUnavailable

	resp := f.api.Post("/synthesize-stream", map[string]any{"text": "Hallo.", "model": "de-eva-xtts"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
}
