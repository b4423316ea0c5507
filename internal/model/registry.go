package model

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/ekisa-team/ttsd/internal/backend"
)

// XTTSSuffix marks model identifiers that belong to the voice-cloning engine.
const XTTSSuffix = "-xtts"

// XTTSModelName is the underlying multilingual checkpoint used by every cloning voice.
const XTTSModelName = "tts_models/multilingual/multi-dataset/xtts_v2"

// Entry describes one logical voice.
type Entry struct {
	// ID is the public identifier clients send as "model".
	ID string `json:"id"`
	// Engine selects the backend.
	Engine backend.Engine `json:"engine"`
	// Model is the piper voice file name (without .onnx) or the XTTS checkpoint.
	Model string `json:"model"`
	// SpeakerWav is the reference recording a cloning voice imitates.
	SpeakerWav string `json:"speaker_wav,omitempty"`
	Language   string `json:"language"`
	Quality    string `json:"quality,omitempty"`
	Gender     string `json:"gender,omitempty"`
}

// Registry maps model identifiers to entries. It is built once and never
// mutated, so it is safe for concurrent use without locking.
type Registry struct {
	entries map[string]Entry
}

// NewRegistry creates a registry from entries. Identifiers must be unique.
func NewRegistry(entries []Entry) (*Registry, error) {
	r := &Registry{entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		if e.ID == "" {
			return nil, fmt.Errorf("model entry without id")
		}
		if _, err := backend.ParseEngine(string(e.Engine)); err != nil {
			return nil, fmt.Errorf("model %s: %w", e.ID, err)
		}
		if e.Engine == backend.EngineXTTS && e.SpeakerWav == "" {
			return nil, fmt.Errorf("model %s: xtts entries need a speaker_wav", e.ID)
		}
		if _, dup := r.entries[e.ID]; dup {
			return nil, fmt.Errorf("model %s: duplicate id", e.ID)
		}
		r.entries[e.ID] = e
	}
	return r, nil
}

// Resolve returns the entry for id.
func (r *Registry) Resolve(id string) (Entry, error) {
	e, ok := r.entries[id]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, nil
}

// IDs lists the identifiers of one engine, sorted.
func (r *Registry) IDs(engine backend.Engine) []string {
	ids := make([]string, 0, len(r.entries))
	for id, e := range r.entries {
		if e.Engine == engine {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	return len(r.entries)
}

// InferEngine guesses the engine of an identifier that has no entry.
func InferEngine(id string) (backend.Engine, bool) {
	if strings.HasSuffix(id, XTTSSuffix) {
		return backend.EngineXTTS, true
	}
	return "", false
}

// Conflicts returns registry ids that are also piper voice file names. Such
// ids make the combined namespace ambiguous.
func Conflicts(r *Registry, voices []string) []string {
	var out []string
	for _, v := range voices {
		if e, ok := r.entries[v]; ok && e.Model != v {
			out = append(out, v)
		}
	}
	slices.Sort(out)
	return out
}

// DefaultEntries returns the built-in voices. Speaker references live in
// the speakers subdirectory of voiceDir.
func DefaultEntries(voiceDir string) []Entry {
	speaker := func(name string) string {
		return filepath.Join(voiceDir, "speakers", name)
	}

	return []Entry{
		{ID: "de-mls", Engine: backend.EnginePiper, Model: "de_DE-mls-medium", Language: "de", Quality: "medium", Gender: "female"},
		{ID: "de-thorsten", Engine: backend.EnginePiper, Model: "de_DE-thorsten-medium", Language: "de", Quality: "medium", Gender: "male"},
		{ID: "en-amy", Engine: backend.EnginePiper, Model: "en_US-amy-medium", Language: "en", Quality: "medium", Gender: "female"},
		{ID: "en-ryan", Engine: backend.EnginePiper, Model: "en_US-ryan-medium", Language: "en", Quality: "medium", Gender: "male"},
		{ID: "de-eva-xtts", Engine: backend.EngineXTTS, Model: XTTSModelName, SpeakerWav: speaker("de-eva.wav"), Language: "de", Quality: "high", Gender: "female"},
		{ID: "de-max-xtts", Engine: backend.EngineXTTS, Model: XTTSModelName, SpeakerWav: speaker("de-max.wav"), Language: "de", Quality: "high", Gender: "male"},
		{ID: "en-ava-xtts", Engine: backend.EngineXTTS, Model: XTTSModelName, SpeakerWav: speaker("en-ava.wav"), Language: "en", Quality: "high", Gender: "female"},
		{ID: "en-leo-xtts", Engine: backend.EngineXTTS, Model: XTTSModelName, SpeakerWav: speaker("en-leo.wav"), Language: "en", Quality: "high", Gender: "male"},
	}
}
