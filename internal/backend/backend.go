package backend

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Engine identifies one of the synthesis engines. The set is closed.
type Engine string

const (
	// EnginePiper is the offline neural vocoder driven through the piper executable.
	EnginePiper Engine = "piper"
	// EngineXTTS is the XTTS v2 voice-cloning model.
	EngineXTTS Engine = "xtts"
)

// ParseEngine validates s as an Engine.
func ParseEngine(s string) (Engine, error) {
	switch e := Engine(s); e {
	case EnginePiper, EngineXTTS:
		return e, nil
	default:
		return "", fmt.Errorf("unknown engine %q", s)
	}
}

// Backend defines the capability shared by all synthesis backends.
type Backend interface {
	// Provider returns the engine this backend implements.
	Provider() Engine

	// Infer synthesizes the whole input and returns the complete WAV file.
	Infer(ctx context.Context, req *Request) (*Response, error)

	// Close cleans up resources.
	Close() error
}

// StreamingBackend is an optional interface for backends that can emit audio
// sentence by sentence.
type StreamingBackend interface {
	Backend

	// InferStream validates the request synchronously and then streams one
	// chunk per sentence. The first chunk is a complete WAV file, later chunks
	// carry PCM only. A chunk with Error set terminates the stream.
	InferStream(ctx context.Context, req *Request) (<-chan StreamChunk, error)
}

// Request encapsulates all parameters for a synthesis call.
type Request struct {
	// ModelPath is the voice file for piper, or the registry id for XTTS.
	ModelPath string

	// Input is the text to speak.
	Input io.Reader

	// Parameters contains engine-specific parameters such as length_scale and speaker_id.
	Parameters map[string]any
}

// Response contains the result of a synthesis call.
type Response struct {
	// Output is the WAV file.
	Output io.Reader

	// Metadata contains information about the call.
	Metadata *ResponseMetadata
}

// ResponseMetadata contains metadata about the response.
type ResponseMetadata struct {
	Engine          Engine         `json:"engine"`
	Model           string         `json:"model"`
	Timestamp       time.Time      `json:"timestamp"`
	BackendSpecific map[string]any `json:"backend_specific,omitempty"`
	DurationSeconds float64        `json:"inference_time_seconds"`
	OutputSizeBytes int64          `json:"output_size_bytes"`
}

// StreamChunk represents a single chunk in a streaming response.
type StreamChunk struct {
	// Error if something went wrong.
	Error error

	// Data is the chunk content.
	Data []byte

	// Done indicates if this is the final chunk.
	Done bool
}
