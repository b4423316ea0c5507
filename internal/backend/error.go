package backend

import "errors"

// Error definitions for the backend package.
var (
	ErrAlreadyRegistered = errors.New("backend is already registered in the registry")

	// ErrModelNotFound means the voice file for the requested model is missing on disk.
	ErrModelNotFound = errors.New("voice model not found")
	// ErrUnknownModel means the identifier has no registry entry.
	ErrUnknownModel = errors.New("unknown model")
	// ErrMissingReference means the speaker reference audio of a cloning voice is missing.
	ErrMissingReference = errors.New("speaker reference audio not found")
	// ErrUnsupportedEngine means a registry entry was routed to a backend of another engine.
	ErrUnsupportedEngine = errors.New("unsupported engine for model")
	// ErrEngineUnavailable means the engine could not be loaded; a later call may succeed.
	ErrEngineUnavailable = errors.New("engine unavailable")
	// ErrSynthesisFailed means the engine ran and failed.
	ErrSynthesisFailed = errors.New("synthesis failed")
	// ErrTimeout means synthesis exceeded its wall-clock budget.
	ErrTimeout = errors.New("synthesis timed out")
)
