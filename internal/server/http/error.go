package http

import (
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"github.com/ekisa-team/ttsd/internal/backend"
	"github.com/ekisa-team/ttsd/internal/service"
)

// toHTTPError maps service and backend errors onto status codes.
func toHTTPError(err error) huma.StatusError {
	switch {
	case errors.Is(err, service.ErrEmptyText):
		return huma.Error400BadRequest("Text is required", err)
	case errors.Is(err, service.ErrInvalidEngine):
		return huma.Error400BadRequest("Invalid engine", err)
	case errors.Is(err, backend.ErrModelNotFound),
		errors.Is(err, backend.ErrUnknownModel):
		return huma.Error404NotFound("Voice model not found", err)
	case errors.Is(err, backend.ErrMissingReference):
		return huma.Error404NotFound("Speaker reference not found", err)
	case errors.Is(err, backend.ErrTimeout):
		return huma.Error504GatewayTimeout("TTS synthesis timeout", err)
	case errors.Is(err, backend.ErrEngineUnavailable):
		return huma.Error503ServiceUnavailable("TTS engine unavailable", err)
	case errors.Is(err, backend.ErrSynthesisFailed):
		return huma.Error500InternalServerError("TTS synthesis failed", err)
	default:
		return huma.Error500InternalServerError("Internal error", err)
	}
}
