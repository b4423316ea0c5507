package xtts

import "context"

// Model is a loaded voice-cloning model. Implementations need not be safe for
// concurrent use; callers serialize access.
type Model interface {
	// Name identifies the loaded checkpoint.
	Name() string

	// TTSToFile synthesizes req.Text in the voice of req.SpeakerWav and writes
	// a WAV file to req.OutputPath.
	TTSToFile(ctx context.Context, req FileRequest) error
}

// FileRequest is a single synthesis call on the model.
type FileRequest struct {
	Text       string
	SpeakerWav string
	Language   string
	OutputPath string
	Speed      float64
}

// SpeedFromLengthScale converts a piper-style length scale into an XTTS speed.
// Non-positive scales mean normal speed.
func SpeedFromLengthScale(lengthScale float64) float64 {
	if lengthScale <= 0 {
		return 1
	}
	return 1 / lengthScale
}
