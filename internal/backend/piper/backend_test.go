package piper

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ekisa-team/ttsd/internal/backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner stands in for the piper executable: it records the call and
// writes wav to the path following --output_file.
type fakeRunner struct {
	args  []string
	stdin string
	wav   []byte
	err   error
}

func (f *fakeRunner) Run(_ context.Context, _ string, args []string, stdin io.Reader) ([]byte, []byte, error) {
	f.args = args
	if stdin != nil {
		b, _ := io.ReadAll(stdin)
		f.stdin = string(b)
	}
	if f.err != nil {
		return nil, []byte("Failed to load voice"), f.err
	}
	for i, a := range args {
		if a == "--output_file" && i+1 < len(args) {
			if err := os.WriteFile(args[i+1], f.wav, 0o644); err != nil {
				return nil, nil, err
			}
		}
	}
	return nil, nil, nil
}

func outputFile(args []string) string {
	for i, a := range args {
		if a == "--output_file" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func newTestBackend(t *testing.T, runner backend.CommandRunner) (*Backend, string) {
	t.Helper()
	dir := t.TempDir()
	voice := filepath.Join(dir, "de_DE-thorsten-medium.onnx")
	require.NoError(t, os.WriteFile(voice, []byte("onnx"), 0o644))

	exec := backend.NewExecutorWithRunner("piper", time.Second, runner)
	return NewBackendWithExecutor(exec, t.TempDir()), voice
}

func TestBackend_Infer(t *testing.T) {
	runner := &fakeRunner{wav: []byte("RIFF....WAVEfmt ")}
	b, voice := newTestBackend(t, runner)

	resp, err := b.Infer(context.Background(), &backend.Request{
		ModelPath:  voice,
		Input:      strings.NewReader("Hallo Welt."),
		Parameters: map[string]any{"length_scale": 1.25, "speaker_id": 3},
	})
	require.NoError(t, err)

	data, err := io.ReadAll(resp.Output)
	require.NoError(t, err)
	assert.Equal(t, runner.wav, data)
	assert.Equal(t, "Hallo Welt.", runner.stdin)
	assert.Equal(t, backend.EnginePiper, resp.Metadata.Engine)
	assert.Equal(t, int64(len(runner.wav)), resp.Metadata.OutputSizeBytes)

	assert.Equal(t, []string{
		"--model", voice,
		"--output_file", outputFile(runner.args),
		"--length_scale", "1.25",
		"--speaker", "3",
	}, runner.args)

	_, err = os.Stat(outputFile(runner.args))
	assert.True(t, os.IsNotExist(err), "temp file must be removed")
}

func TestBackend_InferDefaultLengthScale(t *testing.T) {
	runner := &fakeRunner{wav: []byte("RIFF")}
	b, voice := newTestBackend(t, runner)

	_, err := b.Infer(context.Background(), &backend.Request{
		ModelPath:  voice,
		Input:      strings.NewReader("Hallo."),
		Parameters: map[string]any{"length_scale": 0.0},
	})
	require.NoError(t, err)
	assert.Contains(t, runner.args, "1")
	assert.NotContains(t, runner.args, "--speaker")
}

func TestBackend_InferMissingVoice(t *testing.T) {
	runner := &fakeRunner{}
	b, _ := newTestBackend(t, runner)

	_, err := b.Infer(context.Background(), &backend.Request{
		ModelPath: filepath.Join(t.TempDir(), "nope.onnx"),
		Input:     strings.NewReader("Hallo."),
	})
	assert.ErrorIs(t, err, backend.ErrModelNotFound)
	assert.Nil(t, runner.args, "piper must not be spawned")
}

func TestBackend_InferProcessFailure(t *testing.T) {
	runner := &fakeRunner{err: errors.New("exit status 1")}
	b, voice := newTestBackend(t, runner)

	_, err := b.Infer(context.Background(), &backend.Request{ModelPath: voice, Input: strings.NewReader("Hallo.")})
	require.ErrorIs(t, err, backend.ErrSynthesisFailed)
	assert.Contains(t, err.Error(), "Failed to load voice")

	_, statErr := os.Stat(outputFile(runner.args))
	assert.True(t, os.IsNotExist(statErr), "temp file must be removed on failure")
}

func TestBackend_InferEmptyOutput(t *testing.T) {
	runner := &fakeRunner{wav: nil}
	b, voice := newTestBackend(t, runner)

	_, err := b.Infer(context.Background(), &backend.Request{ModelPath: voice, Input: strings.NewReader("Hallo.")})
	assert.ErrorIs(t, err, backend.ErrSynthesisFailed)
}

func TestBackend_InferTimeout(t *testing.T) {
	dir := t.TempDir()
	voice := filepath.Join(dir, "v.onnx")
	require.NoError(t, os.WriteFile(voice, []byte("onnx"), 0o644))

	exec := backend.NewExecutorWithRunner("piper", 20*time.Millisecond, hangingRunner{})
	b := NewBackendWithExecutor(exec, t.TempDir())

	_, err := b.Infer(context.Background(), &backend.Request{ModelPath: voice, Input: strings.NewReader("Hallo.")})
	assert.ErrorIs(t, err, backend.ErrTimeout)
}

type hangingRunner struct{}

func (hangingRunner) Run(ctx context.Context, _ string, _ []string, _ io.Reader) ([]byte, []byte, error) {
	<-ctx.Done()
	return nil, nil, errors.New("signal: killed")
}

func TestBackend_Provider(t *testing.T) {
	b, _ := newTestBackend(t, &fakeRunner{})
	assert.Equal(t, backend.EnginePiper, b.Provider())
	assert.NoError(t, b.Close())
}
