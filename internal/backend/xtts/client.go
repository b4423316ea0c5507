package xtts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ekisa-team/ttsd/internal/backend"
)

const (
	ttsToFileEndpoint   = "/tts_to_file"
	settingsEndpoint    = "/set_tts_settings"
	speakersEndpoint    = "/speakers_list"
	maxErrorBodyInBytes = 4096
)

// Client drives an xtts-api-server process that keeps the XTTS v2 model in
// memory. Calls are serialized because speed is a server-wide setting.
type Client struct {
	httpClient *http.Client
	baseURL    string
	name       string
	speed      float64
	mu         sync.Mutex
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL, name string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		name:       name,
	}
}

// Name returns the model name.
func (c *Client) Name() string {
	return c.name
}

type ttsToFileRequest struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
	FilePath   string `json:"file_name_or_path"`
}

// settingsRequest mirrors the server's settings model, which requires every field.
type settingsRequest struct {
	StreamChunkSize     int     `json:"stream_chunk_size"`
	Temperature         float64 `json:"temperature"`
	Speed               float64 `json:"speed"`
	LengthPenalty       float64 `json:"length_penalty"`
	RepetitionPenalty   float64 `json:"repetition_penalty"`
	TopP                float64 `json:"top_p"`
	TopK                int     `json:"top_k"`
	EnableTextSplitting bool    `json:"enable_text_splitting"`
}

func defaultSettings(speed float64) settingsRequest {
	return settingsRequest{
		StreamChunkSize:     100,
		Temperature:         0.75,
		Speed:               speed,
		LengthPenalty:       1.0,
		RepetitionPenalty:   5.0,
		TopP:                0.85,
		TopK:                50,
		EnableTextSplitting: true,
	}
}

// TTSToFile implements Model.
func (c *Client) TTSToFile(ctx context.Context, req FileRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if req.Speed != c.speed {
		if err := c.post(ctx, settingsEndpoint, defaultSettings(req.Speed)); err != nil {
			return err
		}
		c.speed = req.Speed
	}

	return c.post(ctx, ttsToFileEndpoint, ttsToFileRequest{
		Text:       req.Text,
		SpeakerWav: req.SpeakerWav,
		Language:   req.Language,
		FilePath:   req.OutputPath,
	})
}

// Speakers lists the speakers known to the server.
func (c *Client) Speakers(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+speakersEndpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("xtts: create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: xtts: GET %s: %w", backend.ErrEngineUnavailable, speakersEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(http.MethodGet, speakersEndpoint, resp)
	}

	var speakers []string
	if err := json.NewDecoder(resp.Body).Decode(&speakers); err != nil {
		return nil, fmt.Errorf("xtts: decode speakers: %w", err)
	}
	return speakers, nil
}

func (c *Client) post(ctx context.Context, endpoint string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("xtts: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("xtts: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("xtts: POST %s: %w", endpoint, ctx.Err())
		}
		return fmt.Errorf("%w: xtts: POST %s: %w", backend.ErrEngineUnavailable, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(http.MethodPost, endpoint, resp)
	}

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func statusError(method, endpoint string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyInBytes))
	return fmt.Errorf("%w: xtts: %s %s returned status %d: %s",
		backend.ErrSynthesisFailed, method, endpoint, resp.StatusCode, strings.TrimSpace(string(body)))
}

var _ Model = (*Client)(nil)
