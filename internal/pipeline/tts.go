package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/voxkit/avatar-bridge/internal/config"
	"github.com/voxkit/avatar-bridge/internal/observability"
)

// CartesiaClient implements TTSClient using Cartesia's TTS API. The output
// stage is the AudioSink passed to Synthesize; the client itself never
// decides where audio goes.
type CartesiaClient struct {
	config     *config.Config
	apiKey     string
	apiURL     string
	voiceID    string
	httpClient *http.Client
	logger     zerolog.Logger
	mu         sync.RWMutex
	isActive   bool
	stopped    bool
}

// CartesiaRequest represents the request payload for the Cartesia TTS API
type CartesiaRequest struct {
	Text         string `json:"text"`
	VoiceID      string `json:"voice_id"`
	ModelID      string `json:"model_id,omitempty"`
	OutputFormat string `json:"output_format,omitempty"`
	SampleRate   int    `json:"sample_rate,omitempty"`
}

// NewCartesiaClient creates a new Cartesia TTS client
func NewCartesiaClient(cfg *config.Config) *CartesiaClient {
	return &CartesiaClient{
		config:     cfg,
		apiKey:     cfg.CartesiaAPIKey,
		apiURL:     "https://api.cartesia.ai/v1/tts",
		voiceID:    cfg.CartesiaVoiceID,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     observability.GetLogger().With().Str("component", "tts").Logger(),
	}
}

// NewCartesiaClientWithURL is used by tests to point at a fake server.
func NewCartesiaClientWithURL(cfg *config.Config, url string) *CartesiaClient {
	c := NewCartesiaClient(cfg)
	c.apiURL = url
	return c
}

// Synthesize converts text to audio and feeds the PCM to the sink in
// fixed-size chunks. A Stop call between chunks interrupts the utterance.
func (c *CartesiaClient) Synthesize(ctx context.Context, text string, sink AudioSink) error {
	c.mu.Lock()
	if c.isActive {
		c.mu.Unlock()
		return fmt.Errorf("cartesia client is already synthesizing")
	}
	c.isActive = true
	c.stopped = false
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.isActive = false
		c.mu.Unlock()
	}()

	reqBody := CartesiaRequest{
		Text:         text,
		VoiceID:      c.voiceID,
		ModelID:      c.config.CartesiaModelID,
		OutputFormat: "pcm",
		SampleRate:   c.config.TTSSampleRate,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("cartesia API returned status %d", resp.StatusCode)
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read audio response: %w", err)
	}
	if len(audioData) == 0 {
		c.logger.Warn().Msg("Cartesia returned empty audio data")
		return nil
	}

	// Feed the sink in TTS-rate chunks so an interrupt lands between
	// chunks rather than after the full utterance.
	chunkSize := c.config.SpeakChunkBytes
	if chunkSize <= 0 {
		chunkSize = 4800
	}

	for offset := 0; offset < len(audioData); offset += chunkSize {
		if c.wasStopped() {
			c.logger.Info().Msg("Synthesis stopped mid-utterance, interrupting sink")
			return sink.Interrupt()
		}

		end := offset + chunkSize
		if end > len(audioData) {
			end = len(audioData)
		}
		if err := sink.WriteChunk(audioData[offset:end]); err != nil {
			return fmt.Errorf("sink write: %w", err)
		}
	}

	c.logger.Debug().
		Int("bytes", len(audioData)).
		Int("sample_rate", c.config.TTSSampleRate).
		Msg("Synthesized utterance delivered to sink")

	return sink.Flush()
}

func (c *CartesiaClient) wasStopped() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stopped
}

// Stop stops any ongoing synthesis
func (c *CartesiaClient) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isActive {
		return nil
	}
	c.stopped = true
	return nil
}

// IsActive returns whether the client is currently synthesizing
func (c *CartesiaClient) IsActive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isActive
}

// Close closes the client and cleans up resources
func (c *CartesiaClient) Close() error {
	return c.Stop()
}
