package avatar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/voxkit/avatar-bridge/internal/config"
	"github.com/voxkit/avatar-bridge/internal/observability"
	"github.com/voxkit/avatar-bridge/internal/resilience"
)

// Client calls the avatar platform's HTTP session API.
type Client struct {
	baseURL    string
	apiKey     string
	avatarID   string
	quality    string
	httpClient *http.Client
	retryCfg   *resilience.RetryConfig
	logger     zerolog.Logger
}

// NewClient creates a new avatar platform API client.
func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL:  cfg.AvatarBaseURL,
		apiKey:   cfg.AvatarAPIKey,
		avatarID: cfg.AvatarID,
		quality:  cfg.AvatarQuality,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		retryCfg: &resilience.RetryConfig{
			MaxAttempts:       cfg.RetryMaxAttempts,
			InitialBackoff:    time.Duration(cfg.RetryInitialBackoff) * time.Millisecond,
			MaxBackoff:        5 * time.Second,
			BackoffMultiplier: 2.0,
			Jitter:            true,
		},
		logger: observability.GetLogger().With().Str("component", "avatar_client").Logger(),
	}
}

// CreateSession creates a new streaming session. The platform allocates the
// room and returns its URL plus an access token for the avatar's video feed.
func (c *Client) CreateSession(ctx context.Context) (*Session, error) {
	req := newSessionRequest{
		AvatarID: c.avatarID,
		Quality:  c.quality,
		Version:  "v2",
	}

	var session *Session
	err := resilience.Retry(func() error {
		resp, err := c.post(ctx, "/v1/streaming.new", req)
		if err != nil {
			return err
		}
		if resp.Data == nil {
			return fmt.Errorf("avatar API returned no session data")
		}
		session = resp.Data
		return nil
	}, c.retryCfg, resilience.IsRetryableNetworkError)
	if err != nil {
		return nil, fmt.Errorf("create avatar session: %w", err)
	}

	c.logger.Info().
		Str("session_id", session.SessionID).
		Str("room_url", session.RoomURL).
		Msg("Avatar session created")
	return session, nil
}

// StartSession signals the platform to begin publishing the avatar stream.
func (c *Client) StartSession(ctx context.Context, sessionID string) error {
	err := resilience.Retry(func() error {
		_, err := c.post(ctx, "/v1/streaming.start", sessionRequest{SessionID: sessionID})
		return err
	}, c.retryCfg, resilience.IsRetryableNetworkError)
	if err != nil {
		return fmt.Errorf("start avatar session %s: %w", sessionID, err)
	}

	c.logger.Info().Str("session_id", sessionID).Msg("Avatar session started")
	return nil
}

// StopSession tears the session down. Safe to call on an already-closed
// session; the platform answers with a no-op.
func (c *Client) StopSession(ctx context.Context, sessionID string) error {
	_, err := c.post(ctx, "/v1/streaming.stop", sessionRequest{SessionID: sessionID})
	if err != nil {
		return fmt.Errorf("stop avatar session %s: %w", sessionID, err)
	}

	c.logger.Info().Str("session_id", sessionID).Msg("Avatar session stopped")
	return nil
}

// KeepAlive refreshes the session idle timer. The platform closes sessions
// that receive neither audio nor keepalives for its idle window.
func (c *Client) KeepAlive(ctx context.Context, sessionID string) error {
	_, err := c.post(ctx, "/v1/streaming.keep_alive", sessionRequest{SessionID: sessionID})
	if err != nil {
		return fmt.Errorf("keep alive for session %s: %w", sessionID, err)
	}
	return nil
}

// post sends one JSON request and decodes the platform envelope.
func (c *Client) post(ctx context.Context, path string, payload interface{}) (*apiResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("avatar API %s returned status %d: %s", path, resp.StatusCode, truncate(string(data), 200))
	}

	var apiResp apiResponse
	if err := json.Unmarshal(data, &apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if apiResp.Code != 0 && apiResp.Code != 100 {
		// 100 is the platform's success code; 0 means the field was absent
		return nil, fmt.Errorf("avatar API %s returned code %d: %s", path, apiResp.Code, apiResp.Message)
	}

	return &apiResp, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
