package pipeline

import (
	"context"
	"fmt"
	"sync"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog"

	"github.com/voxkit/avatar-bridge/internal/config"
	"github.com/voxkit/avatar-bridge/internal/observability"
)

// historyLimit bounds the turns kept per conversation; older turns are
// dropped pairwise so the prompt stays small enough for realtime latency.
const historyLimit = 20

// OpenAIResponder implements Responder using OpenAI chat completions.
type OpenAIResponder struct {
	client oai.Client
	model  string
	system string
	logger zerolog.Logger

	mu      sync.Mutex
	history []oai.ChatCompletionMessageParamUnion
}

// NewOpenAIResponder creates a streaming chat responder.
func NewOpenAIResponder(cfg *config.Config) (*OpenAIResponder, error) {
	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("openai: API key must not be empty")
	}

	return &OpenAIResponder{
		client: oai.NewClient(option.WithAPIKey(cfg.OpenAIAPIKey)),
		model:  cfg.OpenAIModel,
		system: cfg.SystemPrompt,
		logger: observability.GetLogger().With().Str("component", "llm").Logger(),
	}, nil
}

// StreamReply implements Responder. The channel is closed once the model
// finishes; the full assistant turn is appended to history afterwards.
func (r *OpenAIResponder) StreamReply(ctx context.Context, userText string) (<-chan string, error) {
	r.mu.Lock()
	r.history = append(r.history, oai.UserMessage(userText))
	r.trimHistoryLocked()

	messages := make([]oai.ChatCompletionMessageParamUnion, 0, len(r.history)+1)
	if r.system != "" {
		messages = append(messages, oai.SystemMessage(r.system))
	}
	messages = append(messages, r.history...)
	r.mu.Unlock()

	stream := r.client.Chat.Completions.NewStreaming(ctx, oai.ChatCompletionNewParams{
		Model:    oai.ChatModel(r.model),
		Messages: messages,
	})
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("openai: start stream: %w", err)
	}

	ch := make(chan string, 32)
	go func() {
		defer close(ch)
		defer stream.Close()

		var assistantText string
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			assistantText += delta

			select {
			case ch <- delta:
			case <-ctx.Done():
				return
			}
		}

		if err := stream.Err(); err != nil {
			r.logger.Error().Err(err).Msg("LLM stream error")
			return
		}

		if assistantText != "" {
			r.mu.Lock()
			r.history = append(r.history, oai.AssistantMessage(assistantText))
			r.trimHistoryLocked()
			r.mu.Unlock()
		}
	}()

	return ch, nil
}

// ResetHistory clears the conversation.
func (r *OpenAIResponder) ResetHistory() {
	r.mu.Lock()
	r.history = nil
	r.mu.Unlock()
}

// HistoryLen returns the number of retained turns.
func (r *OpenAIResponder) HistoryLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.history)
}

func (r *OpenAIResponder) trimHistoryLocked() {
	if len(r.history) > historyLimit {
		r.history = r.history[len(r.history)-historyLimit:]
	}
}
