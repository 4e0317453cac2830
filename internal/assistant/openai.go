package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"
)

const openAISystemPrompt = "You are an autonomous coding assistant running inside a loop. Follow the instructions in the user message exactly."

// DefaultMaxToolRounds bounds tool-call round trips within one turn.
const DefaultMaxToolRounds = 16

// OpenAIConfig configures the API-backed runner.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string

	// Tools, when set, are offered to the model and answered locally.
	Tools *ToolRegistry

	// MaxToolRounds defaults to DefaultMaxToolRounds.
	MaxToolRounds int
}

// OpenAIRunner sends each prompt as a chat completion. It can read loop
// state through Tools but cannot edit the repository; it suits planning or
// dry runs rather than code edits.
type OpenAIRunner struct {
	client    *openai.Client
	model     string
	tools     *ToolRegistry
	maxRounds int
}

// NewOpenAIRunner creates a runner from cfg.
func NewOpenAIRunner(cfg OpenAIConfig) (*OpenAIRunner, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("openai provider requires an API key (set OPENAI_API_KEY)")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	maxRounds := cfg.MaxToolRounds
	if maxRounds <= 0 {
		maxRounds = DefaultMaxToolRounds
	}
	return &OpenAIRunner{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     cfg.Model,
		tools:     cfg.Tools,
		maxRounds: maxRounds,
	}, nil
}

// RunTurn implements Runner. Tool calls are answered and sent back until the
// model replies with text or the round limit is hit.
func (o *OpenAIRunner) RunTurn(ctx context.Context, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: openAISystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if o.tools != nil {
		req.Tools = o.tools.Definitions()
	}

	for round := 0; ; round++ {
		resp, err := o.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return "", fmt.Errorf("openai chat completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", ErrEmptyResponse
		}
		msg := resp.Choices[0].Message

		log.Debug().
			Str("model", resp.Model).
			Str("finish_reason", string(resp.Choices[0].FinishReason)).
			Int("tool_calls", len(msg.ToolCalls)).
			Int("total_tokens", resp.Usage.TotalTokens).
			Msg("openai response")

		if len(msg.ToolCalls) == 0 || o.tools == nil {
			if strings.TrimSpace(msg.Content) == "" {
				return "", ErrEmptyResponse
			}
			return msg.Content, nil
		}
		if round >= o.maxRounds {
			return "", fmt.Errorf("openai: tool calls exceeded %d rounds", o.maxRounds)
		}

		req.Messages = append(req.Messages, msg)
		for _, call := range msg.ToolCalls {
			result := o.tools.Execute(ctx, call.Function.Name, call.Function.Arguments)
			log.Debug().Str("tool", call.Function.Name).Str("call_id", call.ID).Int("result_bytes", len(result)).Msg("tool call answered")
			req.Messages = append(req.Messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    result,
				Name:       call.Function.Name,
				ToolCallID: call.ID,
			})
		}
	}
}
