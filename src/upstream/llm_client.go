package upstream

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/recall-ai/recall/src/config"
)

// LLMClient implements models.UpstreamClient: the paid model call the
// engine exists to avoid. The prewarmer uses it to materialize predicted
// entries before anyone asks.
type LLMClient struct {
	config *config.UpstreamConfig
	llm    llms.Model
}

func NewLLMClient(cfg *config.UpstreamConfig) (*LLMClient, error) {
	llm, err := openai.New(
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenAI client: %w", err)
	}

	return &LLMClient{
		config: cfg,
		llm:    llm,
	}, nil
}

func (c *LLMClient) Complete(ctx context.Context, prompt string) (string, error) {
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	response, err := llms.GenerateFromSinglePrompt(
		ctx,
		c.llm,
		prompt,
		llms.WithMaxTokens(c.config.MaxTokens),
	)
	if err != nil {
		return "", fmt.Errorf("upstream generation failed: %w", err)
	}

	return response, nil
}

// Model reports which upstream model answers are attributed to.
func (c *LLMClient) Model() string {
	return c.config.Model
}
