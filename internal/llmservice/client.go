package llmservice

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"document-qa/internal/config"
	"document-qa/internal/models"
)

var thinkRe = regexp.MustCompile(models.ThinkTag)

// NewModel builds the generative model selected by llmConfig.Provider,
// authenticated with the user supplied apiKey.
func NewModel(ctx context.Context, llmConfig *config.LLMConfig, apiKey string) (llms.Model, error) {
	log.Debug().
		Str("provider", llmConfig.Provider).
		Str("model", llmConfig.Model).
		Str("base_url", llmConfig.BaseURL).
		Msg("Creating generative model")

	switch strings.ToLower(llmConfig.Provider) {
	case "googleai", "gemini":
		llm, err := googleai.New(ctx,
			googleai.WithAPIKey(apiKey),
			googleai.WithDefaultModel(llmConfig.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("init googleai client: %w", err)
		}
		return llm, nil
	case "openai":
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(apiKey, "Bearer ")),
			openai.WithModel(llmConfig.Model),
		}
		if llmConfig.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(llmConfig.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("init openai client: %w", err)
		}
		return llm, nil
	case "ollama":
		llm, err := ollama.New(
			ollama.WithServerURL(llmConfig.BaseURL),
			ollama.WithModel(llmConfig.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("init ollama client: %w", err)
		}
		return llm, nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", llmConfig.Provider)
	}
}

// Generate sends a single prompt with the configured sampling temperature.
// A zero Timeout leaves the call bounded only by ctx.
func Generate(ctx context.Context, llm llms.Model, llmConfig *config.LLMConfig, prompt string) (string, error) {
	if llmConfig.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, llmConfig.Timeout)
		defer cancel()
	}
	answer, err := llms.GenerateFromSinglePrompt(ctx, llm, prompt, llms.WithTemperature(llmConfig.Temperature))
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}
	return StripThinking(answer), nil
}

// StripThinking removes <think> blocks emitted by reasoning models.
func StripThinking(answer string) string {
	if !strings.Contains(answer, "<think>") {
		return answer
	}
	return strings.TrimSpace(thinkRe.ReplaceAllString(answer, ""))
}
