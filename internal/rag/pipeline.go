package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/prompts"

	"document-qa/internal/config"
	"document-qa/internal/llmservice"
	"document-qa/internal/models"
)

// Pipeline answers questions from an indexed store.
type Pipeline struct {
	retriever *Retriever
	llm       llms.Model
	llmConfig *config.LLMConfig
	prompt    prompts.PromptTemplate
}

func NewPipeline(retriever *Retriever, llm llms.Model, llmConfig *config.LLMConfig) *Pipeline {
	if llmConfig == nil {
		llmConfig = &config.Default().LLM
	}
	return &Pipeline{
		retriever: retriever,
		llm:       llm,
		llmConfig: llmConfig,
		prompt:    prompts.NewPromptTemplate(models.AnswerPromptTemplate, []string{"context", "question", "history"}),
	}
}

// Answer retrieves context once, generates an answer from it and returns the
// same retrieved chunks as sources.
func (p *Pipeline) Answer(ctx context.Context, question string, history []models.Turn) (*models.PromptResponse, error) {
	chunks, err := p.retriever.Retrieve(ctx, question)
	if err != nil {
		return nil, err
	}

	prompt, err := p.BuildPrompt(question, chunks, history)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("prompt", prompt).Msg("Generated prompt")

	answer, err := llmservice.Generate(ctx, p.llm, p.llmConfig, prompt)
	if err != nil {
		return nil, err
	}

	sources := make([]models.SourceSnippet, len(chunks))
	for i, c := range chunks {
		sources[i] = c.Snippet()
	}
	return &models.PromptResponse{Query: question, Answer: answer, Sources: sources}, nil
}

func (p *Pipeline) BuildPrompt(question string, chunks []models.ScoredChunk, history []models.Turn) (string, error) {
	historyText, err := FormatHistory(history)
	if err != nil {
		return "", fmt.Errorf("format history: %w", err)
	}
	prompt, err := p.prompt.Format(map[string]any{
		"context":  BuildContext(chunks),
		"question": question,
		"history":  historyText,
	})
	if err != nil {
		return "", fmt.Errorf("format prompt: %w", err)
	}
	return prompt, nil
}

func BuildContext(chunks []models.ScoredChunk) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = c.Content
	}
	return strings.Join(parts, models.ContextSeparator)
}
