// Package provider abstracts the text-generation and embedding capability
// consumed by the pipeline. Callers treat an empty completion as "no answer"
// rather than an error worth crashing over.
package provider

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/sira-labs/sira/config"
	openai_provider "github.com/sira-labs/sira/provider/openai"
)

// Client represents different LLM providers
type Client string

const (
	OpenAI Client = "openai"
)

// Provider is the interface all LLM implementations must satisfy.
type Provider interface {
	// Complete runs a single-prompt chat completion. jsonMode constrains the
	// output to a JSON object on providers that support it.
	Complete(ctx context.Context, prompt string, jsonMode bool) (string, error)
	// Embed returns one fixed-dimension vector per input text.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// NewProvider creates an LLM client from configuration.
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	switch Client(cfg.Provider) {
	case OpenAI, "":
		if cfg.APIKey == "" {
			return nil, errors.New("llm.api_key not set")
		}
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		return openai_provider.NewClient(openai_provider.Options{
			APIKey:          cfg.APIKey,
			BaseURL:         cfg.BaseURL,
			CompletionModel: cfg.CompletionModel,
			EmbeddingModel:  cfg.EmbeddingModel,
			Temperature:     cfg.Temperature,
			MaxTokens:       cfg.MaxTokens,
			Timeout:         timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", cfg.Provider)
	}
}

const summarizeMaxWords = 120

// Summarize condenses raw document text. Provider errors degrade to a fixed
// placeholder so a single flaky call cannot sink a whole run.
func Summarize(ctx context.Context, p Provider, text string, logger *log.Logger) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	prompt := fmt.Sprintf(`Summarize the following content in under %d words.
Keep it factual, concise, structured, and avoid hallucinations.

TEXT:
%s`, summarizeMaxWords, text)

	out, err := p.Complete(ctx, prompt, false)
	if err != nil {
		if logger != nil {
			logger.Printf("summarize failed: %v", err)
		}
		return "Summary unavailable due to API error."
	}
	return strings.TrimSpace(out)
}

// EvaluateCredibility scores a source 0..1. Non-numeric or failed responses
// collapse to a neutral 0.5.
func EvaluateCredibility(ctx context.Context, p Provider, url, content string, logger *log.Logger) float64 {
	if len(content) > 500 {
		content = content[:500]
	}
	prompt := fmt.Sprintf(`Return ONLY a number between 0 and 1 representing credibility.

URL: %s

Content snippet:
%s`, url, content)

	out, err := p.Complete(ctx, prompt, false)
	if err != nil {
		if logger != nil {
			logger.Printf("credibility eval failed for %s: %v", url, err)
		}
		return 0.5
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(out), 64)
	if err != nil {
		return 0.5
	}
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}
