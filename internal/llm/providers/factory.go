// Package providers turns the declarative provider chain in configuration
// into concrete llm.Provider implementations the enricher can fall back
// across in order.
package providers

import (
	"fmt"
	"net/http"

	"github.com/knowledgeforge/ingest/internal/config"
	"github.com/knowledgeforge/ingest/internal/llm"
	"github.com/knowledgeforge/ingest/internal/llm/anthropic"
	"github.com/knowledgeforge/ingest/internal/llm/google"
	openaillm "github.com/knowledgeforge/ingest/internal/llm/openai"
)

// Build constructs a single llm.Provider for one chain entry.
func Build(entry config.LLMProviderConfig, httpClient *http.Client) (llm.Provider, error) {
	switch entry.Name {
	case "", "openai":
		return openaillm.New(config.OpenAIConfig{
			APIKey:  entry.APIKey,
			Model:   entry.Model,
			BaseURL: entry.BaseURL,
		}, httpClient), nil
	case "anthropic":
		return anthropic.New(config.AnthropicConfig{
			APIKey:  entry.APIKey,
			Model:   entry.Model,
			BaseURL: entry.BaseURL,
		}, httpClient), nil
	case "google":
		return google.New(config.GoogleConfig{
			APIKey:  entry.APIKey,
			Model:   entry.Model,
			BaseURL: entry.BaseURL,
		}, httpClient)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", entry.Name)
	}
}

// BuildChain resolves the full provider chain in configured order, skipping
// entries without an API key so a partially-configured chain still works.
func BuildChain(entries []config.LLMProviderConfig, httpClient *http.Client) ([]llm.Provider, error) {
	chain := make([]llm.Provider, 0, len(entries))
	for _, e := range entries {
		if e.APIKey == "" {
			continue
		}
		p, err := Build(e, httpClient)
		if err != nil {
			return nil, fmt.Errorf("build provider %q: %w", e.Name, err)
		}
		chain = append(chain, p)
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("no llm providers configured")
	}
	return chain, nil
}
