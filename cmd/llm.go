package cmd

import (
	"os"

	"github.com/spf13/viper"

	"github.com/joescharf/trackflow/internal/api"
	"github.com/joescharf/trackflow/internal/llm"
)

// newLLMClient creates an LLM client from config/env, or returns nil if no API key is configured.
func newLLMClient() *llm.Client {
	apiKey := viper.GetString("anthropic.api_key")
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil
	}
	return llm.NewClient(apiKey, llmModel())
}

func llmModel() string {
	if m := viper.GetString("anthropic.model"); m != "" {
		return m
	}
	return llm.DefaultModel
}

// newTriager returns the API triage backend, or a nil interface when no key
// is configured so the server reports triage as unavailable.
func newTriager() api.Triager {
	if c := newLLMClient(); c != nil {
		return c
	}
	return nil
}
