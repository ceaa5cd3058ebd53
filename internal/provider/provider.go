// Package provider builds the chat model used by the task agent.
package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/MEKXH/taskgate/internal/config"
	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
)

type providerName string

const (
	providerOpenRouter providerName = "openrouter"
	providerClaude     providerName = "claude"
	providerOpenAI     providerName = "openai"
	providerDeepSeek   providerName = "deepseek"
	providerOllama     providerName = "ollama"
)

const (
	openRouterBaseURL = "https://openrouter.ai/api/v1"
	deepSeekBaseURL   = "https://api.deepseek.com/v1"
	ollamaBaseURL     = "http://localhost:11434"
)

// fallbackOrder is used when the model name carries no provider prefix.
var fallbackOrder = []providerName{
	providerOpenRouter,
	providerClaude,
	providerOpenAI,
	providerDeepSeek,
	providerOllama,
}

// NewChatModel creates a chat model based on configuration.
func NewChatModel(ctx context.Context, cfg *config.Config) (model.BaseChatModel, error) {
	name, pc, modelName, err := resolveProvider(cfg)
	if err != nil {
		return nil, err
	}
	a := cfg.Agent

	switch name {
	case providerClaude:
		c := &claude.Config{
			APIKey:      pc.APIKey,
			Model:       modelName,
			MaxTokens:   a.MaxTokens,
			Temperature: toFloat32Ptr(a.Temperature),
		}
		if pc.BaseURL != "" {
			c.BaseURL = &pc.BaseURL
		}
		return claude.NewChatModel(ctx, c)
	case providerOllama:
		baseURL := pc.BaseURL
		if baseURL == "" {
			baseURL = ollamaBaseURL
		}
		return ollama.NewChatModel(ctx, &ollama.ChatModelConfig{
			BaseURL: baseURL,
			Model:   modelName,
		})
	default:
		c := &openai.ChatModelConfig{
			Model:       modelName,
			APIKey:      pc.APIKey,
			BaseURL:     pc.BaseURL,
			Temperature: toFloat32Ptr(a.Temperature),
			MaxTokens:   toIntPtr(a.MaxTokens),
		}
		if c.BaseURL == "" {
			c.BaseURL = defaultBaseURL(name)
		}
		return openai.NewChatModel(ctx, c)
	}
}

// Configured reports whether any provider has credentials.
func Configured(cfg *config.Config) bool {
	_, _, _, err := resolveProvider(cfg)
	return err == nil
}

// resolveProvider picks the provider named by the model prefix
// ("claude/claude-sonnet-4-5") when it has credentials, else the first
// configured provider in fallback order. The returned model name has the
// prefix removed.
func resolveProvider(cfg *config.Config) (providerName, config.ProviderConfig, string, error) {
	modelName := strings.TrimSpace(cfg.Agent.Model)
	if prefixed, rest, ok := strings.Cut(modelName, "/"); ok {
		if name := providerFromModel(prefixed); name != "" {
			if pc, ok := providerConfig(cfg, name); ok {
				return name, pc, rest, nil
			}
		}
	}
	for _, name := range fallbackOrder {
		if pc, ok := providerConfig(cfg, name); ok {
			return name, pc, modelName, nil
		}
	}
	return "", config.ProviderConfig{}, "", fmt.Errorf("no provider configured: set api_key for at least one provider")
}

func providerFromModel(prefix string) providerName {
	switch strings.ToLower(strings.TrimSpace(prefix)) {
	case "openrouter":
		return providerOpenRouter
	case "claude", "anthropic":
		return providerClaude
	case "openai":
		return providerOpenAI
	case "deepseek":
		return providerDeepSeek
	case "ollama":
		return providerOllama
	default:
		return ""
	}
}

func providerConfig(cfg *config.Config, name providerName) (config.ProviderConfig, bool) {
	p := cfg.Providers
	switch name {
	case providerOpenRouter:
		return p.OpenRouter, p.OpenRouter.APIKey != ""
	case providerClaude:
		return p.Claude, p.Claude.APIKey != ""
	case providerOpenAI:
		return p.OpenAI, p.OpenAI.APIKey != ""
	case providerDeepSeek:
		return p.DeepSeek, p.DeepSeek.APIKey != ""
	case providerOllama:
		return p.Ollama, p.Ollama.BaseURL != ""
	default:
		return config.ProviderConfig{}, false
	}
}

func defaultBaseURL(name providerName) string {
	switch name {
	case providerOpenRouter:
		return openRouterBaseURL
	case providerDeepSeek:
		return deepSeekBaseURL
	default:
		return ""
	}
}

func toFloat32Ptr(f float64) *float32 {
	v := float32(f)
	return &v
}

func toIntPtr(i int) *int {
	return &i
}
