// Package llm provides the reasoning engine for the conversational
// orchestrator using langchaingo tool calling.
package llm

import (
	"context"
	"fmt"
	"log/slog"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/bedrock"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/raphaelgruber/passprotect-go/internal/config"
)

// NewModel creates the langchaingo model for the configured provider.
func NewModel(ctx context.Context, cfg config.Config) (llms.Model, error) {
	modelName := cfg.DefaultModel()

	switch cfg.LLMProvider {
	case config.ProviderOllama:
		model, err := ollama.New(
			ollama.WithModel(modelName),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}
		return model, nil

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		model, err := openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(modelName),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}
		return model, nil

	case config.ProviderAnthropic:
		if cfg.AnthropicKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		model, err := anthropic.New(
			anthropic.WithToken(cfg.AnthropicKey),
			anthropic.WithModel(modelName),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}
		return model, nil

	case config.ProviderBedrock:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		model, err := bedrock.New(
			bedrock.WithClient(bedrockruntime.NewFromConfig(awsCfg)),
			bedrock.WithModel(modelName),
		)
		if err != nil {
			return nil, fmt.Errorf("create bedrock model: %w", err)
		}
		return model, nil

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}
}

// NewEngineFromConfig builds the model for cfg and wraps it in an Engine.
func NewEngineFromConfig(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Engine, error) {
	model, err := NewModel(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewEngine(model, cfg.DefaultModel(), logger), nil
}
