package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"
)

// Providers accepted by NewModel.
const (
	ProviderOpenAI    = "openai"
	ProviderAzure     = "azure"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
)

// DefaultMaxTokens bounds a single completion.
const DefaultMaxTokens = 4096

// Config selects and configures the generative model.
type Config struct {
	Provider   string
	APIKey     string
	Endpoint   string
	APIVersion string
	Model      string
	MaxTokens  int
}

// Model wraps a langchaingo model for deterministic, prompt-driven generation.
type Model struct {
	llm       llms.Model
	modelName string
	maxTokens int
	logger    *zap.Logger
}

// NewModel creates an LLM model based on configuration.
func NewModel(cfg Config, logger *zap.Logger) (*Model, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var model llms.Model
	var err error

	switch strings.ToLower(cfg.Provider) {
	case ProviderOllama:
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.Endpoint != "" {
			opts = append(opts, ollama.WithServerURL(cfg.Endpoint))
		}
		model, err = ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case ProviderOpenAI, "":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		opts := []openai.Option{
			openai.WithToken(cfg.APIKey),
			openai.WithModel(cfg.Model),
		}
		if cfg.Endpoint != "" {
			opts = append(opts, openai.WithBaseURL(cfg.Endpoint))
		}
		model, err = openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case ProviderAzure:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("Azure OpenAI API key required")
		}
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("Azure OpenAI endpoint required")
		}
		model, err = openai.New(
			openai.WithAPIType(openai.APITypeAzure),
			openai.WithToken(cfg.APIKey),
			openai.WithBaseURL(cfg.Endpoint),
			openai.WithAPIVersion(cfg.APIVersion),
			openai.WithModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("create azure openai model: %w", err)
		}

	case ProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		opts := []anthropic.Option{
			anthropic.WithToken(cfg.APIKey),
			anthropic.WithModel(cfg.Model),
		}
		if cfg.Endpoint != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.Endpoint))
		}
		model, err = anthropic.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Model{
		llm:       model,
		modelName: cfg.Model,
		maxTokens: maxTokens,
		logger:    logger,
	}, nil
}

// Complete runs one system+user exchange at temperature 0. With jsonMode the provider is asked
// to return a single JSON object; providers without such a mode ignore it.
func (m *Model) Complete(ctx context.Context, systemPrompt, userText string, jsonMode bool) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(schema.ChatMessageTypeHuman, userText),
	}
	opts := []llms.CallOption{
		llms.WithTemperature(0),
		llms.WithMaxTokens(m.maxTokens),
	}
	if jsonMode {
		opts = append(opts, llms.WithJSONMode())
	}

	start := time.Now()
	response, err := m.llm.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return "", fmt.Errorf("generate with system: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no response choices")
	}
	m.logger.Debug("completion received",
		zap.String("model", m.modelName),
		zap.Bool("json_mode", jsonMode),
		zap.Int("chars", len(response.Choices[0].Content)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return response.Choices[0].Content, nil
}

// Model returns the LLM model name.
func (m *Model) Model() string {
	return m.modelName
}
