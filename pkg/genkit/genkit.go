package genkit

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/genkit"
	"github.com/pkg/errors"
)

type ModelType string

// Model type constants
const (
	ModelTypeLLM       ModelType = "llm"
	ModelTypeEmbedding ModelType = "embedding"
)

// Provider constants
const (
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
)

// ModelConfig holds configuration for a single model (shared by all providers)
type ModelConfig struct {
	Name  string    `toml:"name"`  // Model name for registration
	Type  ModelType `toml:"type"`  // ModelTypeLLM or ModelTypeEmbedding
	Model string    `toml:"model"` // Actual model identifier
	Dim   int       `toml:"dim"`   // Embedding dimension (required for embedding models)
}

// Validate validates a model config
func (m *ModelConfig) Validate(index int) error {
	if m.Name == "" {
		return fmt.Errorf("models[%d].name is required", index)
	}

	if m.Type != ModelTypeLLM && m.Type != ModelTypeEmbedding {
		return fmt.Errorf("models[%d].type must be '%s' or '%s'", index, ModelTypeLLM, ModelTypeEmbedding)
	}

	if m.Model == "" {
		return fmt.Errorf("models[%d].model is required", index)
	}

	if m.Type == ModelTypeEmbedding && m.Dim <= 0 {
		return fmt.Errorf("models[%d].dim is required for embedding model", index)
	}

	return nil
}

// Config holds provider configuration. The provider is selected here and
// validated eagerly at construction so missing configuration fails at
// startup, not on first use.
type Config struct {
	Provider        string       `toml:"provider"` // openai or mock
	OpenAI          OpenAIConfig `toml:"openai"`
	GenerationModel string       `toml:"generation_model"`
	EmbeddingModel  string       `toml:"embedding_model"`
	PromptDir       string       `toml:"prompt_dir"`
}

// Validate checks provider configuration
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderOpenAI:
		if err := c.OpenAI.Validate(); err != nil {
			return fmt.Errorf("openai: %w", err)
		}
		if err := c.checkModels(c.OpenAI.Models); err != nil {
			return err
		}
	case ProviderMock:
		// mock registers its own default models when none are configured
	default:
		return fmt.Errorf("unknown provider: %q (must be %s or %s)", c.Provider, ProviderOpenAI, ProviderMock)
	}

	if c.GenerationModel == "" {
		return fmt.Errorf("generation_model is required")
	}
	if c.EmbeddingModel == "" {
		return fmt.Errorf("embedding_model is required")
	}

	return nil
}

// checkModels verifies the configured generation/embedding names resolve to
// registered models of the right type.
func (c *Config) checkModels(models []ModelConfig) error {
	var genOK, embedOK bool
	for _, m := range models {
		if m.Name == c.GenerationModel && m.Type == ModelTypeLLM {
			genOK = true
		}
		if m.Name == c.EmbeddingModel && m.Type == ModelTypeEmbedding {
			embedOK = true
		}
	}
	if !genOK {
		return fmt.Errorf("generation_model %q is not a configured llm model", c.GenerationModel)
	}
	if !embedOK {
		return fmt.Errorf("embedding_model %q is not a configured embedding model", c.EmbeddingModel)
	}
	return nil
}

// Client wraps a genkit instance with the configured generation and
// embedding models.
type Client struct {
	g            *genkit.Genkit
	modelName    string
	embedderName string
}

// New builds a Client for the configured provider. Configuration errors
// surface here, before the first request.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.WithMessage(err, "invalid config")
	}

	var plugins []api.Plugin
	switch cfg.Provider {
	case ProviderOpenAI:
		plugins = append(plugins, NewOpenAIPlugin(cfg.OpenAI))
	case ProviderMock:
		mockCfg := MockConfig{Models: []ModelConfig{
			{Name: cfg.GenerationModel, Type: ModelTypeLLM, Model: cfg.GenerationModel},
			{Name: cfg.EmbeddingModel, Type: ModelTypeEmbedding, Model: cfg.EmbeddingModel, Dim: 768},
		}}
		plugins = append(plugins, NewMockPlugin(mockCfg))
	}

	g := genkit.Init(ctx,
		genkit.WithPlugins(plugins...),
		genkit.WithPromptDir(cfg.PromptDir),
	)

	return &Client{
		g:            g,
		modelName:    fmt.Sprintf("%s/%s", cfg.Provider, cfg.GenerationModel),
		embedderName: fmt.Sprintf("%s/%s", cfg.Provider, cfg.EmbeddingModel),
	}, nil
}

// NewForTest builds a Client backed by a mock plugin and returns the plugin
// for configuring responses.
func NewForTest(ctx context.Context, cfg MockConfig) (*Client, *MockPlugin) {
	if len(cfg.Models) == 0 {
		cfg = DefaultMockConfig()
	}

	mockPlugin := NewMockPlugin(cfg)
	g := genkit.Init(ctx, genkit.WithPlugins(mockPlugin))

	var modelName, embedderName string
	for _, m := range cfg.Models {
		switch m.Type {
		case ModelTypeLLM:
			modelName = fmt.Sprintf("mock/%s", m.Name)
		case ModelTypeEmbedding:
			embedderName = fmt.Sprintf("mock/%s", m.Name)
		}
	}

	return &Client{g: g, modelName: modelName, embedderName: embedderName}, mockPlugin
}

// Genkit returns the underlying genkit instance.
func (c *Client) Genkit() *genkit.Genkit {
	return c.g
}

// Generate produces text from the configured generation model.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := genkit.Generate(ctx, c.g,
		ai.WithModelName(c.modelName),
		ai.WithPrompt(prompt),
	)
	if err != nil {
		return "", fmt.Errorf("generate failed: %w", err)
	}

	if resp == nil {
		return "", fmt.Errorf("empty response")
	}

	return resp.Text(), nil
}

// Embed produces the embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := genkit.Embed(ctx, c.g, ai.WithEmbedderName(c.embedderName), ai.WithTextDocs(text))
	if err != nil {
		return nil, err
	}

	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding response")
	}

	return resp.Embeddings[0].Embedding, nil
}
