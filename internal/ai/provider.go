package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xxxsen/aitutor/internal/rag"
)

var ErrUnavailable = errors.New("ai provider unavailable")

// Prompt is one round trip to a chat model.
type Prompt struct {
	System string
	User   string
	// JSON asks the provider for a JSON object response where supported.
	JSON bool
}

type IAIProvider interface {
	Name() string
	Generate(ctx context.Context, model string, prompt Prompt) (string, error)
}

type IEmbedProvider interface {
	Name() string
	Embed(ctx context.Context, model string, text string, taskType string, dimension int) ([]float32, error)
}

type IGenerator interface {
	Generate(ctx context.Context, prompt Prompt) (string, error)
}

// IEmbedder is a rag.Embedder that also names the model behind it.
type IEmbedder interface {
	rag.Embedder
	ModelName() string
}

type generator struct {
	provider IAIProvider
	model    string
}

func NewGenerator(p IAIProvider, model string) IGenerator {
	return &generator{provider: p, model: model}
}

func (g *generator) Generate(ctx context.Context, prompt Prompt) (string, error) {
	return g.provider.Generate(ctx, g.model, prompt)
}

type Embedder struct {
	provider  IEmbedProvider
	model     string
	dimension int
	taskType  string
}

// NewEmbedder binds a provider to one model and output dimension. Blank text
// is answered locally with a zero vector.
func NewEmbedder(p IEmbedProvider, model string, dimension int, taskType string) *Embedder {
	return &Embedder{provider: p, model: model, dimension: dimension, taskType: taskType}
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return make([]float32, e.dimension), nil
	}
	vec, err := e.provider.Embed(ctx, e.model, text, e.taskType, e.dimension)
	if err != nil {
		return nil, err
	}
	if len(vec) != e.dimension {
		return nil, fmt.Errorf("%w: %s/%s returned %d dimensions, configured %d", rag.ErrConfig, e.provider.Name(), e.model, len(vec), e.dimension)
	}
	return vec, nil
}

func (e *Embedder) Dimension() int {
	return e.dimension
}

func (e *Embedder) ModelName() string {
	name := fmt.Sprintf("%s/%s@%d", e.provider.Name(), e.model, e.dimension)
	if e.taskType != "" {
		name += "#" + e.taskType
	}
	return name
}

type ProviderFactory func(args interface{}) (IAIProvider, error)

type EmbedProviderFactory func(args interface{}) (IEmbedProvider, error)

var (
	registryMu    sync.RWMutex
	registry      = map[string]ProviderFactory{}
	embedRegistry = map[string]EmbedProviderFactory{}
)

func Register(name string, factory ProviderFactory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	registry[key] = factory
	registryMu.Unlock()
}

func RegisterEmbed(name string, factory EmbedProviderFactory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	embedRegistry[key] = factory
	registryMu.Unlock()
}

func NewProvider(name string, args interface{}) (IAIProvider, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, fmt.Errorf("ai.provider is required")
	}
	registryMu.RLock()
	factory := registry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("unsupported ai provider: %s", name)
	}
	return factory(args)
}

func NewEmbedProvider(name string, args interface{}) (IEmbedProvider, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, fmt.Errorf("embed.provider is required")
	}
	registryMu.RLock()
	factory := embedRegistry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("unsupported embed provider: %s", name)
	}
	return factory(args)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode ai provider config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode ai provider config: %w", err)
	}
	return nil
}
