package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
)

// Provider constants for LLM provider selection.
const (
	ProviderOpenAI    = "openai"
	ProviderAzure     = "azure"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
)

// Client returns one structured completion per call. Implementations are safe
// for concurrent use.
type Client interface {
	Chat(ctx context.Context, req Request, result any) (*Response, error)
	Model() string
}

type Request struct {
	SystemPrompt string
	UserPrompt   string
	SchemaName   string
	Schema       any
	MaxTokens    int
	Temperature  *float64 // nil = model default, explicit 0 = deterministic
}

type Response struct {
	PromptTokens     int
	CompletionTokens int
}

// Config holds LLM client configuration.
type Config struct {
	Provider   string        // "openai", "azure", "anthropic" or "ollama"
	APIKey     string        // Required for hosted providers
	BaseURL    string        // Optional: custom API endpoint (required for azure)
	APIVersion string        // Azure API version
	Model      string        // Model name (e.g., "gpt-4o-mini", "qwen2.5:7b")
	Timeout    time.Duration // Per-call bound; zero leaves the caller's deadline alone
}

// New creates a Client for cfg.Provider. Defaults to OpenAI if no provider is specified.
func New(cfg Config) (Client, error) {
	provider := cfg.Provider
	if provider == "" {
		provider = ProviderOpenAI
	}

	var (
		c   Client
		err error
	)
	switch provider {
	case ProviderOpenAI, ProviderAzure:
		c, err = newOpenAIClient(cfg, provider == ProviderAzure)
	case ProviderAnthropic:
		c, err = newAnthropicClient(cfg)
	case ProviderOllama:
		c, err = newOllamaClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Timeout > 0 {
		c = &timeoutClient{next: c, timeout: cfg.Timeout}
	}
	return c, nil
}

type timeoutClient struct {
	next    Client
	timeout time.Duration
}

func (c *timeoutClient) Chat(ctx context.Context, req Request, result any) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.next.Chat(ctx, req, result)
}

func (c *timeoutClient) Model() string {
	return c.next.Model()
}

func GenerateSchema[T any]() any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

func Temp(t float64) *float64 {
	return &t
}

// decodeJSON unmarshals a model reply into result. Providers without native
// structured output sometimes wrap the object in a markdown fence or prose,
// so the outermost {...} is used.
func decodeJSON(content string, result any) error {
	content = strings.TrimSpace(content)
	if start, end := strings.Index(content, "{"), strings.LastIndex(content, "}"); start >= 0 && end > start {
		content = content[start : end+1]
	}
	if err := json.Unmarshal([]byte(content), result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// schemaInstruction renders the schema into the system prompt for providers
// that cannot enforce it server-side.
func schemaInstruction(req Request) (string, error) {
	if req.Schema == nil {
		return req.SystemPrompt, nil
	}
	schema, err := json.Marshal(req.Schema)
	if err != nil {
		return "", fmt.Errorf("marshal schema: %w", err)
	}
	var b strings.Builder
	b.WriteString(req.SystemPrompt)
	b.WriteString("\n\nRespond with a single JSON object only, no prose, matching this JSON schema:\n")
	b.Write(schema)
	return b.String(), nil
}
