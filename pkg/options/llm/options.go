// Package llm provides LLM provider configuration options.
package llm

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/compliance-x/pkg/llm"
	"github.com/kart-io/compliance-x/pkg/llm/resilience"
	"github.com/kart-io/compliance-x/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options defines configuration options for the chat provider.
type Options struct {
	// Provider is the provider name (openai, ollama).
	Provider string `json:"provider" mapstructure:"provider"`

	// BaseURL is the API base URL.
	BaseURL string `json:"base-url" mapstructure:"base-url"`

	// APIKey authenticates against hosted providers.
	APIKey string `json:"-" mapstructure:"api-key"`

	// Model is the chat model name.
	Model string `json:"model" mapstructure:"model"`

	// Timeout bounds a single provider request.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// MaxRetries caps HTTP-level retries inside the provider client.
	MaxRetries int `json:"max-retries" mapstructure:"max-retries"`

	// Organization is the organization ID (optional, OpenAI only).
	Organization string `json:"organization" mapstructure:"organization"`
}

// NewOptions creates a new Options object with default values.
func NewOptions() *Options {
	return &Options{
		Provider:   "openai",
		BaseURL:    "https://api.openai.com/v1",
		Model:      "gpt-4o-mini",
		Timeout:    120 * time.Second,
		MaxRetries: 3,
	}
}

// ToConfigMap converts the options into the map consumed by provider
// factories.
func (o *Options) ToConfigMap() map[string]any {
	return map[string]any{
		"base_url":     o.BaseURL,
		"api_key":      o.APIKey,
		"chat_model":   o.Model,
		"timeout":      o.Timeout,
		"max_retries":  o.MaxRetries,
		"organization": o.Organization,
	}
}

// AddFlags adds flags for LLM provider options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...)
	fs.StringVar(&o.Provider, p+"llm.provider", o.Provider, "LLM provider (openai, ollama).")
	fs.StringVar(&o.BaseURL, p+"llm.base-url", o.BaseURL, "LLM API base URL.")
	fs.StringVar(&o.APIKey, p+"llm.api-key", o.APIKey, "LLM API key (DEPRECATED: use LLM_API_KEY env var instead).")
	fs.StringVar(&o.Model, p+"llm.model", o.Model, "LLM chat model name.")
	fs.DurationVar(&o.Timeout, p+"llm.timeout", o.Timeout, "LLM request timeout.")
	fs.IntVar(&o.MaxRetries, p+"llm.max-retries", o.MaxRetries, "LLM maximum number of HTTP retries.")
	fs.StringVar(&o.Organization, p+"llm.organization", o.Organization, "LLM organization ID (optional).")
}

// Validate validates the LLM provider options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	if o.APIKey == "" {
		o.APIKey = os.Getenv("LLM_API_KEY")
	}

	var errs []error
	if o.Provider == "" {
		errs = append(errs, fmt.Errorf("llm.provider is required"))
	}
	if o.BaseURL == "" {
		errs = append(errs, fmt.Errorf("llm.base-url is required"))
	}
	if o.Model == "" {
		errs = append(errs, fmt.Errorf("llm.model is required"))
	}
	if o.Provider == "openai" && o.APIKey == "" {
		errs = append(errs, fmt.Errorf("llm.api-key is required for the openai provider"))
	}
	if o.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("llm.timeout must be positive"))
	}
	return errs
}

// Complete completes the LLM provider options with defaults.
func (o *Options) Complete() error {
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	return nil
}

// NewProvider builds the configured chat provider wrapped with circuit
// breaking. The wrapper runs a single attempt per call: the analysis
// pipeline owns the retry policy, and stacking a second retry layer here
// would multiply the attempt count.
func (o *Options) NewProvider() (llm.ChatProvider, error) {
	provider, err := llm.NewChatProvider(o.Provider, o.ToConfigMap())
	if err != nil {
		return nil, fmt.Errorf("failed to create chat provider: %w", err)
	}
	retry := &resilience.RetryConfig{
		MaxAttempts:     1,
		RetryableErrors: resilience.IsRetryableError,
	}
	return resilience.NewResilientChatProvider(provider, retry, nil), nil
}
