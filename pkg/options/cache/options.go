// Package cache provides result cache configuration options.
package cache

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/compliance-x/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options defines configuration options for the analysis result cache.
// The Redis connection itself is configured separately.
type Options struct {
	// Enabled toggles result caching.
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// TTL is how long a cached result stays valid.
	TTL time.Duration `json:"ttl" mapstructure:"ttl"`

	// KeyPrefix namespaces cache keys in Redis.
	KeyPrefix string `json:"key-prefix" mapstructure:"key-prefix"`
}

// NewOptions creates a new Options object with default values.
func NewOptions() *Options {
	return &Options{
		Enabled:   true,
		TTL:       24 * time.Hour,
		KeyPrefix: "compliance:result:",
	}
}

// AddFlags adds flags for cache options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...)
	fs.BoolVar(&o.Enabled, p+"cache.enabled", o.Enabled, "Enable result caching.")
	fs.DurationVar(&o.TTL, p+"cache.ttl", o.TTL, "Result cache TTL.")
	fs.StringVar(&o.KeyPrefix, p+"cache.key-prefix", o.KeyPrefix, "Result cache key prefix.")
}

// Validate validates the cache options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Enabled && o.TTL <= 0 {
		errs = append(errs, fmt.Errorf("cache.ttl must be positive when caching is enabled"))
	}
	return errs
}

// Complete completes the cache options with defaults.
func (o *Options) Complete() error {
	if o.KeyPrefix == "" {
		o.KeyPrefix = "compliance:result:"
	}
	return nil
}
