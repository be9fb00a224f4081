// Package compliance assembles the compliance analysis service: configuration,
// dependency wiring, routing and lifecycle.
package compliance

import (
	"fmt"
	"time"

	"github.com/kart-io/compliance-x/internal/compliance/biz"
	"github.com/kart-io/compliance-x/pkg/infra/app"
	httpserver "github.com/kart-io/compliance-x/pkg/infra/server/http"
	cacheopts "github.com/kart-io/compliance-x/pkg/options/cache"
	dbopts "github.com/kart-io/compliance-x/pkg/options/database"
	llmopts "github.com/kart-io/compliance-x/pkg/options/llm"
	logopts "github.com/kart-io/compliance-x/pkg/options/logger"
	redisopts "github.com/kart-io/compliance-x/pkg/options/redis"
)

var _ app.CliOptions = (*Options)(nil)

// AnalyzerOptions exposes the pipeline tuning knobs.
type AnalyzerOptions struct {
	BatchSize       int           `json:"batch-size" mapstructure:"batch-size"`
	BatchTimeout    time.Duration `json:"batch-timeout" mapstructure:"batch-timeout"`
	ClassifyTimeout time.Duration `json:"classify-timeout" mapstructure:"classify-timeout"`
	AnalyzeTimeout  time.Duration `json:"analyze-timeout" mapstructure:"analyze-timeout"`
	MaxAttempts     int           `json:"max-attempts" mapstructure:"max-attempts"`
	RetryBackoff    time.Duration `json:"retry-backoff" mapstructure:"retry-backoff"`
	MaxDocumentLen  int           `json:"max-document-len" mapstructure:"max-document-len"`
}

// JanitorOptions exposes the housekeeping knobs.
type JanitorOptions struct {
	Interval   time.Duration `json:"interval" mapstructure:"interval"`
	StaleAfter time.Duration `json:"stale-after" mapstructure:"stale-after"`
}

// Options holds the full service configuration.
type Options struct {
	Server   *httpserver.Options `json:"server" mapstructure:"server"`
	Log      *logopts.Options    `json:"log" mapstructure:"log"`
	Database *dbopts.Options     `json:"db" mapstructure:"db"`
	Redis    *redisopts.Options  `json:"redis" mapstructure:"redis"`
	LLM      *llmopts.Options    `json:"llm" mapstructure:"llm"`
	Cache    *cacheopts.Options  `json:"cache" mapstructure:"cache"`
	Analyzer *AnalyzerOptions    `json:"analyzer" mapstructure:"analyzer"`
	Janitor  *JanitorOptions     `json:"janitor" mapstructure:"janitor"`
}

// NewOptions creates Options with defaults.
func NewOptions() *Options {
	analyzer := biz.DefaultAnalyzerConfig()
	janitor := biz.DefaultJanitorConfig()

	return &Options{
		Server:   httpserver.NewOptions(),
		Log:      logopts.NewOptions(),
		Database: dbopts.NewOptions(),
		Redis:    redisopts.NewOptions(),
		LLM:      llmopts.NewOptions(),
		Cache:    cacheopts.NewOptions(),
		Analyzer: &AnalyzerOptions{
			BatchSize:       analyzer.BatchSize,
			BatchTimeout:    analyzer.BatchTimeout,
			ClassifyTimeout: analyzer.ClassifyTimeout,
			AnalyzeTimeout:  analyzer.AnalyzeTimeout,
			MaxAttempts:     analyzer.MaxAttempts,
			RetryBackoff:    analyzer.RetryBackoff,
			MaxDocumentLen:  analyzer.MaxDocumentLen,
		},
		Janitor: &JanitorOptions{
			Interval:   janitor.Interval,
			StaleAfter: janitor.StaleAfter,
		},
	}
}

// Flags returns the flag sets grouped by concern.
func (o *Options) Flags() app.NamedFlagSets {
	var fss app.NamedFlagSets

	o.Server.AddFlags(fss.FlagSet("server"))
	o.Log.AddFlags(fss.FlagSet("log"))
	o.Database.AddFlags(fss.FlagSet("database"))
	o.Redis.AddFlags(fss.FlagSet("redis"))
	o.LLM.AddFlags(fss.FlagSet("llm"))
	o.Cache.AddFlags(fss.FlagSet("cache"))

	fs := fss.FlagSet("analyzer")
	fs.IntVar(&o.Analyzer.BatchSize, "analyzer.batch-size", o.Analyzer.BatchSize, "Paragraphs scheduled per batch.")
	fs.DurationVar(&o.Analyzer.BatchTimeout, "analyzer.batch-timeout", o.Analyzer.BatchTimeout, "Deadline for one batch round.")
	fs.DurationVar(&o.Analyzer.ClassifyTimeout, "analyzer.classify-timeout", o.Analyzer.ClassifyTimeout, "Deadline for one classification call.")
	fs.DurationVar(&o.Analyzer.AnalyzeTimeout, "analyzer.analyze-timeout", o.Analyzer.AnalyzeTimeout, "Deadline for one deep analysis call.")
	fs.IntVar(&o.Analyzer.MaxAttempts, "analyzer.max-attempts", o.Analyzer.MaxAttempts, "Total attempts per model call.")
	fs.DurationVar(&o.Analyzer.RetryBackoff, "analyzer.retry-backoff", o.Analyzer.RetryBackoff, "Linear backoff step between attempts.")
	fs.IntVar(&o.Analyzer.MaxDocumentLen, "analyzer.max-document-len", o.Analyzer.MaxDocumentLen, "Maximum accepted document length in bytes.")

	jfs := fss.FlagSet("janitor")
	jfs.DurationVar(&o.Janitor.Interval, "janitor.interval", o.Janitor.Interval, "Housekeeping sweep interval.")
	jfs.DurationVar(&o.Janitor.StaleAfter, "janitor.stale-after", o.Janitor.StaleAfter, "Age before a processing session is reconciled to failed.")

	return fss
}

// Complete fills in derived defaults.
func (o *Options) Complete() error {
	if err := o.Database.Complete(); err != nil {
		return err
	}
	if err := o.Redis.Complete(); err != nil {
		return err
	}
	if err := o.LLM.Complete(); err != nil {
		return err
	}
	if err := o.Cache.Complete(); err != nil {
		return err
	}
	return o.Log.Complete()
}

// Validate checks the final option values.
func (o *Options) Validate() error {
	var errs []error
	errs = append(errs, o.Server.Validate()...)
	errs = append(errs, o.Database.Validate()...)
	errs = append(errs, o.Redis.Validate()...)
	errs = append(errs, o.LLM.Validate()...)
	errs = append(errs, o.Cache.Validate()...)
	if err := o.Log.Validate(); err != nil {
		errs = append(errs, err)
	}

	if o.Analyzer.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("analyzer.batch-size must be positive"))
	}
	if o.Analyzer.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("analyzer.max-attempts must be positive"))
	}
	if o.Janitor.StaleAfter <= o.Analyzer.BatchTimeout {
		errs = append(errs, fmt.Errorf("janitor.stale-after must exceed analyzer.batch-timeout"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %v", errs)
	}
	return nil
}

// AnalyzerConfig converts the options into the pipeline configuration.
func (o *Options) AnalyzerConfig() biz.AnalyzerConfig {
	cfg := biz.DefaultAnalyzerConfig()
	cfg.BatchSize = o.Analyzer.BatchSize
	cfg.BatchTimeout = o.Analyzer.BatchTimeout
	cfg.ClassifyTimeout = o.Analyzer.ClassifyTimeout
	cfg.AnalyzeTimeout = o.Analyzer.AnalyzeTimeout
	cfg.MaxAttempts = o.Analyzer.MaxAttempts
	cfg.RetryBackoff = o.Analyzer.RetryBackoff
	cfg.MaxDocumentLen = o.Analyzer.MaxDocumentLen
	return cfg
}

// JanitorConfig converts the options into the housekeeping configuration.
func (o *Options) JanitorConfig() biz.JanitorConfig {
	return biz.JanitorConfig{
		Interval:   o.Janitor.Interval,
		StaleAfter: o.Janitor.StaleAfter,
	}
}

// CacheConfig converts the options into the result cache configuration.
func (o *Options) CacheConfig() biz.CacheConfig {
	return biz.CacheConfig{
		Enabled:   o.Cache.Enabled,
		TTL:       o.Cache.TTL,
		KeyPrefix: o.Cache.KeyPrefix,
	}
}
