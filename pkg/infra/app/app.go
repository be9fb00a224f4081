// Package app boots a server binary: one cobra command carrying the option
// structs' grouped flag sets, with viper layering config file, environment
// variables and command-line flags in ascending precedence.
package app

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// RunFunc is the command body, invoked after options are bound, completed
// and validated.
type RunFunc func() error

// App is a bootstrapped server command.
type App struct {
	name        string
	description string
	options     CliOptions
	runFunc     RunFunc
	cmd         *cobra.Command
}

// Option mutates an App during construction.
type Option func(*App)

// WithName sets the binary name. It shows up in help output and drives the
// config search paths and the environment prefix.
func WithName(name string) Option {
	return func(a *App) {
		a.name = name
	}
}

// WithDescription sets the long help text. Its first line doubles as the
// short description.
func WithDescription(desc string) Option {
	return func(a *App) {
		a.description = desc
	}
}

// WithOptions attaches the option structs whose flags the command exposes.
func WithOptions(opts CliOptions) Option {
	return func(a *App) {
		a.options = opts
	}
}

// WithRunFunc sets the command body.
func WithRunFunc(run RunFunc) Option {
	return func(a *App) {
		a.runFunc = run
	}
}

// NewApp assembles the command from the given options.
func NewApp(opts ...Option) *App {
	a := &App{name: filepath.Base(os.Args[0])}
	for _, opt := range opts {
		opt(a)
	}

	short := a.description
	if idx := strings.IndexByte(short, '\n'); idx >= 0 {
		short = short[:idx]
	}

	cmd := &cobra.Command{
		Use:          a.name,
		Short:        short,
		Long:         a.description,
		RunE:         a.runCommand,
		SilenceUsage: true,
	}
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)
	cmd.Flags().SortFlags = true

	cmd.PersistentFlags().StringP("config", "c", "", "Path to the config file.")
	AddVersionFlags(cmd.PersistentFlags())

	if a.options != nil {
		fss := a.options.Flags()
		for _, name := range fss.Order {
			cmd.Flags().AddFlagSet(fss.FlagSets[name])
		}
	}

	a.cmd = cmd
	return a
}

// Run executes the command.
func (a *App) Run() {
	if err := a.cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (a *App) runCommand(cmd *cobra.Command, _ []string) error {
	PrintAndExitIfRequested()

	if err := a.bindConfig(cmd); err != nil {
		return err
	}

	if a.options != nil {
		if err := a.options.Complete(); err != nil {
			return err
		}
		if err := a.options.Validate(); err != nil {
			return err
		}
	}

	if a.runFunc == nil {
		return nil
	}
	return a.runFunc()
}

// bindConfig reads the config file, overlays environment variables and
// unmarshals the merged result into the option structs.
func (a *App) bindConfig(cmd *cobra.Command) error {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName(a.name)
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(filepath.Join(os.Getenv("HOME"), "."+a.name))
		viper.AddConfigPath("/etc/" + a.name)
	}

	// A missing config file is fine; flags and environment still apply.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	expandEnvRefs()

	viper.SetEnvPrefix(strings.ToUpper(strings.ReplaceAll(a.name, "-", "_")))
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if a.options == nil {
		return nil
	}

	// Unmarshal clobbers values already set on the command line, so changed
	// flags are captured first and re-applied after.
	changed := make(map[string]string)
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			changed[f.Name] = f.Value.String()
		}
	})

	if err := viper.Unmarshal(a.options); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	for name, val := range changed {
		if err := cmd.Flags().Set(name, val); err != nil {
			return fmt.Errorf("failed to re-apply flag %s: %w", name, err)
		}
	}
	return nil
}

var envRefRe = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvRefs resolves ${VAR} and $VAR references in string config values
// so secrets can live in the environment instead of the config file. Unset
// references are left untouched.
func expandEnvRefs() {
	for _, key := range viper.AllKeys() {
		val, ok := viper.Get(key).(string)
		if !ok {
			continue
		}
		expanded := envRefRe.ReplaceAllStringFunc(val, func(ref string) string {
			name := strings.TrimPrefix(ref, "$")
			name = strings.TrimPrefix(name, "{")
			name = strings.TrimSuffix(name, "}")
			if v := os.Getenv(name); v != "" {
				return v
			}
			return ref
		})
		if expanded != val {
			viper.Set(key, expanded)
		}
	}
}
