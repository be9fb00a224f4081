package app

import "github.com/spf13/pflag"

// CliOptions is the contract an application's option struct fulfills so the
// bootstrapper can bind, complete and validate it.
type CliOptions interface {
	// Flags returns the flag sets grouped by concern.
	Flags() NamedFlagSets

	// Complete fills in defaults derived from other options.
	Complete() error

	// Validate checks the final option values.
	Validate() error
}

// NamedFlagSets groups pflag sets by name, preserving registration order for
// help output.
type NamedFlagSets struct {
	// Order is the ordered list of flag set names.
	Order []string

	// FlagSets maps a name to its flag set.
	FlagSets map[string]*pflag.FlagSet
}

// FlagSet returns the flag set with the given name, creating it on first use.
func (nfs *NamedFlagSets) FlagSet(name string) *pflag.FlagSet {
	if nfs.FlagSets == nil {
		nfs.FlagSets = make(map[string]*pflag.FlagSet)
	}
	if _, ok := nfs.FlagSets[name]; !ok {
		nfs.FlagSets[name] = pflag.NewFlagSet(name, pflag.ExitOnError)
		nfs.Order = append(nfs.Order, name)
	}
	return nfs.FlagSets[name]
}
