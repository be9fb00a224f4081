package app

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/pflag"
)

// Build metadata, injected via -ldflags at release time.
var (
	gitVersion = "v0.0.0-dev"
	gitCommit  = "unknown"
	buildDate  = "unknown"
)

var versionRequested bool

// GetVersion returns the version string.
func GetVersion() string {
	return gitVersion
}

// AddVersionFlags adds the --version flag to the flagset.
func AddVersionFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&versionRequested, "version", false, "Print version information and quit.")
}

// PrintAndExitIfRequested prints the version and exits if --version was set.
func PrintAndExitIfRequested() {
	if !versionRequested {
		return
	}
	fmt.Printf("version: %s\ncommit: %s\nbuilt: %s\ngo: %s %s/%s\n",
		gitVersion, gitCommit, buildDate, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	os.Exit(0)
}
