package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubOptions struct {
	Addr  string `mapstructure:"addr"`
	Level string `mapstructure:"level"`
	Token string `mapstructure:"token"`
}

func (o *stubOptions) Flags() NamedFlagSets {
	nfs := NamedFlagSets{}
	fs := nfs.FlagSet("stub")
	fs.StringVar(&o.Addr, "addr", "127.0.0.1:8080", "Listen address.")
	fs.StringVar(&o.Level, "level", "info", "Log level.")
	fs.StringVar(&o.Token, "token", "", "Auth token.")
	return nfs
}

func (o *stubOptions) Complete() error { return nil }
func (o *stubOptions) Validate() error { return nil }

func TestConfigLayering(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("STUB_SECRET", "s3cret")

	path := filepath.Join(t.TempDir(), "stub.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"addr: 0.0.0.0:9000\nlevel: warn\ntoken: ${STUB_SECRET}\n",
	), 0o600))

	opts := &stubOptions{}
	var ran bool
	a := NewApp(
		WithName("stub"),
		WithDescription("Stub server\n\nLonger help text."),
		WithOptions(opts),
		WithRunFunc(func() error {
			ran = true
			return nil
		}),
	)

	assert.Equal(t, "Stub server", a.cmd.Short)

	a.cmd.SetArgs([]string{"--config", path, "--level", "debug"})
	require.NoError(t, a.cmd.Execute())

	assert.True(t, ran)
	assert.Equal(t, "0.0.0.0:9000", opts.Addr, "file value applies")
	assert.Equal(t, "debug", opts.Level, "changed flag beats the file")
	assert.Equal(t, "s3cret", opts.Token, "env reference is expanded")
}

func TestExpandEnvRefsLeavesUnsetReferences(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	viper.Set("token", "${STUB_UNSET_REFERENCE}")
	expandEnvRefs()
	assert.Equal(t, "${STUB_UNSET_REFERENCE}", viper.GetString("token"))
}
