package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	cfg, err := Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "strict", cfg.UnsupportedPolicy)
	assert.Empty(t, cfg.Postgres.DSN)
	assert.Zero(t, cfg.SampleSeed)
}

func TestFileEnvAndFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "docquery.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
  format: json
unsupported_policy: permissive
postgres:
  dsn: postgres://localhost/docs
sample_seed: 42
text_fields: [title, body]
`), 0o600))

	t.Setenv("DOCQUERY_LOG_FORMAT", "console")
	t.Setenv("DOCQUERY_POSTGRES_TABLE_PREFIX", "dq_")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("log-level", "info", "")
	require.NoError(t, flags.Parse([]string{"--log-level=warn"}))

	v := New()
	require.NoError(t, BindFlags(v, flags, map[string]string{"log.level": "log-level"}))
	cfg, err := Load(v, path)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "permissive", cfg.UnsupportedPolicy)
	assert.Equal(t, "postgres://localhost/docs", cfg.Postgres.DSN)
	assert.Equal(t, "dq_", cfg.Postgres.TablePrefix)
	assert.Equal(t, int64(42), cfg.SampleSeed)
	assert.Equal(t, []string{"title", "body"}, cfg.TextFields)
}

func TestExplicitFileMustExist(t *testing.T) {
	_, err := Load(New(), filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestBindUnknownFlag(t *testing.T) {
	err := BindFlags(New(), pflag.NewFlagSet("test", pflag.ContinueOnError), map[string]string{"log.level": "nope"})
	assert.Error(t, err)
}
