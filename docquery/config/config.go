// Package config loads docquery settings from docquery.yaml, DOCQUERY_*
// environment variables and command-line flags, in increasing precedence.
package config

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	EnvPrefix = "DOCQUERY"
	FileName  = "docquery"
)

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type Postgres struct {
	DSN         string `mapstructure:"dsn"`
	TablePrefix string `mapstructure:"table_prefix"`
}

type Config struct {
	Log               Log      `mapstructure:"log"`
	UnsupportedPolicy string   `mapstructure:"unsupported_policy"`
	Postgres          Postgres `mapstructure:"postgres"`
	// SampleSeed fixes the $sample source when non-zero.
	SampleSeed int64    `mapstructure:"sample_seed"`
	TextFields []string `mapstructure:"text_fields"`
}

// New returns a viper instance with defaults and environment binding set.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("unsupported_policy", "strict")
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.table_prefix", "")
	v.SetDefault("sample_seed", 0)
	v.SetDefault("text_fields", []string{})

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// BindFlags maps flags onto configuration keys, e.g. "log-level" onto
// "log.level".
func BindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) error {
	for key, flag := range keys {
		f := flags.Lookup(flag)
		if f == nil {
			return errors.Errorf("no flag %q for %s", flag, key)
		}
		if err := v.BindPFlag(key, f); err != nil {
			return errors.Wrapf(err, "bind %s", key)
		}
	}
	return nil
}

// Load reads path, or docquery.yaml from the working directory when path is
// empty. A missing default file is not an error.
func Load(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, errors.Wrap(err, "read config")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "decode config")
	}
	return cfg, nil
}
