package config

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// envPrefix is the environment variable prefix of every setting.
const envPrefix = "HIPPO"

// newViper builds a Viper instance reading YAML, with HIPPO_ env overrides
// where "input.id_column" resolves to HIPPO_INPUT_ID_COLUMN.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	bindEnvKeys(v, reflect.TypeOf(Config{}), "")
	return v
}

// bindEnvKeys registers every leaf key of t with v.  AutomaticEnv alone only
// resolves keys Viper already knows about, so Unmarshal would otherwise miss
// env-only settings.
func bindEnvKeys(v *viper.Viper, t reflect.Type, prefix string) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}
		if f.Type.Kind() == reflect.Struct {
			bindEnvKeys(v, f.Type, key)
			continue
		}
		_ = v.BindEnv(key)
	}
}

// LoadOption adjusts the Viper instance before the configuration is read.
type LoadOption func(v *viper.Viper) error

// WithFlag binds a command-line flag to key.  A flag given on the command line
// beats the file and the environment; an unset flag only supplies its default
// when nothing else does.
func WithFlag(key string, f *pflag.Flag) LoadOption {
	return func(v *viper.Viper) error {
		if f == nil {
			return fmt.Errorf("config: no flag bound to %q", key)
		}
		return v.BindPFlag(key, f)
	}
}

// Load reads the YAML file at configPath, merges HIPPO_* overrides and bound
// flags, applies defaults and validates.  An empty path behaves like
// LoadFromEnv.
func Load(configPath string, opts ...LoadOption) (*Config, error) {
	if configPath == "" {
		return LoadFromEnv(opts...)
	}
	v, err := configure(opts)
	if err != nil {
		return nil, err
	}
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: failed to read config file %q: %w", configPath, err)
	}

	return unmarshalAndFinalize(v)
}

// LoadFromEnv builds a Config from HIPPO_* environment variables and bound
// flags.
func LoadFromEnv(opts ...LoadOption) (*Config, error) {
	v, err := configure(opts)
	if err != nil {
		return nil, err
	}
	return unmarshalAndFinalize(v)
}

func configure(opts []LoadOption) (*viper.Viper, error) {
	v := newViper()
	for _, opt := range opts {
		if err := opt(v); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal configuration: %w", err)
	}

	ApplyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}
	return cfg, nil
}

// MustLoad is Load that panics; intended for tests and tooling.
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}
