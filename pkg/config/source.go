package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// ConfigSource is one configuration layer. Sources load in priority order,
// lowest first; later sources override earlier ones.
//
// Built-in sources and their priorities:
//   - DefaultSource (10): hardcoded defaults
//   - FileSource (20): YAML config file
//   - EnvSource (30): SITEMEDIC_* environment variables
//   - FlagSource (40): command-line flags
type ConfigSource interface {
	Name() string
	Priority() int
	Load(k *koanf.Koanf) error
}

// DefaultSource provides hardcoded default configuration values.
type DefaultSource struct{}

func (s *DefaultSource) Name() string  { return "defaults" }
func (s *DefaultSource) Priority() int { return 10 }

func (s *DefaultSource) Load(k *koanf.Koanf) error {
	if err := k.Load(confmap.Provider(DefaultConfigAsMap(), "."), nil); err != nil {
		return fmt.Errorf("error loading defaults: %w", err)
	}
	return nil
}

// FileSource loads configuration from a YAML file. An empty or missing path
// is skipped silently.
type FileSource struct {
	Path string
}

func (s *FileSource) Name() string  { return "file:" + s.Path }
func (s *FileSource) Priority() int { return 20 }

func (s *FileSource) Load(k *koanf.Koanf) error {
	if s.Path == "" {
		return nil
	}
	if _, err := os.Stat(s.Path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("error checking config file %s: %w", s.Path, err)
	}
	if err := k.Load(file.Provider(s.Path), yaml.Parser()); err != nil {
		return fmt.Errorf("error loading config file %s: %w", s.Path, err)
	}
	return nil
}

// EnvSource loads configuration from environment variables:
// SITEMEDIC_SITE_TABLE_PREFIX -> site.table_prefix.
type EnvSource struct {
	Prefix string
}

func (s *EnvSource) Name() string  { return "env" }
func (s *EnvSource) Priority() int { return 30 }

func (s *EnvSource) Load(k *koanf.Koanf) error {
	prefix := s.Prefix
	if prefix == "" {
		prefix = "SITEMEDIC_"
	}

	// Environment names flatten both the section delimiter and in-key
	// underscores to "_", so SITEMEDIC_SITE_TABLE_PREFIX alone is ambiguous.
	// Known keys resolve through the default key set; unknown names split at
	// the first underscore only.
	known := make(map[string]string)
	for key := range DefaultConfigAsMap() {
		known[strings.ToUpper(strings.ReplaceAll(key, ".", "_"))] = key
	}

	if err := k.Load(env.Provider(prefix, ".", func(key string) string {
		name := strings.TrimPrefix(key, prefix)
		if mapped, ok := known[name]; ok {
			return mapped
		}
		return strings.Replace(strings.ToLower(name), "_", ".", 1)
	}), nil); err != nil {
		return fmt.Errorf("error loading environment variables: %w", err)
	}
	return nil
}

// FlagSource loads configuration from command-line flags, the highest
// priority layer.
type FlagSource struct {
	Flags *pflag.FlagSet
	Debug bool
}

func (s *FlagSource) Name() string  { return "flags" }
func (s *FlagSource) Priority() int { return 40 }

func (s *FlagSource) Load(k *koanf.Koanf) error {
	if s.Flags != nil {
		if err := k.Load(posflag.Provider(s.Flags, ".", k), nil); err != nil {
			return fmt.Errorf("error loading command-line flags: %w", err)
		}
	}
	if s.Debug {
		_ = k.Set("log.level", "debug")
	}
	return nil
}

// DefaultSources returns the standard layer stack in load order.
func DefaultSources(configPath string, flags *pflag.FlagSet, debug bool) []ConfigSource {
	return []ConfigSource{
		&DefaultSource{},
		&FileSource{Path: configPath},
		&EnvSource{Prefix: "SITEMEDIC_"},
		&FlagSource{Flags: flags, Debug: debug},
	}
}
