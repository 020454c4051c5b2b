// Package config loads layered application configuration: hardcoded
// defaults, an optional YAML file, SITEMEDIC_* environment variables, then
// command-line flags, each layer overriding the previous.
package config

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

var (
	k    *koanf.Koanf
	once sync.Once
)

// InitGlobalConfig initializes the global koanf instance. Called early in
// the application lifecycle, before Load.
func InitGlobalConfig() {
	once.Do(func() {
		k = koanf.New(".")
	})
}

// Manager handles loading and accessing application configuration.
type Manager struct {
	koanfInstance *koanf.Koanf
	currentConfig Config
	mu            sync.RWMutex
}

// NewManager creates a Manager backed by the global koanf instance.
func NewManager() *Manager {
	InitGlobalConfig()
	return &Manager{koanfInstance: k}
}

// DefaultConfig returns the baseline configuration used when no other
// source overrides a value.
func DefaultConfig() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Site: SiteConfig{
			ContentDir:  "wp-content",
			PluginsDir:  "wp-content/plugins",
			TablePrefix: "wp_",
		},
		Server: ServerConfig{
			Addr:         "127.0.0.1",
			Port:         8750,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 10 * time.Minute,
		},
		Scanner: ScannerConfig{
			MaxDepth: 3,
		},
		Origins: OriginsConfig{
			Registry: RegistryConfig{
				APIBaseURL:      "https://api.wordpress.org",
				DownloadBaseURL: "https://wordpress.org",
			},
			Network: NetworkConfig{
				ProtectedProjectID: 101,
			},
		},
		Backup: BackupConfig{
			BatchSize: 5,
		},
	}
}

// Load merges all configuration sources in priority order and unmarshals
// the result.
func (m *Manager) Load(sources []ConfigSource) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ordered := make([]ConfigSource, len(sources))
	copy(ordered, sources)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority() < ordered[j].Priority()
	})

	for _, src := range ordered {
		if err := src.Load(m.koanfInstance); err != nil {
			return fmt.Errorf("config source %s: %w", src.Name(), err)
		}
	}

	var newCfg Config
	if err := m.koanfInstance.UnmarshalWithConf("", &newCfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return fmt.Errorf("error unmarshaling final config: %w", err)
	}
	m.currentConfig = newCfg
	return nil
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentConfig
}

// DefaultConfigAsMap flattens DefaultConfig for koanf's confmap provider so
// every key is known up front.
func DefaultConfigAsMap() map[string]interface{} {
	def := DefaultConfig()
	return map[string]interface{}{
		"log.level":  def.Log.Level,
		"log.format": def.Log.Format,
		"log.file":   def.Log.File,

		"site.root":          def.Site.Root,
		"site.content_dir":   def.Site.ContentDir,
		"site.plugins_dir":   def.Site.PluginsDir,
		"site.table_prefix":  def.Site.TablePrefix,
		"site.database_file": def.Site.DatabaseFile,

		"server.addr":          def.Server.Addr,
		"server.port":          def.Server.Port,
		"server.read_timeout":  def.Server.ReadTimeout,
		"server.write_timeout": def.Server.WriteTimeout,
		"server.workspace_dir": def.Server.WorkspaceDir,

		"scanner.signatures_file": def.Scanner.SignaturesFile,
		"scanner.max_depth":       def.Scanner.MaxDepth,
		"scanner.watch_file":      def.Scanner.WatchFile,

		"origins.registry.api_base_url":        def.Origins.Registry.APIBaseURL,
		"origins.registry.download_base_url":   def.Origins.Registry.DownloadBaseURL,
		"origins.network.base_url":             def.Origins.Network.BaseURL,
		"origins.network.token":                def.Origins.Network.Token,
		"origins.network.protected_project_id": def.Origins.Network.ProtectedProjectID,

		"backup.prefer_mirror": def.Backup.PreferMirror,
		"backup.batch_size":    def.Backup.BatchSize,

		"schedule.scan_cron": def.Schedule.ScanCron,
	}
}

// BindFlags defines the configuration flags shared by every command.
func BindFlags(flags *pflag.FlagSet) {
	def := DefaultConfig()
	flags.String("site.root", def.Site.Root, "Site root directory")
	flags.String("log.level", def.Log.Level, "Log level (debug, info, warn, error)")
	flags.String("log.format", def.Log.Format, "Log format (text, json)")
	flags.Bool("debug", false, "Enable debug logging")
}
