package config

import "time"

// Config is the root configuration structure. It aggregates every
// subsystem's settings.
type Config struct {
	Log      LogConfig      `description:"Logging configuration" koanf:"log"`
	Site     SiteConfig     `description:"Site layout" koanf:"site"`
	Server   ServerConfig   `description:"HTTP server" koanf:"server"`
	Scanner  ScannerConfig  `description:"Signature scanner" koanf:"scanner"`
	Origins  OriginsConfig  `description:"Reinstall origins" koanf:"origins"`
	Backup   BackupConfig   `description:"Backup engine" koanf:"backup"`
	Schedule ScheduleConfig `description:"Periodic jobs" koanf:"schedule"`
}

// LogConfig holds logging related configuration.
type LogConfig struct {
	Level  string `description:"Log level: debug | info | warn | error" koanf:"level"`
	Format string `description:"Log format: json | text" koanf:"format"`
	File   string `description:"Log file path (empty for stderr)" koanf:"file"`
}

// SiteConfig describes the WordPress installation being maintained.
type SiteConfig struct {
	Root        string `description:"Site root directory" koanf:"root" validate:"required"`
	ContentDir  string `description:"Content directory relative to root" koanf:"content_dir"`
	PluginsDir  string `description:"Plugins directory relative to root" koanf:"plugins_dir"`
	TablePrefix string `description:"Database table prefix" koanf:"table_prefix"`

	// DatabaseFile points at a SQLite database (sites running the SQLite
	// integration). Empty disables database scanning.
	DatabaseFile string `description:"SQLite database file" koanf:"database_file"`
}

// ServerConfig holds the HTTP server runtime settings.
type ServerConfig struct {
	Addr         string        `description:"Listen address" koanf:"addr"`
	Port         int           `description:"Listen port" koanf:"port"`
	ReadTimeout  time.Duration `description:"HTTP read timeout" koanf:"read_timeout"`
	WriteTimeout time.Duration `description:"HTTP write timeout" koanf:"write_timeout"`
	WorkspaceDir string        `description:"State workspace root" koanf:"workspace_dir"`
}

// ScannerConfig holds signature scanner settings.
type ScannerConfig struct {
	SignaturesFile string `description:"Signature set file (empty for embedded defaults)" koanf:"signatures_file"`
	MaxDepth       int    `description:"Directory scan depth limit" koanf:"max_depth"`
	WatchFile      bool   `description:"Hot-reload the signature file in server mode" koanf:"watch_file"`
}

// OriginsConfig holds the reinstall origin endpoints and credentials.
type OriginsConfig struct {
	Registry RegistryConfig `description:"Public plugin registry" koanf:"registry"`
	Network  NetworkConfig  `description:"Premium plugin network" koanf:"network"`
}

// RegistryConfig points at the public, unauthenticated registry.
type RegistryConfig struct {
	APIBaseURL      string `description:"Registry API base URL" koanf:"api_base_url"`
	DownloadBaseURL string `description:"Release archive base URL" koanf:"download_base_url"`
}

// NetworkConfig points at the authenticated premium network.
type NetworkConfig struct {
	BaseURL            string `description:"Network API base URL" koanf:"base_url"`
	Token              string `description:"Bearer token for the network" koanf:"token"`
	ProtectedProjectID int    `description:"Project id of the network's own dashboard plugin" koanf:"protected_project_id"`
}

// BackupConfig holds backup engine settings.
type BackupConfig struct {
	PreferMirror bool `description:"Use mirror-copy instead of archiving" koanf:"prefer_mirror"`
	BatchSize    int  `description:"Plugins reinstalled per batch request" koanf:"batch_size"`
}

// ScheduleConfig holds periodic job settings for server mode.
type ScheduleConfig struct {
	ScanCron string `description:"Cron expression for periodic file scans (empty disables)" koanf:"scan_cron"`
}
