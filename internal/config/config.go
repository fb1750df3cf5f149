package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" json:"server"`
	Database  DatabaseConfig  `yaml:"database" json:"database"`
	Storage   StorageConfig   `yaml:"storage" json:"storage"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
	Lifecycle LifecycleConfig `yaml:"lifecycle" json:"lifecycle"`
	Ports     PortsConfig     `yaml:"ports" json:"ports"`
	Jobs      JobsConfig      `yaml:"jobs" json:"jobs"`
	Metrics   MetricsConfig   `yaml:"metrics" json:"metrics"`
	CORS      CORSConfig      `yaml:"cors" json:"cors"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`
	// RateLimitPerMinute caps requests per client IP; 0 disables the limiter.
	RateLimitPerMinute int           `yaml:"rate_limit_per_minute" json:"rate_limit_per_minute"`
	ShutdownTimeout    time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path           string `yaml:"path" json:"path"`
	MaxConnections int    `yaml:"max_connections" json:"max_connections"`
}

// CORSConfig contains CORS settings
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" json:"allowed_methods"`
}

// StorageConfig contains storage paths
type StorageConfig struct {
	ConfigDir   string `yaml:"config_dir" json:"config_dir"`
	DataDir     string `yaml:"data_dir" json:"data_dir"`
	ServersRoot string `yaml:"servers_root" json:"servers_root"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `yaml:"level" json:"level"`
	Format     string `yaml:"format" json:"format"`
	File       string `yaml:"file" json:"file"`
	MaxSize    int    `yaml:"max_size" json:"max_size"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAge     int    `yaml:"max_age" json:"max_age"`
}

// LifecycleConfig controls how game server processes are launched, probed and stopped.
type LifecycleConfig struct {
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval"`
	SpawnTimeout time.Duration `yaml:"spawn_timeout" json:"spawn_timeout"`
	BindTimeout  time.Duration `yaml:"bind_timeout" json:"bind_timeout"`
	StopTimeout  time.Duration `yaml:"stop_timeout" json:"stop_timeout"`
	SaveGrace    time.Duration `yaml:"save_grace" json:"save_grace"`
	KillGrace    time.Duration `yaml:"kill_grace" json:"kill_grace"`
	ProbeTimeout time.Duration `yaml:"probe_timeout" json:"probe_timeout"`
	StatusTTL    time.Duration `yaml:"status_ttl" json:"status_ttl"`

	SessionPrefix string `yaml:"session_prefix" json:"session_prefix"`
	// LaunchCommand supports the placeholders {name}, {dir}, {port}, {udp_port} and {rcon_port}.
	LaunchCommand   string   `yaml:"launch_command" json:"launch_command"`
	LaunchSignature string   `yaml:"launch_signature" json:"launch_signature"`
	ServerNameFlag  string   `yaml:"server_name_flag" json:"server_name_flag"`
	SaveCommand     string   `yaml:"save_command" json:"save_command"`
	QuitCommand     string   `yaml:"quit_command" json:"quit_command"`
	ExpectedFiles   []string `yaml:"expected_files" json:"expected_files"`
	ConsoleLog      string   `yaml:"console_log" json:"console_log"`
}

// PortsConfig is the default port triplet and the per-index offset.
type PortsConfig struct {
	DefaultPort int `yaml:"default_port" json:"default_port"`
	UDPPort     int `yaml:"udp_port" json:"udp_port"`
	RCONPort    int `yaml:"rcon_port" json:"rcon_port"`
	Increment   int `yaml:"increment" json:"increment"`
}

// JobsConfig selects the job store and its retention policy.
type JobsConfig struct {
	Store         string        `yaml:"store" json:"store"` // "memory" or "sqlite"
	Retention     time.Duration `yaml:"retention" json:"retention"`
	PruneSchedule string        `yaml:"prune_schedule" json:"prune_schedule"`
}

// MetricsConfig controls per-process resource sampling of running servers.
type MetricsConfig struct {
	Enabled  bool          `yaml:"enabled" json:"enabled"`
	Interval time.Duration `yaml:"interval" json:"interval"`
}

const (
	JobStoreMemory = "memory"
	JobStoreSQLite = "sqlite"
)

// Default returns the built-in configuration before any file or environment overrides.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               8080,
			RateLimitPerMinute: 120,
			ShutdownTimeout:    30 * time.Second,
		},
		Database: DatabaseConfig{
			Path:           "./data/lifecycle.db",
			MaxConnections: 4,
		},
		Storage: StorageConfig{
			ConfigDir:   "./configs",
			DataDir:     "./data",
			ServersRoot: "./data/servers",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			File:       "",
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
		},
		Lifecycle: LifecycleConfig{
			PollInterval:    time.Second,
			SpawnTimeout:    60 * time.Second,
			BindTimeout:     120 * time.Second,
			StopTimeout:     15 * time.Second,
			SaveGrace:       5 * time.Second,
			KillGrace:       5 * time.Second,
			ProbeTimeout:    2 * time.Second,
			StatusTTL:       5 * time.Second,
			SessionPrefix:   "gs-",
			LaunchCommand:   "./start-server.sh -servername {name} -cachedir={dir} -port {port} -udpport {udp_port}",
			LaunchSignature: "ProjectZomboid",
			ServerNameFlag:  "-servername",
			SaveCommand:     "save",
			QuitCommand:     "quit",
			ExpectedFiles:   []string{"Server/{name}.ini"},
			ConsoleLog:      "server-console.txt",
		},
		Ports: PortsConfig{
			DefaultPort: 16261,
			UDPPort:     16262,
			RCONPort:    27015,
			Increment:   10,
		},
		Jobs: JobsConfig{
			Store:         JobStoreMemory,
			Retention:     24 * time.Hour,
			PruneSchedule: "@every 10m",
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Interval: 15 * time.Second,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"http://localhost:5173"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		},
	}
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	cfg := Default()

	configPath := GetConfigPath()
	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	// Normalize storage paths based on config location
	cfg.normalizeStoragePaths(configPath)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	if dbPath := os.Getenv("DATABASE_PATH"); dbPath != "" {
		c.Database.Path = dbPath
	}

	if configDir := os.Getenv("CONFIG_DIR"); configDir != "" {
		c.Storage.ConfigDir = configDir
	}

	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDir = dataDir
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}

	if port := os.Getenv("HTTP_PORT"); port != "" {
		if n, err := strconv.Atoi(port); err == nil {
			c.Server.Port = n
		}
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	lc := c.Lifecycle
	durations := map[string]time.Duration{
		"poll_interval": lc.PollInterval,
		"spawn_timeout": lc.SpawnTimeout,
		"bind_timeout":  lc.BindTimeout,
		"stop_timeout":  lc.StopTimeout,
		"probe_timeout": lc.ProbeTimeout,
		"status_ttl":    lc.StatusTTL,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("lifecycle.%s must be positive", name)
		}
	}
	if c.Server.RateLimitPerMinute < 0 {
		return fmt.Errorf("server.rate_limit_per_minute must not be negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be positive")
	}

	if lc.SaveGrace < 0 || lc.KillGrace < 0 {
		return fmt.Errorf("lifecycle grace periods must not be negative")
	}

	if strings.TrimSpace(lc.LaunchCommand) == "" {
		return fmt.Errorf("lifecycle.launch_command is required")
	}
	if strings.TrimSpace(lc.LaunchSignature) == "" {
		return fmt.Errorf("lifecycle.launch_signature is required")
	}

	p := c.Ports
	if p.DefaultPort <= 0 || p.UDPPort <= 0 || p.RCONPort <= 0 {
		return fmt.Errorf("ports must be positive")
	}
	// The default triplet spans default_port and default_port+1, so offsets below 3 collide.
	if p.Increment < 3 {
		return fmt.Errorf("ports.increment must be at least 3")
	}

	switch c.Jobs.Store {
	case JobStoreMemory, JobStoreSQLite:
	default:
		return fmt.Errorf("jobs.store must be '%s' or '%s'", JobStoreMemory, JobStoreSQLite)
	}
	if c.Jobs.Retention <= 0 {
		return fmt.Errorf("jobs.retention must be positive")
	}
	if _, err := ParseSchedule(c.Jobs.PruneSchedule); err != nil {
		return fmt.Errorf("jobs.prune_schedule is invalid: %w", err)
	}
	if c.Metrics.Enabled && c.Metrics.Interval <= 0 {
		return fmt.Errorf("metrics.interval must be positive")
	}

	return nil
}

// ParseSchedule parses a cron expression or descriptor such as "@every 10m".
func ParseSchedule(spec string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return parser.Parse(spec)
}

func resolveConfigPath() string {
	candidates := []string{"../configs/config.yaml", "./configs/config.yaml"}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	return "./configs/config.yaml"
}

// GetConfigPath returns the resolved config path
func GetConfigPath() string {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = resolveConfigPath()
	}
	return configPath
}

func (c *Config) normalizeStoragePaths(configPath string) {
	baseDir := filepath.Dir(configPath)
	if !filepath.IsAbs(baseDir) {
		if absBase, err := filepath.Abs(baseDir); err == nil {
			baseDir = absBase
		}
	}

	rootDir := baseDir
	if filepath.Base(baseDir) == "configs" {
		rootDir = filepath.Dir(baseDir)
	}

	resolvePath := func(value string) string {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			return ""
		}
		if filepath.IsAbs(trimmed) {
			return filepath.Clean(trimmed)
		}
		return filepath.Clean(filepath.Join(rootDir, trimmed))
	}

	configDir := c.Storage.ConfigDir
	if strings.TrimSpace(configDir) == "" {
		configDir = baseDir
	}
	c.Storage.ConfigDir = resolvePath(configDir)

	if strings.TrimSpace(c.Storage.DataDir) == "" {
		c.Storage.DataDir = filepath.Join(rootDir, "data")
	}
	c.Storage.DataDir = resolvePath(c.Storage.DataDir)

	if strings.TrimSpace(c.Storage.ServersRoot) == "" {
		c.Storage.ServersRoot = filepath.Join(c.Storage.DataDir, "servers")
	}
	c.Storage.ServersRoot = resolvePath(c.Storage.ServersRoot)

	if strings.TrimSpace(c.Database.Path) != "" {
		c.Database.Path = resolvePath(c.Database.Path)
	}
}
