package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"github.com/wb-go/wbf/zlog"
	"golang.org/x/sys/unix"
)

// Config holds the main configuration for the application.
type Config struct {
	Watcher Watcher `mapstructure:"watcher"`
	Output  Output  `mapstructure:"output"`
	Node    Node    `mapstructure:"node"`
	Server  Server  `mapstructure:"server"`
	Kafka   Kafka   `mapstructure:"kafka"`
	Storage Storage `mapstructure:"storage"`
	Retry   Retry   `mapstructure:"retry"`
}

// Watcher holds the watched tree and preset directory configuration.
type Watcher struct {
	Root         string        `mapstructure:"root"`          // watched directory tree
	PresetsDir   string        `mapstructure:"presets_dir"`   // directory of <token>.preset files
	PollInterval time.Duration `mapstructure:"poll_interval"` // remote status poll interval
}

// Output holds the result artifact destination.
type Output struct {
	Dir string `mapstructure:"dir"` // absolute, existing, writable
}

// Node holds the processing node connection parameters.
type Node struct {
	Host   string `mapstructure:"host"`
	Port   int    `mapstructure:"port"`
	Token  string `mapstructure:"token"`
	UseSSL bool   `mapstructure:"use_ssl"`
}

// Server holds the status HTTP server configuration.
type Server struct {
	Enabled  bool   `mapstructure:"enabled"`
	HTTPPort string `mapstructure:"http_port"` // HTTP port to listen on
}

// Kafka holds configuration for the lifecycle event topic.
type Kafka struct {
	Enabled bool     `mapstructure:"enabled"`
	Topic   string   `mapstructure:"topic"`   // Kafka topic name
	Brokers []string `mapstructure:"brokers"` // List of Kafka broker addresses
}

// Storage holds configuration for the artifact archive backend.
type Storage struct {
	Enabled    bool   `mapstructure:"enabled"`
	Endpoint   string `mapstructure:"endpoint"`
	AccessKey  string `mapstructure:"access_key"`
	SecretKey  string `mapstructure:"secret_key"`
	BucketName string `mapstructure:"bucket_name"`
	UseSSL     bool   `mapstructure:"use_ssl"`
}

// Retry defines retry policy configuration for external calls.
type Retry struct {
	Attempts int           `mapstructure:"attempts"` // Number of retry attempts
	Delay    time.Duration `mapstructure:"delay"`    // Initial delay between retries
	Backoff  float64       `mapstructure:"backoff"`  // Backoff multiplier for delays
}

// mustBindEnv binds credential environment variables to Viper keys.
//
// It panics if any environment variable cannot be bound.
func mustBindEnv() {
	bindings := map[string]string{
		"node.token":         "NODE_TOKEN",
		"storage.access_key": "MINIO_ACCESS_KEY",
		"storage.secret_key": "MINIO_SECRET_KEY",
	}

	for key, env := range bindings {
		if err := viper.BindEnv(key, env); err != nil {
			zlog.Logger.Panic().Err(err).Msgf("failed to bind env %s", env)
		}
	}
}

// MustLoad loads the configuration from the specified file path.
// It panics if the configuration file cannot be loaded or unmarshaled.
func MustLoad(path string) *Config {
	viper.SetConfigFile(path)
	viper.SetDefault("watcher.poll_interval", 3*time.Second)
	viper.SetDefault("node.port", 3000)
	viper.SetDefault("retry.attempts", 3)
	viper.SetDefault("retry.delay", 500*time.Millisecond)
	viper.SetDefault("retry.backoff", 2.0)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		zlog.Logger.Panic().Err(err).Msg("failed to read config")
	}

	mustBindEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		zlog.Logger.Panic().Err(err).Msgf("failed to unmarshal config: %v", err)
	}

	return &cfg
}

// Validate checks the startup invariants: the watched and preset
// directories must exist, the output directory must be absolute and
// writable, the node host must be set. Any violation is a fatal startup
// error.
func (c *Config) Validate() error {
	for name, dir := range map[string]string{
		"watcher.root":        c.Watcher.Root,
		"watcher.presets_dir": c.Watcher.PresetsDir,
	} {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("%s: %s is not a directory", name, dir)
		}
	}

	if err := validateOutputDir(c.Output.Dir); err != nil {
		return fmt.Errorf("output.dir: %w", err)
	}

	if c.Node.Host == "" {
		return fmt.Errorf("node.host must be set")
	}
	if c.Watcher.PollInterval <= 0 {
		return fmt.Errorf("watcher.poll_interval must be positive")
	}

	return nil
}

// validateOutputDir requires an absolute path to an existing, writable
// directory.
func validateOutputDir(dir string) error {
	if !filepath.IsAbs(dir) {
		return fmt.Errorf("%s is not an absolute path", dir)
	}

	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}

	if err := unix.Access(dir, unix.W_OK); err != nil {
		return fmt.Errorf("%s is not writable: %w", dir, err)
	}

	return nil
}
