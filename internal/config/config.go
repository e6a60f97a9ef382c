package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Printer   PrinterConfig   `yaml:"printer"`
	AWS       AWSConfig       `yaml:"aws"`
	Job       JobConfig       `yaml:"job"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Storage   StorageConfig   `yaml:"storage"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type PrinterConfig struct {
	ID string `yaml:"id"`
}

type AWSConfig struct {
	Region      string `yaml:"region"`
	IoTEndpoint string `yaml:"iot_endpoint"`
	CertPath    string `yaml:"cert_path"`
	KeyPath     string `yaml:"key_path"`
	CAPath      string `yaml:"ca_path"`
}

type JobConfig struct {
	TickInterval Duration `yaml:"tick_interval"`
	TickProgress int      `yaml:"tick_progress"`
}

type TelemetryConfig struct {
	StatusInterval Duration `yaml:"status_interval"`
	QueueSize      int      `yaml:"queue_size"`
}

type StorageConfig struct {
	DBPath      string `yaml:"db_path"`
	DownloadDir string `yaml:"download_dir"`
	HistoryDays int    `yaml:"history_days"`
}

type ServerConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Listen       string   `yaml:"listen"`
	ReadTimeout  Duration `yaml:"read_timeout"`
	WriteTimeout Duration `yaml:"write_timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration unmarshals yaml values like "30s" or bare integer seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var secs int64
	if err := value.Decode(&secs); err != nil {
		return fmt.Errorf("invalid duration value: %s", value.Value)
	}
	*d = Duration(time.Duration(secs) * time.Second)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func defaults() *Config {
	return &Config{
		Printer: PrinterConfig{
			ID: "printer-001",
		},
		AWS: AWSConfig{
			Region: "us-east-1",
		},
		Job: JobConfig{
			TickInterval: Duration(10 * time.Second),
			TickProgress: 10,
		},
		Telemetry: TelemetryConfig{
			StatusInterval: Duration(30 * time.Second),
			QueueSize:      64,
		},
		Storage: StorageConfig{
			DBPath:      "./data/printerd.db",
			DownloadDir: "/tmp/prints",
			HistoryDays: 30,
		},
		Server: ServerConfig{
			Enabled:      true,
			Listen:       "127.0.0.1:8084",
			ReadTimeout:  Duration(30 * time.Second),
			WriteTimeout: Duration(30 * time.Second),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func Load(configPath string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv overrides fields from the environment. Printer and AWS
// variables keep the names the fleet provisioning scripts already set.
func (c *Config) LoadFromEnv() {
	if v := os.Getenv("PRINTER_ID"); v != "" {
		c.Printer.ID = v
	}

	if v := os.Getenv("AWS_REGION"); v != "" {
		c.AWS.Region = v
	}

	if v := os.Getenv("AWS_IOT_ENDPOINT"); v != "" {
		c.AWS.IoTEndpoint = v
	}

	if v := os.Getenv("AWS_IOT_CERT_PATH"); v != "" {
		c.AWS.CertPath = v
	}

	if v := os.Getenv("AWS_IOT_KEY_PATH"); v != "" {
		c.AWS.KeyPath = v
	}

	if v := os.Getenv("AWS_IOT_CA_PATH"); v != "" {
		c.AWS.CAPath = v
	}

	if v := os.Getenv("PRINTERD_DB_PATH"); v != "" {
		c.Storage.DBPath = v
	}

	if v := os.Getenv("PRINTERD_DOWNLOAD_DIR"); v != "" {
		c.Storage.DownloadDir = v
	}

	if v := os.Getenv("PRINTERD_LISTEN"); v != "" {
		c.Server.Listen = v
	}

	if v := os.Getenv("PRINTERD_TICK_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Job.TickInterval = Duration(d)
		}
	}

	if v := os.Getenv("PRINTERD_STATUS_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Telemetry.StatusInterval = Duration(d)
		}
	}

	if v := os.Getenv("PRINTERD_HISTORY_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil {
			c.Storage.HistoryDays = days
		}
	}

	if v := os.Getenv("PRINTERD_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Simulated reports whether the agent should run against the fake device
// and loopback transport: any missing certificate file means no cloud
// connection is possible.
func (c *Config) Simulated() bool {
	for _, p := range []string{c.AWS.CertPath, c.AWS.KeyPath, c.AWS.CAPath} {
		if p == "" {
			return true
		}
		if _, err := os.Stat(p); err != nil {
			return true
		}
	}
	return false
}

func (c *Config) Validate() error {
	if c.Printer.ID == "" {
		return fmt.Errorf("printer id is required")
	}

	if c.AWS.Region == "" {
		return fmt.Errorf("aws region is required")
	}

	if !c.Simulated() && c.AWS.IoTEndpoint == "" {
		return fmt.Errorf("aws iot_endpoint is required when certificates are configured")
	}

	if c.Job.TickInterval <= 0 {
		return fmt.Errorf("job tick interval must be positive")
	}

	if c.Job.TickProgress < 1 || c.Job.TickProgress > 100 {
		return fmt.Errorf("job tick progress must be between 1 and 100, got %d", c.Job.TickProgress)
	}

	if c.Telemetry.StatusInterval <= 0 {
		return fmt.Errorf("telemetry status interval must be positive")
	}

	if c.Telemetry.QueueSize < 1 {
		return fmt.Errorf("telemetry queue size must be at least 1")
	}

	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage db path is required")
	}

	if c.Storage.DownloadDir == "" {
		return fmt.Errorf("storage download dir is required")
	}

	if c.Storage.HistoryDays < 0 {
		return fmt.Errorf("storage history days must be non-negative")
	}

	if c.Server.Enabled {
		if c.Server.Listen == "" {
			return fmt.Errorf("server listen address is required")
		}

		if c.Server.ReadTimeout < 0 {
			return fmt.Errorf("server read timeout must be non-negative")
		}

		if c.Server.WriteTimeout < 0 {
			return fmt.Errorf("server write timeout must be non-negative")
		}
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"json": true,
		"text": true,
	}

	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (valid: json, text)", c.Logging.Format)
	}

	return nil
}
