package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	DefaultListenAddr     = "0.0.0.0:8080"
	DefaultStateFileName  = "flight_controller_connection.db"
	DefaultStatusInterval = 5
)

// LoggingConfig defines runtime logging behavior.
type LoggingConfig struct {
	Level     string `json:"level"`
	LogToFile bool   `json:"log_to_file"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Listen string `json:"listen"`
}

// FlightControllerConfig holds tunables of the connection subsystem.
type FlightControllerConfig struct {
	AutoRestore           bool `json:"auto_restore"`
	StatusIntervalSeconds int  `json:"status_interval_seconds"`
}

// AppConfig is the root persisted application configuration.
type AppConfig struct {
	Server           ServerConfig           `json:"server"`
	Logging          LoggingConfig          `json:"logging"`
	DataDir          string                 `json:"data_dir"`
	FlightController FlightControllerConfig `json:"flight_controller"`
}

func Default() AppConfig {
	return AppConfig{
		Server: ServerConfig{
			Listen: DefaultListenAddr,
		},
		Logging: LoggingConfig{
			Level:     "info",
			LogToFile: false,
		},
		DataDir: "data",
		FlightController: FlightControllerConfig{
			AutoRestore:           true,
			StatusIntervalSeconds: DefaultStatusInterval,
		},
	}
}

func Load(path string) (AppConfig, error) {
	cfg := Default()
	cleanPath := filepath.Clean(path)
	// #nosec G304 -- path comes from the command line of the operator.
	raw, err := os.ReadFile(cleanPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return AppConfig{}, fmt.Errorf("read config: %w", err)
	}

	if err := json.Unmarshal(raw, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("decode config json: %w", err)
	}

	cfg.FillMissingDefaults()
	return cfg, nil
}

func (c *AppConfig) FillMissingDefaults() {
	if strings.TrimSpace(c.Server.Listen) == "" {
		c.Server.Listen = DefaultListenAddr
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "data"
	}
	if c.FlightController.StatusIntervalSeconds <= 0 {
		c.FlightController.StatusIntervalSeconds = DefaultStatusInterval
	}
}

func (c AppConfig) Validate() error {
	if strings.TrimSpace(c.Server.Listen) == "" {
		return errors.New("server listen address is required")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return errors.New("data dir is required")
	}
	return nil
}

// StateFilePath is where the connection state database lives.
func (c AppConfig) StateFilePath() string {
	return filepath.Join(c.DataDir, DefaultStateFileName)
}

// LogFilePath is where the optional log file lives.
func (c AppConfig) LogFilePath() string {
	return filepath.Join(c.DataDir, "gcslink.log")
}

func Save(path string, cfg AppConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, raw, 0o600); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp config: %w", err)
	}
	return nil
}
