package core

import (
	"fmt"
	"os"

	"github.com/jo-hoe/picstash/internal/backend/filestore"

	"gopkg.in/yaml.v3"
)

const (
	// defaultMaxUploadBytes is the hard upload ceiling (20 MiB).
	defaultMaxUploadBytes = 20 * 1024 * 1024
	// defaultQuotaBytes is the storage limit for newly created users (1 GiB).
	defaultQuotaBytes = 1024 * 1024 * 1024
)

type Database struct {
	Type             string `yaml:"type"`
	ConnectionString string `yaml:"connectionString"`
}

type Storage struct {
	Type      string             `yaml:"type"` // "disk" or "s3"
	Directory string             `yaml:"directory"`
	S3        filestore.S3Config `yaml:"s3"`
}

type Cache struct {
	Enabled    bool   `yaml:"enabled"`
	Address    string `yaml:"address"`
	TTLSeconds int    `yaml:"ttlSeconds"`
}

type Upload struct {
	MaxSizeBytes int64 `yaml:"maxSizeBytes"`
	WorkerLimit  int   `yaml:"workerLimit"`
}

type ServiceConfig struct {
	Port              int      `yaml:"port"`
	Database          Database `yaml:"database"`
	Storage           Storage  `yaml:"storage"`
	Cache             Cache    `yaml:"cache"`
	Upload            Upload   `yaml:"upload"`
	DefaultQuotaBytes int64    `yaml:"defaultQuotaBytes"`
}

// LoadConfig loads configuration from the specified YAML file
func LoadConfig(configPath string) (*ServiceConfig, error) {
	// Read the config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	// Parse YAML
	var config ServiceConfig
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	if err := applyDefaults(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// applyDefaults validates the loaded configuration and fills in defaults for
// omitted fields.
func applyDefaults(config *ServiceConfig) error {
	switch config.Storage.Type {
	case "", "disk":
		config.Storage.Type = "disk"
		if config.Storage.Directory == "" {
			config.Storage.Directory = "uploads"
		}
	case "s3":
		if config.Storage.S3.Bucket == "" {
			return fmt.Errorf("s3 storage requires a bucket")
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", config.Storage.Type)
	}

	if config.Cache.Enabled && config.Cache.Address == "" {
		return fmt.Errorf("cache is enabled but no address is configured")
	}
	if config.Cache.TTLSeconds <= 0 {
		config.Cache.TTLSeconds = 300
	}

	if config.Upload.MaxSizeBytes <= 0 {
		config.Upload.MaxSizeBytes = defaultMaxUploadBytes
	}
	if config.DefaultQuotaBytes <= 0 {
		config.DefaultQuotaBytes = defaultQuotaBytes
	}

	return nil
}
