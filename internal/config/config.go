package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Dataset DatasetConfig `yaml:"dataset"`
	Store   StoreConfig   `yaml:"store"`
	Cluster ClusterConfig `yaml:"cluster"`
	Redis   RedisConfig   `yaml:"redis"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	// Allow override via environment
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatasetConfig describes where the raw transaction dataset lives.
// Type selects the source: "csv" (local file), "postgres", or "s3".
type DatasetConfig struct {
	Type        string `yaml:"type"`
	Path        string `yaml:"path"`
	DatabaseURL string `yaml:"database_url"`
	Table       string `yaml:"table"`
	S3Bucket    string `yaml:"s3_bucket"`
	S3Key       string `yaml:"s3_key"`
	S3Region    string `yaml:"s3_region"`
	AWSProfile  string `yaml:"aws_profile"` // Empty string uses default credential chain (IAM role on ECS)
}

// GetAWSProfile returns the AWS profile, with environment variable override
func (c DatasetConfig) GetAWSProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return "" // Use default credential chain (IAM role)
		}
		return envProfile
	}
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "" // Running on ECS or Lambda, use IAM role
	}
	return c.AWSProfile
}

// StoreConfig holds the incremental customer store configuration
type StoreConfig struct {
	Path string `yaml:"path"`
}

// ClusterConfig holds segmentation model parameters
type ClusterConfig struct {
	DefaultK int `yaml:"default_k"`
	MinK     int `yaml:"min_k"`
	MaxK     int `yaml:"max_k"`
}

// RedisConfig holds the optional snapshot cache configuration
type RedisConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Addr       string `yaml:"addr"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Dataset.Type == "" {
		cfg.Dataset.Type = "csv"
	}
	if cfg.Dataset.Path == "" {
		cfg.Dataset.Path = "data/online_retail.csv"
	}
	if cfg.Dataset.Table == "" {
		cfg.Dataset.Table = "transactions"
	}
	if cfg.Dataset.S3Region == "" {
		cfg.Dataset.S3Region = "us-west-2"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "data/new_customers.csv"
	}
	if cfg.Cluster.DefaultK == 0 {
		cfg.Cluster.DefaultK = 3
	}
	if cfg.Cluster.MinK == 0 {
		cfg.Cluster.MinK = 3
	}
	if cfg.Cluster.MaxK == 0 {
		cfg.Cluster.MaxK = 6
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Redis.TTLSeconds == 0 {
		cfg.Redis.TTLSeconds = 900
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Dataset.Type {
	case "csv", "postgres", "s3":
	default:
		return fmt.Errorf("unknown dataset type %q (want csv, postgres, or s3)", c.Dataset.Type)
	}
	if c.Cluster.MinK < 2 {
		return fmt.Errorf("cluster min_k must be at least 2, got %d", c.Cluster.MinK)
	}
	if c.Cluster.MaxK < c.Cluster.MinK {
		return fmt.Errorf("cluster max_k %d is below min_k %d", c.Cluster.MaxK, c.Cluster.MinK)
	}
	if c.Cluster.DefaultK < c.Cluster.MinK || c.Cluster.DefaultK > c.Cluster.MaxK {
		return fmt.Errorf("cluster default_k %d outside [%d, %d]", c.Cluster.DefaultK, c.Cluster.MinK, c.Cluster.MaxK)
	}
	return nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	// Override with environment variables if present
	if v := os.Getenv("DATASET_TYPE"); v != "" {
		cfg.Dataset.Type = v
	}
	if v := os.Getenv("DATASET_PATH"); v != "" {
		cfg.Dataset.Path = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Dataset.DatabaseURL = v
	}
	if v := os.Getenv("DATASET_S3_BUCKET"); v != "" {
		cfg.Dataset.S3Bucket = v
	}
	if v := os.Getenv("DATASET_S3_KEY"); v != "" {
		cfg.Dataset.S3Key = v
	}
	if v := os.Getenv("DATASET_S3_REGION"); v != "" {
		cfg.Dataset.S3Region = v
	}
	if v := os.Getenv("STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
