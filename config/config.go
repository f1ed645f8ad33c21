package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	API    APIConfig    `yaml:"api"`
	Upload UploadConfig `yaml:"upload"`
	Auth   AuthConfig   `yaml:"auth"`
	Client ClientConfig `yaml:"client"`
	Log    LogConfig    `yaml:"log"`
}

// APIConfig describes the case backend the uploader talks to.
type APIConfig struct {
	BaseURL        string  `yaml:"base_url"`
	Token          string  `yaml:"token"`
	UploadPath     string  `yaml:"upload_path"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	RateLimit      float64 `yaml:"rate_limit"` // requests per second
}

// UploadConfig carries the default batching parameters for an upload run.
type UploadConfig struct {
	BatchSize  int `yaml:"batch_size"`
	MaxRetries int `yaml:"max_retries"`
}

type AuthConfig struct {
	JWTSecret        string `yaml:"jwt_secret"`
	TokenExpireHours int    `yaml:"token_expire_hours"`
}

// ClientConfig identifies this installation: the tenant and the person
// whose name is stamped on uploaded records.
type ClientConfig struct {
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	DisplayName string `yaml:"display_name"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

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
	if cfg.API.UploadPath == "" {
		cfg.API.UploadPath = "/api/cases/batch-upsert"
	}
	if cfg.API.TimeoutSeconds == 0 {
		cfg.API.TimeoutSeconds = 30
	}
	if cfg.API.RateLimit == 0 {
		cfg.API.RateLimit = 10
	}
	if cfg.Upload.BatchSize == 0 {
		cfg.Upload.BatchSize = 100
	}
	if cfg.Upload.MaxRetries == 0 {
		cfg.Upload.MaxRetries = 2
	}
	if cfg.Auth.TokenExpireHours == 0 {
		cfg.Auth.TokenExpireHours = 24
	}

	return &cfg, nil
}
