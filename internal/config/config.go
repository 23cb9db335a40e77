package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

const defaultQuotaBytes = 5368709120 // 5 GiB

type Config struct {
	Server   ServerConfig   `mapstructure:"Server"`
	Database DatabaseConfig `mapstructure:"Database"`
	Auth     AuthConfig     `mapstructure:"Auth"`
	Quota    QuotaConfig    `mapstructure:"Quota"`
	Storage  StorageConfig  `mapstructure:"Storage"`
}

type ServerConfig struct {
	Port string `mapstructure:"Port"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"Host"`
	Port     string `mapstructure:"Port"`
	User     string `mapstructure:"User"`
	Password string `mapstructure:"Password"`
	Name     string `mapstructure:"Name"`
	SSLMode  string `mapstructure:"SSLMode"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"JWTSecret"`
}

type QuotaConfig struct {
	DefaultLimitBytes int64 `mapstructure:"DefaultLimitBytes"`
}

type StorageConfig struct {
	// CallTimeoutSeconds bounds every single provider call; past it the
	// orchestrator fails over to the next provider.
	CallTimeoutSeconds int `mapstructure:"CallTimeoutSeconds"`
	// Providers is the failover order: first entry is tried first.
	Providers []ProviderConfig `mapstructure:"Providers"`
}

type ProviderConfig struct {
	Name            string `mapstructure:"Name"`
	Type            string `mapstructure:"Type"` // s3 | gcs | minio
	Endpoint        string `mapstructure:"Endpoint"`
	Region          string `mapstructure:"Region"`
	AccessKeyID     string `mapstructure:"AccessKeyID"`
	SecretAccessKey string `mapstructure:"SecretAccessKey"`
	Bucket          string `mapstructure:"Bucket"`
	CredentialsFile string `mapstructure:"CredentialsFile"`
	UseSSL          bool   `mapstructure:"UseSSL"`
}

func NewConfig(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)

	v.BindEnv("Database.Host", "DATABASE_HOST")
	v.BindEnv("Database.Port", "DATABASE_PORT")
	v.BindEnv("Database.User", "DATABASE_USER")
	v.BindEnv("Database.Password", "DATABASE_PASSWORD")
	v.BindEnv("Database.Name", "DATABASE_NAME")
	v.BindEnv("Database.SSLMode", "DATABASE_SSLMODE")
	v.BindEnv("Auth.JWTSecret", "JWT_SECRET")
	v.BindEnv("Server.Port", "HTTP_PORT")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("Warning: using only environment variables: %v\n", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Database.Host == "" {
		cfg.Database.Host = v.GetString("DATABASE_HOST")
	}
	if cfg.Database.Port == "" {
		cfg.Database.Port = v.GetString("DATABASE_PORT")
	}
	if cfg.Database.User == "" {
		cfg.Database.User = v.GetString("DATABASE_USER")
	}
	if cfg.Database.Password == "" {
		cfg.Database.Password = v.GetString("DATABASE_PASSWORD")
	}
	if cfg.Database.Name == "" {
		cfg.Database.Name = v.GetString("DATABASE_NAME")
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = v.GetString("DATABASE_SSLMODE")
	}
	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = v.GetString("JWT_SECRET")
	}
	if cfg.Server.Port == "" {
		cfg.Server.Port = v.GetString("HTTP_PORT")
	}

	if cfg.Database.Host == "" ||
		cfg.Database.Port == "" ||
		cfg.Database.User == "" ||
		cfg.Database.Password == "" ||
		cfg.Database.Name == "" {
		return nil, fmt.Errorf("database configuration is incomplete: host=%s, port=%s, user=%s, name=%s",
			cfg.Database.Host, cfg.Database.Port, cfg.Database.User, cfg.Database.Name)
	}

	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("JWT secret is required")
	}

	if len(cfg.Storage.Providers) == 0 {
		return nil, fmt.Errorf("at least one storage provider must be configured")
	}
	for i, p := range cfg.Storage.Providers {
		if p.Name == "" || p.Type == "" {
			return nil, fmt.Errorf("storage provider %d: name and type are required", i)
		}
	}

	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Server.Port == "" {
		cfg.Server.Port = "2525"
	}
	if cfg.Quota.DefaultLimitBytes == 0 {
		cfg.Quota.DefaultLimitBytes = defaultQuotaBytes
	}
	if cfg.Storage.CallTimeoutSeconds == 0 {
		cfg.Storage.CallTimeoutSeconds = 30
	}

	return &cfg, nil
}

func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Name,
		c.SSLMode,
	)
}

func (c *StorageConfig) CallTimeout() time.Duration {
	return time.Duration(c.CallTimeoutSeconds) * time.Second
}
