package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// The values are read by Viper from a config file or environment variables.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	S3          S3Config          `mapstructure:"s3"`
	JWT         JWTConfig         `mapstructure:"jwt"`
	Log         LogConfig         `mapstructure:"log"`
	Arrangement ArrangementConfig `mapstructure:"arrangement"`
	Catalog     CatalogConfig     `mapstructure:"catalog"`
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
	Mode    string `mapstructure:"mode"` // gin mode: debug, release, test
}

type DatabaseConfig struct {
	URI  string `mapstructure:"uri"`
	Name string `mapstructure:"name"`
}

type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	BucketName      string `mapstructure:"bucket_name"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

// JWTConfig defines JWT specific configuration
type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	Expiration time.Duration `mapstructure:"expiration"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// ArrangementConfig controls in-memory authoring sessions.
type ArrangementConfig struct {
	DefaultDays   int           `mapstructure:"default_days"`
	SessionTTL    time.Duration `mapstructure:"session_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	FetchTimeout  time.Duration `mapstructure:"fetch_timeout"` // Per catalog page fetch
}

type CatalogConfig struct {
	DefaultPageSize int           `mapstructure:"default_page_size"`
	MaxPageSize     int           `mapstructure:"max_page_size"`
	ImageURLExpiry  time.Duration `mapstructure:"image_url_expiry"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("database.uri", "mongodb://localhost:27017")
	v.SetDefault("database.name", "course_builder")
	// Keys without a natural default are still registered so that
	// Unmarshal picks them up from the environment.
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.access_key_id", "")
	v.SetDefault("s3.secret_access_key", "")
	v.SetDefault("s3.bucket_name", "exercise-images")
	v.SetDefault("s3.use_ssl", true)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiration", "1h")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("arrangement.default_days", 1)
	v.SetDefault("arrangement.session_ttl", "2h")
	v.SetDefault("arrangement.sweep_interval", "5m")
	v.SetDefault("arrangement.fetch_timeout", "10s")
	v.SetDefault("catalog.default_page_size", 20)
	v.SetDefault("catalog.max_page_size", 100)
	v.SetDefault("catalog.image_url_expiry", "15m")
}

// LoadConfig reads configuration from path/config.yaml, environment
// variables (server.address -> SERVER_ADDRESS) and defaults, in that
// order of precedence from last to first.
func LoadConfig(path string) (Config, error) {
	var config Config

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(`.`, `_`))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return config, err
		}
		// No file: defaults and environment only.
	}

	if err := v.Unmarshal(&config); err != nil {
		return config, err
	}
	return config, config.Validate()
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	if c.JWT.Secret == "" {
		return errors.New("jwt.secret is required")
	}
	if c.Arrangement.DefaultDays < 1 {
		return errors.New("arrangement.default_days must be at least 1")
	}
	if c.Catalog.MaxPageSize < c.Catalog.DefaultPageSize {
		return errors.New("catalog.max_page_size must not be below catalog.default_page_size")
	}
	return nil
}
