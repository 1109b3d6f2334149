package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Environment string `mapstructure:"ENVIRONMENT"`

	// Server
	Port            int           `mapstructure:"PORT"`
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
	CORSOrigins     []string      `mapstructure:"CORS_ORIGINS"`

	// Catalog
	StoreDriver         string `mapstructure:"STORE_DRIVER"`
	GamesTable          string `mapstructure:"GAMES_TABLE"`
	CategoriesTable     string `mapstructure:"CATEGORIES_TABLE"`
	PageSize            int    `mapstructure:"PAGE_SIZE"`
	PlaceholderImageURL string `mapstructure:"PLACEHOLDER_IMAGE_URL"`

	// AWS
	AWSRegion      string `mapstructure:"AWS_REGION"`
	AWSEndpointURL string `mapstructure:"AWS_ENDPOINT_URL"`

	// Storage
	StorageBucket     string        `mapstructure:"STORAGE_BUCKET"`
	StoragePublicBase string        `mapstructure:"STORAGE_PUBLIC_BASE"`
	SignedURLTTL      time.Duration `mapstructure:"SIGNED_URL_TTL"`

	// Redis
	RedisURL string `mapstructure:"REDIS_URL"`

	// JWT
	JWTSecret     string        `mapstructure:"JWT_SECRET"`
	JWTExpiration time.Duration `mapstructure:"JWT_EXPIRATION"`

	// Admin
	AdminEmail        string        `mapstructure:"ADMIN_EMAIL"`
	AdminPasswordHash string        `mapstructure:"ADMIN_PASSWORD_HASH"`
	LoginMaxAttempts  int           `mapstructure:"LOGIN_MAX_ATTEMPTS"`
	LoginLockTime     time.Duration `mapstructure:"LOGIN_LOCK_TIME"`
}

const (
	StoreDriverDynamoDB = "dynamodb"
	StoreDriverMemory   = "memory"

	MaxPageSize = 50
)

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables take precedence
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK if we're using env vars
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	// Lists from the environment arrive comma separated and untrimmed.
	config.CORSOrigins = splitList(strings.Join(config.CORSOrigins, ","))

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("PORT", 8080)
	v.SetDefault("SHUTDOWN_TIMEOUT", time.Second*30)
	v.SetDefault("CORS_ORIGINS", []string{"*"})
	v.SetDefault("STORE_DRIVER", StoreDriverDynamoDB)
	v.SetDefault("GAMES_TABLE", "games")
	v.SetDefault("CATEGORIES_TABLE", "categories")
	v.SetDefault("PAGE_SIZE", 10)
	v.SetDefault("PLACEHOLDER_IMAGE_URL", "https://via.placeholder.com/300x200")
	v.SetDefault("AWS_REGION", "us-east-1")
	v.SetDefault("STORAGE_PUBLIC_BASE", "https://storage.turtle-internet.local")
	v.SetDefault("SIGNED_URL_TTL", time.Minute*15)
	v.SetDefault("JWT_EXPIRATION", time.Hour*24)
	v.SetDefault("LOGIN_MAX_ATTEMPTS", 5)
	v.SetDefault("LOGIN_LOCK_TIME", time.Minute*5)

	// Keys without a default must still be known to Unmarshal.
	for _, key := range []string{
		"AWS_ENDPOINT_URL", "STORAGE_BUCKET", "REDIS_URL",
		"JWT_SECRET", "ADMIN_EMAIL", "ADMIN_PASSWORD_HASH",
	} {
		v.SetDefault(key, "")
	}
}

// Validate checks required fields and ranges.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriverDynamoDB:
		if c.StorageBucket == "" {
			return fmt.Errorf("STORAGE_BUCKET is required")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.AdminEmail == "" || c.AdminPasswordHash == "" {
		return fmt.Errorf("ADMIN_EMAIL and ADMIN_PASSWORD_HASH are required")
	}
	if c.PageSize < 1 || c.PageSize > MaxPageSize {
		return fmt.Errorf("PAGE_SIZE must be between 1 and %d", MaxPageSize)
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
