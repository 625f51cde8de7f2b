package common

import (
	"context"
	"errors"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

const devSessionSecret = "dev_secret_key"

type Config struct {
	Port          string `env:"PORT,           default=8080"`
	Env           string `env:"ENV,            default=development"`
	Domain        string `env:"DOMAIN,         default=http://localhost:8080"`
	SqliteDB      string `env:"SQLITE_DB,      default=blog.db"`
	SessionSecret string `env:"SESSION_SECRET"`
	SessionName   string `env:"SESSION_NAME,   default=inkwell-session"`
	SecureCookies bool   `env:"SECURE_COOKIES, default=false"`
	LogLevel      string `env:"LOG_LEVEL,      default=info"`
	LogPretty     bool   `env:"LOG_PRETTY,     default=false"`
	PerPage       int    `env:"PER_PAGE,       default=5"`
	BcryptCost    int    `env:"BCRYPT_COST,    default=10"`
}

// LoadConfig reads a .env file when one exists, then the process
// environment.
func LoadConfig(ctx context.Context) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.SessionSecret == "" {
		if c.Env != "development" {
			return errors.New("config: SESSION_SECRET must be set outside development")
		}
		c.SessionSecret = devSessionSecret
	}
	if c.PerPage < 1 {
		return fmt.Errorf("config: PER_PAGE must be positive, got %d", c.PerPage)
	}
	return nil
}
