package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const defaultConfigPath = "./config/local.yaml"

type Config struct {
	Env        string `yaml:"env" env:"ENV" env-default:"local"`
	Timezone   string `yaml:"timezone" env:"SERVICE_TIMEZONE" env-default:"UTC"`
	Storage    `yaml:"storage"`
	Redis      `yaml:"redis"`
	Auth       `yaml:"auth"`
	HTTPServer `yaml:"http_server"`
	Tracking   `yaml:"tracking"`
}

type Storage struct {
	Driver string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"postgres"`
	DSN    string `yaml:"dsn" env:"STORAGE_DSN" env-required:"true"`
}

// Redis with an empty Addr runs the service with in-process locks,
// live hub and a log-only notifier.
type Redis struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

type Auth struct {
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET" env-required:"true"`
}

type HTTPServer struct {
	Address         string        `yaml:"address" env:"HTTP_ADDRESS" env-default:"localhost:8080"`
	Timeout         time.Duration `yaml:"timeout" env-default:"4s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env-default:"15s"`
}

type Tracking struct {
	RejectStaleUpdates bool          `yaml:"reject_stale_updates" env:"TRACKING_REJECT_STALE" env-default:"true"`
	IdleTimeout        time.Duration `yaml:"idle_timeout" env:"TRACKING_IDLE_TIMEOUT" env-default:"2h"`
	SweepSchedule      string        `yaml:"sweep_schedule" env-default:"@every 5m"`
	LockTTL            time.Duration `yaml:"lock_ttl" env-default:"5s"`
	LockWait           time.Duration `yaml:"lock_wait" env-default:"2s"`
}

func MustLoad() *Config {
	// .env is optional, real environment wins
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("Failed to read config file: %v", err)
	}

	return cfg
}

func Load(configPath string) (*Config, error) {
	const op = "config.Load"

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s: config file does not exist: %s", op, configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if _, err := cfg.Location(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &cfg, nil
}

// Location is the zone calendar days are computed in.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", c.Timezone, err)
	}

	return loc, nil
}
