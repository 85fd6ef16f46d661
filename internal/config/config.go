package config

import (
	"fmt"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

type Config struct {
	Environment   string `env:"ENV" env-default:"development" validate:"oneof=development production test"`
	StorageDriver string `env:"STORAGE_DRIVER" env-default:"postgres" validate:"oneof=postgres memory"`
	DBDSN         string `env:"DB_DSN" validate:"required_if=StorageDriver postgres"`
	Timezone      string `env:"TIMEZONE" env-default:"UTC" validate:"timezone"`

	Booking   Booking
	Tx        Tx
	Extension Extension
	Telegram  Telegram
	Redis     Redis
	Midtrans  Midtrans
	Notify    Notify
}

// Booking горизонты регулярных занятий
type Booking struct {
	WindowMonths    int `env:"BOOKING_WINDOW_MONTHS" env-default:"3" validate:"gt=0,lte=24"`
	OpenEndedMonths int `env:"OPEN_ENDED_HORIZON_MONTHS" env-default:"12" validate:"gt=0,lte=60"`
}

// Tx повтор транзакций при конфликте блокировок
type Tx struct {
	MaxAttempts int           `env:"TX_MAX_ATTEMPTS" env-default:"3" validate:"gt=0,lte=10"`
	BaseBackoff time.Duration `env:"TX_BASE_BACKOFF" env-default:"50ms" validate:"gt=0"`
}

// Extension фоновое продление регулярных занятий
type Extension struct {
	Interval time.Duration `env:"EXTENSION_INTERVAL" env-default:"24h" validate:"gte=1m"`
}

type Telegram struct {
	Token string `env:"TELEGRAM_TOKEN"`
}

type Redis struct {
	Addr    string `env:"REDIS_ADDR" validate:"omitempty,hostname_port"`
	Channel string `env:"REDIS_EVENTS_CHANNEL" env-default:"tuition.events" validate:"required"`
}

type Midtrans struct {
	ServerKey  string `env:"MIDTRANS_SERVER_KEY"`
	Production bool   `env:"MIDTRANS_PRODUCTION" env-default:"false"`
}

type Notify struct {
	Timeout time.Duration `env:"NOTIFY_TIMEOUT" env-default:"10s" validate:"gt=0"`
}

func Load() (*Config, error) {
	// Пытаемся загрузить .env файл (игнорируем ошибку, если файла нет)
	if err := godotenv.Load(".env"); err != nil {
		log.Println("⚠️  No .env file found, using environment variables")
	} else {
		log.Println("✅ Loaded configuration from .env file")
	}

	return read()
}

// read читает уже выставленные переменные окружения
func read() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	if cfg.IsProduction() && cfg.StorageDriver == StorageMemory {
		return nil, fmt.Errorf("validate config: memory storage is not allowed in production")
	}

	log.Printf("Config loaded\n")

	return &cfg, nil
}

func (c *Config) GetDBDSN() string {
	return c.DBDSN
}

// Location зона, в которой определяется "сегодня"
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
