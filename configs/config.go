package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	JWTSecret   string `envconfig:"JWT_SECRET" required:"true"`
	CORSOrigins string `envconfig:"CORS_ORIGINS" default:"*"`

	CloudinaryURL    string `envconfig:"CLOUDINARY_URL"`
	CloudinaryFolder string `envconfig:"CLOUDINARY_FOLDER" default:"medichat_attachments"`

	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	RedisPrefix   string `envconfig:"REDIS_PREFIX" default:"medichat"`

	KafkaBrokers []string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic   string   `envconfig:"KAFKA_TOPIC" default:"medichat.messages"`

	EchoToSender bool `envconfig:"ECHO_TO_SENDER" default:"true"`
	ClientBuffer int  `envconfig:"CLIENT_BUFFER" default:"64"`

	UnreadReminderSchedule string        `envconfig:"UNREAD_REMINDER_SCHEDULE" default:"*/5 * * * *"`
	UnreadReminderAfter    time.Duration `envconfig:"UNREAD_REMINDER_AFTER" default:"30m"`

	LogDevelopment bool `envconfig:"LOG_DEVELOPMENT" default:"false"`
}

// Load reads .env (if present) into the process environment and then
// decodes the environment into a Config.
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("Warning: .env file not found, reading from system environment variables")
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.ClientBuffer <= 0 {
		cfg.ClientBuffer = 64
	}
	return &cfg, nil
}
