package config

import (
	"log"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	cron_config "github.com/customeros/codewatch/internal/cron/config"
	"github.com/customeros/codewatch/internal/logger"
	"github.com/customeros/codewatch/internal/tracing"
)

type Config struct {
	AppConfig      *AppConfig
	Monitor        *MonitorConfig
	Cron           *cron_config.Config
	RabbitMQ       *RabbitMQConfig
	Redis          *RedisConfig
	LeaderElection *LeaderElectionConfig
	Logger         *logger.Config
	Tracing        *tracing.JaegerConfig
}

func newConfig() *Config {
	return &Config{
		AppConfig:      &AppConfig{},
		Monitor:        &MonitorConfig{},
		Cron:           &cron_config.Config{},
		RabbitMQ:       &RabbitMQConfig{},
		Redis:          &RedisConfig{},
		LeaderElection: &LeaderElectionConfig{},
		Logger:         &logger.Config{},
		Tracing:        &tracing.JaegerConfig{},
	}
}

// InitConfig loads .env when present, then the process environment.
func InitConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Print("Unable to load .env file")
	}
	return Parse()
}

// Parse reads the configuration from the environment only.
func Parse() (*Config, error) {
	config := newConfig()
	if err := env.Parse(config); err != nil {
		return nil, errors.Wrap(err, "error loading codewatch config")
	}
	if err := config.Monitor.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}
