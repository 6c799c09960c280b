package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	App struct {
		Addr      string
		JWTSecret string
	}
	DB struct {
		Host     string
		Port     int
		User     string
		Password string
		Database string
	}
	RabbitMQ struct {
		Host     string
		Port     int
		User     string
		Password string
	}
	Queue struct {
		// Path of the sqlite append log backing the durable write queue.
		Path        string
		MaxAttempts int
	}
}

// LoadConfig reads configuration from the environment, optionally seeded
// from an env file. A missing env file is not an error so the service can
// run purely on real environment variables.
func LoadConfig(filename string) (*Config, error) {
	if filename != "" {
		if err := godotenv.Load(filename); err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}

	cfg := &Config{}
	cfg.App.Addr = getEnv("APP_ADDR", ":8080")
	cfg.App.JWTSecret = getEnv("JWT_SECRET_KEY", "")
	cfg.DB.Host = getEnv("DB_HOST", "localhost")
	cfg.DB.Port = getEnvAsInt("DB_PORT", 5432)
	cfg.DB.User = getEnv("DB_USER", "busops_user")
	cfg.DB.Password = getEnv("DB_PASS", "busops_pass")
	cfg.DB.Database = getEnv("DB_NAME", "busops_db")
	cfg.RabbitMQ.Host = getEnv("RABBITMQ_HOST", "localhost")
	cfg.RabbitMQ.Port = getEnvAsInt("RABBITMQ_PORT", 5672)
	cfg.RabbitMQ.User = getEnv("RABBITMQ_USER", "guest")
	cfg.RabbitMQ.Password = getEnv("RABBITMQ_PASS", "guest")
	cfg.Queue.Path = getEnv("WRITE_QUEUE_PATH", "writequeue.db")
	cfg.Queue.MaxAttempts = getEnvAsInt("WRITE_QUEUE_MAX_ATTEMPTS", 5)

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}
