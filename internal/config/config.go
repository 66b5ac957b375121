package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"

	"breathing-analytics/internal/analytics"
)

// Config конфигурация сервиса
type Config struct {
	ServerPort      string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	ResultRetention time.Duration
	Workers         int
	QueueSize       int
	MaxBodyBytes    int64
	MQTTBroker      string
	MQTTClientID    string
	MQTTTopicPrefix string
	ParamsFile      string
	Params          analytics.Params
}

// Load загружает .env (если есть), environment и файл параметров анализа
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := FromEnv()

	cfg.Params = analytics.DefaultParams()
	if cfg.ParamsFile != "" {
		params, err := analytics.LoadParams(cfg.ParamsFile)
		if err != nil {
			return Config{}, err
		}
		cfg.Params = params
	}

	return cfg, nil
}

// FromEnv читает конфигурацию из environment
func FromEnv() Config {
	return Config{
		ServerPort:      getEnv("SERVER_PORT", "8080"),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisDB:         getEnvAsInt("REDIS_DB", 0),
		ResultRetention: time.Duration(getEnvAsInt("RESULT_RETENTION_HOURS", 24)) * time.Hour,
		Workers:         getEnvAsInt("WORKERS", 4),
		QueueSize:       getEnvAsInt("QUEUE_SIZE", 64),
		MaxBodyBytes:    int64(getEnvAsFloat("MAX_BODY_MB", 32) * 1024 * 1024),
		MQTTBroker:      getEnv("MQTT_BROKER", ""),
		MQTTClientID:    getEnv("MQTT_CLIENT_ID", "breathing-analytics"),
		MQTTTopicPrefix: getEnv("MQTT_TOPIC_PREFIX", "breathing"),
		ParamsFile:      getEnv("ANALYSIS_PARAMS_FILE", ""),
	}
}

// getEnv получает environment variable или возвращает default
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt получает environment variable как int
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var value int
	if _, err := fmt.Sscanf(valueStr, "%d", &value); err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat получает environment variable как float64
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var value float64
	if _, err := fmt.Sscanf(valueStr, "%f", &value); err != nil {
		return defaultValue
	}
	return value
}
