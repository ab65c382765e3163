package config

import (
	"os"      // For environment variables
	"strconv" // For string to int conversion
	"strings" // For list parsing
	"time"    // For durations

	"github.com/joho/godotenv" // For loading .env files
	"gopkg.in/yaml.v3"         // For the optional config file
)

// Config holds the application configuration
type Config struct {
	AppPort          string        `yaml:"app_port"`          // Application port
	DBDriver         string        `yaml:"db_driver"`         // mysql or postgres
	DBUser           string        `yaml:"db_user"`           // Database user
	DBPassword       string        `yaml:"db_password"`       // Database password
	DBHost           string        `yaml:"db_host"`           // Database host
	DBPort           string        `yaml:"db_port"`           // Database port
	DBName           string        `yaml:"db_name"`           // Database name
	JWTSecret        string        `yaml:"jwt_secret"`        // JWT secret key
	RedisAddr        string        `yaml:"redis_addr"`        // Redis server address
	RedisPass        string        `yaml:"redis_pass"`        // Redis password
	RedisDB          int           `yaml:"redis_db"`          // Redis database number
	IsProd           bool          `yaml:"is_prod"`           // Is production environment
	Currency         string        `yaml:"currency"`          // Ledger currency code
	LockTimeout      time.Duration `yaml:"lock_timeout"`      // Max wait for a per-entity lock
	LockTTL          time.Duration `yaml:"lock_ttl"`          // Expiry of a held distributed lock
	BatchConcurrency int           `yaml:"batch_concurrency"` // Parallel items in a batch settlement
	KafkaBrokers     []string      `yaml:"kafka_brokers"`     // Event brokers, empty logs events only
	KafkaTopic       string        `yaml:"kafka_topic"`       // Event topic
	LogLevel         string        `yaml:"log_level"`         // logrus level
	LogFormat        string        `yaml:"log_format"`        // text or json
}

// Defaults returns the configuration used when nothing is set
func Defaults() *Config {
	return &Config{
		AppPort:          "8080",
		DBDriver:         "mysql",
		DBHost:           "127.0.0.1",
		DBPort:           "3306",
		Currency:         "USD",
		LockTimeout:      5 * time.Second,
		LockTTL:          30 * time.Second,
		BatchConcurrency: 4,
		KafkaTopic:       "ledger.events",
		LogLevel:         "info",
		LogFormat:        "text",
	}
}

// LoadConfig loads configuration from .env, an optional YAML file and environment variables,
// later sources overriding earlier ones
func LoadConfig() *Config {
	_ = godotenv.Load() // Load .env file if present
	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			panic("config: " + err.Error()) // A named but unreadable file is a deployment error
		}
	}
	cfg.applyEnv()
	return cfg
}

// mergeFile overlays values present in a YAML file
func (c *Config) mergeFile(path string) error {
	raw, err := os.ReadFile(path) // Read the file
	if err != nil {
		return err
	}
	return yaml.Unmarshal(raw, c) // Only keys present in the file are overwritten
}

// applyEnv overlays every environment variable that is set
func (c *Config) applyEnv() {
	setString(&c.AppPort, "APP_PORT")
	setString(&c.DBDriver, "DB_DRIVER")
	setString(&c.DBUser, "DB_USER")
	setString(&c.DBPassword, "DB_PASSWORD")
	setString(&c.DBHost, "DB_HOST")
	setString(&c.DBPort, "DB_PORT")
	setString(&c.DBName, "DB_NAME")
	setString(&c.JWTSecret, "JWT_SECRET")
	setString(&c.RedisAddr, "REDIS_ADDR")
	setString(&c.RedisPass, "REDIS_PASS")
	setString(&c.Currency, "CURRENCY")
	setString(&c.KafkaTopic, "KAFKA_TOPIC")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.LogFormat, "LOG_FORMAT")
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RedisDB = n // Redis database number
		}
	}
	if v := os.Getenv("IS_PROD"); v != "" {
		c.IsProd = v == "true" // Is production environment
	}
	if v := os.Getenv("BATCH_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.BatchConcurrency = n
		}
	}
	setDuration(&c.LockTimeout, "LOCK_TIMEOUT")
	setDuration(&c.LockTTL, "LOCK_TTL")
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.KafkaBrokers = nil
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				c.KafkaBrokers = append(c.KafkaBrokers, b)
			}
		}
	}
}

// DSN builds the data source name for the configured driver
func (c *Config) DSN() string {
	if c.DBDriver == "postgres" {
		return "host=" + c.DBHost + " user=" + c.DBUser + " password=" + c.DBPassword +
			" dbname=" + c.DBName + " port=" + c.DBPort + " sslmode=disable TimeZone=UTC"
	}
	return c.DBUser + ":" + c.DBPassword + "@tcp(" + c.DBHost + ":" + c.DBPort + ")/" + c.DBName + "?parseTime=true"
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
