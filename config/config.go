package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	StorageMemory = "memory"
	StorageMySQL  = "mysql"
	StorageRedis  = "redis"
)

type Config struct {
	Mode              string `envconfig:"MODE" default:"debug"`
	ListenPort        int    `envconfig:"LISTEN" default:"7000"`
	BridgePort        int    `envconfig:"BRIDGE_LISTEN" default:"0"`
	MaxClient         int    `envconfig:"MAX_CLIENT" default:"1000"`
	Storage           string `envconfig:"STORAGE" default:"memory"`
	Database          string `envconfig:"MYSQL_DSN"`
	RedisAddress      string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword     string `envconfig:"REDIS_PASSWORD"`
	RedisDB           int    `envconfig:"REDIS_DB" default:"0"`
	NatsURL           string `envconfig:"NATS_URL"`
	TimeoutRequest    int    `envconfig:"TIMEOUT_REQUEST" default:"15"`
	TimeoutAck        int    `envconfig:"TIMEOUT_ACK" default:"4"`
	RequestAttempts   int    `envconfig:"REQUEST_ATTEMPTS" default:"5"`
	AckAttempts       int    `envconfig:"ACK_ATTEMPTS" default:"4"`
	Debug             int    `envconfig:"DEBUG_LOG" default:"0"`
	AuthSweepSchedule string `envconfig:"AUTH_SWEEP_SCHEDULE" default:"@daily"`
	AuthRetentionDays int    `envconfig:"AUTH_RETENTION_DAYS" default:"30"`
}

func NewParsedConfig() (Config, error) {
	_ = godotenv.Load(".env")
	cnf := Config{}
	if err := envconfig.Process("", &cnf); err != nil {
		return cnf, err
	}
	return cnf, cnf.Validate()
}

func (c Config) Validate() error {
	switch c.Storage {
	case StorageMemory, StorageRedis:
	case StorageMySQL:
		if c.Database == "" {
			return fmt.Errorf("config -> MYSQL_DSN is required when STORAGE=%s", StorageMySQL)
		}
	default:
		return fmt.Errorf("config -> unknown STORAGE %q", c.Storage)
	}
	if c.RequestAttempts < 1 || c.AckAttempts < 1 {
		return fmt.Errorf("config -> REQUEST_ATTEMPTS and ACK_ATTEMPTS must be at least 1")
	}
	if c.MaxClient < 1 {
		return fmt.Errorf("config -> MAX_CLIENT must be at least 1")
	}
	return nil
}

// LogLevel maps MODE to a logrus level name: "release" logs from info up, anything else from debug.
func (c Config) LogLevel() string {
	if c.Mode == "release" {
		return "info"
	}
	return "debug"
}

func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.TimeoutRequest) * time.Second
}

func (c Config) AckTimeout() time.Duration {
	return time.Duration(c.TimeoutAck) * time.Second
}
