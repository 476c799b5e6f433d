package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

type App struct {
	// HTTP
	Port     string `envconfig:"PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Storage
	StoreDriver string `envconfig:"STORE_DRIVER" default:"memory"`
	DatabaseURL string `envconfig:"DATABASE_URL"`

	// Engine
	SchedulerInterval time.Duration `envconfig:"SCHEDULER_INTERVAL" default:"30s"`
	SchedulerEnabled  bool          `envconfig:"SCHEDULER_ENABLED" default:"true"`
	BidMaxRetries     int           `envconfig:"BID_MAX_RETRIES" default:"3"`
	EventBuffer       int           `envconfig:"EVENT_BUFFER" default:"256"`
	DeliveryTimeout   time.Duration `envconfig:"EVENT_DELIVERY_TIMEOUT" default:"5s"`

	// Realtime transports, each enabled when its URL is set
	RedisURL     string `envconfig:"REDIS_URL"`
	NATSURL      string `envconfig:"NATS_URL"`
	AMQPURL      string `envconfig:"AMQP_URL"`
	AMQPExchange string `envconfig:"AMQP_EXCHANGE" default:"auction.events"`

	// Presence is tracked per instance; an empty InstanceID gets a generated one
	InstanceID  string        `envconfig:"INSTANCE_ID"`
	PresenceTTL time.Duration `envconfig:"PRESENCE_TTL" default:"2m"`

	// Observability
	OTLPEndpoint   string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func Load(envFiles ...string) (App, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return App{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var c App
	if err := envconfig.Process("", &c); err != nil {
		return App{}, fmt.Errorf("process env: %w", err)
	}
	if err := c.Validate(); err != nil {
		return App{}, err
	}
	return c, nil
}

// Validate checks combinations envconfig tags cannot express
func (c App) Validate() error {
	switch c.StoreDriver {
	case DriverMemory:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("config: unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.SchedulerInterval <= 0 {
		return errors.New("config: SCHEDULER_INTERVAL must be positive")
	}
	if c.BidMaxRetries < 0 {
		return errors.New("config: BID_MAX_RETRIES must not be negative")
	}
	if c.EventBuffer <= 0 {
		return errors.New("config: EVENT_BUFFER must be positive")
	}
	if c.DeliveryTimeout <= 0 {
		return errors.New("config: EVENT_DELIVERY_TIMEOUT must be positive")
	}
	if c.PresenceTTL <= 0 {
		return errors.New("config: PRESENCE_TTL must be positive")
	}
	return nil
}

// Addr is the HTTP listen address
func (c App) Addr() string {
	return ":" + c.Port
}
