package config

import (
	"fmt"
	"os"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// fileConfig is the TOML layout of a config file. Durations are given in
// milliseconds.
type fileConfig struct {
	PubSubSystem string `toml:"pubsub_system"`

	NATS struct {
		URL              string `toml:"url"`
		CredsFile        string `toml:"creds_file"`
		CAFile           string `toml:"ca_file"`
		DevMode          bool   `toml:"dev_mode"`
		ConnectTimeoutMS int    `toml:"connect_timeout_ms"`
		ClientName       string `toml:"client_name"`
	} `toml:"nats"`

	Kafka struct {
		Brokers []string `toml:"brokers"`
	} `toml:"kafka"`

	RabbitMQ struct {
		URL string `toml:"url"`
	} `toml:"rabbitmq"`

	HTTP struct {
		ServerAddress string `toml:"server_address"`
		PublisherURL  string `toml:"publisher_url"`
	} `toml:"http"`

	SQLite struct {
		File string `toml:"file"`
	} `toml:"sqlite"`

	Postgres struct {
		URL string `toml:"url"`
	} `toml:"postgres"`

	AWS struct {
		Region          string `toml:"region"`
		AccountID       string `toml:"account_id"`
		AccessKeyID     string `toml:"access_key_id"`
		SecretAccessKey string `toml:"secret_access_key"`
		Endpoint        string `toml:"endpoint"`
	} `toml:"aws"`

	Supplier struct {
		PoolSize int `toml:"pool_size"`
	} `toml:"supplier"`

	Shutdown struct {
		DrainTimeoutMS int `toml:"drain_timeout_ms"`
	} `toml:"shutdown"`

	Metrics struct {
		Enabled bool `toml:"enabled"`
		Port    int  `toml:"port"`
	} `toml:"metrics"`

	Health struct {
		Port               int      `toml:"port"`
		CORSAllowedOrigins []string `toml:"cors_allowed_origins"`
	} `toml:"health"`

	Schema struct {
		Enabled   bool   `toml:"enabled"`
		URL       string `toml:"registry_url"`
		TimeoutMS int    `toml:"timeout_ms"`
	} `toml:"schema"`

	Manifest struct {
		File string `toml:"file"`
	} `toml:"manifest"`
}

// LoadFile reads a TOML config file, applies defaults and validates it.
func LoadFile(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(b)
}

// Parse decodes TOML config bytes, applies defaults and validates the result.
func Parse(b []byte) (Config, error) {
	var fc fileConfig
	if err := toml.Unmarshal(b, &fc); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg := fc.config().WithDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (fc fileConfig) config() Config {
	return Config{
		PubSubSystem:            fc.PubSubSystem,
		NATSURL:                 fc.NATS.URL,
		NATSCredsFile:           fc.NATS.CredsFile,
		NATSCAFile:              fc.NATS.CAFile,
		NATSDevMode:             fc.NATS.DevMode,
		NATSConnectTimeout:      millis(fc.NATS.ConnectTimeoutMS),
		NATSClientName:          fc.NATS.ClientName,
		KafkaBrokers:            fc.Kafka.Brokers,
		RabbitMQURL:             fc.RabbitMQ.URL,
		HTTPServerAddress:       fc.HTTP.ServerAddress,
		HTTPPublisherURL:        fc.HTTP.PublisherURL,
		SQLiteFile:              fc.SQLite.File,
		PostgresURL:             fc.Postgres.URL,
		AWSRegion:               fc.AWS.Region,
		AWSAccountID:            fc.AWS.AccountID,
		AWSAccessKeyID:          fc.AWS.AccessKeyID,
		AWSSecretAccessKey:      fc.AWS.SecretAccessKey,
		AWSEndpoint:             fc.AWS.Endpoint,
		SupplierPoolSize:        fc.Supplier.PoolSize,
		DrainTimeout:            millis(fc.Shutdown.DrainTimeoutMS),
		MetricsEnabled:          fc.Metrics.Enabled,
		MetricsPort:             fc.Metrics.Port,
		HealthPort:              fc.Health.Port,
		CORSAllowedOrigins:      fc.Health.CORSAllowedOrigins,
		SchemaValidationEnabled: fc.Schema.Enabled,
		SchemaRegistryURL:       fc.Schema.URL,
		SchemaRegistryTimeout:   millis(fc.Schema.TimeoutMS),
		ManifestFile:            fc.Manifest.File,
	}
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
