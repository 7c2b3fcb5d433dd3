// server/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// --- Sub-structs, mirroring the YAML layout ---

type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	Mode           string   `mapstructure:"mode"`
	AllowedOrigins []string `mapstructure:"allowedOrigins"`
}

type LogConfig struct {
	Mode  string `mapstructure:"mode"`
	Level string `mapstructure:"level"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	Seed   bool   `mapstructure:"seed"`
}

type MongoConfig struct {
	URI    string `mapstructure:"uri"`
	DBName string `mapstructure:"dbName"`
}

type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type JWTConfig struct {
	Secret     string `mapstructure:"secret"`
	Expiration string `mapstructure:"expiration"`
}

// TTL parses Expiration, falling back to 24h.
func (c JWTConfig) TTL() time.Duration {
	d, err := time.ParseDuration(c.Expiration)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

type FabricConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	ChannelName       string `mapstructure:"channelName"`
	ChaincodeName     string `mapstructure:"chaincodeName"`
	OrgName           string `mapstructure:"orgName"`
	MSPID             string `mapstructure:"mspID"`
	UserName          string `mapstructure:"userName"`
	ConnectionProfile string `mapstructure:"connectionProfile"`
	UserCertPath      string `mapstructure:"userCertPath"`
	UserKeyDir        string `mapstructure:"userKeyDir"`
	WalletPath        string `mapstructure:"walletPath"`
}

type S3Config struct {
	Bucket           string `mapstructure:"bucket"`
	Region           string `mapstructure:"region"`
	AccessKeyID      string `mapstructure:"accessKeyID"`
	SecretAccessKey  string `mapstructure:"secretAccessKey"`
	CloudFrontDomain string `mapstructure:"cloudFrontDomain"`
}

func (c S3Config) Enabled() bool { return c.Bucket != "" }

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

func (c KafkaConfig) Enabled() bool { return len(c.Brokers) > 0 && c.Topic != "" }

type OtelConfig struct {
	ServiceName string  `mapstructure:"serviceName"`
	Endpoint    string  `mapstructure:"endpoint"`
	Insecure    bool    `mapstructure:"insecure"`
	SampleRatio float64 `mapstructure:"sampleRatio"`
	Stdout      bool    `mapstructure:"stdout"`
}

type AllocationConfig struct {
	CompletionPolicy string `mapstructure:"completionPolicy"`
}

// --- Main Config struct ---

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Store      StoreConfig      `mapstructure:"store"`
	Mongo      MongoConfig      `mapstructure:"mongo"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
	SQLite     SQLiteConfig     `mapstructure:"sqlite"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	Fabric     FabricConfig     `mapstructure:"fabric"`
	S3         S3Config         `mapstructure:"s3"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Otel       OtelConfig       `mapstructure:"otel"`
	Allocation AllocationConfig `mapstructure:"allocation"`
}

var envBindings = map[string]string{
	"server.port":                 "SERVER_PORT",
	"server.mode":                 "GIN_MODE",
	"server.allowedOrigins":       "ALLOWED_ORIGINS",
	"log.mode":                    "LOG_MODE",
	"log.level":                   "LOG_LEVEL",
	"store.driver":                "STORE_DRIVER",
	"store.seed":                  "STORE_SEED",
	"mongo.uri":                   "MONGO_URI",
	"mongo.dbName":                "MONGO_DBNAME",
	"postgres.dsn":                "POSTGRES_DSN",
	"sqlite.path":                 "SQLITE_PATH",
	"jwt.secret":                  "JWT_SECRET",
	"jwt.expiration":              "JWT_EXPIRATION",
	"fabric.enabled":              "FABRIC_ENABLED",
	"fabric.connectionProfile":    "FABRIC_CONNECTION_PROFILE",
	"fabric.walletPath":           "FABRIC_WALLET_PATH",
	"s3.bucket":                   "S3_BUCKET",
	"s3.region":                   "S3_REGION",
	"s3.accessKeyID":              "S3_ACCESS_KEY_ID",
	"s3.secretAccessKey":          "S3_SECRET_ACCESS_KEY",
	"s3.cloudFrontDomain":         "S3_CLOUDFRONT_DOMAIN",
	"kafka.brokers":               "KAFKA_BROKERS",
	"kafka.topic":                 "KAFKA_TOPIC",
	"otel.serviceName":            "OTEL_SERVICE_NAME",
	"otel.endpoint":               "OTEL_EXPORTER_OTLP_ENDPOINT",
	"otel.insecure":               "OTEL_EXPORTER_OTLP_INSECURE",
	"otel.sampleRatio":            "OTEL_SAMPLE_RATIO",
	"otel.stdout":                 "OTEL_STDOUT",
	"allocation.completionPolicy": "ALLOCATION_COMPLETION_POLICY",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.allowedOrigins", []string{"http://localhost:3000"})
	v.SetDefault("log.mode", "dev")
	v.SetDefault("log.level", "info")
	v.SetDefault("store.driver", "mongo")
	v.SetDefault("mongo.dbName", "upcycle")
	v.SetDefault("sqlite.path", "upcycle.db")
	v.SetDefault("jwt.expiration", "24h")
	v.SetDefault("fabric.walletPath", "wallet")
	v.SetDefault("kafka.topic", "upcycle.requests")
	v.SetDefault("otel.serviceName", "upcycle-api-server")
	v.SetDefault("otel.sampleRatio", 1.0)
	v.SetDefault("allocation.completionPolicy", "retain")
}

// LoadConfig reads config.yaml from path (optional), a .env file (optional)
// and the environment, in increasing order of precedence.
func LoadConfig(path string) (config Config, err error) {
	if err = godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return config, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	setDefaults(v)

	// Explicit bindings: "mongo.uri" maps to MONGO_URI and so on.
	for key, env := range envBindings {
		if err = v.BindEnv(key, env); err != nil {
			return config, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	// A missing config.yaml is fine; everything can come from the environment.
	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return config, fmt.Errorf("read config: %w", err)
		}
	}

	if err = v.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("decode config: %w", err)
	}
	config.Server.AllowedOrigins = splitList(config.Server.AllowedOrigins)
	config.Kafka.Brokers = splitList(config.Kafka.Brokers)

	return config, config.Validate()
}

// splitList accepts both YAML lists and comma-separated env values.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func (c Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case "mongo":
		if c.Mongo.URI == "" {
			errs = append(errs, errors.New("mongo.uri is required for the mongo store"))
		}
	case "postgres":
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("postgres.dsn is required for the postgres store"))
		}
	case "sqlite":
		if c.SQLite.Path == "" {
			errs = append(errs, errors.New("sqlite.path is required for the sqlite store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("jwt.secret is required"))
	}
	switch c.Allocation.CompletionPolicy {
	case "retain", "transfer":
	default:
		errs = append(errs, fmt.Errorf("unknown allocation.completionPolicy %q", c.Allocation.CompletionPolicy))
	}
	if c.Fabric.Enabled && c.Fabric.ConnectionProfile == "" {
		errs = append(errs, errors.New("fabric.connectionProfile is required when fabric is enabled"))
	}
	return errors.Join(errs...)
}
