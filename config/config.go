// Package config loads and exposes application configuration (TOML).
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

// Default configuration values used when a field is missing in TOML.
const (
	DefaultConfigPath      = "config.toml"
	DefaultHTTPAddr        = ":8080"
	DefaultMaxUploadBytes  = 5 << 20
	DefaultMongoURI        = "mongodb://127.0.0.1:27017"
	DefaultMongoDatabase   = "accounts"
	DefaultMongoCollection = "users"
	DefaultMongoTimeout    = 10
	DefaultPGHost          = "127.0.0.1"
	DefaultPGPort          = 5432
	DefaultPGUser          = "postgres"
	DefaultPGDatabase      = "accounts"
	DefaultPGSSLMode       = "disable"
	DefaultAssetRoot       = "uploads"
	DefaultPublicPrefix    = "/uploads"
)

const (
	StoreMemory   = "memory"
	StoreMongo    = "mongo"
	StorePostgres = "postgres"

	AssetsDisk = "disk"
	AssetsS3   = "s3"
)

// Config is the root application configuration loaded from TOML.
type Config struct {
	Log      LogConfig      `toml:"log"`
	Server   ServerConfig   `toml:"server"`
	Store    StoreConfig    `toml:"store"`
	Mongo    MongoConfig    `toml:"mongo"`
	Postgres PostgresConfig `toml:"postgres"`
	Assets   AssetsConfig   `toml:"assets"`
	S3       S3Config       `toml:"s3"`
	Auth     AuthConfig     `toml:"auth"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr           string `toml:"addr"`
	MaxUploadBytes int64  `toml:"max_upload_bytes"`
}

// StoreConfig selects the account record backend: memory, mongo or postgres.
type StoreConfig struct {
	Driver string `toml:"driver"`
}

type MongoConfig struct {
	URI            string `toml:"uri"`
	Database       string `toml:"database"`
	Collection     string `toml:"collection"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

func (c MongoConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
	// DSN overrides the fields above when set.
	DSN string `toml:"dsn"`
}

// ConnString returns the connection URL for the pgx driver.
func (c PostgresConfig) ConnString() string {
	if c.DSN != "" {
		return c.DSN
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.Database,
	}
	q := u.Query()
	q.Set("sslmode", c.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

type AssetsConfig struct {
	Driver            string   `toml:"driver"`
	Root              string   `toml:"root"`
	PublicPrefix      string   `toml:"public_prefix"`
	Naming            string   `toml:"naming"`
	MaxBytes          int64    `toml:"max_bytes"`
	AllowedExtensions []string `toml:"allowed_extensions"`
}

type S3Config struct {
	Bucket          string `toml:"bucket"`
	Region          string `toml:"region"`
	Endpoint        string `toml:"endpoint"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	PublicBaseURL   string `toml:"public_base_url"`
	UsePathStyle    bool   `toml:"use_path_style"`
}

type AuthConfig struct {
	HashCost          int  `toml:"hash_cost"`
	RequireProfilePic bool `toml:"require_profile_pic"`
}

func defaults() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr:           DefaultHTTPAddr,
			MaxUploadBytes: DefaultMaxUploadBytes,
		},
		Store: StoreConfig{
			Driver: StoreMemory,
		},
		Mongo: MongoConfig{
			URI:            DefaultMongoURI,
			Database:       DefaultMongoDatabase,
			Collection:     DefaultMongoCollection,
			TimeoutSeconds: DefaultMongoTimeout,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Assets: AssetsConfig{
			Driver:       AssetsDisk,
			Root:         DefaultAssetRoot,
			PublicPrefix: DefaultPublicPrefix,
			Naming:       "xid",
			MaxBytes:     DefaultMaxUploadBytes,
		},
		Auth: AuthConfig{
			HashCost:          bcrypt.DefaultCost,
			RequireProfilePic: true,
		},
	}
}

// Load reads the TOML file at path, applies defaults for missing fields and
// then overrides from the environment (a .env file in the working directory
// is loaded first if present).
func Load(path string) (Config, error) {
	cfg := defaults()

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, err
	}

	_ = godotenv.Load()
	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("MONGO_URI"); v != "" {
		cfg.Mongo.URI = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv("S3_ACCESS_KEY_ID"); v != "" {
		cfg.S3.AccessKeyID = v
	}
	if v := os.Getenv("S3_SECRET_ACCESS_KEY"); v != "" {
		cfg.S3.SecretAccessKey = v
	}
}

func (c Config) Validate() error {
	switch c.Store.Driver {
	case StoreMemory, StoreMongo, StorePostgres:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	switch c.Assets.Driver {
	case AssetsDisk:
	case AssetsS3:
		if c.S3.Bucket == "" {
			return errors.New("s3.bucket is required for the s3 asset driver")
		}
	default:
		return fmt.Errorf("unknown assets driver %q", c.Assets.Driver)
	}

	if c.Server.MaxUploadBytes < c.Assets.MaxBytes {
		return fmt.Errorf("server.max_upload_bytes (%d) must be at least assets.max_bytes (%d)", c.Server.MaxUploadBytes, c.Assets.MaxBytes)
	}

	if c.Auth.HashCost < bcrypt.MinCost || c.Auth.HashCost > bcrypt.MaxCost {
		return fmt.Errorf("auth.hash_cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	return nil
}
