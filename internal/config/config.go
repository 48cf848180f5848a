package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DriverMongo  = "mongo"
	DriverMemory = "memory"
	DriverRedis  = "redis"

	ImageStoreCloudinary = "cloudinary"
	ImageStoreMinio      = "minio"
	ImageStoreNone       = "none"
)

type CloudinaryConfig struct {
	Name      string `yaml:"name"`
	APIKey    string `yaml:"apiKey"`
	APISecret string `yaml:"apiSecret"`
}

type MinioConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	PublicURL string `yaml:"publicURL"`
	UseSSL    bool   `yaml:"useSSL"`
}

// Config is read from an optional YAML file (CONFIG_FILE) and then from the
// environment, which always wins.
type Config struct {
	Port        string `yaml:"port"`
	Environment string `yaml:"env"`
	LogLevel    string `yaml:"logLevel"`
	Host        string `yaml:"host"`
	// AllowedHost is the bare hostname for the production host check.
	AllowedHost string `yaml:"-"`

	MongoURI      string `yaml:"mongoURI"`
	MongoDatabase string `yaml:"mongoDatabase"`
	RedisURI      string `yaml:"redisURI"`
	PostgresURI   string `yaml:"postgresURI"`

	// The mongo changefeed needs a replica set. The mongo store runs on a
	// standalone server too, without transactional mark-read.
	StoreDriver      string `yaml:"storeDriver"`
	ChangefeedDriver string `yaml:"changefeedDriver"`

	FrontendURL    string   `yaml:"frontendURL"`
	AllowedOrigins []string `yaml:"allowedOrigins"`

	AdminKeyHash string `yaml:"adminKeyHash"`

	ImageStore string           `yaml:"imageStore"`
	Cloudinary CloudinaryConfig `yaml:"cloudinary"`
	Minio      MinioConfig      `yaml:"minio"`

	DashboardRefresh  time.Duration `yaml:"dashboardRefresh"`
	MessageRateLimit  int           `yaml:"messageRateLimit"`
	MessageRateWindow time.Duration `yaml:"messageRateWindow"`
}

func defaults() Config {
	return Config{
		Port:              "8080",
		Environment:       "development",
		LogLevel:          "info",
		Host:              "http://localhost:8080",
		MongoURI:          "mongodb://localhost:27017/bazaar",
		RedisURI:          "redis://localhost:6379/0",
		StoreDriver:       DriverMongo,
		ChangefeedDriver:  DriverMongo,
		FrontendURL:       "http://localhost:3000",
		ImageStore:        ImageStoreNone,
		DashboardRefresh:  30 * time.Second,
		MessageRateLimit:  30,
		MessageRateWindow: time.Minute,
	}
}

// Load builds the configuration and validates it.
func Load() (*Config, error) {
	cfg := defaults()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	cfg.Environment = strings.ToLower(strings.TrimSpace(cfg.Environment))
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	cfg.ChangefeedDriver = strings.ToLower(strings.TrimSpace(cfg.ChangefeedDriver))
	cfg.ImageStore = strings.ToLower(strings.TrimSpace(cfg.ImageStore))
	if cfg.IsProduction() {
		cfg.AllowedHost = hostname(cfg.Host)
	}
	cfg.AllowedOrigins = allowedOrigins(cfg.AllowedOrigins, cfg.FrontendURL, cfg.Host)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Port, "PORT")
	setString(&c.Environment, "ENV")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.Host, "HOST")
	setString(&c.MongoURI, "MONGO_URI")
	setString(&c.MongoURI, "MONGODB_URI")
	setString(&c.MongoDatabase, "MONGODB_DATABASE")
	setString(&c.RedisURI, "REDIS_URI")
	setString(&c.PostgresURI, "POSTGRES_URI")
	setString(&c.StoreDriver, "STORE_DRIVER")
	setString(&c.ChangefeedDriver, "CHANGEFEED_DRIVER")
	setString(&c.FrontendURL, "FRONTEND_URL")
	setString(&c.AdminKeyHash, "ADMIN_KEY_HASH")
	setString(&c.ImageStore, "IMAGE_STORE")
	setString(&c.Cloudinary.Name, "CLOUDINARY_CLOUD_NAME")
	setString(&c.Cloudinary.APIKey, "CLOUDINARY_API_KEY")
	setString(&c.Cloudinary.APISecret, "CLOUDINARY_API_SECRET")
	setString(&c.Minio.Endpoint, "MINIO_ENDPOINT")
	setString(&c.Minio.AccessKey, "MINIO_ACCESS_KEY")
	setString(&c.Minio.SecretKey, "MINIO_SECRET_KEY")
	setString(&c.Minio.Bucket, "MINIO_BUCKET")
	setString(&c.Minio.PublicURL, "MINIO_PUBLIC_URL")
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = parseOrigins(v)
	}

	var errs []error
	if v := os.Getenv("MINIO_USE_SSL"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: MINIO_USE_SSL: %w", err))
		}
		c.Minio.UseSSL = b
	}
	errs = append(errs,
		setDuration(&c.DashboardRefresh, "DASHBOARD_REFRESH"),
		setDuration(&c.MessageRateWindow, "MESSAGE_RATE_WINDOW"),
	)
	if v := os.Getenv("MESSAGE_RATE_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: MESSAGE_RATE_LIMIT: %w", err))
		}
		c.MessageRateLimit = n
	}
	return errors.Join(errs...)
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	var errs []error
	switch c.StoreDriver {
	case DriverMongo:
		if c.MongoURI == "" {
			errs = append(errs, errors.New("config: MONGODB_URI is required for the mongo store"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("config: unknown STORE_DRIVER %q", c.StoreDriver))
	}

	switch c.ChangefeedDriver {
	case DriverMongo:
		if c.StoreDriver != DriverMongo {
			errs = append(errs, errors.New("config: the mongo changefeed needs the mongo store on a replica set"))
		}
	case DriverRedis:
		if c.RedisURI == "" {
			errs = append(errs, errors.New("config: REDIS_URI is required for the redis changefeed"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("config: unknown CHANGEFEED_DRIVER %q", c.ChangefeedDriver))
	}

	switch c.ImageStore {
	case ImageStoreCloudinary:
		if c.Cloudinary.Name == "" || c.Cloudinary.APIKey == "" || c.Cloudinary.APISecret == "" {
			errs = append(errs, errors.New("config: CLOUDINARY_CLOUD_NAME, CLOUDINARY_API_KEY and CLOUDINARY_API_SECRET are required"))
		}
	case ImageStoreMinio:
		if c.Minio.Endpoint == "" || c.Minio.Bucket == "" || c.Minio.AccessKey == "" || c.Minio.SecretKey == "" {
			errs = append(errs, errors.New("config: MINIO_ENDPOINT, MINIO_BUCKET, MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required"))
		}
	case ImageStoreNone, "":
	default:
		errs = append(errs, fmt.Errorf("config: unknown IMAGE_STORE %q", c.ImageStore))
	}

	if c.MessageRateLimit < 0 {
		errs = append(errs, errors.New("config: MESSAGE_RATE_LIMIT must not be negative"))
	}
	if c.MessageRateLimit > 0 && c.MessageRateWindow < time.Millisecond {
		errs = append(errs, errors.New("config: MESSAGE_RATE_WINDOW must be at least 1ms"))
	}
	if c.DashboardRefresh <= 0 {
		errs = append(errs, errors.New("config: DASHBOARD_REFRESH must be positive"))
	}
	return errors.Join(errs...)
}

// IsProduction returns true when ENV is set to "production".
func (c *Config) IsProduction() bool {
	return strings.ToLower(strings.TrimSpace(c.Environment)) == "production"
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = d
	return nil
}

// hostname strips scheme, path and port from a HOST value.
func hostname(host string) string {
	for _, prefix := range []string{"https://", "http://"} {
		host = strings.TrimPrefix(host, prefix)
	}
	if idx := strings.Index(host, "/"); idx != -1 {
		host = host[:idx]
	}
	if idx := strings.Index(host, ":"); idx != -1 {
		host = host[:idx]
	}
	return strings.TrimSpace(host)
}

// allowedOrigins falls back to FRONTEND_URL. When HOST is a backend subdomain
// (api.example.com) the apex and www origins of its domain are added as well.
func allowedOrigins(configured []string, frontendURL, host string) []string {
	var out []string
	for _, o := range configured {
		if o = strings.TrimSpace(o); o != "" && !containsOrigin(out, o) {
			out = append(out, o)
		}
	}
	if len(out) == 0 && strings.TrimSpace(frontendURL) != "" {
		out = append(out, strings.TrimSpace(frontendURL))
	}

	h := hostname(host)
	if h != "" && h != "localhost" && h != "127.0.0.1" {
		if parts := strings.Split(h, "."); len(parts) > 2 {
			domain := strings.Join(parts[1:], ".")
			for _, origin := range []string{"https://" + domain, "https://www." + domain} {
				if !containsOrigin(out, origin) {
					out = append(out, origin)
				}
			}
		}
	}
	if len(out) == 0 {
		out = []string{"http://localhost:3000"}
	}
	return out
}

func parseOrigins(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func containsOrigin(list []string, o string) bool {
	o = strings.TrimSpace(strings.ToLower(o))
	for _, v := range list {
		if strings.TrimSpace(strings.ToLower(v)) == o {
			return true
		}
	}
	return false
}
