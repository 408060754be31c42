package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const defaultConfigPath = "config/config.yaml"

type ServerConfig struct {
	Port            int           `yaml:"port"`
	Env             string        `yaml:"env"`
	UpstreamTimeout time.Duration `yaml:"upstream_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

type DatabaseConfig struct {
	Driver        string `yaml:"driver"` // postgres | mongo | memory
	DSN           string `yaml:"url"`
	AutoMigrate   bool   `yaml:"auto_migrate"`
	MongoURI      string `yaml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database"`
}

type AuthConfig struct {
	JWTSecret  string        `yaml:"jwt_secret"`
	TokenTTL   time.Duration `yaml:"token_ttl"`
	CodeTTL    time.Duration `yaml:"code_ttl"`
	BcryptCost int           `yaml:"bcrypt_cost"`
}

type EmailConfig struct {
	SMTPHost     string `yaml:"smtp_host"`
	SMTPPort     int    `yaml:"smtp_port"`
	SMTPUser     string `yaml:"smtp_user"`
	SMTPPassword string `yaml:"smtp_password"`
	FromEmail    string `yaml:"from_email"`
	DryRun       bool   `yaml:"dry_run"`
}

type FilesConfig struct {
	Driver         string `yaml:"driver"` // local | s3
	RootDir        string `yaml:"root_dir"`
	PublicBaseURL  string `yaml:"public_base_url"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
}

type S3Config struct {
	Bucket        string        `yaml:"bucket"`
	Region        string        `yaml:"region"`
	Endpoint      string        `yaml:"endpoint"`
	AccessKey     string        `yaml:"access_key"`
	SecretKey     string        `yaml:"secret_key"`
	PublicBaseURL string        `yaml:"public_base_url"`
	URLTTL        time.Duration `yaml:"url_ttl"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
}

type KafkaConfig struct {
	Brokers  []string `yaml:"brokers"`
	Topic    string   `yaml:"topic"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
}

type TelegramConfig struct {
	BotToken    string `yaml:"bot_token"`
	AdminChatID int64  `yaml:"admin_chat_id"`
}

type AdminConfig struct {
	APIKey string `yaml:"api_key"`
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Email    EmailConfig    `yaml:"email"`
	Files    FilesConfig    `yaml:"files"`
	S3       S3Config       `yaml:"s3"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Telegram TelegramConfig `yaml:"telegram"`
	Admin    AdminConfig    `yaml:"admin"`
}

// LoadConfig reads CONFIG_PATH (or config/config.yaml), then applies the
// process environment. A missing file is not an error: the service can be
// configured from the environment alone.
func LoadConfig() (*Config, error) {
	if os.Getenv("ENV") != "prod" {
		// .env is a development convenience
		_ = godotenv.Load()
	}
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = defaultConfigPath
	}
	return Load(path)
}

func Load(path string) (*Config, error) {
	var cfg Config

	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 5000
	}
	if c.Server.Env == "" {
		c.Server.Env = "development"
	}
	if c.Server.UpstreamTimeout <= 0 {
		c.Server.UpstreamTimeout = 10 * time.Second
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"*"}
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Database.MongoDatabase == "" {
		c.Database.MongoDatabase = "ballouchi"
	}
	if c.Auth.TokenTTL <= 0 {
		c.Auth.TokenTTL = time.Hour
	}
	if c.Auth.CodeTTL <= 0 {
		c.Auth.CodeTTL = 15 * time.Minute
	}
	if c.Email.SMTPHost == "" {
		c.Email.SMTPHost = "smtp.gmail.com"
	}
	if c.Email.SMTPPort == 0 {
		c.Email.SMTPPort = 587
	}
	if c.Email.FromEmail == "" {
		c.Email.FromEmail = c.Email.SMTPUser
	}
	if c.Files.Driver == "" {
		c.Files.Driver = "local"
	}
	if c.Files.RootDir == "" {
		c.Files.RootDir = "./files"
	}
	if c.Files.PublicBaseURL == "" {
		c.Files.PublicBaseURL = "/files"
	}
	if c.Files.MaxUploadBytes <= 0 {
		c.Files.MaxUploadBytes = 10 << 20
	}
	if c.S3.Region == "" {
		c.S3.Region = "us-east-1"
	}
	if c.S3.URLTTL <= 0 {
		c.S3.URLTTL = 24 * time.Hour
	}
	if c.Redis.LockTTL <= 0 {
		c.Redis.LockTTL = 30 * time.Second
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "user-events"
	}
}

// applyEnv maps the variables the original deployment used (PORT, JWT_SECRET,
// EMAIL_USER, EMAIL_PASS) plus the ones for the optional collaborators.
func (c *Config) applyEnv() {
	setInt(&c.Server.Port, "PORT")
	setString(&c.Server.Env, "ENV")
	setString(&c.Auth.JWTSecret, "JWT_SECRET")
	setString(&c.Email.SMTPUser, "EMAIL_USER")
	setString(&c.Email.SMTPPassword, "EMAIL_PASS")
	setString(&c.Email.SMTPHost, "SMTP_HOST")
	setInt(&c.Email.SMTPPort, "SMTP_PORT")
	setString(&c.Database.Driver, "DATABASE_DRIVER")
	setString(&c.Database.DSN, "DATABASE_URL")
	setString(&c.Database.MongoURI, "MONGO_URI")
	setString(&c.Files.Driver, "FILES_DRIVER")
	setString(&c.S3.Bucket, "S3_BUCKET")
	setString(&c.S3.Endpoint, "S3_ENDPOINT")
	setString(&c.S3.AccessKey, "S3_ACCESS_KEY")
	setString(&c.S3.SecretKey, "S3_SECRET_KEY")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	setString(&c.Admin.APIKey, "ADMIN_API_KEY")
	if v := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := strings.TrimSpace(os.Getenv("EMAIL_DRY_RUN")); v != "" {
		c.Email.DryRun, _ = strconv.ParseBool(v)
	}
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return errors.New("config: auth.jwt_secret (JWT_SECRET) is required")
	}
	switch c.Database.Driver {
	case "postgres":
		if c.Database.DSN == "" {
			return errors.New("config: database.url (DATABASE_URL) is required for postgres")
		}
	case "mongo":
		if c.Database.MongoURI == "" {
			return errors.New("config: database.mongo_uri (MONGO_URI) is required for mongo")
		}
	case "memory":
	default:
		return fmt.Errorf("config: unknown database.driver %q", c.Database.Driver)
	}
	switch c.Files.Driver {
	case "local":
	case "s3":
		if c.S3.Bucket == "" {
			return errors.New("config: s3.bucket is required when files.driver is s3")
		}
	default:
		return fmt.Errorf("config: unknown files.driver %q", c.Files.Driver)
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Server.Env == "prod" || c.Server.Env == "production"
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
