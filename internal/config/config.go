package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Kafka        KafkaConfig
	Email        EmailConfig
	Auth         AuthConfig
	Certificates CertificateConfig
	Storage      StorageConfig
	Vouchers     VoucherConfig
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
	AutoMigrate  bool
	ConnRetries  int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Enabled  bool
}

type KafkaConfig struct {
	Brokers []string
	GroupID string
	Topics  TopicConfig
	Enabled bool
}

type TopicConfig struct {
	VoucherRedeemed string
	VoucherDispatch string
}

// EmailConfig is handed to the SMTP sender at construction.
type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	UseTLS       bool
	From         string
	Timeout      time.Duration
}

type AuthConfig struct {
	OIDCIssuer string
	// JWTSecret enables HS256 bearer tokens instead of OIDC, for local setups.
	JWTSecret string
	Disabled  bool
}

type CertificateConfig struct {
	FontPath string
}

type StorageConfig struct {
	// Backend is "local" or "s3".
	Backend   string
	LocalDir  string
	S3Bucket  string
	S3Region  string
	S3Prefix  string
	AccessKey string
	SecretKey string
	Endpoint  string
}

type VoucherConfig struct {
	IssuanceLockTTL time.Duration
	QRSize          int
}

func Load() *Config {
	password := strings.ReplaceAll(getEnv("SMTP_PASSWORD", ""), " ", "")
	username := getEnv("SMTP_USERNAME", "")
	from := getEnv("DEFAULT_FROM_EMAIL", username)
	if from == "" {
		from = "noreply@attendance.local"
	}

	return &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", ":8084"),
			ReadTimeout:     15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Database: DatabaseConfig{
			DSN:          getEnv("POSTGRES_DSN", ""),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
			AutoMigrate:  getEnvBool("DB_AUTO_MIGRATE", true),
			ConnRetries:  getEnvInt("DB_CONN_RETRIES", 5),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			Enabled:  getEnvBool("REDIS_ENABLED", true),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
			GroupID: getEnv("KAFKA_GROUP_ID", "attendance-dispatch"),
			Enabled: getEnvBool("KAFKA_ENABLED", false),
			Topics: TopicConfig{
				VoucherRedeemed: getEnv("KAFKA_TOPIC_VOUCHER_REDEEMED", "attendance.voucher.redeemed"),
				VoucherDispatch: getEnv("KAFKA_TOPIC_VOUCHER_DISPATCH", "attendance.vouchers.dispatch"),
			},
		},
		Email: EmailConfig{
			SMTPHost:     getEnv("SMTP_HOST", "smtp.gmail.com"),
			SMTPPort:     getEnvInt("SMTP_PORT", 587),
			SMTPUsername: username,
			SMTPPassword: password,
			UseTLS:       getEnvBool("SMTP_USE_TLS", true),
			From:         from,
			Timeout:      time.Duration(getEnvInt("SMTP_TIMEOUT_SECONDS", 15)) * time.Second,
		},
		Auth: AuthConfig{
			OIDCIssuer: getEnv("OIDC_ISSUER", ""),
			JWTSecret:  getEnv("JWT_SECRET", ""),
			Disabled:   getEnvBool("SKIP_AUTH", false),
		},
		Certificates: CertificateConfig{
			FontPath: getEnv("CERTIFICATE_FONT_PATH", "./fonts/DejaVuSans-Bold.ttf"),
		},
		Storage: StorageConfig{
			Backend:   getEnv("TEMPLATE_STORAGE", "local"),
			LocalDir:  getEnv("TEMPLATE_DIR", "./media/certificate_templates"),
			S3Bucket:  getEnv("S3_BUCKET", ""),
			S3Region:  getEnv("S3_REGION", "us-east-1"),
			S3Prefix:  getEnv("S3_PREFIX", "certificate_templates/"),
			AccessKey: getEnv("S3_ACCESS_KEY", ""),
			SecretKey: getEnv("S3_SECRET_KEY", ""),
			Endpoint:  getEnv("S3_ENDPOINT", ""),
		},
		Vouchers: VoucherConfig{
			IssuanceLockTTL: time.Duration(getEnvInt("ISSUANCE_LOCK_TTL_SECONDS", 60)) * time.Second,
			QRSize:          getEnvInt("QR_SIZE", 256),
		},
	}
}

// Validate reports settings the API service cannot start without.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("POSTGRES_DSN not set")
	}
	if !c.Auth.Disabled && c.Auth.OIDCIssuer == "" && c.Auth.JWTSecret == "" {
		return fmt.Errorf("either OIDC_ISSUER or JWT_SECRET must be set (or SKIP_AUTH=true)")
	}
	if c.Storage.Backend == "s3" && c.Storage.S3Bucket == "" {
		return fmt.Errorf("S3_BUCKET not set for s3 template storage")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
