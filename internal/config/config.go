package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type ServerConfig struct {
	Port        string
	Env         string
	CORSOrigins []string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type ScyllaConfig struct {
	Hosts    []string
	Keyspace string
	Username string
	Password string
	Timeout  time.Duration
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type SMTPConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	AdminEmail string
}

type LedgerConfig struct {
	MaxAttempts    int
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	RetentionDays  int
	SweepLimit     int
	SweepSchedule  string
	CheckoutLimit  int
	CheckoutWindow time.Duration
}

type Config struct {
	ServiceName         string
	StoreDriver         string // memory | redis
	Server              ServerConfig
	Redis               RedisConfig
	Scylla              ScyllaConfig
	MinIO               MinIOConfig
	SMTP                SMTPConfig
	Ledger              LedgerConfig
	JWTSecret           string
	StripeWebhookSecret string
	LogLevel            string
}

// Load charge le .env s'il existe puis lit l'environnement
func Load(serviceName string) *Config {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("⚠️  Aucun fichier .env trouvé — on continue avec les variables d'environnement du système")
	} else {
		log.Println("✅ Fichier .env chargé avec succès")
	}
	return FromEnv(serviceName)
}

// FromEnv construit la configuration à partir des seules variables d'environnement
func FromEnv(serviceName string) *Config {
	return &Config{
		ServiceName: serviceName,
		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", "redis")),
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Env:         getEnv("APP_ENV", "development"),
			CORSOrigins: getEnvAsList("CORS_ORIGINS", []string{"http://localhost:5173"}),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_HOST", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Scylla: ScyllaConfig{
			Hosts:    getEnvAsList("SCYLLA_HOSTS", nil),
			Keyspace: getEnv("SCYLLA_KS_ORDERS_KEYSPACE", ""),
			Username: getEnv("SCYLLA_KS_ORDERS_ROLE", ""),
			Password: getEnv("SCYLLA_KS_ORDERS_PASSWORD", ""),
			Timeout:  getEnvAsDuration("SCYLLA_TIMEOUT", 5*time.Second),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", "orders-archive"),
			UseSSL:    getEnvAsBool("MINIO_USE_SSL", false),
		},
		SMTP: SMTPConfig{
			Host:       getEnv("SMTP_HOST", ""),
			Port:       getEnvAsInt("SMTP_PORT", 587),
			Username:   getEnv("SMTP_USERNAME", ""),
			Password:   getEnv("SMTP_PASSWORD", ""),
			From:       getEnv("SMTP_FROM", "noreply@example.com"),
			AdminEmail: getEnv("ADMIN_EMAIL", ""),
		},
		Ledger: LedgerConfig{
			MaxAttempts:    getEnvAsInt("LEDGER_MAX_ATTEMPTS", 5),
			BackoffBase:    getEnvAsDuration("LEDGER_BACKOFF_BASE", 10*time.Millisecond),
			BackoffMax:     getEnvAsDuration("LEDGER_BACKOFF_MAX", 200*time.Millisecond),
			RetentionDays:  getEnvAsInt("ORDER_RETENTION_DAYS", 30),
			SweepLimit:     getEnvAsInt("ORDER_SWEEP_LIMIT", 100),
			SweepSchedule:  getEnv("ORDER_SWEEP_SCHEDULE", "0 2 * * *"),
			CheckoutLimit:  getEnvAsInt("CHECKOUT_MAX_REQUESTS", 10),
			CheckoutWindow: getEnvAsDuration("CHECKOUT_WINDOW", time.Minute),
		},
		JWTSecret:           getEnv("JWT_SECRET", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
	}
}

// Fields résume la configuration pour les logs, sans secret
func (c *Config) Fields() []zap.Field {
	return []zap.Field{
		zap.String("service", c.ServiceName),
		zap.String("environment", c.Server.Env),
		zap.String("store_driver", c.StoreDriver),
		zap.String("port", c.Server.Port),
		zap.String("redis", c.Redis.Addr),
		zap.Strings("scylla_hosts", c.Scylla.Hosts),
		zap.Bool("minio", c.MinIO.Endpoint != ""),
		zap.Bool("smtp", c.SMTP.Host != ""),
		zap.Int("ledger_max_attempts", c.Ledger.MaxAttempts),
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

// liste séparée par des virgules, entrées vides ignorées
func getEnvAsList(key string, defaultValue []string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
