package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Server  ServerConfig
	Store   StoreConfig
	Mongo   MongoConfig
	Redis   RedisConfig
	JWT     JWTConfig
	Admin   AdminConfig
	Scylla  ScyllaConfig
	Elastic ElasticConfig
	MinIO   MinIOConfig
	SMTP    SMTPConfig
	Orders  OrdersConfig
	Jobs    JobsConfig
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
	CookieSecure   bool
	// Requêtes par seconde et rafale autorisées par IP cliente.
	RateLimit float64
	RateBurst int
}

type StoreConfig struct {
	Driver string // "mongo" ou "memory"
}

type MongoConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

type AdminConfig struct {
	Username string
	Password string
}

type ScyllaConfig struct {
	Hosts    []string
	Keyspace string
	Username string
	Password string
	Timeout  time.Duration
}

type ElasticConfig struct {
	URL      string
	Username string
	Password string
	Index    string
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	NotifyTo string
}

type OrdersConfig struct {
	FreeTransitions bool
}

type JobsConfig struct {
	CartSweepSpec string
	CartTTL       time.Duration
}

// Load charge le .env s'il existe puis construit la configuration à partir
// des variables d'environnement.
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		logrus.Info("⚠️  Aucun fichier .env trouvé, on continue avec les variables d'environnement du système")
	} else {
		logrus.Info("✅ Fichier .env chargé avec succès")
	}

	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv lit l'environnement sans toucher au fichier .env.
func FromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "3500"),
			Env:            getEnv("APP_ENV", "development"),
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: getEnvAsList("CORS_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
			CookieSecure:   getEnvAsBool("COOKIE_SECURE", false),
			RateLimit:      getEnvAsFloat("RATE_LIMIT_RPS", 20),
			RateBurst:      getEnvAsInt("RATE_LIMIT_BURST", 40),
		},
		Store: StoreConfig{
			Driver: getEnv("STORE_DRIVER", "mongo"),
		},
		Mongo: MongoConfig{
			URI:      getEnv("DATABASE_URI", "mongodb://localhost:27017/?replicaSet=rs0"),
			Database: getEnv("DATABASE_NAME", "storefront"),
			Timeout:  getEnvAsDuration("DATABASE_TIMEOUT", 10*time.Second),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_HOST", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			AccessSecret:  getEnv("ACCESS_TOKEN_SECRET", ""),
			RefreshSecret: getEnv("REFRESH_TOKEN_SECRET", ""),
			AccessTTL:     getEnvAsDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
			RefreshTTL:    getEnvAsDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		},
		Admin: AdminConfig{
			Username: getEnv("ADMIN_USERNAME", "admin"),
			Password: getEnv("ADMIN_PASSWORD", ""),
		},
		Scylla: ScyllaConfig{
			Hosts:    getEnvAsList("SCYLLA_HOSTS", nil),
			Keyspace: getEnv("SCYLLA_AUDIT_KEYSPACE", "storefront_audit"),
			Username: getEnv("SCYLLA_AUDIT_ROLE", ""),
			Password: getEnv("SCYLLA_AUDIT_PASSWORD", ""),
			Timeout:  getEnvAsDuration("SCYLLA_TIMEOUT", 5*time.Second),
		},
		Elastic: ElasticConfig{
			URL:      getEnv("ELASTIC_URL", ""),
			Username: getEnv("ELASTIC_USER", ""),
			Password: getEnv("ELASTIC_PASSWORD", ""),
			Index:    getEnv("ELASTIC_PRODUCTS_INDEX", "products"),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", "product-images"),
			UseSSL:    getEnvAsBool("MINIO_USE_SSL", false),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", "noreply@localhost"),
			NotifyTo: getEnv("SHOP_NOTIFY_EMAIL", ""),
		},
		Orders: OrdersConfig{
			FreeTransitions: getEnvAsBool("ORDERS_FREE_TRANSITIONS", false),
		},
		Jobs: JobsConfig{
			CartSweepSpec: getEnv("JOBS_CART_SWEEP_SPEC", "@daily"),
			CartTTL:       getEnvAsDuration("CART_TTL", 30*24*time.Hour),
		},
	}
}

func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Validate vérifie la cohérence de la configuration. Hors production, les
// secrets JWT manquants sont remplacés par des valeurs de développement.
func (c *Config) Validate() error {
	if c.JWT.AccessSecret == "" || c.JWT.RefreshSecret == "" {
		if c.IsProduction() {
			return errors.New("ACCESS_TOKEN_SECRET et REFRESH_TOKEN_SECRET sont obligatoires en production")
		}
		logrus.Warn("⚠️  Secrets JWT absents : utilisation des secrets de développement")
		if c.JWT.AccessSecret == "" {
			c.JWT.AccessSecret = "dev_access_secret_change_me"
		}
		if c.JWT.RefreshSecret == "" {
			c.JWT.RefreshSecret = "dev_refresh_secret_change_me"
		}
	}
	if c.JWT.AccessSecret == c.JWT.RefreshSecret {
		return errors.New("les secrets access et refresh doivent être différents")
	}
	if c.JWT.AccessTTL <= 0 || c.JWT.AccessTTL >= c.JWT.RefreshTTL {
		return errors.New("ACCESS_TOKEN_TTL doit être positif et inférieur à REFRESH_TOKEN_TTL")
	}
	switch c.Store.Driver {
	case "mongo", "memory":
	default:
		return errors.New("STORE_DRIVER doit valoir 'mongo' ou 'memory'")
	}
	if c.Jobs.CartTTL <= 0 {
		return errors.New("CART_TTL doit être positif")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	strValue := strings.TrimSpace(getEnv(key, ""))
	if strValue == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(strValue, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
