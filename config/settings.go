package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Settings is the process configuration, read once at startup and passed
// explicitly to the components that need it.
type Settings struct {
	DBDriver   string
	DBUser     string
	DBPassword string
	DBHost     string
	DBPort     string
	DBName     string
	SQLitePath string

	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration
	DBConnectAttempts int

	RedisAddress  string
	RedisPassword string
	CacheLifespan time.Duration
	LockTTL       time.Duration

	PubSubProjectId       string
	PubSubTopic           string
	PubSubCredentialsJSON string

	ApiPort     string
	LogLevel    string
	CorsOrigins []string
	// TrustUserHeader accepts X-User-Id without a session token. Local use only.
	TrustUserHeader bool

	RateLimitMaxRequests int64
	RateLimitWindow      time.Duration
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("DB_DRIVER", DriverMySQL)
	v.SetDefault("DB_PORT", "3306")
	v.SetDefault("SQLITE_PATH", "ledger.db")
	v.SetDefault("DB_MAX_OPEN_CONNS", 50)
	v.SetDefault("DB_MAX_IDLE_CONNS", 25)
	v.SetDefault("DB_CONN_MAX_LIFETIME_SECONDS", 300)
	v.SetDefault("DB_CONN_MAX_IDLE_TIME_SECONDS", 60)
	v.SetDefault("DB_CONNECT_ATTEMPTS", 0)
	v.SetDefault("CACHE_LIFESPAN", 1)
	v.SetDefault("LOCK_TTL_SECONDS", 10)
	v.SetDefault("API_PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ORIGINS", "*")
	v.SetDefault("TRUST_USER_HEADER", false)
	v.SetDefault("RATE_LIMIT_MAX_REQUESTS", 0)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 60)
	return v
}

// LoadSettings reads .env (if present) and the environment.
func LoadSettings() Settings {
	_ = godotenv.Load()
	return settingsFrom(newViper())
}

func settingsFrom(v *viper.Viper) Settings {
	projectId := v.GetString("PUBSUB_PROJECT_ID")
	if projectId == "" {
		projectId = v.GetString("GOOGLE_CLOUD_PROJECT")
	}
	return Settings{
		DBDriver:              strings.ToLower(strings.TrimSpace(v.GetString("DB_DRIVER"))),
		DBUser:                v.GetString("DB_USER"),
		DBPassword:            v.GetString("DB_PASSWORD"),
		DBHost:                v.GetString("DB_HOST"),
		DBPort:                v.GetString("DB_PORT"),
		DBName:                v.GetString("DB_NAME"),
		SQLitePath:            v.GetString("SQLITE_PATH"),
		DBMaxOpenConns:        v.GetInt("DB_MAX_OPEN_CONNS"),
		DBMaxIdleConns:        v.GetInt("DB_MAX_IDLE_CONNS"),
		DBConnMaxLifetime:     time.Duration(v.GetInt("DB_CONN_MAX_LIFETIME_SECONDS")) * time.Second,
		DBConnMaxIdleTime:     time.Duration(v.GetInt("DB_CONN_MAX_IDLE_TIME_SECONDS")) * time.Second,
		DBConnectAttempts:     v.GetInt("DB_CONNECT_ATTEMPTS"),
		RedisAddress:          v.GetString("REDIS_ADDRESS"),
		RedisPassword:         v.GetString("REDIS_PASSWORD"),
		CacheLifespan:         time.Duration(v.GetInt("CACHE_LIFESPAN")) * time.Hour,
		LockTTL:               time.Duration(v.GetInt("LOCK_TTL_SECONDS")) * time.Second,
		PubSubProjectId:       projectId,
		PubSubTopic:           v.GetString("PUBSUB_TOPIC"),
		PubSubCredentialsJSON: v.GetString("PUBSUB_CREDENTIALS_JSON"),
		ApiPort:               v.GetString("API_PORT"),
		LogLevel:              v.GetString("LOG_LEVEL"),
		CorsOrigins:           splitList(v.GetString("CORS_ORIGINS")),
		TrustUserHeader:       v.GetBool("TRUST_USER_HEADER"),
		RateLimitMaxRequests:  v.GetInt64("RATE_LIMIT_MAX_REQUESTS"),
		RateLimitWindow:       time.Duration(v.GetInt("RATE_LIMIT_WINDOW_SECONDS")) * time.Second,
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
