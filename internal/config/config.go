package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config is the process configuration, read once at startup.
type Config struct {
	Port string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	DBTimezone string

	JWTSecret     string
	TokenTTLHours int
	CORSOrigins   []string

	// Firebase is optional; without credentials the static identity provider
	// and the Postgres realtime store are used.
	FirebaseCredentials string
	FirebaseProjectID   string
	FirebaseRTDBURL     string
	StorageBucket       string

	DefaultCountryCode string
	BatchSize          int

	LogFile  string
	LogLevel string
}

// Load reads .env (if present) and the environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, relying on env vars")
	}

	return &Config{
		Port: getEnv("PORT", "8080"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "password"),
		DBName:     getEnv("DB_NAME", "school_bus"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),
		DBTimezone: getEnv("DB_TIMEZONE", "UTC"),

		JWTSecret:     getEnv("JWT_SECRET", "supersecret"),
		TokenTTLHours: getEnvInt("TOKEN_TTL_HOURS", 72),
		CORSOrigins:   getEnvList("CORS_ORIGINS"),

		FirebaseCredentials: getEnv("FIREBASE_CREDENTIALS", ""),
		FirebaseProjectID:   getEnv("FIREBASE_PROJECT_ID", ""),
		FirebaseRTDBURL:     getEnv("FIREBASE_RTDB_URL", ""),
		StorageBucket:       getEnv("STORAGE_BUCKET", ""),

		DefaultCountryCode: getEnv("DEFAULT_COUNTRY_CODE", "+91"),
		BatchSize:          getEnvInt("BATCH_SIZE", 450),

		LogFile:  getEnv("LOG_FILE", "./logs/app.log"),
		LogLevel: getEnv("LOG_LEVEL", "debug"),
	}
}

// FirebaseEnabled reports whether Firebase credentials were supplied.
func (c *Config) FirebaseEnabled() bool {
	return strings.TrimSpace(c.FirebaseCredentials) != ""
}

// getEnv reads an environment variable or returns the provided default
func getEnv(key, defaultValue string) string {
	if v, exists := os.LookupEnv(key); exists {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n <= 0 {
		logrus.WithField("key", key).Warnf("Invalid integer %q, using %d", v, defaultValue)
		return defaultValue
	}
	return n
}

// getEnvList splits a comma separated variable, dropping empty items.
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
