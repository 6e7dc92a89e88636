package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("BATCH_SIZE", "oops")
	t.Setenv("TOKEN_TTL_HOURS", "12")
	t.Setenv("FIREBASE_CREDENTIALS", "")
	t.Setenv("CORS_ORIGINS", "https://admin.example.com, ,http://localhost:3000")

	cfg := Load()
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, 450, cfg.BatchSize)
	assert.Equal(t, 12, cfg.TokenTTLHours)
	assert.False(t, cfg.FirebaseEnabled())
	assert.Equal(t, []string{"https://admin.example.com", "http://localhost:3000"}, cfg.CORSOrigins)
}

func TestDSN(t *testing.T) {
	cfg := &Config{DBHost: "db", DBUser: "u", DBPassword: "p", DBName: "n", DBPort: "5432", DBSSLMode: "disable", DBTimezone: "UTC"}
	assert.Equal(t, "host=db user=u password=p dbname=n port=5432 sslmode=disable TimeZone=UTC", cfg.DSN())
}
