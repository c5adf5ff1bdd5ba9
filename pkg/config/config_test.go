package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig(t *testing.T) {
	// Set test environment variables
	os.Setenv("SERVER_PORT", "8080")
	os.Setenv("DB_HOST", "localhost")
	os.Setenv("DB_PORT", "5432")
	os.Setenv("DB_USER", "testuser")
	os.Setenv("DB_PASSWORD", "testpass")
	os.Setenv("DB_NAME", "testdb")
	os.Setenv("REDIS_HOST", "localhost")
	os.Setenv("REDIS_PORT", "6379")
	os.Setenv("JWT_SECRET", "test-secret")

	// Load config
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Assertions
	assert.NotNil(t, cfg)
	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, "localhost", cfg.DBHost)
	assert.Equal(t, "5432", cfg.DBPort)
	assert.Equal(t, "testuser", cfg.DBUser)
	assert.Equal(t, "testpass", cfg.DBPassword)
	assert.Equal(t, "testdb", cfg.DBName)
	assert.Equal(t, "localhost", cfg.RedisHost)
	assert.Equal(t, "6379", cfg.RedisPort)
	assert.Equal(t, "test-secret", cfg.JWTSecret)

	// Cleanup
	os.Unsetenv("SERVER_PORT")
	os.Unsetenv("DB_HOST")
	os.Unsetenv("DB_PORT")
	os.Unsetenv("DB_USER")
	os.Unsetenv("DB_PASSWORD")
	os.Unsetenv("DB_NAME")
	os.Unsetenv("REDIS_HOST")
	os.Unsetenv("REDIS_PORT")
	os.Unsetenv("JWT_SECRET")
}

func TestLoadConfig_Defaults(t *testing.T) {
	// Clear environment variables
	os.Unsetenv("SERVER_PORT")
	os.Unsetenv("REDEMPTION_TTL")
	os.Unsetenv("SCAN_COOLDOWN")

	// Load config
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Assertions - check that defaults are used
	assert.NotNil(t, cfg)
	assert.Equal(t, 5*time.Minute, cfg.RedemptionTTL)
	assert.Equal(t, 10*time.Second, cfg.ScanCooldown)
	assert.Equal(t, 5*time.Minute, cfg.SellerCacheTTL)
	assert.Equal(t, 3, cfg.SweepHour)
}

func TestLoadConfig_LoyaltyTuning(t *testing.T) {
	os.Setenv("REDEMPTION_TTL", "10m")
	os.Setenv("SCAN_COOLDOWN", "30s")
	os.Setenv("SWEEP_HOUR", "4")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	assert.Equal(t, 10*time.Minute, cfg.RedemptionTTL)
	assert.Equal(t, 30*time.Second, cfg.ScanCooldown)
	assert.Equal(t, 4, cfg.SweepHour)

	os.Unsetenv("REDEMPTION_TTL")
	os.Unsetenv("SCAN_COOLDOWN")
	os.Unsetenv("SWEEP_HOUR")
}

func TestGetEnvDuration_Invalid(t *testing.T) {
	os.Setenv("REDEMPTION_TTL", "not-a-duration")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Invalid values fall back to the default
	assert.Equal(t, 5*time.Minute, cfg.RedemptionTTL)

	os.Unsetenv("REDEMPTION_TTL")
}
