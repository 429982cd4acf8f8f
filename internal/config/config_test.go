package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("START_DATE", "2026-08-01")
	t.Setenv("END_DATE", "2026-08-31")
	t.Setenv("RAPRAS_USERNAME", "user")
	t.Setenv("RAPRAS_PASSWORD", "pass")
	t.Setenv("YAHOO_PHONE_NUMBER", "09012345678")
	t.Setenv("PROXY_URL", "http://proxy.example.test:8080")
	t.Setenv("PROXY_USERNAME", "proxyuser")
	t.Setenv("PROXY_PASSWORD", "proxypass")
	t.Setenv("SESSION_KEY", "0123456789abcdef")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 100000, cfg.MinPrice)
	assert.Equal(t, 3, cfg.MaxConcurrentSellers)
	assert.Equal(t, 12, cfg.MaxProductsPerSeller)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 2, cfg.LoginBackoffBaseSecs)
	assert.Equal(t, 1, cfg.FetchBackoffBaseSecs)
	assert.Equal(t, "file", cfg.SessionBackend)
	assert.Equal(t, 30*time.Second, cfg.CallTimeout())
	assert.Equal(t, 5*time.Minute, cfg.SoftTimeout())
	assert.Equal(t, 3*time.Minute, cfg.SMSPromptTimeout())
	assert.True(t, cfg.Headless)
}

func TestLoadOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MIN_PRICE", "250000")
	t.Setenv("MAX_CONCURRENT_SELLERS", "5")
	t.Setenv("SESSION_BACKEND", "redis")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 250000, cfg.MinPrice)
	assert.Equal(t, 5, cfg.MaxConcurrentSellers)
	assert.Equal(t, "redis", cfg.SessionBackend)
}

func TestValidate(t *testing.T) {
	valid := Config{
		StartDate:        "2026-08-01",
		EndDate:          "2026-08-31",
		MinPrice:         100000,
		RaprasUsername:   "user",
		RaprasPassword:   "pass",
		YahooPhoneNumber: "09012345678",
		ProxyURL:         "http://proxy.example.test:8080",
		ProxyUsername:    "proxyuser",
		ProxyPassword:    "proxypass",
		SessionKey:       "key",
	}
	require.NoError(t, valid.validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"missing dates", func(c *Config) { c.StartDate = "" }},
		{"malformed start date", func(c *Config) { c.StartDate = "08/01/2026" }},
		{"start after end", func(c *Config) { c.StartDate = "2026-09-01" }},
		{"negative min price", func(c *Config) { c.MinPrice = -1 }},
		{"missing rapras credentials", func(c *Config) { c.RaprasPassword = "" }},
		{"missing phone number", func(c *Config) { c.YahooPhoneNumber = "" }},
		{"missing proxy credentials", func(c *Config) { c.ProxyPassword = "" }},
		{"missing session key", func(c *Config) { c.SessionKey = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			assert.Error(t, cfg.validate())
		})
	}
}
