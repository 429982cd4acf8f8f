package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config stores all configuration for the application.
type Config struct {
	ServerPort string `mapstructure:"SERVER_PORT"`

	RaprasBaseURL  string `mapstructure:"RAPRAS_BASE_URL"`
	RaprasUsername string `mapstructure:"RAPRAS_USERNAME"`
	RaprasPassword string `mapstructure:"RAPRAS_PASSWORD"`

	YahooLoginURL    string `mapstructure:"YAHOO_LOGIN_URL"`
	YahooAuctionsURL string `mapstructure:"YAHOO_AUCTIONS_URL"`
	YahooPhoneNumber string `mapstructure:"YAHOO_PHONE_NUMBER"`

	ProxyURL      string `mapstructure:"PROXY_URL"`
	ProxyUsername string `mapstructure:"PROXY_USERNAME"`
	ProxyPassword string `mapstructure:"PROXY_PASSWORD"`
	ProxyExpectIP string `mapstructure:"PROXY_EXPECT_IP"`

	StartDate string `mapstructure:"START_DATE"`
	EndDate   string `mapstructure:"END_DATE"`
	MinPrice  int    `mapstructure:"MIN_PRICE"`

	MaxConcurrentSellers int `mapstructure:"MAX_CONCURRENT_SELLERS"`
	MaxProductsPerSeller int `mapstructure:"MAX_PRODUCTS_PER_SELLER"`

	CallTimeoutSeconds    int `mapstructure:"CALL_TIMEOUT_SECONDS"`
	SoftTimeoutSeconds    int `mapstructure:"SOFT_TIMEOUT_SECONDS"`
	SMSPromptTimeoutSecs  int `mapstructure:"SMS_PROMPT_TIMEOUT_SECONDS"`
	LoginBackoffBaseSecs  int `mapstructure:"LOGIN_BACKOFF_BASE_SECONDS"`
	FetchBackoffBaseSecs  int `mapstructure:"FETCH_BACKOFF_BASE_SECONDS"`
	MaxRetries            int `mapstructure:"MAX_RETRIES"`

	SessionDir string `mapstructure:"SESSION_DIR"`
	SessionKey string `mapstructure:"SESSION_KEY"`

	SessionBackend string `mapstructure:"SESSION_BACKEND"` // "file" or "redis"
	RedisAddr      string `mapstructure:"REDIS_ADDR"`
	PostgresURL    string `mapstructure:"POSTGRES_URL"`

	OutputDir string `mapstructure:"OUTPUT_DIR"`

	GeminiModel string `mapstructure:"GEMINI_MODEL"`
	Headless    bool   `mapstructure:"HEADLESS"`
}

// Load reads configuration from file or environment variables.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	// Attempt to read the .env file, but don't fail if it's not present.
	// This allows configuration purely through environment variables.
	_ = viper.ReadInConfig()

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("RAPRAS_BASE_URL", "https://www.rapras.jp")
	viper.SetDefault("YAHOO_LOGIN_URL", "https://login.yahoo.co.jp/config/login")
	viper.SetDefault("YAHOO_AUCTIONS_URL", "https://auctions.yahoo.co.jp/")
	viper.SetDefault("MIN_PRICE", 100000)
	viper.SetDefault("MAX_CONCURRENT_SELLERS", 3)
	viper.SetDefault("MAX_PRODUCTS_PER_SELLER", 12)
	viper.SetDefault("CALL_TIMEOUT_SECONDS", 30)
	viper.SetDefault("SOFT_TIMEOUT_SECONDS", 300)
	viper.SetDefault("SMS_PROMPT_TIMEOUT_SECONDS", 180)
	viper.SetDefault("LOGIN_BACKOFF_BASE_SECONDS", 2)
	viper.SetDefault("FETCH_BACKOFF_BASE_SECONDS", 1)
	viper.SetDefault("MAX_RETRIES", 3)
	viper.SetDefault("SESSION_DIR", "sessions")
	viper.SetDefault("SESSION_BACKEND", "file")
	viper.SetDefault("OUTPUT_DIR", "output")
	viper.SetDefault("GEMINI_MODEL", "gemini-2.5-flash")
	viper.SetDefault("HEADLESS", true)

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

const dateLayout = "2006-01-02"

func (c *Config) validate() error {
	if c.StartDate == "" || c.EndDate == "" {
		return fmt.Errorf("START_DATE and END_DATE are required (format %s)", dateLayout)
	}
	start, err := time.Parse(dateLayout, c.StartDate)
	if err != nil {
		return fmt.Errorf("invalid START_DATE %q: %w", c.StartDate, err)
	}
	end, err := time.Parse(dateLayout, c.EndDate)
	if err != nil {
		return fmt.Errorf("invalid END_DATE %q: %w", c.EndDate, err)
	}
	if start.After(end) {
		return fmt.Errorf("START_DATE %s is after END_DATE %s", c.StartDate, c.EndDate)
	}
	if c.MinPrice < 0 {
		return fmt.Errorf("MIN_PRICE must not be negative, got %d", c.MinPrice)
	}
	if c.RaprasUsername == "" || c.RaprasPassword == "" {
		return fmt.Errorf("RAPRAS_USERNAME and RAPRAS_PASSWORD are required")
	}
	if c.YahooPhoneNumber == "" {
		return fmt.Errorf("YAHOO_PHONE_NUMBER is required")
	}
	if c.ProxyURL == "" || c.ProxyUsername == "" || c.ProxyPassword == "" {
		return fmt.Errorf("PROXY_URL, PROXY_USERNAME and PROXY_PASSWORD are required")
	}
	if c.SessionKey == "" {
		return fmt.Errorf("SESSION_KEY is required")
	}
	return nil
}

// CallTimeout returns the per-call timeout for external operations.
func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.CallTimeoutSeconds) * time.Second
}

// SoftTimeout returns the advisory wall-clock budget for a whole run.
func (c *Config) SoftTimeout() time.Duration {
	return time.Duration(c.SoftTimeoutSeconds) * time.Second
}

// SMSPromptTimeout returns how long to wait for the operator's SMS code.
func (c *Config) SMSPromptTimeout() time.Duration {
	return time.Duration(c.SMSPromptTimeoutSecs) * time.Second
}
