package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"consultline/pkg/constants"
	"consultline/pkg/env"
)

// Config holds all configuration for the application
type Config struct {
	API    APIConfig
	Call   CallConfig
	Chat   ChatConfig
	Media  MediaConfig
	Log    LogConfig
	Server ServerConfig
	JWT    JWTConfig
	Redis  RedisConfig
	Wallet WalletConfig
}

// APIConfig describes the remote backend the client talks to
type APIConfig struct {
	BaseURL   string        `validate:"required,url"`
	Timeout   time.Duration `validate:"gte=0"`
	AuthToken string
	UserID    string
}

// CallConfig holds call lifecycle settings
type CallConfig struct {
	DebounceWindow       time.Duration `validate:"gt=0"`
	AutoIdleOnRemoteLeft bool
	RechargeURL          string
	// SetupTimeout bounds session creation and room join; zero disables it
	SetupTimeout time.Duration `validate:"gte=0"`
}

// ChatConfig holds polling loop settings
type ChatConfig struct {
	PollInterval time.Duration `validate:"gt=0"`
	PageSize     int           `validate:"gte=1,lte=100"`
	SeenCapacity int           `validate:"gte=1"`
}

// MediaConfig holds real-time transport settings
type MediaConfig struct {
	SignalURL  string `validate:"required"`
	AppID      string
	ICEServers []string
	RecordDir  string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level    string `validate:"oneof=debug info warn error"`
	Format   string `validate:"oneof=json text"`
	Output   string `validate:"oneof=stdout file"`
	FilePath string
}

// ServerConfig holds dev backend server configuration
type ServerConfig struct {
	Port        int `validate:"gte=1,lte=65535"`
	Environment string
	ServiceName string
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret            string
	AccessTokenExpiry time.Duration
}

// RedisConfig holds Redis configuration. An empty Host selects in-memory stores.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	Timeout  time.Duration
}

// WalletConfig drives the dev backend's balance checks
type WalletConfig struct {
	StartBalance int `validate:"gte=0"`
	CallCost     int `validate:"gte=0"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		API: APIConfig{
			BaseURL:   env.GetString("API_BASE_URL", "http://localhost:8083"),
			Timeout:   env.GetDuration("API_TIMEOUT", constants.DefaultTimeout),
			AuthToken: env.GetStringFromFile("AUTH_TOKEN", ""),
			UserID:    env.GetString("USER_ID", ""),
		},
		Call: CallConfig{
			DebounceWindow:       env.GetDuration("CALL_DEBOUNCE_WINDOW", constants.InitiateGuardWindow),
			AutoIdleOnRemoteLeft: env.GetBool("CALL_AUTO_IDLE_ON_REMOTE_LEFT", false),
			RechargeURL:          env.GetString("CALL_RECHARGE_URL", "/wallet/recharge"),
			SetupTimeout:         env.GetDuration("CALL_SETUP_TIMEOUT", 0),
		},
		Chat: ChatConfig{
			PollInterval: env.GetDuration("CHAT_POLL_INTERVAL", constants.ChatPollInterval),
			PageSize:     env.GetInt("CHAT_PAGE_SIZE", constants.DefaultPageSize),
			SeenCapacity: env.GetInt("CHAT_SEEN_CAPACITY", constants.SeenMessageCapacity),
		},
		Media: MediaConfig{
			SignalURL:  env.GetString("RTC_SIGNAL_URL", "ws://localhost:8083/rtc/ws"),
			AppID:      env.GetString("RTC_APP_ID", "consultline-dev"),
			ICEServers: env.GetStringSlice("RTC_ICE_SERVERS", []string{"stun:stun.l.google.com:19302"}),
			RecordDir:  env.GetString("RTC_RECORD_DIR", "recordings"),
		},
		Log: LogConfig{
			Level:    env.GetString("LOG_LEVEL", "info"),
			Format:   env.GetString("LOG_FORMAT", "text"),
			Output:   env.GetString("LOG_OUTPUT", "stdout"),
			FilePath: env.GetString("LOG_FILE_PATH", "consultline.log"),
		},
		Server: ServerConfig{
			Port:        env.GetInt("PORT", 8083),
			Environment: env.GetString("ENV", "development"),
			ServiceName: env.GetString("SERVICE_NAME", "consultline-dev-backend"),
		},
		JWT: JWTConfig{
			Secret:            env.GetStringFromFile("JWT_SECRET", "dev-secret-change-me-dev-secret-change-me"),
			AccessTokenExpiry: env.GetDuration("JWT_ACCESS_EXPIRY", constants.DevTokenExpiry),
		},
		Redis: RedisConfig{
			Host:     env.GetString("REDIS_HOST", ""),
			Port:     env.GetInt("REDIS_PORT", 6379),
			Password: env.GetStringFromFile("REDIS_PASSWORD", ""),
			DB:       env.GetInt("REDIS_DB", 0),
			Timeout:  env.GetDuration("REDIS_TIMEOUT", 5*time.Second),
		},
		Wallet: WalletConfig{
			StartBalance: env.GetInt("WALLET_START_BALANCE", constants.DefaultStartBalance),
			CallCost:     env.GetInt("WALLET_CALL_COST", constants.DefaultCallCost),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Server.Environment == "production" && len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
	}

	return nil
}

// RedisAddr returns host:port for the Redis client
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}
