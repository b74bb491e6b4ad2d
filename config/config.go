package config

import (
	"fmt"
	"strings"
	"time"

	goValidator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Log      Logger         `mapstructure:"logger"`
	DB       Database       `mapstructure:"database"`
	API      API            `mapstructure:"api"`
	Engine   Engine         `mapstructure:"engine"`
	Exchange Exchange       `mapstructure:"exchange"`
	Cache    Cache          `mapstructure:"cache"`
	Jobs     Jobs           `mapstructure:"jobs"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

type Logger struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

type Database struct {
	Host            string `mapstructure:"host" validate:"required"`
	Port            int    `mapstructure:"port" validate:"required"`
	User            string `mapstructure:"user" validate:"required"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"name" validate:"required"`
	SSLMode         string `mapstructure:"ssl_mode"`
	TimeZone        string `mapstructure:"time_zone"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime string `mapstructure:"conn_max_lifetime"`
	LogLevel        string `mapstructure:"log_level"`
}

type API struct {
	Port              int `mapstructure:"port"`
	RequestsPerSecond int `mapstructure:"requests_per_second"`
	Burst             int `mapstructure:"burst"`
}

// Engine holds the monitoring and execution tunables. The defaults mirror the
// production cadence: 30s normal checks, 5s urgent checks, 60 external calls
// per rolling minute shared between monitoring and execution.
type Engine struct {
	TickInterval        time.Duration `mapstructure:"tick_interval"`
	NormalCheckInterval time.Duration `mapstructure:"normal_check_interval"`
	UrgentCheckInterval time.Duration `mapstructure:"urgent_check_interval"`
	UrgencyMarginPct    float64       `mapstructure:"urgency_margin_pct"`
	CallBudgetPerMin    int           `mapstructure:"call_budget_per_min"`
	MaxConcurrency      int           `mapstructure:"max_concurrency" validate:"min=1"`
	QuoteTTL            time.Duration `mapstructure:"quote_ttl"`
	FetchMaxRetries     int           `mapstructure:"fetch_max_retries"`
	FetchRetryBackoff   time.Duration `mapstructure:"fetch_retry_backoff"`
	StaleChecksForAlert int           `mapstructure:"stale_checks_for_alert"`
	TimeUrgentWindow    time.Duration `mapstructure:"time_urgent_window"`
	OrderPollInterval   time.Duration `mapstructure:"order_poll_interval"`
}

type Exchange struct {
	BaseURL          string        `mapstructure:"base_url" validate:"required"`
	APIKey           string        `mapstructure:"api_key"`
	Timeout          time.Duration `mapstructure:"timeout"`
	MaxRequestPerMin int           `mapstructure:"max_request_per_min"`
}

type Cache struct {
	DefaultExpiration time.Duration `mapstructure:"default_expiration"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval"`
}

type Jobs struct {
	ReconcileSchedule string `mapstructure:"reconcile_schedule"`
	RollupSchedule    string `mapstructure:"rollup_schedule"`
	SettleSchedule    string `mapstructure:"settle_schedule"`
}

type TelegramConfig struct {
	BotToken           string `mapstructure:"bot_token"`
	AlertChatID        int64  `mapstructure:"alert_chat_id"`
	MaxAlertsPerSecond int    `mapstructure:"max_alerts_per_second"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	viper.SetConfigType("yaml")
	viper.SetConfigName("config")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		fmt.Println("No config file loaded:", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := goValidator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.encoding", "json")

	viper.SetDefault("api.port", 8080)
	viper.SetDefault("api.requests_per_second", 10)
	viper.SetDefault("api.burst", 30)

	viper.SetDefault("engine.tick_interval", time.Second)
	viper.SetDefault("engine.normal_check_interval", 30*time.Second)
	viper.SetDefault("engine.urgent_check_interval", 5*time.Second)
	viper.SetDefault("engine.urgency_margin_pct", 0.02)
	viper.SetDefault("engine.call_budget_per_min", 60)
	viper.SetDefault("engine.max_concurrency", 8)
	viper.SetDefault("engine.quote_ttl", 10*time.Second)
	viper.SetDefault("engine.fetch_max_retries", 2)
	viper.SetDefault("engine.fetch_retry_backoff", 500*time.Millisecond)
	viper.SetDefault("engine.stale_checks_for_alert", 3)
	viper.SetDefault("engine.time_urgent_window", time.Hour)
	viper.SetDefault("engine.order_poll_interval", time.Second)

	viper.SetDefault("exchange.timeout", 10*time.Second)
	viper.SetDefault("exchange.max_request_per_min", 100)

	viper.SetDefault("cache.default_expiration", 10*time.Second)
	viper.SetDefault("cache.cleanup_interval", time.Minute)

	viper.SetDefault("jobs.reconcile_schedule", "*/5 * * * *")
	viper.SetDefault("jobs.rollup_schedule", "0 * * * *")
	viper.SetDefault("jobs.settle_schedule", "15 * * * *")

	viper.SetDefault("telegram.max_alerts_per_second", 1)
}
