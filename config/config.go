package config

import (
	"time"

	logger "github.com/Bparsons0904/goLogger"
	"github.com/spf13/viper"
)

type Config struct {
	GeneralVersion       string `mapstructure:"GENERAL_VERSION"`
	Environment          string `mapstructure:"ENVIRONMENT"`
	ServerPort           int    `mapstructure:"SERVER_PORT"`
	DatabaseHost         string `mapstructure:"DB_HOST"`
	DatabasePort         int    `mapstructure:"DB_PORT"`
	DatabaseName         string `mapstructure:"DB_NAME"`
	DatabaseUser         string `mapstructure:"DB_USER"`
	DatabasePassword     string `mapstructure:"DB_PASSWORD"`
	DatabaseCacheAddress string `mapstructure:"DB_CACHE_ADDRESS"`
	DatabaseCachePort    int    `mapstructure:"DB_CACHE_PORT"`
	DatabaseCacheReset   int    `mapstructure:"DB_CACHE_RESET"`
	CorsAllowOrigins     string `mapstructure:"CORS_ALLOW_ORIGINS"`
	AdminToken           string `mapstructure:"ADMIN_TOKEN"`

	SchedulerEnabled bool `mapstructure:"SCHEDULER_ENABLED"`
	DigestHour       int  `mapstructure:"DIGEST_HOUR"`
	DigestMinute     int  `mapstructure:"DIGEST_MINUTE"`
	WorkerPoolSize   int  `mapstructure:"WORKER_POOL_SIZE"`

	ActiveLookbackDays     int `mapstructure:"ACTIVE_LOOKBACK_DAYS"`
	HistoryLookbackDays    int `mapstructure:"HISTORY_LOOKBACK_DAYS"`
	PendingSweepAgeMinutes int `mapstructure:"PENDING_SWEEP_AGE_MINUTES"`

	TrendWeekday       int `mapstructure:"TREND_WEEKDAY"`
	TrendHour          int `mapstructure:"TREND_HOUR"`
	TrendMinute        int `mapstructure:"TREND_MINUTE"`
	TrendLookbackDays  int `mapstructure:"TREND_LOOKBACK_DAYS"`
	TrendMinDataPoints int `mapstructure:"TREND_MIN_DATA_POINTS"`

	AnalyzerMaxAttempts       int    `mapstructure:"ANALYZER_MAX_ATTEMPTS"`
	AnalyzerRetryWaitSeconds  int    `mapstructure:"ANALYZER_RETRY_WAIT_SECONDS"`
	AnalyzerTimeoutSeconds    int    `mapstructure:"ANALYZER_TIMEOUT_SECONDS"`
	AnalyzerRequestsPerMinute int    `mapstructure:"ANALYZER_REQUESTS_PER_MINUTE"`
	GeminiAPIKey              string `mapstructure:"GEMINI_API_KEY"`
	GeminiModel               string `mapstructure:"GEMINI_MODEL"`
	ArtifactRoot              string `mapstructure:"ARTIFACT_ROOT"`

	NotifyTimeoutSeconds   int    `mapstructure:"NOTIFY_TIMEOUT_SECONDS"`
	NotifyRetryWaitSeconds int    `mapstructure:"NOTIFY_RETRY_WAIT_SECONDS"`
	NotificationQueue      string `mapstructure:"NOTIFICATION_QUEUE"`
	MergeMaxAttempts       int    `mapstructure:"MERGE_MAX_ATTEMPTS"`
}

var ConfigInstance Config

var envVars = []string{
	"GENERAL_VERSION", "ENVIRONMENT", "SERVER_PORT", "DB_HOST", "DB_PORT", "DB_NAME", "DB_USER", "DB_PASSWORD",
	"DB_CACHE_ADDRESS", "DB_CACHE_PORT", "DB_CACHE_RESET", "CORS_ALLOW_ORIGINS", "ADMIN_TOKEN",
	"SCHEDULER_ENABLED", "DIGEST_HOUR", "DIGEST_MINUTE", "WORKER_POOL_SIZE",
	"ACTIVE_LOOKBACK_DAYS", "HISTORY_LOOKBACK_DAYS", "PENDING_SWEEP_AGE_MINUTES",
	"TREND_WEEKDAY", "TREND_HOUR", "TREND_MINUTE", "TREND_LOOKBACK_DAYS", "TREND_MIN_DATA_POINTS",
	"ANALYZER_MAX_ATTEMPTS", "ANALYZER_RETRY_WAIT_SECONDS", "ANALYZER_TIMEOUT_SECONDS",
	"ANALYZER_REQUESTS_PER_MINUTE", "GEMINI_API_KEY", "GEMINI_MODEL", "ARTIFACT_ROOT",
	"NOTIFY_TIMEOUT_SECONDS", "NOTIFY_RETRY_WAIT_SECONDS", "NOTIFICATION_QUEUE", "MERGE_MAX_ATTEMPTS",
}

func setDefaults() {
	viper.SetDefault("ENVIRONMENT", "production")
	viper.SetDefault("DB_CACHE_RESET", -1)
	viper.SetDefault("CORS_ALLOW_ORIGINS", "*")
	viper.SetDefault("SCHEDULER_ENABLED", true)
	viper.SetDefault("DIGEST_HOUR", 6)
	viper.SetDefault("DIGEST_MINUTE", 0)
	viper.SetDefault("WORKER_POOL_SIZE", 10)
	viper.SetDefault("ACTIVE_LOOKBACK_DAYS", 30)
	viper.SetDefault("HISTORY_LOOKBACK_DAYS", 7)
	viper.SetDefault("PENDING_SWEEP_AGE_MINUTES", 15)
	viper.SetDefault("TREND_WEEKDAY", int(time.Sunday))
	viper.SetDefault("TREND_HOUR", 8)
	viper.SetDefault("TREND_MINUTE", 0)
	viper.SetDefault("TREND_LOOKBACK_DAYS", 90)
	viper.SetDefault("TREND_MIN_DATA_POINTS", 5)
	viper.SetDefault("ANALYZER_MAX_ATTEMPTS", 3)
	viper.SetDefault("ANALYZER_RETRY_WAIT_SECONDS", 30)
	viper.SetDefault("ANALYZER_TIMEOUT_SECONDS", 60)
	viper.SetDefault("ANALYZER_REQUESTS_PER_MINUTE", 30)
	viper.SetDefault("GEMINI_MODEL", "gemini-2.5-flash")
	viper.SetDefault("ARTIFACT_ROOT", "./artifacts")
	viper.SetDefault("NOTIFY_TIMEOUT_SECONDS", 10)
	viper.SetDefault("NOTIFY_RETRY_WAIT_SECONDS", 5)
	viper.SetDefault("NOTIFICATION_QUEUE", "health-notifications")
	viper.SetDefault("MERGE_MAX_ATTEMPTS", 5)
}

func InitConfig() (Config, error) {
	log := logger.New("config").Function("InitConfig")
	log.Info("Initializing config")

	viper.AutomaticEnv()
	setDefaults()

	for _, env := range envVars {
		if err := viper.BindEnv(env); err != nil {
			log.Warn("Failed to bind environment variable", "env", env, "error", err)
		}
	}

	envVarsSet := viper.IsSet("SERVER_PORT") && viper.IsSet("DB_HOST")

	if envVarsSet {
		log.Info("Environment variables detected, skipping file loading")
	} else {
		log.Info("Environment variables not found, attempting to load from files")

		viper.SetConfigFile(".env")
		viper.SetConfigType("env")

		if err := viper.ReadInConfig(); err != nil {
			log.Warn("Could not find .env file", "error", err)
		} else {
			log.Info("Loaded .env file")
		}

		viper.SetConfigFile(".env.local")
		if err := viper.MergeInConfig(); err != nil {
			log.Debug("No .env.local file found", "error", err)
		} else {
			log.Info("Loaded .env.local overrides")
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return Config{}, log.Err("Fatal error: could not unmarshal config", err)
	}

	if err := validateConfig(config, log); err != nil {
		return Config{}, err
	}

	ConfigInstance = config
	log.Info("Successfully initialized config", "environment", config.Environment)
	return config, nil
}

func GetConfig() Config {
	return ConfigInstance
}

func validateConfig(config Config, log logger.Logger) error {
	if config.ServerPort <= 0 {
		return log.Error("Fatal error: invalid server port", "port", config.ServerPort)
	}

	if config.DigestHour < 0 || config.DigestHour > 23 {
		return log.Error("Fatal error: DIGEST_HOUR must be within 0-23", "hour", config.DigestHour)
	}

	if config.DigestMinute < 0 || config.DigestMinute > 59 {
		return log.Error(
			"Fatal error: DIGEST_MINUTE must be within 0-59",
			"minute", config.DigestMinute,
		)
	}

	if config.WorkerPoolSize < 1 {
		return log.Error("Fatal error: WORKER_POOL_SIZE must be positive", "size", config.WorkerPoolSize)
	}

	if config.AnalyzerMaxAttempts < 1 {
		return log.Error(
			"Fatal error: ANALYZER_MAX_ATTEMPTS must be positive",
			"attempts", config.AnalyzerMaxAttempts,
		)
	}

	if config.MergeMaxAttempts < 1 {
		return log.Error(
			"Fatal error: MERGE_MAX_ATTEMPTS must be positive",
			"attempts", config.MergeMaxAttempts,
		)
	}

	if config.ActiveLookbackDays < 1 || config.HistoryLookbackDays < 0 {
		return log.Error(
			"Fatal error: invalid lookback window",
			"activeDays", config.ActiveLookbackDays,
			"historyDays", config.HistoryLookbackDays,
		)
	}

	if config.TrendWeekday < int(time.Sunday) || config.TrendWeekday > int(time.Saturday) ||
		config.TrendHour < 0 || config.TrendHour > 23 ||
		config.TrendMinute < 0 || config.TrendMinute > 59 {
		return log.Error(
			"Fatal error: invalid trend schedule",
			"weekday", config.TrendWeekday,
			"hour", config.TrendHour,
			"minute", config.TrendMinute,
		)
	}

	if config.TrendLookbackDays < 1 || config.TrendMinDataPoints < 1 {
		return log.Error(
			"Fatal error: invalid trend window",
			"lookbackDays", config.TrendLookbackDays,
			"minDataPoints", config.TrendMinDataPoints,
		)
	}

	return nil
}

func (c Config) AnalyzerRetryWait() time.Duration {
	return time.Duration(c.AnalyzerRetryWaitSeconds) * time.Second
}

func (c Config) AnalyzerTimeout() time.Duration {
	return time.Duration(c.AnalyzerTimeoutSeconds) * time.Second
}

func (c Config) NotifyTimeout() time.Duration {
	return time.Duration(c.NotifyTimeoutSeconds) * time.Second
}

func (c Config) NotifyRetryWait() time.Duration {
	return time.Duration(c.NotifyRetryWaitSeconds) * time.Second
}

func (c Config) PendingSweepAge() time.Duration {
	return time.Duration(c.PendingSweepAgeMinutes) * time.Minute
}
