package config

import (
	"testing"
	"time"

	logger "github.com/Bparsons0904/goLogger"
	"github.com/stretchr/testify/assert"
)

func validConfig() Config {
	return Config{
		ServerPort:          8280,
		DigestHour:          6,
		DigestMinute:        0,
		WorkerPoolSize:      10,
		AnalyzerMaxAttempts: 3,
		MergeMaxAttempts:    5,
		ActiveLookbackDays:  30,
		HistoryLookbackDays: 7,
		TrendWeekday:        int(time.Sunday),
		TrendHour:           8,
		TrendLookbackDays:   90,
		TrendMinDataPoints:  5,
	}
}

func TestValidateConfig(t *testing.T) {
	log := logger.New("test")

	tests := []struct {
		name      string
		mutate    func(*Config)
		expectErr bool
	}{
		{name: "valid config", mutate: func(c *Config) {}, expectErr: false},
		{name: "invalid port", mutate: func(c *Config) { c.ServerPort = 0 }, expectErr: true},
		{name: "digest hour too large", mutate: func(c *Config) { c.DigestHour = 24 }, expectErr: true},
		{name: "negative digest minute", mutate: func(c *Config) { c.DigestMinute = -1 }, expectErr: true},
		{name: "empty worker pool", mutate: func(c *Config) { c.WorkerPoolSize = 0 }, expectErr: true},
		{name: "no analyzer attempts", mutate: func(c *Config) { c.AnalyzerMaxAttempts = 0 }, expectErr: true},
		{name: "no merge attempts", mutate: func(c *Config) { c.MergeMaxAttempts = 0 }, expectErr: true},
		{name: "no active lookback", mutate: func(c *Config) { c.ActiveLookbackDays = 0 }, expectErr: true},
		{name: "trend weekday out of range", mutate: func(c *Config) { c.TrendWeekday = 7 }, expectErr: true},
		{name: "trend hour too large", mutate: func(c *Config) { c.TrendHour = 24 }, expectErr: true},
		{name: "no trend lookback", mutate: func(c *Config) { c.TrendLookbackDays = 0 }, expectErr: true},
		{name: "no trend data points", mutate: func(c *Config) { c.TrendMinDataPoints = 0 }, expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			tt.mutate(&config)

			err := validateConfig(config, log)
			if tt.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDurationHelpers(t *testing.T) {
	config := Config{
		AnalyzerRetryWaitSeconds: 30,
		AnalyzerTimeoutSeconds:   60,
		NotifyTimeoutSeconds:     10,
		NotifyRetryWaitSeconds:   5,
		PendingSweepAgeMinutes:   15,
	}

	assert.Equal(t, 30*time.Second, config.AnalyzerRetryWait())
	assert.Equal(t, time.Minute, config.AnalyzerTimeout())
	assert.Equal(t, 10*time.Second, config.NotifyTimeout())
	assert.Equal(t, 5*time.Second, config.NotifyRetryWait())
	assert.Equal(t, 15*time.Minute, config.PendingSweepAge())
}
