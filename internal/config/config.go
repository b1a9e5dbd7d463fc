package config

import (
	"fmt"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RedisURL    string `env:"REDIS_URL,required=true"`
	BackupDir   string `env:"BACKUP_DIR,default=/var/lib/subwise/history-backups"`

	EmailAPIURL string `env:"EMAIL_API_URL,required=true"`
	EmailAPIKey string `env:"EMAIL_API_KEY"`
	EmailFrom   string `env:"EMAIL_FROM,default=no-reply@subwise.io"`

	WhatsAppAPIURL string `env:"WHATSAPP_API_URL,required=true"`
	WhatsAppAPIKey string `env:"WHATSAPP_API_KEY"`

	BillingAPIURL string `env:"BILLING_API_URL,default=http://billing.internal"`

	BreakerThreshold   int `env:"BREAKER_THRESHOLD,default=3"`
	BreakerResetSec    int `env:"BREAKER_RESET_SEC,default=60"`
	DispatchMaxRetries int `env:"DISPATCH_MAX_RETRIES,default=2"`
	FetchMaxRetries    int `env:"FETCH_MAX_RETRIES,default=3"`
	FetchTimeoutSec    int `env:"FETCH_TIMEOUT_SEC,default=8"`

	ReconcileIntervalSec int `env:"RECONCILE_INTERVAL_SEC,default=300"`
	BackupRetentionDays  int `env:"BACKUP_RETENTION_DAYS,default=30"`

	RateLimitPerSec int    `env:"RATE_LIMIT_PER_SEC,default=100"`
	APIPort         int    `env:"API_PORT,default=8080"`
	LogLevel        string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
