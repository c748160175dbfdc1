package config

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
	"github.com/axeelhrz/fidelya-notify/internal/domain"
	"github.com/axeelhrz/fidelya-notify/internal/provider"
)

type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RedisURL    string `env:"REDIS_URL,required=true"`
	APIPort     int    `env:"API_PORT,default=8080"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`

	RateLimitPerSec   int `env:"RATE_LIMIT_PER_SEC,default=100"`
	WorkerConcurrency int `env:"WORKER_CONCURRENCY,default=5"`
	ProcessBatchSize  int `env:"PROCESS_BATCH_SIZE,default=50"`
	PollIntervalSec   int `env:"POLL_INTERVAL_SEC,default=30"`
	RetentionDays     int `env:"RETENTION_DAYS,default=30"`

	RetryMaxAttempts     int     `env:"RETRY_MAX_ATTEMPTS,default=3"`
	RetryBackoffFactor   float64 `env:"RETRY_BACKOFF_FACTOR,default=2"`
	RetryInitialDelayMin int     `env:"RETRY_INITIAL_DELAY_MIN,default=5"`
	RetryMaxDelayMin     int     `env:"RETRY_MAX_DELAY_MIN,default=60"`

	FromEmail string `env:"FROM_EMAIL,default=noreply@fidelya.app"`
	FromName  string `env:"FROM_NAME,default=Fidelya"`

	SendGridAPIKey string `env:"SENDGRID_API_KEY"`
	ResendAPIKey   string `env:"RESEND_API_KEY"`

	MetaPhoneNumberID string `env:"META_PHONE_NUMBER_ID"`
	MetaAccessToken   string `env:"META_ACCESS_TOKEN"`
	Dialog360APIKey   string `env:"DIALOG360_API_KEY"`

	TwilioAccountSID   string `env:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken    string `env:"TWILIO_AUTH_TOKEN"`
	TwilioFromNumber   string `env:"TWILIO_FROM_NUMBER"`
	TwilioWhatsAppFrom string `env:"TWILIO_WHATSAPP_FROM"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

func minutes(n int) time.Duration { return time.Duration(n) * time.Minute }

// RetryPolicy converts the retry env knobs into a domain policy.
func (c *Config) RetryPolicy() domain.RetryPolicy {
	policy := domain.DefaultRetryPolicy()
	if c.RetryMaxAttempts > 0 {
		policy.MaxAttempts = c.RetryMaxAttempts
	}
	if c.RetryBackoffFactor > 0 {
		policy.BackoffMultiplier = c.RetryBackoffFactor
	}
	if c.RetryInitialDelayMin > 0 {
		policy.InitialDelay = minutes(c.RetryInitialDelayMin)
	}
	if c.RetryMaxDelayMin > 0 {
		policy.MaxDelay = minutes(c.RetryMaxDelayMin)
	}
	return policy
}

// BuildProviderConfigs assembles the per-channel provider credentials from
// the environment. Only providers with credentials present are offered; the
// first entry per channel is its default.
func (c *Config) BuildProviderConfigs() provider.ConfigSet {
	set := provider.ConfigSet{}

	if c.SendGridAPIKey != "" {
		set[domain.ChannelEmail] = append(set[domain.ChannelEmail], provider.Config{
			Name:      "sendgrid",
			APIKey:    c.SendGridAPIKey,
			FromEmail: c.FromEmail,
			FromName:  c.FromName,
		})
	}
	if c.ResendAPIKey != "" {
		set[domain.ChannelEmail] = append(set[domain.ChannelEmail], provider.Config{
			Name:      "resend",
			APIKey:    c.ResendAPIKey,
			FromEmail: c.FromEmail,
			FromName:  c.FromName,
		})
	}

	if c.MetaPhoneNumberID != "" && c.MetaAccessToken != "" {
		set[domain.ChannelWhatsApp] = append(set[domain.ChannelWhatsApp], provider.Config{
			Name:          "meta",
			PhoneNumberID: c.MetaPhoneNumberID,
			AccessToken:   c.MetaAccessToken,
		})
	}
	if c.TwilioAccountSID != "" && c.TwilioAuthToken != "" {
		set[domain.ChannelWhatsApp] = append(set[domain.ChannelWhatsApp], provider.Config{
			Name:       "twilio",
			AccountSID: c.TwilioAccountSID,
			AuthToken:  c.TwilioAuthToken,
			FromNumber: c.TwilioWhatsAppFrom,
		})
		set[domain.ChannelSMS] = append(set[domain.ChannelSMS], provider.Config{
			Name:       "twilio",
			AccountSID: c.TwilioAccountSID,
			AuthToken:  c.TwilioAuthToken,
			FromNumber: c.TwilioFromNumber,
		})
	}
	if c.Dialog360APIKey != "" {
		set[domain.ChannelWhatsApp] = append(set[domain.ChannelWhatsApp], provider.Config{
			Name:   "360dialog",
			APIKey: c.Dialog360APIKey,
		})
	}

	return set
}
