package config

import (
	"strings"
	"time"

	apperrors "github.com/customeros/codewatch/internal/errors"
	"github.com/customeros/codewatch/internal/models"
)

type AppConfig struct {
	APIPort         string        `env:"PORT" envDefault:"5000"`
	APIKey          string        `env:"API_KEY"`
	AccountsFile    string        `env:"ACCOUNTS_FILE"`
	EmailAccounts   string        `env:"EMAIL_ACCOUNTS"`
	GmailAccounts   string        `env:"GMAIL_ACCOUNTS"`
	AutoStart       bool          `env:"AUTO_START" envDefault:"true"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"45s"`
}

type MonitorConfig struct {
	PollIntervalSeconds    int    `env:"MONITOR_POLL_INTERVAL_SECONDS" envDefault:"30"`
	DaysBack               int    `env:"MONITOR_DAYS_BACK" envDefault:"7"`
	AutoMarkRead           bool   `env:"MONITOR_AUTO_MARK_READ" envDefault:"false"`
	RecentMinutes          int    `env:"MONITOR_RECENT_MINUTES" envDefault:"15"`
	ImapHost               string `env:"MONITOR_IMAP_HOST" envDefault:"imap.gmail.com"`
	ImapPort               int    `env:"MONITOR_IMAP_PORT" envDefault:"993"`
	ImapInsecureSkipVerify bool   `env:"MONITOR_IMAP_INSECURE_SKIP_VERIFY" envDefault:"false"`
	ProviderDomain         string `env:"MONITOR_PROVIDER_DOMAIN" envDefault:"netflix.com"`
	ProviderName           string `env:"MONITOR_PROVIDER_NAME" envDefault:"Netflix"`
}

func (c *MonitorConfig) Settings() models.Settings {
	return models.Settings{
		PollIntervalSeconds: c.PollIntervalSeconds,
		DaysBack:            c.DaysBack,
		AutoMarkRead:        c.AutoMarkRead,
		RecentMinutes:       c.RecentMinutes,
	}
}

func (c *MonitorConfig) Validate() error {
	errs := apperrors.NewMultiErrors()
	if err := c.Settings().Validate(); err != nil {
		if multi, ok := err.(*apperrors.MultiErrors); ok {
			for field, infos := range multi.Errors {
				for _, info := range infos {
					errs.Add(field, info.Message, info.RawError)
				}
			}
		}
	}
	if strings.TrimSpace(c.ImapHost) == "" {
		errs.AddConfig(apperrors.NewConfigError("MONITOR_IMAP_HOST", "is required"))
	}
	if c.ImapPort <= 0 || c.ImapPort > 65535 {
		errs.AddConfig(apperrors.NewConfigError("MONITOR_IMAP_PORT", "must be a valid port"))
	}
	if strings.TrimSpace(c.ProviderDomain) == "" {
		errs.AddConfig(apperrors.NewConfigError("MONITOR_PROVIDER_DOMAIN", "is required"))
	}
	return errs.ErrorOrNil()
}

type RabbitMQConfig struct {
	URL string `env:"RABBITMQ_URL"`
}

type RedisConfig struct {
	URL     string `env:"REDIS_URL"`
	Channel string `env:"REDIS_CHANNEL" envDefault:"codewatch:events"`
}

type LeaderElectionConfig struct {
	Enabled   bool   `env:"LEADER_ELECTION_ENABLED" envDefault:"false"`
	PodName   string `env:"POD_NAME" envDefault:"local"`
	Namespace string `env:"POD_NAMESPACE" envDefault:"default"`
	LeaseName string `env:"LEADER_ELECTION_LEASE_NAME" envDefault:"codewatch-monitor-leader"`
}
