package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is the environment-driven configuration. Manager wiring (bind
// addresses, leader election) stays on flags; everything behavioral is
// environment, so it can be set from the Helm chart's ConfigMap. Interval
// variables are plain seconds.
type Config struct {
	ControllersEnabled bool `envconfig:"HEADWIND_CONTROLLERS_ENABLED" default:"true"`
	PollingEnabled     bool `envconfig:"HEADWIND_POLLING_ENABLED" default:"false"`
	PollingIntervalSec int  `envconfig:"HEADWIND_POLLING_INTERVAL" default:"300"`
	HelmAutoDiscovery  bool `envconfig:"HEADWIND_HELM_AUTO_DISCOVERY" default:"true"`

	ClusterID string `envconfig:"CLUSTER_ID"`

	SlackEnabled    bool   `envconfig:"SLACK_ENABLED" default:"false"`
	SlackWebhookURL string `envconfig:"SLACK_WEBHOOK_URL"`
	SlackChannel    string `envconfig:"SLACK_CHANNEL"`

	TeamsEnabled    bool   `envconfig:"TEAMS_ENABLED" default:"false"`
	TeamsWebhookURL string `envconfig:"TEAMS_WEBHOOK_URL"`

	WebhookEnabled    bool   `envconfig:"WEBHOOK_ENABLED" default:"false"`
	WebhookURL        string `envconfig:"WEBHOOK_URL"`
	WebhookSecret     string `envconfig:"WEBHOOK_SECRET"`
	WebhookTimeoutSec int    `envconfig:"WEBHOOK_TIMEOUT" default:"10"`
	WebhookMaxRetries int    `envconfig:"WEBHOOK_MAX_RETRIES" default:"3"`

	PubSubTopic string `envconfig:"PUBSUB_TOPIC"`
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// PollingInterval is the global polling tick.
func (c Config) PollingInterval() time.Duration {
	return time.Duration(c.PollingIntervalSec) * time.Second
}

// WebhookTimeout bounds each notification delivery attempt.
func (c Config) WebhookTimeout() time.Duration {
	return time.Duration(c.WebhookTimeoutSec) * time.Second
}
