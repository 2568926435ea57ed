package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// maxOutgoingDigits is the largest repeat count the outgoing-number pattern
// can be compiled with.
const maxOutgoingDigits = 1000

type Config struct {
	AMI         AMIConfig      `yaml:"ami"`
	Webhook     WebhookConfig  `yaml:"webhook"`
	MQTT        MQTTConfig     `yaml:"mqtt"`
	Delivery    DeliveryConfig `yaml:"delivery"`
	Rules       RulesConfig    `yaml:"rules"`
	DebugEvents bool           `yaml:"debug_events"`
}

type AMIConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Secret   string `yaml:"secret"`
}

type WebhookConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// MQTTConfig is optional; an empty broker disables the MQTT mirror.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
}

type DeliveryConfig struct {
	QueueSize    int           `yaml:"queue_size"`
	DrainTimeout time.Duration `yaml:"drain_timeout"`
}

type RulesConfig struct {
	TrunkContext      string       `yaml:"trunk_context"`
	InternalContext   string       `yaml:"internal_context"`
	IncomingChannel   string       `yaml:"incoming_channel"`
	MinOutgoingDigits int          `yaml:"min_outgoing_digits"`
	Extra             []RuleConfig `yaml:"extra"`
}

// RuleConfig declares an additional rule. Field values use the predicate
// syntax "*" (any), "re:<pattern>", "?<predicate>" (may be absent) or an
// exact string.
type RuleConfig struct {
	Name   string            `yaml:"name"`
	Kind   string            `yaml:"kind"`
	Fields map[string]string `yaml:"fields"`
	When   string            `yaml:"when"`
	Emit   EmitConfig        `yaml:"emit"`
}

// EmitConfig names the notification event and maps output keys to event fields.
type EmitConfig struct {
	Event  string            `yaml:"event"`
	Fields map[string]string `yaml:"fields"`
}

func (c *AMIConfig) Addr() string {
	return net.JoinHostPort(c.Host, fmt.Sprintf("%d", c.Port))
}

// MQTTEnabled reports whether notifications are mirrored to MQTT.
func (c *Config) MQTTEnabled() bool {
	return c.MQTT.Broker != ""
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := &Config{
		AMI: AMIConfig{
			Host: "127.0.0.1",
			Port: 5038,
		},
		Webhook: WebhookConfig{
			URL:     "http://localhost/cgi-bin/aid/call",
			Timeout: 10 * time.Second,
		},
		MQTT: MQTTConfig{
			ClientID:    "asterisk-callhook",
			TopicPrefix: "asterisk",
		},
		Delivery: DeliveryConfig{
			QueueSize:    1024,
			DrainTimeout: 2 * time.Second,
		},
		Rules: RulesConfig{
			TrunkContext:      "from-trunk",
			InternalContext:   "from-internal",
			MinOutgoingDigits: 5,
		},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.AMI.Host == "" {
		return fmt.Errorf("ami.host is required")
	}
	if c.AMI.Port < 1 || c.AMI.Port > 65535 {
		return fmt.Errorf("ami.port must be between 1 and 65535, got %d", c.AMI.Port)
	}
	if c.AMI.Username == "" {
		return fmt.Errorf("ami.username is required")
	}
	if c.AMI.Secret == "" {
		return fmt.Errorf("ami.secret is required")
	}
	if c.Webhook.URL == "" {
		return fmt.Errorf("webhook.url is required")
	}
	if u, err := url.Parse(c.Webhook.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("webhook.url must be an http(s) URL, got %q", c.Webhook.URL)
	}
	if c.Webhook.Timeout <= 0 {
		return fmt.Errorf("webhook.timeout must be positive, got %s", c.Webhook.Timeout)
	}
	if c.MQTTEnabled() {
		if c.MQTT.ClientID == "" {
			return fmt.Errorf("mqtt.client_id is required")
		}
		if c.MQTT.TopicPrefix == "" {
			return fmt.Errorf("mqtt.topic_prefix is required")
		}
	}
	if c.Delivery.QueueSize < 1 {
		return fmt.Errorf("delivery.queue_size must be at least 1, got %d", c.Delivery.QueueSize)
	}
	if c.Delivery.DrainTimeout < 0 {
		return fmt.Errorf("delivery.drain_timeout must not be negative, got %s", c.Delivery.DrainTimeout)
	}
	if c.Rules.TrunkContext == "" {
		return fmt.Errorf("rules.trunk_context is required")
	}
	if c.Rules.InternalContext == "" {
		return fmt.Errorf("rules.internal_context is required")
	}
	if c.Rules.IncomingChannel == "" {
		return fmt.Errorf("rules.incoming_channel is required")
	}
	if _, err := regexp.Compile(c.Rules.IncomingChannel); err != nil {
		return fmt.Errorf("rules.incoming_channel: %w", err)
	}
	if c.Rules.MinOutgoingDigits < 1 || c.Rules.MinOutgoingDigits > maxOutgoingDigits {
		return fmt.Errorf("rules.min_outgoing_digits must be between 1 and %d, got %d", maxOutgoingDigits, c.Rules.MinOutgoingDigits)
	}
	for i, r := range c.Rules.Extra {
		if r.Name == "" {
			return fmt.Errorf("rules.extra[%d].name is required", i)
		}
		if r.Emit.Event == "" {
			return fmt.Errorf("rules.extra[%d].emit.event is required", i)
		}
		if r.Kind == "" && len(r.Fields) == 0 && r.When == "" {
			return fmt.Errorf("rules.extra[%d] must constrain kind, fields or when", i)
		}
	}
	return nil
}
