// Package config loads service configuration from the environment plus an
// optional YAML policy file selecting the sync deployment variant.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// Policy decides which order statuses trigger which warehouse transition.
// The default is the webhook variant: cache items on ORDER_CREATED, reserve
// on PROCESSING, ship on PICKUP/DELIVERED. The immediate-reserve variant
// sets reserve_on_created and its own ship_on list; the variants are
// alternatives, never merged.
type Policy struct {
	ReserveOnCreated bool     `yaml:"reserve_on_created"`
	ReserveOn        []string `yaml:"reserve_on"`
	ShipOn           []string `yaml:"ship_on"`
	CancelOn         []string `yaml:"cancel_on"`
}

func DefaultPolicy() Policy {
	return Policy{
		ReserveOn: []string{"PROCESSING"},
		ShipOn:    []string{"PICKUP", "DELIVERED"},
		CancelOn:  []string{"CANCELLED"},
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (p Policy) Reserves(status string) bool { return contains(p.ReserveOn, status) }
func (p Policy) Ships(status string) bool    { return contains(p.ShipOn, status) }
func (p Policy) Cancels(status string) bool  { return contains(p.CancelOn, status) }

// Config is the full runtime configuration.
type Config struct {
	Port string

	MoySkladBase  string
	MoySkladLogin string
	MoySkladToken string
	StoreID       string
	OrgID         string
	AgentID       string

	WebhookSecret string
	WebhookStrict bool

	MappingPath string

	DatabaseURL string
	RedisURL    string

	YandexToken      string
	YandexCampaignID string
	YandexBusinessID string
	PollInterval     time.Duration

	Policy Policy
}

var requiredVars = []string{
	"MOYSKLAD_BASE",
	"MOYSKLAD_LOGIN",
	"MOYSKLAD_PASSWORD",
	"STORE_ID",
	"ORG_ID",
}

// FromEnv builds the configuration, failing with the complete list of
// missing required variables so operators fix them in one pass.
func FromEnv() (Config, error) {
	var missing []string
	for _, v := range requiredVars {
		if strings.TrimSpace(os.Getenv(v)) == "" {
			missing = append(missing, v)
		}
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	cfg := Config{
		Port:             envOr("PORT", "3000"),
		MoySkladBase:     strings.TrimRight(os.Getenv("MOYSKLAD_BASE"), "/"),
		MoySkladLogin:    os.Getenv("MOYSKLAD_LOGIN"),
		MoySkladToken:    os.Getenv("MOYSKLAD_PASSWORD"),
		StoreID:          os.Getenv("STORE_ID"),
		OrgID:            os.Getenv("ORG_ID"),
		AgentID:          os.Getenv("DEFAULT_AGENT_ID"),
		WebhookSecret:    os.Getenv("WEBHOOK_SECRET"),
		WebhookStrict:    os.Getenv("WEBHOOK_STRICT") == "true",
		MappingPath:      envOr("MAPPING_PATH", "mapping.json"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		YandexToken:      os.Getenv("YANDEX_TOKEN"),
		YandexCampaignID: os.Getenv("YANDEX_CAMPAIGN_ID"),
		YandexBusinessID: os.Getenv("YANDEX_BUSINESS_ID"),
		PollInterval:     envDuration("POLL_INTERVAL", 0),
		Policy:           DefaultPolicy(),
	}

	if path := os.Getenv("SYNC_POLICY_PATH"); path != "" {
		pol, err := LoadPolicy(path)
		if err != nil {
			return Config{}, err
		}
		cfg.Policy = pol
	}
	return cfg, nil
}

// LoadPolicy reads a policy file; omitted fields keep their defaults.
func LoadPolicy(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read sync policy %s: %w", path, err)
	}
	pol := DefaultPolicy()
	if err := yaml.Unmarshal(data, &pol); err != nil {
		return Policy{}, fmt.Errorf("parse sync policy %s: %w", path, err)
	}
	return pol, nil
}

// PollingEnabled reports whether the fallback poller should run. The
// campaign credentials alone enable it; an unset POLL_INTERVAL leaves the
// worker's default interval in effect.
func (c Config) PollingEnabled() bool {
	return c.YandexToken != "" && c.YandexCampaignID != ""
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envDuration(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	dur, err := time.ParseDuration(v)
	if err != nil || dur < 0 {
		return d
	}
	return dur
}
