package config

import (
	"errors"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func loadDefaults(t *testing.T) *Config {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	cfg, err := Unmarshal(v)
	if err != nil {
		t.Fatalf("unmarshal defaults failed: %v", err)
	}
	return cfg
}

func TestDefaults(t *testing.T) {
	cfg := loadDefaults(t)
	if cfg.Reconcile.Spec != "0 */6 * * *" {
		t.Fatalf("unexpected reconcile spec: %q", cfg.Reconcile.Spec)
	}
	if cfg.Carrier.WebhookHeader != "X-Api-Key" {
		t.Fatalf("unexpected webhook header: %q", cfg.Carrier.WebhookHeader)
	}
	if cfg.Webhook.MaxBodyBytes != 1<<20 {
		t.Fatalf("unexpected max body bytes: %d", cfg.Webhook.MaxBodyBytes)
	}
	if cfg.Queue.Queues["critical"] != 5 {
		t.Fatalf("unexpected queue weights: %+v", cfg.Queue.Queues)
	}
	if !strings.Contains(cfg.Notification.Templates.Shipped, "{order_no}") {
		t.Fatalf("shipped template should contain order placeholder")
	}
}

func TestValidateRequiresCarrierCredentials(t *testing.T) {
	cfg := loadDefaults(t)
	err := cfg.Validate()
	if !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("want ErrConfigInvalid got %v", err)
	}
	for _, key := range []string{"carrier.email", "carrier.password", "carrier.webhook_secret"} {
		if !strings.Contains(err.Error(), key) {
			t.Fatalf("error should mention %s: %v", key, err)
		}
	}

	cfg.Carrier.Email = "ops@example.com"
	cfg.Carrier.Password = "secret"
	cfg.Carrier.WebhookSecret = "hook-secret"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate should pass: %v", err)
	}
}

func TestValidateNotificationChannel(t *testing.T) {
	cfg := loadDefaults(t)
	cfg.Carrier.Email = "ops@example.com"
	cfg.Carrier.Password = "secret"
	cfg.Carrier.WebhookSecret = "hook-secret"

	cfg.Notification.Channel = "sms"
	if err := cfg.Validate(); !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("sms without endpoint should fail, got %v", err)
	}
	cfg.Notification.SMS.Endpoint = "https://sms.example.com/send"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("sms with endpoint should pass: %v", err)
	}

	cfg.Notification.Channel = "pigeon"
	if err := cfg.Validate(); !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("unknown channel should fail, got %v", err)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("CARRIER_WEBHOOK_SECRET", "from-env")
	v := viper.New()
	SetDefaults(v)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	cfg, err := Unmarshal(v)
	if err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if cfg.Carrier.WebhookSecret != "from-env" {
		t.Fatalf("env override not applied: %q", cfg.Carrier.WebhookSecret)
	}
}
