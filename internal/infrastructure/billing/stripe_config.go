package billing

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v81"
)

// StripeConfig holds the credentials and webhook settings of the Stripe account
type StripeConfig struct {
	// SecretKey is a secret or restricted API key (sk_/rk_, test or live)
	SecretKey string
	// PublishableKey is optional; when set it must be in the same mode as SecretKey
	PublishableKey string
	// WebhookSecret verifies delivery signatures (whsec_xxx)
	WebhookSecret string
	// WebhookTolerance bounds the age of a signed delivery. Zero uses the library default.
	WebhookTolerance time.Duration
	// IgnoreAPIVersionMismatch accepts events rendered for a different API
	// version than the one this build is pinned to.
	IgnoreAPIVersionMismatch bool
	// RequireLive rejects test-mode keys
	RequireLive bool
	// AppVersion is reported to Stripe in the client user agent
	AppVersion string
}

// TestMode reports whether SecretKey is a test-mode key
func (c *StripeConfig) TestMode() bool {
	return keyMode(c.SecretKey) == "test"
}

// Validate checks key formats and that all keys belong to the same mode
func (c *StripeConfig) Validate() error {
	if c.SecretKey == "" {
		return errors.New("stripe: secret key is required")
	}
	if !strings.HasPrefix(c.SecretKey, "sk_") && !strings.HasPrefix(c.SecretKey, "rk_") {
		return errors.New("stripe: secret key must be a secret (sk_) or restricted (rk_) key")
	}
	mode := keyMode(c.SecretKey)
	if mode == "" {
		return errors.New("stripe: secret key is neither a test nor a live key")
	}
	if c.RequireLive && mode != "live" {
		return errors.New("stripe: a live key is required")
	}

	if c.PublishableKey != "" {
		if !strings.HasPrefix(c.PublishableKey, "pk_") {
			return errors.New("stripe: publishable key must start with pk_")
		}
		if pm := keyMode(c.PublishableKey); pm != mode {
			return fmt.Errorf("stripe: publishable key is a %s key but secret key is a %s key", pm, mode)
		}
	}

	if c.WebhookSecret == "" {
		return errors.New("stripe: webhook secret is required")
	}
	if !strings.HasPrefix(c.WebhookSecret, "whsec_") {
		return errors.New("stripe: webhook secret must start with whsec_")
	}
	if c.WebhookTolerance < 0 {
		return errors.New("stripe: webhook tolerance cannot be negative")
	}
	return nil
}

// InitStripeClient installs the API key and app info on the package-level client
func (c *StripeConfig) InitStripeClient() {
	stripe.Key = c.SecretKey
	stripe.SetAppInfo(&stripe.AppInfo{
		Name:    "meterpay-backend",
		Version: c.AppVersion,
	})
}

// keyMode returns "test" or "live" from a Stripe key like sk_test_... and
// "" for anything else.
func keyMode(key string) string {
	parts := strings.SplitN(key, "_", 3)
	if len(parts) < 3 {
		return ""
	}
	switch parts[1] {
	case "test", "live":
		return parts[1]
	default:
		return ""
	}
}
