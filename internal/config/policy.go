package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Policy holds the enforcement tunables that operators may change without a
// redeploy: binding-session lifetime, certificate lifetime, quota fallbacks
// and the attestation origin allow-list.
type Policy struct {
	SessionTTL          time.Duration `mapstructure:"sessionTTL"`
	CertificateLifetime time.Duration `mapstructure:"certificateLifetime"`
	LicenseTokenTTL     time.Duration `mapstructure:"licenseTokenTTL"`
	DefaultDailyLimit   int64         `mapstructure:"defaultDailyLimit"`
	RelyingPartyID      string        `mapstructure:"relyingPartyID"`
	AllowedOrigins      []string      `mapstructure:"allowedOrigins"`
}

func DefaultPolicy() Policy {
	return Policy{
		SessionTTL:          5 * time.Minute,
		CertificateLifetime: 7 * 24 * time.Hour,
		LicenseTokenTTL:     30 * 24 * time.Hour,
		DefaultDailyLimit:   0,
		RelyingPartyID:      "keyforge.local",
		AllowedOrigins:      []string{"https://keyforge.local"},
	}
}

// PolicyHolder exposes the current Policy and hot-reloads it when the
// underlying file changes.
type PolicyHolder struct {
	current atomic.Value // holds Policy
}

func NewPolicyHolder() (*PolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("policy")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/keyforge/config")
	v.AddConfigPath("/etc/keyforge")
	v.AddConfigPath(".")

	v.SetEnvPrefix("KEYFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPolicy()
	v.SetDefault("policy.sessionTTL", defaults.SessionTTL)
	v.SetDefault("policy.certificateLifetime", defaults.CertificateLifetime)
	v.SetDefault("policy.licenseTokenTTL", defaults.LicenseTokenTTL)
	v.SetDefault("policy.defaultDailyLimit", defaults.DefaultDailyLimit)
	v.SetDefault("policy.relyingPartyID", defaults.RelyingPartyID)
	v.SetDefault("policy.allowedOrigins", defaults.AllowedOrigins)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var policy Policy
	if err := v.UnmarshalKey("policy", &policy); err != nil {
		return nil, err
	}
	if err := validatePolicy(policy); err != nil {
		return nil, err
	}

	holder := &PolicyHolder{}
	holder.current.Store(policy)

	v.WatchConfig()
	v.OnConfigChange(func(fsnotify.Event) {
		var next Policy
		if err := v.UnmarshalKey("policy", &next); err != nil {
			log.Printf("policy reload rejected: %v", err)
			return
		}
		if err := validatePolicy(next); err != nil {
			log.Printf("policy reload rejected: %v", err)
			return
		}
		holder.current.Store(next)
	})

	return holder, nil
}

// NewStaticPolicyHolder wraps a fixed policy, used by tests.
func NewStaticPolicyHolder(policy Policy) *PolicyHolder {
	holder := &PolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func (h *PolicyHolder) Current() Policy {
	return h.current.Load().(Policy)
}

func validatePolicy(p Policy) error {
	if p.SessionTTL <= 0 {
		return errors.New("policy sessionTTL must be positive")
	}
	if p.CertificateLifetime <= 0 {
		return errors.New("policy certificateLifetime must be positive")
	}
	if p.LicenseTokenTTL <= 0 {
		return errors.New("policy licenseTokenTTL must be positive")
	}
	if p.DefaultDailyLimit < 0 {
		return errors.New("policy defaultDailyLimit must not be negative")
	}
	if strings.TrimSpace(p.RelyingPartyID) == "" {
		return errors.New("policy relyingPartyID is required")
	}
	if len(p.AllowedOrigins) == 0 {
		return errors.New("policy allowedOrigins is required")
	}
	return nil
}
