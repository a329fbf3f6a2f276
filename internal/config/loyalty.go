package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// LoyaltyConfig holds operator-tunable program settings that must be
// adjustable without a redeploy.
type LoyaltyConfig struct {
	// Cart lines carrying any of these tags never receive a tier discount.
	ExclusionTags []string `mapstructure:"exclusionTags"`

	// Order value (minor units) above which shipping is free. Zero means
	// free shipping is always granted alongside the member discount.
	FreeShippingThreshold int64 `mapstructure:"freeShippingThreshold"`

	// Upper bound accepted for any discount percentage before clamping.
	MaxDiscountPercent float64 `mapstructure:"maxDiscountPercent"`
}

func DefaultLoyaltyConfig() LoyaltyConfig {
	return LoyaltyConfig{
		ExclusionTags:         []string{"no-tier-discount", "sale", "clearance"},
		FreeShippingThreshold: 5000,
		MaxDiscountPercent:    100,
	}
}

type LoyaltyConfigHolder struct {
	current atomic.Value // holds LoyaltyConfig
}

func NewLoyaltyConfigHolder() (*LoyaltyConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("loyalty")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/meridian/config") // Volume-mounted config
	v.AddConfigPath("/etc/meridian")            // System config
	v.AddConfigPath(".")                        // Current directory (dev mode)

	v.SetEnvPrefix("MERIDIAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultLoyaltyConfig()
		v.SetDefault("loyalty.exclusionTags", defaults.ExclusionTags)
		v.SetDefault("loyalty.freeShippingThreshold", defaults.FreeShippingThreshold)
		v.SetDefault("loyalty.maxDiscountPercent", defaults.MaxDiscountPercent)
	}

	var cfg LoyaltyConfig
	if err := v.UnmarshalKey("loyalty", &cfg); err != nil {
		return nil, err
	}
	if err := validateLoyaltyConfig(cfg); err != nil {
		return nil, err
	}

	holder := &LoyaltyConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated LoyaltyConfig
		if err := v.UnmarshalKey("loyalty", &updated); err != nil {
			log.Printf("[loyalty-config] reload failed: %v", err)
			return
		}
		if err := validateLoyaltyConfig(updated); err != nil {
			log.Printf("[loyalty-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[loyalty-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *LoyaltyConfigHolder) Get() LoyaltyConfig {
	return h.current.Load().(LoyaltyConfig)
}

// HolderFromConfig wraps a static config for tests and pure callers.
func HolderFromConfig(cfg LoyaltyConfig) *LoyaltyConfigHolder {
	holder := &LoyaltyConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func validateLoyaltyConfig(cfg LoyaltyConfig) error {
	if cfg.MaxDiscountPercent <= 0 || cfg.MaxDiscountPercent > 100 {
		return errors.New("loyalty.maxDiscountPercent must be in (0, 100]")
	}
	if cfg.FreeShippingThreshold < 0 {
		return errors.New("loyalty.freeShippingThreshold cannot be negative")
	}
	return nil
}
