package config

import (
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// RuntimeConfig holds storefront tunables that operators may change without a
// restart: the checkout/receipt paths used for recovery redirects, the set of
// payment gateways a recovered session may pre-select, and session retention.
type RuntimeConfig struct {
	CheckoutPath      string   `mapstructure:"checkoutPath"`
	ReceiptPath       string   `mapstructure:"receiptPath"`
	EnabledGateways   []string `mapstructure:"enabledGateways"`
	SessionTTLMinutes int      `mapstructure:"sessionTTLMinutes"`
}

func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		CheckoutPath:      "/checkout",
		ReceiptPath:       "/receipt",
		EnabledGateways:   []string{"stripe", "paypal"},
		SessionTTLMinutes: 60 * 24 * 14,
	}
}

// RuntimeHolder exposes the current RuntimeConfig and follows file changes.
type RuntimeHolder struct {
	current atomic.Value // holds RuntimeConfig
}

func NewRuntimeHolder() (*RuntimeHolder, error) {
	v := viper.New()

	v.SetConfigName("cartloop")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/cartloop")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CARTLOOP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultRuntimeConfig()
		v.SetDefault("runtime.checkoutPath", defaults.CheckoutPath)
		v.SetDefault("runtime.receiptPath", defaults.ReceiptPath)
		v.SetDefault("runtime.enabledGateways", defaults.EnabledGateways)
		v.SetDefault("runtime.sessionTTLMinutes", defaults.SessionTTLMinutes)
	}

	holder := &RuntimeHolder{}
	if err := holder.reload(v); err != nil {
		return nil, err
	}

	v.OnConfigChange(func(fsnotify.Event) {
		// keep serving the previous config if the new file is malformed
		_ = holder.reload(v)
	})
	v.WatchConfig()

	return holder, nil
}

func (h *RuntimeHolder) reload(v *viper.Viper) error {
	var cfg RuntimeConfig
	if err := v.UnmarshalKey("runtime", &cfg); err != nil {
		return err
	}
	if cfg.CheckoutPath == "" {
		cfg.CheckoutPath = DefaultRuntimeConfig().CheckoutPath
	}
	if cfg.ReceiptPath == "" {
		cfg.ReceiptPath = DefaultRuntimeConfig().ReceiptPath
	}
	if cfg.SessionTTLMinutes <= 0 {
		cfg.SessionTTLMinutes = DefaultRuntimeConfig().SessionTTLMinutes
	}
	h.current.Store(cfg)
	return nil
}

func (h *RuntimeHolder) Current() RuntimeConfig {
	if cfg, ok := h.current.Load().(RuntimeConfig); ok {
		return cfg
	}
	return DefaultRuntimeConfig()
}

// GatewayEnabled reports whether a recovered session may pre-select the gateway.
func (h *RuntimeHolder) GatewayEnabled(gateway string) bool {
	gateway = strings.ToLower(strings.TrimSpace(gateway))
	if gateway == "" {
		return false
	}
	for _, enabled := range h.Current().EnabledGateways {
		if strings.ToLower(strings.TrimSpace(enabled)) == gateway {
			return true
		}
	}
	return false
}
