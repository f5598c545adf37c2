package config

import (
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// EnforcementConfig is the global entitlement kill switch. When a flag is
// false every check in that context answers allowed with enforced=false;
// usage metering keeps writing either way.
type EnforcementConfig struct {
	ServerEnabled bool `mapstructure:"serverEnabled"`
	ClientEnabled bool `mapstructure:"clientEnabled"`
}

func DefaultEnforcementConfig() EnforcementConfig {
	return EnforcementConfig{
		ServerEnabled: true,
		ClientEnabled: true,
	}
}

// EnforcementHolder exposes the current enforcement flags. Services read it
// at call time, never from the environment directly.
type EnforcementHolder struct {
	current atomic.Value // holds EnforcementConfig
}

// NewEnforcementHolder loads enforcement.yml and hot-reloads it on change.
// A missing file means enforcement stays on.
func NewEnforcementHolder() (*EnforcementHolder, error) {
	v := viper.New()

	v.SetConfigName("enforcement")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/jobdeck/config")
	v.AddConfigPath("/etc/jobdeck")
	v.AddConfigPath(".")

	v.SetEnvPrefix("JOBDECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultEnforcementConfig()
	v.SetDefault("enforcement.serverEnabled", defaults.ServerEnabled)
	v.SetDefault("enforcement.clientEnabled", defaults.ClientEnabled)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg EnforcementConfig
	if err := v.UnmarshalKey("enforcement", &cfg); err != nil {
		return nil, err
	}

	holder := &EnforcementHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated EnforcementConfig
		if err := v.UnmarshalKey("enforcement", &updated); err != nil {
			log.Printf("[enforcement-config] reload failed: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[enforcement-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticEnforcement returns a holder pinned to cfg. Tests use it to flip
// the kill switch without touching the filesystem.
func NewStaticEnforcement(cfg EnforcementConfig) *EnforcementHolder {
	holder := &EnforcementHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *EnforcementHolder) Get() EnforcementConfig {
	return h.current.Load().(EnforcementConfig)
}

// Set replaces the current flags. Intended for tests.
func (h *EnforcementHolder) Set(cfg EnforcementConfig) {
	h.current.Store(cfg)
}
