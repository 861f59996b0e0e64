package config

import (
	"errors"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/discedric/netbox-license/internal/license/accounting"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// PolicyHolder keeps the licensing policy read from licensing.yml and swaps it
// atomically when the file changes.
type PolicyHolder struct {
	current atomic.Value // holds accounting.Policy
}

// NewPolicyHolder reads the "licensing" section of licensing.yml. A missing
// file yields the default policy; an invalid one is an error at startup and is
// ignored on reload.
func NewPolicyHolder(cfg Config, log *zap.Logger) (*PolicyHolder, error) {
	v := viper.New()

	if cfg.PolicyPath != "" {
		v.SetConfigFile(cfg.PolicyPath)
	} else {
		v.SetConfigName("licensing")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/netbox-license")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("LICENSING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := accounting.DefaultPolicy()
	v.SetDefault("licensing.enforce_parent_consistency", defaults.EnforceParentConsistency)
	v.SetDefault("licensing.warning_days", defaults.WarningDays)
	v.SetDefault("licensing.info_days", defaults.InfoDays)
	v.SetDefault("licensing.progress_floor", defaults.ProgressFloor)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileLoaded = false
	}

	policy, err := decodePolicy(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticPolicy(policy)
	if !fileLoaded {
		log.Info("licensing policy file not found, using defaults")
		return holder, nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodePolicy(v)
		if err != nil {
			log.Warn("licensing policy reload ignored", zap.String("file", filepath.Base(e.Name)), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("licensing policy reloaded",
			zap.String("file", filepath.Base(e.Name)),
			zap.Bool("enforce_parent_consistency", updated.EnforceParentConsistency),
			zap.Int("warning_days", updated.WarningDays),
			zap.Int("info_days", updated.InfoDays),
		)
	})
	v.WatchConfig()

	return holder, nil
}

// NewStaticPolicy wraps a fixed policy. Tests use it directly.
func NewStaticPolicy(policy accounting.Policy) *PolicyHolder {
	holder := &PolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func (h *PolicyHolder) Policy() accounting.Policy {
	return h.current.Load().(accounting.Policy)
}

func decodePolicy(v *viper.Viper) (accounting.Policy, error) {
	var policy accounting.Policy
	if err := v.UnmarshalKey("licensing", &policy); err != nil {
		return accounting.Policy{}, err
	}
	if err := validatePolicy(policy); err != nil {
		return accounting.Policy{}, err
	}
	return policy, nil
}

func validatePolicy(p accounting.Policy) error {
	if p.WarningDays <= 0 {
		return errors.New("licensing.warning_days must be positive")
	}
	if p.InfoDays < p.WarningDays {
		return errors.New("licensing.info_days must not be below licensing.warning_days")
	}
	if p.ProgressFloor < 0 || p.ProgressFloor > 100 {
		return errors.New("licensing.progress_floor must be between 0 and 100")
	}
	return nil
}
