package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// PipelineConfig holds the queue retention windows. Values come from the
// environment and may be overridden by an optional pipeline.yml that is
// watched for changes.
type PipelineConfig struct {
	RemoveOnCompleteAge   time.Duration `mapstructure:"removeOnCompleteAge"`
	RemoveOnCompleteCount int           `mapstructure:"removeOnCompleteCount"`
	RemoveOnFailAge       time.Duration `mapstructure:"removeOnFailAge"`
}

func DefaultPipelineConfig(cfg Config) PipelineConfig {
	return PipelineConfig{
		RemoveOnCompleteAge:   cfg.Queue.RemoveOnCompleteAge,
		RemoveOnCompleteCount: cfg.Queue.RemoveOnCompleteCount,
		RemoveOnFailAge:       cfg.Queue.RemoveOnFailAge,
	}
}

type PipelineConfigHolder struct {
	current atomic.Value // holds PipelineConfig
}

func NewPipelineConfigHolder(cfg Config, log *zap.Logger) (*PipelineConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("pipeline")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/revenuepulse")
	v.AddConfigPath(".")

	v.SetEnvPrefix("REVENUEPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return newPipelineConfigHolder(v, DefaultPipelineConfig(cfg), log)
}

// NewStaticPipelineConfigHolder returns a holder that never reloads.
func NewStaticPipelineConfigHolder(cfg PipelineConfig) *PipelineConfigHolder {
	holder := &PipelineConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func newPipelineConfigHolder(v *viper.Viper, defaults PipelineConfig, log *zap.Logger) (*PipelineConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("pipeline-config")

	v.SetDefault("queue.removeOnCompleteAge", defaults.RemoveOnCompleteAge)
	v.SetDefault("queue.removeOnCompleteCount", defaults.RemoveOnCompleteCount)
	v.SetDefault("queue.removeOnFailAge", defaults.RemoveOnFailAge)

	watch := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		watch = false
	}

	var cfg PipelineConfig
	if err := v.UnmarshalKey("queue", &cfg); err != nil {
		return nil, err
	}
	if err := validatePipelineConfig(cfg); err != nil {
		return nil, err
	}

	holder := &PipelineConfigHolder{}
	holder.current.Store(cfg)

	if !watch {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PipelineConfig
		if err := v.UnmarshalKey("queue", &updated); err != nil {
			log.Warn("reload failed", zap.Error(err))
			return
		}
		if err := validatePipelineConfig(updated); err != nil {
			log.Warn("invalid config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *PipelineConfigHolder) Get() PipelineConfig {
	return h.current.Load().(PipelineConfig)
}

func validatePipelineConfig(cfg PipelineConfig) error {
	if cfg.RemoveOnCompleteAge < 0 {
		return errors.New("queue.removeOnCompleteAge cannot be negative")
	}
	if cfg.RemoveOnCompleteCount < 0 {
		return errors.New("queue.removeOnCompleteCount cannot be negative")
	}
	if cfg.RemoveOnFailAge < 0 {
		return errors.New("queue.removeOnFailAge cannot be negative")
	}
	return nil
}
