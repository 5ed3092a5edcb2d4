// Package config loads Manager options from defaults, an optional YAML file
// and SCM_* environment variables.
package config

import (
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/RishiGupta12/serial-communication-manager/consts"
	"github.com/RishiGupta12/serial-communication-manager/errs"
	"github.com/RishiGupta12/serial-communication-manager/logs"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	KeyMaxListeners     = "max_listeners"
	KeyLinePollInterval = "line_poll_interval"
	KeyCloseTimeout     = "close_timeout"
	KeyLogLevel         = "log_level"
	KeyMetricsNamespace = "metrics_namespace"
)

type Options struct {
	// MaxListeners bounds the number of devices with active listeners. 0 means unbounded.
	MaxListeners int
	// LinePollInterval is how often modem lines and error counters are sampled
	// while an event listener is attached.
	LinePollInterval time.Duration
	// CloseTimeout bounds how long closing waits for a retiring looper.
	CloseTimeout     time.Duration
	LogLevel         string
	MetricsNamespace string
}

func Default() *Options {
	return &Options{
		MaxListeners:     consts.DefaultMaxListeners,
		LinePollInterval: consts.DefaultLinePollInterval,
		CloseTimeout:     consts.DefaultCloseTimeout,
		LogLevel:         consts.DefaultLogLevel,
		MetricsNamespace: consts.DefaultMetricsNamespace,
	}
}

// Load reads options. An empty path falls back to ~/.scm/config.yaml, whose
// absence is not an error; an explicit path must exist.
func Load(path string) (*Options, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(consts.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		dir, err := homedir.Expand(consts.DefaultConfigDir)
		if err != nil {
			e := errs.NewLoadConfigErr().WithErr(err)
			logs.Error(e.Error())
			return nil, e
		}
		v.AddConfigPath(filepath.Clean(dir))
		v.SetConfigName(consts.DefaultConfigName)
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			e := errs.NewLoadConfigErr().WithErr(err)
			logs.Error(e.Error(), zap.String(consts.LogFieldParams, "path"), zap.String(consts.LogFieldValue, path))
			return nil, e
		}
	}

	opts := &Options{
		MaxListeners:     v.GetInt(KeyMaxListeners),
		LinePollInterval: v.GetDuration(KeyLinePollInterval),
		CloseTimeout:     v.GetDuration(KeyCloseTimeout),
		LogLevel:         v.GetString(KeyLogLevel),
		MetricsNamespace: v.GetString(KeyMetricsNamespace),
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

func (o *Options) Validate() error {
	if o.MaxListeners < 0 {
		e := errs.NewInvalidParamErr()
		logs.Error(e.Error(), zap.String(consts.LogFieldParams, KeyMaxListeners), zap.Int(consts.LogFieldValue, o.MaxListeners))
		return e
	}
	if o.LinePollInterval <= 0 {
		e := errs.NewInvalidParamErr()
		logs.Error(e.Error(), zap.String(consts.LogFieldParams, KeyLinePollInterval), zap.Duration(consts.LogFieldValue, o.LinePollInterval))
		return e
	}
	if o.CloseTimeout <= 0 {
		e := errs.NewInvalidParamErr()
		logs.Error(e.Error(), zap.String(consts.LogFieldParams, KeyCloseTimeout), zap.Duration(consts.LogFieldValue, o.CloseTimeout))
		return e
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault(KeyMaxListeners, d.MaxListeners)
	v.SetDefault(KeyLinePollInterval, d.LinePollInterval)
	v.SetDefault(KeyCloseTimeout, d.CloseTimeout)
	v.SetDefault(KeyLogLevel, d.LogLevel)
	v.SetDefault(KeyMetricsNamespace, d.MetricsNamespace)
}
