package consts

const (
	EnvPrefix       = "SCM"
	Env             = "SCM_ENV"           // "test" switches logging to development mode
	MaxListeners    = "SCM_MAX_LISTENERS" // registry capacity
	LogLevel        = "SCM_LOG_LEVEL"     // debug, info, warn, error
	ConfigFile      = "SCM_CONFIG"        // explicit config file path
	MetricsAddr     = "SCM_METRICS_ADDR"  // listen address for the metrics endpoint
	DefaultPortName = "SCM_PORT"          // device used by monitor/console when --port is absent
)
