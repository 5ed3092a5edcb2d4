package consts

import "time"

const (
	LogFieldParams    = "params"
	LogFieldValue     = "value"
	LogFieldHandle    = "handle"
	LogFieldWorker    = "worker"
	LogFieldCondition = "condition"
	LogFieldDevice    = "device"
)

const (
	DefaultMaxListeners     = 1024
	DefaultLinePollInterval = 10 * time.Millisecond
	DefaultCloseTimeout     = 2 * time.Second
	DefaultLogLevel         = "info"
	DefaultMetricsNamespace = "scm"
	DefaultConfigDir        = "~/.scm"
	DefaultConfigName       = "config"
)

const HelpTemplate = `NAME:
   {{.Name}} - {{.Usage}}
USAGE:
   {{.HelpName}} {{if .VisibleFlags}}[global options]{{end}}{{if .Commands}} command [command options]{{end}} {{if .ArgsUsage}}{{.ArgsUsage}}{{else}}[arguments...]{{end}}
   {{if .Commands}}
COMMANDS:
{{range .Commands}}{{if not .HideHelp}}   {{join .Names ", "}}{{ "\t"}}{{.Usage}}{{ "\n" }}{{end}}{{end}}{{end}}{{if .VisibleFlags}}
GLOBAL OPTIONS:
   {{range .VisibleFlags}}{{.}}
   {{end}}{{end}}{{if .Version}}
VERSION:
   {{.Version}}
   {{end}}
`
