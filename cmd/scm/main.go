//go:build linux

package main

import (
	"log"
	"os"

	"github.com/RishiGupta12/serial-communication-manager/config"
	"github.com/RishiGupta12/serial-communication-manager/consts"
	"github.com/RishiGupta12/serial-communication-manager/errs"
	"github.com/RishiGupta12/serial-communication-manager/logs"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	serial "github.com/RishiGupta12/serial-communication-manager"
)

func main() {
	wrapper := NewWrapper()
	if err := wrapper.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

var (
	flagConfig = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "config file, defaults to ~/.scm/config.yaml when present.",
		EnvVars: []string{consts.ConfigFile},
	}
	flagMaxListeners = &cli.IntFlag{
		Name:  "max-listeners",
		Value: consts.DefaultMaxListeners,
		Usage: "max devices with listeners attached, 0 means unbounded.",
		Action: func(c *cli.Context, n int) error {
			if n < 0 {
				e := errs.NewInvalidParamErr()
				logs.Error(e.Error(), zap.String(consts.LogFieldParams, "max-listeners"), zap.Int(consts.LogFieldValue, n))
				return e
			}
			return nil
		},
		EnvVars: []string{consts.MaxListeners},
	}
	flagLogLevel = &cli.StringFlag{
		Name:    "log-level",
		Value:   consts.DefaultLogLevel,
		Usage:   "debug, info, warn or error.",
		EnvVars: []string{consts.LogLevel},
	}
	flagPort = &cli.StringFlag{
		Name:     "port",
		Aliases:  []string{"p"},
		Usage:    "serial device path, e.g. /dev/ttyUSB0.",
		Required: true,
		EnvVars:  []string{consts.DefaultPortName},
	}
	flagBaud = &cli.IntFlag{
		Name:    "baud",
		Aliases: []string{"b"},
		Value:   serial.DefaultBaudRate,
		Usage:   "baud rate, a standard rate between 50 and 4000000.",
		Action: func(c *cli.Context, baud int) error {
			if baud <= 0 || baud > 4000000 {
				e := errs.NewInvalidParamErr()
				logs.Error(e.Error(), zap.String(consts.LogFieldParams, "baud"), zap.Int(consts.LogFieldValue, baud))
				return e
			}
			return nil
		},
	}
)

type Wrapper struct {
	app *cli.App
}

func NewWrapper() *Wrapper {
	wrapper := &Wrapper{
		app: &cli.App{
			Name:    "scm",
			Usage:   "serial port communication manager",
			Version: "0.1.0",
		},
	}
	wrapper.modifyDefaultHelp()
	wrapper.withFlags()
	wrapper.withCommands()
	return wrapper
}

func (wrapper *Wrapper) Run(args []string) error {
	return wrapper.app.Run(args)
}

func (wrapper *Wrapper) modifyDefaultHelp() {
	cli.HelpFlag = &cli.BoolFlag{
		Name: "help",
	}
	cli.AppHelpTemplate = consts.HelpTemplate
}

func (wrapper *Wrapper) withFlags() {
	wrapper.app.Flags = []cli.Flag{
		flagConfig,
		flagMaxListeners,
		flagLogLevel,
	}
}

func (wrapper *Wrapper) withCommands() {
	wrapper.app.Commands = []*cli.Command{
		listCommand(),
		monitorCommand(),
		consoleCommand(),
	}
}

// newManager builds a Manager from the config file with flags taking
// precedence.
func newManager(ctx *cli.Context) (*serial.Manager, error) {
	opts, err := config.Load(ctx.String(flagConfig.Name))
	if err != nil {
		return nil, err
	}
	if ctx.IsSet(flagMaxListeners.Name) {
		opts.MaxListeners = ctx.Int(flagMaxListeners.Name)
	}
	if ctx.IsSet(flagLogLevel.Name) {
		opts.LogLevel = ctx.String(flagLogLevel.Name)
	}
	if err := logs.SetLevel(opts.LogLevel); err != nil {
		return nil, errs.NewInvalidParamErr().WithErr(err)
	}
	return serial.NewManager(opts)
}
