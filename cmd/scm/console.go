//go:build linux

package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/RishiGupta12/serial-communication-manager/consts"
	"github.com/RishiGupta12/serial-communication-manager/errs"
	"github.com/RishiGupta12/serial-communication-manager/listener"
	"github.com/RishiGupta12/serial-communication-manager/logs"
	"github.com/chzyer/readline"
	"github.com/mitchellh/go-homedir"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	serial "github.com/RishiGupta12/serial-communication-manager"
)

func consoleCommand() *cli.Command {
	return &cli.Command{
		Name:  "console",
		Usage: "interactive terminal, each entered line is sent to the port",
		Flags: []cli.Flag{
			flagPort,
			flagBaud,
			&cli.StringFlag{
				Name:  "newline",
				Value: `\r\n`,
				Usage: "line terminator appended to each entered line, with \\r and \\n escapes.",
			},
		},
		Action: runConsole,
	}
}

func runConsole(ctx *cli.Context) error {
	m, err := newManager(ctx)
	if err != nil {
		return err
	}
	defer m.Close()

	newline := strings.NewReplacer(`\r`, "\r", `\n`, "\n").Replace(ctx.String("newline"))
	h, err := m.OpenPort(serial.Config{
		Device:    ctx.String(flagPort.Name),
		BaudRate:  ctx.Int(flagBaud.Name),
		Delimiter: newline,
	})
	if err != nil {
		return err
	}
	port, _ := m.Port(h)

	input, err := readline.NewEx(&readline.Config{
		Prompt:      "> ",
		HistoryFile: historyFile(),
	})
	if err != nil {
		return err
	}
	defer input.Close()
	input.CaptureExitSignal()

	out := input.Stdout()
	err = m.AttachDataListener(h, listener.DataListenerFunc(func(listener.Handle) {
		b, err := port.ReadAvailable()
		if err != nil {
			logs.Warn("read failed", zap.Error(err))
			return
		}
		if len(b) > 0 {
			fmt.Fprintf(out, "# %s\n", strings.TrimRight(string(b), "\r\n"))
		}
	}))
	if err != nil {
		return err
	}

	for {
		str, err := input.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				break
			}
			logs.Warn("readline failed", zap.Error(err))
			continue
		}
		if strings.EqualFold(str, "exit") {
			break
		}
		if err := port.WriteLine(str, newline); err != nil {
			if errs.GetCode(err) == errs.PortClosedErrCode {
				break
			}
			logs.Warn("write failed", zap.Error(err))
		}
	}

	return multierr.Append(m.DetachDataListener(h), m.ClosePort(h))
}

func historyFile() string {
	dir, err := homedir.Expand(consts.DefaultConfigDir)
	if err != nil {
		return ""
	}
	return filepath.Join(dir, fmt.Sprintf("console_history_%s", time.Now().Format("20060102")))
}
