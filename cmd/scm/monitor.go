//go:build linux

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/RishiGupta12/serial-communication-manager/consts"
	"github.com/RishiGupta12/serial-communication-manager/errs"
	"github.com/RishiGupta12/serial-communication-manager/listener"
	"github.com/RishiGupta12/serial-communication-manager/logs"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	serial "github.com/RishiGupta12/serial-communication-manager"
)

func monitorCommand() *cli.Command {
	return &cli.Command{
		Name:  "monitor",
		Usage: "print received data and line events until interrupted",
		Flags: []cli.Flag{
			flagPort,
			flagBaud,
			&cli.BoolFlag{
				Name:  "data",
				Usage: "print received bytes.",
			},
			&cli.BoolFlag{
				Name:  "events",
				Usage: "print modem line and line error events.",
			},
			&cli.StringFlag{
				Name:    "metrics-addr",
				Usage:   "serve prometheus metrics on this address, e.g. :9100.",
				EnvVars: []string{consts.MetricsAddr},
			},
		},
		Action: runMonitor,
	}
}

func runMonitor(ctx *cli.Context) error {
	m, err := newManager(ctx)
	if err != nil {
		return err
	}
	defer m.Close()

	h, err := m.OpenPort(serial.Config{
		Device:   ctx.String(flagPort.Name),
		BaudRate: ctx.Int(flagBaud.Name),
	})
	if err != nil {
		return err
	}
	port, _ := m.Port(h)

	data, events := ctx.Bool("data"), ctx.Bool("events")
	if !data && !events {
		data, events = true, true
	}

	if data {
		err := m.AttachDataListener(h, listener.DataListenerFunc(func(listener.Handle) {
			b, err := port.ReadAvailable()
			if err != nil {
				logs.Warn("read failed", zap.Error(err))
				return
			}
			if len(b) > 0 {
				fmt.Printf("data  %q\n", b)
			}
		}))
		if err != nil {
			return err
		}
	}
	if events {
		err := m.AttachEventListener(h, listener.EventListenerFunc(func(_ listener.Handle, ev listener.Event) {
			printEvent(ev)
		}))
		if err != nil {
			return err
		}
	}

	var srv *http.Server
	if addr := ctx.String("metrics-addr"); addr != "" {
		srv = &http.Server{Addr: addr, Handler: m.Metrics().Handler()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logs.Error("metrics server stopped", zap.Error(err))
			}
		}()
	}

	// buffered so a signal sent before Notify returns is not lost
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)

	w, _ := m.Worker(h)
	select {
	case <-sig:
		logs.Info("shutdown...")
	case <-w.Done():
		// the looper ended on its own after a wait failure
	}

	if data {
		err = multierr.Append(err, ignoreNotAttached(m.DetachDataListener(h)))
	}
	if events {
		err = multierr.Append(err, ignoreNotAttached(m.DetachEventListener(h)))
	}
	err = multierr.Append(err, m.ClosePort(h))
	if srv != nil {
		err = multierr.Append(err, srv.Shutdown(context.Background()))
	}
	return err
}

func printEvent(ev listener.Event) {
	switch ev.Kind {
	case listener.EventLineChange:
		fmt.Printf("lines %s (changed %s)\n", ev.Lines, ev.Changed)
	case listener.EventError:
		fmt.Printf("error frame=%d overrun=%d parity=%d break=%d buffer=%d\n",
			ev.Errors.Frame, ev.Errors.Overrun, ev.Errors.Parity, ev.Errors.Break, ev.Errors.BufferOverrun)
	case listener.EventWaitFailure:
		fmt.Printf("wait failed: %v\n", ev.Err)
	}
}

// a wait failure has already removed the listeners
func ignoreNotAttached(err error) error {
	if errs.GetCode(err) == errs.NotAttachedErrCode {
		return nil
	}
	return err
}
