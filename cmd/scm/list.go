//go:build linux

package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	serial "github.com/RishiGupta12/serial-communication-manager"
)

func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "list serial ports present on the system",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "details",
				Aliases: []string{"d"},
				Usage:   "show USB vendor, product and serial number.",
			},
		},
		Action: func(ctx *cli.Context) error {
			if !ctx.Bool("details") {
				ports, err := serial.ListPorts()
				if err != nil {
					return err
				}
				for _, p := range ports {
					fmt.Println(p)
				}
				return nil
			}

			details, err := serial.ListPortDetails()
			if err != nil {
				return err
			}
			for _, d := range details {
				if !d.IsUSB {
					fmt.Println(d.Name)
					continue
				}
				fmt.Printf("%s\tusb %s:%s\t%s\n", d.Name, d.VID, d.PID, d.SerialNumber)
			}
			return nil
		},
	}
}
