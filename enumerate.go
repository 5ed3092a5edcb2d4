package serial

import (
	"sort"

	"github.com/RishiGupta12/serial-communication-manager/errs"
	"github.com/pkg/errors"
	goserial "go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// PortDetail describes a serial port found on the system. The USB fields are
// empty for non-USB ports.
type PortDetail struct {
	Name         string
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
}

// ListPorts returns the device paths of the serial ports present, sorted.
func ListPorts() ([]string, error) {
	ports, err := goserial.GetPortsList()
	if err != nil {
		return nil, errs.NewIoctlErr().WithErr(errors.Wrap(err, "list ports"))
	}
	sort.Strings(ports)
	return ports, nil
}

// ListPortDetails is ListPorts with USB identification, sorted by name.
func ListPortDetails() ([]PortDetail, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, errs.NewIoctlErr().WithErr(errors.Wrap(err, "list port details"))
	}

	details := make([]PortDetail, 0, len(ports))
	for _, p := range ports {
		details = append(details, PortDetail{
			Name:         p.Name,
			IsUSB:        p.IsUSB,
			VID:          p.VID,
			PID:          p.PID,
			SerialNumber: p.SerialNumber,
		})
	}
	sort.Slice(details, func(i, j int) bool { return details[i].Name < details[j].Name })
	return details, nil
}
