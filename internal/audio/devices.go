// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gordonklaus/portaudio"
)

// PortAudio entry points, replaceable in tests.
var (
	paLibInitialize              = portaudio.Initialize
	paLibTerminate               = portaudio.Terminate
	paLibDevicesFunc             = portaudio.Devices
	paLibDefaultInputDeviceFunc  = portaudio.DefaultInputDevice
	paLibDefaultOutputDeviceFunc = portaudio.DefaultOutputDevice
	paDevicesFunc                = paDevices
)

// Initialize sets up the PortAudio subsystem. Pair with Terminate.
func Initialize() error {
	if err := paLibInitialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return nil
}

// Terminate shuts down the PortAudio subsystem.
func Terminate() error {
	if err := paLibTerminate(); err != nil {
		return fmt.Errorf("failed to terminate PortAudio: %w", err)
	}
	return nil
}

// HostDevices returns every PortAudio device. PortAudio must be initialized.
func HostDevices() ([]Device, error) {
	infos, err := paDevicesFunc()
	if err != nil {
		return nil, err
	}

	defIn, defOut := -1, -1
	if d, err := paLibDefaultInputDeviceFunc(); err == nil && d != nil {
		defIn = d.Index
	}
	if d, err := paLibDefaultOutputDeviceFunc(); err == nil && d != nil {
		defOut = d.Index
	}

	devices := make([]Device, len(infos))
	for i, info := range infos {
		host := ""
		if info.HostApi != nil {
			host = info.HostApi.Name
		}
		devices[i] = Device{
			ID:                i,
			Name:              info.Name,
			HostAPI:           host,
			MaxInputChannels:  info.MaxInputChannels,
			MaxOutputChannels: info.MaxOutputChannels,
			DefaultSampleRate: info.DefaultSampleRate,
			IsDefaultInput:    info.Index == defIn,
			IsDefaultOutput:   info.Index == defOut,
		}
	}
	return devices, nil
}

// InputDevice resolves a selector to an input-capable device. The selector
// is "default" (or empty, or "-1"), a device index, or a case-insensitive
// name substring.
func InputDevice(selector string) (*portaudio.DeviceInfo, error) {
	return resolveDevice(selector, "input", paLibDefaultInputDeviceFunc,
		func(d *portaudio.DeviceInfo) int { return d.MaxInputChannels })
}

// OutputDevice resolves a selector to an output-capable device.
func OutputDevice(selector string) (*portaudio.DeviceInfo, error) {
	return resolveDevice(selector, "output", paLibDefaultOutputDeviceFunc,
		func(d *portaudio.DeviceInfo) int { return d.MaxOutputChannels })
}

func resolveDevice(
	selector, direction string,
	defaultFunc func() (*portaudio.DeviceInfo, error),
	channels func(*portaudio.DeviceInfo) int,
) (*portaudio.DeviceInfo, error) {
	devices, err := paDevicesFunc()
	if err != nil {
		return nil, err
	}

	selector = strings.TrimSpace(selector)
	if selector == "" || selector == "-1" || strings.EqualFold(selector, "default") {
		device, err := defaultFunc()
		if err != nil {
			return nil, err
		}
		if device == nil {
			return nil, fmt.Errorf("%w: no default %s device", ErrNoDevice, direction)
		}
		return device, nil
	}

	if id, err := strconv.Atoi(selector); err == nil {
		if id < 0 || id >= len(devices) {
			return nil, fmt.Errorf("%w: invalid device ID: %d", ErrInvalidDevice, id)
		}
		if channels(devices[id]) == 0 {
			return nil, fmt.Errorf("%w: device %d (%s) does not support %s", ErrInvalidDevice, id, devices[id].Name, direction)
		}
		return devices[id], nil
	}

	name := strings.ToLower(selector)
	for _, d := range devices {
		if channels(d) > 0 && strings.Contains(strings.ToLower(d.Name), name) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: no %s device matching %q", ErrInvalidDevice, direction, selector)
}

// ListDevices writes a human readable device table.
func ListDevices(w io.Writer, devices []Device) {
	fmt.Fprintf(w, "\nAvailable Audio Devices\n\n")

	for _, d := range devices {
		kind := ""
		switch {
		case d.MaxInputChannels > 0 && d.MaxOutputChannels > 0:
			kind = "Input/Output"
		case d.MaxInputChannels > 0:
			kind = "Input"
		case d.MaxOutputChannels > 0:
			kind = "Output"
		}

		marks := ""
		if d.IsDefaultInput {
			marks += " [default input]"
		}
		if d.IsDefaultOutput {
			marks += " [default output]"
		}

		fmt.Fprintf(w, "[%d] %s (%s)%s\n", d.ID, d.Name, kind, marks)
		if d.HostAPI != "" {
			fmt.Fprintf(w, "    Host API: %s\n", d.HostAPI)
		}
		fmt.Fprintf(w, "    Input channels: %d, Output channels: %d\n", d.MaxInputChannels, d.MaxOutputChannels)
		fmt.Fprintf(w, "    Default sample rate: %.0f Hz\n\n", d.DefaultSampleRate)
	}
}

// paDevices returns all PortAudio devices, never a nil slice on success.
func paDevices() ([]*portaudio.DeviceInfo, error) {
	devices, err := paLibDevicesFunc()
	if err != nil {
		return nil, err
	}
	if devices == nil {
		devices = []*portaudio.DeviceInfo{}
	}
	return devices, nil
}
