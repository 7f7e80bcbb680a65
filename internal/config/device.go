package config

import (
	"fmt"
	"strings"
)

const (
	DeviceCPU    = "CPU"
	DeviceGPU    = "GPU"
	DeviceNPU    = "NPU"
	DeviceMYRIAD = "MYRIAD"
)

// NormalizeDevice canonicalizes a device identifier. Empty selects the CPU.
// A known identifier is not necessarily supported by every engine.
func NormalizeDevice(raw string) (string, error) {
	device := strings.ToUpper(strings.TrimSpace(raw))
	if device == "" {
		return DeviceCPU, nil
	}
	switch device {
	case DeviceCPU, DeviceGPU, DeviceNPU, DeviceMYRIAD:
		return device, nil
	default:
		return "", fmt.Errorf(
			"invalid device %q (expected %s|%s|%s|%s)",
			raw,
			DeviceCPU,
			DeviceGPU,
			DeviceNPU,
			DeviceMYRIAD,
		)
	}
}
