package plumber

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/cuemby/lvs-agent/pkg/types"
)

// MaxDeviceNameLen keeps generated names under the kernel's IFNAMSIZ.
const MaxDeviceNameLen = 14

// ErrDeviceExists matches a *DeviceExistsError.
var ErrDeviceExists = errors.New("device already exists")

// DeviceExistsError is returned by Ensure when the VIP device is already
// present and reuse is disabled.
type DeviceExistsError struct {
	Device    string
	Namespace string
}

func (e *DeviceExistsError) Error() string {
	return fmt.Sprintf("device %s already exists in namespace %s", e.Device, e.Namespace)
}

// Is reports whether target is ErrDeviceExists.
func (e *DeviceExistsError) Is(target error) bool {
	return target == ErrDeviceExists
}

// InterfaceDriver creates and configures the virtual interface that carries
// a VIP port inside a namespace.
type InterfaceDriver interface {
	// DeviceName returns the interface name used for port.
	DeviceName(port types.Port) string

	// DeviceExists reports whether device is present in namespace.
	DeviceExists(ctx context.Context, device, namespace string) (bool, error)

	// Plug creates device in namespace with the given MAC address.
	Plug(ctx context.Context, networkID, portID, device, mac, namespace string) error

	// InitL3 sets the addresses of device to exactly cidrs.
	InitL3(ctx context.Context, device string, cidrs []string, namespace string) error

	// Unplug removes device from namespace. A missing device is not an error.
	Unplug(ctx context.Context, device, namespace string) error
}

// DeviceName builds an interface name from prefix and a port id, truncated
// to MaxDeviceNameLen.
func DeviceName(prefix, portID string) string {
	name := prefix + portID
	if len(name) > MaxDeviceNameLen {
		name = name[:MaxDeviceNameLen]
	}
	return name
}

// CIDRs returns each fixed IP in CIDR notation using the prefix length of
// its subnet.
func CIDRs(fixedIPs []types.FixedIP) ([]string, error) {
	cidrs := make([]string, 0, len(fixedIPs))
	for _, fip := range fixedIPs {
		ip := net.ParseIP(fip.IPAddress)
		if ip == nil {
			return nil, fmt.Errorf("invalid fixed ip %q", fip.IPAddress)
		}
		_, subnet, err := net.ParseCIDR(fip.Subnet.CIDR)
		if err != nil {
			return nil, fmt.Errorf("invalid subnet cidr for %s: %w", fip.IPAddress, err)
		}
		ones, _ := subnet.Mask.Size()
		cidrs = append(cidrs, fmt.Sprintf("%s/%d", ip, ones))
	}
	return cidrs, nil
}

// GatewayIP returns the gateway of the port's first fixed IP, if any.
func GatewayIP(port types.Port) string {
	if len(port.FixedIPs) == 0 {
		return ""
	}
	return port.FixedIPs[0].Subnet.GatewayIP
}
