// Package plumbertest provides an in-memory plumber.InterfaceDriver.
package plumbertest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cuemby/lvs-agent/pkg/plumber"
	"github.com/cuemby/lvs-agent/pkg/types"
)

// DeviceLister is implemented by hosts that track the links of each
// namespace, such as ipvstest.Host.
type DeviceLister interface {
	SetDevices(namespace string, devices ...string)
}

// Driver is an in-memory plumber.InterfaceDriver. When Host is set, plugged
// devices are mirrored into the host's link list so namespace garbage
// collection sees them.
type Driver struct {
	Prefix string
	Host   DeviceLister

	// PlugErr, when set, is returned by Plug
	PlugErr error

	mu      sync.Mutex
	devices map[string]map[string][]string // namespace -> device -> cidrs
	calls   []string
}

var _ plumber.InterfaceDriver = (*Driver)(nil)

// NewDriver creates an empty fake driver
func NewDriver() *Driver {
	return &Driver{Prefix: "tap", devices: make(map[string]map[string][]string)}
}

// AddDevice pretends device is already present in namespace
func (f *Driver) AddDevice(namespace, device string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensure(namespace)[device] = nil
	f.sync(namespace)
}

// Addresses returns the CIDRs last configured on device
func (f *Driver) Addresses(namespace, device string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.devices[namespace][device]
}

// HasDevice reports whether device is plugged in namespace
func (f *Driver) HasDevice(namespace, device string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.devices[namespace][device]
	return ok
}

// Calls returns the driver operations performed, e.g. "plug tapabc qlbaas-p1"
func (f *Driver) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *Driver) DeviceName(port types.Port) string {
	return plumber.DeviceName(f.Prefix, port.ID)
}

func (f *Driver) DeviceExists(ctx context.Context, device, namespace string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.devices[namespace][device]
	return ok, nil
}

func (f *Driver) Plug(ctx context.Context, networkID, portID, device, mac, namespace string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("plug %s %s", device, namespace))
	if f.PlugErr != nil {
		return f.PlugErr
	}
	f.ensure(namespace)[device] = nil
	f.sync(namespace)
	return nil
}

func (f *Driver) InitL3(ctx context.Context, device string, cidrs []string, namespace string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("init_l3 %s %s", device, namespace))
	if _, ok := f.devices[namespace][device]; !ok {
		return fmt.Errorf("device %s not found in %s", device, namespace)
	}
	f.devices[namespace][device] = append([]string(nil), cidrs...)
	return nil
}

func (f *Driver) Unplug(ctx context.Context, device, namespace string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("unplug %s %s", device, namespace))
	delete(f.devices[namespace], device)
	f.sync(namespace)
	return nil
}

func (f *Driver) ensure(namespace string) map[string][]string {
	if f.devices[namespace] == nil {
		f.devices[namespace] = make(map[string][]string)
	}
	return f.devices[namespace]
}

func (f *Driver) sync(namespace string) {
	if f.Host == nil {
		return
	}
	var devices []string
	for dev := range f.devices[namespace] {
		devices = append(devices, dev)
	}
	sort.Strings(devices)
	f.Host.SetDevices(namespace, append([]string{"lo"}, devices...)...)
}
