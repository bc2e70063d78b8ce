package plumber

import (
	"context"
	"fmt"

	"github.com/cuemby/lvs-agent/pkg/ipvs"
	"github.com/cuemby/lvs-agent/pkg/log"
	"github.com/cuemby/lvs-agent/pkg/netns"
	"github.com/cuemby/lvs-agent/pkg/types"
	"github.com/rs/zerolog"
)

// Lifecycle creates pool namespaces with their VIP interface and releases
// them on teardown.
type Lifecycle struct {
	executor netns.Executor
	driver   InterfaceDriver
	logger   zerolog.Logger
}

// NewLifecycle creates a namespace lifecycle manager
func NewLifecycle(ex netns.Executor, driver InterfaceDriver) *Lifecycle {
	return &Lifecycle{
		executor: ex,
		driver:   driver,
		logger:   log.WithComponent("lifecycle"),
	}
}

// Ensure makes sure namespace exists and carries a configured interface for
// port. An existing device is reused unless reuseExisting is false, in
// which case a *DeviceExistsError is returned. It returns the device name.
func (l *Lifecycle) Ensure(ctx context.Context, namespace string, port types.Port, reuseExisting bool) (string, error) {
	logger := l.logger.With().Str("namespace", namespace).Str("port_id", port.ID).Logger()

	exists, err := netns.Exists(ctx, l.executor, namespace)
	if err != nil {
		return "", err
	}
	if !exists {
		if err := netns.Add(ctx, l.executor, namespace); err != nil {
			return "", err
		}
		logger.Info().Msg("Created namespace")
	}

	device := l.driver.DeviceName(port)
	present, err := l.driver.DeviceExists(ctx, device, namespace)
	if err != nil {
		return "", fmt.Errorf("checking device %s: %w", device, err)
	}
	if present {
		if !reuseExisting {
			return "", &DeviceExistsError{Device: device, Namespace: namespace}
		}
		logger.Debug().Str("device", device).Msg("Reusing existing device")
	} else {
		if err := l.driver.Plug(ctx, port.NetworkID, port.ID, device, port.MACAddress, namespace); err != nil {
			return "", fmt.Errorf("plugging port %s: %w", port.ID, err)
		}
	}

	cidrs, err := CIDRs(port.FixedIPs)
	if err != nil {
		return "", err
	}
	if err := l.driver.InitL3(ctx, device, cidrs, namespace); err != nil {
		return "", fmt.Errorf("configuring addresses on %s: %w", device, err)
	}

	// The gateway is optional, so a failed route install is not fatal.
	if gw := GatewayIP(port); gw != "" {
		argv := []string{"ip", "route", "replace", "default", "via", gw, "dev", device}
		if _, err := l.executor.Execute(ctx, namespace, argv); err != nil {
			logger.Debug().Err(err).Str("gateway", gw).Msg("Default route not installed")
		}
	}

	return device, nil
}

// Teardown flushes the table in namespace, unplugs the device for portID
// when one is known, and deletes the namespace once only loopback is left.
// It is a no-op for a namespace that does not exist and reports whether
// anything was done.
func (l *Lifecycle) Teardown(ctx context.Context, namespace, portID string) (bool, error) {
	exists, err := netns.Exists(ctx, l.executor, namespace)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}

	if _, err := l.executor.Execute(ctx, namespace, ipvs.FlushCommand()); err != nil {
		return true, fmt.Errorf("flushing table: %w", err)
	}

	if portID != "" {
		device := l.driver.DeviceName(types.Port{ID: portID})
		if err := l.driver.Unplug(ctx, device, namespace); err != nil {
			return true, fmt.Errorf("unplugging %s: %w", device, err)
		}
	}

	return true, l.collect(ctx, namespace)
}

// collect deletes namespace if nothing but loopback remains in it.
func (l *Lifecycle) collect(ctx context.Context, namespace string) error {
	devices, err := netns.Devices(ctx, l.executor, namespace)
	if err != nil {
		return err
	}
	for _, dev := range devices {
		if dev != "lo" {
			l.logger.Debug().
				Str("namespace", namespace).
				Strs("devices", devices).
				Msg("Namespace still in use, keeping it")
			return nil
		}
	}

	if err := netns.Delete(ctx, l.executor, namespace); err != nil {
		return err
	}
	l.logger.Info().Str("namespace", namespace).Msg("Deleted namespace")
	return nil
}
