package plumber

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/cuemby/lvs-agent/pkg/log"
	"github.com/cuemby/lvs-agent/pkg/types"
	"github.com/rs/zerolog"
	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netns"
)

// linkOps is the netlink surface Plug drives.
type linkOps interface {
	LinkAdd(link netlink.Link) error
	LinkDel(link netlink.Link) error
	LinkByName(name string) (netlink.Link, error)
	LinkSetHardwareAddr(link netlink.Link, hwaddr net.HardwareAddr) error
	LinkSetMasterByIndex(link netlink.Link, index int) error
	LinkSetUp(link netlink.Link) error
	// LinkSetNs moves a host link into namespace
	LinkSetNs(link netlink.Link, namespace string) error
	// LinkSetUpIn brings up device inside namespace
	LinkSetUpIn(device, namespace string) error
}

// hostLinks runs linkOps against the kernel.
type hostLinks struct{}

func (hostLinks) LinkAdd(link netlink.Link) error { return netlink.LinkAdd(link) }
func (hostLinks) LinkDel(link netlink.Link) error { return netlink.LinkDel(link) }

func (hostLinks) LinkByName(name string) (netlink.Link, error) { return netlink.LinkByName(name) }

func (hostLinks) LinkSetHardwareAddr(link netlink.Link, hwaddr net.HardwareAddr) error {
	return netlink.LinkSetHardwareAddr(link, hwaddr)
}

func (hostLinks) LinkSetMasterByIndex(link netlink.Link, index int) error {
	return netlink.LinkSetMasterByIndex(link, index)
}

func (hostLinks) LinkSetUp(link netlink.Link) error { return netlink.LinkSetUp(link) }

func (hostLinks) LinkSetNs(link netlink.Link, namespace string) error {
	ns, err := netns.GetFromName(namespace)
	if err != nil {
		return fmt.Errorf("opening namespace %s: %w", namespace, err)
	}
	defer ns.Close()
	return netlink.LinkSetNsFd(link, int(ns))
}

func (hostLinks) LinkSetUpIn(device, namespace string) error {
	h, release, err := handleAt(namespace)
	if err != nil {
		return err
	}
	defer release()

	link, err := h.LinkByName(device)
	if err != nil {
		return fmt.Errorf("looking up %s: %w", device, err)
	}
	return h.LinkSetUp(link)
}

// NetlinkDriver plugs VIP ports as veth pairs. The namespace end carries the
// VIP addresses; the host end is optionally enslaved to a bridge.
type NetlinkDriver struct {
	// Prefix is prepended to the port id to name the namespace end
	Prefix string

	// PeerPrefix names the host end
	PeerPrefix string

	// Bridge, when set, is the host bridge the host end joins
	Bridge string

	// MTU of both ends; zero keeps the kernel default
	MTU int

	links  linkOps
	logger zerolog.Logger
}

// NewNetlinkDriver creates a veth driver.
func NewNetlinkDriver(prefix, bridge string, mtu int) *NetlinkDriver {
	if prefix == "" {
		prefix = "tap"
	}
	return &NetlinkDriver{
		Prefix:     prefix,
		PeerPrefix: "qvh",
		Bridge:     bridge,
		MTU:        mtu,
		links:      hostLinks{},
		logger:     log.WithComponent("netlink"),
	}
}

// DeviceName returns the namespace-side name for port.
func (d *NetlinkDriver) DeviceName(port types.Port) string {
	return DeviceName(d.Prefix, port.ID)
}

func (d *NetlinkDriver) peerName(portID string) string {
	return DeviceName(d.PeerPrefix, portID)
}

// handleAt opens a netlink handle inside namespace. The returned func
// releases it.
func handleAt(namespace string) (*netlink.Handle, func(), error) {
	if namespace == "" {
		h, err := netlink.NewHandle()
		if err != nil {
			return nil, nil, fmt.Errorf("opening netlink handle: %w", err)
		}
		return h, h.Delete, nil
	}

	ns, err := netns.GetFromName(namespace)
	if err != nil {
		return nil, nil, fmt.Errorf("opening namespace %s: %w", namespace, err)
	}
	h, err := netlink.NewHandleAt(ns)
	if err != nil {
		ns.Close()
		return nil, nil, fmt.Errorf("opening netlink handle in %s: %w", namespace, err)
	}
	return h, func() {
		h.Delete()
		ns.Close()
	}, nil
}

func isNotFound(err error) bool {
	var notFound netlink.LinkNotFoundError
	return errors.As(err, &notFound)
}

// DeviceExists reports whether device is present in namespace.
func (d *NetlinkDriver) DeviceExists(ctx context.Context, device, namespace string) (bool, error) {
	h, release, err := handleAt(namespace)
	if err != nil {
		return false, err
	}
	defer release()

	if _, err := h.LinkByName(device); err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("looking up %s: %w", device, err)
	}
	return true, nil
}

func (d *NetlinkDriver) ops() linkOps {
	if d.links == nil {
		return hostLinks{}
	}
	return d.links
}

// Plug creates a veth pair on the host, moves the device end into namespace
// with the port's MAC address, and brings both ends up. A host end left by
// an earlier failed plug is removed first, and the pair is deleted again
// when any step after its creation fails.
func (d *NetlinkDriver) Plug(ctx context.Context, networkID, portID, device, mac, namespace string) (err error) {
	hwAddr, err := net.ParseMAC(mac)
	if err != nil {
		return fmt.Errorf("invalid mac address %q for port %s: %w", mac, portID, err)
	}

	links := d.ops()
	peer := d.peerName(portID)
	if stale, lookupErr := links.LinkByName(peer); lookupErr == nil {
		d.logger.Warn().Str("device", peer).Msg("Removing stale host end of VIP port")
		if err := links.LinkDel(stale); err != nil {
			return fmt.Errorf("deleting stale %s: %w", peer, err)
		}
	}

	attrs := netlink.NewLinkAttrs()
	attrs.Name = peer
	attrs.MTU = d.MTU
	veth := &netlink.Veth{LinkAttrs: attrs, PeerName: device}

	if err := links.LinkAdd(veth); err != nil {
		return fmt.Errorf("failed adding veth %s/%s: %w", peer, device, err)
	}
	defer func() {
		if err == nil {
			return
		}
		// deleting the host end removes the namespace end with it
		if delErr := links.LinkDel(veth); delErr != nil {
			d.logger.Error().Err(delErr).Str("device", peer).Msg("Failed to remove veth after plug error")
		}
	}()

	link, err := links.LinkByName(device)
	if err != nil {
		return fmt.Errorf("looking up %s: %w", device, err)
	}
	if err := links.LinkSetHardwareAddr(link, hwAddr); err != nil {
		return fmt.Errorf("setting mac on %s: %w", device, err)
	}
	if err := links.LinkSetNs(link, namespace); err != nil {
		return fmt.Errorf("moving %s into %s: %w", device, namespace, err)
	}

	hostEnd, err := links.LinkByName(peer)
	if err != nil {
		return fmt.Errorf("looking up %s: %w", peer, err)
	}
	if d.Bridge != "" {
		bridge, err := links.LinkByName(d.Bridge)
		if err != nil {
			return fmt.Errorf("looking up bridge %s: %w", d.Bridge, err)
		}
		if err := links.LinkSetMasterByIndex(hostEnd, bridge.Attrs().Index); err != nil {
			return fmt.Errorf("attaching %s to %s: %w", peer, d.Bridge, err)
		}
	}
	if err := links.LinkSetUp(hostEnd); err != nil {
		return fmt.Errorf("bringing up %s: %w", peer, err)
	}
	if err := links.LinkSetUpIn(device, namespace); err != nil {
		return fmt.Errorf("bringing up %s in %s: %w", device, namespace, err)
	}

	d.logger.Info().
		Str("network_id", networkID).
		Str("port_id", portID).
		Str("device", device).
		Str("namespace", namespace).
		Msg("Plugged VIP port")
	return nil
}

// InitL3 replaces the addresses of device with cidrs. IPv6 link-local
// addresses are left alone.
func (d *NetlinkDriver) InitL3(ctx context.Context, device string, cidrs []string, namespace string) error {
	h, release, err := handleAt(namespace)
	if err != nil {
		return err
	}
	defer release()

	link, err := h.LinkByName(device)
	if err != nil {
		return fmt.Errorf("looking up %s in %s: %w", device, namespace, err)
	}

	wanted := make(map[string]bool, len(cidrs))
	for _, cidr := range cidrs {
		addr, err := netlink.ParseAddr(cidr)
		if err != nil {
			return fmt.Errorf("invalid address %s: %w", cidr, err)
		}
		if err := h.AddrReplace(link, addr); err != nil {
			return fmt.Errorf("could not add %v to %s: %w", addr, device, err)
		}
		wanted[addr.IPNet.String()] = true
	}

	current, err := h.AddrList(link, netlink.FAMILY_ALL)
	if err != nil {
		return fmt.Errorf("listing addresses of %s: %w", device, err)
	}
	for i := range current {
		addr := current[i]
		if wanted[addr.IPNet.String()] || addr.IP.IsLinkLocalUnicast() {
			continue
		}
		if err := h.AddrDel(link, &addr); err != nil {
			return fmt.Errorf("could not remove %v from %s: %w", addr, device, err)
		}
	}
	return nil
}

// Unplug deletes device, which also removes its host peer.
func (d *NetlinkDriver) Unplug(ctx context.Context, device, namespace string) error {
	h, release, err := handleAt(namespace)
	if err != nil {
		return err
	}
	defer release()

	link, err := h.LinkByName(device)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("looking up %s in %s: %w", device, namespace, err)
	}
	if err := h.LinkDel(link); err != nil {
		return fmt.Errorf("deleting %s in %s: %w", device, namespace, err)
	}

	d.logger.Info().Str("device", device).Str("namespace", namespace).Msg("Unplugged VIP port")
	return nil
}
