package plumber

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vishvananda/netlink"
)

// fakeLinks records link operations on an in-memory host.
type fakeLinks struct {
	calls  []string
	links  map[string]string // name -> namespace, "" for the host
	failOn string
}

func newFakeLinks(onHost ...string) *fakeLinks {
	f := &fakeLinks{links: make(map[string]string)}
	for _, name := range onHost {
		f.links[name] = ""
	}
	return f
}

func (f *fakeLinks) op(call, name string) error {
	f.calls = append(f.calls, call+" "+name)
	if f.failOn == call {
		return errors.New(call + " failed")
	}
	return nil
}

func (f *fakeLinks) LinkAdd(link netlink.Link) error {
	if err := f.op("add", link.Attrs().Name); err != nil {
		return err
	}
	f.links[link.Attrs().Name] = ""
	if veth, ok := link.(*netlink.Veth); ok {
		f.links[veth.PeerName] = ""
	}
	return nil
}

func (f *fakeLinks) LinkDel(link netlink.Link) error {
	if err := f.op("del", link.Attrs().Name); err != nil {
		return err
	}
	delete(f.links, link.Attrs().Name)
	if veth, ok := link.(*netlink.Veth); ok {
		delete(f.links, veth.PeerName)
	}
	return nil
}

func (f *fakeLinks) LinkByName(name string) (netlink.Link, error) {
	if ns, ok := f.links[name]; !ok || ns != "" {
		return nil, errors.New("Link not found")
	}
	attrs := netlink.NewLinkAttrs()
	attrs.Name = name
	attrs.Index = len(name)
	return &netlink.Device{LinkAttrs: attrs}, nil
}

func (f *fakeLinks) LinkSetHardwareAddr(link netlink.Link, hwaddr net.HardwareAddr) error {
	return f.op("mac", link.Attrs().Name)
}

func (f *fakeLinks) LinkSetMasterByIndex(link netlink.Link, index int) error {
	return f.op("master", link.Attrs().Name)
}

func (f *fakeLinks) LinkSetUp(link netlink.Link) error {
	return f.op("up", link.Attrs().Name)
}

func (f *fakeLinks) LinkSetNs(link netlink.Link, namespace string) error {
	if err := f.op("setns", link.Attrs().Name); err != nil {
		return err
	}
	f.links[link.Attrs().Name] = namespace
	return nil
}

func (f *fakeLinks) LinkSetUpIn(device, namespace string) error {
	return f.op("upin", device)
}

func newTestNetlinkDriver(links *fakeLinks) *NetlinkDriver {
	d := NewNetlinkDriver("tap", "", 0)
	d.links = links
	return d
}

func TestNetlinkDriver_Plug(t *testing.T) {
	links := newFakeLinks("br-lb")
	d := newTestNetlinkDriver(links)
	d.Bridge = "br-lb"

	err := d.Plug(context.Background(), "net-1", "port-1", "tapport-1", "fa:16:3e:00:00:01", "qlbaas-p1")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"add qvhport-1",
		"mac tapport-1",
		"setns tapport-1",
		"master qvhport-1",
		"up qvhport-1",
		"upin tapport-1",
	}, links.calls)
	assert.Equal(t, "qlbaas-p1", links.links["tapport-1"])
	assert.Equal(t, "", links.links["qvhport-1"])
}

func TestNetlinkDriver_PlugRemovesVethOnFailure(t *testing.T) {
	for _, step := range []string{"mac", "setns", "master", "up", "upin"} {
		t.Run(step, func(t *testing.T) {
			links := newFakeLinks("br-lb")
			links.failOn = step
			d := newTestNetlinkDriver(links)
			d.Bridge = "br-lb"

			err := d.Plug(context.Background(), "net-1", "port-1", "tapport-1", "fa:16:3e:00:00:01", "qlbaas-p1")
			require.Error(t, err)

			assert.Equal(t, "del qvhport-1", links.calls[len(links.calls)-1])
			assert.NotContains(t, links.links, "qvhport-1")
			assert.NotContains(t, links.links, "tapport-1")
		})
	}
}

func TestNetlinkDriver_PlugMissingBridge(t *testing.T) {
	links := newFakeLinks()
	d := newTestNetlinkDriver(links)
	d.Bridge = "br-missing"

	err := d.Plug(context.Background(), "net-1", "port-1", "tapport-1", "fa:16:3e:00:00:01", "qlbaas-p1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "br-missing")
	assert.Empty(t, links.links, "veth removed")
}

func TestNetlinkDriver_PlugRemovesStaleHostEnd(t *testing.T) {
	links := newFakeLinks("qvhport-1")
	d := newTestNetlinkDriver(links)

	err := d.Plug(context.Background(), "net-1", "port-1", "tapport-1", "fa:16:3e:00:00:01", "qlbaas-p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"del qvhport-1", "add qvhport-1"}, links.calls[:2])
}

func TestNetlinkDriver_PlugInvalidMAC(t *testing.T) {
	links := newFakeLinks()
	d := newTestNetlinkDriver(links)

	err := d.Plug(context.Background(), "net-1", "port-1", "tapport-1", "not-a-mac", "qlbaas-p1")
	require.Error(t, err)
	assert.Empty(t, links.calls)
}

func TestNetlinkDriver_PlugAddFails(t *testing.T) {
	links := newFakeLinks()
	links.failOn = "add"
	d := newTestNetlinkDriver(links)

	err := d.Plug(context.Background(), "net-1", "port-1", "tapport-1", "fa:16:3e:00:00:01", "qlbaas-p1")
	require.Error(t, err)
	assert.Equal(t, []string{"add qvhport-1"}, links.calls, "nothing to roll back")
}
