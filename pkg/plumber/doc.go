/*
Package plumber manages the network namespace of a pool and the virtual
interface that carries its VIP.

Lifecycle.Ensure creates the namespace when missing, plugs the VIP port
through an InterfaceDriver, sets the port's fixed IPs (each with its
subnet's prefix length) and installs a default route via the subnet
gateway. The route is best effort; failing to install it is logged and
ignored. An already present device is reused unless reuse is disabled, in
which case ErrDeviceExists is returned.

Lifecycle.Teardown flushes the table, unplugs the device and deletes the
namespace once only loopback is left in it.

NetlinkDriver is the production driver. It creates a veth pair, moves one
end into the namespace with the port's MAC address and optionally enslaves
the host end to a bridge. The plumbertest package has an in-memory driver.
*/
package plumber
