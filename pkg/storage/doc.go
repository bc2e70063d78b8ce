/*
Package storage provides the agent's local state on BoltDB.

The agent normally derives everything from the kernel table, which is
rediscovered on every reconciliation. What the table cannot tell it is the
desired configuration, so when no remote control plane is available the
agent keeps it here, together with VIP port bindings and the last member
health reported.

# Buckets

	pools          pool id → LogicalConfig (JSON)
	ports          port id → PortBinding (JSON)
	member_health  "<pool id>/<member id>" → MemberHealth (JSON)

Health keys share the pool id as a prefix so a pool's entries can be
scanned and deleted with a cursor.

# Control plane

LocalControlPlane adapts a Store to controlplane.Client and
controlplane.PoolLister:

	store, err := storage.NewBoltStore("/var/lib/lvs-agent")
	if err != nil {
		return err
	}
	defer store.Close()

	cp := storage.NewLocalControlPlane(store)
	cfg, err := cp.GetLogicalConfig(ctx, "p1")

A pool that is not stored yields an error wrapping
controlplane.ErrPoolNotFound.

The database file is lvs-agent.db in the data directory. BoltDB takes an
exclusive file lock, so only one agent process may open it; a second one
fails after a one second timeout.
*/
package storage
