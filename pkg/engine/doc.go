/*
Package engine reconciles the virtual server table of each pool.

Each pool owns a network namespace named after it (prefix "qlbaas-" by
default). Apply takes a pool's logical configuration and converges the
table inside that namespace:

  - nothing happens unless the pool and its VIP are administratively up
    and ACTIVE or PENDING_*
  - with resetFirst the VIP port is plugged, the namespace and device are
    ensured and the table is flushed
  - one TCP service per distinct member port, keyed by VIP address and
    port, scheduled by the pool's load balancing method
  - one masqueraded real server per member under its service

Entries that already exist are edited instead of created, so Apply is
idempotent. The table is listed once per call and the listing is kept
current locally.

RemoveMember deletes one real server and purges services left empty.
Teardown flushes the table, unplugs the VIP device and deletes the
namespace. Apply, RemoveMember and Teardown share one lock, so their
command sequences never interleave. CollectHealth probes members from
inside the namespace without taking the lock.

The engine also implements metrics.StatsSource for the table collector.
*/
package engine
