/*
Package types defines the load balancer data model consumed by lvs-agent.

A LogicalConfig is the desired state of one pool: the Pool itself, its Vip
(with the Port that backs the virtual interface) and the list of Members.
The control plane supplies it on demand; the agent never mutates it.

The configuration gate lives here as LogicalConfig.Deployable: a pool is
only written to the table when it has a VIP and both the VIP and the pool
are administratively up with an ACTIVE or PENDING_* status.

MemberHealth is the reverse direction, the health the agent derives from
reachability probes and reports back.
*/
package types
