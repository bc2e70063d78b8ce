/*
Package reconciler decides when the engine runs.

Dispatcher subscribes to the event broker and maps each pool lifecycle
event to one engine call:

	vip.created                         Refresh with reset
	vip.updated, pool.updated,
	member.created, member.updated      Refresh without reset
	vip.deleted, pool.deleted           Teardown
	member.deleted                      RemoveMember (member from the event)
	pool.created                        nothing, a pool needs a VIP
	health_monitor.*                    logged only

Reconciler runs two tickers. Every resync interval it refreshes every pool
the control plane lists, which heals a table left half-written by a failed
command, and tears down pools that are deployed but no longer listed. A
listed pool the engine has not deployed, or whose namespace has vanished,
is refreshed with a reset so it is plugged again from scratch.
Every health interval it probes the members of each pool and reports the
result, marking a member unhealthy only after the configured number of
consecutive failed polls.
*/
package reconciler
