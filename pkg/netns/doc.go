/*
Package netns runs external administration tools inside network namespaces.

The kernel virtual-server table and the pool's virtual interface live in a
per-pool namespace, and the only way to reach them is to run a tool there.
Gateway is the production Executor: it wraps every command line in

	[root helper...] ip netns exec <namespace> <tool> <args...>

captures stdout and stderr, and turns a launch failure or non-zero exit into
a *ToolError. Failed commands never return output. There is no retry at this
layer; callers decide.

Tool names may be mapped to absolute paths (WithToolPath) so the agent does
not depend on $PATH when it runs under a service manager.

The namespace helpers (Exists, Add, Delete, Devices) are thin wrappers over
`ip netns` and `ip link` that take any Executor, which keeps them testable
with a scripted fake.
*/
package netns
