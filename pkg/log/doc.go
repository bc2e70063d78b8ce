/*
Package log provides structured logging for lvs-agent using zerolog.

A single package-level Logger is configured once by Init, normally from the
agent configuration file and the --log-level / --log-json flags. Components
derive child loggers that carry their own context fields:

	engineLog := log.WithComponent("engine")
	engineLog.Info().Str("namespace", ns).Str("service", "10.0.0.5:80").Msg("created service")

	engineLog.Debug().Str("pool_id", "p1").Msg("configuration gate closed, skipping")

Level takes any zerolog level name. Output is JSON when Config.JSONOutput
is set, otherwise zerolog's console writer with RFC3339 timestamps.

Field conventions used across the agent:

  - component: engine, gateway, lifecycle, netlink, reconciler, dispatcher, api
  - pool_id: the load balancer pool being reconciled
  - namespace: the network namespace hosting the pool (prefix + pool id)
  - argv: the external command line, logged at debug level
*/
package log
