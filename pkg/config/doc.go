/*
Package config loads the agent configuration.

Settings come from three layers, later ones winning: built-in defaults, a
YAML file, and LVS_AGENT_* environment variables. Command line flags are
applied on top by the CLI.

	namespace_prefix: qlbaas-
	data_dir: /var/lib/lvs-agent
	root_helper: [sudo]
	tools:
	  ipvsadm: /usr/sbin/ipvsadm
	probe_timeout: 1s
	health_interval: 10s
	health_retries: 1
	resync_interval: 60s
	reuse_existing_device: true
	interface:
	  driver: netlink
	  bridge: br-int
	  device_prefix: tap
	  mtu: 1450
	http_addr: ":9273"
	grpc_addr: ":9274"
	log:
	  level: info
	  json: false

Nested keys map to joined variable names, so interface.bridge is
LVS_AGENT_INTERFACE_BRIDGE and root_helper takes a comma separated list.
*/
package config
