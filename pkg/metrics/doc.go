/*
Package metrics provides Prometheus metrics and component health for lvs-agent.

All collectors are registered on the default registry at package init and
exposed by Handler on /metrics.

# Metric Families

External commands:

  - lvs_commands_total{tool,result}: every command run through the gateway
  - lvs_command_duration_seconds{tool}

Reconciliation:

  - lvs_reconciliations_total{operation,result}: apply, remove_member, teardown
  - lvs_reconciliation_duration_seconds{operation}
  - lvs_reconcile_skipped_total: apply calls rejected by the configuration gate
  - lvs_table_mutations_total{verb}: create_service, edit_service, delete_service,
    add_server, edit_server, delete_server, flush
  - lvs_pools_deployed

Health:

  - lvs_probes_total{result}
  - lvs_member_up{pool_id,member_id}
  - lvs_component_up{component}

Table statistics (TableCollector, from ipvsadm -Ln --stats):

  - lvs_service_connections{pool_id,service}
  - lvs_service_bytes{pool_id,service,direction}
  - lvs_real_server_connections{pool_id,service,server}

# Timing

	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.ReconciliationDuration, "apply")

# Component Health

UpdateComponent records a component's health for /ready and sets
lvs_component_up. The agent is ready once every name in CriticalComponents
(store, ipvsadm, api) is registered and healthy.
*/
package metrics
