/*
Package api exposes the agent over HTTP and gRPC.

HealthServer is the HTTP side. It always serves

	GET /health    liveness, 200 while the process runs
	GET /ready     200 once store, ipvsadm and api report healthy
	GET /metrics   Prometheus exposition

and PoolAPI mounts the pool endpoints on it:

	GET    /pools                         stored pool ids
	GET    /pools/{id}                    stored configuration
	PUT    /pools/{id}                    store a manifest (YAML or JSON)
	DELETE /pools/{id}                    remove a pool
	PUT    /pools/{id}/members/{member}   add or replace a member
	DELETE /pools/{id}/members/{member}   remove a member
	GET    /pools/{id}/table              live table, ?format=yaml for YAML
	GET    /pools/{id}/stats              live traffic counters
	GET    /pools/{id}/health             last reported member health

Writes only touch the store. The difference between the old and new
configuration is published as lifecycle events, and the dispatcher in
package reconciler turns those into engine calls. Unknown pools and members
answer 404; a failing external command answers 502.

Server is the gRPC side and only implements grpc.health.v1.Health, for the
empty service name and for "lvs-agent".
*/
package api
