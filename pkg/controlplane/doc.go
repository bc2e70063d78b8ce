// Package controlplane defines the interface between the agent and the
// service that owns load balancer configuration. pkg/storage provides the
// local bbolt-backed implementation.
package controlplane
