// Package health holds request-time probes for the liveness and readiness
// endpoints of the ops server.
//
// Probes compose with [All] and [Any]. [ShutdownGate] fails readiness while
// the process drains so load balancers stop routing to it first.
package health
