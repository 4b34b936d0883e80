// Package health holds the liveness and readiness probes served on the ops
// listener.
//
// Probes compose with [All]. [ShutdownGate] fails readiness as soon as
// shutdown starts so load balancers drain the instance before the HTTP
// servers stop.
package health
