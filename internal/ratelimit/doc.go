// Package ratelimit admits or rejects requests per client using a sliding
// window of request timestamps.
//
// For each client the limiter keeps the times of admitted requests inside
// the trailing window. A request is admitted when fewer than limit of those
// remain after pruning; rejected attempts are not recorded. Unlike a fixed
// bucket, there is no reset boundary a client can burst across.
//
// State is in-memory and owned by one *Limiter per process. It is not shared
// between instances.
package ratelimit
