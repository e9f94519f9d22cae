// Package ratelimit is per-IP token bucket middleware for the public
// listener.
//
// It is in-memory and per instance. It keeps a single address from
// exhausting the server and reports offenders once per visitor. It does not
// help against distributed floods; that is left to upstream filtering.
package ratelimit
