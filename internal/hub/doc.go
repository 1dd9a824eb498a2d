// Package hub implements the connection registry using the actor pattern.
//
// A single goroutine owns the membership map and serializes register, unregister,
// and broadcast commands through a channel (no mutexes). Per-connection write
// goroutines with bounded queues keep one slow client from stalling the fan-out.
package hub
