// Package server provides the HTTP surface: the WebSocket fan-out endpoint,
// health and version endpoints, Prometheus metrics, and connection limiting.
package server
