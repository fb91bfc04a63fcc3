// Package server implements the HTTP control API of the stream client.
// It exposes connection control, status and statistics endpoints, a live
// status log over WebSocket and the Prometheus metrics endpoint.
package server
