// Package stream maintains a websocket subscription to the daemon's event
// feed. Connections that fail or drop are retried with an exponential
// backoff until the Reader is stopped.
package stream
