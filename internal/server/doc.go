// Package server implements the HTTP and WebSocket surface of the room chat
// service.
//
// The implementation is organized into specialized files for configuration,
// client transports, the connection hub, the per-connection dispatcher,
// routing, and HTTP handlers. Chat state itself lives in package chat; this
// package only moves frames between sockets and the engine.
package server
