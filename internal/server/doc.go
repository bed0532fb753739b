// Package server implements the jobchat real-time layer: authenticated
// WebSocket sessions, the per-user registry of live sockets, message relay
// with delivery confirmation, and invitation notifications.
//
// The implementation is organized into specialized files for the hub,
// clients, wire events, relay, notifications, routing and HTTP handlers.
package server
