// Package server implements the core of the chat relay: the session registry
// and hub event loop, the bounded history buffer, the broadcast dispatcher,
// the frame protocol, and the WebSocket connection gateway.
//
// The implementation is organized into specialized files for configuration,
// hub management, clients, history, routing, and HTTP handlers to keep the
// codebase maintainable and testable as the project grows.
package server
