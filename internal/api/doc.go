// Package api implements the HTTP REST API and WebSocket server for the
// appliance bridge.
//
// This package provides:
//   - REST endpoints to inspect appliances (attributes, snapshot, discovered
//     keys, recent events, snapshot history)
//   - Command execution and diagnostic event injection
//   - A WebSocket hub relaying appliance signals in real time
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//   - TLS support
//
// # Lifecycle
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// # WebSocket channels
//
// Each signal kind is broadcast on "appliance.<kind>", for example
// "appliance.snapshot" or "appliance.button". "appliance.*" subscribes to
// everything. A subscribe message may list device IDs to narrow delivery.
//
// Thread Safety: All methods are safe for concurrent use.
package api
