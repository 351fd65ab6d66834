// Package api serves the oilfoxd HTTP API.
//
// Routes live under /api/v1 and cover the bridge (status, refresh), the
// device handlers (list, add, remove, readings, channel refresh), the
// discovery inbox and the poll log. A WebSocket on /api/v1/ws relays the
// bridge's MQTT state and status messages, and /metrics serves the
// Prometheus registry.
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
