// Package oilfox implements the bridge to the FoxInsights OilFox cloud.
//
// OilFox sensors measure the fill level of heating oil and pellet tanks a
// few times a day and upload the result to the vendor cloud. This package
// polls the customer API for the account's devices and publishes each
// sensor's values as channels.
//
// # Architecture
//
//	┌──────────────┐  HTTPS  ┌──────────────────────────┐  MQTT / API
//	│ FoxInsights  │◄───────►│ Bridge                   │────────────► consumers
//	│ customer API │         │  Authenticator (session) │
//	└──────────────┘         │  Registry ─► listeners   │
//	                         │   DeviceHandler per hwid │
//	                         │   DiscoveryListener      │
//	                         └──────────────────────────┘
//
// # Polling
//
// The bridge polls once at start and then at a fixed delay. Unscheduled
// refreshes (MQTT command, HTTP API, device follow-ups) are admitted at most
// once per fair-use window; refreshes of a single channel are always
// admitted. Each device handler schedules a follow-up five minutes after the
// sensor's next metering time so new measurements show up promptly.
//
// # Authentication
//
// One session is shared by all devices. A refresh token younger than
// fifteen minutes is reused as-is; an older one is exchanged, and a login
// with the account credentials is the fallback. Failures drop both tokens.
//
// # Discovery
//
// Devices in the account that no handler claims are announced once to every
// listener. The Inbox keeps them until they are approved, or adopts them
// immediately when auto-adopt is enabled.
package oilfox
