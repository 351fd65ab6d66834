// Package config loads the oilfoxd daemon configuration.
//
// The daemon file covers the local infrastructure: SQLite, the MQTT broker,
// the HTTP API, InfluxDB, logging and history retention. Credentials for the
// vendor cloud are kept in the bridge file (see package oilfox) so that the
// daemon file can be shared without secrets.
//
// Security Considerations:
//   - Sensitive values (MQTT password, InfluxDB token) should be set via
//     OILFOXD_* environment variables or a .env file
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.API.Port)
package config
