// Package logging provides structured logging for oilfoxd.
//
// It wraps log/slog with JSON output for production and text output for
// development. Every record carries service=oilfoxd and the build version.
//
// Logging is configured via the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("bridge started", "bridge", bridgeID)
//
// Never log the vendor password or tokens. The oilfox package redacts the
// password when its settings are printed.
package logging
