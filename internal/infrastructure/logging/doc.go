// Package logging provides structured logging for identityd.
//
// This package wraps Go's standard log/slog package so every component
// logs with the same handler, level and default fields.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("starting service", "port", 8080)
//
// # Security
//
// Never log passwords, bearer or refresh tokens, token digests, or
// signing secrets. Log the identity and the outcome instead.
package logging
