// Package logging provides structured logging for homefleet.
//
// It wraps log/slog so every component logs the same way:
//
//   - JSON output for production, text for development
//   - Default fields (service, version) on all entries
//   - Level-based filtering (debug, info, warn, error)
//
// Configuration lives in the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Domain packages do not import this package. They declare a small Logger
// interface (Debug/Info/Warn/Error) that *Logger satisfies through the
// embedded *slog.Logger.
//
// Never log broker passwords, InfluxDB tokens or the Gemini API key.
package logging
