// Package logging provides structured logging for Imperium.
//
// It wraps log/slog: JSON output by default, text when configured, with
// service and version fields on every entry. The level is held in a
// slog.LevelVar so a configuration reload can change it without rebuilding
// the component loggers derived with With or Component.
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Never log MQTT passwords or InfluxDB tokens.
package logging
