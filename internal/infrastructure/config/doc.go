// Package config handles loading and validating Imperium configuration.
//
// This package manages:
//   - Loading configuration from YAML or TOML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Device definitions are part of the configuration; their controller
// settings are re-encoded as JSON before being handed to the controller.
//
// Security Considerations:
//   - Sensitive values (MQTT passwords, InfluxDB tokens) should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// The file is loaded at startup and again on SIGHUP, when only the MQTT
// host settings are applied.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Server.Name)
package config
