// Package config handles loading and validating homefleet configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Merging a local .env file into the environment
//   - Overriding with HOMEFLEET_* environment variables
//   - Validation of required fields
//
// Sensitive values (broker passwords, InfluxDB tokens, the Gemini API key)
// should come from the environment rather than the YAML file.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.MQTT.DiscoveryTopics)
package config
