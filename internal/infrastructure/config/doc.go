// Package config handles loading and validating PTL Core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with PTL_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - The MQTT password, InfluxDB token and external system credentials
//     should be set via environment variables or a .env file
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load(config.ResolvePath(flagPath))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Mode.Name)
package config
