// Package config handles loading and validating the garage bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Device profile rules live in the garage package; this package only
// guarantees the fields every profile needs are present.
//
// Security Considerations:
//   - OAuth secrets and broker passwords should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Garage.Name)
package config
