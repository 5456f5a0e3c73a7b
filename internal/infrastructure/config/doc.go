// Package config handles loading and validating identityd configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with IDENTITY_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Signing secrets should be set via environment variables
//   - The bearer and refresh secrets must be at least 32 characters and differ
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/identityd.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Store.Driver)
package config
