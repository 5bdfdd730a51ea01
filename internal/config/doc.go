// Package config provides loading and environment overlay for the queuify
// CLI configuration. It exposes a Default() baseline, a JSON file loader, and
// a QUEUIFY_* environment overlay.
//
// Example:
//
//	cfg := config.Default()
//	if fileCfg, err := config.Load("/etc/queuify.json"); err == nil {
//	    cfg = fileCfg
//	}
//	config.FromEnv(&cfg)
package config
