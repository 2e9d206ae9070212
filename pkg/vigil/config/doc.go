/*
Package config provides type-safe configuration extraction from map[string]any.

# Overview

config wraps a map[string]any and provides typed accessor methods that handle
missing keys and type mismatches gracefully by returning default values.
Monitor settings arrive as YAML or JSON sections; the accessors avoid the
verbose type assertions that reading such structures directly would need.

# Basic Usage

Create a Config from any map and extract values with defaults:

	cfg := config.New(map[string]any{
	    "failure_threshold": 3,
	    "timeout":           "45s",
	    "enabled":           true,
	})

	threshold := cfg.Int("failure_threshold", 5)      // 3
	timeout := cfg.Duration("timeout", 60*time.Second) // 45s
	enabled := cfg.Bool("enabled", false)              // true
	missing := cfg.String("missing", "default")        // "default"

# Sections

Settings for each engine live under their own section. Sub descends into a
nested map and never fails, so absent sections simply fall through to
defaults:

	cfg, err := config.FromFile("vigil.yaml")
	if err != nil {
	    log.Fatal(err)
	}

	breakerCfg := cfg.Sub("breaker")
	threshold := breakerCfg.Int("failure_threshold", 5)
	maxRecords := cfg.Sub("tracking").Int("max_records", 1000)

# Type Coercion

Duration handles multiple input types:
  - string: parsed with time.ParseDuration ("30s", "1h30m")
  - int/float64: interpreted as seconds
  - time.Duration: used directly

Numeric types handle reasonable conversions:
  - int from float64 (only without a fractional part)
  - float64 from int

All methods return the default value if the key is missing, the value cannot
be converted to the requested type, or the conversion would lose precision.

# Thread Safety

Config is safe for concurrent read access. The underlying map is not
modified after creation. However, if the original map is modified
externally, behavior is undefined.
*/
package config
