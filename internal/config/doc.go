// Package config provides configuration loading and validation for the
// transcriber. Values come from built-in defaults, an optional YAML file, an
// optional .env file and CORTEX_* environment variables, in that order.
package config
