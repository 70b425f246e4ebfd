// Package config handles configuration loading, parsing, and validation
// from environment variables, an optional config.yaml and a .env file.
// It provides type-safe access to server, job execution, model provider
// and storage settings while keeping configuration details separate from
// business logic.
package config
