// Package config loads tokengate-server settings from TOKENGATE_* environment
// variables, optionally seeded from a .env file.
package config
