// Package config loads the settings shared by the server and worker binaries
// from ADFORGE_* environment variables and an optional config.yaml, and
// validates them before any connection is opened. The short batch-tier names
// (BATCH_SIZE, RATE_LIMIT, ...) are honoured as aliases.
package config
