// Package config loads service configuration with viper.
//
// LoadConfig resolves config.yml and .env files from the conventional
// locations (cmd/<service>, config/, the working directory), then overlays
// environment variables: the key scheduler.workers is read from
// SCHEDULER_WORKERS.
package config
