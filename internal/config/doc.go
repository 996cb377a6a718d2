// Package config loads and validates the snapshotter run configuration.
//
// Configuration is YAML with ${ENV} expansion, so secrets (store keys,
// database passwords) stay out of the file. Loading is split into three
// steps: Load (parse), applyDefaults, Validate.
package config
