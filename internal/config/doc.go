// Package config provides the configuration of a sitesnap run: crawl pacing,
// retry policy, archive batching, cache backend selection and per-site
// overrides loaded from a YAML file.
package config
