// Package config holds runtime configuration for the crawl engine.
//
// Configuration flows from three layers, later layers winning: built-in
// defaults, an optional .prowl YAML file, and CLI flags. The resulting
// Config struct is validated once up front and then passed through the
// application by dependency injection rather than global state.
package config
