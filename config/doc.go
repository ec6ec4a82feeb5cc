// Package config holds the runtime's configuration tree and the hub
// that distributes reconfiguration events.
//
// Configuration is layered: Default() supplies every setting, a YAML
// document (under the top-level "telemetry" key) overrides it, and
// environment variables override both. A fully populated *Config is an
// immutable snapshot; reconfiguration swaps a new snapshot into the Hub
// and fans the event out to subscribers while measurement paths keep
// running against whichever snapshot they already loaded.
package config
