// Package config holds the server's runtime configuration: the values
// parsed from CLI flags in cmd/redikv, and the read-only view of them
// served back over CONFIG GET.
package config

import (
	"strconv"
	"strings"
)

// Config is the server's full set of runtime knobs.
type Config struct {
	Port       uint16
	Dir        string
	DBFilename string
}

// Default returns the configuration a bare `redikv` invocation runs
// with: port 6379, snapshot directory "data/", filename "dump.rdb".
func Default() Config {
	return Config{
		Port:       6379,
		Dir:        "data/",
		DBFilename: "dump.rdb",
	}
}

// AsMap renders the configuration as the case-lowered key/value pairs
// CONFIG GET looks values up in.
func (c Config) AsMap() map[string]string {
	return map[string]string{
		"port":       strconv.Itoa(int(c.Port)),
		"dir":        c.Dir,
		"dbfilename": c.DBFilename,
	}
}

// Lookup returns the configured value for a CONFIG GET parameter name,
// matched case-insensitively as the real command does.
func (c Config) Lookup(name string) (string, bool) {
	v, ok := c.AsMap()[strings.ToLower(name)]
	return v, ok
}
