// Package config loads server/client defaults from an optional YAML file,
// layered the way docker-compose layers a compose file: Load first applies
// hardcoded defaults, then a YAML file if one is given, and returns the
// result. No CLI flag is bound to a Config field.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config bundles the tunables shared across the server, file server and
// client commands: the server's admission/parsing parameters plus the
// file server root.
type Config struct {
	Addr                     string        `yaml:"addr"`
	ArenaSize                int           `yaml:"arenaSize"`
	MaxHeaderSize            int           `yaml:"maxHeaderSize"`
	MaxNumHeaders            int           `yaml:"maxNumHeaders"`
	MaxRequestsPerConnection uint32        `yaml:"maxRequestsPerConnection"`
	DefaultKeepAlive         bool          `yaml:"defaultKeepAlive"`
	BufferCount              int           `yaml:"bufferCount"`
	BufferSize               int           `yaml:"bufferSize"`
	ReactorWorkers           int           `yaml:"reactorWorkers"`
	FileServerRoot           string        `yaml:"fileServerRoot"`
	ClientTimeout            time.Duration `yaml:"clientTimeout"`
}

// Default returns the built-in defaults, applied before any file or flag
// overrides.
func Default() Config {
	return Config{
		Addr:                     "127.0.0.1:8090",
		ArenaSize:                64,
		MaxHeaderSize:            64 * 1024,
		MaxNumHeaders:            64,
		MaxRequestsPerConnection: 1 << 20,
		DefaultKeepAlive:         true,
		BufferCount:              256,
		BufferSize:               64 * 1024,
		ReactorWorkers:           16,
		FileServerRoot:           ".",
		ClientTimeout:            30 * time.Second,
	}
}

// Load applies path's YAML contents on top of Default(). An empty path is
// a no-op — returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}
