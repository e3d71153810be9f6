// Package config loads the YAML file shared by the worldsync binaries.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/zeusync/worldsync/internal/client"
	"github.com/zeusync/worldsync/internal/server"
)

// Config is the on-disk YAML layout shared by both binaries.
type Config struct {
	Server server.Config `yaml:"server"`
	Client client.Config `yaml:"client"`
}

// Default returns the built-in server and client defaults.
func Default() Config {
	return Config{
		Server: server.DefaultServerConfig(),
		Client: client.DefaultClientConfig(),
	}
}

// Load reads path on top of the defaults. An empty path yields the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := Decode(f)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Decode parses YAML from r on top of the defaults. Unknown keys are errors.
func Decode(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Validate reports every invalid field of both sections at once.
func (c Config) Validate() error {
	return errors.Join(c.Server.Validate(), c.Client.Validate())
}
