// Package gitconfig reads and writes dotted keys in a repository's config
// file. Only the single-key surface the checkout engine needs is exposed;
// parsing is delegated to ini.v1.
package gitconfig

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"gopkg.in/ini.v1"
)

// Config sets and gets dotted configuration keys such as
// "branch.main.remote".
type Config interface {
	Set(key, value string) error
	Get(key string) (string, error)
}

// IniConfig stores configuration in gitconfig ini format inside a
// gitdir-rooted filesystem.
type IniConfig struct {
	fs   billy.Filesystem
	path string
}

// NewIniConfig creates an IniConfig for the config file inside gitdir.
func NewIniConfig(fs billy.Filesystem) *IniConfig {
	return &IniConfig{fs: fs, path: "config"}
}

// Set writes a single dotted key. A missing config file is created.
func (c *IniConfig) Set(key, value string) error {
	cfg, err := c.load()
	if err != nil {
		return err
	}

	section, name, err := splitKey(key)
	if err != nil {
		return err
	}
	cfg.Section(section).Key(name).SetValue(value)

	var buf bytes.Buffer
	if _, err := cfg.WriteTo(&buf); err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}
	if err := util.WriteFile(c.fs, c.path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Get reads a single dotted key.
func (c *IniConfig) Get(key string) (string, error) {
	cfg, err := c.load()
	if err != nil {
		return "", err
	}

	section, name, err := splitKey(key)
	if err != nil {
		return "", err
	}
	val := cfg.Section(section).Key(name).String()
	if val == "" {
		return "", fmt.Errorf("config key not found: %s", key)
	}
	return val, nil
}

func (c *IniConfig) load() (*ini.File, error) {
	data, err := util.ReadFile(c.fs, c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return ini.Empty(), nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := ini.Load(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// splitKey maps a dotted key onto an ini section and key name. Three-part
// keys use git's subsection form: branch.main.remote lives in section
// `branch "main"`.
func splitKey(key string) (section, name string, err error) {
	parts := strings.Split(key, ".")
	switch len(parts) {
	case 2:
		return parts[0], parts[1], nil
	case 3:
		return fmt.Sprintf("%s \"%s\"", parts[0], parts[1]), parts[2], nil
	default:
		return "", "", fmt.Errorf("invalid config key: %s", key)
	}
}

// FakeConfig records Set calls in memory for tests.
type FakeConfig struct {
	values map[string]string
}

// NewFakeConfig creates an empty FakeConfig.
func NewFakeConfig() *FakeConfig {
	return &FakeConfig{values: make(map[string]string)}
}

// Set records the key.
func (c *FakeConfig) Set(key, value string) error {
	c.values[key] = value
	return nil
}

// Get returns a recorded key.
func (c *FakeConfig) Get(key string) (string, error) {
	v, ok := c.values[key]
	if !ok {
		return "", fmt.Errorf("config key not found: %s", key)
	}
	return v, nil
}
