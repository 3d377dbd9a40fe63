// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	userConfigDir  = ".config/adal"
	configFileName = "config.yaml"
	cacheFileName  = "cache.json"
)

// Config is the content of the config file. Flags override each field.
type Config struct {
	Authority           string `yaml:"authority"`
	ClientID            string `yaml:"client_id"`
	Resource            string `yaml:"resource"`
	ClientSecret        string `yaml:"client_secret"`
	CertificateFile     string `yaml:"certificate_file"`
	CertificatePassword string `yaml:"certificate_password"`
	Username            string `yaml:"username"`
	RedirectURI         string `yaml:"redirect_uri"`
	Policy              string `yaml:"policy"`
	CacheFile           string `yaml:"cache_file"`
	LogLevel            string `yaml:"log_level"`
}

func defaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, userConfigDir)
}

// loadConfig reads the config file at path. When path is empty the default location is
// used and a missing file yields an empty Config.
func loadConfig(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		path = filepath.Join(defaultConfigDir(), configFileName)
	}

	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("error loading config from %s: %w", path, err)
	}
	return cfg, nil
}

// override returns c with every non empty field of o applied.
func (c Config) override(o Config) Config {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&c.Authority, o.Authority)
	set(&c.ClientID, o.ClientID)
	set(&c.Resource, o.Resource)
	set(&c.ClientSecret, o.ClientSecret)
	set(&c.CertificateFile, o.CertificateFile)
	set(&c.CertificatePassword, o.CertificatePassword)
	set(&c.Username, o.Username)
	set(&c.RedirectURI, o.RedirectURI)
	set(&c.Policy, o.Policy)
	set(&c.CacheFile, o.CacheFile)
	set(&c.LogLevel, o.LogLevel)
	return c
}

func (c Config) cacheFile() string {
	if c.CacheFile != "" {
		return c.CacheFile
	}
	return filepath.Join(defaultConfigDir(), cacheFileName)
}

// require fails when any of the named settings is empty.
func (c Config) require(names ...string) error {
	values := map[string]string{
		"authority":     c.Authority,
		"client-id":     c.ClientID,
		"resource":      c.Resource,
		"client-secret": c.ClientSecret,
		"username":      c.Username,
		"redirect-uri":  c.RedirectURI,
	}
	var missing []string
	for _, n := range names {
		if values[n] == "" {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}
