// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package main

import (
	"crypto"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/AzureAD/azure-activedirectory-library-for-go/apps/adal"
	"github.com/AzureAD/azure-activedirectory-library-for-go/apps/cache"
	adalErrors "github.com/AzureAD/azure-activedirectory-library-for-go/apps/errors"
	"github.com/pkg/browser"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	ExitCodeError = 1
	// ExitCodeAuthFailed is returned when the authority rejected the request.
	ExitCodeAuthFailed = 3
)

// cli holds the state shared by every command of one invocation.
type cli struct {
	configPath string
	flags      Config
	output     string

	httpClient adal.HTTPClient
	openURL    func(url string) error

	// readPassword prompts for a password without echo.
	readPassword func(prompt string) ([]byte, error)

	cfg   Config
	cache *cache.Memory
	ac    *adal.AuthenticationContext
}

func newCLI() *cli {
	return &cli{
		httpClient:   http.DefaultClient,
		openURL:      browser.OpenURL,
		readPassword: promptPassword,
	}
}

// newRootCmd builds the command tree.
func newRootCmd(c *cli) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "adal",
		Short: "Acquire Azure Active Directory tokens",
		Long: `adal acquires access tokens from an Azure Active Directory authority.

Settings are read from ~/.config/adal/config.yaml and can be overridden with flags.
Acquired tokens are cached in ~/.config/adal/cache.json and reused until they expire.`,
		SilenceUsage: true,
		Version:      version,
	}
	rootCmd.SetVersionTemplate(`{{printf "adal version %s\n" .Version}}`)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&c.configPath, "config", "", "path to the config file")
	pf.StringVarP(&c.flags.Authority, "authority", "a", "", "authority URL, https://login.microsoftonline.com/<tenant>")
	pf.StringVarP(&c.flags.ClientID, "client-id", "c", "", "application (client) id")
	pf.StringVarP(&c.flags.Resource, "resource", "r", "", "App ID URI of the target resource")
	pf.StringVar(&c.flags.Policy, "policy", "", "B2C policy tokens are cached under")
	pf.StringVar(&c.flags.CacheFile, "cache-file", "", "token cache file")
	pf.StringVar(&c.flags.LogLevel, "log-level", "", "log level: debug, info, warn, error or disabled")
	pf.StringVarP(&c.output, "output", "o", "table", "output format: table or json")

	rootCmd.AddCommand(newTokenCmd(c), newAuthURLCmd(c), newSecretCmd(c))
	return rootCmd
}

// setup loads the configuration, the token cache and the authentication context.
func (c *cli) setup(cmd *cobra.Command) error {
	cfg, err := loadConfig(c.configPath)
	if err != nil {
		return err
	}
	c.cfg = cfg.override(c.flags)
	if err := c.cfg.require("authority", "client-id"); err != nil {
		return err
	}

	c.cache, err = loadCache(c.cfg.cacheFile())
	if err != nil {
		return err
	}

	log, err := newLogger(cmd.ErrOrStderr(), c.cfg.LogLevel)
	if err != nil {
		return err
	}
	c.ac, err = adal.New(
		c.cfg.Authority,
		adal.WithCache(c.cache),
		adal.WithHTTPClient(c.httpClient),
		adal.WithLogger(log),
		adal.WithPolicy(c.cfg.Policy),
	)
	return err
}

// teardown writes the token cache back.
func (c *cli) teardown() error {
	if c.cache == nil {
		return nil
	}
	return saveCache(c.cfg.cacheFile(), c.cache)
}

// withContext wraps a command's RunE with setup and teardown.
func (c *cli) withContext(run func(cmd *cobra.Command, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := c.setup(cmd); err != nil {
			return err
		}
		runErr := run(cmd, args)
		if err := c.teardown(); err != nil && runErr == nil {
			return err
		}
		return runErr
	}
}

func newLogger(w io.Writer, level string) (zerolog.Logger, error) {
	lvl := zerolog.WarnLevel
	if level != "" {
		var err error
		lvl, err = zerolog.ParseLevel(level)
		if err != nil {
			return zerolog.Logger{}, fmt.Errorf("invalid log level %q: %w", level, err)
		}
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w}).Level(lvl).With().Timestamp().Logger(), nil
}

func loadCache(path string) (*cache.Memory, error) {
	m := cache.NewMemory()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return m, nil
		}
		return nil, fmt.Errorf("reading token cache: %w", err)
	}
	if err := m.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("token cache %s is corrupt: %w", path, err)
	}
	return m, nil
}

func saveCache(path string, m *cache.Memory) error {
	data, err := m.Marshal()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// loadCertificate reads a PEM or PFX file.
func loadCertificate(path, password string) (*x509.Certificate, crypto.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading certificate: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pfx", ".p12":
		return adal.CertFromPFX(data, password)
	}
	certs, key, err := adal.CertFromPEM(data, password)
	if err != nil {
		return nil, nil, err
	}
	return certs[0], key, nil
}

// Execute runs the root command and exits with a code describing the outcome.
func Execute() {
	if err := newRootCmd(newCLI()).Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	var oauthErr *adalErrors.OAuthError
	if errors.As(err, &oauthErr) {
		return ExitCodeAuthFailed
	}
	if errors.Is(err, adalErrors.ErrPollingCancelled) || errors.Is(err, adalErrors.ErrPollingExpired) {
		return ExitCodeAuthFailed
	}
	return ExitCodeError
}
