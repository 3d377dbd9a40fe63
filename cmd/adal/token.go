// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/AzureAD/azure-activedirectory-library-for-go/apps/adal"
	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
)

func newTokenCmd(c *cli) *cobra.Command {
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Acquire an access token",
	}
	tokenCmd.AddCommand(
		newClientCredentialsCmd(c),
		newPasswordCmd(c),
		newDeviceCodeCmd(c),
		newAuthCodeCmd(c),
		newRefreshCmd(c),
		newSilentCmd(c),
	)
	return tokenCmd
}

func newClientCredentialsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "client-credentials",
		Short: "Acquire an app only token with a client secret or certificate",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().StringVar(&c.flags.ClientSecret, "client-secret", "", "client secret")
	cmd.Flags().StringVar(&c.flags.CertificateFile, "certificate", "", "PEM or PFX file holding the certificate and its private key")
	cmd.Flags().StringVar(&c.flags.CertificatePassword, "certificate-password", "", "password of the certificate file")

	cmd.RunE = c.withContext(func(cmd *cobra.Command, args []string) error {
		if err := c.cfg.require("resource"); err != nil {
			return err
		}
		token, err := c.clientCredentials(cmd.Context())
		if err != nil {
			return err
		}
		return printToken(cmd.OutOrStdout(), c.output, token)
	})
	return cmd
}

func (c *cli) clientCredentials(ctx context.Context) (adal.Token, error) {
	if c.cfg.CertificateFile != "" {
		cert, key, err := loadCertificate(c.cfg.CertificateFile, c.cfg.CertificatePassword)
		if err != nil {
			return adal.Token{}, err
		}
		return c.ac.AcquireTokenWithClientCertificate(ctx, c.cfg.Resource, c.cfg.ClientID, cert, key)
	}
	if err := c.cfg.require("client-secret"); err != nil {
		return adal.Token{}, errors.New("either a client secret or a certificate is required")
	}
	return c.ac.AcquireTokenWithClientCredentials(ctx, c.cfg.Resource, c.cfg.ClientID, c.cfg.ClientSecret)
}

func newPasswordCmd(c *cli) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "password",
		Short: "Acquire a token for a user with username and password",
		Long: `Acquire a token for a user with username and password. Federated users are
authenticated against their identity provider. The password is prompted for when
--password is not given.`,
		Args: cobra.NoArgs,
	}
	cmd.Flags().StringVarP(&c.flags.Username, "username", "u", "", "user principal name")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password")

	cmd.RunE = c.withContext(func(cmd *cobra.Command, args []string) error {
		if err := c.cfg.require("resource", "username"); err != nil {
			return err
		}
		if password == "" {
			b, err := c.readPassword(fmt.Sprintf("Password for %s: ", c.cfg.Username))
			if err != nil {
				return fmt.Errorf("reading password: %w", err)
			}
			password = string(b)
		}
		token, err := c.ac.AcquireTokenWithUsernamePassword(cmd.Context(), c.cfg.Resource, c.cfg.Username, password, c.cfg.ClientID)
		if err != nil {
			return err
		}
		return printToken(cmd.OutOrStdout(), c.output, token)
	})
	return cmd
}

func newDeviceCodeCmd(c *cli) *cobra.Command {
	var (
		open     bool
		language string
		timeout  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "devicecode",
		Short: "Acquire a token by signing in on another device",
		Long: `Acquire a token with the device code flow. A code is printed that the user enters
at the verification URL. Press Ctrl+C to cancel while waiting.`,
		Args: cobra.NoArgs,
	}
	cmd.Flags().BoolVar(&open, "open", false, "open the verification URL in a browser")
	cmd.Flags().StringVar(&language, "language", "", "language of the sign in message, such as en-us")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "give up after this long, 0 waits until the code expires")

	cmd.RunE = c.withContext(func(cmd *cobra.Command, args []string) error {
		if err := c.cfg.require("resource"); err != nil {
			return err
		}
		ctx := cmd.Context()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		info, err := c.ac.AcquireUserCode(ctx, c.cfg.Resource, c.cfg.ClientID, language)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.ErrOrStderr(), info.Message)
		if open {
			if err := c.openURL(info.VerificationURL); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "could not open a browser: %s\n", err)
			}
		}

		token, err := c.waitForDeviceCode(ctx, cmd, &info)
		if err != nil {
			return err
		}
		return printToken(cmd.OutOrStdout(), c.output, token)
	})
	return cmd
}

// waitForDeviceCode polls until the user signs in. An interrupt cancels the poll.
func (c *cli) waitForDeviceCode(ctx context.Context, cmd *cobra.Command, info *adal.UserCodeInfo) (adal.Token, error) {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(cmd.ErrOrStderr()))
	s.Suffix = " Waiting for sign in..."
	s.Start()
	defer s.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	defer signal.Stop(sig)
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-sig:
			_ = c.ac.CancelRequestToGetTokenWithDeviceCode(info)
		case <-done:
		}
	}()

	return c.ac.AcquireTokenWithDeviceCode(ctx, c.cfg.Resource, c.cfg.ClientID, info)
}

func newAuthCodeCmd(c *cli) *cobra.Command {
	var code string
	cmd := &cobra.Command{
		Use:   "authcode",
		Short: "Redeem an authorization code",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().StringVar(&code, "code", "", "authorization code returned to the redirect URI")
	cmd.Flags().StringVar(&c.flags.RedirectURI, "redirect-uri", "", "redirect URI the code was issued for")
	cmd.Flags().StringVar(&c.flags.ClientSecret, "client-secret", "", "client secret, empty for public clients")
	_ = cmd.MarkFlagRequired("code")

	cmd.RunE = c.withContext(func(cmd *cobra.Command, args []string) error {
		if err := c.cfg.require("resource", "redirect-uri"); err != nil {
			return err
		}
		token, err := c.ac.AcquireTokenWithAuthorizationCode(cmd.Context(), code, c.cfg.RedirectURI, c.cfg.Resource, c.cfg.ClientID, c.cfg.ClientSecret)
		if err != nil {
			return err
		}
		return printToken(cmd.OutOrStdout(), c.output, token)
	})
	return cmd
}

func newRefreshCmd(c *cli) *cobra.Command {
	var refreshToken string
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Redeem a refresh token",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().StringVar(&refreshToken, "refresh-token", "", "refresh token")
	cmd.Flags().StringVar(&c.flags.ClientSecret, "client-secret", "", "client secret, empty for public clients")
	_ = cmd.MarkFlagRequired("refresh-token")

	cmd.RunE = c.withContext(func(cmd *cobra.Command, args []string) error {
		token, err := c.ac.AcquireTokenWithRefreshToken(cmd.Context(), refreshToken, c.cfg.ClientID, c.cfg.ClientSecret, c.cfg.Resource)
		if err != nil {
			return err
		}
		return printToken(cmd.OutOrStdout(), c.output, token)
	})
	return cmd
}

func newSilentCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "silent",
		Short: "Return a cached token, refreshing it if needed",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().StringVarP(&c.flags.Username, "username", "u", "", "user the token was issued to, empty for app only tokens")

	cmd.RunE = c.withContext(func(cmd *cobra.Command, args []string) error {
		if err := c.cfg.require("resource"); err != nil {
			return err
		}
		token, err := c.ac.AcquireToken(cmd.Context(), c.cfg.Resource, c.cfg.Username, c.cfg.ClientID)
		if err != nil {
			return err
		}
		return printToken(cmd.OutOrStdout(), c.output, token)
	})
	return cmd
}

func newAuthURLCmd(c *cli) *cobra.Command {
	var (
		state string
		open  bool
	)
	cmd := &cobra.Command{
		Use:   "authurl",
		Short: "Print the URL that starts the authorization code flow",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().StringVar(&c.flags.RedirectURI, "redirect-uri", "", "redirect URI registered for the application")
	cmd.Flags().StringVar(&state, "state", "", "opaque value returned with the code")
	cmd.Flags().BoolVar(&open, "open", false, "open the URL in a browser")

	cmd.RunE = c.withContext(func(cmd *cobra.Command, args []string) error {
		if err := c.cfg.require("redirect-uri"); err != nil {
			return err
		}
		u, err := c.ac.AuthorizationURL(c.cfg.ClientID, c.cfg.RedirectURI, c.cfg.Resource, state)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), u)
		if open {
			return c.openURL(u)
		}
		return nil
	})
	return cmd
}
