// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package main

import (
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	"github.com/AzureAD/azure-activedirectory-library-for-go/apps/adal"
	"github.com/spf13/cobra"
)

func newSecretCmd(c *cli) *cobra.Command {
	secretCmd := &cobra.Command{
		Use:   "secret",
		Short: "Read Key Vault secrets with an app only token",
	}
	secretCmd.AddCommand(newSecretGetCmd(c))
	return secretCmd
}

func newSecretGetCmd(c *cli) *cobra.Command {
	var (
		vaultURL      string
		secretVersion string
	)
	cmd := &cobra.Command{
		Use:   "get NAME",
		Short: "Print the value of a Key Vault secret",
		Args:  cobra.ExactArgs(1),
	}
	cmd.Flags().StringVar(&vaultURL, "vault", "", "vault URL, such as https://myvault.vault.azure.net")
	cmd.Flags().StringVar(&secretVersion, "version", "", "secret version, the latest when empty")
	cmd.Flags().StringVar(&c.flags.ClientSecret, "client-secret", "", "client secret")
	cmd.Flags().StringVar(&c.flags.CertificateFile, "certificate", "", "PEM or PFX file holding the certificate and its private key")
	cmd.Flags().StringVar(&c.flags.CertificatePassword, "certificate-password", "", "password of the certificate file")
	_ = cmd.MarkFlagRequired("vault")

	cmd.RunE = c.withContext(func(cmd *cobra.Command, args []string) error {
		cred, err := c.tokenCredential()
		if err != nil {
			return err
		}
		client, err := azsecrets.NewClient(vaultURL, cred, &azsecrets.ClientOptions{
			ClientOptions: policy.ClientOptions{Transport: c.httpClient},
		})
		if err != nil {
			return fmt.Errorf("creating key vault client: %w", err)
		}

		resp, err := client.GetSecret(cmd.Context(), args[0], secretVersion, nil)
		if err != nil {
			return fmt.Errorf("getting secret %s: %w", args[0], err)
		}
		if resp.Value == nil {
			return fmt.Errorf("secret %s has no value", args[0])
		}
		fmt.Fprintln(cmd.OutOrStdout(), *resp.Value)
		return nil
	})
	return cmd
}

// tokenCredential returns the Azure SDK credential matching the configured client credential.
func (c *cli) tokenCredential() (azcore.TokenCredential, error) {
	if c.cfg.CertificateFile != "" {
		cert, key, err := loadCertificate(c.cfg.CertificateFile, c.cfg.CertificatePassword)
		if err != nil {
			return nil, err
		}
		return adal.NewCertificateCredential(c.ac, c.cfg.ClientID, cert, key), nil
	}
	if err := c.cfg.require("client-secret"); err != nil {
		return nil, fmt.Errorf("either a client secret or a certificate is required")
	}
	return adal.NewClientSecretCredential(c.ac, c.cfg.ClientID, c.cfg.ClientSecret), nil
}
