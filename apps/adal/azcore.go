// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package adal

import (
	"context"
	"crypto"
	"crypto/x509"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/AzureAD/azure-activedirectory-library-for-go/apps/errors"
)

const defaultScopeSuffix = "/.default"

var (
	_ azcore.TokenCredential = (*ClientSecretCredential)(nil)
	_ azcore.TokenCredential = (*CertificateCredential)(nil)
)

// ClientSecretCredential lets Azure SDK clients authenticate through an AuthenticationContext
// with a client secret.
type ClientSecretCredential struct {
	ac       *AuthenticationContext
	clientID string
	secret   string
}

// NewClientSecretCredential creates a ClientSecretCredential.
func NewClientSecretCredential(ac *AuthenticationContext, clientID, secret string) *ClientSecretCredential {
	return &ClientSecretCredential{ac: ac, clientID: clientID, secret: secret}
}

// GetToken implements azcore.TokenCredential.
func (c *ClientSecretCredential) GetToken(ctx context.Context, opts policy.TokenRequestOptions) (azcore.AccessToken, error) {
	resource, err := ResourceFromScopes(opts.Scopes)
	if err != nil {
		return azcore.AccessToken{}, err
	}
	t, err := c.ac.AcquireTokenWithClientCredentials(ctx, resource, c.clientID, c.secret)
	if err != nil {
		return azcore.AccessToken{}, err
	}
	return azcore.AccessToken{Token: t.AccessToken, ExpiresOn: t.ExpiresOn}, nil
}

// CertificateCredential lets Azure SDK clients authenticate through an AuthenticationContext
// with a certificate.
type CertificateCredential struct {
	ac       *AuthenticationContext
	clientID string
	cert     *x509.Certificate
	key      crypto.PrivateKey
}

// NewCertificateCredential creates a CertificateCredential.
func NewCertificateCredential(ac *AuthenticationContext, clientID string, cert *x509.Certificate, key crypto.PrivateKey) *CertificateCredential {
	return &CertificateCredential{ac: ac, clientID: clientID, cert: cert, key: key}
}

// GetToken implements azcore.TokenCredential.
func (c *CertificateCredential) GetToken(ctx context.Context, opts policy.TokenRequestOptions) (azcore.AccessToken, error) {
	resource, err := ResourceFromScopes(opts.Scopes)
	if err != nil {
		return azcore.AccessToken{}, err
	}
	t, err := c.ac.AcquireTokenWithClientCertificate(ctx, resource, c.clientID, c.cert, c.key)
	if err != nil {
		return azcore.AccessToken{}, err
	}
	return azcore.AccessToken{Token: t.AccessToken, ExpiresOn: t.ExpiresOn}, nil
}

// ResourceFromScopes maps the single v2 scope an Azure SDK client asks for, such as
// "https://vault.azure.net/.default", to the v1 resource "https://vault.azure.net".
func ResourceFromScopes(scopes []string) (string, error) {
	if len(scopes) != 1 {
		return "", &errors.ArgumentError{Name: "scopes", Msg: fmt.Sprintf("exactly one scope is supported, got %d", len(scopes))}
	}
	resource := strings.TrimSuffix(scopes[0], defaultScopeSuffix)
	if resource == "" {
		return "", &errors.ArgumentError{Name: "scopes", Msg: "scope does not name a resource"}
	}
	return resource, nil
}
