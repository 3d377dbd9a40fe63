// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package adal

import (
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"golang.org/x/crypto/pkcs12"
)

// CertFromPEM converts a PEM file (.pem or .key) for use with AcquireTokenWithClientCertificate.
// The PEM file must contain at least one certificate and one private key, in PKCS8 or
// PKCS1 form. Encrypted blocks are decrypted with password.
func CertFromPEM(pemData []byte, password string) ([]*x509.Certificate, crypto.PrivateKey, error) {
	var certs []*x509.Certificate
	var priv crypto.PrivateKey
	for {
		block, rest := pem.Decode(pemData)
		if block == nil {
			break
		}

		//nolint:staticcheck
		if x509.IsEncryptedPEMBlock(block) {
			//nolint:staticcheck
			b, err := x509.DecryptPEMBlock(block, []byte(password))
			if err != nil {
				return nil, nil, fmt.Errorf("could not decrypt encrypted PEM block: %w", err)
			}
			block = &pem.Block{Type: block.Type, Bytes: b}
		}

		switch block.Type {
		case "CERTIFICATE":
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, nil, fmt.Errorf("block labelled 'CERTIFICATE' could not be parsed by x509: %w", err)
			}
			certs = append(certs, cert)
		case "PRIVATE KEY", "RSA PRIVATE KEY":
			if priv != nil {
				return nil, nil, fmt.Errorf("found multiple private key blocks")
			}

			var err error
			priv, err = parsePrivateKey(block.Type, block.Bytes)
			if err != nil {
				return nil, nil, fmt.Errorf("could not decode private key: %w", err)
			}
		}
		pemData = rest
	}

	if len(certs) == 0 {
		return nil, nil, fmt.Errorf("no certificates found")
	}
	if priv == nil {
		return nil, nil, fmt.Errorf("no private key found")
	}
	return certs, priv, nil
}

func parsePrivateKey(blockType string, der []byte) (crypto.PrivateKey, error) {
	if blockType == "RSA PRIVATE KEY" {
		key, err := x509.ParsePKCS1PrivateKey(der)
		if err != nil {
			return nil, fmt.Errorf("problems decoding private key using PKCS1: %w", err)
		}
		return key, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("problems decoding private key using PKCS8: %w", err)
	}
	return key, nil
}

// CertFromPFX converts a PKCS#12 (.pfx or .p12) file holding one certificate and its
// private key for use with AcquireTokenWithClientCertificate.
func CertFromPFX(pfxData []byte, password string) (*x509.Certificate, crypto.PrivateKey, error) {
	key, cert, err := pkcs12.Decode(pfxData, password)
	if err != nil {
		return nil, nil, fmt.Errorf("could not decode PFX data: %w", err)
	}
	return cert, key, nil
}
