/*
Copyright © contributors to CloudNativePG, established as
CloudNativePG a Series of LF Projects, LLC.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.

SPDX-License-Identifier: Apache-2.0
*/

// Package certs generates the self-signed CA and leaf certificates
// used by the `--ssl-self-signed` mode of `create monitor`/`create
// postgres`. User-provided certificates (`--ssl-ca-file`,
// `--server-cert`, ...) bypass this package entirely and are loaded
// verbatim from disk by the caller.
package certs

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"
)

// CertType selects the key usage / extended key usage bits of a leaf
// certificate.
type CertType int

const (
	// CertTypeServer is used for the monitor and Postgres server certificates.
	CertTypeServer CertType = iota
	// CertTypeClient is used for keeper-to-monitor client authentication.
	CertTypeClient
)

const (
	certificateValidity = 90 * 24 * time.Hour
	expiringCheckWindow  = 7 * 24 * time.Hour
)

// KeyPair is a PEM-encoded certificate and its private key, optionally
// acting as a CA for signing further KeyPairs.
type KeyPair struct {
	Certificate []byte
	Private     []byte

	caCert    *x509.Certificate
	caPrivate *ecdsa.PrivateKey
}

// ParseCertificate decodes the PEM certificate.
func (k *KeyPair) ParseCertificate() (*x509.Certificate, error) {
	block, _ := pem.Decode(k.Certificate)
	if block == nil {
		return nil, fmt.Errorf("invalid PEM block in certificate")
	}
	return x509.ParseCertificate(block.Bytes)
}

// ParseECPrivateKey decodes the PEM private key.
func (k *KeyPair) ParseECPrivateKey() (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(k.Private)
	if block == nil {
		return nil, fmt.Errorf("invalid PEM block in private key")
	}
	return x509.ParseECPrivateKey(block.Bytes)
}

// IsExpiring reports whether the certificate will expire within
// expiringCheckWindow, along with its expiry time.
func (k *KeyPair) IsExpiring() (bool, *time.Time, error) {
	cert, err := k.ParseCertificate()
	if err != nil {
		return false, nil, err
	}
	expiring := time.Now().Add(expiringCheckWindow).After(cert.NotAfter)
	return expiring, &cert.NotAfter, nil
}

// DoAltDNSNamesMatch reports whether the certificate's SAN list is
// exactly the given set of names.
func (k *KeyPair) DoAltDNSNamesMatch(names []string) (bool, error) {
	cert, err := k.ParseCertificate()
	if err != nil {
		return false, err
	}
	if len(cert.DNSNames) != len(names) {
		return false, nil
	}
	for i, n := range cert.DNSNames {
		if n != names[i] {
			return false, nil
		}
	}
	return true, nil
}

// WriteToDisk persists the certificate and key as certFile/keyFile,
// creating the key with 0600 permissions the way a Postgres server
// certificate must be protected.
func (k *KeyPair) WriteToDisk(certFile, keyFile string) error {
	if err := os.MkdirAll(filepath.Dir(certFile), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(certFile, k.Certificate, 0o644); err != nil {
		return fmt.Errorf("writing certificate: %w", err)
	}
	if err := os.WriteFile(keyFile, k.Private, 0o600); err != nil {
		return fmt.Errorf("writing private key: %w", err)
	}
	return nil
}

// CreateRootCA generates a self-signed CA keypair for the given common
// name, valid for certificateValidity starting now.
func CreateRootCA(commonName, organizationalUnit string) (*KeyPair, error) {
	notBefore := time.Now().Add(-5 * time.Minute)
	notAfter := notBefore.Add(certificateValidity)
	return createCAWithValidity(notBefore, notAfter, nil, nil, commonName, organizationalUnit)
}

func createCAWithValidity(
	notBefore, notAfter time.Time,
	existingKey *ecdsa.PrivateKey,
	serial *big.Int,
	commonName, organizationalUnit string,
) (*KeyPair, error) {
	key := existingKey
	var err error
	if key == nil {
		key, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("generating CA key: %w", err)
		}
	}

	if serial == nil {
		serial, err = newSerialNumber()
		if err != nil {
			return nil, err
		}
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:         commonName,
			OrganizationalUnit: []string{organizationalUnit},
		},
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	certBytes, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("creating CA certificate: %w", err)
	}

	pair, err := encodeKeyPair(certBytes, key)
	if err != nil {
		return nil, err
	}
	pair.caCert = template
	pair.caPrivate = key

	return pair, nil
}

// RenewCertificate reissues the CA certificate with a fresh serial
// number and validity window, keeping the same key and subject.
func (k *KeyPair) RenewCertificate(key *ecdsa.PrivateKey, serial *big.Int, altDNSNames []string) error {
	cert, err := k.ParseCertificate()
	if err != nil {
		return err
	}

	notBefore := time.Now().Add(-5 * time.Minute)
	notAfter := notBefore.Add(certificateValidity)

	if serial == nil {
		serial, err = newSerialNumber()
		if err != nil {
			return err
		}
	}

	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               cert.Subject,
		DNSNames:              altDNSNames,
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		KeyUsage:              cert.KeyUsage,
		ExtKeyUsage:           cert.ExtKeyUsage,
		BasicConstraintsValid: true,
		IsCA:                  cert.IsCA,
	}

	certBytes, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return fmt.Errorf("renewing certificate: %w", err)
	}

	pair, err := encodeKeyPair(certBytes, key)
	if err != nil {
		return err
	}

	k.Certificate = pair.Certificate
	k.Private = pair.Private
	return nil
}

// CreateAndSignPair issues a leaf certificate for hostname, signed by
// this CA, with the given extended key usage and SAN list.
func (k *KeyPair) CreateAndSignPair(hostname string, usage CertType, altDNSNames []string) (*KeyPair, error) {
	caCert, err := k.ParseCertificate()
	if err != nil {
		return nil, err
	}
	caKey, err := k.ParseECPrivateKey()
	if err != nil {
		return nil, err
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating leaf key: %w", err)
	}

	serial, err := newSerialNumber()
	if err != nil {
		return nil, err
	}

	extKeyUsage := []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}
	if usage == CertTypeClient {
		extKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth}
	}

	dnsNames := altDNSNames
	if len(dnsNames) == 0 {
		dnsNames = []string{hostname}
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName: hostname,
		},
		DNSNames:              dnsNames,
		NotBefore:             time.Now().Add(-5 * time.Minute),
		NotAfter:              time.Now().Add(certificateValidity),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           extKeyUsage,
		BasicConstraintsValid: true,
		IsCA:                  false,
	}

	certBytes, err := x509.CreateCertificate(rand.Reader, template, caCert, &key.PublicKey, caKey)
	if err != nil {
		return nil, fmt.Errorf("signing leaf certificate: %w", err)
	}

	return encodeKeyPair(certBytes, key)
}

func encodeKeyPair(certDER []byte, key *ecdsa.PrivateKey) (*KeyPair, error) {
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})

	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("marshaling private key: %w", err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	return &KeyPair{Certificate: certPEM, Private: keyPEM}, nil
}

func newSerialNumber() (*big.Int, error) {
	limit := new(big.Int).Lsh(big.NewInt(1), 128)
	serial, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return nil, fmt.Errorf("generating serial number: %w", err)
	}
	return serial, nil
}
