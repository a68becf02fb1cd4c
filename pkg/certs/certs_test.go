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

package certs

import (
	"crypto/x509"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Keypair generation", func() {
	It("should generate a correct root CA", func() {
		pair, err := CreateRootCA("test", "formation")
		Expect(err).ToNot(HaveOccurred())

		cert, err := pair.ParseCertificate()
		Expect(err).ToNot(HaveOccurred())

		key, err := pair.ParseECPrivateKey()
		Expect(err).ToNot(HaveOccurred())

		Expect(cert.PublicKey).To(BeEquivalentTo(&key.PublicKey))
		Expect(cert.IsCA).To(BeTrue())
		Expect(cert.BasicConstraintsValid).To(BeTrue())
		Expect(cert.NotBefore).To(BeTemporally("<", time.Now()))
		Expect(cert.NotAfter).To(BeTemporally(">", time.Now()))
		Expect(cert.CheckSignatureFrom(cert)).ToNot(HaveOccurred())
	})

	It("marks expiring certificate as expiring", func() {
		notAfter := time.Now().Add(-10 * time.Hour)
		notBefore := notAfter.Add(-90 * 24 * time.Hour)
		ca, err := createCAWithValidity(notBefore, notAfter, nil, nil, "root", "formation")
		Expect(err).ToNot(HaveOccurred())
		isExpiring, _, err := ca.IsExpiring()
		Expect(err).ToNot(HaveOccurred())
		Expect(isExpiring).To(BeTrue())
	})

	It("doesn't mark a valid certificate as expiring", func() {
		ca, err := CreateRootCA("test", "formation")
		Expect(err).ToNot(HaveOccurred())
		isExpiring, _, err := ca.IsExpiring()
		Expect(err).ToNot(HaveOccurred())
		Expect(isExpiring).To(BeFalse())
	})

	When("we have a CA generated", func() {
		It("should successfully generate a leaf certificate", func() {
			rootCA, err := CreateRootCA("test", "formation")
			Expect(err).ToNot(HaveOccurred())

			pair, err := rootCA.CreateAndSignPair("node-a.example.com", CertTypeServer, nil)
			Expect(err).ToNot(HaveOccurred())

			cert, err := pair.ParseCertificate()
			Expect(err).ToNot(HaveOccurred())

			key, err := pair.ParseECPrivateKey()
			Expect(err).ToNot(HaveOccurred())

			Expect(cert.PublicKey).To(BeEquivalentTo(&key.PublicKey))
			Expect(cert.IsCA).To(BeFalse())
			Expect(cert.ExtKeyUsage).To(Equal([]x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}))
			Expect(cert.VerifyHostname("node-a.example.com")).To(Succeed())

			caCert, err := rootCA.ParseCertificate()
			Expect(err).ToNot(HaveOccurred())
			Expect(cert.CheckSignatureFrom(caCert)).ToNot(HaveOccurred())
		})
	})
})

func TestCerts(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Certs Suite")
}
