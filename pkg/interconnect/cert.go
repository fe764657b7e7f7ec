package interconnect

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"time"

	"github.com/mcfabric/mcfabric/pkg/ferrors"
)

// selfSignedCertificate builds an ephemeral self-signed certificate for one
// Interconnect Session's DTLS identity, following pkg/rtp/example_dtls.go's
// generateSelfSignedCert. Loading a configured CertFile/KeyFile instead is
// handled by loadOrGenerateCertificate.
func selfSignedCertificate() (tls.Certificate, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return tls.Certificate{}, ferrors.New("interconnect.selfSignedCertificate", ferrors.CodeCryptoHandshakeFailed, err)
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{Organization: []string{"mcfabric"}},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return tls.Certificate{}, ferrors.New("interconnect.selfSignedCertificate", ferrors.CodeCryptoHandshakeFailed, err)
	}

	return tls.Certificate{
		Certificate: [][]byte{certDER},
		PrivateKey:  key,
		Leaf:        nil,
	}, nil
}

// loadOrGenerateCertificate loads CertFile/KeyFile when both are set,
// otherwise mints a fresh self-signed identity (§4.4.2).
func loadOrGenerateCertificate(certFile, keyFile string) (tls.Certificate, error) {
	if certFile == "" || keyFile == "" {
		return selfSignedCertificate()
	}
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return tls.Certificate{}, ferrors.New("interconnect.loadOrGenerateCertificate", ferrors.CodeConfigInvalid, err)
	}
	return cert, nil
}
