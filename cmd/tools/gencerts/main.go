package main

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

var certDir = "certs/"

func main() {
	if _, err := os.Stat(certDir); os.IsNotExist(err) {
		os.Mkdir(certDir, 0755)
	}

	crt, key, _ := caCert()
	serverAbsPath := serverCert(crt, key)
	clientAbsPath := clientCert(crt, key)

	fmt.Println("Certificates generated successfully.")
	fmt.Printf(`
    rcmd-server expects a directory containing server.crt, server.pkcs8.key, rootCA.crt:

        %s

    rcmd (the client) expects a directory containing rootCA.crt, clientKeyCert.pem:

        %s

`, filepath.Dir(serverAbsPath), filepath.Dir(clientAbsPath))
}

var maxInt128 = new(big.Int).Lsh(big.NewInt(1), 128)

func fatal(format string, args ...any) {
	fmt.Printf(format+"\n", args...)
	os.Exit(1)
}

func caCert() (cert *x509.Certificate, key *ecdsa.PrivateKey, certAbsPath string) {
	private, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		fatal("failed to generate ECDSA P256 key pair: %v", err)
	}

	serialNumber, err := rand.Int(rand.Reader, maxInt128)
	if err != nil {
		fatal("failed to generate serial number: %v", err)
	}

	certTemplate := x509.Certificate{
		Subject:               pkix.Name{Organization: []string{"Rcmd"}, CommonName: "localhost"},
		Issuer:                pkix.Name{Organization: []string{"Rcmd"}, CommonName: "localhost"},
		SerialNumber:          serialNumber,
		NotBefore:             time.Now(),
		NotAfter:              time.Now().AddDate(1, 0, 0),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		IsCA:                  true,
		BasicConstraintsValid: true,
	}

	certBytes, err := x509.CreateCertificate(rand.Reader, &certTemplate, &certTemplate, &private.PublicKey, private)
	if err != nil {
		fatal("failed to create self-signed CA certificate: %v", err)
	}

	cert, err = x509.ParseCertificate(certBytes)
	if err != nil {
		fatal("failed to parse self-signed CA certificate: %v", err)
	}

	certFile, err := os.Create(filepath.Join(certDir, "rootCA.crt"))
	if err != nil {
		fatal("failed to create cert file: %v", err)
	}
	defer certFile.Close()
	if err := pem.Encode(certFile, &pem.Block{Type: "CERTIFICATE", Bytes: certBytes}); err != nil {
		fatal("failed to write cert file: %v", err)
	}

	certAbsPath, err = filepath.Abs(certFile.Name())
	if err != nil {
		fatal("failed to get absolute path of cert file: %v", err)
	}
	return cert, private, certAbsPath
}

// serverCert writes server.crt and server.pkcs8.key, the file names and
// PKCS8 key encoding rcmd-server's CLI expects.
func serverCert(caCert *x509.Certificate, caKey *ecdsa.PrivateKey) (certAbsPath string) {
	private, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		fatal("failed to generate ECDSA P256 key pair: %v", err)
	}

	serialNumber, err := rand.Int(rand.Reader, maxInt128)
	if err != nil {
		fatal("failed to generate serial number: %v", err)
	}

	certTemplate := x509.Certificate{
		Subject:               pkix.Name{Organization: []string{"Rcmd"}, CommonName: "server"},
		Issuer:                pkix.Name{Organization: []string{"Rcmd"}, CommonName: "localhost"},
		SerialNumber:          serialNumber,
		NotBefore:             time.Now(),
		NotAfter:              time.Now().AddDate(1, 0, 0),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
	}

	certBytes, err := x509.CreateCertificate(rand.Reader, &certTemplate, caCert, &private.PublicKey, caKey)
	if err != nil {
		fatal("failed to create server certificate: %v", err)
	}

	certFile, err := os.Create(filepath.Join(certDir, "server.crt"))
	if err != nil {
		fatal("failed to create cert file: %v", err)
	}
	defer certFile.Close()
	if err := pem.Encode(certFile, &pem.Block{Type: "CERTIFICATE", Bytes: certBytes}); err != nil {
		fatal("failed to write cert file: %v", err)
	}

	keyFile, err := os.Create(filepath.Join(certDir, "server.pkcs8.key"))
	if err != nil {
		fatal("failed to create key file: %v", err)
	}
	defer keyFile.Close()
	keyBytes, err := x509.MarshalPKCS8PrivateKey(private)
	if err != nil {
		fatal("failed to marshal private key: %v", err)
	}
	if err := pem.Encode(keyFile, &pem.Block{Type: "PRIVATE KEY", Bytes: keyBytes}); err != nil {
		fatal("failed to write key file: %v", err)
	}

	certAbsPath, err = filepath.Abs(certFile.Name())
	if err != nil {
		fatal("failed to get absolute path of cert file: %v", err)
	}
	return certAbsPath
}

// clientCert writes clientKeyCert.pem: the client's private key followed
// by its certificate concatenated in a single PEM file, the format rcmd's
// CLI expects to find in its certificate directory.
func clientCert(caCert *x509.Certificate, caKey *ecdsa.PrivateKey) (certAbsPath string) {
	private, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		fatal("failed to generate ECDSA P256 key pair: %v", err)
	}

	serialNumber, err := rand.Int(rand.Reader, maxInt128)
	if err != nil {
		fatal("failed to generate serial number: %v", err)
	}

	certTemplate := x509.Certificate{
		Subject:               pkix.Name{Organization: []string{"Rcmd"}, CommonName: "user1"},
		Issuer:                pkix.Name{Organization: []string{"Rcmd"}, CommonName: "localhost"},
		SerialNumber:          serialNumber,
		NotBefore:             time.Now(),
		NotAfter:              time.Now().AddDate(1, 0, 0),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
	}

	certBytes, err := x509.CreateCertificate(rand.Reader, &certTemplate, caCert, &private.PublicKey, caKey)
	if err != nil {
		fatal("failed to create client certificate: %v", err)
	}

	keyBytes, err := x509.MarshalECPrivateKey(private)
	if err != nil {
		fatal("failed to marshal private key: %v", err)
	}

	keyCertFile, err := os.Create(filepath.Join(certDir, "clientKeyCert.pem"))
	if err != nil {
		fatal("failed to create key+cert file: %v", err)
	}
	defer keyCertFile.Close()
	if err := pem.Encode(keyCertFile, &pem.Block{Type: "EC PRIVATE KEY", Bytes: keyBytes}); err != nil {
		fatal("failed to write key block: %v", err)
	}
	if err := pem.Encode(keyCertFile, &pem.Block{Type: "CERTIFICATE", Bytes: certBytes}); err != nil {
		fatal("failed to write cert block: %v", err)
	}

	certAbsPath, err = filepath.Abs(keyCertFile.Name())
	if err != nil {
		fatal("failed to get absolute path of key+cert file: %v", err)
	}
	return certAbsPath
}
