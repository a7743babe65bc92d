package wire

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"

	"scan-http/transport"

	"github.com/pkg/errors"
)

var tlsVersions = map[string]uint16{
	"":        0,
	"TLSv1":   tls.VersionTLS10,
	"TLSv1_0": tls.VersionTLS10,
	"TLSv1_1": tls.VersionTLS11,
	"TLSv1_2": tls.VersionTLS12,
	"TLSv1_3": tls.VersionTLS13,
}

// tlsConfig returns the cached config for o, building it on first use.
// ServerName is left empty.
func (tr *Transport) tlsConfig(o transport.TLSOptions) (*tls.Config, error) {
	if cached, ok := tr.tlsConfigs.Load(o); ok {
		return cached.(*tls.Config), nil
	}

	cfg, err := buildTLSConfig(o)
	if err != nil {
		return nil, err
	}

	actual, _ := tr.tlsConfigs.LoadOrStore(o, cfg)
	return actual.(*tls.Config), nil
}

func buildTLSConfig(o transport.TLSOptions) (*tls.Config, error) {
	version, ok := tlsVersions[o.Version]
	if !ok {
		return nil, errors.Errorf("unknown tls version %q", o.Version)
	}

	cfg := &tls.Config{MinVersion: version}
	if version == 0 {
		// Scan targets may only speak old protocol versions.
		cfg.MinVersion = tls.VersionTLS10
	}

	if o.CAFile != "" || o.CAPath != "" {
		roots, err := loadRoots(o.CAFile, o.CAPath)
		if err != nil {
			return nil, err
		}
		cfg.RootCAs = roots
	}

	if o.CertFile != "" {
		cert, err := loadCertificate(o)
		if err != nil {
			return nil, err
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	switch {
	case !o.VerifyPeer:
		cfg.InsecureSkipVerify = true
	case o.VerifyHost == transport.HostCheckNone:
		// Verify the chain but not the name it was issued for.
		cfg.InsecureSkipVerify = true
		cfg.VerifyConnection = verifyChain(cfg.RootCAs)
	}

	return cfg, nil
}

func verifyChain(roots *x509.CertPool) func(tls.ConnectionState) error {
	return func(cs tls.ConnectionState) error {
		if len(cs.PeerCertificates) == 0 {
			return errors.New("no peer certificate")
		}

		intermediates := x509.NewCertPool()
		for _, cert := range cs.PeerCertificates[1:] {
			intermediates.AddCert(cert)
		}

		_, err := cs.PeerCertificates[0].Verify(x509.VerifyOptions{
			Roots:         roots,
			Intermediates: intermediates,
		})
		return errors.Wrap(err, "verifying peer certificate")
	}
}

func loadRoots(file, dir string) (*x509.CertPool, error) {
	roots := x509.NewCertPool()

	var files []string
	if file != "" {
		files = append(files, file)
	}
	if dir != "" {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, errors.Wrapf(err, "reading ca directory %q", dir)
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				files = append(files, filepath.Join(dir, entry.Name()))
			}
		}
	}

	for _, f := range files {
		b, err := os.ReadFile(f)
		if err != nil {
			return nil, errors.Wrapf(err, "reading ca file %q", f)
		}
		if !roots.AppendCertsFromPEM(b) && f == file {
			return nil, errors.Errorf("no certificate found in %q", f)
		}
	}

	return roots, nil
}

func isDER(kind string) bool { return strings.EqualFold(kind, "DER") }

func loadCertificate(o transport.TLSOptions) (tls.Certificate, error) {
	certRaw, err := os.ReadFile(o.CertFile)
	if err != nil {
		return tls.Certificate{}, errors.Wrapf(err, "reading certificate %q", o.CertFile)
	}

	var chain [][]byte
	if isDER(o.CertType) {
		chain = append(chain, certRaw)
	} else {
		for block, rest := pem.Decode(certRaw); block != nil; block, rest = pem.Decode(rest) {
			if block.Type == "CERTIFICATE" {
				chain = append(chain, block.Bytes)
			}
		}
	}
	if len(chain) == 0 {
		return tls.Certificate{}, errors.Errorf("no certificate found in %q", o.CertFile)
	}

	keyFile := o.KeyFile
	if keyFile == "" {
		// The key may be bundled with the certificate.
		keyFile = o.CertFile
	}
	keyRaw, err := os.ReadFile(keyFile)
	if err != nil {
		return tls.Certificate{}, errors.Wrapf(err, "reading key %q", keyFile)
	}

	key, err := parseKey(keyRaw, isDER(o.KeyType), o.KeyPassword)
	if err != nil {
		return tls.Certificate{}, errors.Wrapf(err, "parsing key %q", keyFile)
	}

	leaf, err := x509.ParseCertificate(chain[0])
	if err != nil {
		return tls.Certificate{}, errors.Wrap(err, "parsing certificate")
	}

	return tls.Certificate{Certificate: chain, PrivateKey: key, Leaf: leaf}, nil
}

func parseKey(raw []byte, der bool, password string) (crypto.PrivateKey, error) {
	if !der {
		var block *pem.Block
		for block, raw = pem.Decode(raw); block != nil; block, raw = pem.Decode(raw) {
			if strings.HasSuffix(block.Type, "PRIVATE KEY") {
				break
			}
		}
		if block == nil {
			return nil, errors.New("no private key block found")
		}

		//nolint:staticcheck
		if x509.IsEncryptedPEMBlock(block) {
			decrypted, err := x509.DecryptPEMBlock(block, []byte(password)) //nolint:staticcheck
			if err != nil {
				return nil, errors.Wrap(err, "decrypting key")
			}
			return parseDERKey(decrypted)
		}
		raw = block.Bytes
	}

	return parseDERKey(raw)
}

func parseDERKey(der []byte) (crypto.PrivateKey, error) {
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		switch key := key.(type) {
		case *rsa.PrivateKey, *ecdsa.PrivateKey, ed25519.PrivateKey:
			return key, nil
		}
		return nil, errors.New("unsupported private key type")
	}
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(der); err == nil {
		return key, nil
	}
	return nil, errors.New("unrecognized private key encoding")
}
