package sandbox

import (
	"crypto/tls"

	"github.com/docker/go-connections/tlsconfig"
)

// ClientTLS builds the client side of a mutual-TLS connection to a sandbox
// service. caFile pins the server's CA; certFile and keyFile may be empty
// when the server does not require client certificates.
func ClientTLS(caFile, certFile, keyFile string) (*tls.Config, error) {
	return tlsconfig.Client(tlsconfig.Options{
		CAFile:             caFile,
		CertFile:           certFile,
		KeyFile:            keyFile,
		ExclusiveRootPools: caFile != "",
		MinVersion:         tls.VersionTLS12,
	})
}

// ServerTLS builds the server TLS configuration for a sandbox service. With a
// non-empty caFile, clients must present a certificate signed by that CA.
func ServerTLS(caFile, certFile, keyFile string) (*tls.Config, error) {
	opts := tlsconfig.Options{
		CertFile:   certFile,
		KeyFile:    keyFile,
		MinVersion: tls.VersionTLS12,
	}
	if caFile != "" {
		opts.CAFile = caFile
		opts.ClientAuth = tls.RequireAndVerifyClientCert
		opts.ExclusiveRootPools = true
	}
	return tlsconfig.Server(opts)
}
