package rcmdhttp

import (
	"fmt"
	"net/http"
)

// principalFromRequest extracts the authenticated client's principal name
// from its validated mTLS certificate: the subject Common Name. The
// server's TLS config requires and verifies the client certificate before
// the handler ever runs, so a request reaching here always carries at
// least one verified peer certificate -- this only guards against an
// empty CN, which the operator's certificate-issuing tooling should never
// produce but which the handshake itself does not forbid.
func principalFromRequest(r *http.Request) (string, error) {
	if r.TLS == nil {
		return "", fmt.Errorf("getting common name: connection is not TLS")
	}
	if len(r.TLS.PeerCertificates) == 0 {
		return "", fmt.Errorf("getting common name: no peer certificates")
	}
	cn := r.TLS.PeerCertificates[0].Subject.CommonName
	if cn == "" {
		return "", fmt.Errorf("getting common name: peer certificate has no common name")
	}
	return cn, nil
}
