package rcmdhttp

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dustinevan/rcmd/internal/registry"
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	log, err := zap.NewDevelopment()
	require.NoError(t, err)
	return NewServer(registry.New(context.Background(), log.Sugar()), log.Sugar())
}

func withPrincipal(req *http.Request, cn string) *http.Request {
	req.TLS = &tls.ConnectionState{
		PeerCertificates: []*x509.Certificate{
			{Subject: pkix.Name{CommonName: cn}},
		},
	}
	return req
}

func TestSubmitWithoutClientCertIsUnauthorized(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewBufferString(`{"command":"echo","arguments":["hi"]}`))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSubmitThenListRoundTrips(t *testing.T) {
	srv := newTestServer(t)

	submit := withPrincipal(httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewBufferString(`{"command":"echo","arguments":["hi"]}`)), "alice")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, submit)
	require.Equal(t, http.StatusOK, rec.Code)

	var id uint64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &id))

	list := withPrincipal(httptest.NewRequest(http.MethodGet, "/jobs", nil), "alice")
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, list)
	require.Equal(t, http.StatusOK, rec.Code)

	var jobs map[string]struct {
		Command   string   `json:"command"`
		Arguments []string `json:"arguments"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jobs))
	assert.Equal(t, "echo", jobs[itoa(id)].Command)
}

func TestStatusForUnknownJobIsNotFound(t *testing.T) {
	srv := newTestServer(t)
	req := withPrincipal(httptest.NewRequest(http.MethodGet, "/jobs/999/status", nil), "alice")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPrincipalsAreIsolated(t *testing.T) {
	srv := newTestServer(t)

	submit := withPrincipal(httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewBufferString(`{"command":"echo","arguments":["hi"]}`)), "alice")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, submit)
	require.Equal(t, http.StatusOK, rec.Code)
	var id uint64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &id))

	listAsBob := withPrincipal(httptest.NewRequest(http.MethodGet, "/jobs", nil), "bob")
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, listAsBob)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "{}\n", rec.Body.String())
}

func itoa(id uint64) string {
	b, _ := json.Marshal(id)
	return string(bytes.Trim(b, `"`))
}
