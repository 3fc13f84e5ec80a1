package main

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/dustinevan/rcmd/internal/job"
)

// apiClient talks to one rcmd-server over mTLS. It never maps a remote
// error to a local exit code: a 404 or 500 response is printed and the
// command still exits 0, matching the CLI's contract that only local
// errors (bad arguments, unreadable certificates) are exit failures.
type apiClient struct {
	http    *http.Client
	baseURL string
}

// newAPIClient loads rootCA.crt and clientKeyCert.pem from certDir and
// builds a client trusting only that root, presenting that identity.
// host is bare (no scheme, no port); the client always speaks HTTPS on
// port 8000.
func newAPIClient(certDir, host string) (*apiClient, error) {
	caBytes, err := os.ReadFile(filepath.Join(certDir, "rootCA.crt"))
	if err != nil {
		return nil, fmt.Errorf("reading root CA: %w", err)
	}
	certPool := x509.NewCertPool()
	if !certPool.AppendCertsFromPEM(caBytes) {
		return nil, fmt.Errorf("parsing root CA: no certificates found")
	}

	keyCertBytes, err := os.ReadFile(filepath.Join(certDir, "clientKeyCert.pem"))
	if err != nil {
		return nil, fmt.Errorf("reading client identity: %w", err)
	}
	cert, err := tls.X509KeyPair(keyCertBytes, keyCertBytes)
	if err != nil {
		return nil, fmt.Errorf("parsing client identity: %w", err)
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			RootCAs:      certPool,
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS13,
		},
	}

	return &apiClient{
		http:    &http.Client{Transport: transport},
		baseURL: fmt.Sprintf("https://%s:8000", host),
	}, nil
}

func (c *apiClient) submit(command string, args []string) (uint64, error) {
	body, err := json.Marshal(struct {
		Command   string   `json:"command"`
		Arguments []string `json:"arguments"`
	}{Command: command, Arguments: args})
	if err != nil {
		return 0, fmt.Errorf("encoding request: %w", err)
	}

	resp, err := c.http.Post(c.baseURL+"/jobs", "application/json", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("submitting job: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("server returned %d: %s", resp.StatusCode, respBody)
	}

	var id uint64
	if err := json.Unmarshal(respBody, &id); err != nil {
		return 0, fmt.Errorf("decoding job id: %w", err)
	}
	return id, nil
}

func (c *apiClient) list() (map[string]job.Spec, error) {
	var out map[string]job.Spec
	if err := c.getJSON("/jobs", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *apiClient) status(id uint64) (job.Status, error) {
	var st job.Status
	err := c.getJSON(fmt.Sprintf("/jobs/%d/status", id), &st)
	return st, err
}

func (c *apiClient) output(id uint64) (job.Output, error) {
	var out job.Output
	err := c.getJSON(fmt.Sprintf("/jobs/%d/output", id), &out)
	return out, err
}

func (c *apiClient) delete(id uint64) error {
	req, err := http.NewRequest(http.MethodDelete, c.baseURL+fmt.Sprintf("/jobs/%d", id), nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("deleting job: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return remoteError(resp)
	}
	return nil
}

// getJSON issues a GET and decodes a 200 response body into out. remote
// failures are returned as *remoteErr, which callers print without
// treating as a local/exit-code error.
func (c *apiClient) getJSON(path string, out any) error {
	resp, err := c.http.Get(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("requesting %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return remoteError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// remoteErr distinguishes a response the server sent deliberately (a 404
// or a 500 with a body) from a transport-level failure, so the CLI can
// print it without treating it as a local error.
type remoteErr struct {
	status int
	body   string
}

func (e *remoteErr) Error() string {
	if e.status == http.StatusNotFound {
		return "job not found"
	}
	return fmt.Sprintf("server returned %d: %s", e.status, e.body)
}

func remoteError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	return &remoteErr{status: resp.StatusCode, body: string(body)}
}
