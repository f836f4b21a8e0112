//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloo-solutions/kbsearch/internal/domain"
)

// E2ETestEnv holds the binary, a fake vendor and the daemon process
type E2ETestEnv struct {
	T          *testing.T
	BinaryDir  string
	DataFile   string
	Vendor     *httptest.Server
	VendorHits atomic.Int32
	ServerURL  string
	HTTPClient *http.Client

	records []domain.KnowledgeRecord
	daemon  *exec.Cmd
}

// SetupE2EEnv builds kbsearchd and starts a vendor serving records
func SetupE2EEnv(t *testing.T, records []domain.KnowledgeRecord) *E2ETestEnv {
	e := &E2ETestEnv{
		T:          t,
		DataFile:   filepath.Join(t.TempDir(), "knowledge.json"),
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		records:    records,
	}

	e.Vendor = httptest.NewServer(http.HandlerFunc(e.serveVendor))
	e.BuildBinaries()
	return e
}

func (e *E2ETestEnv) serveVendor(w http.ResponseWriter, r *http.Request) {
	e.VendorHits.Add(1)
	if r.URL.Query().Get("checksum") == "" {
		http.Error(w, "unsigned", http.StatusUnauthorized)
		return
	}
	data, _ := json.Marshal(e.records)
	w.Header().Set("Content-Type", "application/json")
	_, _ = fmt.Fprintf(w, `{"code":200,"message":{"data":%s,"isEnd":1}}`, data)
}

// Cleanup stops the daemon and the vendor
func (e *E2ETestEnv) Cleanup() {
	if e.daemon != nil && e.daemon.Process != nil {
		_ = e.daemon.Process.Signal(os.Interrupt)
		done := make(chan struct{})
		go func() {
			_ = e.daemon.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			_ = e.daemon.Process.Kill()
		}
	}
	e.Vendor.Close()
	if e.BinaryDir != "" {
		_ = os.RemoveAll(e.BinaryDir)
	}
}

// BuildBinaries builds the kbsearchd binary
func (e *E2ETestEnv) BuildBinaries() {
	tmpDir, err := os.MkdirTemp("", "kbsearch-e2e-*")
	if err != nil {
		e.T.Fatalf("failed to create temp dir: %v", err)
	}
	e.BinaryDir = tmpDir

	cmd := exec.Command("go", "build", "-o", filepath.Join(tmpDir, "kbsearchd"), "./cmd/kbsearchd")
	cmd.Dir = "../.."
	if out, err := cmd.CombinedOutput(); err != nil {
		e.T.Fatalf("failed to build kbsearchd: %v\n%s", err, out)
	}
}

func (e *E2ETestEnv) env() []string {
	return append(os.Environ(),
		"KBSEARCH_APP_KEY=e2e-key",
		"KBSEARCH_APP_SECRET=e2e-secret",
		"KBSEARCH_API_URL="+e.Vendor.URL,
		"KBSEARCH_DATA_FILE="+e.DataFile,
		"KBSEARCH_LOG_LEVEL=warn",
	)
}

// Run runs a kbsearchd command and returns its combined output
func (e *E2ETestEnv) Run(args ...string) (string, error) {
	cmd := exec.Command(filepath.Join(e.BinaryDir, "kbsearchd"), args...)
	cmd.Env = e.env()
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// StartDaemon runs kbsearchd serve on a free port and waits for health
func (e *E2ETestEnv) StartDaemon() {
	port, err := getFreePort()
	if err != nil {
		e.T.Fatalf("failed to get free port: %v", err)
	}

	cmd := exec.Command(filepath.Join(e.BinaryDir, "kbsearchd"), "serve",
		"--host", "127.0.0.1", "--port", fmt.Sprint(port))
	cmd.Env = e.env()
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		e.T.Fatalf("failed to start kbsearchd: %v", err)
	}
	e.daemon = cmd
	e.ServerURL = fmt.Sprintf("http://127.0.0.1:%d", port)

	if err := e.waitForServer(15 * time.Second); err != nil {
		e.T.Fatalf("kbsearchd not ready: %v", err)
	}
}

func (e *E2ETestEnv) waitForServer(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	for {
		resp, err := e.HTTPClient.Get(e.ServerURL + "/api/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Status int
	Data   json.RawMessage `json:"data"`
	Error  string          `json:"error,omitempty"`
	Code   string          `json:"code,omitempty"`
}

// Get performs a GET request
func (e *E2ETestEnv) Get(path string) (*APIResponse, error) {
	return e.doRequest(http.MethodGet, path, nil)
}

// Post performs a POST request
func (e *E2ETestEnv) Post(path string, body interface{}) (*APIResponse, error) {
	return e.doRequest(http.MethodPost, path, body)
}

func (e *E2ETestEnv) doRequest(method, path string, body interface{}) (*APIResponse, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, e.ServerURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	apiResp := &APIResponse{Status: resp.StatusCode}
	if err := json.Unmarshal(raw, apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode %q: %w", raw, err)
	}
	return apiResp, nil
}

func getFreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
