package v1_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sitemedic/sitemedic/pkg/analyzer"
	"github.com/sitemedic/sitemedic/pkg/progress"
	"github.com/sitemedic/sitemedic/pkg/server/api"
	"github.com/sitemedic/sitemedic/pkg/server/httpx"
	"github.com/sitemedic/sitemedic/pkg/sigscan"
	"github.com/sitemedic/sitemedic/pkg/wp"
)

const evalSignatureYAML = `signatures:
  - id: php-eval-base64
    description: eval over base64-decoded payload
    severity: critical
    pattern: 'eval\s*\(\s*base64_decode\s*\('
`

func newTestDeps(t *testing.T) (*api.Deps, string) {
	t.Helper()
	workspace := t.TempDir()
	siteRoot := t.TempDir()

	store, err := progress.NewFileStore(filepath.Join(workspace, "progress"))
	require.NoError(t, err)

	sigPath := filepath.Join(workspace, "signatures.yaml")
	require.NoError(t, os.WriteFile(sigPath, []byte(evalSignatureYAML), 0o640))
	provider, err := sigscan.NewProvider(sigPath)
	require.NoError(t, err)

	deps := &api.Deps{
		Progress:    store,
		Signatures:  provider,
		SiteRoot:    siteRoot,
		ScanDepth:   sigscan.DefaultMaxDepth,
		TablePrefix: "wp_",
		Ready:       &atomic.Bool{},
	}
	return deps, siteRoot
}

func TestProgressEndpoint_MissingRecordIsPlain404(t *testing.T) {
	deps, _ := newTestDeps(t)
	mux := httpx.NewRouter(deps)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/progress/not-yet-started", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Empty(t, rr.Body.String(), "404 is the keep-polling signal, not an error payload")
}

func TestProgressEndpoint_ServesCurrentRecord(t *testing.T) {
	deps, _ := newTestDeps(t)
	require.NoError(t, deps.Progress.Write("job-1", progress.Running("Reinstalling plugins", 2, 5)))

	mux := httpx.NewRouter(deps)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/progress/job-1", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var rec progress.Record
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rec))
	require.Equal(t, progress.StatusRunning, rec.Status)
	require.Equal(t, 2, rec.Current)
	require.Equal(t, 5, rec.Total)
}

func TestProgressEndpoint_RejectsTraversalToken(t *testing.T) {
	deps, _ := newTestDeps(t)
	mux := httpx.NewRouter(deps)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/progress/..%2Fescape", nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHealthAndReadiness(t *testing.T) {
	deps, _ := newTestDeps(t)
	mux := httpx.NewRouter(deps)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code, "not ready until initialization completes")

	deps.Ready.Store(true)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestAnalyzeEndpoint_FailureWritesErrorProgress(t *testing.T) {
	deps, _ := newTestDeps(t)

	// A plugins path that is a regular file fails analysis up front.
	notADir := filepath.Join(t.TempDir(), "plugins")
	require.NoError(t, os.WriteFile(notADir, []byte("x"), 0o640))
	deps.Analyzer = analyzer.New(wp.NewLocalHost(notADir), nil, nil, deps.Progress, 101)

	mux := httpx.NewRouter(deps)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/analyze",
		strings.NewReader(`{"progress_file":"an-1"}`)))
	require.Equal(t, http.StatusConflict, rr.Code)

	rec, err := deps.Progress.Read("an-1")
	require.NoError(t, err, "a polling client must see the failure as a terminal record")
	require.Equal(t, progress.StatusError, rec.Status)
}

func TestScanFilesEndpoint_ReturnsMatchesAndTerminalProgress(t *testing.T) {
	deps, siteRoot := newTestDeps(t)
	contentDir := filepath.Join(siteRoot, "wp-content")
	require.NoError(t, os.MkdirAll(contentDir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(contentDir, "injected.php"),
		[]byte("<?php eval(base64_decode('aGk='));"), 0o640))

	mux := httpx.NewRouter(deps)
	body := `{"progress_file":"scan-1","path":"wp-content"}`
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/scan/files", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Success bool                  `json:"success"`
		Matches []sigscan.ThreatMatch `json:"matches"`
		Count   int                   `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.Equal(t, 1, resp.Count)
	require.Equal(t, "php-eval-base64", resp.Matches[0].SignatureID)

	rec, err := deps.Progress.Read("scan-1")
	require.NoError(t, err)
	require.Equal(t, progress.StatusComplete, rec.Status)
}

func TestScanFilesEndpoint_RejectsBadRequests(t *testing.T) {
	deps, _ := newTestDeps(t)
	mux := httpx.NewRouter(deps)

	for name, body := range map[string]string{
		"unknown field":   `{"path":"wp-content","bogus":true}`,
		"depth too large": `{"max_depth":99}`,
		"not json":        `{{{`,
	} {
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/scan/files", strings.NewReader(body)))
		require.Equal(t, http.StatusBadRequest, rr.Code, name)
	}
}

func TestScanFilesEndpoint_OutsideRootIs400WithFailedProgress(t *testing.T) {
	deps, _ := newTestDeps(t)
	mux := httpx.NewRouter(deps)

	body := `{"progress_file":"scan-2","path":"/etc"}`
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/scan/files", strings.NewReader(body)))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rec, err := deps.Progress.Read("scan-2")
	require.NoError(t, err)
	require.Equal(t, progress.StatusError, rec.Status)
}

func TestScanDatabaseEndpoint_UnavailableWithoutConnection(t *testing.T) {
	deps, _ := newTestDeps(t)
	mux := httpx.NewRouter(deps)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/scan/database", strings.NewReader(`{}`)))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
