// Package httpx provides the HTTP router and middleware chain.
package httpx

import (
	"net/http"

	"github.com/sitemedic/sitemedic/pkg/server/api"
	v1 "github.com/sitemedic/sitemedic/pkg/server/api/v1"
)

// NewRouter mounts all endpoints using Go 1.22 enhanced pattern matching.
// Health endpoints are always enabled for liveness/readiness checks.
func NewRouter(deps *api.Deps) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", v1.HealthzHandler)
	mux.HandleFunc("GET /readyz", v1.ReadyzHandler(deps.Ready))

	mux.HandleFunc("GET /api/v1/progress/{token}", v1.ProgressHandler(deps))
	mux.HandleFunc("POST /api/v1/analyze", v1.AnalyzeHandler(deps))
	mux.HandleFunc("POST /api/v1/plugins/reinstall", v1.ReinstallHandler(deps))
	mux.HandleFunc("POST /api/v1/core/reinstall", v1.CoreReinstallHandler(deps))
	mux.HandleFunc("POST /api/v1/scan/database", v1.ScanDatabaseHandler(deps))
	mux.HandleFunc("POST /api/v1/scan/files", v1.ScanFilesHandler(deps))

	return mux
}
