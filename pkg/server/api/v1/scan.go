package v1

import (
	"net/http"

	"github.com/sitemedic/sitemedic/pkg/progress"
	"github.com/sitemedic/sitemedic/pkg/server/api"
	"github.com/sitemedic/sitemedic/pkg/sigscan"
)

// ScanRequest triggers a signature scan. Path and MaxDepth apply only to
// file scans; an empty path selects the default pair (configuration file
// plus content tree).
type ScanRequest struct {
	Token    string `json:"progress_file,omitempty"`
	Path     string `json:"path,omitempty"`
	MaxDepth int    `json:"max_depth,omitempty" validate:"gte=0,lte=16"`
}

// ScanResponse carries all matches from one scan.
type ScanResponse struct {
	Success bool                  `json:"success"`
	Matches []sigscan.ThreatMatch `json:"matches"`
	Count   int                   `json:"count"`
}

// scanProgress adapts the scanner's bounded callback onto the progress store.
func scanProgress(deps *api.Deps, token string) sigscan.ProgressFunc {
	if token == "" {
		return nil
	}
	return func(done, total int, message string) {
		_ = deps.Progress.Write(token, progress.Running(message, done, total))
	}
}

// ScanDatabaseHandler serves POST /api/v1/scan/database.
func ScanDatabaseHandler(deps *api.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ScanRequest
		if err := decodeAndValidate(r, &req); err != nil {
			api.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		if deps.DB == nil {
			api.WriteError(w, http.StatusServiceUnavailable, "no database connection configured")
			return
		}

		defer phaseGuard(deps, req.Token, w)()

		scanner := sigscan.NewDBScanner(deps.DB, deps.Signatures.Set(), deps.TablePrefix).
			WithProgress(scanProgress(deps, req.Token))
		matches, err := scanner.Scan(r.Context())
		if err != nil {
			finishScan(deps, req.Token, err)
			api.WriteError(w, httpStatus(err), err.Error())
			return
		}

		finishScan(deps, req.Token, nil)
		api.WriteJSON(w, http.StatusOK, ScanResponse{Success: true, Matches: matches, Count: len(matches)})
	}
}

// ScanFilesHandler serves POST /api/v1/scan/files.
func ScanFilesHandler(deps *api.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ScanRequest
		if err := decodeAndValidate(r, &req); err != nil {
			api.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}

		defer phaseGuard(deps, req.Token, w)()

		depth := req.MaxDepth
		if depth == 0 {
			depth = deps.ScanDepth
		}
		scanner := sigscan.NewFileScanner(deps.Signatures.Set(), deps.SiteRoot, depth).
			WithProgress(scanProgress(deps, req.Token))

		var matches []sigscan.ThreatMatch
		var err error
		if req.Path == "" {
			matches, err = scanner.ScanDefault(r.Context())
		} else {
			matches, err = scanner.ScanPath(r.Context(), req.Path)
		}
		if err != nil {
			finishScan(deps, req.Token, err)
			api.WriteError(w, httpStatus(err), err.Error())
			return
		}

		finishScan(deps, req.Token, nil)
		api.WriteJSON(w, http.StatusOK, ScanResponse{Success: true, Matches: matches, Count: len(matches)})
	}
}

// finishScan writes the terminal progress record for a scan phase.
func finishScan(deps *api.Deps, token string, err error) {
	if token == "" {
		return
	}
	if err != nil {
		_ = deps.Progress.Write(token, progress.Failed("Scan failed", err.Error()))
		return
	}
	_ = deps.Progress.Write(token, progress.Complete("Scan complete"))
}
