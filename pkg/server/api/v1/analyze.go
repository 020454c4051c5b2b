package v1

import (
	"net/http"

	"github.com/sitemedic/sitemedic/pkg/analyzer"
	"github.com/sitemedic/sitemedic/pkg/server/api"
)

// AnalyzeRequest triggers a full plugin classification pass.
type AnalyzeRequest struct {
	Token string `json:"progress_file" validate:"required"`
}

// AnalyzeResponse wraps the classification result in the success envelope.
type AnalyzeResponse struct {
	Success bool `json:"success"`
	*analyzer.Result
}

// AnalyzeHandler serves POST /api/v1/analyze.
func AnalyzeHandler(deps *api.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AnalyzeRequest
		if err := decodeAndValidate(r, &req); err != nil {
			api.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}

		defer phaseGuard(deps, req.Token, w)()

		result, err := deps.Analyzer.Analyze(r.Context(), req.Token)
		if err != nil {
			failPhase(deps, req.Token, "Analysis failed", err)
			api.WriteError(w, httpStatus(err), err.Error())
			return
		}
		api.WriteJSON(w, http.StatusOK, AnalyzeResponse{Success: true, Result: result})
	}
}
