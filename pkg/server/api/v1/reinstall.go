package v1

import (
	"net/http"

	"github.com/sitemedic/sitemedic/pkg/reinstall"
	"github.com/sitemedic/sitemedic/pkg/server/api"
)

// ReinstallResponse is the per-batch success envelope. DiskSpaceWarning,
// batch_info, results, and verification come straight from the orchestrator.
type ReinstallResponse struct {
	Success bool `json:"success"`
	*reinstall.Response
}

// ReinstallHandler serves POST /api/v1/plugins/reinstall, one bounded batch
// per request. The client keeps re-invoking with next_batch_start until
// has_more_batches is false.
func ReinstallHandler(deps *api.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req reinstall.Request
		if err := decodeAndValidate(r, &req); err != nil {
			api.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}

		defer phaseGuard(deps, req.Token, w)()

		resp, err := deps.Orchestrator.RunBatch(r.Context(), req)
		if err != nil {
			api.WriteError(w, httpStatus(err), err.Error())
			return
		}
		api.WriteJSON(w, http.StatusOK, ReinstallResponse{Success: true, Response: resp})
	}
}
