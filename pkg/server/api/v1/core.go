package v1

import (
	"net/http"

	"github.com/sitemedic/sitemedic/pkg/corefiles"
	"github.com/sitemedic/sitemedic/pkg/server/api"
)

// CoreReinstallRequest triggers a full core file replacement.
type CoreReinstallRequest struct {
	Token         string   `json:"progress_file" validate:"required"`
	Version       string   `json:"version,omitempty"`
	PreservePaths []string `json:"preserve_paths,omitempty"`
	CreateBackup  bool     `json:"create_backup,omitempty"`
}

// CoreReinstallResponse wraps the replacement result.
type CoreReinstallResponse struct {
	Success bool `json:"success"`
	*corefiles.Result
}

// CoreReinstallHandler serves POST /api/v1/core/reinstall.
func CoreReinstallHandler(deps *api.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CoreReinstallRequest
		if err := decodeAndValidate(r, &req); err != nil {
			api.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}

		defer phaseGuard(deps, req.Token, w)()

		result, err := deps.Replacer.Reinstall(r.Context(), req.Version,
			req.PreservePaths, req.CreateBackup, req.Token)
		if err != nil {
			api.WriteError(w, httpStatus(err), err.Error())
			return
		}
		api.WriteJSON(w, http.StatusOK, CoreReinstallResponse{Success: true, Result: result})
	}
}
