package v1

import (
	"net/http"

	"github.com/sitemedic/sitemedic/pkg/server/api"
	"github.com/sitemedic/sitemedic/pkg/storage"
)

// ProgressHandler serves GET /api/v1/progress/{token}. A missing record is
// the normal "phase hasn't started writing yet" state and maps to a plain
// 404 the polling client treats as "keep polling", not an error.
func ProgressHandler(deps *api.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.PathValue("token")
		if err := storage.ValidateToken(token); err != nil {
			api.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}

		rec, err := deps.Progress.Read(token)
		if err != nil {
			if storage.IsNotFound(err) {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			api.WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
		api.WriteJSON(w, http.StatusOK, rec)
	}
}
