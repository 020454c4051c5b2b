package v1

import (
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/sitemedic/sitemedic/pkg/progress"
	"github.com/sitemedic/sitemedic/pkg/server/api"
)

// phaseGuard converts a panic inside a phase handler into a terminal error
// progress record plus an error response, so the polling client never stalls
// on a silently dead phase.
func phaseGuard(deps *api.Deps, token string, w http.ResponseWriter) func() {
	return func() {
		rec := recover()
		if rec == nil {
			return
		}
		msg := fmt.Sprintf("internal error: %v", rec)
		log.Error().Str("component", "http").Str("token", token).Interface("panic", rec).
			Msg("Panic recovered in phase handler")

		if token != "" && deps.Progress != nil {
			_ = deps.Progress.Write(token, progress.Failed("Operation failed", msg))
		}
		api.WriteError(w, http.StatusInternalServerError, msg)
	}
}

// failPhase writes the terminal error record for a phase that returned an
// error, so a client that only polls the progress endpoint never stalls on a
// failed request it did not see the response of.
func failPhase(deps *api.Deps, token, message string, err error) {
	if token == "" || deps.Progress == nil {
		return
	}
	_ = deps.Progress.Write(token, progress.Failed(message, err.Error()))
}
