package plans

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/kilianp07/foundry/api"
	"github.com/kilianp07/foundry/core/planner"
	"github.com/kilianp07/foundry/core/snapshot"
)

// Runner is the part of planner.Runner the handler drives.
type Runner interface {
	Submit(scenario string) (planner.RunStatus, error)
	RunSync(ctx context.Context, scenario string) (planner.RunStatus, error)
	Status(id string) (planner.RunStatus, bool)
}

var _ Runner = (*planner.Runner)(nil)

// NewHandler serves planner runs:
//
//	POST /api/plans?scenario=<name>[&wait=true]  submit a run (202, or the final status when waiting)
//	GET  /api/plans/{id}                          run status and schedule
func NewHandler(runner Runner) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/plans", func(w http.ResponseWriter, r *http.Request) {
		scenario := strings.TrimSpace(r.URL.Query().Get("scenario"))
		if scenario == "" {
			api.Error(w, http.StatusBadRequest, "scenario is required")
			return
		}
		if r.URL.Query().Get("wait") == "true" {
			st, err := runner.RunSync(r.Context(), scenario)
			switch {
			case err == nil:
				api.WriteJSON(w, http.StatusOK, st)
			case st.ID == "":
				api.Error(w, statusFor(err), err.Error())
			default:
				api.WriteJSON(w, statusFor(err), st)
			}
			return
		}
		st, err := runner.Submit(scenario)
		if err != nil {
			api.Error(w, statusFor(err), err.Error())
			return
		}
		w.Header().Set("Location", "/api/plans/"+st.ID)
		api.WriteJSON(w, http.StatusAccepted, st)
	})
	mux.HandleFunc("GET /api/plans/{id}", func(w http.ResponseWriter, r *http.Request) {
		st, ok := runner.Status(r.PathValue("id"))
		if !ok {
			api.Error(w, http.StatusNotFound, "unknown run")
			return
		}
		api.WriteJSON(w, http.StatusOK, st)
	})
	return mux
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, planner.ErrScenarioBusy):
		return http.StatusConflict
	case errors.Is(err, planner.ErrQueueFull), errors.Is(err, planner.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, snapshot.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, planner.ErrMissingResources), errors.Is(err, planner.ErrInvalidResources),
		errors.Is(err, planner.ErrInvalidCalendar):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
