package dispatch

import (
	"encoding/json"
	"net/http"

	"github.com/kilianp07/foundry/api"
	coredispatch "github.com/kilianp07/foundry/core/dispatch"
	"github.com/kilianp07/foundry/pkg/export"
)

// NewHandler serves dispatch runs:
//
//	POST /api/dispatch                 schedule the Input in the body
//	GET  /api/dispatch/{process}/last  latest run of a process; ?format=csv for queues
func NewHandler(m *coredispatch.Manager) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/dispatch", func(w http.ResponseWriter, r *http.Request) {
		var in coredispatch.Input
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			api.Error(w, http.StatusBadRequest, "invalid body: "+err.Error())
			return
		}
		for _, l := range in.Lines {
			if err := l.Validate(); err != nil {
				api.Error(w, http.StatusBadRequest, err.Error())
				return
			}
		}
		run, err := m.Dispatch(r.Context(), in)
		if err != nil {
			api.Error(w, http.StatusInternalServerError, err.Error())
			return
		}
		api.WriteJSON(w, http.StatusOK, run)
	})
	mux.HandleFunc("GET /api/dispatch/{process}/last", func(w http.ResponseWriter, r *http.Request) {
		run, ok := m.Last(r.PathValue("process"))
		if !ok {
			api.Error(w, http.StatusNotFound, "no run for process")
			return
		}
		if r.URL.Query().Get("format") == "csv" {
			w.Header().Set("Content-Type", "text/csv")
			if err := export.WriteQueuesCSV(w, run.Result.Queues); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
			return
		}
		api.WriteJSON(w, http.StatusOK, run)
	})
	return mux
}
