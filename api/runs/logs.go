package runs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/kilianp07/foundry/api"
	"github.com/kilianp07/foundry/core/runlog"
)

// NewLogHandler returns an HTTP handler exposing the run log via GET /api/runs.
// Supported filters: id, kind, scope, start and end (RFC 3339) and limit.
// Malformed timestamps and limits are rejected.
func NewLogHandler(store runlog.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		v := r.URL.Query()
		q := runlog.Query{
			ID:    v.Get("id"),
			Kind:  runlog.Kind(v.Get("kind")),
			Scope: v.Get("scope"),
		}
		for name, dst := range map[string]*time.Time{"start": &q.Start, "end": &q.End} {
			if s := v.Get(name); s != "" {
				t, err := time.Parse(time.RFC3339, s)
				if err != nil {
					api.Error(w, http.StatusBadRequest, "invalid "+name+": "+err.Error())
					return
				}
				*dst = t
			}
		}
		if s := v.Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 0 {
				api.Error(w, http.StatusBadRequest, "invalid limit")
				return
			}
			q.Limit = n
		}
		records, err := store.Query(r.Context(), q)
		if err != nil {
			api.Error(w, http.StatusInternalServerError, err.Error())
			return
		}
		if records == nil {
			records = []runlog.Record{}
		}
		api.WriteJSON(w, http.StatusOK, records)
	})
}
