package pins

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/kilianp07/foundry/api"
	"github.com/kilianp07/foundry/core/model"
	corepins "github.com/kilianp07/foundry/core/pins"
)

// Request is the body of every pin mutation. Fields beyond Key depend on
// the action.
type Request struct {
	Key      model.PinKey `json:"key"`
	LineID   string       `json:"line_id,omitempty"`
	Quantity int          `json:"quantity,omitempty"`
	SplitID  int          `json:"split_id,omitempty"`
	Total    int          `json:"total,omitempty"`
	Lots     []string     `json:"lots,omitempty"`
	// ExpectedVersion, when set, rejects the mutation with 409 unless the
	// key's highest split version still matches.
	ExpectedVersion *int64 `json:"expected_version,omitempty"`
}

// NewHandler exposes the pin registry:
//
//	GET    /api/pins?process=   list splits
//	GET    /api/pins?process=&order_id=&position=[&is_test=]   splits and version of one key
//	POST   /api/pins            mark {key, line_id, quantity}
//	DELETE /api/pins            unmark {key}
//	POST   /api/pins/move       {key, split_id, line_id}
//	POST   /api/pins/split      {key, total}
//	POST   /api/pins/lots       {key, lots}
func NewHandler(reg corepins.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/pins", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Has("order_id") || q.Has("position") {
			getKey(w, r, reg)
			return
		}
		splits, err := reg.List(r.Context(), q.Get("process"))
		if err != nil {
			api.Error(w, statusFor(err), err.Error())
			return
		}
		if splits == nil {
			splits = []model.PinnedSplit{}
		}
		api.WriteJSON(w, http.StatusOK, splits)
	})
	mux.HandleFunc("POST /api/pins", mutate(func(r *http.Request, req Request) (any, error) {
		return reg.Mark(r.Context(), req.Key, req.LineID, req.Quantity)
	}))
	mux.HandleFunc("DELETE /api/pins", mutate(func(r *http.Request, req Request) (any, error) {
		return map[string]string{"status": "released"}, reg.Unmark(r.Context(), req.Key)
	}))
	mux.HandleFunc("POST /api/pins/move", mutate(func(r *http.Request, req Request) (any, error) {
		return reg.Move(r.Context(), req.Key, req.SplitID, req.LineID)
	}))
	mux.HandleFunc("POST /api/pins/split", mutate(func(r *http.Request, req Request) (any, error) {
		return reg.CreateBalancedSplit(r.Context(), req.Key, req.Total)
	}))
	mux.HandleFunc("POST /api/pins/lots", mutate(func(r *http.Request, req Request) (any, error) {
		return reg.SyncLots(r.Context(), req.Key, req.Lots)
	}))
	return mux
}

// KeyView is one key's splits with the version to send back as
// expected_version.
type KeyView struct {
	Key     model.PinKey        `json:"key"`
	Version int64               `json:"version"`
	Splits  []model.PinnedSplit `json:"splits"`
}

func getKey(w http.ResponseWriter, r *http.Request, reg corepins.Registry) {
	q := r.URL.Query()
	key := model.PinKey{Process: q.Get("process"), OrderID: q.Get("order_id"), Position: q.Get("position")}
	if raw := q.Get("is_test"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			api.Error(w, http.StatusBadRequest, "invalid is_test: "+err.Error())
			return
		}
		key.IsTest = v
	}
	if err := key.Validate(); err != nil {
		api.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	splits, err := reg.Get(r.Context(), key)
	if err != nil {
		api.Error(w, statusFor(err), err.Error())
		return
	}
	api.WriteJSON(w, http.StatusOK, KeyView{Key: key, Version: corepins.Version(splits), Splits: splits})
}

func mutate(fn func(*http.Request, Request) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			api.Error(w, http.StatusBadRequest, "invalid body: "+err.Error())
			return
		}
		if err := req.Key.Validate(); err != nil {
			api.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		if req.ExpectedVersion != nil {
			r = r.WithContext(corepins.WithExpectedVersion(r.Context(), *req.ExpectedVersion))
		}
		out, err := fn(r, req)
		if err != nil {
			api.Error(w, statusFor(err), err.Error())
			return
		}
		api.WriteJSON(w, http.StatusOK, out)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, corepins.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, corepins.ErrConflict), errors.Is(err, corepins.ErrAlreadyPinned),
		errors.Is(err, corepins.ErrAlreadySplit):
		return http.StatusConflict
	case errors.Is(err, corepins.ErrInvalidQuantity), errors.Is(err, corepins.ErrLineRequired):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
