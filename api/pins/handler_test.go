package pins

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kilianp07/foundry/core/model"
	corepins "github.com/kilianp07/foundry/core/pins"
)

func newHandler(t *testing.T) http.Handler {
	t.Helper()
	svc, err := corepins.NewService(corepins.NewMemoryStore(), nil, nil, nil)
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	return NewHandler(svc)
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, path, &buf))
	return rr
}

func TestPinLifecycle(t *testing.T) {
	h := newHandler(t)
	key := model.PinKey{Process: "machining", OrderID: "1001", Position: "10"}

	steps := []struct {
		name   string
		method string
		path   string
		body   Request
		code   int
	}{
		{"mark", http.MethodPost, "/api/pins", Request{Key: key, LineID: "L1"}, http.StatusOK},
		{"mark twice", http.MethodPost, "/api/pins", Request{Key: key, LineID: "L2"}, http.StatusConflict},
		{"split", http.MethodPost, "/api/pins/split", Request{Key: key, Total: 9}, http.StatusOK},
		{"split again", http.MethodPost, "/api/pins/split", Request{Key: key, Total: 9}, http.StatusConflict},
		{"lots", http.MethodPost, "/api/pins/lots", Request{Key: key, Lots: []string{"1", "2"}}, http.StatusOK},
		{"move", http.MethodPost, "/api/pins/move", Request{Key: key, SplitID: 2, LineID: "L3"}, http.StatusOK},
		{"move unknown split", http.MethodPost, "/api/pins/move", Request{Key: key, SplitID: 7, LineID: "L3"}, http.StatusNotFound},
	}
	for _, s := range steps {
		rr := do(t, h, s.method, s.path, s.body)
		if rr.Code != s.code {
			t.Fatalf("%s: status %d want %d: %s", s.name, rr.Code, s.code, rr.Body.String())
		}
	}

	rr := do(t, h, http.MethodGet, "/api/pins?process=machining", nil)
	var splits []model.PinnedSplit
	if err := json.Unmarshal(rr.Body.Bytes(), &splits); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(splits) != 2 || splits[0].Quantity != 5 || !splits[1].Auto() || splits[1].LineID != "L3" {
		t.Fatalf("unexpected splits %+v", splits)
	}
	if len(splits[0].Lots) != 1 || len(splits[1].Lots) != 1 {
		t.Fatalf("lots not shared: %+v", splits)
	}

	if rr := do(t, h, http.MethodDelete, "/api/pins", Request{Key: key}); rr.Code != http.StatusOK {
		t.Fatalf("unmark: %d", rr.Code)
	}
	if rr := do(t, h, http.MethodDelete, "/api/pins", Request{Key: key}); rr.Code != http.StatusNotFound {
		t.Fatalf("second unmark: %d", rr.Code)
	}
	rr = do(t, h, http.MethodGet, "/api/pins", nil)
	if rr.Body.String() != "[]\n" {
		t.Fatalf("expected empty list, got %q", rr.Body.String())
	}
}

func TestPinBadRequests(t *testing.T) {
	h := newHandler(t)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/pins", bytes.NewBufferString("{")))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("malformed body: %d", rr.Code)
	}
	if rr := do(t, h, http.MethodPost, "/api/pins", Request{Key: model.PinKey{Process: "machining"}}); rr.Code != http.StatusBadRequest {
		t.Fatalf("incomplete key: %d", rr.Code)
	}
	key := model.PinKey{Process: "machining", OrderID: "1", Position: "10"}
	if rr := do(t, h, http.MethodPost, "/api/pins", Request{Key: key, LineID: "L1", Quantity: -1}); rr.Code != http.StatusBadRequest {
		t.Fatalf("negative quantity: %d", rr.Code)
	}
}

func TestPinExpectedVersion(t *testing.T) {
	h := newHandler(t)
	key := model.PinKey{Process: "machining", OrderID: "1001", Position: "10", IsTest: true}
	path := "/api/pins?process=machining&order_id=1001&position=10&is_test=true"

	if rr := do(t, h, http.MethodGet, path, nil); rr.Code != http.StatusNotFound {
		t.Fatalf("unpinned key: %d", rr.Code)
	}
	if rr := do(t, h, http.MethodPost, "/api/pins", Request{Key: key, LineID: "L1"}); rr.Code != http.StatusOK {
		t.Fatalf("mark: %d %s", rr.Code, rr.Body.String())
	}

	rr := do(t, h, http.MethodGet, path, nil)
	var view KeyView
	if err := json.Unmarshal(rr.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.Key != key || len(view.Splits) != 1 || view.Version == 0 {
		t.Fatalf("unexpected view %+v", view)
	}

	seen := view.Version
	move := Request{Key: key, SplitID: 1, LineID: "L2", ExpectedVersion: &seen}
	if rr := do(t, h, http.MethodPost, "/api/pins/move", move); rr.Code != http.StatusOK {
		t.Fatalf("move at seen version: %d %s", rr.Code, rr.Body.String())
	}
	move.LineID = "L3"
	if rr := do(t, h, http.MethodPost, "/api/pins/move", move); rr.Code != http.StatusConflict {
		t.Fatalf("stale move: %d %s", rr.Code, rr.Body.String())
	}

	rr = do(t, h, http.MethodGet, path, nil)
	if err := json.Unmarshal(rr.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.Splits[0].LineID != "L2" || view.Version != seen+1 {
		t.Fatalf("stale move applied: %+v", view)
	}

	if rr := do(t, h, http.MethodGet, "/api/pins?process=machining&order_id=1001", nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("partial key: %d", rr.Code)
	}
	if rr := do(t, h, http.MethodGet, path[:len(path)-4]+"maybe", nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad is_test: %d", rr.Code)
	}
}
