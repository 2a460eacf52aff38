package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hazz-dev/statusrelay/internal/fetcher"
	"github.com/hazz-dev/statusrelay/internal/registry"
	"github.com/hazz-dev/statusrelay/internal/server"
	"github.com/hazz-dev/statusrelay/internal/storage"
)

// mockStore implements server.InvocationStore for testing.
type mockStore struct {
	invocations []storage.Invocation
	total       int
	counts      map[string]int
	err         error

	gotLimit, gotOffset int
}

func (m *mockStore) RecentInvocations(_ context.Context, limit, offset int) ([]storage.Invocation, int, error) {
	m.gotLimit, m.gotOffset = limit, offset
	if m.err != nil {
		return nil, 0, m.err
	}
	return m.invocations, m.total, nil
}

func (m *mockStore) StatusCounts(_ context.Context) (map[string]int, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.counts, nil
}

// stubFetcher returns canned outcomes by endpoint name.
type stubFetcher struct {
	outcomes map[string]fetcher.Outcome
}

func (s *stubFetcher) Fetch(_ context.Context, ep registry.Endpoint) fetcher.Outcome {
	o := s.outcomes[ep.Name]
	o.Endpoint = ep
	return o
}

func makeRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.New([]registry.Endpoint{
		{Name: "prod", URL: "https://prod.example.com/health"},
		{Name: "services", URL: "https://services.example.com/health"},
	})
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

func makeFetcher(t *testing.T) *stubFetcher {
	t.Helper()
	rep, err := fetcher.ParseReport([]byte(`{"services":{"db":"ok"},"diskspace":"40%"}`))
	if err != nil {
		t.Fatal(err)
	}
	return &stubFetcher{outcomes: map[string]fetcher.Outcome{
		"prod":     {Report: rep, Duration: 12 * time.Millisecond},
		"services": {Kind: fetcher.KindTimeout, Err: errors.New("dial tcp 10.0.0.1:443: i/o timeout")},
	}}
}

func doRequest(t *testing.T, router http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decoding JSON response: %v", err)
	}
}

func TestHealth(t *testing.T) {
	s := server.New(makeRegistry(t), makeFetcher(t))
	w := doRequest(t, s.Router(), "GET", "/api/health")

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	var resp map[string]string
	decodeJSON(t, w, &resp)
	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
}

func TestListEndpoints(t *testing.T) {
	s := server.New(makeRegistry(t), makeFetcher(t))
	w := doRequest(t, s.Router(), "GET", "/api/endpoints")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "example.com") {
		t.Errorf("endpoint URLs must not be exposed: %s", w.Body.String())
	}

	var resp struct {
		Data []string `json:"data"`
	}
	decodeJSON(t, w, &resp)
	if strings.Join(resp.Data, ",") != "prod,services" {
		t.Errorf("unexpected endpoints %v", resp.Data)
	}
}

func TestReport_All(t *testing.T) {
	s := server.New(makeRegistry(t), makeFetcher(t))
	w := doRequest(t, s.Router(), "GET", "/api/report")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "i/o timeout") {
		t.Errorf("error detail leaked: %s", w.Body.String())
	}

	var resp struct {
		Data struct {
			Target   string `json:"target"`
			Outcomes []struct {
				Endpoint string `json:"endpoint"`
				Outcome  string `json:"outcome"`
				Report   *struct {
					Services  map[string]string `json:"services"`
					Diskspace string            `json:"diskspace"`
				} `json:"report"`
			} `json:"outcomes"`
		} `json:"data"`
	}
	decodeJSON(t, w, &resp)

	outs := resp.Data.Outcomes
	if len(outs) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outs))
	}
	if outs[0].Endpoint != "prod" || outs[0].Outcome != "ok" {
		t.Errorf("unexpected first outcome %+v", outs[0])
	}
	if outs[0].Report == nil || outs[0].Report.Services["db"] != "ok" || outs[0].Report.Diskspace != "40%" {
		t.Errorf("unexpected prod report %+v", outs[0].Report)
	}
	if outs[1].Endpoint != "services" || outs[1].Outcome != "timeout" || outs[1].Report != nil {
		t.Errorf("unexpected second outcome %+v", outs[1])
	}
}

func TestReport_SingleTarget(t *testing.T) {
	s := server.New(makeRegistry(t), makeFetcher(t))
	w := doRequest(t, s.Router(), "GET", "/api/report?target=services")

	var resp struct {
		Data struct {
			Target   string `json:"target"`
			Outcomes []struct {
				Endpoint string `json:"endpoint"`
			} `json:"outcomes"`
		} `json:"data"`
	}
	decodeJSON(t, w, &resp)
	if resp.Data.Target != "services" || len(resp.Data.Outcomes) != 1 || resp.Data.Outcomes[0].Endpoint != "services" {
		t.Errorf("unexpected response %+v", resp.Data)
	}
}

func TestReport_UnknownTarget(t *testing.T) {
	s := server.New(makeRegistry(t), makeFetcher(t))
	w := doRequest(t, s.Router(), "GET", "/api/report?target=staging")

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
	var resp struct {
		Error string `json:"error"`
	}
	decodeJSON(t, w, &resp)
	if !strings.Contains(resp.Error, "staging") || !strings.Contains(resp.Error, "prod, services") {
		t.Errorf("unexpected error %q", resp.Error)
	}
}

func TestListInvocations(t *testing.T) {
	store := &mockStore{
		invocations: []storage.Invocation{
			{ID: 2, Command: "health", Target: "prod", Status: "replied", HandledAt: time.Now().UTC()},
		},
		total: 7,
	}
	s := server.New(makeRegistry(t), makeFetcher(t), server.WithStore(store))
	w := doRequest(t, s.Router(), "GET", "/api/invocations?limit=5000&offset=3")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if store.gotLimit != 1000 || store.gotOffset != 3 {
		t.Errorf("expected limit 1000 offset 3, got %d %d", store.gotLimit, store.gotOffset)
	}

	var resp struct {
		Data struct {
			Invocations []storage.Invocation `json:"invocations"`
			Total       int                  `json:"total"`
		} `json:"data"`
	}
	decodeJSON(t, w, &resp)
	if resp.Data.Total != 7 || len(resp.Data.Invocations) != 1 || resp.Data.Invocations[0].Target != "prod" {
		t.Errorf("unexpected response %+v", resp.Data)
	}
}

func TestListInvocations_DefaultLimit(t *testing.T) {
	store := &mockStore{invocations: []storage.Invocation{}}
	s := server.New(makeRegistry(t), makeFetcher(t), server.WithStore(store))
	doRequest(t, s.Router(), "GET", "/api/invocations")

	if store.gotLimit != 50 || store.gotOffset != 0 {
		t.Errorf("expected limit 50 offset 0, got %d %d", store.gotLimit, store.gotOffset)
	}
}

func TestListInvocations_BadParams(t *testing.T) {
	s := server.New(makeRegistry(t), makeFetcher(t), server.WithStore(&mockStore{}))
	for _, path := range []string{
		"/api/invocations?limit=abc",
		"/api/invocations?limit=-1",
		"/api/invocations?offset=x",
	} {
		w := doRequest(t, s.Router(), "GET", path)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", path, w.Code)
		}
	}
}

func TestListInvocations_StoreError(t *testing.T) {
	s := server.New(makeRegistry(t), makeFetcher(t), server.WithStore(&mockStore{err: errors.New("disk I/O error")}))
	w := doRequest(t, s.Router(), "GET", "/api/invocations")

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}

func TestInvocationStats(t *testing.T) {
	store := &mockStore{counts: map[string]int{"replied": 4, "unknown_target": 1}}
	s := server.New(makeRegistry(t), makeFetcher(t), server.WithStore(store))
	w := doRequest(t, s.Router(), "GET", "/api/invocations/stats")

	var resp struct {
		Data map[string]int `json:"data"`
	}
	decodeJSON(t, w, &resp)
	if resp.Data["replied"] != 4 || resp.Data["unknown_target"] != 1 {
		t.Errorf("unexpected counts %v", resp.Data)
	}
}

func TestInvocations_DisabledWithoutStore(t *testing.T) {
	s := server.New(makeRegistry(t), makeFetcher(t))
	w := doRequest(t, s.Router(), "GET", "/api/invocations")

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 without a store, got %d", w.Code)
	}
}

func TestMetrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("statusrelay_fetches_total 1\n"))
	})
	s := server.New(makeRegistry(t), makeFetcher(t), server.WithMetrics(metrics))
	w := doRequest(t, s.Router(), "GET", "/metrics")

	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "statusrelay_fetches_total") {
		t.Errorf("unexpected metrics response %d %q", w.Code, w.Body.String())
	}

	s = server.New(makeRegistry(t), makeFetcher(t))
	if w := doRequest(t, s.Router(), "GET", "/metrics"); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 without metrics handler, got %d", w.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	s := server.New(makeRegistry(t), makeFetcher(t))
	w := doRequest(t, s.Router(), "GET", "/api/unknown")

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}
