package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/autosql/autosql/internal/config"
)

func TestWriteJSONReportsEncodingFailure(t *testing.T) {
	rr := httptest.NewRecorder()
	rr.Header().Set("X-Trace-ID", "trace-1")
	writeJSON(rr, http.StatusOK, map[string]any{"value": math.NaN()})

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v body=%q", err, rr.Body.String())
	}
	if body["error_code"] != "RESPONSE_ENCODING_FAILED" || body["trace_id"] != "trace-1" {
		t.Fatalf("body = %v", body)
	}
}

func TestHealthEndpoint(t *testing.T) {
	cfg := loadTestConfig(t, nil)

	h := NewHandler(cfg, Dependencies{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestReadyEndpointReturns503WhenDependencyFails(t *testing.T) {
	cfg := loadTestConfig(t, nil)

	h := NewHandler(cfg, Dependencies{
		Readiness: func(rctx context.Context) error {
			return errors.New("dependency down")
		},
	})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/ready", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	cfg := loadTestConfig(t, nil)

	h := NewHandler(cfg, Dependencies{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestProtectedRouteRequiresSession(t *testing.T) {
	srv := newTestServer(t, &fakeTranslator{})

	rr := httptest.NewRecorder()
	srv.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/dataset", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/dataset", nil)
	req.Header.Set("Authorization", "Bearer not-a-session")
	rr = httptest.NewRecorder()
	srv.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestProtectedRouteWithoutSessionManager(t *testing.T) {
	cfg := loadTestConfig(t, nil)

	h := NewHandler(cfg, Dependencies{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/dataset", nil))
	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestCombineReadinessChecksStopsOnFirstFailure(t *testing.T) {
	order := make([]int, 0, 3)
	combined := CombineReadinessChecks(
		func(_ context.Context) error {
			order = append(order, 1)
			return nil
		},
		func(_ context.Context) error {
			order = append(order, 2)
			return errors.New("boom")
		},
		func(_ context.Context) error {
			order = append(order, 3)
			return nil
		},
	)

	err := combined(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("execution order = %#v", order)
	}
}

func TestObjectStoreCheckSkippedWhenArchiveDisabled(t *testing.T) {
	cfg := loadTestConfig(t, map[string]string{"AUTOSQL_OBJECTSTORE_ENDPOINT": ""})
	if err := CheckObjectStoreConfig(cfg)(context.Background()); err != nil {
		t.Fatalf("check error = %v", err)
	}

	cfg = loadTestConfig(t, map[string]string{
		"AUTOSQL_ARCHIVE_ENABLED":      "true",
		"AUTOSQL_OBJECTSTORE_ENDPOINT": "",
	})
	if err := CheckObjectStoreConfig(cfg)(context.Background()); err == nil {
		t.Fatal("expected error when archive is enabled without an endpoint")
	}
}

func TestUIHandlerServesNonAPIRoutes(t *testing.T) {
	cfg := loadTestConfig(t, nil)

	h := NewHandler(cfg, Dependencies{
		UI: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = io.WriteString(w, "<html>ok</html>")
		}),
	})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/workspace", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
}

func loadTestConfig(t *testing.T, overrides map[string]string) config.Config {
	t.Helper()
	values := map[string]string{"AUTOSQL_PROFILE": "test"}
	for key, value := range overrides {
		values[key] = value
	}
	cfg, err := config.Load("autosql-api", mapLookup(values))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	return cfg
}

func mapLookup(values map[string]string) config.LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
