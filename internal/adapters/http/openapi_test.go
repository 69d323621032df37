package httpadapter

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kirillkom/glossary-rag-gateway/internal/config"
)

func TestValidationPassesUndocumentedRoutes(t *testing.T) {
	openAPI, err := loadOpenAPIRouter()
	if err != nil {
		t.Fatalf("load openapi router: %v", err)
	}
	reached := false
	handler := openAPIValidationMiddleware(openAPI, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		reached = true
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/healthz"},
		{http.MethodGet, "/metrics"},
		{http.MethodGet, "/openapi.yaml"},
		{http.MethodDelete, "/glossaries"},
	}
	for _, tc := range cases {
		reached = false
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, httptest.NewRequest(tc.method, tc.path, nil))
		if !reached || res.Code != http.StatusNoContent {
			t.Fatalf("%s %s: expected pass-through, got %d", tc.method, tc.path, res.Code)
		}
	}
}

func TestOperationalEndpointsServeThroughFullChain(t *testing.T) {
	handler := newTestHandler(config.Config{}, &glossaryServiceFake{}, &answerServiceFake{})
	for _, path := range []string{"/healthz", "/metrics", "/openapi.yaml"} {
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, path, nil))
		if res.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d (%s)", path, res.Code, res.Body.String())
		}
	}
}

func TestValidationStillRejectsDocumentedRoutes(t *testing.T) {
	handler := newTestHandler(config.Config{}, &glossaryServiceFake{}, &answerServiceFake{})
	res := postJSON(t, handler, "/glossaries", map[string]any{"description": "missing name"})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for schema violation, got %d", res.Code)
	}
}
