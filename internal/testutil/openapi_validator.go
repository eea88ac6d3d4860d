package testutil

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"
)

// IncidentServiceSpecPath returns the absolute path of the incident service contract.
func IncidentServiceSpecPath() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "api", "openapi", "incident-service.yaml")
}

// OpenAPIValidator validates HTTP requests against an OpenAPI document.
type OpenAPIValidator struct {
	doc    *openapi3.T
	router routers.Router
}

// NewOpenAPIValidator creates a new OpenAPI validator from a document on disk.
func NewOpenAPIValidator(t testing.TB, docPath string) *OpenAPIValidator {
	t.Helper()

	v, err := LoadOpenAPIValidator(docPath)
	if err != nil {
		t.Fatalf("load OpenAPI validator: %v", err)
	}
	return v
}

// LoadOpenAPIValidator loads and validates an OpenAPI document, returning a validator.
// Use this in TestMain where *testing.T is not available.
func LoadOpenAPIValidator(docPath string) (*OpenAPIValidator, error) {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = true

	doc, err := loader.LoadFromFile(docPath)
	if err != nil {
		return nil, fmt.Errorf("load OpenAPI document from %s: %w", docPath, err)
	}

	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("validate OpenAPI document: %w", err)
	}

	router, err := legacy.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("create OpenAPI router: %w", err)
	}

	return &OpenAPIValidator{
		doc:    doc,
		router: router,
	}, nil
}

// ValidateRequest reports a test error when req does not match the contract.
// The request body is restored after validation.
func (v *OpenAPIValidator) ValidateRequest(t testing.TB, req *http.Request) {
	t.Helper()

	route, pathParams, err := v.router.FindRoute(req)
	if err != nil {
		t.Errorf("OpenAPI: no route found for %s %s: %v", req.Method, req.URL.Path, err)
		return
	}

	input := &openapi3filter.RequestValidationInput{
		Request:    req,
		PathParams: pathParams,
		Route:      route,
		Options: &openapi3filter.Options{
			MultiError: true,
			// Authorization is asserted by the server itself so that missing
			// credentials surface as 401 responses.
			AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
		},
	}

	if err := openapi3filter.ValidateRequest(req.Context(), input); err != nil {
		t.Errorf("OpenAPI request validation failed for %s %s: %v", req.Method, req.URL.Path, err)
	}
}

// Middleware validates every request passing through it.
func (v *OpenAPIValidator) Middleware(t testing.TB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			v.ValidateRequest(t, r)
			next.ServeHTTP(w, r)
		})
	}
}
