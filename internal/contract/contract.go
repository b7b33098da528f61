// Package contract embeds the OpenAPI description of each registry profile
// and checks live responses against it.
package contract

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
)

//go:embed openapi/*.yaml
var documents embed.FS

// Finding codes.
const (
	CodeUndocumentedRoute = "UNDOCUMENTED_ROUTE"
	CodeResponseMismatch  = "RESPONSE_MISMATCH"
)

// Finding is one response that does not match the contract.
type Finding struct {
	Code    string `json:"code"`
	Method  string `json:"method"`
	Path    string `json:"path"`
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func (f Finding) String() string {
	return fmt.Sprintf("%s %s %s (%d): %s", f.Code, f.Method, f.Path, f.Status, f.Message)
}

// Endpoint is one documented operation.
type Endpoint struct {
	Method      string `json:"method" yaml:"method"`
	Path        string `json:"path" yaml:"path"`
	OperationID string `json:"operation_id" yaml:"operation_id"`
	Summary     string `json:"summary,omitempty" yaml:"summary,omitempty"`
}

// Document is a loaded, validated contract bound to a base URL.
type Document struct {
	profile string
	spec    *openapi3.T
	router  routers.Router
}

// Load parses the embedded document of profile and binds its server to
// baseURL so live requests can be routed against it.
func Load(profile, baseURL string) (*Document, error) {
	data, err := documents.ReadFile("openapi/" + profile + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("no contract for profile %q", profile)
	}

	loader := openapi3.NewLoader()
	spec, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load OpenAPI document: %w", err)
	}
	if err := spec.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("invalid OpenAPI document: %w", err)
	}

	if baseURL != "" {
		spec.Servers = openapi3.Servers{{URL: strings.TrimRight(baseURL, "/")}}
	}

	router, err := gorillamux.NewRouter(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to build contract router: %w", err)
	}

	return &Document{profile: profile, spec: spec, router: router}, nil
}

// Profile returns the profile the document describes.
func (d *Document) Profile() string {
	return d.profile
}

// Version returns the document's info.version.
func (d *Document) Version() string {
	if d.spec.Info == nil {
		return ""
	}
	return d.spec.Info.Version
}

// Endpoints lists the documented operations sorted by path, then method.
func (d *Document) Endpoints() []Endpoint {
	var out []Endpoint
	if d.spec.Paths == nil {
		return out
	}

	for path, item := range d.spec.Paths.Map() {
		for method, op := range item.Operations() {
			out = append(out, Endpoint{
				Method:      method,
				Path:        path,
				OperationID: op.OperationID,
				Summary:     op.Summary,
			})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Method < out[j].Method
	})
	return out
}

// Check validates one response. It returns nil when the response matches.
func (d *Document) Check(ctx context.Context, req *http.Request, status int, header http.Header, body []byte) *Finding {
	finding := &Finding{
		Method: req.Method,
		Path:   req.URL.EscapedPath(),
		Status: status,
	}

	route, params, err := d.router.FindRoute(routable(req))
	if err != nil {
		finding.Code = CodeUndocumentedRoute
		finding.Message = err.Error()
		return finding
	}

	input := &openapi3filter.ResponseValidationInput{
		RequestValidationInput: &openapi3filter.RequestValidationInput{
			Request:    req,
			PathParams: params,
			Route:      route,
		},
		Status: status,
		Header: header,
		Body:   io.NopCloser(bytes.NewReader(body)),
		Options: &openapi3filter.Options{
			IncludeResponseStatus: true,
		},
	}
	if err := openapi3filter.ValidateResponse(ctx, input); err != nil {
		finding.Code = CodeResponseMismatch
		finding.Message = err.Error()
		return finding
	}
	return nil
}

// routable returns a shallow copy of req whose path is still escaped, so a
// capability name containing "/" stays a single path segment.
func routable(req *http.Request) *http.Request {
	if req.URL.RawPath == "" {
		return req
	}
	r := req.Clone(req.Context())
	r.URL.Path = req.URL.EscapedPath()
	r.URL.RawPath = ""
	return r
}
