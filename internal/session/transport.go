package session

import (
	"net/http"

	"github.com/felixgeelhaar/capboard/internal/errors"
)

// Transport attaches the session's bearer token to every request.
//
// Without a session the request is refused before it leaves the process.
// A 401 response tears down the session it was sent under; the response
// itself is still returned to the caller.
type Transport struct {
	ctrl *Controller
	next http.RoundTripper
}

// NewTransport wraps next for ctrl's session.
func NewTransport(ctrl *Controller, next http.RoundTripper) *Transport {
	if next == nil {
		next = http.DefaultTransport
	}
	return &Transport{ctrl: ctrl, next: next}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, gen, ok := t.ctrl.snapshot()
	if !ok {
		if req.Body != nil {
			req.Body.Close()
		}
		return nil, errors.NewNotAuthenticatedError()
	}

	r := req.Clone(req.Context())
	r.Header.Set("Authorization", "Bearer "+token)

	resp, err := t.next.RoundTrip(r)
	if err == nil && resp.StatusCode == http.StatusUnauthorized {
		t.ctrl.expire(gen)
	}
	return resp, err
}
