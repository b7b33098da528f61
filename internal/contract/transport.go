package contract

import (
	"bytes"
	"io"
	"net/http"
)

// maxValidatedBody bounds how much of a response is buffered for checking.
const maxValidatedBody = 4 << 20

// Transport checks every response against a Document and reports mismatches.
// The response handed back to the caller is unchanged.
type Transport struct {
	doc    *Document
	next   http.RoundTripper
	report func(Finding)
}

// NewTransport wraps next. report is called once per mismatching response.
func NewTransport(doc *Document, next http.RoundTripper, report func(Finding)) *Transport {
	if next == nil {
		next = http.DefaultTransport
	}
	if report == nil {
		report = func(Finding) {}
	}
	return &Transport{doc: doc, next: next, report: report}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	if err != nil || resp == nil {
		return resp, err
	}

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxValidatedBody))
	rest := resp.Body

	if readErr != nil {
		resp.Body = readCloser{io.MultiReader(bytes.NewReader(body), errReader{readErr}), rest}
		return resp, nil
	}
	resp.Body = readCloser{io.MultiReader(bytes.NewReader(body), rest), rest}

	if len(body) < maxValidatedBody {
		if f := t.doc.Check(req.Context(), req, resp.StatusCode, resp.Header, body); f != nil {
			t.report(*f)
		}
	}
	return resp, nil
}

type readCloser struct {
	io.Reader
	io.Closer
}

type errReader struct{ err error }

func (e errReader) Read([]byte) (int, error) { return 0, e.err }
