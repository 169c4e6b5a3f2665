// Package testutil holds helpers for tests that drive the HTTP API in process.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// JSONRequest builds a request whose body is v encoded as JSON. A nil v sends
// an empty body.
func JSONRequest(t testing.TB, method, path string, v any) *http.Request {
	t.Helper()
	var body io.Reader
	if v != nil {
		raw, err := json.Marshal(v)
		require.NoError(t, err, "failed to marshal request body")
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// Do serves req and returns the recorded response.
func Do(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// DecodeJSON decodes the response body into T.
func DecodeJSON[T any](t testing.TB, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "failed to decode %q", rec.Body.String())
	return out
}

// AssertError checks the status and the {"error","error_description"}
// envelope. An empty description is not compared.
func AssertError(t testing.TB, rec *httptest.ResponseRecorder, status int, code, description string) {
	t.Helper()
	assert.Equal(t, status, rec.Code, "unexpected status, body %s", rec.Body.String())
	body := DecodeJSON[map[string]string](t, rec)
	assert.Equal(t, code, body["error"])
	if description != "" {
		assert.Equal(t, description, body["error_description"])
	}
}
