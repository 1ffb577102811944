// Package testhelpers provides common utilities and helper functions for
// testing the chat relay.
//
// This package contains reusable assertions shared across unit and
// integration tests to reduce duplication in test files.
package testhelpers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// CreateTestServer creates a test HTTP server with the given handler.
// It returns a running httptest.Server that should be closed after use.
func CreateTestServer(handler http.Handler) *httptest.Server {
	return httptest.NewServer(handler)
}

// AssertStatusCode checks if the HTTP response has the expected status code.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// AssertContentType checks if the HTTP response's Content-Type header starts
// with the expected media type, ignoring any charset parameter.
func AssertContentType(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, expected) {
		t.Errorf("Expected Content-Type %q, got %q", expected, contentType)
	}
}
