// Package testutil provides fixtures shared by the simulator's package
// tests.
package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/banshee-data/robosim/internal/worldmap"
)

// LocalAddr is a loopback remote address accepted by the tsweb debug access
// check.
const LocalAddr = "127.0.0.1:12345"

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t testing.TB, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// LocalRequest creates a test request from LocalAddr, so /debug/ routes
// serve it.
func LocalRequest(method, target string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, target, body)
	req.RemoteAddr = LocalAddr
	return req
}

// Serve runs req through h and returns the recorded response.
func Serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// WallMap returns a 10x10 grid at 1 m per cell split by a wall along x=5.
func WallMap(t testing.TB) *worldmap.Map {
	t.Helper()
	m, err := worldmap.Build([]worldmap.Segment{{X0: 5, Y0: 0, X1: 5, Y1: 9}}, 10, 10, 1)
	if err != nil {
		t.Fatalf("failed to build wall map: %v", err)
	}
	return m
}
