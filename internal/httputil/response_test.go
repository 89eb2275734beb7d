package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/robosim/internal/monitoring"
	"github.com/banshee-data/robosim/internal/simerr"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	os.Exit(m.Run())
}

func TestWriteJSONError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSONError(rec, http.StatusTeapot, "short and stout")

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "short and stout", body["error"])
}

func TestWriteJSONOK(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSONOK(rec, map[string]int{"devices": 3})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"devices": 3}`, rec.Body.String())
}

func TestShortcuts(t *testing.T) {
	for _, tt := range []struct {
		write  func(http.ResponseWriter)
		status int
	}{
		{MethodNotAllowed, http.StatusMethodNotAllowed},
		{func(w http.ResponseWriter) { BadRequest(w, "bad") }, http.StatusBadRequest},
		{func(w http.ResponseWriter) { NotFound(w, "gone") }, http.StatusNotFound},
		{func(w http.ResponseWriter) { InternalServerError(w, "oops") }, http.StatusInternalServerError},
	} {
		rec := httptest.NewRecorder()
		tt.write(rec)
		assert.Equal(t, tt.status, rec.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{simerr.Recoverablef(simerr.ErrMalformedQuery, "device", "Query", "from < to"), http.StatusBadRequest},
		{fmt.Errorf("enable: %w", simerr.ErrInvalidArgument), http.StatusBadRequest},
		{simerr.ErrInvalidCommand, http.StatusBadRequest},
		{simerr.ErrNotActuator, http.StatusConflict},
		{simerr.ErrSensorNotReady, http.StatusServiceUnavailable},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.err), "%v", tt.err)
	}

	rec := httptest.NewRecorder()
	WriteError(rec, simerr.ErrNotActuator)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "does not accept commands")
}

func TestLoggingMiddleware(t *testing.T) {
	var lines []string
	monitoring.SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})
	defer monitoring.SetLogger(nil)

	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pose?x=1", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], "[http] "), lines[0])
	assert.Contains(t, lines[0], "/debug/pose?x=1")
	assert.Contains(t, lines[0], "404")
}
