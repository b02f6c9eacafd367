package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRespectsCustomWriter(t *testing.T) {
	var buf bytes.Buffer

	logger := New(Config{Writer: &buf})
	logger.Info("custom writer", "job_id", "abc")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "custom writer", entry["msg"])
	assert.Equal(t, "abc", entry["job_id"])
}

func TestNewTextFormat(t *testing.T) {
	var buf bytes.Buffer

	logger := New(Config{Writer: &buf, Format: " TEXT "})
	logger.Info("plain")

	assert.True(t, strings.Contains(buf.String(), "msg=plain"), buf.String())
}

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"warning", slog.LevelWarn},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
		{" DeBuG ", slog.LevelDebug},
	}

	for _, tc := range testCases {
		if got := parseLevel(tc.input); got != tc.expected {
			t.Errorf("parseLevel(%q) = %v, expected %v", tc.input, got, tc.expected)
		}
	}
}

func TestLevelFiltersOutput(t *testing.T) {
	var buf bytes.Buffer

	logger := New(Config{Writer: &buf, Level: "warn"})
	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer

	WithComponent(New(Config{Writer: &buf}), "throttle").Info("dispatch")
	assert.Contains(t, buf.String(), `"component":"throttle"`)
	assert.NotNil(t, WithComponent(nil, "x"))
}

func TestRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer

	router := gin.New()
	router.Use(RequestLogger(New(Config{Writer: &buf})))
	router.GET("/missing", func(c *gin.Context) {
		c.Status(http.StatusNotFound)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "/missing", entry["path"])
	assert.Equal(t, float64(http.StatusNotFound), entry["status"])
}
