package split

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"defilens/internal/adapters/config"
	"defilens/internal/adapters/upstream"
	"defilens/pkg/logger"
)

// Day-aligned UTC timestamps safely in the past.
const (
	day1 int64 = 1700006400
	day2 int64 = 1700092800
	day3 int64 = 1700179200
)

func testService(t *testing.T, handler http.Handler) *Service {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.UpstreamConfig{
		BaseURL:           srv.URL,
		DimensionsBaseURL: srv.URL,
		StablecoinsURL:    srv.URL,
		RequestTimeout:    5 * time.Second,
		RateLimitPerSec:   1000,
		RateLimitBurst:    1000,
	}
	client := upstream.NewClient(cfg, logger.Get())
	lookup := NewCategoryLookup(client, time.Minute)
	return NewService(client, lookup, config.SplitConfig{DefaultLimit: 5, MaxLimit: 20})
}

func serveJSON(t *testing.T, w http.ResponseWriter, body string) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write([]byte(body)); err != nil {
		t.Errorf("write response: %v", err)
	}
}
