package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/escaperoom/internal/metrics"
	"github.com/mcoot/escaperoom/internal/testutil"
)

func TestRateLimitPerRoute(t *testing.T) {
	rl := NewRateLimiter(0.001, 2, time.Minute)
	defer rl.Stop()

	r := mux.NewRouter()
	r.Use(RateLimit(rl, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	ok := func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }
	r.HandleFunc("/rooms/{code}", ok)
	r.HandleFunc("/health", ok)

	get := func(path, remote string) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = remote
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		return rr.Code
	}

	// Different codes share the route bucket
	assert.Equal(t, http.StatusOK, get("/rooms/AAAAAA", "10.0.0.1:1000"))
	assert.Equal(t, http.StatusOK, get("/rooms/BBBBBB", "10.0.0.1:1001"))
	assert.Equal(t, http.StatusTooManyRequests, get("/rooms/CCCCCC", "10.0.0.1:1002"))

	assert.Equal(t, http.StatusOK, get("/health", "10.0.0.1:1003"))
	assert.Equal(t, http.StatusOK, get("/rooms/AAAAAA", "10.0.0.2:1000"))
}

func TestRateLimiterStopTwice(t *testing.T) {
	rl := NewRateLimiter(1, 1, time.Minute)
	rl.Stop()
	assert.NotPanics(t, rl.Stop)
}

func TestClientIP(t *testing.T) {
	assert.Equal(t, "192.0.2.1", clientIP("192.0.2.1:5555"))
	assert.Equal(t, "::1", clientIP("[::1]:80"))
	assert.Equal(t, "pipe", clientIP("pipe"))
}

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	tests := []struct {
		name       string
		allowed    string
		method     string
		origin     string
		wantStatus int
		wantAllow  string
	}{
		{"no origin passes through", "*", http.MethodGet, "", http.StatusTeapot, ""},
		{"any origin", "*", http.MethodGet, "http://a.example", http.StatusTeapot, "http://a.example"},
		{"matching origin", "http://a.example", http.MethodGet, "http://a.example", http.StatusTeapot, "http://a.example"},
		{"other origin", "http://a.example", http.MethodGet, "http://b.example", http.StatusTeapot, ""},
		{"preflight", "*", http.MethodOptions, "http://a.example", http.StatusNoContent, "http://a.example"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/rooms", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rr := httptest.NewRecorder()
			CORS(tt.allowed)(next).ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, tt.wantAllow, rr.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestHijackUnsupported(t *testing.T) {
	rw := wrap(httptest.NewRecorder())
	_, _, err := rw.Hijack()
	assert.Error(t, err)
	assert.Equal(t, http.StatusOK, rw.Status())
}

func TestWrapReusesWriter(t *testing.T) {
	rw := wrap(httptest.NewRecorder())
	assert.Same(t, rw, wrap(rw))
}

func TestLoggingCapturesStatusAndSize(t *testing.T) {
	var captured *ResponseWriter
	handler := Logging(testutil.NopLogger())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		captured = w.(*ResponseWriter)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("hello"))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", nil))
	require.NotNil(t, captured)
	assert.Equal(t, http.StatusCreated, captured.Status())
	assert.Equal(t, 5, captured.Size())
}

func TestRecovery(t *testing.T) {
	logger, logs := testutil.BufferLogger()
	r := mux.NewRouter()
	r.Use(Recovery(logger, DefaultPanicHandler))
	r.HandleFunc("/rooms/{code}", func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})

	before := counterValue(t, metrics.PanicsTotal)
	rr := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/rooms/AB12C3", nil))
	})

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, before+1, counterValue(t, metrics.PanicsTotal))
	assert.Contains(t, logs.String(), "panic recovered")
	assert.Contains(t, logs.String(), `"route":"/rooms/{code}"`)
}

func TestMetricsUseRouteTemplate(t *testing.T) {
	r := mux.NewRouter()
	r.Use(Metrics())
	r.HandleFunc("/test-metrics/{code}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	counter := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/test-metrics/{code}", "202")
	before := counterValue(t, counter)

	for _, code := range []string{"AAAAAA", "BBBBBB"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/test-metrics/"+code, nil))
	}

	assert.Equal(t, before+2, counterValue(t, counter))
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}
