package middleware

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/CaioWing/apkharbor/internal/domain"
)

// Metrics collects HTTP request and publish run metrics in a
// Prometheus-compatible format.
type Metrics struct {
	requestsTotal   sync.Map // key: "method:status" -> *int64
	requestDuration sync.Map // key: "method:path" -> *durationBuckets
	activeRequests  int64
	runsTotal       sync.Map // key: "kind:status" -> *int64
	runsRecovered   int64
}

type durationBuckets struct {
	mu    sync.Mutex
	sum   float64
	count int64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			atomic.AddInt64(&m.activeRequests, 1)

			rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r)

			atomic.AddInt64(&m.activeRequests, -1)
			duration := time.Since(start).Seconds()

			// Count requests by method+status
			key := fmt.Sprintf("%s:%d", r.Method, rw.status)
			counter, _ := m.requestsTotal.LoadOrStore(key, new(int64))
			atomic.AddInt64(counter.(*int64), 1)

			// Track duration by method+path pattern
			pathKey := fmt.Sprintf("%s:%s", r.Method, normalizeMetricsPath(r.URL.Path))
			buckets, _ := m.requestDuration.LoadOrStore(pathKey, &durationBuckets{})
			db := buckets.(*durationBuckets)
			db.mu.Lock()
			db.sum += duration
			db.count++
			db.mu.Unlock()
		})
	}
}

// Notify counts a finished publish or assign run.
func (m *Metrics) Notify(_ context.Context, run *domain.PublishRun) error {
	key := fmt.Sprintf("%s:%s", run.Kind, run.Status)
	counter, _ := m.runsTotal.LoadOrStore(key, new(int64))
	atomic.AddInt64(counter.(*int64), 1)
	if run.Recovered {
		atomic.AddInt64(&m.runsRecovered, 1)
	}
	return nil
}

// Handler serves the /metrics endpoint in Prometheus text exposition format.
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		// Active requests gauge
		fmt.Fprintf(w, "# HELP apkharbor_http_active_requests Number of active HTTP requests.\n")
		fmt.Fprintf(w, "# TYPE apkharbor_http_active_requests gauge\n")
		fmt.Fprintf(w, "apkharbor_http_active_requests %d\n\n", atomic.LoadInt64(&m.activeRequests))

		// Request totals
		fmt.Fprintf(w, "# HELP apkharbor_http_requests_total Total number of HTTP requests.\n")
		fmt.Fprintf(w, "# TYPE apkharbor_http_requests_total counter\n")

		for _, key := range sortedKeys(&m.requestsTotal) {
			val, _ := m.requestsTotal.Load(key)
			method, status := splitMetricsKey(key)
			fmt.Fprintf(w, "apkharbor_http_requests_total{method=%q,status=%q} %d\n",
				method, status, atomic.LoadInt64(val.(*int64)))
		}

		// Request duration
		fmt.Fprintf(w, "\n# HELP apkharbor_http_request_duration_seconds HTTP request duration in seconds.\n")
		fmt.Fprintf(w, "# TYPE apkharbor_http_request_duration_seconds summary\n")

		for _, key := range sortedKeys(&m.requestDuration) {
			val, _ := m.requestDuration.Load(key)
			db := val.(*durationBuckets)
			db.mu.Lock()
			sum := db.sum
			count := db.count
			db.mu.Unlock()
			method, path := splitMetricsKey(key)
			fmt.Fprintf(w, "apkharbor_http_request_duration_seconds_sum{method=%q,path=%q} %.6f\n", method, path, sum)
			fmt.Fprintf(w, "apkharbor_http_request_duration_seconds_count{method=%q,path=%q} %d\n", method, path, count)
		}

		// Publish runs
		fmt.Fprintf(w, "\n# HELP apkharbor_runs_total Finished publish and assign runs.\n")
		fmt.Fprintf(w, "# TYPE apkharbor_runs_total counter\n")

		for _, key := range sortedKeys(&m.runsTotal) {
			val, _ := m.runsTotal.Load(key)
			kind, status := splitMetricsKey(key)
			fmt.Fprintf(w, "apkharbor_runs_total{kind=%q,status=%q} %d\n",
				kind, status, atomic.LoadInt64(val.(*int64)))
		}

		fmt.Fprintf(w, "\n# HELP apkharbor_runs_recovered_total Runs whose commit outcome was unknown and later confirmed.\n")
		fmt.Fprintf(w, "# TYPE apkharbor_runs_recovered_total counter\n")
		fmt.Fprintf(w, "apkharbor_runs_recovered_total %d\n", atomic.LoadInt64(&m.runsRecovered))
	}
}

func sortedKeys(m *sync.Map) []string {
	var keys []string
	m.Range(func(key, _ any) bool {
		keys = append(keys, key.(string))
		return true
	})
	sort.Strings(keys)
	return keys
}

func splitMetricsKey(key string) (string, string) {
	first, rest, _ := strings.Cut(key, ":")
	return first, rest
}

// normalizeMetricsPath replaces UUIDs and numeric IDs with {id} to group metrics.
func normalizeMetricsPath(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if isIDSegment(seg) {
			segments[i] = "{id}"
		}
	}
	return strings.Join(segments, "/")
}

func isIDSegment(s string) bool {
	if s == "" {
		return false
	}
	if _, err := uuid.Parse(s); err == nil && len(s) == 36 {
		return true
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
