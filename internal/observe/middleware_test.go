package observe

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// testSetup installs a manual metric reader and an in-memory span exporter.
func testSetup(t *testing.T) (*Metrics, *sdkmetric.ManualReader, *tracetest.InMemoryExporter) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	origTP := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(origTP) })

	return m, reader, exp
}

// captureLogs routes the default logger into a JSON buffer at info level.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	t.Cleanup(func() { slog.SetDefault(orig) })
	return &buf
}

func completionLogs(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(strings.NewReader(buf.String()))
	for sc.Scan() {
		var rec map[string]any
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("decode log line %q: %v", sc.Text(), err)
		}
		if rec["msg"] == "request completed" {
			out = append(out, rec)
		}
	}
	return out
}

// controlMux mimics the status codes of the control API.
func controlMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/wake", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("POST /v1/stop", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("GET /v1/state", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"state":"idle"}`))
	})
	mux.HandleFunc("GET /metrics", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# EOF\n"))
	})
	return mux
}

func TestMiddleware_ControlRoutes(t *testing.T) {
	tests := []struct {
		method     string
		path       string
		wantStatus int
		wantLogged bool
	}{
		{method: "POST", path: "/v1/wake", wantStatus: http.StatusAccepted, wantLogged: true},
		{method: "POST", path: "/v1/stop", wantStatus: http.StatusAccepted, wantLogged: true},
		{method: "GET", path: "/v1/state", wantStatus: http.StatusOK, wantLogged: true},
		{method: "GET", path: "/v1/wake", wantStatus: http.StatusMethodNotAllowed, wantLogged: true},
		{method: "GET", path: "/metrics", wantStatus: http.StatusOK, wantLogged: false},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			m, _, exp := testSetup(t)
			logs := captureLogs(t)
			handler := Middleware(m)(controlMux())

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if cid := rec.Header().Get("X-Correlation-ID"); len(cid) != 32 {
				t.Errorf("X-Correlation-ID = %q, want a 32 char trace id", cid)
			}

			spans := exp.GetSpans()
			if len(spans) != 1 {
				t.Fatalf("got %d spans, want 1", len(spans))
			}
			if want := "HTTP " + tt.method + " " + tt.path; spans[0].Name != want {
				t.Errorf("span name = %q, want %q", spans[0].Name, want)
			}
			var status int64
			for _, a := range spans[0].Attributes {
				if a.Key == "http.response.status_code" {
					status = a.Value.AsInt64()
				}
			}
			if status != int64(tt.wantStatus) {
				t.Errorf("span status attribute = %d, want %d", status, tt.wantStatus)
			}

			lines := completionLogs(t, logs)
			if !tt.wantLogged {
				if len(lines) != 0 {
					t.Errorf("scrape logged at info: %v", lines)
				}
				return
			}
			if len(lines) != 1 {
				t.Fatalf("got %d completion logs, want 1", len(lines))
			}
			if lines[0]["path"] != tt.path || lines[0]["status"] != float64(tt.wantStatus) {
				t.Errorf("log = %v", lines[0])
			}
		})
	}
}

func TestMiddleware_RecordsDurationPerPath(t *testing.T) {
	m, reader, _ := testSetup(t)
	handler := Middleware(m)(controlMux())

	for _, path := range []string{"/v1/wake", "/v1/wake", "/v1/stop"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", path, nil))
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	met := findMetric(rm, "jarvis.http.request.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}

	counts := map[string]uint64{}
	for _, dp := range hist.DataPoints {
		path, _ := dp.Attributes.Value("path")
		method, _ := dp.Attributes.Value("method")
		if method.AsString() != "POST" {
			t.Errorf("method attribute = %q, want POST", method.AsString())
		}
		counts[path.AsString()] += dp.Count
	}
	if counts["/v1/wake"] != 2 || counts["/v1/stop"] != 1 {
		t.Errorf("samples per path = %v, want /v1/wake:2 /v1/stop:1", counts)
	}
}

func TestMiddleware_ContinuesIncomingTrace(t *testing.T) {
	m, _, _ := testSetup(t)
	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"

	var seen string
	handler := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CorrelationID(r.Context())
		w.WriteHeader(http.StatusAccepted)
	}))

	req := httptest.NewRequest("POST", "/v1/wake", nil)
	req.Header.Set("traceparent", "00-"+traceID+"-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seen != traceID {
		t.Errorf("handler correlation ID = %q, want %q", seen, traceID)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != traceID {
		t.Errorf("X-Correlation-ID = %q, want %q", got, traceID)
	}
	if tp := rec.Header().Get("traceparent"); !strings.Contains(tp, traceID) {
		t.Errorf("response traceparent = %q, want trace %s", tp, traceID)
	}
}

func TestMiddleware_ScrapeEndpoint(t *testing.T) {
	m, reader, _ := testSetup(t)
	handler := Middleware(m)(MetricsHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct == "" {
		t.Error("missing Content-Type on scrape response")
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if findMetric(rm, "jarvis.http.request.duration") == nil {
		t.Error("scrape request was not recorded")
	}
}
