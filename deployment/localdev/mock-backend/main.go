package main

import (
	"encoding/json"
	"flag"
	"log"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type latency struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	P95    float64 `json:"p95"`
	P99    float64 `json:"p99"`
	Count  int     `json:"count"`
}

type throughput struct {
	RequestsPerSecond float64 `json:"requests_per_second"`
	RequestsInWindow  int     `json:"requests_in_window"`
	TotalRequests     int     `json:"total_requests"`
	TotalSuccessful   int     `json:"total_successful"`
	TotalFailed       int     `json:"total_failed"`
}

type modelPerformance struct {
	AnomalyCount        int     `json:"anomaly_count"`
	NormalCount         int     `json:"normal_count"`
	TotalPredictions    int     `json:"total_predictions"`
	AverageAnomalyScore float64 `json:"average_anomaly_score"`
	AnomalyRatePercent  float64 `json:"anomaly_rate_percent"`
}

type baseline struct {
	ContextType string             `json:"context_type"`
	ContextKey  string             `json:"context_key,omitempty"`
	Metrics     map[string]float64 `json:"metrics"`
	Version     int                `json:"version"`
	WindowEnd   time.Time          `json:"window_end"`
}

type alert struct {
	ID           int       `json:"id"`
	Status       string    `json:"status"`
	Severity     string    `json:"severity"`
	AnomalyScore float64   `json:"anomaly_score"`
	SourceIP     string    `json:"source_ip"`
	Endpoint     string    `json:"endpoint"`
	CreatedAt    time.Time `json:"created_at"`
}

func main() {
	var (
		addr      string
		token     string
		failRate  float64
		bareLists bool
	)
	flag.StringVar(&addr, "addr", ":8000", "listen address")
	flag.StringVar(&token, "token", "", "require this bearer token when set")
	flag.Float64Var(&failRate, "fail-rate", 0, "probability (0-1) that any endpoint answers 503")
	flag.BoolVar(&bareLists, "bare-baselines", false, "serve baselines as a bare list instead of {baselines: [...]}")
	flag.Parse()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/api/v1/metrics", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"latency":           latency{Mean: 12.4, Median: 9.8, P95: 41.2, P99: 88.0, Count: 3120},
			"throughput":        throughput{RequestsPerSecond: 52.1, RequestsInWindow: 3120, TotalRequests: 981233, TotalSuccessful: 979001, TotalFailed: 2232},
			"model_performance": currentModel(),
		})
	})

	mux.HandleFunc("/api/v1/metrics/model", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, currentModel())
	})

	mux.HandleFunc("/api/v1/baseline", func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().UTC()
		items := []baseline{
			{ContextType: "global", Metrics: map[string]float64{"rps_mean": 48.2, "rps_std": 6.1, "latency_p95": 40}, Version: 12, WindowEnd: now.Add(-time.Hour)},
			{ContextType: "ip", ContextKey: "10.20.30.40", Metrics: map[string]float64{"rps_mean": 1.2}, Version: 3, WindowEnd: now.Add(-2 * time.Hour)},
			{ContextType: "endpoint", ContextKey: "/api/v1/payments/authorize/with/a/long/suffix", Metrics: map[string]float64{"rps_mean": 7.5, "error_rate": 0.01}, Version: 5, WindowEnd: now.Add(-3 * time.Hour)},
		}
		if bareLists {
			writeJSON(w, items)
			return
		}
		writeJSON(w, map[string]any{"baselines": items, "total": len(items)})
	})

	mux.HandleFunc("/api/v1/alerts", func(w http.ResponseWriter, r *http.Request) {
		limit := 1000
		if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
			limit = v
		}
		writeJSON(w, sampleAlerts(limit))
	})

	logger := log.New(log.Writer(), "trident-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:    addr,
		Handler: logRequests(logger, requireToken(token, injectFailures(failRate, mux))),
	}

	logger.Printf("listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

func currentModel() modelPerformance {
	anomalies := 40 + rand.Intn(20)
	normal := 900 + rand.Intn(100)
	total := anomalies + normal
	return modelPerformance{
		AnomalyCount:        anomalies,
		NormalCount:         normal,
		TotalPredictions:    total,
		AverageAnomalyScore: 0.2 + rand.Float64()*0.1,
		AnomalyRatePercent:  float64(anomalies) / float64(total) * 100,
	}
}

func sampleAlerts(limit int) []alert {
	statuses := []string{"true_positive", "true_positive", "true_positive", "false_positive", "pending"}
	n := 25
	if limit < n {
		n = limit
	}
	out := make([]alert, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, alert{
			ID:           i + 1,
			Status:       statuses[rand.Intn(len(statuses))],
			Severity:     []string{"low", "medium", "high"}[i%3],
			AnomalyScore: 0.5 + rand.Float64()*0.5,
			SourceIP:     "10.0.0." + strconv.Itoa(i%8+1),
			Endpoint:     "/api/v1/login",
			CreatedAt:    time.Now().UTC().Add(-time.Duration(i) * time.Minute),
		})
	}
	return out
}

func requireToken(token string, next http.Handler) http.Handler {
	if token == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" && strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ") != token {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"Invalid or expired token"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func injectFailures(rate float64, next http.Handler) http.Handler {
	if rate <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" && rand.Float64() < rate {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"message":"backend temporarily unavailable"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
