// Package api exposes the live detector state, HRV metrics and recorded
// epochs over HTTP.
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/nightbeat-data/pulse.report/internal/db"
	"github.com/nightbeat-data/pulse.report/internal/sleep"
)

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	db       *db.DB
	detector *sleep.Detector
}

func NewServer(database *db.DB, detector *sleep.Detector) *Server {
	return &Server{
		db:       database,
		detector: detector,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/state", s.showState)
	mux.HandleFunc("/api/metrics", s.showMetrics)
	mux.HandleFunc("/api/epochs", s.listEpochs)
	mux.HandleFunc("/api/chart", s.renderChart)
	mux.HandleFunc("/healthz", s.healthz)
	mux.HandleFunc("/", s.homeHandler)
	return mux
}

func (s *Server) homeHandler(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("Welcome to the Pulse Server!"))
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("ok"))
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// stateResponse controls the JSON shape of the detector status: the
// detector exposes its internals through getters, so the fields are
// flattened here instead of serialising the struct directly.
type stateResponse struct {
	State       sleep.State    `json:"state"`
	Probability float64        `json:"sleep_probability"`
	SleepStart  *time.Time     `json:"sleep_start,omitempty"`
	Baseline    sleep.Baseline `json:"baseline"`
	Samples     int            `json:"baseline_samples"`
}

func (s *Server) showState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	baseline, _ := s.detector.Baseline().Current()
	resp := stateResponse{
		State:       s.detector.State(),
		Probability: s.detector.Probability(),
		Baseline:    baseline,
		Samples:     s.detector.Baseline().SampleCount(),
	}
	if start := s.detector.SleepStart(); !start.IsZero() {
		resp.SleepStart = &start
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write state")
		return
	}
}

func (s *Server) showMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	snap, ok, err := s.db.LatestSnapshot()
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve metrics: %v", err))
		return
	}
	if !ok {
		s.writeJSONError(w, http.StatusNotFound, "No metrics recorded yet")
		return
	}

	if err := json.NewEncoder(w).Encode(snap); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write metrics")
		return
	}
}

// recentEpochs resolves the epoch set for a request: the newest `limit`
// epochs overall, or the newest `limit` epochs of a named session. A
// malformed limit is the client's fault and maps to 400.
func (s *Server) recentEpochs(r *http.Request) ([]sleep.Epoch, int, error) {
	limit := 240 // two hours of 30s epochs
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			return nil, http.StatusBadRequest, fmt.Errorf("invalid 'limit' parameter")
		}
		limit = parsed
	}

	if session := r.URL.Query().Get("session"); session != "" {
		epochs, err := s.db.SessionEpochs(session)
		if err != nil {
			return nil, http.StatusInternalServerError, err
		}
		if len(epochs) > limit {
			epochs = epochs[len(epochs)-limit:]
		}
		return epochs, http.StatusOK, nil
	}

	epochs, err := s.db.RecentEpochs(limit)
	if err != nil {
		return nil, http.StatusInternalServerError, err
	}
	return epochs, http.StatusOK, nil
}

func (s *Server) listEpochs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	epochs, status, err := s.recentEpochs(r)
	if err != nil {
		s.writeJSONError(w, status, fmt.Sprintf("Failed to retrieve epochs: %v", err))
		return
	}

	if err := json.NewEncoder(w).Encode(epochs); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write epochs")
		return
	}
}

// renderChart plots recent epoch heart rate and RMSSD as an HTML line
// chart. This is a debugging-only endpoint (no auth) to eyeball the
// night without a frontend.
func (s *Server) renderChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	epochs, status, err := s.recentEpochs(r)
	if err != nil {
		s.writeJSONError(w, status, fmt.Sprintf("Failed to retrieve epochs: %v", err))
		return
	}
	if len(epochs) == 0 {
		s.writeJSONError(w, http.StatusNotFound, "No epochs recorded yet")
		return
	}

	labels := make([]string, len(epochs))
	hr := make([]opts.LineData, len(epochs))
	rmssd := make([]opts.LineData, len(epochs))
	for i, e := range epochs {
		labels[i] = e.StartTime.Format("15:04:05")
		hr[i] = opts.LineData{Value: e.AverageHR}
		rmssd[i] = opts.LineData{Value: e.AverageRMSSD}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Night Overview", Theme: "dark", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Epoch Heart Rate and RMSSD", Subtitle: fmt.Sprintf("epochs=%d", len(epochs))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "bpm / ms"}),
	)
	line.SetXAxis(labels).
		AddSeries("heart rate", hr).
		AddSeries("rmssd", rmssd).
		SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
