// Package api serves stored validation runs over HTTP: JSON listings,
// full reports in several formats, and rendered metric charts.
package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kestrel-data/visionproof/internal/db"
	"github.com/kestrel-data/visionproof/internal/fsutil"
	"github.com/kestrel-data/visionproof/internal/httputil"
	"github.com/kestrel-data/visionproof/internal/report"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	db           *db.DB
	fs           fsutil.FileSystem
	artifactsDir string
}

// NewServer wires the run store and the artifact directory the run
// command writes into. Stored rows hold rule-level aggregates; the
// JSON artifact is the full record with per-case verdict evidence, so
// the evidence endpoint reads it back from fsys.
func NewServer(database *db.DB, fsys fsutil.FileSystem, artifactsDir string) *Server {
	return &Server{db: database, fs: fsys, artifactsDir: artifactsDir}
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

// LoggingMiddleware logs method, path, query, status, and duration
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
	mux.HandleFunc("/healthz", s.healthz)
	mux.HandleFunc("/api/runs", s.listRuns)
	mux.HandleFunc("/api/runs/", s.runSubresource)
	return mux
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]string{"status": "ok"})
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		v, err := strconv.Atoi(l)
		if err != nil || v <= 0 || v > 500 {
			httputil.BadRequest(w, "limit must be a positive integer up to 500")
			return
		}
		limit = v
	}

	runs, err := s.db.ListRuns(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("list runs: %v", err))
		return
	}
	if runs == nil {
		runs = []db.RunRow{}
	}
	httputil.WriteJSONOK(w, runs)
}

// runSubresource dispatches /api/runs/{id} and its report renderings:
// /api/runs/{id}/report.csv, /report.txt, /charts and /evidence.
func (s *Server) runSubresource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/runs/")
	runID, sub, _ := strings.Cut(rest, "/")
	if runID == "" {
		httputil.BadRequest(w, "missing run id")
		return
	}

	summary, err := s.db.GetRun(runID)
	if errors.Is(err, db.ErrRunNotFound) {
		httputil.NotFound(w, fmt.Sprintf("run %s not found", runID))
		return
	}
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("load run: %v", err))
		return
	}

	switch sub {
	case "":
		httputil.WriteJSONOK(w, summary)

	case "report.csv":
		var buf bytes.Buffer
		if err := report.WriteCSV(&buf, *summary); err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("render csv: %v", err))
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.csv", runID))
		_, _ = w.Write(buf.Bytes())

	case "report.txt":
		var buf bytes.Buffer
		if err := report.WriteText(&buf, *summary); err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("render text: %v", err))
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write(buf.Bytes())

	case "charts":
		s.renderRunCharts(w, summary)

	case "evidence":
		s.serveEvidence(w, runID)

	default:
		httputil.NotFound(w, fmt.Sprintf("unknown run resource %q", sub))
	}
}

// serveEvidence streams the stored JSON artifact for a run. The
// database keeps only failed-case rows, so the artifact is the one
// place full verdict evidence survives.
func (s *Server) serveEvidence(w http.ResponseWriter, runID string) {
	path := report.ArtifactPath(s.artifactsDir, runID, "json")
	if !s.fs.Exists(path) {
		httputil.NotFound(w, fmt.Sprintf("no stored artifact for run %s", runID))
		return
	}

	info, err := s.fs.Stat(path)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("stat artifact: %v", err))
		return
	}
	f, err := s.fs.Open(path)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("open artifact: %v", err))
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	_, _ = io.Copy(w, f)
}
