package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nicktill/tenantobs/pkg/aggregate"
	"github.com/nicktill/tenantobs/pkg/correlation"
	"github.com/nicktill/tenantobs/pkg/coverage"
	"github.com/nicktill/tenantobs/pkg/export"
	"github.com/nicktill/tenantobs/pkg/httpx"
	"github.com/nicktill/tenantobs/pkg/inventory"
	"github.com/nicktill/tenantobs/pkg/sensor"
	"github.com/nicktill/tenantobs/pkg/server/monitor"
	"github.com/nicktill/tenantobs/pkg/storage"
)

var startTime = time.Now()

// Version is reported by the health endpoint.
const Version = "1.0.0"

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string              `json:"status"`
	Version string              `json:"version"`
	Uptime  string              `json:"uptime"`
	BuildID string              `json:"build_id,omitempty"`
	Records int                 `json:"records"`
	Rebuild monitor.BuildStatus `json:"rebuild"`
	Store   *StoreUsage         `json:"store,omitempty"`
}

// StoreUsage represents snapshot store stats.
type StoreUsage struct {
	Records   uint64 `json:"records"`
	Tenants   uint64 `json:"tenants"`
	SizeBytes uint64 `json:"size_bytes"`
}

// ViewInfo lists one aggregate view.
type ViewInfo struct {
	Name        string `json:"name"`
	Title       string `json:"title,omitempty"`
	SupportsStd bool   `json:"supports_std"`
}

// Router builds the HTTP routes of the read API.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(s.metricsMiddleware)
	router.Use(corsMiddleware(s.opts.Port))

	api := router.PathPrefix("/v1").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/aggregates", s.handleViews).Methods("GET")
	api.HandleFunc("/aggregates/{view}", s.withEngine(s.handleAggregate)).Methods("GET")
	api.HandleFunc("/correlations/{metric}", s.withEngine(s.handleCorrelation)).Methods("GET")
	api.HandleFunc("/coverage", s.withEngine(s.handleCoverage)).Methods("GET")

	// fixed inventory routes before the {category} pattern
	api.HandleFunc("/inventory/state", s.withEngine(s.handleStateValues)).Methods("GET")
	api.HandleFunc("/inventory/feedback", s.withEngine(s.handleFeedbackValues)).Methods("GET")
	api.HandleFunc("/inventory/{category}", s.withEngine(s.handleInventory)).Methods("GET")

	router.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})).Methods("GET")

	return router
}

type engineHandler func(w http.ResponseWriter, r *http.Request, e *aggregate.Engine, f export.Format)

// withEngine resolves the current engine and the format parameter.
func (s *Server) withEngine(h engineHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e := s.Engine()
		if e == nil {
			httpx.RespondErrorString(w, http.StatusServiceUnavailable, "dataset not built yet")
			return
		}
		f, err := export.ParseFormat(r.URL.Query().Get("format"))
		if err != nil {
			httpx.RespondError(w, http.StatusBadRequest, err)
			return
		}
		h(w, r, e, f)
	}
}

func (s *Server) exporter(e *aggregate.Engine) *export.Exporter {
	return export.NewExporter(e.Dataset(), s.opts.Titles)
}

func (s *Server) respond(w http.ResponseWriter, name string, f export.Format, fn func(io.Writer) error) {
	if err := export.Respond(w, name, f, fn); err != nil {
		s.logger.Error("response failed", zap.String("output", name), zap.Error(err))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	rebuild := s.buildMonitor.Status()
	response := HealthResponse{
		Status:  "healthy",
		Version: Version,
		Uptime:  time.Since(startTime).Round(time.Second).String(),
		Rebuild: rebuild,
	}
	statusCode := http.StatusOK

	e := s.Engine()
	switch {
	case e == nil:
		response.Status = "unavailable"
		statusCode = http.StatusServiceUnavailable
	case !rebuild.Healthy:
		response.Status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}
	if e != nil {
		response.BuildID = e.Dataset().BuildID()
		response.Records = e.Dataset().Len()
	}

	if s.storeMonitor != nil {
		if stats, err := s.storeMonitor.Stats(r.Context()); err == nil {
			response.Store = storeUsage(stats)
		} else {
			s.logger.Warn("store stats failed", zap.Error(err))
		}
	}

	httpx.RespondJSON(w, statusCode, response)
}

func storeUsage(st *storage.Stats) *StoreUsage {
	return &StoreUsage{Records: st.TotalRecords, Tenants: st.TotalTenants, SizeBytes: st.SizeBytes}
}

func (s *Server) handleViews(w http.ResponseWriter, r *http.Request) {
	names := aggregate.Names()
	views := make([]ViewInfo, 0, len(names))
	for _, name := range names {
		v, _ := aggregate.Lookup(name)
		info := ViewInfo{Name: name, SupportsStd: v.SupportsStd}
		if s.opts.Titles {
			info.Title = v.Title
		}
		views = append(views, info)
	}
	httpx.RespondJSON(w, http.StatusOK, views)
}

func (s *Server) handleAggregate(w http.ResponseWriter, r *http.Request, e *aggregate.Engine, f export.Format) {
	name := mux.Vars(r)["view"]

	var opts aggregate.Options
	if raw := r.URL.Query().Get("std"); raw != "" {
		withStd, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.RespondErrorString(w, http.StatusBadRequest, fmt.Sprintf("invalid std %q", raw))
			return
		}
		opts.WithStd = withStd
	}

	table, err := e.Compute(r.Context(), name, opts)
	if err != nil {
		if errors.Is(err, aggregate.ErrUnknownView) {
			httpx.RespondError(w, http.StatusNotFound, err)
			return
		}
		httpx.RespondError(w, http.StatusInternalServerError, err)
		return
	}

	s.respond(w, name, f, func(out io.Writer) error {
		return s.exporter(e).Table(out, table, f)
	})
}

func (s *Server) handleCorrelation(w http.ResponseWriter, r *http.Request, e *aggregate.Engine, f export.Format) {
	metric := mux.Vars(r)["metric"]
	m, err := correlation.Compute(e.Dataset(), metric)
	if err != nil {
		httpx.RespondError(w, http.StatusNotFound, err)
		return
	}
	s.respond(w, "correlation-"+metric, f, func(out io.Writer) error {
		return s.exporter(e).Matrix(out, m, f)
	})
}

func (s *Server) handleCoverage(w http.ResponseWriter, r *http.Request, e *aggregate.Engine, f export.Format) {
	list := coverage.Summarize(e.Dataset())
	s.respond(w, "coverage", f, func(out io.Writer) error {
		return s.exporter(e).Coverage(out, list, f)
	})
}

func (s *Server) handleInventory(w http.ResponseWriter, r *http.Request, e *aggregate.Engine, f export.Format) {
	raw := mux.Vars(r)["category"]
	c, ok := sensor.ParseCategory(raw)
	if !ok {
		httpx.RespondErrorString(w, http.StatusNotFound, fmt.Sprintf("unknown category %q", raw))
		return
	}
	inv, err := inventory.ForCategory(e.Dataset(), c)
	if err != nil {
		httpx.RespondError(w, http.StatusNotFound, err)
		return
	}
	s.respond(w, "inventory-"+raw, f, func(out io.Writer) error {
		return s.exporter(e).Inventory(out, inv, f)
	})
}

func (s *Server) handleStateValues(w http.ResponseWriter, r *http.Request, e *aggregate.Engine, f export.Format) {
	values := inventory.StateValues(e.Dataset())
	s.respond(w, "state-values", f, func(out io.Writer) error {
		return s.exporter(e).Values(out, "state", export.StateValuesTitle, values, f)
	})
}

func (s *Server) handleFeedbackValues(w http.ResponseWriter, r *http.Request, e *aggregate.Engine, f export.Format) {
	values := inventory.FeedbackValues(e.Dataset())
	s.respond(w, "feedback-values", f, func(out io.Writer) error {
		return s.exporter(e).Values(out, "feedback", export.FeedbackValuesTitle, values, f)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// metricsMiddleware counts requests by route template and status.
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tmpl, err := cur.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		s.metrics.ObserveRequest(r.Method, route, strconv.Itoa(rec.status))
	})
}

// corsMiddleware creates CORS middleware that restricts to localhost origins only.
func corsMiddleware(port string) mux.MiddlewareFunc {
	allowedOrigins := map[string]bool{
		"http://localhost:" + port: true,
		"http://127.0.0.1:" + port: true,
		"http://localhost:3000":    true,
		"http://127.0.0.1:3000":    true,
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if allowedOrigins[origin] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
