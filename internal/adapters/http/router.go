package httpadapter

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/kirillkom/document-classifier/internal/config"
	"github.com/kirillkom/document-classifier/internal/core/ports"
	"github.com/kirillkom/document-classifier/internal/observability/metrics"
)

const serviceName = "document-classifier"

type Router struct {
	cfg        config.Config
	classifier ports.DocumentClassifier
	metrics    *metrics.HTTPServerMetrics
}

// NewRouter wires the classification endpoints. metrics may be nil.
func NewRouter(
	cfg config.Config,
	classifier ports.DocumentClassifier,
	metrics *metrics.HTTPServerMetrics,
) *Router {
	return &Router{
		cfg:        cfg,
		classifier: classifier,
		metrics:    metrics,
	}
}

func (rt *Router) Handler() http.Handler {
	classify := rt.trafficControl(http.HandlerFunc(rt.classifySync))
	classifyStream := rt.trafficControl(http.HandlerFunc(rt.classifyStream))

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/health", rt.healthz)
	mux.Handle("/api/classify", classify)
	mux.Handle("/api/classify/stream", classifyStream)
	mux.HandleFunc("/api/token/status", rt.tokenStatus)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) trafficControl(next http.Handler) http.Handler {
	handler := next
	if rt.cfg.APIMaxInFlight > 0 {
		handler = backpressureMiddleware(
			handler,
			rt.cfg.APIMaxInFlight,
			time.Duration(rt.cfg.APIBackpressureWaitMS)*time.Millisecond,
			rt.rejected("backpressure"),
		)
	}
	if rt.cfg.APIRateLimitRPS > 0 {
		handler = newClientRateLimiter(rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst).
			middleware(handler, rt.rejected("rate_limit"))
	}
	return handler
}

func (rt *Router) rejected(reason string) func() {
	return func() {
		if rt.metrics != nil {
			rt.metrics.RecordRejection(reason)
		}
	}
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": serviceName})
}

func (rt *Router) tokenStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	resp := struct {
		Configured bool    `json:"configured"`
		Masked     *string `json:"masked"`
	}{}
	if rt.cfg.HFToken != "" {
		masked := config.MaskSecret(rt.cfg.HFToken)
		resp.Configured = true
		resp.Masked = &masked
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
