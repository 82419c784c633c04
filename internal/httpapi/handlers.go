// Package httpapi hosts the operational surface next to the WebSocket
// gateway: health probes, Prometheus-style metrics, and the admin abort
// endpoint. Nothing here sits on the gameplay hot path.
package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"goalrush/matchcore/internal/audit"
	"goalrush/matchcore/internal/broadcast"
	"goalrush/matchcore/internal/cheat"
	"goalrush/matchcore/internal/logging"
	"goalrush/matchcore/internal/session"
)

// ReadinessProvider exposes server state required for readiness checks.
type ReadinessProvider interface {
	ConnectionCount() int
	StartupError() error
	Uptime() time.Duration
}

// MatchAborter voids a running match on operator request.
type MatchAborter interface {
	Abort(matchID, reason string) error
}

// RateLimiter gates how frequently sensitive operations may be invoked.
type RateLimiter interface {
	Allow() bool
}

// Options configures the HandlerSet.
type Options struct {
	Logger      *logging.Logger
	Readiness   ReadinessProvider
	Sessions    func() session.RegistryStats
	Broadcast   func() broadcast.Counters
	Flags       func() map[string]cheat.FlagCounters
	AuditStats  func() audit.StorageStats
	Aborter     MatchAborter
	AdminToken  string
	RateLimiter RateLimiter
	TimeSource  func() time.Time
}

// HandlerSet bundles the operational handlers.
type HandlerSet struct {
	logger      *logging.Logger
	readiness   ReadinessProvider
	sessions    func() session.RegistryStats
	broadcast   func() broadcast.Counters
	flags       func() map[string]cheat.FlagCounters
	auditStats  func() audit.StorageStats
	aborter     MatchAborter
	adminToken  string
	rateLimiter RateLimiter
	now         func() time.Time
}

// NewHandlerSet constructs a HandlerSet using the provided options.
func NewHandlerSet(opts Options) *HandlerSet {
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	now := opts.TimeSource
	if now == nil {
		now = time.Now
	}
	return &HandlerSet{
		logger:      logger,
		readiness:   opts.Readiness,
		sessions:    opts.Sessions,
		broadcast:   opts.Broadcast,
		flags:       opts.Flags,
		auditStats:  opts.AuditStats,
		aborter:     opts.Aborter,
		adminToken:  strings.TrimSpace(opts.AdminToken),
		rateLimiter: opts.RateLimiter,
		now:         now,
	}
}

// Register attaches all handlers to the provided mux.
func (h *HandlerSet) Register(mux *http.ServeMux) {
	if mux == nil {
		return
	}
	mux.HandleFunc("/livez", h.LivenessHandler())
	mux.HandleFunc("/readyz", h.ReadinessHandler())
	mux.HandleFunc("/metrics", h.MetricsHandler())
	mux.HandleFunc("/matches/abort", h.AbortHandler())
}

// LivenessHandler reports that the HTTP server is reachable.
func (h *HandlerSet) LivenessHandler() http.HandlerFunc {
	type response struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, response{
			Status:    "alive",
			Timestamp: h.now().UTC().Format(time.RFC3339Nano),
		})
	}
}

// ReadinessHandler reports server readiness, including live session counts.
func (h *HandlerSet) ReadinessHandler() http.HandlerFunc {
	type response struct {
		Status        string  `json:"status"`
		Message       string  `json:"message,omitempty"`
		UptimeSeconds float64 `json:"uptime_seconds"`
		Connections   int     `json:"connections"`
		LiveMatches   int     `json:"live_matches"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		resp := response{Status: "ok"}
		if h.readiness != nil {
			resp.Connections = h.readiness.ConnectionCount()
			resp.UptimeSeconds = h.readiness.Uptime().Seconds()
			if err := h.readiness.StartupError(); err != nil {
				status = http.StatusServiceUnavailable
				resp.Status = "error"
				resp.Message = err.Error()
			}
		}
		if h.sessions != nil {
			resp.LiveMatches = h.sessions().Live
		}
		writeJSON(w, status, resp)
	}
}

// MetricsHandler emits Prometheus compatible text metrics.
func (h *HandlerSet) MetricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")

		if h.readiness != nil {
			fmt.Fprintf(w, "# HELP matchcore_uptime_seconds Server uptime in seconds.\n")
			fmt.Fprintf(w, "# TYPE matchcore_uptime_seconds gauge\n")
			fmt.Fprintf(w, "matchcore_uptime_seconds %.0f\n", h.readiness.Uptime().Seconds())

			fmt.Fprintf(w, "# HELP matchcore_connections Current connected WebSocket clients.\n")
			fmt.Fprintf(w, "# TYPE matchcore_connections gauge\n")
			fmt.Fprintf(w, "matchcore_connections %d\n", h.readiness.ConnectionCount())
		}

		if h.sessions != nil {
			stats := h.sessions()
			fmt.Fprintf(w, "# HELP matchcore_sessions_live Currently simulating match sessions.\n")
			fmt.Fprintf(w, "# TYPE matchcore_sessions_live gauge\n")
			fmt.Fprintf(w, "matchcore_sessions_live %d\n", stats.Live)
			fmt.Fprintf(w, "# HELP matchcore_sessions_started_total Match sessions started since boot.\n")
			fmt.Fprintf(w, "# TYPE matchcore_sessions_started_total counter\n")
			fmt.Fprintf(w, "matchcore_sessions_started_total %d\n", stats.Started)
			fmt.Fprintf(w, "# HELP matchcore_sessions_ended_total Match sessions finalized since boot.\n")
			fmt.Fprintf(w, "# TYPE matchcore_sessions_ended_total counter\n")
			fmt.Fprintf(w, "matchcore_sessions_ended_total %d\n", stats.Ended)

			var accepted, rejected, flagged uint64
			for _, match := range stats.Matches {
				accepted += match.Accepted
				rejected += match.Rejected
				flagged += match.Flagged
			}
			fmt.Fprintf(w, "# HELP matchcore_actions_accepted_total Actions accepted across live matches.\n")
			fmt.Fprintf(w, "# TYPE matchcore_actions_accepted_total counter\n")
			fmt.Fprintf(w, "matchcore_actions_accepted_total %d\n", accepted)
			fmt.Fprintf(w, "# HELP matchcore_actions_rejected_total Actions rejected across live matches.\n")
			fmt.Fprintf(w, "# TYPE matchcore_actions_rejected_total counter\n")
			fmt.Fprintf(w, "matchcore_actions_rejected_total %d\n", rejected)
			fmt.Fprintf(w, "# HELP matchcore_actions_flagged_total Actions flagged across live matches.\n")
			fmt.Fprintf(w, "# TYPE matchcore_actions_flagged_total counter\n")
			fmt.Fprintf(w, "matchcore_actions_flagged_total %d\n", flagged)

			fmt.Fprintf(w, "# HELP matchcore_tick_duration_seconds Average tick processing time per match.\n")
			fmt.Fprintf(w, "# TYPE matchcore_tick_duration_seconds gauge\n")
			for _, match := range stats.Matches {
				fmt.Fprintf(w, "matchcore_tick_duration_seconds{match=%q} %.6f\n", match.MatchID, match.Ticks.Average.Seconds())
			}
			fmt.Fprintf(w, "# HELP matchcore_tick_overruns_total Ticks exceeding their budget per match.\n")
			fmt.Fprintf(w, "# TYPE matchcore_tick_overruns_total counter\n")
			for _, match := range stats.Matches {
				fmt.Fprintf(w, "matchcore_tick_overruns_total{match=%q} %d\n", match.MatchID, match.Ticks.Overruns)
			}
		}

		if h.broadcast != nil {
			counters := h.broadcast()
			fmt.Fprintf(w, "# HELP matchcore_snapshots_published_total Snapshots published by match loops.\n")
			fmt.Fprintf(w, "# TYPE matchcore_snapshots_published_total counter\n")
			fmt.Fprintf(w, "matchcore_snapshots_published_total %d\n", counters.Published)
			fmt.Fprintf(w, "# HELP matchcore_snapshots_delivered_total Snapshots delivered to client queues.\n")
			fmt.Fprintf(w, "# TYPE matchcore_snapshots_delivered_total counter\n")
			fmt.Fprintf(w, "matchcore_snapshots_delivered_total %d\n", counters.Delivered)
			fmt.Fprintf(w, "# HELP matchcore_snapshots_dropped_total Stale snapshots evicted from full queues.\n")
			fmt.Fprintf(w, "# TYPE matchcore_snapshots_dropped_total counter\n")
			fmt.Fprintf(w, "matchcore_snapshots_dropped_total %d\n", counters.Dropped)
		}

		if h.flags != nil {
			if counters := h.flags(); len(counters) > 0 {
				fmt.Fprintf(w, "# HELP matchcore_cheat_flags_total Cheat heuristic flags per player.\n")
				fmt.Fprintf(w, "# TYPE matchcore_cheat_flags_total counter\n")
				for playerID, flags := range counters {
					fmt.Fprintf(w, "matchcore_cheat_flags_total{player=%q} %d\n", playerID, flags.Total())
				}
			}
		}

		if h.auditStats != nil {
			stats := h.auditStats()
			fmt.Fprintf(w, "# HELP matchcore_audit_bundles Audit bundles currently retained on disk.\n")
			fmt.Fprintf(w, "# TYPE matchcore_audit_bundles gauge\n")
			fmt.Fprintf(w, "matchcore_audit_bundles %d\n", stats.Bundles)
			fmt.Fprintf(w, "# HELP matchcore_audit_bytes Total audit bundle size in bytes.\n")
			fmt.Fprintf(w, "# TYPE matchcore_audit_bytes gauge\n")
			fmt.Fprintf(w, "matchcore_audit_bytes %d\n", stats.Bytes)
		}
	}
}

// AbortHandler authorises and voids a running match.
func (h *HandlerSet) AbortHandler() http.HandlerFunc {
	type request struct {
		MatchID string `json:"match_id"`
		Reason  string `json:"reason"`
	}
	type response struct {
		Status  string `json:"status"`
		MatchID string `json:"match_id"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := h.logger.With(
			logging.String("handler", "match_abort"),
			logging.String("remote_addr", r.RemoteAddr),
		)
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if h.adminToken == "" {
			reqLogger.Warn("match abort denied: admin auth disabled")
			http.Error(w, "admin authentication not configured", http.StatusForbidden)
			return
		}
		if !h.authorise(r) {
			reqLogger.Warn("match abort denied: unauthorized request")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if h.rateLimiter != nil && !h.rateLimiter.Allow() {
			reqLogger.Warn("match abort denied: rate limit exceeded")
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		if h.aborter == nil {
			http.Error(w, "match control is unavailable", http.StatusServiceUnavailable)
			return
		}

		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.MatchID) == "" {
			http.Error(w, "match_id is required", http.StatusBadRequest)
			return
		}
		reason := strings.TrimSpace(req.Reason)
		if reason == "" {
			reason = "aborted by operator"
		}
		if err := h.aborter.Abort(req.MatchID, reason); err != nil {
			reqLogger.Warn("match abort failed",
				logging.String("match_id", req.MatchID),
				logging.Error(err),
			)
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		reqLogger.Info("match aborted", logging.String("match_id", req.MatchID))
		writeJSON(w, http.StatusAccepted, response{Status: "aborted", MatchID: req.MatchID})
	}
}

func (h *HandlerSet) authorise(r *http.Request) bool {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	var token string
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		token = strings.TrimSpace(header[7:])
	} else if header != "" {
		token = header
	}
	if token == "" {
		token = strings.TrimSpace(r.Header.Get("X-Admin-Token"))
	}
	if token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.adminToken)) == 1
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}
