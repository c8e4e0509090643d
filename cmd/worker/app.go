package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"chargewatch-backend/internal/analytics"
	"chargewatch-backend/internal/bus"
)

type app struct {
	anomalies    analytics.AnomalyStore
	scorer       *analytics.ReliabilityScorer
	orchestrator *analytics.Orchestrator
	publisher    *bus.Publisher
	logger       *slog.Logger
	runTimeout   time.Duration
}

func (a *app) runTicker(ctx context.Context, interval time.Duration, run func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, a.runTimeout)
			run(runCtx)
			cancel()
		case <-ctx.Done():
			return
		}
	}
}

func (a *app) runReliability(ctx context.Context) {
	if err := a.scorer.CalculateAllStations(ctx); err != nil {
		a.logger.Error("reliability batch failed", slog.String("error", err.Error()))
		return
	}
	_ = a.publisher.Publish("analytics.reliability.updated", map[string]any{
		"finishedAt": time.Now().UTC(),
	})
}

func (a *app) runDetection(ctx context.Context) {
	summary, err := a.orchestrator.RunAll(ctx)
	if err != nil {
		a.logger.Error("anomaly batch failed", slog.String("error", err.Error()))
		return
	}
	_ = a.publisher.Publish("analytics.anomalies.detected", map[string]any{
		"stations":   summary.Stations,
		"detected":   summary.Detected,
		"failed":     summary.Failed,
		"finishedAt": time.Now().UTC(),
	})
}

func (a *app) runResolution(ctx context.Context) {
	resolved, err := a.orchestrator.ResolveSweep(ctx)
	if err != nil {
		a.logger.Error("resolution sweep failed", slog.String("error", err.Error()))
		return
	}
	_ = a.publisher.Publish("analytics.anomalies.resolved", map[string]any{
		"resolved":   resolved,
		"finishedAt": time.Now().UTC(),
	})
}

func (a *app) startAdminServer(port string) {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	r.Post("/run/reliability", a.handleRun(a.runReliability))
	r.Post("/run/anomalies", a.handleRun(a.runDetection))
	r.Post("/run/resolve", a.handleRun(a.runResolution))
	r.Get("/anomalies/open", a.handleOpenAnomalies)

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       30 * time.Second,
	}
	a.logger.Info("analytics admin server listening", slog.String("port", port))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		a.logger.Error("admin server error", slog.String("error", err.Error()))
	}
}

func (a *app) handleRun(run func(context.Context)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), a.runTimeout)
		defer cancel()
		run(ctx)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	}
}

type anomalyResponse struct {
	ID            string     `json:"id"`
	StationID     string     `json:"stationId"`
	Type          string     `json:"type"`
	SubKey        string     `json:"subKey,omitempty"`
	Description   string     `json:"description"`
	Severity      string     `json:"severity"`
	SeverityScore float64    `json:"severityScore"`
	DetectedAt    time.Time  `json:"detectedAt"`
	LastChecked   time.Time  `json:"lastChecked"`
	ResolvedAt    *time.Time `json:"resolvedAt,omitempty"`
}

// handleOpenAnomalies lists unresolved anomalies with optional type and
// severity filters. Unknown filter values yield an empty list, not an error.
func (a *app) handleOpenAnomalies(w http.ResponseWriter, r *http.Request) {
	typeFilter := r.URL.Query().Get("type")
	severityFilter := r.URL.Query().Get("severity")

	results := []anomalyResponse{}
	var wantType analytics.AnomalyType
	var wantSeverity analytics.Severity
	validFilters := true
	if typeFilter != "" {
		var ok bool
		wantType, ok = analytics.ParseAnomalyType(typeFilter)
		validFilters = validFilters && ok
	}
	if severityFilter != "" {
		var ok bool
		wantSeverity, ok = analytics.ParseSeverity(severityFilter)
		validFilters = validFilters && ok
	}
	if !validFilters {
		writeJSON(w, http.StatusOK, results)
		return
	}

	open, err := a.anomalies.AllUnresolved(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	for _, anomaly := range open {
		if wantType != "" && anomaly.Type != wantType {
			continue
		}
		if wantSeverity != "" && anomaly.Severity != wantSeverity {
			continue
		}
		results = append(results, anomalyResponse{
			ID:            anomaly.ID,
			StationID:     anomaly.StationID,
			Type:          string(anomaly.Type),
			SubKey:        anomaly.SubKey,
			Description:   anomaly.Description,
			Severity:      string(anomaly.Severity),
			SeverityScore: anomaly.SeverityScore,
			DetectedAt:    anomaly.DetectedAt,
			LastChecked:   anomaly.LastChecked,
			ResolvedAt:    anomaly.ResolvedAt,
		})
	}
	writeJSON(w, http.StatusOK, results)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
