package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/ruslano69/dbcopilot/internal/infra"
	"github.com/ruslano69/dbcopilot/pkg/console"
	"github.com/ruslano69/dbcopilot/pkg/history"
	"github.com/ruslano69/dbcopilot/pkg/query"
	"github.com/ruslano69/dbcopilot/pkg/resultlog"
)

// NewRouter wires all dependencies and returns the chi router.
func NewRouter(cfg *infra.Config, inf *infra.Infra) http.Handler {
	r := chi.NewRouter()

	r.Use(zerologMiddleware)
	r.Use(middleware.Recoverer)

	h := &apiHandler{inf: inf}

	// REST endpoints get a request timeout; the websocket console
	// and metrics scrape do not.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Get("/api/health", h.handleHealth)
		r.Post("/api/connect", h.handleConnect)
		r.Post("/api/query/generate", h.handleGenerate)
		r.Post("/api/query/execute", h.handleExecute)
		r.Get("/api/query-history", h.handleHistory)
		r.Get("/api/tables", h.handleTables)
		r.Post("/api/import", h.handleImport)
		r.Get("/api/export/{table}", h.handleExport)
	})

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", console.Handler(console.Deps{
		Conn:               inf.Conn,
		Registry:           inf.Registry,
		Runner:             inf.Runner,
		Results:            resultHook(inf),
		CancelOnDisconnect: cfg.Server.CancelOnDisconnect,
	}))

	return r
}

// resultHook records console query outcomes in the history journal
// and, when configured, publishes them to Redis.
func resultHook(inf *infra.Infra) console.ResultHook {
	return func(ctx context.Context, queryID, sql, status string, summary *query.Summary, errMsg string) {
		rec := history.Record{SQL: sql, Status: status, ErrorDetail: errMsg}
		if summary != nil {
			rec.ElapsedMs = summary.ElapsedMs
			rec.RowCount = summary.TotalRows
		}
		inf.History.Add(ctx, rec)

		if inf.Results == nil {
			return
		}
		result := resultlog.QueryResult{QueryID: queryID, Status: status}
		if summary != nil {
			result.DurationMs = summary.ElapsedMs
			result.TotalRows = summary.TotalRows
		}
		if errMsg != "" {
			result.Error = &errMsg
		}
		if err := inf.Results.Publish(ctx, result); err != nil {
			log.Warn().Str("query_id", queryID).Err(err).Msg("result publish failed")
		}
	}
}
