package console

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// queriesStartedTotal считает принятые к исполнению запросы.
	queriesStartedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dbcopilot_queries_started_total",
		Help: "Total number of queries accepted for streaming execution",
	})

	// queriesBlockedTotal считает запросы, отклоненные safety валидатором.
	queriesBlockedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dbcopilot_queries_blocked_total",
		Help: "Total number of queries rejected by the read-only safety gate",
	})

	// queriesCanceledTotal считает принятые запросы на отмену.
	queriesCanceledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dbcopilot_queries_canceled_total",
		Help: "Total number of acknowledged cancel requests",
	})

	// queriesFailedTotal считает запросы, завершившиеся ошибкой исполнения.
	queriesFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dbcopilot_queries_failed_total",
		Help: "Total number of queries that terminated with an execution error",
	})

	// rowsStreamedTotal считает строки, доставленные клиентам.
	rowsStreamedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dbcopilot_rows_streamed_total",
		Help: "Total number of result rows delivered over the websocket channel",
	})

	// activeQueries - число запросов в реестре прямо сейчас.
	activeQueries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dbcopilot_active_queries",
		Help: "Number of currently executing streamed queries",
	})
)
