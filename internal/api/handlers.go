package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/ruslano69/dbcopilot/internal/infra"
	"github.com/ruslano69/dbcopilot/pkg/export"
	"github.com/ruslano69/dbcopilot/pkg/history"
	"github.com/ruslano69/dbcopilot/pkg/security"
	"github.com/ruslano69/dbcopilot/pkg/sqlimport"
)

// executeFetchSize is the cursor batch size for the synchronous
// REST execute path. Large results belong on the websocket console;
// this path materialises everything in one response.
const executeFetchSize = 500

// maxImportSize caps uploaded SQL dump size at 50 MB.
const maxImportSize = 50 << 20

type errorResponse struct {
	Error string `json:"error"`
}

type apiHandler struct {
	inf *infra.Infra
}

// handleHealth reports service liveness.
func (h *apiHandler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"service":   "dbcopilot",
		"connected": h.inf.Conn.IsLive(),
	})
}

// handleConnect opens a database connection and refreshes the schema
// cache.
func (h *apiHandler) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConnectionString string `json:"connection_string"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ConnectionString == "" {
		writeError(w, http.StatusBadRequest, "connection string required")
		return
	}

	if err := h.inf.Conn.Connect(r.Context(), req.ConnectionString); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"message": err.Error(),
		})
		return
	}

	if _, err := h.inf.Inspector.Refresh(r.Context(), h.inf.Conn); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "Connected, but schema failed: " + err.Error(),
		})
		return
	}

	tables, columns, err := h.inf.Inspector.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"message":      "Connected successfully",
		"table_count":  tables,
		"column_count": columns,
	})
}

// handleGenerate turns a natural-language question into SQL via the
// configured LLM.
func (h *apiHandler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Question == "" {
		writeError(w, http.StatusBadRequest, "question required")
		return
	}

	summary, err := h.inf.Inspector.Summary(r.Context())
	if err != nil || summary == "" {
		writeError(w, http.StatusBadRequest, "no schema found, connect to a database first")
		return
	}

	dbType := h.inf.Conn.DBType()
	if dbType == "" {
		dbType = "SQL"
	}

	suggestion, err := h.inf.Generator.GenerateSQL(r.Context(), req.Question, summary, dbType)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to generate SQL: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, suggestion)
}

// handleExecute runs a statement synchronously and returns the full
// result set. Every outcome is recorded in the history journal.
func (h *apiHandler) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SQL      string `json:"sql"`
		Question string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SQL == "" {
		writeError(w, http.StatusBadRequest, "sql query required")
		return
	}

	if verdict := security.Validate(req.SQL); !verdict.Allowed {
		msg := "Safety Warning: " + verdict.Reason
		h.inf.History.Add(r.Context(), history.Record{
			Question:    req.Question,
			SQL:         req.SQL,
			Status:      history.StatusBlocked,
			ErrorDetail: msg,
		})
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   msg,
		})
		return
	}

	start := time.Now()
	cur, err := h.inf.Conn.OpenCursor(r.Context(), req.SQL)
	if err != nil {
		h.inf.History.Add(r.Context(), history.Record{
			Question:    req.Question,
			SQL:         req.SQL,
			Status:      history.StatusError,
			ElapsedMs:   elapsedMs(start),
			ErrorDetail: err.Error(),
		})
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	defer cur.Close()

	rows := make([][]any, 0)
	for {
		batch, err := cur.FetchMany(executeFetchSize)
		if err != nil {
			h.inf.History.Add(r.Context(), history.Record{
				Question:    req.Question,
				SQL:         req.SQL,
				Status:      history.StatusError,
				ElapsedMs:   elapsedMs(start),
				ErrorDetail: err.Error(),
			})
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"success": false,
				"error":   err.Error(),
			})
			return
		}
		if len(batch) == 0 {
			break
		}
		rows = append(rows, batch...)
	}

	elapsed := elapsedMs(start)
	h.inf.History.Add(r.Context(), history.Record{
		Question:  req.Question,
		SQL:       req.SQL,
		Status:    history.StatusSuccess,
		ElapsedMs: elapsed,
		RowCount:  int64(len(rows)),
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"success":           true,
		"columns":           cur.Columns(),
		"rows":              rows,
		"row_count":         len(rows),
		"execution_time_ms": elapsed,
	})
}

// handleHistory returns the most recent journal records.
func (h *apiHandler) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	records, err := h.inf.History.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if records == nil {
		records = []history.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

// handleTables returns the cached schema snapshot.
func (h *apiHandler) handleTables(w http.ResponseWriter, r *http.Request) {
	tables, err := h.inf.Inspector.Tables(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": tables})
}

// handleImport executes an uploaded SQL dump statement by statement.
func (h *apiHandler) handleImport(w http.ResponseWriter, r *http.Request) {
	if !h.inf.Conn.IsLive() {
		writeError(w, http.StatusBadRequest, "not connected to database")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxImportSize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	stats, err := sqlimport.Run(r.Context(), h.inf.Conn, string(body))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Схема могла измениться
	if _, err := h.inf.Inspector.Refresh(r.Context(), h.inf.Conn); err != nil {
		log.Warn().Err(err).Msg("schema refresh after import failed")
	}

	// Ошибки отдельных statements не делают импорт неуспешным:
	// цикл дошел до конца, частичный результат применен, детали
	// в warnings
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"message":    stats.Summary(),
		"statements": stats.Statements,
		"executed":   stats.Executed,
		"failed":     stats.Failed,
		"warnings":   stats.Warnings,
	})
}

// handleExport streams a table in the requested format.
// Query params: format=csv|sql|xlsx (default csv), compress=true.
func (h *apiHandler) handleExport(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	format := r.URL.Query().Get("format")
	if format == "" {
		format = export.FormatCSV
	}
	compress := r.URL.Query().Get("compress") == "true"

	if !export.ValidTableName(table) {
		writeError(w, http.StatusBadRequest, "invalid table name")
		return
	}
	if !h.inf.Conn.IsLive() {
		writeError(w, http.StatusBadRequest, "not connected to database")
		return
	}

	filename := table + "." + format
	contentType := "text/csv"
	switch format {
	case export.FormatSQL:
		contentType = "application/sql"
	case export.FormatXLSX:
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	if compress && format != export.FormatXLSX {
		filename += ".zst"
		contentType = "application/zstd"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)

	exp := export.New(h.inf.Conn)
	if err := exp.Export(r.Context(), w, table, format, compress); err != nil {
		// Заголовки уже могли уйти; клиент увидит оборванный файл
		log.Error().Str("table", table).Err(err).Msg("export failed")
	}
}

func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
