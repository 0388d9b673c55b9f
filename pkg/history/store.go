// Package history хранит журнал выполненных запросов в локальном
// SQLite файле: вопрос пользователя, сгенерированный SQL, статус и
// метрики исполнения.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/ruslano69/dbcopilot/pkg/security"
)

// Статусы записей журнала
const (
	StatusSuccess  = "success"
	StatusBlocked  = "blocked"
	StatusError    = "error"
	StatusCanceled = "canceled"
)

// Record - одна запись журнала.
type Record struct {
	ID          int64     `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	User        string    `json:"user"`
	Question    string    `json:"question,omitempty"`
	SQL         string    `json:"sql"`
	Status      string    `json:"status"`
	ElapsedMs   float64   `json:"executionTimeMs"`
	RowCount    int64     `json:"rowCount"`
	ErrorDetail string    `json:"errorMessage,omitempty"`
}

// Store - журнал запросов поверх SQLite.
type Store struct {
	db *sql.DB
}

// NewStore открывает журнал по указанному пути, создавая файл и
// таблицу при необходимости.
func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history db: %w", err)
	}

	const ddl = `
		CREATE TABLE IF NOT EXISTS query_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			username TEXT,
			question TEXT,
			sql_text TEXT,
			status TEXT,
			execution_time_ms REAL,
			row_count INTEGER,
			error_message TEXT
		)`
	if _, err := db.Exec(ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init history db: %w", err)
	}

	return &Store{db: db}, nil
}

// Close закрывает журнал.
func (s *Store) Close() error {
	return s.db.Close()
}

// Add записывает исход одного запроса. Атрибуция пользователя
// берется из окружения процесса. Ошибка журналирования логируется,
// но не возвращается: журнал не должен ронять основной поток.
func (s *Store) Add(ctx context.Context, rec Record) {
	if rec.User == "" {
		rec.User = security.CurrentUser()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO query_history
			(username, question, sql_text, status, execution_time_ms, row_count, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.User, rec.Question, rec.SQL, rec.Status, rec.ElapsedMs, rec.RowCount, rec.ErrorDetail)
	if err != nil {
		log.Error().Err(err).Msg("failed to log query history")
	}
}

// Recent возвращает последние записи журнала, новые первыми.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, username, question, sql_text, status,
		       execution_time_ms, row_count, COALESCE(error_message, '')
		FROM query_history
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.User, &rec.Question,
			&rec.SQL, &rec.Status, &rec.ElapsedMs, &rec.RowCount, &rec.ErrorDetail)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
