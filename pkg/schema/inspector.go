// Package schema интроспектирует схему подключенной БД и кэширует ее
// в локальном SQLite файле. Кэш переживает рестарт процесса и служит
// источником контекста для генерации SQL через LLM.
package schema

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/ruslano69/dbcopilot/pkg/dbconn"
)

// Column - колонка таблицы.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Table - таблица с колонками.
type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// Inspector снимает схему с подключенной БД и хранит снимок в
// локальном SQLite кэше.
type Inspector struct {
	mu    sync.Mutex
	cache *sql.DB
}

// NewInspector открывает (создавая при необходимости) SQLite кэш
// по указанному пути.
func NewInspector(cachePath string) (*Inspector, error) {
	if err := os.MkdirAll(filepath.Dir(cachePath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", cachePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open schema cache: %w", err)
	}

	const ddl = `
		CREATE TABLE IF NOT EXISTS schema_cache (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			table_name TEXT,
			columns_json TEXT,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`
	if _, err := db.Exec(ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema cache: %w", err)
	}

	return &Inspector{cache: db}, nil
}

// Close закрывает кэш.
func (ins *Inspector) Close() error {
	return ins.cache.Close()
}

// Refresh снимает схему с подключенной БД и перезаписывает кэш.
// Кэш хранит схему одного активного подключения: старый снимок
// стирается целиком.
func (ins *Inspector) Refresh(ctx context.Context, conn *dbconn.Connector) (int, error) {
	db := conn.DB()
	if db == nil {
		return 0, dbconn.ErrNotConnected
	}

	tables, err := listTables(ctx, db, conn.DBType())
	if err != nil {
		return 0, fmt.Errorf("schema inspection failed: %w", err)
	}

	snapshot := make([]Table, 0, len(tables))
	for _, name := range tables {
		cols, err := listColumns(ctx, db, conn.DBType(), name)
		if err != nil {
			return 0, fmt.Errorf("schema inspection failed for %s: %w", name, err)
		}
		snapshot = append(snapshot, Table{Name: name, Columns: cols})
	}

	ins.mu.Lock()
	defer ins.mu.Unlock()

	tx, err := ins.cache.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM schema_cache"); err != nil {
		return 0, err
	}
	for _, table := range snapshot {
		raw, err := json.Marshal(table.Columns)
		if err != nil {
			return 0, err
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO schema_cache (table_name, columns_json) VALUES (?, ?)",
			table.Name, string(raw))
		if err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}

	log.Info().Int("tables", len(snapshot)).Str("db_type", conn.DBType()).Msg("schema cached")
	return len(snapshot), nil
}

// Tables возвращает закэшированный снимок схемы.
func (ins *Inspector) Tables(ctx context.Context) ([]Table, error) {
	ins.mu.Lock()
	defer ins.mu.Unlock()

	rows, err := ins.cache.QueryContext(ctx,
		"SELECT table_name, columns_json FROM schema_cache ORDER BY table_name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []Table
	for rows.Next() {
		var name, raw string
		if err := rows.Scan(&name, &raw); err != nil {
			return nil, err
		}
		var cols []Column
		if err := json.Unmarshal([]byte(raw), &cols); err != nil {
			return nil, err
		}
		tables = append(tables, Table{Name: name, Columns: cols})
	}
	return tables, rows.Err()
}

// Summary возвращает текстовое описание схемы для подстановки в
// промпт LLM.
func (ins *Inspector) Summary(ctx context.Context) (string, error) {
	tables, err := ins.Tables(ctx)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, table := range tables {
		cols := make([]string, len(table.Columns))
		for i, c := range table.Columns {
			cols[i] = fmt.Sprintf("%s (%s)", c.Name, c.Type)
		}
		sb.WriteString("Table: " + table.Name + "\n")
		sb.WriteString("Columns: " + strings.Join(cols, ", ") + "\n")
		sb.WriteString("---\n")
	}
	return sb.String(), nil
}

// Stats возвращает число таблиц и суммарное число колонок в кэше.
func (ins *Inspector) Stats(ctx context.Context) (tables, columns int, err error) {
	all, err := ins.Tables(ctx)
	if err != nil {
		return 0, 0, err
	}
	for _, t := range all {
		columns += len(t.Columns)
	}
	return len(all), columns, nil
}

// listTables возвращает имена пользовательских таблиц подключенной БД.
func listTables(ctx context.Context, db *sql.DB, dbType string) ([]string, error) {
	var q string
	switch dbType {
	case "sqlite":
		q = "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name"
	case "postgres":
		q = "SELECT table_name FROM information_schema.tables WHERE table_schema = 'public' AND table_type = 'BASE TABLE' ORDER BY table_name"
	case "mysql":
		q = "SELECT table_name FROM information_schema.tables WHERE table_schema = DATABASE() ORDER BY table_name"
	case "mssql":
		q = "SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_TYPE = 'BASE TABLE' ORDER BY TABLE_NAME"
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}

	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// listColumns возвращает колонки таблицы в порядке объявления.
func listColumns(ctx context.Context, db *sql.DB, dbType, table string) ([]Column, error) {
	if dbType == "sqlite" {
		// PRAGMA не принимает плейсхолдеры; имя получено из
		// sqlite_master этой же БД
		rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", table))
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var cols []Column
		for rows.Next() {
			var (
				cid       int
				name, typ string
				notNull   int
				dfltValue sql.NullString
				pk        int
			)
			if err := rows.Scan(&cid, &name, &typ, &notNull, &dfltValue, &pk); err != nil {
				return nil, err
			}
			cols = append(cols, Column{Name: name, Type: typ})
		}
		return cols, rows.Err()
	}

	var q string
	switch dbType {
	case "postgres":
		q = "SELECT column_name, data_type FROM information_schema.columns WHERE table_schema = 'public' AND table_name = $1 ORDER BY ordinal_position"
	case "mysql":
		q = "SELECT column_name, data_type FROM information_schema.columns WHERE table_schema = DATABASE() AND table_name = ? ORDER BY ordinal_position"
	case "mssql":
		q = "SELECT COLUMN_NAME, DATA_TYPE FROM INFORMATION_SCHEMA.COLUMNS WHERE TABLE_NAME = @p1 ORDER BY ORDINAL_POSITION"
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}

	rows, err := db.QueryContext(ctx, q, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var c Column
		if err := rows.Scan(&c.Name, &c.Type); err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}
