// Package dbconn управляет подключением к целевой БД и выдает курсоры
// для построчного чтения результатов.
//
// Один Connector держит одно живое подключение (пул database/sql).
// Повторный Connect закрывает предыдущее подключение - инструмент
// однопользовательский, сессий на пользователя нет.
package dbconn

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "github.com/denisenkom/go-mssqldb"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// ErrNotConnected возвращается операциями, требующими живого подключения.
var ErrNotConnected = errors.New("not connected to database")

// Connector - подключение к целевой БД.
type Connector struct {
	mu     sync.RWMutex
	db     *sql.DB
	dbType string
	dsn    string
}

// New создает Connector без подключения.
func New() *Connector {
	return &Connector{}
}

// Connect разбирает connection string, открывает подключение и проверяет
// его ping-ом. Предыдущее подключение (если было) закрывается.
func (c *Connector) Connect(ctx context.Context, rawDSN string) error {
	info, err := ParseDSN(rawDSN)
	if err != nil {
		return err
	}

	db, err := sql.Open(info.Driver, info.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("connection failed: %w", err)
	}

	c.mu.Lock()
	old := c.db
	c.db = db
	c.dbType = info.DBType
	c.dsn = info.DSN
	c.mu.Unlock()

	if old != nil {
		old.Close()
	}

	log.Info().Str("db_type", info.DBType).Msg("connected to database")
	return nil
}

// Close закрывает подключение. Повторный Close безопасен.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	c.dbType = ""
	return err
}

// IsLive сообщает есть ли активное подключение.
// Не пингует БД - дешевая проверка перед выдачей курсора.
func (c *Connector) IsLive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.db != nil
}

// Ping проверяет что подключение действительно живое.
func (c *Connector) Ping(ctx context.Context) error {
	c.mu.RLock()
	db := c.db
	c.mu.RUnlock()

	if db == nil {
		return ErrNotConnected
	}
	return db.PingContext(ctx)
}

// DBType возвращает тип подключенной СУБД ("postgres", "mysql", "mssql",
// "sqlite") или пустую строку если подключения нет.
func (c *Connector) DBType() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dbType
}

// DB возвращает *sql.DB для прямого доступа (history, schema inspector).
// nil если подключения нет.
func (c *Connector) DB() *sql.DB {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.db
}

// OpenCursor исполняет statement и возвращает курсор для батчевого
// чтения строк. Вызывающая сторона обязана закрыть курсор.
func (c *Connector) OpenCursor(ctx context.Context, statement string) (*Cursor, error) {
	c.mu.RLock()
	db := c.db
	c.mu.RUnlock()

	if db == nil {
		return nil, ErrNotConnected
	}

	rows, err := db.QueryContext(ctx, statement)
	if err != nil {
		return nil, err
	}

	columns, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, err
	}

	return &Cursor{rows: rows, columns: columns}, nil
}

// Exec исполняет statement без чтения строк (DDL/DML при импорте).
// Возвращает количество затронутых строк, если драйвер его сообщает.
func (c *Connector) Exec(ctx context.Context, statement string) (int64, error) {
	c.mu.RLock()
	db := c.db
	c.mu.RUnlock()

	if db == nil {
		return 0, ErrNotConnected
	}

	res, err := db.ExecContext(ctx, statement)
	if err != nil {
		return 0, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		// Не все драйверы сообщают rows affected - не ошибка
		return 0, nil
	}
	return affected, nil
}
