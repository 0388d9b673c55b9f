// Package query реализует потоковое исполнение SQL запросов: блокирующий
// курсор БД превращается в последовательность ограниченных батчей с
// проверкой кооперативной отмены между батчами.
package query

import (
	"context"
	"errors"
	"time"
)

// ErrNoConnection возвращается если на момент запуска нет живого
// подключения к БД.
var ErrNoConnection = errors.New("database not connected")

// Conn - минимальный контракт провайдера подключения.
// Реализуется dbconn.Connector (через адаптер в pkg/console).
type Conn interface {
	IsLive() bool
	OpenCursor(ctx context.Context, statement string) (Cursor, error)
}

// Cursor - открытый результат одного statement.
type Cursor interface {
	// Columns - имена колонок; пустой срез если строк нет
	Columns() []string

	// HasRows - возвращает ли statement строки
	HasRows() bool

	// FetchMany читает до n строк; пустой батч означает исчерпание
	FetchMany(n int) ([][]any, error)

	// RowsAffected - количество затронутых строк для statement
	// без результата
	RowsAffected() int64

	Close() error
}

// RowBatch - один батч строк результата.
// Columns захватываются один раз на запрос и повторяются в каждом батче
// (протокол queryRows несет колонки в каждом сообщении).
type RowBatch struct {
	Columns []string
	Rows    [][]any
}

// Summary - итог исполнения: время с момента запуска statement и
// суммарное число строк (частичное при отмене).
type Summary struct {
	ElapsedMs float64
	TotalRows int64
}

// Event - один элемент потока раннера.
// Ровно одно из трех полей не nil. Err терминален: после него нет Done.
type Event struct {
	Batch *RowBatch
	Done  *Summary
	Err   error
}

// Runner исполняет statement и стримит результат батчами.
type Runner struct {
	batchSize int
}

// DefaultBatchSize - размер батча если не задан в конфиге.
const DefaultBatchSize = 100

// NewRunner создает раннер с заданным размером батча.
func NewRunner(batchSize int) *Runner {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Runner{batchSize: batchSize}
}

// Stream запускает исполнение statement в отдельной worker горутине и
// возвращает канал событий.
//
// Канал емкостью 1 - это и есть backpressure: worker блокируется на
// отправке следующего батча, пока потребитель не забрал предыдущий.
// Быстрая БД замедляется до темпа канала доставки, память ограничена
// одним батчем в полете.
//
// Гарантии:
//   - отмена до старта: канал закрывается без единого события
//   - ошибка открытия/чтения: ровно одно событие Err, без Done
//   - иначе: ноль или больше Batch, затем ровно один Done
//   - после закрытия канала событий больше не будет
//
// Последовательность неперезапускаемая: повторный Stream заново исполняет
// statement против БД.
func (r *Runner) Stream(ctx context.Context, conn Conn, statement string, cancel *CancelFlag) <-chan Event {
	out := make(chan Event, 1)

	go func() {
		defer close(out)

		if conn == nil || !conn.IsLive() {
			r.emit(ctx, out, Event{Err: ErrNoConnection})
			return
		}

		// Отмена до старта - полный no-op, не ошибка
		if cancel.IsSet() {
			return
		}

		start := time.Now()

		cur, err := conn.OpenCursor(ctx, statement)
		if err != nil {
			r.emit(ctx, out, Event{Err: err})
			return
		}
		defer cur.Close()

		var totalRows int64

		if cur.HasRows() {
			// Колонки захватываются один раз
			columns := cur.Columns()

			for {
				// Точка проверки отмены: между батчами, не внутри fetch
				if cancel.IsSet() {
					break
				}

				batch, err := cur.FetchMany(r.batchSize)
				if err != nil {
					r.emit(ctx, out, Event{Err: err})
					return
				}
				if len(batch) == 0 {
					break
				}

				totalRows += int64(len(batch))
				if !r.emit(ctx, out, Event{Batch: &RowBatch{Columns: columns, Rows: batch}}) {
					return
				}
			}
		} else {
			// Не-SELECT сюда попадать не должен (safety gate), но
			// раннер обрабатывает этот случай без паники
			totalRows = cur.RowsAffected()
		}

		// Отмена разрешается как Done с частичным счетчиком, не ошибка
		r.emit(ctx, out, Event{Done: &Summary{
			ElapsedMs: float64(time.Since(start).Microseconds()) / 1000.0,
			TotalRows: totalRows,
		}})
	}()

	return out
}

// emit отправляет событие, не зависая навсегда если потребитель исчез.
func (r *Runner) emit(ctx context.Context, out chan<- Event, ev Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
