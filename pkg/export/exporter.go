// Package export выгружает содержимое таблицы в CSV, SQL дамп или
// XLSX. Выгрузка идет батчами через курсор, чтобы большая таблица
// не собиралась в памяти целиком.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"

	"github.com/ruslano69/dbcopilot/pkg/dbconn"
)

// Форматы выгрузки
const (
	FormatCSV  = "csv"
	FormatSQL  = "sql"
	FormatXLSX = "xlsx"
)

// batchSize - строк на одно чтение курсора при выгрузке.
const batchSize = 500

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidTableName проверяет, что имя таблицы - простой идентификатор.
// Имя подставляется в SQL текстом, плейсхолдеры для идентификаторов
// не работают.
func ValidTableName(name string) bool {
	return identRe.MatchString(name)
}

// Exporter выгружает таблицы подключенной БД.
type Exporter struct {
	conn *dbconn.Connector
}

// New создает экспортер поверх подключения.
func New(conn *dbconn.Connector) *Exporter {
	return &Exporter{conn: conn}
}

// Export выгружает таблицу в указанном формате в w.
// При compress=true поток дополнительно сжимается zstd
// (XLSX не сжимается: формат уже упакован).
func (e *Exporter) Export(ctx context.Context, w io.Writer, table, format string, compress bool) error {
	if !ValidTableName(table) {
		return fmt.Errorf("invalid table name: %s", table)
	}

	if compress && format != FormatXLSX {
		enc, err := zstd.NewWriter(w, zstd.WithEncoderConcurrency(4))
		if err != nil {
			return fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		defer enc.Close()
		w = enc
	}

	start := time.Now()
	var (
		rows int64
		err  error
	)

	switch format {
	case FormatCSV:
		rows, err = e.exportCSV(ctx, w, table)
	case FormatSQL:
		rows, err = e.exportSQL(ctx, w, table)
	case FormatXLSX:
		rows, err = e.exportXLSX(ctx, w, table)
	default:
		return fmt.Errorf("unsupported export format: %s", format)
	}
	if err != nil {
		return err
	}

	log.Info().
		Str("table", table).
		Str("format", format).
		Int64("rows", rows).
		Dur("duration", time.Since(start)).
		Msg("table exported")
	return nil
}

func (e *Exporter) openTable(ctx context.Context, table string) (*dbconn.Cursor, error) {
	return e.conn.OpenCursor(ctx, fmt.Sprintf("SELECT * FROM %s", table))
}

func (e *Exporter) exportCSV(ctx context.Context, w io.Writer, table string) (int64, error) {
	cur, err := e.openTable(ctx, table)
	if err != nil {
		return 0, err
	}
	defer cur.Close()

	cw := csv.NewWriter(w)
	if err := cw.Write(cur.Columns()); err != nil {
		return 0, err
	}

	var total int64
	for {
		batch, err := cur.FetchMany(batchSize)
		if err != nil {
			return total, err
		}
		if len(batch) == 0 {
			break
		}
		for _, row := range batch {
			record := make([]string, len(row))
			for i, v := range row {
				record[i] = formatValue(v)
			}
			if err := cw.Write(record); err != nil {
				return total, err
			}
		}
		total += int64(len(batch))
	}

	cw.Flush()
	return total, cw.Error()
}

func (e *Exporter) exportSQL(ctx context.Context, w io.Writer, table string) (int64, error) {
	cur, err := e.openTable(ctx, table)
	if err != nil {
		return 0, err
	}
	defer cur.Close()

	columns := cur.Columns()
	header := fmt.Sprintf("-- Dump of table %s\n-- Generated by dbcopilot at %s\n\n",
		table, time.Now().UTC().Format(time.RFC3339))
	if _, err := io.WriteString(w, header); err != nil {
		return 0, err
	}

	var total int64
	for {
		batch, err := cur.FetchMany(batchSize)
		if err != nil {
			return total, err
		}
		if len(batch) == 0 {
			break
		}
		for _, row := range batch {
			values := make([]string, len(row))
			for i, v := range row {
				values[i] = sqlLiteral(v)
			}
			stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s);\n",
				table, strings.Join(columns, ", "), strings.Join(values, ", "))
			if _, err := io.WriteString(w, stmt); err != nil {
				return total, err
			}
		}
		total += int64(len(batch))
	}
	return total, nil
}

func (e *Exporter) exportXLSX(ctx context.Context, w io.Writer, table string) (int64, error) {
	cur, err := e.openTable(ctx, table)
	if err != nil {
		return 0, err
	}
	defer cur.Close()

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Sheet1"
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return 0, err
	}

	columns := cur.Columns()
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
	})

	header := make([]any, len(columns))
	for i, c := range columns {
		header[i] = excelize.Cell{StyleID: headerStyle, Value: c}
	}
	if err := sw.SetRow("A1", header); err != nil {
		return 0, err
	}

	var total int64
	rowNum := 2
	for {
		batch, err := cur.FetchMany(batchSize)
		if err != nil {
			return total, err
		}
		if len(batch) == 0 {
			break
		}
		for _, row := range batch {
			cell, _ := excelize.CoordinatesToCellName(1, rowNum)
			if err := sw.SetRow(cell, row); err != nil {
				return total, err
			}
			rowNum++
		}
		total += int64(len(batch))
	}

	if err := sw.Flush(); err != nil {
		return total, err
	}
	return total, f.Write(w)
}

// formatValue приводит значение колонки к строке для CSV.
func formatValue(v any) string {
	if v == nil {
		return ""
	}
	if t, ok := v.(time.Time); ok {
		return t.Format(time.RFC3339)
	}
	return fmt.Sprint(v)
}

// sqlLiteral приводит значение к SQL литералу для дампа.
func sqlLiteral(v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(t, "'", "''") + "'"
	case time.Time:
		return "'" + t.Format("2006-01-02 15:04:05") + "'"
	case bool:
		if t {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprint(t)
	}
}
