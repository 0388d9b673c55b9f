// Package sqlimport выполняет пакетный импорт SQL файлов: дамп
// разбивается на отдельные statements и исполняется последовательно,
// ошибки отдельных statements не прерывают импорт.
package sqlimport

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ruslano69/dbcopilot/pkg/sqlsplit"
)

// maxWarnings - сколько первых предупреждений сохраняется дословно.
// Остальные только считаются, чтобы импорт битого дампа не раздувал
// отчет на тысячи строк.
const maxWarnings = 10

// Executor исполняет один statement. Реализуется dbconn.Connector.
type Executor interface {
	Exec(ctx context.Context, statement string) (int64, error)
}

// Stats - итог импорта одного файла.
type Stats struct {
	Statements int           // всего statements в файле
	Executed   int           // исполнено успешно
	Failed     int           // завершилось ошибкой
	Warnings   []string      // первые предупреждения, не более maxWarnings
	Duration   time.Duration
}

// Summary возвращает однострочный итог для ответа API.
func (s *Stats) Summary() string {
	if s.Failed == 0 {
		return fmt.Sprintf("executed %d statements in %s", s.Executed, s.Duration.Round(time.Millisecond))
	}
	return fmt.Sprintf("executed %d of %d statements, %d failed",
		s.Executed, s.Statements, s.Failed)
}

// Run разбивает содержимое SQL файла на statements и исполняет их
// по одному. Ошибка statement записывается в Warnings и импорт
// продолжается со следующего: частично битый дамп импортируется
// настолько, насколько возможно.
func Run(ctx context.Context, exec Executor, content string) (*Stats, error) {
	statements := sqlsplit.Split(content)
	stats := &Stats{Statements: len(statements)}

	if len(statements) == 0 {
		return stats, fmt.Errorf("no SQL statements found in file")
	}

	start := time.Now()

	for i, stmt := range statements {
		if err := ctx.Err(); err != nil {
			stats.Duration = time.Since(start)
			return stats, err
		}

		if _, err := exec.Exec(ctx, stmt); err != nil {
			stats.Failed++
			if len(stats.Warnings) < maxWarnings {
				stats.Warnings = append(stats.Warnings,
					fmt.Sprintf("statement %d: %v", i+1, err))
			}
			continue
		}
		stats.Executed++
	}

	stats.Duration = time.Since(start)

	log.Info().
		Int("statements", stats.Statements).
		Int("executed", stats.Executed).
		Int("failed", stats.Failed).
		Dur("duration", stats.Duration).
		Msg("sql import finished")

	return stats, nil
}
