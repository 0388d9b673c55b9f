package console

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/ruslano69/dbcopilot/pkg/query"
)

// bridge перекачивает события одного запроса из раннера в websocket.
//
// Канал раннера имеет емкость 1: следующий батч не извлекается из БД,
// пока предыдущий не записан в сокет. Так память процесса ограничена
// двумя батчами на запрос независимо от размера результата.
type bridge struct {
	session   *Session
	queryID   string
	statement string
	entry     *query.Entry
}

func (b *bridge) run(ctx context.Context) {
	s := b.session

	// Exactly-once: снятие с учета по любому из путей завершения
	defer func() {
		s.deps.Registry.Remove(b.queryID)
		b.entry.Finish()
		s.forget(b.queryID)
		activeQueries.Dec()
	}()

	if err := s.send(OutMessage{
		Type:    TypeQueryProgress,
		Payload: QueryProgressPayload{QueryID: b.queryID, Status: "running"},
	}); err != nil {
		// Канал уже мертв: исполнение не начинаем
		return
	}

	events := s.deps.Runner.Stream(ctx, connProvider{s.deps.Conn}, b.statement, b.entry.Cancel)

	var (
		rowsSent    int64
		terminal    bool
		channelGone bool
	)

	for ev := range events {
		switch {
		case ev.Batch != nil:
			if channelGone {
				// Доставлять некому; дочитываем канал, чтобы
				// воркер раннера завершился и курсор закрылся
				continue
			}
			err := s.send(OutMessage{
				Type: TypeQueryRows,
				Payload: QueryRowsPayload{
					QueryID: b.queryID,
					Columns: ev.Batch.Columns,
					Rows:    ev.Batch.Rows,
				},
			})
			if err != nil {
				channelGone = true
				continue
			}
			n := int64(len(ev.Batch.Rows))
			rowsSent += n
			rowsStreamedTotal.Add(float64(n))

		case ev.Done != nil:
			// Терминальный исход учитывается даже после разрыва
			// канала: журнал и публикация не зависят от доставки
			terminal = true
			if !channelGone {
				stats := QueryStats{ElapsedMs: ev.Done.ElapsedMs, TotalRows: ev.Done.TotalRows}
				if err := s.send(OutMessage{
					Type:    TypeQueryDone,
					Payload: QueryDonePayload{QueryID: b.queryID, Stats: stats},
				}); err != nil {
					channelGone = true
				}
			}
			status := "success"
			if b.entry.Cancel.IsSet() {
				status = "canceled"
			}
			log.Info().
				Str("query_id", b.queryID).
				Int64("total_rows", ev.Done.TotalRows).
				Float64("elapsed_ms", ev.Done.ElapsedMs).
				Str("status", status).
				Msg("query finished")
			b.notify(ctx, status, ev.Done, "")

		case ev.Err != nil:
			terminal = true
			queriesFailedTotal.Inc()
			log.Warn().Str("query_id", b.queryID).Err(ev.Err).Msg("query failed")
			if !channelGone {
				if err := s.send(OutMessage{
					Type:    TypeQueryError,
					Payload: QueryErrorPayload{QueryID: b.queryID, Message: ev.Err.Error()},
				}); err != nil {
					channelGone = true
				}
			}
			b.notify(ctx, "error", nil, ev.Err.Error())
		}
	}

	// Отмена до старта: раннер закрывает канал без единого события,
	// но каждый принятый запрос обязан получить терминальное сообщение
	if !terminal && !channelGone {
		_ = s.send(OutMessage{
			Type:    TypeQueryDone,
			Payload: QueryDonePayload{QueryID: b.queryID, Stats: QueryStats{}},
		})
		b.notify(ctx, "canceled", &query.Summary{}, "")
	}
}

func (b *bridge) notify(ctx context.Context, status string, summary *query.Summary, errMsg string) {
	if b.session.deps.Results != nil {
		b.session.deps.Results(ctx, b.queryID, b.statement, status, summary, errMsg)
	}
}
