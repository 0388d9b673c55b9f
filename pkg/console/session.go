package console

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/ruslano69/dbcopilot/pkg/dbconn"
	"github.com/ruslano69/dbcopilot/pkg/query"
	"github.com/ruslano69/dbcopilot/pkg/security"
)

// ResultHook вызывается на каждом терминальном исходе запроса
// (done / canceled / error). summary == nil при ошибке исполнения.
// Опциональна: используется для журнала истории и публикации
// результатов в Redis.
type ResultHook func(ctx context.Context, queryID, sql, status string, summary *query.Summary, errMsg string)

// Deps - зависимости websocket консоли.
type Deps struct {
	Conn     *dbconn.Connector
	Registry *query.Registry
	Runner   *query.Runner

	// Results - опциональный hook терминальных исходов
	Results ResultHook

	// CancelOnDisconnect: взводить флаг отмены всех запросов сессии
	// при разрыве канала. По умолчанию выключено - начатая работа
	// в БД доводится до конца, доставлять результат уже некому.
	CancelOnDisconnect bool
}

// connProvider адаптирует *dbconn.Connector к query.Conn.
type connProvider struct {
	c *dbconn.Connector
}

var (
	_ query.Conn   = connProvider{}
	_ query.Cursor = (*dbconn.Cursor)(nil)
)

func (p connProvider) IsLive() bool { return p.c.IsLive() }

func (p connProvider) OpenCursor(ctx context.Context, statement string) (query.Cursor, error) {
	cur, err := p.c.OpenCursor(ctx, statement)
	if err != nil {
		return nil, err
	}
	return cur, nil
}

// Session - одно websocket подключение SQL консоли.
//
// Горутина Run владеет чтением из сокета. Запись сериализуется через
// writeMu: мосты исполнения пишут из своих горутин, gorilla/websocket
// допускает только одного конкурентного писателя.
type Session struct {
	id   string
	conn *websocket.Conn
	deps Deps

	writeMu sync.Mutex

	// owned - запросы, запущенные этой сессией (для cleanup при разрыве)
	mu    sync.Mutex
	owned map[string]struct{}

	bridges sync.WaitGroup
}

// NewSession оборачивает принятое websocket подключение.
func NewSession(conn *websocket.Conn, deps Deps) *Session {
	return &Session{
		id:    uuid.NewString(),
		conn:  conn,
		deps:  deps,
		owned: make(map[string]struct{}),
	}
}

// Run крутит цикл чтения входящих сообщений до разрыва канала.
// Блокируется до завершения всех мостов этой сессии.
func (s *Session) Run(ctx context.Context) {
	log.Info().Str("connection_id", s.id).Msg("websocket connected")

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			log.Info().Str("connection_id", s.id).Err(err).Msg("websocket disconnected")
			break
		}
		s.dispatch(ctx, data)
	}

	s.cleanup()

	// Дожидаемся мостов: без CancelOnDisconnect начатое исполнение
	// продолжается до конца, результаты уходят в никуда
	s.bridges.Wait()
}

// dispatch разбирает и обрабатывает одно входящее сообщение.
// Некорректные сообщения логируются и игнорируются - канал не падает.
func (s *Session) dispatch(ctx context.Context, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Str("connection_id", s.id).Err(err).Msg("malformed message ignored")
		return
	}

	switch env.Type {
	case TypePing:
		s.send(OutMessage{Type: TypePong, RequestID: env.RequestID, Payload: struct{}{}})

	case TypeRunQuery:
		var p RunQueryPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			log.Warn().Str("connection_id", s.id).Err(err).Msg("malformed runQuery payload ignored")
			return
		}
		s.handleRunQuery(ctx, env.RequestID, p.SQL)

	case TypeCancelQuery:
		var p CancelQueryPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			log.Warn().Str("connection_id", s.id).Err(err).Msg("malformed cancelQuery payload ignored")
			return
		}
		s.handleCancelQuery(env.RequestID, p.QueryID)

	default:
		log.Warn().Str("connection_id", s.id).Str("type", env.Type).Msg("unknown message type ignored")
	}
}

// handleRunQuery принимает запрос: safety gate, регистрация, запуск моста.
func (s *Session) handleRunQuery(ctx context.Context, requestID, sql string) {
	queryID := uuid.NewString()

	s.send(OutMessage{
		Type:      TypeQueryAccepted,
		RequestID: requestID,
		Payload:   QueryAcceptedPayload{QueryID: queryID},
	})

	// Safety gate: ни один statement не достигает БД без вердикта Allowed
	if verdict := security.Validate(sql); !verdict.Allowed {
		queriesBlockedTotal.Inc()
		log.Warn().
			Str("query_id", queryID).
			Str("reason", verdict.Reason).
			Msg("query blocked by safety validator")
		s.send(OutMessage{
			Type:    TypeQueryError,
			Payload: QueryErrorPayload{QueryID: queryID, Message: "Safety Warning: " + verdict.Reason},
		})
		return
	}

	entry, err := s.deps.Registry.Register(queryID)
	if err != nil {
		// Не должно случаться: id - свежий uuid
		log.Error().Str("query_id", queryID).Err(err).Msg("query registration failed")
		s.send(OutMessage{
			Type:    TypeQueryError,
			Payload: QueryErrorPayload{QueryID: queryID, Message: err.Error()},
		})
		return
	}

	s.mu.Lock()
	s.owned[queryID] = struct{}{}
	s.mu.Unlock()

	queriesStartedTotal.Inc()
	activeQueries.Inc()

	b := &bridge{
		session:   s,
		queryID:   queryID,
		statement: sql,
		entry:     entry,
	}

	s.bridges.Add(1)
	go func() {
		defer s.bridges.Done()
		b.run(ctx)
	}()
}

// handleCancelQuery взводит флаг отмены и сразу подтверждает прием.
// Фактическая остановка произойдет на следующей точке проверки раннера
// (худший случай: еще один батч в полете успеет дойти).
func (s *Session) handleCancelQuery(requestID, queryID string) {
	if queryID == "" || !s.deps.Registry.RequestCancel(queryID) {
		log.Warn().Str("query_id", queryID).Msg("cancel request for unknown query ignored")
		return
	}

	queriesCanceledTotal.Inc()
	log.Info().Str("query_id", queryID).Msg("query cancellation requested")

	s.send(OutMessage{
		Type:      TypeQueryCanceled,
		RequestID: requestID,
		Payload:   QueryCanceledPayload{QueryID: queryID},
	})
}

// send пишет сообщение в сокет. Возврат без ошибки означает что кадр
// сброшен в соединение - этим обеспечивается backpressure моста.
func (s *Session) send(msg OutMessage) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(msg)
}

// forget убирает запрос из списка принадлежащих сессии.
func (s *Session) forget(queryID string) {
	s.mu.Lock()
	delete(s.owned, queryID)
	s.mu.Unlock()
}

// cleanup вызывается при разрыве канала.
func (s *Session) cleanup() {
	s.mu.Lock()
	owned := make([]string, 0, len(s.owned))
	for id := range s.owned {
		owned = append(owned, id)
	}
	s.mu.Unlock()

	if len(owned) == 0 {
		return
	}

	if s.deps.CancelOnDisconnect {
		for _, id := range owned {
			if s.deps.Registry.RequestCancel(id) {
				log.Info().Str("query_id", id).Msg("query canceled: channel disconnected")
			}
		}
		return
	}

	log.Info().
		Int("queries", len(owned)).
		Msg("channel disconnected with queries in flight; letting them finish")
}

// upgrader принимает websocket подключения. Origin не проверяется -
// однопользовательский локальный инструмент.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Handler возвращает http.HandlerFunc, апгрейдящий запрос до websocket
// сессии консоли.
func Handler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Error().Err(err).Msg("websocket upgrade failed")
			return
		}
		defer conn.Close()

		session := NewSession(conn, deps)
		session.Run(r.Context())
	}
}
