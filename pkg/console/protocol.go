// Package console реализует websocket SQL консоль: диспетчер входящих
// сообщений, мост исполнения запроса и JSON протокол поверх канала.
package console

import "encoding/json"

// Типы входящих сообщений
const (
	TypePing        = "ping"
	TypeRunQuery    = "runQuery"
	TypeCancelQuery = "cancelQuery"
)

// Типы исходящих сообщений
const (
	TypePong          = "pong"
	TypeQueryAccepted = "queryAccepted"
	TypeQueryProgress = "queryProgress"
	TypeQueryRows     = "queryRows"
	TypeQueryDone     = "queryDone"
	TypeQueryError    = "queryError"
	TypeQueryCanceled = "queryCanceled"
)

// Envelope - входящее сообщение: тип, опциональный requestId для
// корреляции на клиенте и произвольный payload.
type Envelope struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// OutMessage - исходящее сообщение.
type OutMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId,omitempty"`
	Payload   any    `json:"payload"`
}

// RunQueryPayload - payload сообщения runQuery.
type RunQueryPayload struct {
	SQL string `json:"sql"`
}

// CancelQueryPayload - payload сообщения cancelQuery.
type CancelQueryPayload struct {
	QueryID string `json:"queryId"`
}

// QueryAcceptedPayload подтверждает прием запроса и сообщает его id.
type QueryAcceptedPayload struct {
	QueryID string `json:"queryId"`
}

// QueryProgressPayload - статус исполнения.
type QueryProgressPayload struct {
	QueryID  string `json:"queryId"`
	Status   string `json:"status"`
	RowsSent int64  `json:"rowsSent"`
}

// QueryRowsPayload - один батч строк. Columns повторяются в каждом
// сообщении (избыточно, но клиенту не нужно склеивать состояние).
type QueryRowsPayload struct {
	QueryID string   `json:"queryId"`
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// QueryStats - итоговая статистика исполнения.
type QueryStats struct {
	ElapsedMs float64 `json:"elapsedMs"`
	TotalRows int64   `json:"totalRows"`
}

// QueryDonePayload - терминальное сообщение успешного завершения
// (в том числе после отмены, с частичным счетчиком строк).
type QueryDonePayload struct {
	QueryID string     `json:"queryId"`
	Stats   QueryStats `json:"stats"`
}

// QueryErrorPayload - терминальное сообщение ошибки.
type QueryErrorPayload struct {
	QueryID string `json:"queryId"`
	Message string `json:"message"`
}

// QueryCanceledPayload подтверждает прием запроса на отмену.
// Это ack, не терминальное сообщение: стрим остановится на следующей
// точке проверки флага и завершится обычным queryDone.
type QueryCanceledPayload struct {
	QueryID string `json:"queryId"`
}
