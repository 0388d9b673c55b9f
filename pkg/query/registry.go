package query

import (
	"errors"
	"sync"
)

// ErrDuplicateID возвращается при попытке зарегистрировать queryID,
// который уже выполняется. Переиспользование id до cleanup - баг.
var ErrDuplicateID = errors.New("query id already registered")

// Entry - одна запись активного запроса.
type Entry struct {
	ID     string
	Cancel *CancelFlag

	done     chan struct{}
	doneOnce sync.Once
}

// Finish помечает запрос завершенным. Идемпотентна.
func (e *Entry) Finish() {
	e.doneOnce.Do(func() { close(e.done) })
}

// Done возвращает канал, закрываемый при завершении запроса.
func (e *Entry) Done() <-chan struct{} {
	return e.done
}

// Registry - процессная карта активных запросов: queryID -> сигнал
// отмены и lifecycle handle. Мутируется мостом исполнения и
// диспетчером канала, поэтому все операции под мьютексом.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

// NewRegistry создает пустой реестр.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// Register создает запись для нового запроса.
// Возвращает ErrDuplicateID если id уже занят.
func (r *Registry) Register(id string) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[id]; exists {
		return nil, ErrDuplicateID
	}

	entry := &Entry{
		ID:     id,
		Cancel: &CancelFlag{},
		done:   make(chan struct{}),
	}
	r.entries[id] = entry
	return entry, nil
}

// Remove удаляет запись. Обязателен на каждом пути завершения
// (done, error, отмена, разрыв канала). Отсутствующий id - no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// RequestCancel взводит флаг отмены запроса если он активен.
// Возвращает false если запрос не найден (уже завершился).
func (r *Registry) RequestCancel(id string) bool {
	r.mu.Lock()
	entry, ok := r.entries[id]
	r.mu.Unlock()

	if !ok {
		return false
	}
	entry.Cancel.Set()
	return true
}

// Get возвращает запись по id.
func (r *Registry) Get(id string) (*Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[id]
	return entry, ok
}

// Len возвращает число активных запросов.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
