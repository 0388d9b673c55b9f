package query

import "sync/atomic"

// CancelFlag - кооперативный сигнал отмены запроса.
//
// Пишется из горутины диспетчера сообщений, читается из worker горутины
// раннера между батчами. Монотонный: один раз взведенный флаг никогда
// не сбрасывается. Повторный Set - no-op.
type CancelFlag struct {
	flag atomic.Bool
}

// Set взводит флаг отмены.
func (f *CancelFlag) Set() {
	f.flag.Store(true)
}

// IsSet проверяет взведен ли флаг.
func (f *CancelFlag) IsSet() bool {
	return f.flag.Load()
}
