package port

import "context"

// Executor выполняет CPU-тяжёлую работу вне горутины запроса
type Executor interface {
	// Do запускает fn и ждёт результата или отмены ctx
	Do(ctx context.Context, fn func() error) error
}
