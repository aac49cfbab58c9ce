package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/rs/zerolog/log"

	"saliency-heatmap/internal/domain/port"
)

// ErrStopped пул уже остановлен
var ErrStopped = errors.New("worker pool is stopped")

type job struct {
	fn     func() error
	output chan error // буфер 1: воркер не блокируется, если клиент ушёл
}

// Pool фиксированный набор воркеров для CPU-тяжёлых задач
type Pool struct {
	jobs chan job
	quit chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// NewPool запускает n воркеров (n <= 0 означает GOMAXPROCS)
func NewPool(n int) *Pool {
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	p := &Pool{
		jobs: make(chan job),
		quit: make(chan struct{}),
	}
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go p.work(i)
	}
	log.Debug().Int("workers", n).Msg("worker pool started")
	return p
}

func (p *Pool) work(id int) {
	defer p.wg.Done()
	for {
		select {
		case j := <-p.jobs:
			j.output <- run(id, j.fn)
		case <-p.quit:
			return
		}
	}
}

func run(id int, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Int("worker", id).Interface("panic", r).Msg("job panicked")
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return fn()
}

// Do отдаёт fn свободному воркеру и ждёт результата.
// При отмене ctx возвращает ctx.Err(); уже запущенная задача доработает сама.
func (p *Pool) Do(ctx context.Context, fn func() error) error {
	j := job{fn: fn, output: make(chan error, 1)}

	select {
	case p.jobs <- j:
	case <-p.quit:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-j.output:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop останавливает воркеров и ждёт завершения текущих задач
func (p *Pool) Stop() {
	p.once.Do(func() {
		close(p.quit)
	})
	p.wg.Wait()
}

// Проверка реализации интерфейса
var _ port.Executor = (*Pool)(nil)
