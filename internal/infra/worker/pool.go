package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// A small worker pool bounded by the number of accelerator slots. One worker
// per slot keeps at most one transcription resident on the device at a time.

type Task func(ctx context.Context) error

type Pool struct {
	wg   sync.WaitGroup
	jobs chan Task
	quit chan struct{}
	n    int
	log  *zerolog.Logger
}

func NewPool(slots int, log *zerolog.Logger) *Pool {
	if slots <= 0 {
		slots = 1
	}
	return &Pool{jobs: make(chan Task, slots*4), quit: make(chan struct{}), n: slots, log: log}
}

func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-p.quit:
					return
				case task := <-p.jobs:
					if task == nil {
						continue
					}
					if err := task(ctx); err != nil {
						p.log.Error().Err(err).Int("worker", id).Msg("task error")
					}
				}
			}
		}(i)
	}
}

func (p *Pool) Stop() {
	close(p.quit)
	p.wg.Wait()
}

func (p *Pool) Submit(task Task) error {
	if task == nil {
		return errors.New("nil task")
	}
	select {
	case p.jobs <- task:
		return nil
	default:
		// drop when saturated; the next poll tick resubmits
		return errors.New("worker queue full")
	}
}
