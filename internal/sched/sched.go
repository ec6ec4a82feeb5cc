// Package sched provides the default scheduled executor backing
// periodic telemetry work: metric ticks, range-sampler refreshes, and
// adaptive sampler rebalancing.
package sched

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Pool runs periodic tasks on a bounded set of workers. Each scheduled
// task keeps its own ticker, so a slow task delays at most one worker
// and never the tickers of other tasks.
type Pool struct {
	work    chan func()
	logger  *zap.Logger
	mu      sync.Mutex
	stopped bool
	cancels map[int]chan struct{}
	nextID  int
	wg      sync.WaitGroup
	tickers sync.WaitGroup
}

// NewPool creates a pool with the given number of workers.
func NewPool(workers int, logger *zap.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pool{
		work:    make(chan func(), workers*4),
		logger:  logger,
		cancels: make(map[int]chan struct{}),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for fn := range p.work {
		fn()
	}
}

// Schedule runs fn every interval until the returned cancel function is
// called or the pool stops. Ticks that find all workers busy are
// queued; ticks arriving while the previous run of the same task is
// still queued or running are skipped.
func (p *Pool) Schedule(every time.Duration, fn func()) (cancel func()) {
	if every <= 0 {
		return func() {}
	}

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return func() {}
	}
	id := p.nextID
	p.nextID++
	done := make(chan struct{})
	p.cancels[id] = done
	p.tickers.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.tickers.Done()
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		pending := make(chan struct{}, 1)
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				select {
				case pending <- struct{}{}:
				default:
					continue // previous run still queued or running
				}
				select {
				case p.work <- func() { defer func() { <-pending }(); p.runGuarded(fn) }:
				case <-done:
					<-pending
					return
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			if ch, ok := p.cancels[id]; ok {
				close(ch)
				delete(p.cancels, id)
			}
			p.mu.Unlock()
		})
	}
}

func (p *Pool) runGuarded(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("scheduled task panicked", zap.Any("panic", r))
		}
	}()
	fn()
}

// Stop cancels every scheduled task and releases the workers. Stop
// waits for in-flight task runs to complete.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	for id, ch := range p.cancels {
		close(ch)
		delete(p.cancels, id)
	}
	p.mu.Unlock()

	p.tickers.Wait()
	close(p.work)
	p.wg.Wait()
}
