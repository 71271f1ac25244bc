// Package worker runs vault I/O off the main context and hands results back
// to a single serial main context.
package worker

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultWorkers is the pool size used when none is configured.
const DefaultWorkers = 8

// Pool implements sdk.Scheduler with a bounded set of workers and one main
// goroutine that executes main-context tasks in submission order.
type Pool struct {
	log *logrus.Logger
	sem chan struct{}
	wg  sync.WaitGroup

	mu     sync.Mutex
	queue  []func()
	signal chan struct{}

	done      chan struct{}
	closeOnce sync.Once
}

// New starts a pool with the given number of workers.
func New(workers int, log *logrus.Logger) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if log == nil {
		log = logrus.New()
	}
	p := &Pool{
		log:    log,
		sem:    make(chan struct{}, workers),
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go p.runMain()
	return p
}

// Async runs task on a worker, waiting for a free slot if all are busy.
func (p *Pool) Async(task func()) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.sem <- struct{}{}
		defer func() { <-p.sem }()
		p.run(task)
	}()
}

// Main queues task on the main context. It never blocks the caller.
func (p *Pool) Main(task func()) {
	p.wg.Add(1)
	p.mu.Lock()
	p.queue = append(p.queue, task)
	p.mu.Unlock()
	select {
	case p.signal <- struct{}{}:
	default:
	}
}

// Later queues task on the main context once delay has passed.
// Pending delayed tasks are not waited for by Wait.
func (p *Pool) Later(delay time.Duration, task func()) func() {
	t := time.AfterFunc(delay, func() { p.Main(task) })
	return func() { t.Stop() }
}

// Wait blocks until every submitted task, including main-context tasks
// queued by workers, has finished.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Close waits for outstanding work and stops the main context.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		p.Wait()
		close(p.done)
	})
}

func (p *Pool) runMain() {
	for {
		select {
		case <-p.signal:
			for {
				p.mu.Lock()
				if len(p.queue) == 0 {
					p.mu.Unlock()
					break
				}
				task := p.queue[0]
				p.queue[0] = nil
				p.queue = p.queue[1:]
				p.mu.Unlock()

				p.run(task)
				p.wg.Done()
			}
		case <-p.done:
			return
		}
	}
}

func (p *Pool) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.log.WithField("panic", r).Error("Vault task panicked")
		}
	}()
	task()
}
