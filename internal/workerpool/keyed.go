// Package workerpool provides a bounded pool of goroutines whose tasks are
// routed by key: tasks sharing a key always land on the same worker and
// execute in submission order. The cache client uses it for fire-and-forget
// replica writes and the write-behind pattern uses it to keep per-key
// source-of-record ordering.
package workerpool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
)

// Task represents a unit of work routed by Key.
type Task struct {
	ID  string
	Key string
	Fn  func(context.Context) error
}

// Config holds keyed pool configuration.
type Config struct {
	Name      string
	Workers   int
	QueueSize int // per-worker queue depth
	Logger    *zap.Logger
}

// KeyedPool executes tasks on a fixed set of workers, each with its own
// FIFO queue. Routing is xxhash(key) mod workers, so ordering holds per
// key, never across keys.
type KeyedPool struct {
	name   string
	queues []chan Task
	logger *zap.Logger

	wg       sync.WaitGroup // workers
	tasks    sync.WaitGroup // in-flight and queued tasks
	stopOnce sync.Once
	stopChan chan struct{}

	submitted uint64
	completed uint64
	failed    uint64
	rejected  uint64
}

// New creates and starts a keyed pool.
func New(cfg Config) *KeyedPool {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	p := &KeyedPool{
		name:     cfg.Name,
		queues:   make([]chan Task, cfg.Workers),
		logger:   cfg.Logger,
		stopChan: make(chan struct{}),
	}
	for i := range p.queues {
		p.queues[i] = make(chan Task, cfg.QueueSize)
		p.wg.Add(1)
		go p.worker(i)
	}

	p.logger.Info("Keyed pool started",
		zap.String("name", p.name),
		zap.Int("workers", cfg.Workers),
		zap.Int("queue_size", cfg.QueueSize))
	return p
}

// Submit enqueues a task, blocking while its worker queue is full.
// Returns an error once the pool is stopped; a Submit blocked on a full
// queue is released with that error when Stop begins.
func (p *KeyedPool) Submit(task Task) error {
	select {
	case <-p.stopChan:
		atomic.AddUint64(&p.rejected, 1)
		return fmt.Errorf("keyed pool %q is stopped", p.name)
	default:
	}

	p.tasks.Add(1)
	select {
	case p.queues[p.route(task.Key)] <- task:
		atomic.AddUint64(&p.submitted, 1)
		return nil
	case <-p.stopChan:
		p.tasks.Done()
		atomic.AddUint64(&p.rejected, 1)
		return fmt.Errorf("keyed pool %q is stopped", p.name)
	}
}

// TrySubmit enqueues a task without blocking. Returns false when the
// worker queue is full or the pool is stopped.
func (p *KeyedPool) TrySubmit(task Task) bool {
	select {
	case <-p.stopChan:
		atomic.AddUint64(&p.rejected, 1)
		return false
	default:
	}

	p.tasks.Add(1)
	select {
	case p.queues[p.route(task.Key)] <- task:
		atomic.AddUint64(&p.submitted, 1)
		return true
	default:
		p.tasks.Done()
		atomic.AddUint64(&p.rejected, 1)
		return false
	}
}

// Flush blocks until every queued and running task has finished.
func (p *KeyedPool) Flush() {
	p.tasks.Wait()
}

// Stop drains the queues and stops the workers. The queues are never
// closed; workers and blocked submitters observe stopChan instead, so a
// Submit racing Stop gets an error rather than a send on a closed channel.
// Returns an error when the drain exceeds timeout.
func (p *KeyedPool) Stop(timeout time.Duration) error {
	var err error
	p.stopOnce.Do(func() {
		close(p.stopChan)

		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			// A send can still land between a worker's final drain and its
			// exit; sweep it out so Flush never waits on an orphan.
			p.sweep()
			p.logger.Info("Keyed pool stopped", zap.String("name", p.name))
		case <-time.After(timeout):
			err = fmt.Errorf("keyed pool %q stop timeout after %v", p.name, timeout)
			p.logger.Warn("Keyed pool stop timeout", zap.String("name", p.name))
		}
	})
	return err
}

func (p *KeyedPool) sweep() {
	for _, q := range p.queues {
	drain:
		for {
			select {
			case <-q:
				atomic.AddUint64(&p.rejected, 1)
				p.tasks.Done()
			default:
				break drain
			}
		}
	}
}

// QueueDepth returns the number of queued tasks across all workers.
func (p *KeyedPool) QueueDepth() int {
	depth := 0
	for _, q := range p.queues {
		depth += len(q)
	}
	return depth
}

// Stats returns pool counters.
func (p *KeyedPool) Stats() Stats {
	return Stats{
		Submitted: atomic.LoadUint64(&p.submitted),
		Completed: atomic.LoadUint64(&p.completed),
		Failed:    atomic.LoadUint64(&p.failed),
		Rejected:  atomic.LoadUint64(&p.rejected),
	}
}

// Stats holds pool counters.
type Stats struct {
	Submitted uint64
	Completed uint64
	Failed    uint64
	Rejected  uint64
}

func (p *KeyedPool) route(key string) int {
	return int(xxhash.Sum64String(key) % uint64(len(p.queues)))
}

func (p *KeyedPool) worker(id int) {
	defer p.wg.Done()
	q := p.queues[id]
	for {
		select {
		case task := <-q:
			p.execute(id, task)
			p.tasks.Done()
		case <-p.stopChan:
			// Finish what was accepted before the stop signal.
			for {
				select {
				case task := <-q:
					p.execute(id, task)
					p.tasks.Done()
				default:
					return
				}
			}
		}
	}
}

func (p *KeyedPool) execute(workerID int, task Task) {
	start := time.Now()
	err := p.safeExecute(task)
	if err != nil {
		atomic.AddUint64(&p.failed, 1)
		p.logger.Warn("Task failed",
			zap.String("pool", p.name),
			zap.Int("worker_id", workerID),
			zap.String("task_id", task.ID),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return
	}
	atomic.AddUint64(&p.completed, 1)
}

func (p *KeyedPool) safeExecute(task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
			p.logger.Error("Task panic recovered",
				zap.String("pool", p.name),
				zap.String("task_id", task.ID),
				zap.Any("panic", r))
		}
	}()
	return task.Fn(context.Background())
}
