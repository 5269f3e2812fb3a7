package workerpool

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// Priority orders queued tasks when the priority queue is enabled
type Priority int

const (
	PriorityLow    Priority = 0
	PriorityNormal Priority = 5
	PriorityHigh   Priority = 10
)

var (
	ErrPoolClosed = errors.New("worker pool is closed")
	ErrQueueFull  = errors.New("worker pool queue is full")
)

// ============= Config =============

// Config configures the pool. QueueSize bounds the number of tasks waiting
// for a worker; zero means unbounded.
type Config struct {
	Workers        int  `mapstructure:"workers"`
	QueueSize      int  `mapstructure:"queue_size"`
	EnablePriority bool `mapstructure:"enable_priority"`
}

// DefaultConfig returns a pool sized for interactive archive traffic
func DefaultConfig() *Config {
	return &Config{
		Workers:        16,
		QueueSize:      256,
		EnablePriority: true,
	}
}

// ============= Statistics =============

// Statistics counts submitted and finished tasks
type Statistics struct {
	Submitted int64
	Completed int64
	Failed    int64
	Running   int64
	Queued    int64

	HighPriority   int64
	NormalPriority int64
	LowPriority    int64
}

type counters struct {
	mu sync.Mutex
	s  Statistics
}

func (c *counters) incSubmitted(priority Priority) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.s.Submitted++
	switch priority {
	case PriorityHigh:
		c.s.HighPriority++
	case PriorityNormal:
		c.s.NormalPriority++
	case PriorityLow:
		c.s.LowPriority++
	}
}

func (c *counters) start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.s.Running++
}

func (c *counters) finish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.s.Running--
	c.s.Completed++
}

func (c *counters) incFailed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.s.Failed++
}

func (c *counters) snapshot() Statistics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s
}

// ============= Priority queue =============

type priorityTask struct {
	Priority  Priority
	Task      func()
	Timestamp time.Time
	index     int
}

type priorityQueue []*priorityTask

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].Priority != pq[j].Priority {
		return pq[i].Priority > pq[j].Priority
	}
	return pq[i].Timestamp.Before(pq[j].Timestamp)
}

func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *priorityQueue) Push(x interface{}) {
	n := len(*pq)
	task := x.(*priorityTask)
	task.index = n
	*pq = append(*pq, task)
}

func (pq *priorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	task := old[n-1]
	old[n-1] = nil
	task.index = -1
	*pq = old[0 : n-1]
	return task
}

// ============= Pool =============

// Pool runs blocking network work off the caller's goroutine.
// Searches are queued ahead of page downloads when priorities are enabled.
type Pool struct {
	pool   *ants.Pool
	config *Config

	priorityQueue *priorityQueue
	queueMu       sync.Mutex
	notEmpty      chan struct{}

	stats *counters

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *zap.Logger
}

// New creates a worker pool
func New(config *Config, logger *zap.Logger) (*Pool, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Workers <= 0 {
		return nil, fmt.Errorf("invalid worker count: %d", config.Workers)
	}

	opts := []ants.Option{
		ants.WithPanicHandler(func(err interface{}) {
			logger.Error("worker panic", zap.Any("error", err))
		}),
	}
	if !config.EnablePriority && config.QueueSize > 0 {
		opts = append(opts, ants.WithMaxBlockingTasks(config.QueueSize))
	}

	antsPool, err := ants.NewPool(config.Workers, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create ants pool: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	p := &Pool{
		pool:   antsPool,
		config: config,
		stats:  &counters{},
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}

	if config.EnablePriority {
		pq := make(priorityQueue, 0, config.QueueSize)
		heap.Init(&pq)
		p.priorityQueue = &pq
		p.notEmpty = make(chan struct{}, 1)

		p.wg.Add(1)
		go p.scheduler()
	}

	return p, nil
}

// Submit queues task at normal priority
func (p *Pool) Submit(task func()) error {
	return p.SubmitWithPriority(PriorityNormal, task)
}

// SubmitWithPriority queues task at the given priority
func (p *Pool) SubmitWithPriority(priority Priority, task func()) error {
	if p.config.EnablePriority {
		pt := &priorityTask{
			Priority:  priority,
			Task:      task,
			Timestamp: time.Now(),
		}

		// checked under the lock so Shutdown's drain sees every accepted task
		p.queueMu.Lock()
		if p.ctx.Err() != nil {
			p.queueMu.Unlock()
			return ErrPoolClosed
		}
		if p.config.QueueSize > 0 && p.priorityQueue.Len() >= p.config.QueueSize {
			p.queueMu.Unlock()
			p.stats.incFailed()
			return ErrQueueFull
		}
		heap.Push(p.priorityQueue, pt)
		p.queueMu.Unlock()

		p.stats.incSubmitted(priority)

		select {
		case p.notEmpty <- struct{}{}:
		default:
		}

		return nil
	}

	if p.ctx.Err() != nil {
		return ErrPoolClosed
	}

	p.stats.incSubmitted(priority)
	if err := p.pool.Submit(p.wrap(task)); err != nil {
		p.stats.incFailed()
		return err
	}
	return nil
}

func (p *Pool) wrap(task func()) func() {
	return func() {
		p.stats.start()
		defer p.stats.finish()
		task()
	}
}

func (p *Pool) scheduler() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-p.notEmpty:
			p.dispatch()
		}
	}
}

func (p *Pool) dispatch() {
	for {
		select {
		case <-p.ctx.Done():
			return
		default:
		}

		p.queueMu.Lock()
		if p.priorityQueue.Len() == 0 {
			p.queueMu.Unlock()
			return
		}
		pt := heap.Pop(p.priorityQueue).(*priorityTask)
		p.queueMu.Unlock()

		if err := p.pool.Submit(p.wrap(pt.Task)); err != nil {
			p.queueMu.Lock()
			heap.Push(p.priorityQueue, pt)
			p.queueMu.Unlock()
			p.stats.incFailed()
			p.logger.Warn("requeued task after submit failure", zap.Error(err))

			time.Sleep(10 * time.Millisecond)
			select {
			case p.notEmpty <- struct{}{}:
			default:
			}
			return
		}
	}
}

// QueueLength returns the number of queued, not yet running tasks
func (p *Pool) QueueLength() int {
	if p.config.EnablePriority {
		p.queueMu.Lock()
		defer p.queueMu.Unlock()
		return p.priorityQueue.Len()
	}
	return p.pool.Waiting()
}

// Running returns the number of busy workers
func (p *Pool) Running() int {
	return p.pool.Running()
}

// Stats returns a snapshot of the counters and the current queue length
func (p *Pool) Stats() Statistics {
	s := p.stats.snapshot()
	s.Queued = int64(p.QueueLength())
	return s
}

// Shutdown stops accepting work and releases the workers. Tasks still
// queued run on the calling goroutine so each can report its own
// cancellation; cancel outstanding requests before calling it.
func (p *Pool) Shutdown() {
	p.cancel()
	p.wg.Wait()

	if p.config.EnablePriority {
		p.queueMu.Lock()
		pending := make([]*priorityTask, 0, p.priorityQueue.Len())
		for p.priorityQueue.Len() > 0 {
			pending = append(pending, heap.Pop(p.priorityQueue).(*priorityTask))
		}
		p.queueMu.Unlock()

		if len(pending) > 0 {
			p.logger.Debug("draining queued tasks", zap.Int("count", len(pending)))
		}
		for _, pt := range pending {
			p.wrap(pt.Task)()
		}
	}

	p.pool.Release()
}
