package task

import (
	"context"
	"log/slog"
	"sync"
)

type worker struct {
	id         int
	workerPool chan chan Message
	jobChannel chan Message
	logger     *slog.Logger
}

func newWorker(id int, workerPool chan chan Message, logger *slog.Logger) *worker {
	return &worker{
		id:         id,
		workerPool: workerPool,
		jobChannel: make(chan Message),
		logger:     logger,
	}
}

func (w *worker) start(ctx context.Context, wg *sync.WaitGroup, process func(Message)) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		for {
			w.workerPool <- w.jobChannel

			select {
			case msg := <-w.jobChannel:
				w.logger.Debug("worker processing task", "worker_id", w.id, "task_id", msg.ID, "task_name", msg.Name)
				process(msg)
			case <-ctx.Done():
				w.logger.Debug("worker shutting down", "worker_id", w.id)
				return
			}
		}
	}()
}

// Pool is an in-process Broker: a buffered job queue dispatched to a fixed
// set of workers. Queued messages are lost when the process exits.
type Pool struct {
	size       int
	jobQueue   chan Message
	workerPool chan chan Message
	logger     *slog.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

func NewPool(size, queueSize int, logger *slog.Logger) *Pool {
	if size <= 0 {
		size = 4
	}
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &Pool{
		size:       size,
		jobQueue:   make(chan Message, queueSize),
		workerPool: make(chan chan Message, size),
		logger:     logger,
		closed:     make(chan struct{}),
	}
}

func (p *Pool) Publish(ctx context.Context, msg Message) error {
	select {
	case <-p.closed:
		return ErrBrokerClosed
	default:
	}
	select {
	case p.jobQueue <- msg:
		return nil
	case <-p.closed:
		return ErrBrokerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) Consume(ctx context.Context, handle ConsumeFunc) error {
	var wg sync.WaitGroup

	process := func(msg Message) {
		if err := handle(ctx, msg); err != nil {
			p.logger.Warn("task dropped", "task_id", msg.ID, "task_name", msg.Name, "error", err)
		}
	}
	for i := 0; i < p.size; i++ {
		newWorker(i, p.workerPool, p.logger).start(ctx, &wg, process)
	}

	wg.Add(1)
	go p.dispatch(ctx, &wg)

	p.logger.Info("task worker pool started", "workers", p.size, "queue_size", cap(p.jobQueue))
	<-ctx.Done()
	wg.Wait()
	if pending := len(p.jobQueue); pending > 0 {
		p.logger.Warn("task worker pool stopped with queued tasks", "pending", pending)
	}
	p.logger.Info("task worker pool stopped")
	return nil
}

func (p *Pool) dispatch(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case msg := <-p.jobQueue:
			select {
			case jobChannel := <-p.workerPool:
				select {
				case jobChannel <- msg:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (p *Pool) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}
