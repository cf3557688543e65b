package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/frahmantamala/document-management/internal/core/events"
)

// PanicError is a recovered handler panic.
type PanicError struct {
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

type Engine struct {
	broker Broker
	store  ResultStore
	tx     Transactor
	bus    *events.EventBus
	logger *slog.Logger

	mu       sync.RWMutex
	handlers map[string]Handler
	now      func() time.Time
}

// NewEngine wires an engine. tx and bus may be nil.
func NewEngine(broker Broker, store ResultStore, tx Transactor, bus *events.EventBus, logger *slog.Logger) *Engine {
	return &Engine{
		broker:   broker,
		store:    store,
		tx:       tx,
		bus:      bus,
		logger:   logger,
		handlers: make(map[string]Handler),
		now:      time.Now,
	}
}

func (e *Engine) Register(name string, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[name] = h
}

func (e *Engine) handler(name string) (Handler, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	h, ok := e.handlers[name]
	return h, ok
}

// Submit publishes the first runnable tasks of n and returns the id whose
// status carries the workflow result.
func (e *Engine) Submit(ctx context.Context, n Node) (string, error) {
	p, err := compile(n)
	if err != nil {
		return "", err
	}
	if err := e.dispatch(ctx, p, nil, nil, nil); err != nil {
		return "", err
	}
	id := p.finalID()
	e.logger.Info("workflow submitted", "task_id", id, "kind", p.Kind)
	return id, nil
}

// Delay submits a single task.
func (e *Engine) Delay(ctx context.Context, name string, args interface{}) (string, error) {
	sig, err := NewSignature(name, args)
	if err != nil {
		return "", err
	}
	return e.Submit(ctx, Task(sig))
}

func (e *Engine) dispatch(ctx context.Context, p plan, input json.RawMessage, then []plan, chord *ChordRef) error {
	switch p.Kind {
	case kindTask:
		msg := Message{ID: p.Task.ID, Name: p.Task.Name, Args: p.Task.Args, Input: input, Then: then, Chord: chord}
		if p.Task.Countdown > 0 {
			msg.ETA = e.now().Add(p.Task.Countdown)
		}
		if err := e.broker.Publish(ctx, msg); err != nil {
			return fmt.Errorf("publish %s: %w", p.Task.Name, err)
		}
		return nil

	case kindChain:
		rest := make([]plan, 0, len(p.Steps)-1+len(then))
		rest = append(rest, p.Steps[1:]...)
		rest = append(rest, then...)
		return e.dispatch(ctx, p.Steps[0], input, rest, chord)

	case kindChord:
		if len(p.Group) == 0 {
			return e.dispatch(ctx, *p.Callback, json.RawMessage("[]"), then, chord)
		}
		for i, sig := range p.Group {
			ref := &ChordRef{ID: p.ID, Index: i, Size: len(p.Group), Callback: *p.Callback, Then: then}
			if err := e.dispatch(ctx, plan{Kind: kindTask, Task: &p.Group[i]}, input, nil, ref); err != nil {
				return fmt.Errorf("chord member %s: %w", sig.Name, err)
			}
		}
		return nil
	}
	return fmt.Errorf("unsupported plan kind %q", p.Kind)
}

// Status resolves the progress of id. Unknown ids are PENDING.
func (e *Engine) Status(ctx context.Context, id string) (Progress, error) {
	p, ok, err := e.store.Get(ctx, id)
	if err != nil {
		return Progress{}, err
	}
	if !ok || p.State == StatePending {
		return Progress{State: StatePending, Current: 0, Total: 1}, nil
	}
	if p.State == StateFailure {
		return Progress{State: StateFailure, Current: 1, Total: 1, Status: p.Status}, nil
	}
	return p, nil
}

// Run consumes the broker until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	return e.broker.Consume(ctx, e.Process)
}

type reporter struct {
	engine  *Engine
	id      string
	mu      sync.Mutex
	current int
	total   int
}

func (r *reporter) Update(ctx context.Context, current, total int, status string) error {
	r.mu.Lock()
	r.current, r.total = current, total
	r.mu.Unlock()
	return r.engine.store.Set(ctx, r.id, Progress{State: StateStarted, Current: current, Total: total, Status: status})
}

func (r *reporter) final() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.total <= 0 {
		return 1, 1
	}
	return r.total, r.total
}

// Process runs one delivered message. Task failures are recorded, not
// returned; an error means the message was not processed.
func (e *Engine) Process(ctx context.Context, msg Message) error {
	if !msg.ETA.IsZero() {
		if wait := msg.ETA.Sub(e.now()); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}
	}

	// a started task runs to completion even during shutdown
	ctx = context.WithoutCancel(ctx)
	log := e.logger.With("task_id", msg.ID, "task_name", msg.Name)
	start := e.now()

	h, ok := e.handler(msg.Name)
	if !ok {
		e.fail(ctx, msg, fmt.Errorf("%w: %s", ErrUnknownTask, msg.Name), start)
		return nil
	}

	rep := &reporter{engine: e, id: msg.ID}
	if err := e.store.Set(ctx, msg.ID, Progress{State: StateStarted, Current: 0, Total: 1}); err != nil {
		log.Warn("failed to record task start", "error", err)
	}
	e.emit(ctx, events.EventTypeTaskStarted, msg, 0, nil)

	result, err := e.run(ctx, h, Call{ID: msg.ID, Name: msg.Name, Args: msg.Args, Input: msg.Input}, rep)
	if err != nil {
		e.fail(ctx, msg, err, start)
		return nil
	}

	current, total := rep.final()
	if err := e.store.Set(ctx, msg.ID, Progress{State: StateSuccess, Current: current, Total: total, Result: result}); err != nil {
		log.Error("failed to record task result", "error", err)
	}
	e.emit(ctx, events.EventTypeTaskSucceeded, msg, e.now().Sub(start), nil)
	log.Info("task succeeded", "duration", e.now().Sub(start))

	e.advance(ctx, msg, result)
	return nil
}

func (e *Engine) run(ctx context.Context, h Handler, call Call, rep Reporter) (result json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()

	work := func(ctx context.Context) error {
		var herr error
		result, herr = h(ctx, call, rep)
		return herr
	}
	if e.tx == nil {
		err = work(ctx)
	} else {
		err = e.tx.WithinTransaction(ctx, work)
	}
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		result = json.RawMessage("null")
	}
	return result, nil
}

// advance dispatches whatever waits on msg's result.
func (e *Engine) advance(ctx context.Context, msg Message, result json.RawMessage) {
	if len(msg.Then) > 0 {
		if err := e.dispatch(ctx, msg.Then[0], result, msg.Then[1:], msg.Chord); err != nil {
			e.failDownstream(ctx, msg, err)
		}
		return
	}
	if msg.Chord == nil {
		return
	}

	c := msg.Chord
	results, complete, err := e.store.JoinChord(ctx, c.ID, c.Index, c.Size, result)
	if err != nil {
		e.failDownstream(ctx, msg, fmt.Errorf("join chord %s: %w", c.ID, err))
		return
	}
	if !complete {
		return
	}
	input, err := json.Marshal(results)
	if err != nil {
		e.failDownstream(ctx, msg, err)
		return
	}
	if err := e.dispatch(ctx, c.Callback, input, c.Then, nil); err != nil {
		e.failDownstream(ctx, msg, err)
	}
}

func (e *Engine) fail(ctx context.Context, msg Message, err error, start time.Time) {
	attrs := []any{
		"task_id", msg.ID,
		"task_name", msg.Name,
		"args", string(msg.Args),
		"error", err,
	}
	var perr *PanicError
	if errors.As(err, &perr) {
		attrs = append(attrs, "stack", string(perr.Stack))
	}
	e.logger.Error("task failed", attrs...)

	if serr := e.store.Set(ctx, msg.ID, Progress{State: StateFailure, Current: 1, Total: 1, Status: err.Error()}); serr != nil {
		e.logger.Error("failed to record task failure", "task_id", msg.ID, "error", serr)
	}
	e.emit(ctx, events.EventTypeTaskFailed, msg, e.now().Sub(start), err)
	e.failDownstream(ctx, msg, err)
}

// failDownstream marks every task waiting on msg as failed so their status
// never stays PENDING.
func (e *Engine) failDownstream(ctx context.Context, msg Message, cause error) {
	var ids []string
	for _, p := range msg.Then {
		ids = append(ids, p.ids()...)
	}
	if c := msg.Chord; c != nil {
		first, err := e.store.FailChord(ctx, c.ID)
		if err != nil {
			e.logger.Error("failed to mark chord failed", "chord_id", c.ID, "error", err)
		}
		if first {
			ids = append(ids, c.Callback.ids()...)
			for _, p := range c.Then {
				ids = append(ids, p.ids()...)
			}
		}
	}

	status := fmt.Sprintf("%v: %s: %v", ErrUpstreamFailed, msg.ID, cause)
	for _, id := range ids {
		if err := e.store.Set(ctx, id, Progress{State: StateFailure, Current: 1, Total: 1, Status: status}); err != nil {
			e.logger.Error("failed to record downstream failure", "task_id", id, "error", err)
		}
	}
}

func (e *Engine) emit(ctx context.Context, eventType string, msg Message, d time.Duration, err error) {
	if e.bus == nil {
		return
	}
	_ = e.bus.Publish(ctx, events.NewTaskEvent(eventType, msg.ID, msg.Name, d, err))
}
