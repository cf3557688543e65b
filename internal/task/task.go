// Package task runs named handlers on a broker and composes them into
// chains and chords. Workflows are values: build a Node, hand it to
// Engine.Submit, then poll Engine.Status with the returned id.
package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type State string

const (
	StatePending State = "PENDING"
	StateStarted State = "STARTED"
	StateSuccess State = "SUCCESS"
	StateFailure State = "FAILURE"
)

var (
	ErrUnknownTask    = errors.New("unknown task")
	ErrEmptyWorkflow  = errors.New("workflow has no tasks")
	ErrBrokerClosed   = errors.New("broker closed")
	ErrUpstreamFailed = errors.New("upstream task failed")
)

// Progress is the status payload stored for every task id.
type Progress struct {
	State   State           `json:"state"`
	Current int             `json:"current"`
	Total   int             `json:"total"`
	Status  string          `json:"status,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
}

// Signature names a handler and its arguments.
type Signature struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Args      json.RawMessage `json:"args,omitempty"`
	Countdown time.Duration   `json:"countdown,omitempty"`
}

// NewSignature marshals args into a signature for handler name.
func NewSignature(name string, args interface{}) (Signature, error) {
	sig := Signature{Name: name}
	if args != nil {
		raw, err := json.Marshal(args)
		if err != nil {
			return sig, fmt.Errorf("marshal %s args: %w", name, err)
		}
		sig.Args = raw
	}
	return sig, nil
}

// Node is one of Simple, ChainNode or ChordNode.
type Node interface {
	isNode()
}

type Simple struct {
	Signature
}

// ChainNode runs its steps in order, feeding each result to the next step.
type ChainNode struct {
	Steps []Node
}

// ChordNode runs Group in parallel and then Callback with the ordered list
// of group results. Callback never runs if a member fails.
type ChordNode struct {
	ID       string
	Group    []Signature
	Callback Node
}

func (Simple) isNode()    {}
func (ChainNode) isNode() {}
func (ChordNode) isNode() {}

func Task(sig Signature) Node {
	return Simple{Signature: sig}
}

func Chain(steps ...Node) Node {
	return ChainNode{Steps: steps}
}

func Chord(group []Signature, callback Node) Node {
	return ChordNode{Group: group, Callback: callback}
}

const (
	kindTask  = "task"
	kindChain = "chain"
	kindChord = "chord"
)

// plan is the wire form of a Node.
type plan struct {
	Kind     string      `json:"kind"`
	ID       string      `json:"id,omitempty"`
	Task     *Signature  `json:"task,omitempty"`
	Steps    []plan      `json:"steps,omitempty"`
	Group    []Signature `json:"group,omitempty"`
	Callback *plan       `json:"callback,omitempty"`
}

// compile converts n to a plan, assigning ids to every signature and chord
// that has none.
func compile(n Node) (plan, error) {
	switch v := n.(type) {
	case Simple:
		sig := v.Signature
		if sig.Name == "" {
			return plan{}, fmt.Errorf("%w: signature without name", ErrUnknownTask)
		}
		if sig.ID == "" {
			sig.ID = uuid.NewString()
		}
		return plan{Kind: kindTask, Task: &sig}, nil
	case ChainNode:
		if len(v.Steps) == 0 {
			return plan{}, ErrEmptyWorkflow
		}
		p := plan{Kind: kindChain, Steps: make([]plan, 0, len(v.Steps))}
		for _, step := range v.Steps {
			sp, err := compile(step)
			if err != nil {
				return plan{}, err
			}
			p.Steps = append(p.Steps, sp)
		}
		return p, nil
	case ChordNode:
		if v.Callback == nil {
			return plan{}, fmt.Errorf("%w: chord without callback", ErrEmptyWorkflow)
		}
		cb, err := compile(v.Callback)
		if err != nil {
			return plan{}, err
		}
		p := plan{Kind: kindChord, ID: v.ID, Callback: &cb, Group: make([]Signature, len(v.Group))}
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		for i, sig := range v.Group {
			if sig.Name == "" {
				return plan{}, fmt.Errorf("%w: signature without name", ErrUnknownTask)
			}
			if sig.ID == "" {
				sig.ID = uuid.NewString()
			}
			p.Group[i] = sig
		}
		return p, nil
	case nil:
		return plan{}, ErrEmptyWorkflow
	}
	return plan{}, fmt.Errorf("unsupported node %T", n)
}

// finalID is the id of the task producing the plan's result.
func (p plan) finalID() string {
	switch p.Kind {
	case kindTask:
		return p.Task.ID
	case kindChain:
		return p.Steps[len(p.Steps)-1].finalID()
	case kindChord:
		return p.Callback.finalID()
	}
	return ""
}

// ids lists every task id in the plan.
func (p plan) ids() []string {
	switch p.Kind {
	case kindTask:
		return []string{p.Task.ID}
	case kindChain:
		var out []string
		for _, s := range p.Steps {
			out = append(out, s.ids()...)
		}
		return out
	case kindChord:
		out := make([]string, 0, len(p.Group)+1)
		for _, s := range p.Group {
			out = append(out, s.ID)
		}
		return append(out, p.Callback.ids()...)
	}
	return nil
}

// ChordRef ties a group member to its chord.
type ChordRef struct {
	ID       string `json:"id"`
	Index    int    `json:"index"`
	Size     int    `json:"size"`
	Callback plan   `json:"callback"`
	Then     []plan `json:"then,omitempty"`
}

// Message is one unit of work on the broker. Then holds the plans to run
// with this task's result once it succeeds.
type Message struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Args  json.RawMessage `json:"args,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
	ETA   time.Time       `json:"eta,omitempty"`
	Then  []plan          `json:"then,omitempty"`
	Chord *ChordRef       `json:"chord,omitempty"`
}

// Call is what a handler receives. Input is the previous chain result or,
// for a chord callback, the JSON array of group results in submission order.
type Call struct {
	ID    string
	Name  string
	Args  json.RawMessage
	Input json.RawMessage
}

// Bind decodes the call arguments into v.
func (c Call) Bind(v interface{}) error {
	if len(c.Args) == 0 {
		return nil
	}
	if err := json.Unmarshal(c.Args, v); err != nil {
		return fmt.Errorf("decode %s args: %w", c.Name, err)
	}
	return nil
}

// Reporter publishes intermediate progress of the running task.
type Reporter interface {
	Update(ctx context.Context, current, total int, status string) error
}

type Handler func(ctx context.Context, call Call, r Reporter) (json.RawMessage, error)

// ConsumeFunc handles one delivery. A non-nil error asks the broker to
// redeliver the message later.
type ConsumeFunc func(ctx context.Context, msg Message) error

type Broker interface {
	Publish(ctx context.Context, msg Message) error
	// Consume blocks until ctx is done and every in-flight delivery returned.
	Consume(ctx context.Context, handle ConsumeFunc) error
	Close() error
}

// ResultStore keeps task progress and joins chord results.
type ResultStore interface {
	Set(ctx context.Context, id string, p Progress) error
	Get(ctx context.Context, id string) (Progress, bool, error)
	// JoinChord records result for member index and returns every result in
	// index order once all size members have joined. complete is true for
	// exactly one caller, and never after FailChord.
	JoinChord(ctx context.Context, chordID string, index, size int, result json.RawMessage) (results []json.RawMessage, complete bool, err error)
	// FailChord marks the chord failed and reports whether this call did it.
	FailChord(ctx context.Context, chordID string) (bool, error)
}

// Transactor wraps every task run in one database transaction.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
