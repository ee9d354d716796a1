package apify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Call records one FakeRunner invocation
type Call struct {
	ActorID string
	Input   map[string]interface{}
	Timeout time.Duration
}

// FakeResponder answers a fake actor run
type FakeResponder func(input map[string]interface{}) ([]json.RawMessage, error)

// FakeRunner is an in-memory ActorRunner for tests. Actors without a
// responder return an empty dataset.
type FakeRunner struct {
	mu         sync.Mutex
	responders map[string]FakeResponder
	calls      []Call
}

// NewFakeRunner creates an empty fake
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{responders: make(map[string]FakeResponder)}
}

// On registers a responder for actorID
func (f *FakeRunner) On(actorID string, fn FakeResponder) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responders[actorID] = fn
	return f
}

// OnItems makes actorID always return items, each marshalled to JSON
func (f *FakeRunner) OnItems(actorID string, items ...interface{}) *FakeRunner {
	raw := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		b, err := json.Marshal(item)
		if err != nil {
			panic(fmt.Sprintf("fake runner item: %v", err))
		}
		raw = append(raw, b)
	}
	return f.On(actorID, func(map[string]interface{}) ([]json.RawMessage, error) {
		return raw, nil
	})
}

// OnError makes actorID always fail with err
func (f *FakeRunner) OnError(actorID string, err error) *FakeRunner {
	return f.On(actorID, func(map[string]interface{}) ([]json.RawMessage, error) {
		return nil, err
	})
}

func (f *FakeRunner) Run(ctx context.Context, actorID string, input map[string]interface{}, timeout time.Duration) ([]json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.calls = append(f.calls, Call{ActorID: actorID, Input: input, Timeout: timeout})
	fn := f.responders[actorID]
	f.mu.Unlock()

	if fn == nil {
		return nil, nil
	}
	return fn(input)
}

// Calls returns every recorded invocation in order
func (f *FakeRunner) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallCount returns how many times actorID ran
func (f *FakeRunner) CallCount(actorID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.ActorID == actorID {
			n++
		}
	}
	return n
}

// Reset clears recorded calls
func (f *FakeRunner) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}
