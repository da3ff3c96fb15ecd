// Package capabilitytest provides a scripted Capability for stage tests.
package capabilitytest

import (
	"context"
	"fmt"
	"sync"

	"github.com/appknox/ak-translator/internal/capability"
)

// Handler produces a raw model response for a call that has no scripted reply.
type Handler func(prompt string, vars map[string]any) (string, error)

// Call records one Invoke.
type Call struct {
	Prompt string
	Vars   map[string]any
}

// Fake replays scripted responses per prompt name and decodes them through
// capability.Decode, so schema validation behaves as in production. It is
// safe for concurrent use.
type Fake struct {
	mu      sync.Mutex
	scripts map[string][]reply
	handler Handler
	calls   []Call
}

type reply struct {
	text string
	err  error
}

func New() *Fake {
	return &Fake{scripts: make(map[string][]reply)}
}

// On queues raw responses for prompt.
func (f *Fake) On(prompt string, responses ...string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range responses {
		f.scripts[prompt] = append(f.scripts[prompt], reply{text: r})
	}
	return f
}

// Fail queues an error for prompt.
func (f *Fake) Fail(prompt string, err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[prompt] = append(f.scripts[prompt], reply{err: err})
	return f
}

// Handle sets the handler used once a prompt's script is exhausted.
func (f *Fake) Handle(h Handler) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
	return f
}

func (f *Fake) Invoke(ctx context.Context, p capability.Prompt, vars map[string]any, out capability.Schema) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	f.calls = append(f.calls, Call{Prompt: p.Name, Vars: vars})
	var r reply
	var ok bool
	if queue := f.scripts[p.Name]; len(queue) > 0 {
		r, ok = queue[0], true
		f.scripts[p.Name] = queue[1:]
	}
	h := f.handler
	f.mu.Unlock()

	if !ok {
		if h == nil {
			return fmt.Errorf("capabilitytest: unexpected %s call", p.Name)
		}
		text, err := h(p.Name, vars)
		r = reply{text: text, err: err}
	}
	if r.err != nil {
		return r.err
	}
	if err := capability.Decode(r.text, out); err != nil {
		return &capability.SchemaValidationError{Prompt: p.Name, Attempts: 1, Response: r.text, Err: err}
	}
	return nil
}

// Calls returns the number of invocations of prompt, or of all prompts when
// prompt is empty.
func (f *Fake) Calls(prompt string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if prompt == "" || c.Prompt == prompt {
			n++
		}
	}
	return n
}

// History returns a copy of every recorded call.
func (f *Fake) History() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}
