// Package stub provides a scripted provider for tests and offline runs.
package stub

import (
	"sync"

	"github.com/fairyhunter13/ai-calculator/internal/domain"
)

// Reply is one scripted outcome.
type Reply struct {
	Text string
	Err  error
}

// Call records one Generate invocation.
type Call struct {
	Prompt   string
	HasImage bool
}

// Provider replays Replies in order and repeats the last one when the script
// runs out. It is safe for concurrent use.
type Provider struct {
	name domain.Backend

	mu      sync.Mutex
	replies []Reply
	calls   []Call
}

// New returns a provider named backend that answers with replies.
func New(backend domain.Backend, replies ...Reply) *Provider {
	return &Provider{name: backend, replies: replies}
}

// Name implements domain.Provider.
func (p *Provider) Name() domain.Backend { return p.name }

// Generate implements domain.Provider.
func (p *Provider) Generate(_ domain.Context, prompt string, img *domain.Image) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := len(p.calls)
	p.calls = append(p.calls, Call{Prompt: prompt, HasImage: img != nil})
	if len(p.replies) == 0 {
		return "", nil
	}
	if idx >= len(p.replies) {
		idx = len(p.replies) - 1
	}
	r := p.replies[idx]
	return r.Text, r.Err
}

// Calls returns a copy of the recorded invocations.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}
