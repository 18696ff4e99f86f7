package credentials

import "sync"

// PromptState is a snapshot of the credential prompt.
type PromptState struct {
	Pending bool   `json:"pending"`
	Reason  string `json:"reason,omitempty"`
}

// Prompt is the process-wide "credential needed" signal. It is raised by the tag workflow
// and answered by whoever selects credentials: either with a new key or a dismissal.
type Prompt struct {
	mu       sync.Mutex
	state    PromptState
	override *Override
	onChange func(PromptState)
}

// NewPrompt wires the prompt to the override that a resolved key is written into.
// onChange may be nil.
func NewPrompt(override *Override, onChange func(PromptState)) *Prompt {
	return &Prompt{override: override, onChange: onChange}
}

// Raise marks a credential as needed. Raising an already pending prompt only updates the reason.
func (p *Prompt) Raise(reason string) {
	p.update(PromptState{Pending: true, Reason: reason})
}

// Resolve stores the new credential and clears the prompt.
func (p *Prompt) Resolve(key string) {
	if p.override != nil {
		p.override.Set(key)
	}
	p.update(PromptState{})
}

// Dismiss clears the prompt without changing credentials.
func (p *Prompt) Dismiss() {
	p.update(PromptState{})
}

func (p *Prompt) State() PromptState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Prompt) update(next PromptState) {
	p.mu.Lock()
	p.state = next
	cb := p.onChange
	p.mu.Unlock()
	if cb != nil {
		cb(next)
	}
}
