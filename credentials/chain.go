// Package credentials resolves the analysis API key from an ordered list of providers and
// tracks the process-wide "credential needed" prompt.
package credentials

import (
	"strings"
	"sync"
)

// Provider is one named credential source.
type Provider interface {
	Name() string
	Credential() string
}

// Chain consults its providers in order; the first non-empty credential wins.
type Chain []Provider

// Resolve returns the first non-empty credential and the name of the provider that supplied it.
func (c Chain) Resolve() (string, string, bool) {
	for _, p := range c {
		if v := strings.TrimSpace(p.Credential()); v != "" {
			return v, p.Name(), true
		}
	}
	return "", "", false
}

type staticProvider struct {
	name  string
	value string
}

// Static returns a provider with a fixed value, typically read from config at startup.
func Static(name, value string) Provider {
	return staticProvider{name: name, value: value}
}

func (p staticProvider) Name() string       { return p.name }
func (p staticProvider) Credential() string { return p.value }

// Override holds a user-supplied credential. The zero value is empty and ready to use.
type Override struct {
	mu    sync.RWMutex
	value string
}

func (o *Override) Name() string { return "override" }

func (o *Override) Credential() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.value
}

// Set replaces the override; an empty value clears it.
func (o *Override) Set(value string) {
	o.mu.Lock()
	o.value = strings.TrimSpace(value)
	o.mu.Unlock()
}
