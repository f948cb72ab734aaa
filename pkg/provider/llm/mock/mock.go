// Package mock provides a test double for [llm.Provider].
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/jarvis/pkg/provider/llm"
)

// Provider is a mock implementation of [llm.Provider].
type Provider struct {
	mu sync.Mutex

	// Response is returned by Complete when Err is nil.
	Response llm.Response

	// Err, if non-nil, is returned by Complete.
	Err error

	requests []llm.Request
}

var _ llm.Provider = (*Provider)(nil)

// Complete records req and returns Response, Err.
func (p *Provider) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if p.Err != nil {
		return nil, p.Err
	}
	resp := p.Response
	return &resp, nil
}

// Requests returns the recorded requests.
func (p *Provider) Requests() []llm.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]llm.Request(nil), p.requests...)
}
