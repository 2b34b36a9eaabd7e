package memory

import (
	"context"
	"sync"
)

// ClientRegistry serves curated keyword lists and owned-domain sets from
// memory. The real registry is maintained by the agency's CRUD tooling; the
// engine only ever reads it.
type ClientRegistry struct {
	mu       sync.RWMutex
	keywords map[string][]string
	domains  map[string][]string
}

// NewClientRegistry constructs an empty ClientRegistry.
func NewClientRegistry() *ClientRegistry {
	return &ClientRegistry{
		keywords: make(map[string][]string),
		domains:  make(map[string][]string),
	}
}

// SetClient seeds the registry entry for a client code.
func (r *ClientRegistry) SetClient(clientCode string, keywords, domains []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keywords[clientCode] = append([]string(nil), keywords...)
	r.domains[clientCode] = append([]string(nil), domains...)
}

// ApprovedKeywords returns the curated keyword list for the client.
func (r *ClientRegistry) ApprovedKeywords(_ context.Context, clientCode string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.keywords[clientCode]...), nil
}

// ClientDomains returns the client's main domain and aliases.
func (r *ClientRegistry) ClientDomains(_ context.Context, clientCode string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.domains[clientCode]...), nil
}
