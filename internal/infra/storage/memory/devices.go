package memory

import (
	"context"
	"sort"
	"sync"

	"marketchat/internal/domain/devices"
)

// DeviceRegistry holds one token set per user.
type DeviceRegistry struct {
	mu     sync.RWMutex
	tokens map[string]map[string]struct{}
}

func NewDeviceRegistry() *DeviceRegistry {
	return &DeviceRegistry{tokens: make(map[string]map[string]struct{})}
}

func (r *DeviceRegistry) Tokens(ctx context.Context, userID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.tokens[userID]
	out := make([]string, 0, len(set))
	for tok := range set {
		out = append(out, tok)
	}
	sort.Strings(out)
	return out, nil
}

func (r *DeviceRegistry) Add(ctx context.Context, userID, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.tokens[userID]
	if !ok {
		set = make(map[string]struct{})
		r.tokens[userID] = set
	}
	set[token] = struct{}{}
	return nil
}

func (r *DeviceRegistry) Remove(ctx context.Context, userID string, tokens ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.tokens[userID]
	if !ok {
		return nil
	}
	for _, tok := range tokens {
		delete(set, tok)
	}
	if len(set) == 0 {
		delete(r.tokens, userID)
	}
	return nil
}

var _ devices.Registry = (*DeviceRegistry)(nil)
