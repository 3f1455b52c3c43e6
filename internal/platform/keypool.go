package platform

import (
	"errors"
	"sync"
)

// ErrNoKeys is returned when a pool has no credentials configured.
var ErrNoKeys = errors.New("no API keys configured")

// ErrKeysExhausted is returned when rotation has cycled the whole pool.
var ErrKeysExhausted = errors.New("all API keys exhausted")

// KeyPool is a rotating set of quota-limited credentials shared across
// calls within a process. Quota usage is tracked per key for
// observability only; the caller decides when to stop.
type KeyPool struct {
	mu   sync.Mutex
	keys []string
	idx  int
	used map[string]int64
}

func NewKeyPool(keys []string) *KeyPool {
	used := make(map[string]int64, len(keys))
	for _, k := range keys {
		used[k] = 0
	}
	return &KeyPool{keys: keys, used: used}
}

// Current returns the active key.
func (p *KeyPool) Current() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.keys) == 0 {
		return "", ErrNoKeys
	}
	return p.keys[p.idx], nil
}

// Rotate advances to the next key on a quota-exhaustion signal.
func (p *KeyPool) Rotate() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.keys) <= 1 {
		return ErrKeysExhausted
	}
	p.idx = (p.idx + 1) % len(p.keys)
	return nil
}

// Use records quota units consumed by the given key.
func (p *KeyPool) Use(key string, units int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.used[key] += units
}

// Usage returns a copy of per-key quota counters.
func (p *KeyPool) Usage() map[string]int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]int64, len(p.used))
	for k, v := range p.used {
		out[k] = v
	}
	return out
}

// Size returns the number of configured keys.
func (p *KeyPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.keys)
}
