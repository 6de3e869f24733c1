package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Registry resolves volume names to volumes and their ledgers. It is the
// owner of the volumes; CacheObjects only hold borrowed handles.
type Registry struct {
	mu      sync.RWMutex
	ledgers map[string]*Ledger
	order   []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{ledgers: make(map[string]*Ledger)}
}

// Add registers a ledger under its volume's name. Names must be unique.
func (r *Registry) Add(l *Ledger) error {
	if l == nil || l.volume == nil {
		return errors.New("ledger with volume required")
	}
	name := l.volume.Name()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.ledgers[name]; exists {
		return fmt.Errorf("volume %q already registered", name)
	}
	r.ledgers[name] = l
	r.order = append(r.order, name)
	return nil
}

// Volume looks up a volume by name.
func (r *Registry) Volume(name string) (CacheVolume, bool) {
	l, ok := r.Ledger(name)
	if !ok {
		return nil, false
	}
	return l.volume, true
}

// Ledger looks up a volume's ledger by name.
func (r *Registry) Ledger(name string) (*Ledger, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.ledgers[name]
	return l, ok
}

// Ledgers returns the ledgers in registration order.
func (r *Registry) Ledgers() []*Ledger {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Ledger, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.ledgers[name])
	}
	return out
}

// Resolve returns a copy of obj bound to its registered volume. The copy owns
// its Metadata map.
func (r *Registry) Resolve(obj *CacheObject) (*CacheObject, error) {
	if obj == nil {
		return nil, errors.New("nil cache object")
	}
	vol, ok := r.Volume(obj.VolumeName)
	if !ok {
		return nil, fmt.Errorf("unknown cache volume %q", obj.VolumeName)
	}
	bound := *obj
	bound.Volume = vol
	bound.Metadata = obj.Metadata.Clone()
	return &bound, nil
}

// Locate returns the object from the first volume, in registration order,
// that holds name.
func (r *Registry) Locate(ctx context.Context, name string) (*CacheObject, error) {
	for _, l := range r.Ledgers() {
		obj, err := l.volume.Get(ctx, name)
		if err == nil {
			return obj, nil
		}
		if !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrInvalidName) {
			return nil, err
		}
	}
	return nil, ErrNotFound
}

// Prime measures the current usage of every volume.
func (r *Registry) Prime(ctx context.Context) error {
	for _, l := range r.Ledgers() {
		if err := l.Prime(ctx); err != nil {
			return err
		}
	}
	return nil
}
