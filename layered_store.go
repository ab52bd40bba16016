package override

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// StoreLayer is a named precedence bucket backed by a Store. Higher priority
// values represent stronger layers.
type StoreLayer struct {
	Name     string
	Label    string
	Priority int
	Store    Store
	ReadOnly bool
}

// StoreLayerOption configures optional fields on a StoreLayer.
type StoreLayerOption func(*StoreLayer)

// WithLayerLabel sets a human-friendly label on the layer.
func WithLayerLabel(label string) StoreLayerOption {
	return func(layer *StoreLayer) {
		layer.Label = label
	}
}

// WithLayerReadOnly keeps Save from writing to the layer.
func WithLayerReadOnly() StoreLayerOption {
	return func(layer *StoreLayer) {
		layer.ReadOnly = true
	}
}

// NewStoreLayer builds a StoreLayer. Validation is deferred to
// NewLayeredStore so callers can assemble layers before deciding precedence.
func NewStoreLayer(name string, priority int, store Store, opts ...StoreLayerOption) StoreLayer {
	layer := StoreLayer{
		Name:     name,
		Priority: priority,
		Store:    store,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&layer)
	}
	if ro, ok := store.(ReadOnlyStore); ok && ro.ReadOnly() {
		layer.ReadOnly = true
	}
	return layer
}

func (l StoreLayer) label() string {
	if l.Label != "" {
		return l.Label
	}
	return l.Name
}

var (
	// ErrLayerNameRequired indicates a layer without a name.
	ErrLayerNameRequired = errors.New("layer: name must be provided")
	// ErrDuplicateLayerName indicates two layers share a name.
	ErrDuplicateLayerName = errors.New("layer: names must be unique")
	// ErrPriorityOrder indicates duplicate priorities.
	ErrPriorityOrder = errors.New("layer: priorities must be strictly ordered")
	// ErrStoreRequired indicates a layer without a backing store.
	ErrStoreRequired = errors.New("layer: store must be provided")
	// ErrNoWritableLayer indicates Save found no layer that accepts writes.
	ErrNoWritableLayer = errors.New("layer: no writable layer")
)

var (
	_ Store       = (*LayeredStore)(nil)
	_ Lister      = (*LayeredStore)(nil)
	_ WriteTarget = (*LayeredStore)(nil)
)

// LayeredStore resolves overrides across layers ordered from strongest to
// weakest. It is immutable after construction.
type LayeredStore struct {
	layers []StoreLayer
}

// NewLayeredStore validates and sorts layers so the strongest comes first.
func NewLayeredStore(layers ...StoreLayer) (*LayeredStore, error) {
	if len(layers) == 0 {
		return &LayeredStore{}, nil
	}

	seenNames := make(map[string]struct{}, len(layers))
	copied := make([]StoreLayer, len(layers))
	for i, layer := range layers {
		if layer.Name == "" {
			return nil, ErrLayerNameRequired
		}
		if layer.Store == nil {
			return nil, fmt.Errorf("%w: %s", ErrStoreRequired, layer.Name)
		}
		if _, ok := seenNames[layer.Name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateLayerName, layer.Name)
		}
		seenNames[layer.Name] = struct{}{}
		copied[i] = layer
	}

	sort.Slice(copied, func(i, j int) bool {
		if copied[i].Priority == copied[j].Priority {
			return copied[i].Name < copied[j].Name
		}
		return copied[i].Priority > copied[j].Priority
	})

	for i := 1; i < len(copied); i++ {
		if copied[i-1].Priority <= copied[i].Priority {
			return nil, fmt.Errorf("%w: %d", ErrPriorityOrder, copied[i].Priority)
		}
	}

	return &LayeredStore{layers: copied}, nil
}

// Layers returns the layers, strongest first.
func (s *LayeredStore) Layers() []StoreLayer {
	if s == nil || len(s.layers) == 0 {
		return nil
	}
	return append([]StoreLayer(nil), s.layers...)
}

// Len returns the number of layers.
func (s *LayeredStore) Len() int {
	if s == nil {
		return 0
	}
	return len(s.layers)
}

// Load returns the state of the strongest layer that holds a non-Default
// value for key.
func (s *LayeredStore) Load(ctx context.Context, key string) (OverrideState, error) {
	if s == nil {
		return Default, nil
	}
	for _, layer := range s.layers {
		state, err := layer.Store.Load(ctx, key)
		if err != nil {
			return Default, fmt.Errorf("layer %s: load %q: %w", layer.Name, key, err)
		}
		if state != Default {
			return state, nil
		}
	}
	return Default, nil
}

// Save writes to the strongest writable layer. A weaker layer keeps its
// value, so clearing an override may reveal one stored further down.
func (s *LayeredStore) Save(ctx context.Context, key string, state OverrideState) error {
	layer, ok := s.writable()
	if !ok {
		return ErrNoWritableLayer
	}
	if err := layer.Store.Save(ctx, key, state); err != nil {
		return fmt.Errorf("layer %s: save %q: %w", layer.Name, key, err)
	}
	return nil
}

// StoredOverride returns what the strongest writable layer holds for key,
// ignoring every other layer. It is the value Save overwrites.
func (s *LayeredStore) StoredOverride(ctx context.Context, key string) (OverrideState, error) {
	layer, ok := s.writable()
	if !ok {
		return Default, ErrNoWritableLayer
	}
	state, err := layer.Store.Load(ctx, key)
	if err != nil {
		return Default, fmt.Errorf("layer %s: load %q: %w", layer.Name, key, err)
	}
	return state, nil
}

func (s *LayeredStore) writable() (StoreLayer, bool) {
	if s == nil {
		return StoreLayer{}, false
	}
	for _, layer := range s.layers {
		if !layer.ReadOnly {
			return layer, true
		}
	}
	return StoreLayer{}, false
}

// Keys returns the sorted union of keys from every layer that implements
// Lister.
func (s *LayeredStore) Keys(ctx context.Context) ([]string, error) {
	if s == nil {
		return nil, nil
	}
	seen := make(map[string]struct{})
	for _, layer := range s.layers {
		lister, ok := layer.Store.(Lister)
		if !ok {
			continue
		}
		keys, err := lister.Keys(ctx)
		if err != nil {
			return nil, fmt.Errorf("layer %s: keys: %w", layer.Name, err)
		}
		for _, key := range keys {
			seen[key] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for key := range seen {
		out = append(out, key)
	}
	sort.Strings(out)
	return out, nil
}

// Trace reports what every layer holds for key and which one wins. Layer
// errors are recorded on the provenance entry instead of aborting the trace.
func (s *LayeredStore) Trace(ctx context.Context, key string) Trace {
	trace := Trace{Key: key, State: Default}
	if s == nil {
		return trace
	}
	for _, layer := range s.layers {
		entry := Provenance{
			Layer:    layer.Name,
			Label:    layer.label(),
			Priority: layer.Priority,
			ReadOnly: layer.ReadOnly,
			State:    Default,
		}
		state, err := layer.Store.Load(ctx, key)
		switch {
		case err != nil:
			entry.Error = err.Error()
		case state != Default:
			entry.State = state
			entry.Found = true
			if trace.Source == "" {
				trace.Source = layer.Name
				trace.State = state
			}
		}
		trace.Layers = append(trace.Layers, entry)
	}
	return trace
}
