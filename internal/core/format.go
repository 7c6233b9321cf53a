package core

import (
	"fmt"
	"sync"
)

// Parser is the interface implemented by all manifest format parsers.
type Parser interface {
	// Format returns the registered format name (e.g. "pyproject", "poetry").
	Format() string

	// Detect reports whether the raw manifest text looks like this format.
	Detect(data []byte) bool

	// Parse validates raw manifest text and returns a Descriptor.
	// Parse is pure: it performs no filesystem or network access.
	Parse(data []byte) (*Descriptor, error)

	// Marshal serializes a Descriptor back to manifest form. Re-parsing the
	// output yields a structurally equal descriptor.
	Marshal(d *Descriptor) ([]byte, error)
}

// Factory creates a parser instance.
type Factory func() Parser

var (
	factories = make(map[string]Factory)
	order     []string
	mu        sync.RWMutex
)

// Register adds a manifest format factory to the global registry.
// Detection order follows registration order.
func Register(format string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := factories[format]; !ok {
		order = append(order, format)
	}
	factories[format] = factory
}

// New creates a parser for the given format.
func New(format string) (Parser, error) {
	mu.RLock()
	factory, ok := factories[format]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
	return factory(), nil
}

// SupportedFormats returns all registered format names in registration order.
func SupportedFormats() []string {
	mu.RLock()
	defer mu.RUnlock()
	return append([]string(nil), order...)
}

// Detect returns a parser for the first registered format that recognizes
// the manifest text.
func Detect(data []byte) (Parser, error) {
	mu.RLock()
	names := append([]string(nil), order...)
	mu.RUnlock()

	for _, name := range names {
		p, err := New(name)
		if err != nil {
			continue
		}
		if p.Detect(data) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: no registered format recognizes this manifest", ErrUnknownFormat)
}
