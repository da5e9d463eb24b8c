// Package metadata implements a registry of uniquely namespaced
// producer-consumer contributors that attach extra fields on push and read
// them back on pop.
package metadata

import (
	"fmt"

	"github.com/thieman/deferrable/internal/item"
)

// Extension is a named contributor of per-item metadata fields.
type Extension interface {
	// Namespace uniquely identifies this extension. Registering a second
	// extension with the same namespace is a validation error.
	Namespace() string
	// Apply writes extension fields onto it just before push.
	Apply(it *item.Item)
	// Consume reads extension fields from it just after pop, typically
	// recording them in some extension-local context for the duration of
	// the execution.
	Consume(it *item.Item)
}

// Registry holds extensions in registration order, which is also their
// invocation order.
type Registry struct {
	extensions []Extension
}

// NewRegistry returns an empty MetadataExtensions registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds ext to the registry. It fails if ext's namespace is
// already in use.
func (r *Registry) Register(ext Extension) error {
	for _, existing := range r.extensions {
		if existing.Namespace() == ext.Namespace() {
			return fmt.Errorf("metadata: namespace %q is already in use", ext.Namespace())
		}
	}
	r.extensions = append(r.extensions, ext)
	return nil
}

// Clear removes every registered extension.
func (r *Registry) Clear() {
	r.extensions = nil
}

// ApplyAll runs Apply on every registered extension, in registration
// order, just before push.
func (r *Registry) ApplyAll(it *item.Item) {
	for _, ext := range r.extensions {
		ext.Apply(it)
	}
}

// ConsumeAll runs Consume on every registered extension, in registration
// order, just after pop and before user code executes.
func (r *Registry) ConsumeAll(it *item.Item) {
	for _, ext := range r.extensions {
		ext.Consume(it)
	}
}
