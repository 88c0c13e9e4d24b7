// Package handler defines the contract a vendor-specific browser-automation
// handler implements, and a registry mapping vendor tokens to handler
// factories, wired by hand in the composition root rather than resolved
// through a reflective class-path lookup or service locator.
package handler

import (
	"context"
	"fmt"
	"sync"

	"github.com/juanqu261/bots-brokerwiz/internal/domain"
)

// Severity classifies a non-fatal condition a handler wants surfaced
// without aborting the run (e.g. a vendor site showing a banner the
// handler can route around but that an operator should still see logged).
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// VendorHandler drives one job through a vendor's quotation flow. Setup
// and Teardown bracket Run so implementations can open and release a
// browser session, temp directory, or similar resource regardless of
// whether Run succeeds.
type VendorHandler interface {
	// Setup prepares any resources Run needs.
	Setup(ctx context.Context) error
	// Run executes the quotation flow. The returned bool reports whether
	// the job completed successfully; err carries the classifiable
	// failure when it did not.
	Run(ctx context.Context) (bool, error)
	// Teardown releases resources acquired in Setup. It always runs,
	// even when Setup or Run failed.
	Teardown(ctx context.Context) error
	// ReportError lets a handler emit a structured, non-aborting error
	// observation mid-run.
	ReportError(ctx context.Context, code, message string, severity Severity)
}

// Factory builds a VendorHandler scoped to one job.
type Factory func(jobID string, payload map[string]any) VendorHandler

// Registry maps a vendor token to its handler factory. Registration is
// explicit and must happen at composition-root time; there is no
// reflection-based discovery.
type Registry struct {
	mu        sync.RWMutex
	factories map[domain.Vendor]Factory
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[domain.Vendor]Factory)}
}

// Register binds vendor to factory. Registering the same vendor twice
// overwrites the prior binding.
func (r *Registry) Register(vendor domain.Vendor, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[vendor] = factory
}

// Lookup returns the factory bound to vendor, or domain.ErrBotNotImplemented
// if none is registered.
func (r *Registry) Lookup(vendor domain.Vendor) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[vendor]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrBotNotImplemented, vendor)
	}
	return f, nil
}

// RegisteredVendors returns the vendors with a bound factory.
func (r *Registry) RegisteredVendors() []domain.Vendor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Vendor, 0, len(r.factories))
	for v := range r.factories {
		out = append(out, v)
	}
	return out
}
