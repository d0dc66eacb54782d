// Package registry holds the process-wide table of provider adapters and the
// auto-detection cascade that picks a provider/source_type pair from a
// filesystem path when the caller doesn't name one explicitly.
package registry

import (
	"sort"
	"strings"
	"sync"

	log "github.com/go-pkgz/lgr"

	"github.com/umputun/ingest-logs/app/ingestion"
)

// Adapter is the contract every provider implementation satisfies: a single
// polymorphic interface the driver depends on, with concrete providers
// registered by name.
type Adapter interface {
	ProviderName() string
	SupportedSourceTypes() []string
	ValidateSource(source ingestion.Source, baseDir string) (bool, string)
	Ingest(source ingestion.Source, opts ingestion.IngestOptions, emit func(ingestion.Record) error) error
}

// Constructor builds a fresh Adapter instance. Adapters are stateless enough
// that a constructor per lookup (rather than a shared singleton) keeps the
// registry simple and matches the Python registry's instantiate-on-get shape.
type Constructor func() Adapter

// Registry is a process-wide, concurrency-safe table of provider
// constructors, keyed by lowercased provider name.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Constructor
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{adapters: make(map[string]Constructor)}
}

// Register adds a constructor for providerName. Registration is idempotent:
// a second call for the same name overwrites the first and logs a warning,
// it never errors.
func (r *Registry) Register(providerName string, ctor Constructor) {
	name := strings.ToLower(providerName)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[name]; exists {
		log.Printf("[WARN] overwriting existing adapter for provider %q", name)
	}
	r.adapters[name] = ctor
}

// Get returns a fresh adapter instance for providerName, or a
// *ingestion.ProviderNotFoundError listing the registered names.
func (r *Registry) Get(providerName string) (Adapter, error) {
	name := strings.ToLower(providerName)

	r.mu.RLock()
	ctor, ok := r.adapters[name]
	providers := r.listLocked()
	r.mu.RUnlock()

	if !ok {
		return nil, &ingestion.ProviderNotFoundError{ProviderName: providerName, AvailableProviders: providers}
	}
	return ctor(), nil
}

// IsRegistered reports whether providerName has a constructor registered.
func (r *Registry) IsRegistered(providerName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.adapters[strings.ToLower(providerName)]
	return ok
}

// List returns the registered provider names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listLocked()
}

func (r *Registry) listLocked() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Default is the process-wide registry every built-in adapter registers
// itself into via an init() call, mirroring the Python registry's class-level
// singleton.
var Default = New()

// MustRegister registers ctor under providerName in the Default registry.
// Adapters call this from their package init().
func MustRegister(providerName string, ctor Constructor) {
	Default.Register(providerName, ctor)
}
