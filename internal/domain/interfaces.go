package domain

import (
	"context"
)

// Oracle is an opaque text-completion service. Implementations may fail at any time;
// callers always have a fallback.
type Oracle interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// DrugCatalog is the static drug reference lookup
type DrugCatalog interface {
	// Lookup returns the properties of a drug by (case-insensitive) generic name,
	// or an error matching ErrDrugNotFound.
	Lookup(name string) (DrugProperties, error)
	// Names lists catalog keys in sorted order.
	Names() []string
}

// AdverseEventCatalog is the static table of known per-drug adverse events
type AdverseEventCatalog interface {
	KnownEvents(drugName string) []KnownAdverseEvent
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	Validate() error
}
