package store

import "context"

// Driver persists the serialized conversation set to a single string-keyed
// slot in durable storage. Load is called once at startup; Save after every
// mutation once the initial load has completed.
type Driver interface {
	// Load returns the stored document, or ok=false if the slot is empty.
	Load(ctx context.Context) (value string, ok bool, err error)
	// Save replaces the slot with the given document.
	Save(ctx context.Context, value string) error
	Close() error
}
