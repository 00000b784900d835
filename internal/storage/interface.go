// Package storage writes the running session's snapshot to disk so other
// processes can read the bot's status. Nothing is restored from it on start.
package storage

// Interface defines the contract for snapshot storage.
//
// Implementations must be safe for concurrent use.
type Interface interface {
	// Save replaces the stored snapshot with v.
	Save(v any) error
	// Load decodes the stored snapshot into v.
	Load(v any) error
	// Path returns where the snapshot lives.
	Path() string
}

// NewStorage creates a new storage implementation (currently JSON-based).
func NewStorage(filepath string) (Interface, error) {
	return NewJSONStorage(filepath)
}

// Ensure JSONStorage implements Interface
var _ Interface = (*JSONStorage)(nil)
