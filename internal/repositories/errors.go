package repositories

import "errors"

// Journal lookup and write failures callers are expected to branch on.
var (
	// ErrNotFound is returned by Resolve for an id that names no unresolved
	// entry, including malformed ids and entries resolved earlier.
	ErrNotFound = errors.New("journal entry not found or already resolved")
	// ErrConflict is returned by Record when an entry with the same id exists.
	ErrConflict = errors.New("journal entry already recorded")
)
