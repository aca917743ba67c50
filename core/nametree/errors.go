package nametree

import "errors"

var (
	// ErrKeyNotFound and ErrKeyExists are ordinary outcomes, not failures.
	ErrKeyNotFound = errors.New("key not found")
	ErrKeyExists   = errors.New("key already exists")

	// ErrKeyTooLarge rejects keys that could not be split across pages.
	ErrKeyTooLarge = errors.New("key exceeds maximum size for page")

	// ErrIndexOutOfRange reports a caller error: an entry index outside
	// [0, entry count).
	ErrIndexOutOfRange = errors.New("entry index out of range")

	// ErrPageCorrupt reports a failed structural check on a single page.
	// It is sticky: once a page is marked, every later access re-reports
	// it without re-validating.
	ErrPageCorrupt = errors.New("page is corrupt")

	// ErrTreeCorrupt reports a corrupt page encountered during a tree
	// operation. The operation is aborted with nothing committed.
	ErrTreeCorrupt = errors.New("tree structure is corrupt")

	// ErrPageOverflow reports an entry that does not fit even after the
	// page was split.
	ErrPageOverflow = errors.New("entry does not fit in page")
)
