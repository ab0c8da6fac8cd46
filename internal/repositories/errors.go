package repositories

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates the attempted write would violate a uniqueness constraint.
	ErrConflict = errors.New("record conflict")
	// ErrTerminal indicates the request already reached a terminal status and
	// cannot transition further.
	ErrTerminal = errors.New("request already terminal")
)
