package domain

import "errors"

// ErrNotFound indicates that the document targeted by a replica or
// projection write does not exist. Handlers treat it as a no-op outcome,
// not a poison message.
var ErrNotFound = errors.New("document not found")
