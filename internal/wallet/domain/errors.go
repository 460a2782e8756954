package domain

import "errors"

// ErrMissingIdentity marks an entity carrying neither an id nor a payment
// hash. Such entities are dropped from merges with a warning.
var ErrMissingIdentity = errors.New("wallet: entity has neither id nor payment hash")
