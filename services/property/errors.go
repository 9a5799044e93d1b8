package property

import "errors"

// ErrNotAllowed is a gate denial: property mutation requires the admin role.
var ErrNotAllowed = errors.New("not allowed to manage properties")
