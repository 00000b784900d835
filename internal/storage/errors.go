package storage

import "errors"

// ErrNoSnapshot is returned when the session file has not been written yet.
var ErrNoSnapshot = errors.New("no session snapshot found")
