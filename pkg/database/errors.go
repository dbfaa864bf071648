package database

import "errors"

// ErrNotReady indicates the database cannot currently be reached.
var ErrNotReady = errors.New("database not ready")
