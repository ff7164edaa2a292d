// internal/models/errors.go
package models

import "errors"

var ErrImmutableTransaction = errors.New("transactions are append-only")
