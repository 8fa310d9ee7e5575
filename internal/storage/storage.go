// Package storage defines the errors shared by the game aggregate stores.
//
// A store keeps one record per lobby and guards writes with the aggregate
// version: a save or delete only succeeds when the stored version still
// equals the version the caller read.
package storage

import "errors"

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// ErrVersionConflict indicates the record changed since it was read.
var ErrVersionConflict = errors.New("version conflict")
