package bv

import "errors"

// Sentinel errors classifying every failure the vault can surface.
// Callers test with errors.Is; individual sites add context by wrapping
// (github.com/pkg/errors preserves the chain).
var (
	// ErrNotFound is returned when no object exists at an address.
	// It is an error for Get and a benign no-op for Delete.
	ErrNotFound = errors.New("not found")

	// ErrTransient marks network or service hiccups.
	// Safe to retry with backoff.
	ErrTransient = errors.New("transient storage error")

	// ErrIntegrity marks a checksum mismatch between stored data and its
	// recorded digest. Never retried as a fresh read: it may indicate
	// corruption that needs investigating.
	ErrIntegrity = errors.New("integrity check failed")

	// ErrCrypto marks a cipher failure: bad key or corrupt ciphertext.
	ErrCrypto = errors.New("crypto failure")

	// ErrUnknownWrapper is returned when a wrapper tag has no registered
	// implementation, e.g. restoring on a build missing a cipher module.
	ErrUnknownWrapper = errors.New("unknown wrapper")

	// ErrUnsupportedFormat is returned when a manifest's format version is
	// ahead of what this code can read.
	ErrUnsupportedFormat = errors.New("unsupported manifest format")
)
