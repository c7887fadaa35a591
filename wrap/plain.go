package wrap

import "github.com/blockvault/bv"

// Plain is the identity wrapper: no encryption at all.
// Useful for tests and for vaults whose remote is already trusted.
type Plain struct{}

// Encrypt implements Wrapper.
func (Plain) Encrypt(plaintext bv.Blob) (bv.Blob, error) { return plaintext, nil }

// Decrypt implements Wrapper.
func (Plain) Decrypt(ciphertext bv.Blob) (bv.Blob, error) { return ciphertext, nil }
