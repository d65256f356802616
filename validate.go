package pasd

import "fmt"

// Guard helpers used at the DB/crypto boundary, adapted from the
// teacher's buffer/offset/size validation helpers to the shapes this
// package actually needs: ciphertext block-alignment and key length.

// validateBlockAligned checks that buf is non-empty and a multiple of
// the AES block size, per spec.md's Open Question resolution: reject
// explicitly instead of letting a division by 16 round down silently.
func validateBlockAligned(buf []byte, name string) error {
	if len(buf) == 0 {
		return errCrypto(fmt.Sprintf("%s is empty", name), nil)
	}
	if len(buf)%aesBlockSize != 0 {
		return errCrypto(fmt.Sprintf("%s length %d is not a multiple of %d", name, len(buf), aesBlockSize), nil)
	}
	return nil
}

// validateKeySize checks that key has the expected AES key length.
func validateKeySize(key []byte, expected int) error {
	if len(key) != expected {
		return errKeyLen(fmt.Errorf("got %d bytes, want %d", len(key), expected))
	}
	return nil
}

// validateNonEmptyPath checks that a required string config field
// (a filesystem path or a passphrase) was actually supplied.
func validateNonEmptyPath(value, field string) error {
	if value == "" {
		return errIncorrectConfig(field + " is not configured")
	}
	return nil
}
