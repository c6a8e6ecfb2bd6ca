// Package envelope provides the symmetric envelope used for biometric templates at rest
// and the asymmetric envelope used for server-recoverable PINs.
package envelope

import "errors"

var (
	ErrInvalidKeyLength         = errors.New("symmetric key must be exactly 32 bytes")
	ErrDecryption               = errors.New("symmetric decryption failed")
	ErrKeyLoad                  = errors.New("failed to load rsa key material")
	ErrInvalidPinFormat         = errors.New("pin must be a non-empty string of decimal digits")
	ErrCiphertextLengthMismatch = errors.New("pin ciphertext length does not match key size")
	ErrPinDecryption            = errors.New("pin decryption failed")
)
