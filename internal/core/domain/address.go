package domain

import (
	"bytes"
	"crypto/sha512"
	"encoding/base32"
	"errors"
	"strings"
)

var (
	// ErrInvalidAddress is returned for malformed Algorand addresses.
	ErrInvalidAddress = errors.New("invalid algorand address")

	// ErrInvalidTxID is returned for malformed transaction ids.
	ErrInvalidTxID = errors.New("invalid transaction id")
)

// base32 without padding, as used by Algorand addresses and transaction ids.
var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

const (
	addressLen   = 58 // base32(32-byte key + 4-byte checksum)
	txIDLen      = 52 // base32(32-byte hash)
	checksumLen  = 4
	publicKeyLen = 32
)

// ValidateAddress checks an Algorand address: 58-char base32 encoding of a
// 32-byte public key followed by the last 4 bytes of its SHA-512/256 hash.
func ValidateAddress(addr string) error {
	if len(addr) != addressLen {
		return ErrInvalidAddress
	}
	decoded, err := b32.DecodeString(addr)
	if err != nil {
		return ErrInvalidAddress
	}
	if len(decoded) != publicKeyLen+checksumLen {
		return ErrInvalidAddress
	}
	sum := sha512.Sum512_256(decoded[:publicKeyLen])
	if !bytes.Equal(sum[len(sum)-checksumLen:], decoded[publicKeyLen:]) {
		return ErrInvalidAddress
	}
	return nil
}

// EncodeAddress converts a raw 32-byte public key into its text form.
func EncodeAddress(publicKey []byte) (string, error) {
	if len(publicKey) != publicKeyLen {
		return "", ErrInvalidAddress
	}
	sum := sha512.Sum512_256(publicKey)
	full := make([]byte, 0, publicKeyLen+checksumLen)
	full = append(full, publicKey...)
	full = append(full, sum[len(sum)-checksumLen:]...)
	return b32.EncodeToString(full), nil
}

// IsZeroAddress reports whether a raw public key is the all-zero address the
// contract stores before a freelancer accepts.
func IsZeroAddress(publicKey []byte) bool {
	for _, b := range publicKey {
		if b != 0 {
			return false
		}
	}
	return true
}

// ValidateTxID checks an Algorand transaction id: 52-char base32 encoding of
// a 32-byte hash.
func ValidateTxID(txid string) error {
	if len(txid) != txIDLen {
		return ErrInvalidTxID
	}
	if strings.ToUpper(txid) != txid {
		return ErrInvalidTxID
	}
	decoded, err := b32.DecodeString(txid)
	if err != nil {
		return ErrInvalidTxID
	}
	if len(decoded) != 32 {
		return ErrInvalidTxID
	}
	return nil
}
