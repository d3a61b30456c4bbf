// Copyright 2021 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package common

import (
	"encoding/hex"
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// HashLength is the expected length of the common.Hash type
const HashLength = 32

// EmptyHash is the zero value hash.
var EmptyHash = Hash{}

var (
	ErrNoPrefix      = errors.New("could not byteify non 0x prefixed string")
	ErrHashTooLong   = errors.New("hex string is longer than a hash")
	ErrInvalidHexStr = errors.New("invalid hex string")
)

// Hash used to store a blake2b hash, for example a relay chain block hash.
type Hash [HashLength]byte

// NewHash casts a byte slice to a Hash.
// If the input is longer than 32 bytes, it takes the first 32 bytes.
func NewHash(in []byte) (h Hash) {
	copy(h[:], in)
	return h
}

// RepeatByteHash returns a hash with every byte set to b.
func RepeatByteHash(b byte) (h Hash) {
	for i := range h {
		h[i] = b
	}
	return h
}

// ToBytes turns a hash to a byte slice
func (h Hash) ToBytes() []byte {
	b := [HashLength]byte(h)
	return b[:]
}

// IsEmpty returns true if the hash is empty, false otherwise.
func (h Hash) IsEmpty() bool {
	return h == EmptyHash
}

// String returns the hex string for the hash
func (h Hash) String() string {
	return fmt.Sprintf("0x%x", h[:])
}

// Short returns the first 4 bytes and the last 4 bytes of the hex string for the hash
func (h Hash) Short() string {
	const nBytes = 4
	return fmt.Sprintf("0x%x...%x", h[:nBytes], h[len(h)-nBytes:])
}

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler and
// decodes a 0x prefixed hex string into the hash.
func (h *Hash) UnmarshalText(text []byte) (err error) {
	*h, err = HexToHash(string(text))
	return err
}

// HexToHash turns a 0x prefixed hex string into type Hash.
// Shorter inputs are right aligned, so "0x01" is the hash ending in 0x01.
func HexToHash(in string) (h Hash, err error) {
	if !strings.HasPrefix(in, "0x") {
		return h, fmt.Errorf("%w: %q", ErrNoPrefix, in)
	}

	in = in[2:]
	if len(in)%2 == 1 {
		in = "0" + in
	}

	out, err := hex.DecodeString(in)
	if err != nil {
		return h, fmt.Errorf("%w: %s", ErrInvalidHexStr, err)
	}

	if len(out) > HashLength {
		return h, fmt.Errorf("%w: %d bytes", ErrHashTooLong, len(out))
	}

	copy(h[HashLength-len(out):], out)
	return h, nil
}

// MustHexToHash turns a 0x prefixed hex string into type Hash
// it panics if it cannot turn the string into a Hash
func MustHexToHash(in string) Hash {
	h, err := HexToHash(in)
	if err != nil {
		panic(err)
	}
	return h
}

// HashValidator is a go-playground validator custom type function
// so that an empty hash fails a `required` tag.
func HashValidator(field reflect.Value) interface{} {
	if valuer, ok := field.Interface().(Hash); ok {
		if valuer.IsEmpty() {
			return ""
		}
		return valuer.String()
	}
	return ""
}
