// Package model defines the node's consensus data types: Hash, PublicAddress,
// Amount, Transaction, and Block, along with their binary wire encoding.
package model

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// HashSize is the fixed byte length of a Hash.
const HashSize = 32

// Hash is a fixed-length 32-byte content hash.
type Hash [HashSize]byte

// NullHash is the distinguished "none" value.
var NullHash = Hash{}

func (h Hash) IsNull() bool {
	return h == NullHash
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

func (h Hash) Bytes() []byte {
	b := make([]byte, HashSize)
	copy(b, h[:])
	return b
}

func (h Hash) MarshalJSON() ([]byte, error) {
	return []byte(`"` + h.String() + `"`), nil
}

func (h *Hash) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("hash: invalid JSON %q", s)
	}
	decoded, err := HashFromHex(s[1 : len(s)-1])
	if err != nil {
		return err
	}
	*h = decoded
	return nil
}

func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashSize {
		return h, fmt.Errorf("hash: expected %d bytes, got %d", HashSize, len(b))
	}
	copy(h[:], b)
	return h, nil
}

func HashFromHex(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, err
	}
	return HashFromBytes(b)
}

// AddressSize is the fixed byte length of a PublicAddress.
const AddressSize = 20

// PublicAddress is a fixed-length identifier derived from a public key; it
// is the key of the balance mapping.
type PublicAddress [AddressSize]byte

// NullAddress marks the "from" of a coinbase/fee transaction.
var NullAddress = PublicAddress{}

func (a PublicAddress) IsNull() bool {
	return a == NullAddress
}

func (a PublicAddress) String() string {
	return hex.EncodeToString(a[:])
}

func (a PublicAddress) Bytes() []byte {
	b := make([]byte, AddressSize)
	copy(b, a[:])
	return b
}

func (a PublicAddress) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

func (a *PublicAddress) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("address: invalid JSON %q", s)
	}
	decoded, err := hex.DecodeString(s[1 : len(s)-1])
	if err != nil {
		return err
	}
	addr, err := AddressFromBytes(decoded)
	if err != nil {
		return err
	}
	*a = addr
	return nil
}

func AddressFromBytes(b []byte) (PublicAddress, error) {
	var a PublicAddress
	if len(b) != AddressSize {
		return a, fmt.Errorf("address: expected %d bytes, got %d", AddressSize, len(b))
	}
	copy(a[:], b)
	return a, nil
}

// Amount is a non-negative integer count of the smallest currency unit.
// DecimalScaleFactor relates it to a human-readable decimal; no floating
// point appears on any consensus path.
type Amount uint64

const DecimalScaleFactor = 10000

func (a Amount) Decimal() float64 {
	return float64(a) / float64(DecimalScaleFactor)
}

func putUint64(b []byte, v uint64) {
	binary.LittleEndian.PutUint64(b, v)
}

func getUint64(b []byte) uint64 {
	return binary.LittleEndian.Uint64(b)
}
