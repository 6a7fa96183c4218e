package model

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Transaction is immutable once constructed. Equality is defined by Hash.
type Transaction struct {
	From      PublicAddress `json:"from"`
	To        PublicAddress `json:"to"`
	Amount    Amount        `json:"amount"`
	Fee       Amount        `json:"fee"`
	Timestamp int64         `json:"timestamp"` // milliseconds
	Signature []byte        `json:"signature,omitempty"`
	SigningKey []byte       `json:"signing_key,omitempty"`
	ProgramID Hash          `json:"program_id"`
	Nonce     uint64        `json:"nonce"`

	Hash Hash `json:"hash"`
}

// IsFee reports whether this is a coinbase/fee transaction: from == NULL and
// no signature is carried.
func (t *Transaction) IsFee() bool {
	return t.From.IsNull() && len(t.Signature) == 0
}

// signingPayload is the byte sequence the content hash and signature are
// computed over. It deliberately excludes Hash and Signature themselves.
func (t *Transaction) signingPayload() []byte {
	buf := &bytes.Buffer{}
	buf.Write(t.From.Bytes())
	buf.Write(t.To.Bytes())
	var amt [8]byte
	binary.LittleEndian.PutUint64(amt[:], uint64(t.Amount))
	buf.Write(amt[:])
	binary.LittleEndian.PutUint64(amt[:], uint64(t.Fee))
	buf.Write(amt[:])
	var ts [8]byte
	binary.LittleEndian.PutUint64(ts[:], uint64(t.Timestamp))
	buf.Write(ts[:])
	buf.Write(t.ProgramID.Bytes())
	var nonce [8]byte
	binary.LittleEndian.PutUint64(nonce[:], t.Nonce)
	buf.Write(nonce[:])
	return buf.Bytes()
}

// ContentHasher is the minimal hashing collaborator Transaction needs to
// derive its identity hash; crypto.Hasher satisfies it.
type ContentHasher interface {
	ContentHash(data []byte) Hash
}

// Finalize computes and sets t.Hash from the transaction's signing payload.
// Callers must call this exactly once after populating every other field.
func (t *Transaction) Finalize(h ContentHasher) {
	t.Hash = h.ContentHash(t.signingPayload())
}

// SigningMessage returns the payload a Signer/Verifier operates over.
func (t *Transaction) SigningMessage() []byte {
	return t.signingPayload()
}

// Bytes serializes the transaction into the node's fixed wire layout:
// length-prefixed variable fields around fixed-size ones, the same shape
// the teacher uses for its own consensus-critical types.
func (t *Transaction) Bytes() []byte {
	buf := &bytes.Buffer{}
	buf.Write(t.From.Bytes())
	buf.Write(t.To.Bytes())
	_ = binary.Write(buf, binary.LittleEndian, uint64(t.Amount))
	_ = binary.Write(buf, binary.LittleEndian, uint64(t.Fee))
	_ = binary.Write(buf, binary.LittleEndian, t.Timestamp)
	writeBytes(buf, t.Signature)
	writeBytes(buf, t.SigningKey)
	buf.Write(t.ProgramID.Bytes())
	_ = binary.Write(buf, binary.LittleEndian, t.Nonce)
	buf.Write(t.Hash.Bytes())
	return buf.Bytes()
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(b)))
	buf.Write(b)
}

func readBytes(r io.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

// TransactionFromReader is the inverse of Bytes.
func TransactionFromReader(r io.Reader) (*Transaction, error) {
	t := &Transaction{}

	fromB := make([]byte, AddressSize)
	if _, err := io.ReadFull(r, fromB); err != nil {
		return nil, fmt.Errorf("transaction: read from: %w", err)
	}
	from, err := AddressFromBytes(fromB)
	if err != nil {
		return nil, err
	}
	t.From = from

	toB := make([]byte, AddressSize)
	if _, err := io.ReadFull(r, toB); err != nil {
		return nil, fmt.Errorf("transaction: read to: %w", err)
	}
	to, err := AddressFromBytes(toB)
	if err != nil {
		return nil, err
	}
	t.To = to

	var amount, fee uint64
	if err := binary.Read(r, binary.LittleEndian, &amount); err != nil {
		return nil, err
	}
	t.Amount = Amount(amount)
	if err := binary.Read(r, binary.LittleEndian, &fee); err != nil {
		return nil, err
	}
	t.Fee = Amount(fee)
	if err := binary.Read(r, binary.LittleEndian, &t.Timestamp); err != nil {
		return nil, err
	}

	if t.Signature, err = readBytes(r); err != nil {
		return nil, err
	}
	if t.SigningKey, err = readBytes(r); err != nil {
		return nil, err
	}

	programB := make([]byte, HashSize)
	if _, err := io.ReadFull(r, programB); err != nil {
		return nil, fmt.Errorf("transaction: read program_id: %w", err)
	}
	if t.ProgramID, err = HashFromBytes(programB); err != nil {
		return nil, err
	}

	if err := binary.Read(r, binary.LittleEndian, &t.Nonce); err != nil {
		return nil, err
	}

	hashB := make([]byte, HashSize)
	if _, err := io.ReadFull(r, hashB); err != nil {
		return nil, fmt.Errorf("transaction: read hash: %w", err)
	}
	if t.Hash, err = HashFromBytes(hashB); err != nil {
		return nil, err
	}

	return t, nil
}

// TransactionFromBytes is a convenience wrapper around TransactionFromReader.
func TransactionFromBytes(b []byte) (*Transaction, error) {
	return TransactionFromReader(bytes.NewReader(b))
}
