package model

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// BlockHeader is the fixed-size, hashable portion of a Block.
type BlockHeader struct {
	ID               uint32 `json:"id"` // height, 1-based
	PreviousHash     Hash   `json:"previous_hash"`
	MerkleRoot       Hash   `json:"merkle_root"`
	Timestamp        int64  `json:"timestamp"`
	DifficultyTarget uint8  `json:"difficulty_target"` // leading zero bits of required work
	Nonce            uint64 `json:"nonce"`
}

// headerSize is the exact encoded byte length of BlockHeader.Bytes(), which
// lets BlockFromReader read the header without a length prefix.
const headerSize = 4 + HashSize + HashSize + 8 + 1 + 8

func (h *BlockHeader) Bytes() []byte {
	buf := make([]byte, 0, headerSize)
	b4 := make([]byte, 4)
	binary.LittleEndian.PutUint32(b4, h.ID)
	buf = append(buf, b4...)
	buf = append(buf, h.PreviousHash.Bytes()...)
	buf = append(buf, h.MerkleRoot.Bytes()...)
	b8 := make([]byte, 8)
	binary.LittleEndian.PutUint64(b8, uint64(h.Timestamp))
	buf = append(buf, b8...)
	buf = append(buf, h.DifficultyTarget)
	binary.LittleEndian.PutUint64(b8, h.Nonce)
	buf = append(buf, b8...)
	return buf
}

func BlockHeaderFromBytes(b []byte) (*BlockHeader, error) {
	if len(b) != headerSize {
		return nil, fmt.Errorf("block header: expected %d bytes, got %d", headerSize, len(b))
	}
	h := &BlockHeader{}
	off := 0
	h.ID = binary.LittleEndian.Uint32(b[off:])
	off += 4
	prev, err := HashFromBytes(b[off : off+HashSize])
	if err != nil {
		return nil, err
	}
	h.PreviousHash = prev
	off += HashSize
	mr, err := HashFromBytes(b[off : off+HashSize])
	if err != nil {
		return nil, err
	}
	h.MerkleRoot = mr
	off += HashSize
	h.Timestamp = int64(binary.LittleEndian.Uint64(b[off:]))
	off += 8
	h.DifficultyTarget = b[off]
	off++
	h.Nonce = binary.LittleEndian.Uint64(b[off:])
	return h, nil
}

// Block is a header plus an ordered list of transactions. Exactly one
// transaction in a non-genesis block is the coinbase (IsFee()).
type Block struct {
	Header       *BlockHeader   `json:"header"`
	Transactions []*Transaction `json:"transactions"`

	// Hash is the proof-of-work hash, derived externally via crypto.Hasher
	// and cached here once computed.
	Hash Hash `json:"hash"`
}

func (b *Block) Coinbase() *Transaction {
	for _, tx := range b.Transactions {
		if tx.IsFee() {
			return tx
		}
	}
	return nil
}

// MerkleRoot computes the Merkle root of the block's transactions using h
// for the pairwise hashing step, matching b.Header.MerkleRoot once the block is
// correctly constructed.
func (b *Block) MerkleRoot(h ContentHasher) Hash {
	if len(b.Transactions) == 0 {
		return NullHash
	}

	level := make([]Hash, len(b.Transactions))
	for i, tx := range b.Transactions {
		level[i] = tx.Hash
	}

	for len(level) > 1 {
		next := make([]Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := left
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, h.ContentHash(append(left.Bytes(), right.Bytes()...)))
		}
		level = next
	}
	return level[0]
}

// Bytes serializes the block as the header followed by a length-prefixed
// transaction blob, matching the peer-wire "headers + transaction blob"
// encoding of GET /block/{id}.
func (b *Block) Bytes() []byte {
	buf := &bytes.Buffer{}
	buf.Write(b.Header.Bytes())
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(b.Transactions)))
	buf.Write(n[:])
	for _, tx := range b.Transactions {
		txBytes := tx.Bytes()
		binary.LittleEndian.PutUint32(n[:], uint32(len(txBytes)))
		buf.Write(n[:])
		buf.Write(txBytes)
	}
	return buf.Bytes()
}

func BlockFromReader(r io.Reader) (*Block, error) {
	headerB := make([]byte, headerSize)
	if _, err := io.ReadFull(r, headerB); err != nil {
		return nil, fmt.Errorf("block: read header: %w", err)
	}
	header, err := BlockHeaderFromBytes(headerB)
	if err != nil {
		return nil, err
	}

	var txCount uint32
	if err := binary.Read(r, binary.LittleEndian, &txCount); err != nil {
		return nil, fmt.Errorf("block: read tx count: %w", err)
	}

	txs := make([]*Transaction, 0, txCount)
	for i := uint32(0); i < txCount; i++ {
		var size uint32
		if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
			return nil, fmt.Errorf("block: read tx %d size: %w", i, err)
		}
		txB := make([]byte, size)
		if _, err := io.ReadFull(r, txB); err != nil {
			return nil, fmt.Errorf("block: read tx %d: %w", i, err)
		}
		tx, err := TransactionFromBytes(txB)
		if err != nil {
			return nil, fmt.Errorf("block: decode tx %d: %w", i, err)
		}
		txs = append(txs, tx)
	}

	return &Block{Header: header, Transactions: txs}, nil
}

func BlockFromBytes(b []byte) (*Block, error) {
	return BlockFromReader(bytes.NewReader(b))
}

// TargetThreshold returns the 32-byte big-endian threshold a proof-of-work
// hash must be numerically below for the given difficulty target (leading
// zero bits required).
func TargetThreshold(difficultyTarget uint8) [HashSize]byte {
	var t [HashSize]byte
	for i := range t {
		t[i] = 0xFF
	}
	zeroBytes := int(difficultyTarget) / 8
	remBits := uint(difficultyTarget) % 8
	for i := 0; i < zeroBytes && i < HashSize; i++ {
		t[i] = 0
	}
	if zeroBytes < HashSize && remBits > 0 {
		t[zeroBytes] = 0xFF >> remBits
	}
	return t
}

// HashMeetsTarget reports whether hash, read as a big-endian integer, is
// strictly below the threshold implied by difficultyTarget.
func HashMeetsTarget(hash Hash, difficultyTarget uint8) bool {
	threshold := TargetThreshold(difficultyTarget)
	for i := 0; i < HashSize; i++ {
		if hash[i] < threshold[i] {
			return true
		}
		if hash[i] > threshold[i] {
			return false
		}
	}
	return false
}
