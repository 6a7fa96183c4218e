package mempool

import (
	"encoding/binary"

	"github.com/mr-pandabear/pandanode/model"
)

// Fixed widths for the signature scheme this node ships with (Ed25519).
// TransactionRecord's layout is consensus-adjacent wire data, so these are
// constants rather than derived from whatever crypto.Signer happens to be
// configured.
const (
	signatureRecordSize  = 64
	signingKeyRecordSize = 32
)

// TransactionRecordSize is the exact byte length of one TransactionRecord.
const TransactionRecordSize = model.AddressSize*2 + 8*4 + model.HashSize*2 + signatureRecordSize + signingKeyRecordSize

// TransactionRecord is a fixed-size, caller-owned record of one
// transaction — the design note on get_raw calls for a sequence of these
// rather than a single raw buffer, so the wire layer (not this package)
// performs the final concatenation and owns the resulting storage.
type TransactionRecord [TransactionRecordSize]byte

func toRecord(tx *model.Transaction) TransactionRecord {
	var r TransactionRecord
	off := 0
	copy(r[off:], tx.From.Bytes())
	off += model.AddressSize
	copy(r[off:], tx.To.Bytes())
	off += model.AddressSize
	binary.LittleEndian.PutUint64(r[off:], uint64(tx.Amount))
	off += 8
	binary.LittleEndian.PutUint64(r[off:], uint64(tx.Fee))
	off += 8
	binary.LittleEndian.PutUint64(r[off:], uint64(tx.Timestamp))
	off += 8
	binary.LittleEndian.PutUint64(r[off:], tx.Nonce)
	off += 8
	copy(r[off:], tx.ProgramID.Bytes())
	off += model.HashSize
	copy(r[off:], tx.Hash.Bytes())
	off += model.HashSize
	// Signature/SigningKey are copied up to their fixed width; shorter
	// inputs (e.g. absent for coinbase) leave the remainder zeroed.
	copy(r[off:off+signatureRecordSize], tx.Signature)
	off += signatureRecordSize
	copy(r[off:off+signingKeyRecordSize], tx.SigningKey)
	return r
}

// GetRaw serializes the queue (main chain if programID is NullHash,
// otherwise that program's sub-queue) into a caller-owned sequence of
// fixed-size records.
func (m *Mempool) GetRaw(programID model.Hash) []TransactionRecord {
	m.queueLock.Lock()
	defer m.queueLock.Unlock()

	var src []*model.Transaction
	if programID.IsNull() {
		src = m.queue
	} else {
		src = m.programQueues[programID]
	}

	out := make([]TransactionRecord, len(src))
	for i, tx := range src {
		out[i] = toRecord(tx)
	}
	return out
}
