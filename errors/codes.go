package errors

// ERR enumerates the node's error/status codes. The first block mirrors the
// admission/submission status enum of the wire protocol; the remainder are
// internal categories used for transient, consensus, and corruption errors.
type ERR int32

const (
	ERR_SUCCESS ERR = iota
	ERR_ALREADY_IN_QUEUE
	ERR_UNSUPPORTED_CHAIN
	ERR_TRANSACTION_FEE_TOO_LOW
	ERR_BALANCE_TOO_LOW
	ERR_QUEUE_FULL
	ERR_INVALID_SIGNATURE
	ERR_INVALID_NONCE
	ERR_EXPIRED_TRANSACTION
	ERR_INVALID_BLOCK_ID
	ERR_INVALID_DIFFICULTY
	ERR_INVALID_PREVIOUS_HASH
	ERR_INVALID_MERKLE_ROOT
	ERR_INVALID_TRANSACTION_COUNT
	ERR_INVALID_POW
	ERR_UNKNOWN

	// Internal categories, not part of the wire status enum.
	ERR_PEER_TRANSIENT    // timeout, connection refused, malformed partial response
	ERR_PEER_INVALID      // consensus violation by a peer: blacklist and abort
	ERR_STORAGE           // local corruption: fatal
	ERR_NOT_FOUND
	ERR_INVALID_ARGUMENT
	ERR_THRESHOLD_EXCEEDED
)

var errNames = map[ERR]string{
	ERR_SUCCESS:                   "Success",
	ERR_ALREADY_IN_QUEUE:          "AlreadyInQueue",
	ERR_UNSUPPORTED_CHAIN:         "UnsupportedChain",
	ERR_TRANSACTION_FEE_TOO_LOW:   "TransactionFeeTooLow",
	ERR_BALANCE_TOO_LOW:           "BalanceTooLow",
	ERR_QUEUE_FULL:                "QueueFull",
	ERR_INVALID_SIGNATURE:         "InvalidSignature",
	ERR_INVALID_NONCE:             "InvalidNonce",
	ERR_EXPIRED_TRANSACTION:       "ExpiredTransaction",
	ERR_INVALID_BLOCK_ID:          "InvalidBlockId",
	ERR_INVALID_DIFFICULTY:        "InvalidDifficulty",
	ERR_INVALID_PREVIOUS_HASH:     "InvalidPreviousHash",
	ERR_INVALID_MERKLE_ROOT:       "InvalidMerkleRoot",
	ERR_INVALID_TRANSACTION_COUNT: "InvalidTransactionCount",
	ERR_INVALID_POW:               "InvalidPow",
	ERR_UNKNOWN:                   "Unknown",
	ERR_PEER_TRANSIENT:            "PeerTransient",
	ERR_PEER_INVALID:              "PeerInvalid",
	ERR_STORAGE:                   "Storage",
	ERR_NOT_FOUND:                 "NotFound",
	ERR_INVALID_ARGUMENT:          "InvalidArgument",
	ERR_THRESHOLD_EXCEEDED:        "ThresholdExceeded",
}

func (c ERR) String() string {
	if n, ok := errNames[c]; ok {
		return n
	}
	return "Unknown"
}

var (
	ErrUnknown      = New(ERR_UNKNOWN, "unknown error")
	ErrNotFound     = New(ERR_NOT_FOUND, "not found")
	ErrPeerInvalid  = New(ERR_PEER_INVALID, "peer violated consensus rules")
	ErrPeerTimeout  = New(ERR_PEER_TRANSIENT, "peer request timed out")
)

// NewStorageError wraps a local-storage failure. Callers on the
// block-acceptance write path treat this as fatal, per the node's
// corruption-handling policy.
func NewStorageError(message string, params ...interface{}) *Error {
	return New(ERR_STORAGE, message, params...)
}

// NewProcessingError is a catch-all for internal processing failures that
// don't fit a more specific category.
func NewProcessingError(message string, params ...interface{}) *Error {
	return New(ERR_UNKNOWN, message, params...)
}
