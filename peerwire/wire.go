// Package peerwire implements component F's external interface: the
// HTTP/JSON protocol peers speak to each other, both as a client (for
// HostManager, the header-chain tracker, and mempool gossip) and as a
// server (exposing this node's own state to the rest of the network).
package peerwire

import "github.com/mr-pandabear/pandanode/model"

// nameResponse answers GET /name: the handshake §4.B uses to insert or
// refresh a HostEntry and compute clock_delta_ms.
type nameResponse struct {
	Version     string `json:"version"`
	NetworkName string `json:"networkName"`
	Address     string `json:"address"`
	TimeMs      int64  `json:"time_ms"`
}

// peersResponse answers GET /peers.
type peersResponse struct {
	Peers []string `json:"peers"`
}

// blockCountResponse answers GET /block_count.
type blockCountResponse struct {
	Height uint32 `json:"height"`
}

// totalWorkResponse answers GET /total_work, work as a decimal string since
// it can exceed 64 bits.
type totalWorkResponse struct {
	TotalWork string `json:"total_work"`
}

// blockHeadersResponse answers GET /block_headers.
type blockHeadersResponse struct {
	Headers []*model.BlockHeader `json:"headers"`
}

// addTransactionRequest is the POST /add_transaction body.
type addTransactionRequest struct {
	Transaction *model.Transaction `json:"transaction"`
}

// addTransactionsRequest batches several transactions for gossip; the same
// endpoint accepts a single transaction (see addTransactionRequest) or a
// batch, distinguished by which field is populated.
type addTransactionsRequest struct {
	Transactions []*model.Transaction `json:"transactions"`
}

// statusResponse answers POST /add_transaction and POST /submit.
type statusResponse struct {
	Status  int32  `json:"status"`
	Message string `json:"message"`
}

// submitBlockRequest is the POST /submit body.
type submitBlockRequest struct {
	Block *model.Block `json:"block"`
}

// ledgerResponse answers GET /ledger/{addr}.
type ledgerResponse struct {
	Address string  `json:"address"`
	Balance uint64  `json:"balance"`
	Decimal float64 `json:"decimal"`
}

// mineStatusResponse answers GET /mine_status.
type mineStatusResponse struct {
	Height         uint32 `json:"height"`
	TipHash        string `json:"tip_hash"`
	Difficulty     uint8  `json:"difficulty"`
	MempoolSize    int    `json:"mempool_size"`
	ConnectedPeers int    `json:"connected_peers"`
}
