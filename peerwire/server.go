package peerwire

import (
	"encoding/hex"
	"encoding/json"
	stdliberrors "errors"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/mr-pandabear/pandanode/errors"
	"github.com/mr-pandabear/pandanode/model"
	"github.com/mr-pandabear/pandanode/stores/kvstore"
	"github.com/mr-pandabear/pandanode/ulogger"
)

const (
	addTxRateLimit = 50 // requests per second, per source address
	addTxBurst     = 100
)

func hexDecode(s string) ([]byte, error) { return hex.DecodeString(s) }

// Chain is the slice of chain state the server exposes over HTTP.
type Chain interface {
	Tip() (height uint32, hash model.Hash, totalWork *big.Int)
	DifficultyForNext() uint8
	Balance(addr model.PublicAddress) model.Amount
	GetBlock(id uint32) (*model.Block, error)
	GetHeaders(start, end uint32) ([]*model.BlockHeader, error)
}

// PeerBook is the slice of HostManager the server exposes via GET /peers.
type PeerBook interface {
	SampleAllHosts() []string
}

// Pool is the slice of Mempool the server exposes for submission and
// diagnostics.
type Pool interface {
	AddTransaction(tx *model.Transaction) errors.ERR
	Size() int
}

// BlockSubmitter is the slice of the block-acceptance pipeline the server
// exposes via POST /submit.
type BlockSubmitter interface {
	SubmitBlock(block *model.Block) errors.ERR
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server answers the peer-to-peer HTTP/JSON protocol: identity, peer list,
// chain-tip queries, transaction submission, and a diagnostic websocket
// stream of newly admitted transactions.
type Server struct {
	logger  ulogger.Logger
	name    string
	version string
	network string
	address string

	chain     Chain
	peers     PeerBook
	pool      Pool
	submitter BlockSubmitter

	mux *http.ServeMux

	subsMu sync.Mutex
	subs   map[*websocket.Conn]struct{}

	limitersMu sync.Mutex
	limiters   map[string]*rate.Limiter
}

func NewServer(logger ulogger.Logger, name, version, network, address string, chain Chain, peers PeerBook, pool Pool, submitter BlockSubmitter) *Server {
	s := &Server{
		logger:    logger,
		name:      name,
		version:   version,
		network:   network,
		address:   address,
		chain:     chain,
		peers:     peers,
		pool:      pool,
		submitter: submitter,
		subs:      make(map[*websocket.Conn]struct{}),
		limiters:  make(map[string]*rate.Limiter),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/name", s.handleName)
	mux.HandleFunc("/peers", s.handlePeers)
	mux.HandleFunc("/block_count", s.handleBlockCount)
	mux.HandleFunc("/total_work", s.handleTotalWork)
	mux.HandleFunc("/block/", s.handleBlock)
	mux.HandleFunc("/block_headers", s.handleBlockHeaders)
	mux.HandleFunc("/add_transaction", s.handleAddTransaction)
	mux.HandleFunc("/submit", s.handleSubmit)
	mux.HandleFunc("/mine_status", s.handleMineStatus)
	mux.HandleFunc("/ledger/", s.handleLedger)
	mux.HandleFunc("/tx_json", s.handleTxJSON)
	s.mux = mux

	return s
}

func (s *Server) Handler() http.Handler { return s.mux }

// limiterFor returns the per-source rate limiter for the submitting
// address, creating one on first contact. Protects /add_transaction from a
// single misbehaving or overeager peer flooding admission checks.
func (s *Server) limiterFor(addr string) *rate.Limiter {
	s.limitersMu.Lock()
	defer s.limitersMu.Unlock()

	l, ok := s.limiters[addr]
	if !ok {
		l = rate.NewLimiter(rate.Limit(addTxRateLimit), addTxBurst)
		s.limiters[addr] = l
	}
	return l
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleName(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, nameResponse{
		Version:     s.version,
		NetworkName: s.network,
		Address:     s.address,
		TimeMs:      time.Now().UnixMilli(),
	})
}

func (s *Server) handlePeers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, peersResponse{Peers: s.peers.SampleAllHosts()})
}

func (s *Server) handleBlockCount(w http.ResponseWriter, r *http.Request) {
	height, _, _ := s.chain.Tip()
	writeJSON(w, http.StatusOK, blockCountResponse{Height: height})
}

func (s *Server) handleTotalWork(w http.ResponseWriter, r *http.Request) {
	_, _, work := s.chain.Tip()
	writeJSON(w, http.StatusOK, totalWorkResponse{TotalWork: work.String()})
}

func (s *Server) handleBlock(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/block/")
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		http.Error(w, "invalid block id", http.StatusBadRequest)
		return
	}

	block, err := s.chain.GetBlock(uint32(id))
	if err != nil {
		if stdliberrors.Is(err, kvstore.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(block.Bytes())
}

func (s *Server) handleBlockHeaders(w http.ResponseWriter, r *http.Request) {
	start, err1 := strconv.ParseUint(r.URL.Query().Get("start"), 10, 32)
	end, err2 := strconv.ParseUint(r.URL.Query().Get("end"), 10, 32)
	if err1 != nil || err2 != nil {
		http.Error(w, "start and end query params are required", http.StatusBadRequest)
		return
	}

	headers, err := s.chain.GetHeaders(uint32(start), uint32(end))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, blockHeadersResponse{Headers: headers})
}

func (s *Server) handleAddTransaction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !s.limiterFor(r.RemoteAddr).Allow() {
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	var batch addTransactionsRequest
	if err := json.Unmarshal(body, &batch); err == nil && len(batch.Transactions) > 0 {
		var last errors.ERR
		admitted := make([]*model.Transaction, 0, len(batch.Transactions))
		for _, tx := range batch.Transactions {
			last = s.pool.AddTransaction(tx)
			if last == errors.ERR_SUCCESS {
				admitted = append(admitted, tx)
			}
		}
		if len(admitted) > 0 {
			s.broadcast(admitted)
		}
		writeJSON(w, http.StatusOK, statusResponse{Status: int32(last), Message: last.String()})
		return
	}

	var single addTransactionRequest
	if err := json.Unmarshal(body, &single); err != nil || single.Transaction == nil {
		http.Error(w, "invalid transaction payload", http.StatusBadRequest)
		return
	}

	status := s.pool.AddTransaction(single.Transaction)
	if status == errors.ERR_SUCCESS {
		s.broadcast([]*model.Transaction{single.Transaction})
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: int32(status), Message: status.String()})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req submitBlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Block == nil || req.Block.Header == nil {
		http.Error(w, "invalid block payload", http.StatusBadRequest)
		return
	}

	status := s.submitter.SubmitBlock(req.Block)
	writeJSON(w, http.StatusOK, statusResponse{Status: int32(status), Message: status.String()})
}

func (s *Server) handleMineStatus(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		subID := uuid.NewString()
		s.subsMu.Lock()
		s.subs[conn] = struct{}{}
		s.subsMu.Unlock()
		s.logger.Infof("peerwire: mine_status subscriber %s connected from %s", subID, r.RemoteAddr)
		go s.readUntilClose(subID, conn)
		return
	}

	height, hash, _ := s.chain.Tip()
	writeJSON(w, http.StatusOK, mineStatusResponse{
		Height:         height,
		TipHash:        hash.String(),
		Difficulty:     s.chain.DifficultyForNext(),
		MempoolSize:    s.pool.Size(),
		ConnectedPeers: len(s.peers.SampleAllHosts()),
	})
}

func (s *Server) readUntilClose(subID string, conn *websocket.Conn) {
	defer func() {
		s.subsMu.Lock()
		delete(s.subs, conn)
		s.subsMu.Unlock()
		conn.Close()
		s.logger.Infof("peerwire: mine_status subscriber %s disconnected", subID)
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// broadcast pushes newly admitted transactions to every connected
// /mine_status websocket subscriber, best-effort.
func (s *Server) broadcast(txs []*model.Transaction) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	if len(s.subs) == 0 {
		return
	}
	payload, err := json.Marshal(txs)
	if err != nil {
		return
	}
	for conn := range s.subs {
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			delete(s.subs, conn)
			conn.Close()
		}
	}
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	addrStr := strings.TrimPrefix(r.URL.Path, "/ledger/")
	addrBytes, err := hexDecode(addrStr)
	if err != nil {
		http.Error(w, "invalid address", http.StatusBadRequest)
		return
	}
	addr, err := model.AddressFromBytes(addrBytes)
	if err != nil {
		http.Error(w, "invalid address", http.StatusBadRequest)
		return
	}

	bal := s.chain.Balance(addr)
	writeJSON(w, http.StatusOK, ledgerResponse{Address: addrStr, Balance: uint64(bal), Decimal: bal.Decimal()})
}

func (s *Server) handleTxJSON(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var tx model.Transaction
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		http.Error(w, "invalid transaction json", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}
