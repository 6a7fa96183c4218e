package peerwire

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/mr-pandabear/pandanode/chaincfg"
	"github.com/mr-pandabear/pandanode/errors"
	"github.com/mr-pandabear/pandanode/model"
	"github.com/mr-pandabear/pandanode/ulogger"
	"github.com/mr-pandabear/pandanode/util/retry"
)

// Client speaks the HTTP/JSON peer protocol to other nodes. It satisfies
// hostmanager.Client, headerchain.PeerClient, and mempool.TxGossiper.
type Client struct {
	logger     ulogger.Logger
	httpClient *http.Client
}

func NewClient(logger ulogger.Logger) *Client {
	return &Client{
		logger:     logger,
		httpClient: &http.Client{},
	}
}

// getJSON retries every failed attempt (a connection error, any non-200
// status, or a body that does not decode), up to three attempts in all with
// a growing wait between them.
func (c *Client) getJSON(ctx context.Context, url string, out interface{}) error {
	return retry.WithLogger(ctx, c.logger, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return errors.New(errors.ERR_PEER_TRANSIENT, "GET %s: %v", url, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return errors.New(errors.ERR_PEER_TRANSIENT, "GET %s: status %d", url, resp.StatusCode)
		}

		return json.NewDecoder(resp.Body).Decode(out)
	}, retry.WithMessage(fmt.Sprintf("peerwire: GET %s: ", url)), retry.WithRetryCount(3), retry.WithBackoffDurationType(200*time.Millisecond))
}

func (c *Client) postJSON(ctx context.Context, url string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.New(errors.ERR_PEER_TRANSIENT, "POST %s: %v", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return errors.New(errors.ERR_PEER_TRANSIENT, "POST %s: status %d: %s", url, resp.StatusCode, string(b))
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Handshake is the result of GET /name: the peer's self-reported version,
// network, address, and clock, used by HostManager to insert/refresh a
// HostEntry and compute clock_delta_ms.
type Handshake struct {
	Version     string
	NetworkName string
	Address     string
	TimeMs      int64
}

func (c *Client) FetchName(ctx context.Context, peerURL string) (Handshake, error) {
	var resp nameResponse
	if err := c.getJSON(ctx, peerURL+"/name", &resp); err != nil {
		return Handshake{}, err
	}
	return Handshake{
		Version:     resp.Version,
		NetworkName: resp.NetworkName,
		Address:     resp.Address,
		TimeMs:      resp.TimeMs,
	}, nil
}

func (c *Client) FetchPeers(ctx context.Context, peerURL string) ([]string, error) {
	var resp peersResponse
	if err := c.getJSON(ctx, peerURL+"/peers", &resp); err != nil {
		return nil, err
	}
	return resp.Peers, nil
}

func (c *Client) FetchBlockCount(ctx context.Context, peerURL string) (uint64, error) {
	var resp blockCountResponse
	if err := c.getJSON(ctx, peerURL+"/block_count", &resp); err != nil {
		return 0, err
	}
	return uint64(resp.Height), nil
}

func (c *Client) FetchTotalWork(ctx context.Context, peerURL string) (*big.Int, error) {
	var resp totalWorkResponse
	if err := c.getJSON(ctx, peerURL+"/total_work", &resp); err != nil {
		return nil, err
	}
	work, ok := new(big.Int).SetString(resp.TotalWork, 10)
	if !ok {
		return nil, errors.New(errors.ERR_PEER_INVALID, "peer %s: malformed total_work %q", peerURL, resp.TotalWork)
	}
	return work, nil
}

func (c *Client) FetchBlockHash(ctx context.Context, peerURL string, id uint32) (model.Hash, error) {
	block, err := c.FetchBlock(ctx, peerURL, id)
	if err != nil {
		return model.Hash{}, err
	}
	return block.Hash, nil
}

func (c *Client) FetchBlock(ctx context.Context, peerURL string, id uint32) (*model.Block, error) {
	url := fmt.Sprintf("%s/block/%d", peerURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.New(errors.ERR_PEER_TRANSIENT, "GET %s: %v", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errors.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.New(errors.ERR_PEER_TRANSIENT, "GET %s: status %d", url, resp.StatusCode)
	}

	return model.BlockFromReader(resp.Body)
}

func (c *Client) FetchHeaders(ctx context.Context, peerURL string, start, end uint64) ([]*model.BlockHeader, error) {
	url := fmt.Sprintf("%s/block_headers?start=%s&end=%s", peerURL, strconv.FormatUint(start, 10), strconv.FormatUint(end, 10))
	var resp blockHeadersResponse
	if err := c.getJSON(ctx, url, &resp); err != nil {
		return nil, err
	}
	return resp.Headers, nil
}

// SendTransactions is mempool.TxGossiper: it posts the batch to peerURL's
// /add_transaction endpoint.
func (c *Client) SendTransactions(ctx context.Context, peerURL string, txs []*model.Transaction) error {
	ctx, cancel := context.WithTimeout(ctx, chaincfg.TimeoutMsDuration())
	defer cancel()

	body := addTransactionsRequest{Transactions: txs}
	var resp statusResponse
	return c.postJSON(ctx, peerURL+"/add_transaction", body, &resp)
}

// SubmitBlock posts a newly mined or fetched block to peerURL's /submit
// endpoint.
func (c *Client) SubmitBlock(ctx context.Context, peerURL string, block *model.Block) (errors.ERR, error) {
	ctx, cancel := context.WithTimeout(ctx, chaincfg.TimeoutSubmitMsDuration())
	defer cancel()

	body := submitBlockRequest{Block: block}
	var resp statusResponse
	if err := c.postJSON(ctx, peerURL+"/submit", body, &resp); err != nil {
		return errors.ERR_UNKNOWN, err
	}
	return errors.ERR(resp.Status), nil
}
