package peerwire

import (
	"context"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr-pandabear/pandanode/model"
	"github.com/mr-pandabear/pandanode/ulogger"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c := NewClient(ulogger.New("test"))
	httpmock.ActivateNonDefault(c.httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)
	return c
}

func TestFetchBlockCount(t *testing.T) {
	c := newTestClient(t)
	httpmock.RegisterResponder("GET", "http://peer.example/block_count",
		httpmock.NewJsonResponderOrPanic(200, blockCountResponse{Height: 42}))

	height, err := c.FetchBlockCount(context.Background(), "http://peer.example")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), height)
}

func TestFetchBlockCountRetriesTransientFailureThenSucceeds(t *testing.T) {
	c := newTestClient(t)

	attempts := 0
	httpmock.RegisterResponder("GET", "http://peer.example/block_count", func(req *http.Request) (*http.Response, error) {
		attempts++
		if attempts < 2 {
			return httpmock.NewStringResponse(503, "try again"), nil
		}
		return httpmock.NewJsonResponse(200, blockCountResponse{Height: 7})
	})

	height, err := c.FetchBlockCount(context.Background(), "http://peer.example")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), height)
	assert.GreaterOrEqual(t, attempts, 2)
}

func TestFetchTotalWorkParsesDecimalString(t *testing.T) {
	c := newTestClient(t)
	httpmock.RegisterResponder("GET", "http://peer.example/total_work",
		httpmock.NewJsonResponderOrPanic(200, totalWorkResponse{TotalWork: "123456789012345678901234567890"}))

	work, err := c.FetchTotalWork(context.Background(), "http://peer.example")
	require.NoError(t, err)
	assert.Equal(t, "123456789012345678901234567890", work.String())
}

func TestFetchTotalWorkRejectsMalformedWork(t *testing.T) {
	c := newTestClient(t)
	httpmock.RegisterResponder("GET", "http://peer.example/total_work",
		httpmock.NewJsonResponderOrPanic(200, totalWorkResponse{TotalWork: "not-a-number"}))

	_, err := c.FetchTotalWork(context.Background(), "http://peer.example")
	assert.Error(t, err)
}

func TestSendTransactionsPostsBatch(t *testing.T) {
	c := newTestClient(t)
	httpmock.RegisterResponder("POST", "http://peer.example/add_transaction",
		httpmock.NewJsonResponderOrPanic(200, statusResponse{Status: 0, Message: "Success"}))

	tx := &model.Transaction{To: model.PublicAddress{1}, Amount: 100}
	err := c.SendTransactions(context.Background(), "http://peer.example", []*model.Transaction{tx})
	require.NoError(t, err)
}

func TestFetchBlockReturnsNotFoundOn404(t *testing.T) {
	c := newTestClient(t)
	httpmock.RegisterResponder("GET", "http://peer.example/block/9",
		httpmock.NewStringResponder(404, "not found"))

	_, err := c.FetchBlock(context.Background(), "http://peer.example", 9)
	assert.Error(t, err)
}
