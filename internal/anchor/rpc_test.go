package anchor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/escrowd/internal/config"
	"github.com/smartdevs17/escrowd/pkg/utils"
)

// fakeNode answers the JSON-RPC calls the anchor makes and counts them
type fakeNode struct {
	mu    sync.Mutex
	calls map[string]int
}

func newFakeNode() (*fakeNode, *httptest.Server) {
	node := &fakeNode{calls: make(map[string]int)}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		node.mu.Lock()
		node.calls[req.Method]++
		node.mu.Unlock()

		var result string
		switch req.Method {
		case "net_version":
			result = "31"
		case "eth_blockNumber":
			result = "0x10"
		default:
			http.Error(w, "unexpected method: "+req.Method, http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":%q}`, req.ID, result)
	}))

	return node, server
}

func (n *fakeNode) count(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

func newTestRPCAnchor(url string) *RPCAnchor {
	utils.InitLogger("error", "text", "stdout", "")
	return NewRPCAnchor(&config.ChainConfig{
		Mode:           "rpc",
		NodeURL:        url,
		RetryAttempts:  1,
		RetryDelay:     10 * time.Millisecond,
		RequestTimeout: 5 * time.Second,
	})
}

func TestRPCAnchorSubmit(t *testing.T) {
	node, server := newFakeNode()
	defer server.Close()

	anc := newTestRPCAnchor(server.URL)
	defer anc.Close()

	receipt, err := anc.Submit(context.Background(), &Submission{
		EscrowID:    1,
		Operation:   "initialize",
		Signer:      "0x1111111111111111111111111111111111111111",
		GrossAmount: 1000,
		NetAmount:   1000,
	})
	require.NoError(t, err)

	assert.Len(t, receipt.TxHash, 66)
	assert.Equal(t, uint64(31), receipt.NetworkID)
	assert.Equal(t, uint64(0x10), receipt.BlockNumber)
	assert.True(t, anc.IsHealthy())
	assert.GreaterOrEqual(t, node.count("net_version"), 1)

	t.Logf("✓ Settlement anchored with tx %s", receipt.TxHash)
}

func TestRPCAnchorHealthCheckRefresh(t *testing.T) {
	node, server := newFakeNode()
	defer server.Close()

	anc := newTestRPCAnchor(server.URL)
	defer anc.Close()

	submission := &Submission{
		EscrowID:  2,
		Operation: "release",
		Signer:    "0x1111111111111111111111111111111111111111",
	}

	// first submit connects: one health check plus the submit's own call
	_, err := anc.Submit(context.Background(), submission)
	require.NoError(t, err)
	require.Equal(t, 2, node.count("net_version"))

	// a stale client gets revalidated once, and the revalidation must
	// reset the staleness clock
	anc.mu.Lock()
	anc.lastHealthCheck = time.Now().Add(-2 * time.Minute)
	anc.mu.Unlock()

	_, err = anc.Submit(context.Background(), submission)
	require.NoError(t, err)
	assert.Equal(t, 4, node.count("net_version"), "Stale client should be revalidated once")

	anc.mu.RLock()
	refreshed := anc.lastHealthCheck
	anc.mu.RUnlock()
	assert.WithinDuration(t, time.Now(), refreshed, time.Minute,
		"Successful revalidation must refresh the health check timestamp")

	// freshly validated client is used as-is
	_, err = anc.Submit(context.Background(), submission)
	require.NoError(t, err)
	assert.Equal(t, 5, node.count("net_version"), "Fresh client must not be re-checked")
}

func TestRPCAnchorFailover(t *testing.T) {
	node, server := newFakeNode()
	defer server.Close()

	utils.InitLogger("error", "text", "stdout", "")
	anc := NewRPCAnchor(&config.ChainConfig{
		Mode:           "rpc",
		NodeURL:        "http://127.0.0.1:1", // unroutable primary
		BackupNodes:    []string{server.URL},
		RetryAttempts:  1,
		RetryDelay:     10 * time.Millisecond,
		RequestTimeout: 2 * time.Second,
	})
	defer anc.Close()

	receipt, err := anc.Submit(context.Background(), &Submission{
		EscrowID:  3,
		Operation: "cancel",
		Signer:    "0x1111111111111111111111111111111111111111",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, receipt.TxHash)
	assert.Equal(t, server.URL, anc.Stats().CurrentURL)
	assert.GreaterOrEqual(t, node.count("net_version"), 1)

	t.Logf("✓ Anchor failed over to backup node")
}
