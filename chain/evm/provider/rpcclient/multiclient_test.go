package rpcclient

import (
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	chain_selectors "github.com/smartcontractkit/chain-selectors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timelock-labs/withdrawal-deployer/pkg/logger"
)

// newRPCServer starts a JSON-RPC server which answers each method from results. Methods missing
// from results are answered with a JSON-RPC error.
func newRPCServer(t *testing.T, results map[string]string) *httptest.Server {
	t.Helper()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")

		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		if res, ok := results[req.Method]; ok {
			resp["result"] = res
		} else {
			resp["error"] = map[string]any{"code": -32000, "message": "internal error"}
		}

		_ = json.NewEncoder(w).Encode(resp)
	})

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return srv
}

var testSelector = chain_selectors.ETHEREUM_TESTNET_SEPOLIA.Selector

func fastRetries() func(*MultiClient) {
	return WithRetryConfig(RetryConfig{
		Attempts:     1,
		Delay:        time.Millisecond,
		Timeout:      time.Second,
		DialAttempts: 1,
		DialDelay:    time.Millisecond,
		DialTimeout:  time.Second,
	})
}

func TestNewMultiClient(t *testing.T) {
	t.Parallel()

	good := newRPCServer(t, map[string]string{"eth_blockNumber": "0x1"})
	bad := newRPCServer(t, map[string]string{})

	tests := []struct {
		name        string
		giveRPCs    []RPC
		giveOpts    []func(*MultiClient)
		wantBackups int
		wantErr     string
	}{
		{
			name:     "single healthy RPC with defaults",
			giveRPCs: []RPC{{Name: "primary", HTTPURL: good.URL, PreferredURLScheme: URLSchemePreferenceHTTP}},
		},
		{
			name: "second RPC becomes a backup",
			giveRPCs: []RPC{
				{Name: "primary", HTTPURL: good.URL},
				{Name: "backup", HTTPURL: good.URL},
			},
			wantBackups: 1,
		},
		{
			name: "unhealthy RPC is dropped",
			giveRPCs: []RPC{
				{Name: "bad", HTTPURL: bad.URL},
				{Name: "good", HTTPURL: good.URL},
			},
			giveOpts: []func(*MultiClient){fastRetries()},
		},
		{
			name:     "no RPCs",
			giveRPCs: []RPC{},
			wantErr:  "no RPCs provided",
		},
		{
			name:     "all RPCs unhealthy",
			giveRPCs: []RPC{{Name: "bad", HTTPURL: bad.URL}},
			giveOpts: []func(*MultiClient){fastRetries()},
			wantErr:  "no valid RPC clients created",
		},
		{
			name:     "RPC without URLs",
			giveRPCs: []RPC{{Name: "empty"}},
			wantErr:  "no valid RPC clients created",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mc, err := NewMultiClient(logger.Test(t), RPCConfig{
				ChainSelector: testSelector,
				RPCs:          tt.giveRPCs,
			}, tt.giveOpts...)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, "ethereum-testnet-sepolia", mc.chainName)
			assert.Len(t, mc.Backups, tt.wantBackups)
			if len(tt.giveOpts) == 0 {
				assert.Equal(t, defaultRetryConfig(), mc.RetryConfig)
			}
		})
	}
}

func TestNewMultiClient_UnknownSelector(t *testing.T) {
	t.Parallel()

	_, err := NewMultiClient(logger.Test(t), RPCConfig{
		ChainSelector: 1,
		RPCs:          []RPC{{Name: "x", HTTPURL: "http://localhost"}},
	})
	require.ErrorContains(t, err, "chain with selector 1 not found")
}

func TestMultiClient_FailoverPromotesBackup(t *testing.T) {
	t.Parallel()

	// The primary passes the health check but cannot price gas.
	flaky := newRPCServer(t, map[string]string{"eth_blockNumber": "0x1"})
	healthy := newRPCServer(t, map[string]string{"eth_blockNumber": "0x1", "eth_gasPrice": "0x3b9aca00"})

	mc, err := NewMultiClient(logger.Test(t), RPCConfig{
		ChainSelector: testSelector,
		RPCs: []RPC{
			{Name: "flaky", HTTPURL: flaky.URL},
			{Name: "healthy", HTTPURL: healthy.URL},
		},
	}, fastRetries())
	require.NoError(t, err)

	primary, backup := mc.Client, mc.Backups[0]

	price, err := mc.SuggestGasPrice(t.Context())
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1_000_000_000), price)

	assert.Same(t, backup, mc.Client)
	require.Len(t, mc.Backups, 1)
	assert.Same(t, primary, mc.Backups[0])
}

func TestMultiClient_AllClientsFail(t *testing.T) {
	t.Parallel()

	srv := newRPCServer(t, map[string]string{"eth_blockNumber": "0x1"})

	mc, err := NewMultiClient(logger.Test(t), RPCConfig{
		ChainSelector: testSelector,
		RPCs:          []RPC{{Name: "only", HTTPURL: srv.URL}},
	}, fastRetries())
	require.NoError(t, err)

	_, err = mc.SuggestGasPrice(t.Context())
	require.ErrorContains(t, err, "all backup clients failed")
}
