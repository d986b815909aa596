package provider

import (
	"context"
	"crypto/ecdsa"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/timelock-labs/withdrawal-deployer/chain/evm"
	"github.com/timelock-labs/withdrawal-deployer/chain/internal/kms"
)

var (
	testKMSKeyID     = "1234567-1234-1234-1234-123456789012"
	testKMSKeyRegion = "ap-southeast-1"
)

// revertingInitCode is contract creation code which reverts with Error("boom").
var revertingInitCode = hexutil.MustDecode(
	"0x6308c379a060e01b600052" + "6020600452" + "6004602452" + "63626f6f6d60e01b604452" + "60646000fd",
)

// newTestSimClient starts a simulated backend with a single prefunded account.
func newTestSimClient(t *testing.T) (*SimClient, *ecdsa.PrivateKey) {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	backend := simulated.NewBackend(types.GenesisAlloc{
		crypto.PubkeyToAddress(key.PublicKey): {Balance: prefundAmountWei},
	}, simulated.WithBlockGasLimit(simBlockGasLimit))

	client, err := NewSimClient(backend)
	require.NoError(t, err)
	client.Commit()

	t.Cleanup(func() { _ = client.Close() })

	return client, key
}

// sendTx signs and sends a legacy transaction from key. A nil to creates a contract.
func sendTx(
	t *testing.T, client evm.OnchainClient, key *ecdsa.PrivateKey, to *common.Address, data []byte,
) *types.Transaction {
	t.Helper()

	from := crypto.PubkeyToAddress(key.PublicKey)

	nonce, err := client.PendingNonceAt(t.Context(), from)
	require.NoError(t, err)

	gasPrice, err := client.SuggestGasPrice(t.Context())
	require.NoError(t, err)

	tx, err := types.SignTx(types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       to,
		Value:    big.NewInt(0),
		Gas:      200_000,
		GasPrice: gasPrice,
		Data:     data,
	}), types.LatestSignerForChainID(simChainID), key)
	require.NoError(t, err)

	require.NoError(t, client.SendTransaction(t.Context(), tx))

	return tx
}

// newFakeRPCServer answers every request with a valid eth_blockNumber response.
func newFakeRPCServer(t *testing.T) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"0x1"}`))
	}))
	t.Cleanup(srv.Close)

	return srv
}

type failingSignerGenerator struct{}

func (failingSignerGenerator) Generate(*big.Int) (*bind.TransactOpts, error) {
	return nil, assert.AnError
}

func (failingSignerGenerator) SignHash([]byte) ([]byte, error) {
	return nil, assert.AnError
}

type failingConfirmFunctor struct{}

func (failingConfirmFunctor) Generate(
	context.Context, uint64, evm.OnchainClient, common.Address,
) (evm.ConfirmFunc, error) {
	return nil, assert.AnError
}

// mockContractCaller is a testify mock of ContractCaller.
type mockContractCaller struct {
	mock.Mock
}

func newMockContractCaller(t *testing.T) *mockContractCaller {
	t.Helper()

	m := &mockContractCaller{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

func (m *mockContractCaller) CallContract(
	ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int,
) ([]byte, error) {
	args := m.Called(ctx, call, blockNumber)

	var out []byte
	if v := args.Get(0); v != nil {
		out = v.([]byte)
	}

	return out, args.Error(1)
}

// testKMSKey holds a local secp256k1 key standing in for a KMS key.
type testKMSKey struct {
	key *ecdsa.PrivateKey
}

func newTestKMSKey(t *testing.T) testKMSKey {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	return testKMSKey{key: key}
}

func (k testKMSKey) address() common.Address {
	return crypto.PubkeyToAddress(k.key.PublicKey)
}

// publicKeyDER encodes the public key the way KMS GetPublicKey does.
func (k testKMSKey) publicKeyDER(t *testing.T) []byte {
	t.Helper()

	pub := crypto.FromECDSAPub(&k.key.PublicKey)
	der, err := asn1.Marshal(kms.SPKI{
		AlgorithmIdentifier: pkix.AlgorithmIdentifier{
			Algorithm: asn1.ObjectIdentifier{1, 2, 840, 10045, 2, 1},
		},
		SubjectPublicKey: asn1.BitString{Bytes: pub, BitLength: len(pub) * 8},
	})
	require.NoError(t, err)

	return der
}

// signDER signs digest and encodes r and s the way KMS Sign does. highS returns the
// non-canonical s value.
func (k testKMSKey) signDER(t *testing.T, digest []byte, highS bool) []byte {
	t.Helper()

	sig, err := crypto.Sign(digest, k.key)
	require.NoError(t, err)

	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:64])
	if highS {
		s = new(big.Int).Sub(secp256k1N, s)
	}

	der, err := asn1.Marshal(struct{ R, S *big.Int }{r, s})
	require.NoError(t, err)

	return der
}
