package fhe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"auroraexhibit/internal/contract"
	"auroraexhibit/internal/signer"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var testDecryptionAddress = common.HexToAddress("0xb6E160B1ff80D67Bfe90A85eE06Ce0A2613607D1")

// newRelayer serves keyurl and verifies the user-decrypt signature before answering with value
func newRelayer(t *testing.T, status int, value string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/keyurl", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response":{"fhe_key_info":[]}}`))
	})
	mux.HandleFunc("/v1/user-decrypt", func(w http.ResponseWriter, r *http.Request) {
		var req userDecryptRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			json.NewEncoder(w).Encode(userDecryptResponse{Message: "user is not allowed on this handle"})
			return
		}

		start, _ := strconv.ParseInt(req.RequestValidity.StartTimestamp, 10, 64)
		days, _ := strconv.Atoi(req.RequestValidity.DurationDays)
		chainID, _ := strconv.ParseUint(req.ContractsChainID, 10, 64)
		typed := UserDecryptTypedData(
			hexutil.MustDecode(req.PublicKey),
			[]common.Address{common.HexToAddress(req.ContractAddresses[0])},
			chainID, testDecryptionAddress, start, days,
		)
		signerAddr, err := signer.RecoverTypedData(typed, hexutil.MustDecode(req.Signature))
		if err != nil || signerAddr != common.HexToAddress(req.UserAddress) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		json.NewEncoder(w).Encode(userDecryptResponse{
			Response: []decryptedValue{{Handle: req.HandleContractPairs[0].Handle, Value: value}},
		})
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func newTestRelayer(t *testing.T, url string, s signer.Signer) *RelayerInstance {
	t.Helper()
	inst, err := NewRelayerInstance(context.Background(), RelayerConfig{
		URL:               url + "/",
		ChainID:           11155111,
		DecryptionAddress: testDecryptionAddress,
	}, s)
	require.NoError(t, err)
	return inst
}

func testHandle() contract.Handle {
	var h contract.Handle
	h[0], h[31] = 0x11, 0x05
	return h
}

func TestRelayerInstance_Decrypt(t *testing.T) {
	s, err := signer.NewKeySigner(testKey)
	require.NoError(t, err)
	ts := newRelayer(t, http.StatusOK, "7")

	inst := newTestRelayer(t, ts.URL, s)
	v, err := inst.Decrypt(context.Background(), DecryptRequest{
		Handle:   testHandle(),
		Contract: common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"),
		User:     s.Address(),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), v.Int64())
}

func TestRelayerInstance_Unauthorized(t *testing.T) {
	s, err := signer.NewKeySigner(testKey)
	require.NoError(t, err)

	tests := []struct {
		name   string
		status int
	}{
		{"forbidden", http.StatusForbidden},
		{"unauthorized", http.StatusUnauthorized},
		{"bad request with acl message", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newRelayer(t, tt.status, "")
			inst := newTestRelayer(t, ts.URL, s)

			_, err := inst.Decrypt(context.Background(), DecryptRequest{Handle: testHandle(), User: s.Address()})
			assert.ErrorIs(t, err, ErrNotAuthorized)
			assert.NotErrorIs(t, err, ErrNetwork)
		})
	}
}

func TestRelayerInstance_NetworkFailures(t *testing.T) {
	s, err := signer.NewKeySigner(testKey)
	require.NoError(t, err)

	ts := newRelayer(t, http.StatusBadGateway, "")
	inst := newTestRelayer(t, ts.URL, s)
	_, err = inst.Decrypt(context.Background(), DecryptRequest{Handle: testHandle()})
	assert.ErrorIs(t, err, ErrNetwork)

	ts.Close()
	_, err = inst.Decrypt(context.Background(), DecryptRequest{Handle: testHandle()})
	assert.ErrorIs(t, err, ErrNetwork)
	assert.NotErrorIs(t, err, ErrNotAuthorized)
}

func TestRelayerInstance_RequiresSigner(t *testing.T) {
	ts := newRelayer(t, http.StatusOK, "1")
	inst := newTestRelayer(t, ts.URL, nil)

	_, err := inst.Decrypt(context.Background(), DecryptRequest{Handle: testHandle()})
	assert.ErrorIs(t, err, ErrNotAuthorized)
}

func TestNewRelayerInstance_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	_, err := NewRelayerInstance(context.Background(), RelayerConfig{URL: ts.URL, ChainID: 1}, nil)
	assert.Error(t, err)

	ts.Close()
	_, err = NewRelayerInstance(context.Background(), RelayerConfig{URL: ts.URL, ChainID: 1}, nil)
	assert.ErrorIs(t, err, ErrNetwork)

	_, err = NewRelayerInstance(context.Background(), RelayerConfig{ChainID: 1}, nil)
	assert.Error(t, err)
}
