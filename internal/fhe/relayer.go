package fhe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"auroraexhibit/internal/signer"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const (
	keyURLPath      = "/v1/keyurl"
	userDecryptPath = "/v1/user-decrypt"

	defaultValidityDays = 10
)

// RelayerConfig configures a relayer-backed instance
type RelayerConfig struct {
	URL               string
	ChainID           uint64
	DecryptionAddress common.Address
	ValidityDays      int
	HTTPClient        *http.Client
}

// RelayerInstance decrypts through the FHEVM relayer HTTP API
type RelayerInstance struct {
	cfg    RelayerConfig
	signer signer.Signer
	now    func() time.Time
}

type handleContractPair struct {
	Handle          string `json:"handle"`
	ContractAddress string `json:"contractAddress"`
}

type requestValidity struct {
	StartTimestamp string `json:"startTimestamp"`
	DurationDays   string `json:"durationDays"`
}

type userDecryptRequest struct {
	HandleContractPairs []handleContractPair `json:"handleContractPairs"`
	RequestValidity     requestValidity      `json:"requestValidity"`
	ContractsChainID    string               `json:"contractsChainId"`
	ContractAddresses   []string             `json:"contractAddresses"`
	UserAddress         string               `json:"userAddress"`
	Signature           string               `json:"signature"`
	PublicKey           string               `json:"publicKey"`
}

type decryptedValue struct {
	Handle string `json:"handle"`
	Value  string `json:"value"`
}

type userDecryptResponse struct {
	Response []decryptedValue `json:"response"`
	Message  string           `json:"message,omitempty"`
}

// NewRelayerInstance checks the relayer is reachable and serving key material
func NewRelayerInstance(ctx context.Context, cfg RelayerConfig, s signer.Signer) (*RelayerInstance, error) {
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	if cfg.URL == "" {
		return nil, fmt.Errorf("relayer URL is required for chain %d", cfg.ChainID)
	}
	if cfg.ValidityDays <= 0 {
		cfg.ValidityDays = defaultValidityDays
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.URL+keyURLPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build key url request: %w", err)
	}
	resp, err := cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: relayer %s unreachable: %v", ErrNetwork, cfg.URL, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("relayer %s returned %s for %s", cfg.URL, resp.Status, keyURLPath)
	}

	return &RelayerInstance{cfg: cfg, signer: s, now: time.Now}, nil
}

func (r *RelayerInstance) ChainID() uint64 {
	return r.cfg.ChainID
}

// Decrypt signs a user-decrypt authorization and asks the relayer for the value
func (r *RelayerInstance) Decrypt(ctx context.Context, req DecryptRequest) (*big.Int, error) {
	if r.signer == nil {
		return nil, fmt.Errorf("%w: user decryption needs a signing account", ErrNotAuthorized)
	}
	user := r.signer.Address()
	if req.User != (common.Address{}) && req.User != user {
		return nil, fmt.Errorf("%w: cannot sign for %s", ErrNotAuthorized, req.User.Hex())
	}

	ephemeral, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate keypair: %w", err)
	}
	publicKey := crypto.FromECDSAPub(&ephemeral.PublicKey)
	start := r.now().Unix()

	typed := UserDecryptTypedData(publicKey, []common.Address{req.Contract}, r.cfg.ChainID, r.cfg.DecryptionAddress, start, r.cfg.ValidityDays)
	sig, err := r.signer.SignTypedData(typed)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(userDecryptRequest{
		HandleContractPairs: []handleContractPair{{Handle: req.Handle.Hex(), ContractAddress: req.Contract.Hex()}},
		RequestValidity: requestValidity{
			StartTimestamp: strconv.FormatInt(start, 10),
			DurationDays:   strconv.Itoa(r.cfg.ValidityDays),
		},
		ContractsChainID:  strconv.FormatUint(r.cfg.ChainID, 10),
		ContractAddresses: []string{req.Contract.Hex()},
		UserAddress:       user.Hex(),
		Signature:         hexutil.Encode(sig),
		PublicKey:         hexutil.Encode(publicKey),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode decrypt request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.URL+userDecryptPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build decrypt request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.cfg.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	var out userDecryptResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&out)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: relayer returned %s %s", ErrNotAuthorized, resp.Status, out.Message)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: relayer returned %s", ErrNetwork, resp.Status)
	case resp.StatusCode != http.StatusOK:
		if isAuthorizationMessage(out.Message) {
			return nil, fmt.Errorf("%w: %s", ErrNotAuthorized, out.Message)
		}
		return nil, fmt.Errorf("relayer rejected decrypt request: %s %s", resp.Status, out.Message)
	case decodeErr != nil:
		return nil, fmt.Errorf("failed to decode relayer response: %w", decodeErr)
	}

	for _, v := range out.Response {
		if !strings.EqualFold(v.Handle, req.Handle.Hex()) {
			continue
		}
		value, ok := new(big.Int).SetString(v.Value, 10)
		if !ok {
			return nil, fmt.Errorf("relayer returned a malformed value for %s: %q", v.Handle, v.Value)
		}
		return value, nil
	}
	return nil, fmt.Errorf("relayer response has no value for %s", req.Handle.Hex())
}

// UserDecryptTypedData is the EIP-712 message a user signs to authorize decryption
func UserDecryptTypedData(publicKey []byte, contracts []common.Address, chainID uint64, verifyingContract common.Address, start int64, durationDays int) apitypes.TypedData {
	addrs := make([]interface{}, len(contracts))
	for i, c := range contracts {
		addrs[i] = c.Hex()
	}

	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"UserDecryptRequestVerification": []apitypes.Type{
				{Name: "publicKey", Type: "bytes"},
				{Name: "contractAddresses", Type: "address[]"},
				{Name: "contractsChainId", Type: "uint256"},
				{Name: "startTimestamp", Type: "uint256"},
				{Name: "durationDays", Type: "uint256"},
			},
		},
		PrimaryType: "UserDecryptRequestVerification",
		Domain: apitypes.TypedDataDomain{
			Name:              "Decryption",
			Version:           "1",
			ChainId:           math.NewHexOrDecimal256(int64(chainID)),
			VerifyingContract: verifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"publicKey":         hexutil.Encode(publicKey),
			"contractAddresses": addrs,
			"contractsChainId":  strconv.FormatUint(chainID, 10),
			"startTimestamp":    strconv.FormatInt(start, 10),
			"durationDays":      strconv.Itoa(durationDays),
		},
	}
}
