package contract

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"auroraexhibit/internal/metrics"
	"auroraexhibit/internal/signer"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Backend is the chain surface the adapter needs. *ethclient.Client satisfies it.
type Backend interface {
	bind.DeployBackend
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// PendingTx is a submitted but unconfirmed transaction.
// Anything derived from it is provisional until Confirm returns.
type PendingTx struct {
	Method      string
	PieceID     uint64
	Hash        common.Hash
	SubmittedAt time.Time

	tx *types.Transaction
}

// Adapter binds the gallery contract on one chain
type Adapter struct {
	backend Backend
	abi     abi.ABI
	chainID *big.Int
	address common.Address
	enabled bool
	signer  signer.Signer

	// held from nonce lookup until the transaction is sent
	sendMu sync.Mutex
}

// NewAdapter creates an adapter for chainID. When the table has no deployment
// for the chain the adapter is created disabled and every call returns ErrUnavailable.
// s may be nil for a read-only adapter.
func NewAdapter(backend Backend, chainID uint64, table AddressTable, s signer.Signer) *Adapter {
	addr, ok := table.Lookup(chainID)
	if !ok {
		slog.Warn("No gallery deployment for chain, contract calls disabled", "chain_id", chainID)
	}
	return &Adapter{
		backend: backend,
		abi:     ParsedABI,
		chainID: new(big.Int).SetUint64(chainID),
		address: addr,
		enabled: ok,
		signer:  s,
	}
}

// CanAct reports whether a deployment exists for the adapter's chain
func (a *Adapter) CanAct() bool {
	return a.enabled
}

// CanSign reports whether state-mutating calls can be signed
func (a *Adapter) CanSign() bool {
	return a.enabled && a.signer != nil
}

// Address returns the contract address (zero when disabled)
func (a *Adapter) Address() common.Address {
	return a.address
}

// ChainID returns the chain the adapter is bound to
func (a *Adapter) ChainID() uint64 {
	return a.chainID.Uint64()
}

// Account returns the signing account, if any
func (a *Adapter) Account() (common.Address, bool) {
	if a.signer == nil {
		return common.Address{}, false
	}
	return a.signer.Address(), true
}

// SubmitMint validates req and submits mintPiece
func (a *Adapter) SubmitMint(ctx context.Context, req MintRequest) (*PendingTx, error) {
	if err := ValidateMint(req); err != nil {
		return nil, err
	}
	tags := req.Tags
	if tags == nil {
		tags = []string{}
	}
	return a.transact(ctx, MethodMintPiece, 0,
		req.Title,
		req.DescriptionHash,
		req.FileHash,
		tags,
		categoryStrings(req.Categories),
	)
}

// SubmitApplaud submits applaud(pieceId)
func (a *Adapter) SubmitApplaud(ctx context.Context, pieceID uint64) (*PendingTx, error) {
	return a.transact(ctx, MethodApplaud, pieceID, new(big.Int).SetUint64(pieceID))
}

// SubmitEndorse submits endorse(pieceId, category)
func (a *Adapter) SubmitEndorse(ctx context.Context, pieceID uint64, category Category) (*PendingTx, error) {
	if !category.Valid() {
		return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidPiece, category)
	}
	return a.transact(ctx, MethodEndorse, pieceID, new(big.Int).SetUint64(pieceID), string(category))
}

// Confirm waits until the transaction is included and checks it did not revert
func (a *Adapter) Confirm(ctx context.Context, p *PendingTx) (*types.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, a.backend, p.tx)
	if err != nil {
		metrics.TransactionsConfirmed.WithLabelValues(p.Method, "error").Inc()
		return nil, &TxError{Method: p.Method, Stage: StageConfirm, TxHash: p.Hash, Err: err}
	}
	metrics.ConfirmationDuration.Observe(time.Since(p.SubmittedAt).Seconds())

	if receipt.Status != types.ReceiptStatusSuccessful {
		metrics.TransactionsConfirmed.WithLabelValues(p.Method, "reverted").Inc()
		slog.Error("Transaction reverted",
			"method", p.Method,
			"tx_hash", p.Hash.Hex(),
			"piece_id", p.PieceID,
		)
		return receipt, &TxError{Method: p.Method, Stage: StageConfirm, TxHash: p.Hash, Err: ErrReverted}
	}

	metrics.TransactionsConfirmed.WithLabelValues(p.Method, "success").Inc()
	slog.Info("Transaction confirmed",
		"method", p.Method,
		"tx_hash", p.Hash.Hex(),
		"block_number", receipt.BlockNumber,
		"gas_used", receipt.GasUsed,
	)
	return receipt, nil
}

// Mint submits mintPiece, waits for inclusion and returns the new piece id
func (a *Adapter) Mint(ctx context.Context, req MintRequest) (uint64, error) {
	pending, err := a.SubmitMint(ctx, req)
	if err != nil {
		return 0, err
	}
	receipt, err := a.Confirm(ctx, pending)
	if err != nil {
		return 0, err
	}
	return a.MintedPieceID(receipt)
}

// Applaud submits applaud and waits for inclusion
func (a *Adapter) Applaud(ctx context.Context, pieceID uint64) error {
	pending, err := a.SubmitApplaud(ctx, pieceID)
	if err != nil {
		return err
	}
	_, err = a.Confirm(ctx, pending)
	return err
}

// Endorse submits endorse and waits for inclusion
func (a *Adapter) Endorse(ctx context.Context, pieceID uint64, category Category) error {
	pending, err := a.SubmitEndorse(ctx, pieceID, category)
	if err != nil {
		return err
	}
	_, err = a.Confirm(ctx, pending)
	return err
}

// MintedPieceID extracts the id from the PieceMinted log emitted by this contract
func (a *Adapter) MintedPieceID(receipt *types.Receipt) (uint64, error) {
	eventID := a.abi.Events[EventPieceMinted].ID
	for _, l := range receipt.Logs {
		if l.Address != a.address || len(l.Topics) < 2 || l.Topics[0] != eventID {
			continue
		}
		return new(big.Int).SetBytes(l.Topics[1].Bytes()).Uint64(), nil
	}
	return 0, ErrNoMintEvent
}

// pieceTuple mirrors the fetchPiece outputs
type pieceTuple struct {
	Id              *big.Int
	Artist          common.Address
	Title           string
	DescriptionHash string
	FileHash        string
	Tags            []string
	Categories      []string
	Timestamp       uint64
	LikesHandle     [32]byte
}

// FetchPiece reads a full piece record including its like handle
func (a *Adapter) FetchPiece(ctx context.Context, pieceID uint64) (*Piece, error) {
	out, err := a.call(ctx, MethodFetchPiece, new(big.Int).SetUint64(pieceID))
	if err != nil {
		return nil, err
	}

	var t pieceTuple
	if err := a.abi.UnpackIntoInterface(&t, MethodFetchPiece, out); err != nil {
		return nil, fmt.Errorf("failed to unpack fetchPiece result: %w", err)
	}

	categories := make([]Category, len(t.Categories))
	for i, c := range t.Categories {
		categories[i] = Category(c)
	}
	tags := t.Tags
	if tags == nil {
		tags = []string{}
	}

	return &Piece{
		ID:              t.Id.Uint64(),
		Artist:          t.Artist,
		Title:           t.Title,
		DescriptionHash: t.DescriptionHash,
		FileHash:        t.FileHash,
		Tags:            tags,
		Categories:      categories,
		CreatedAt:       time.Unix(int64(t.Timestamp), 0).UTC(),
		LikesHandle:     Handle(t.LikesHandle),
	}, nil
}

// ListPieceIDs returns every piece id in contract order
func (a *Adapter) ListPieceIDs(ctx context.Context) ([]uint64, error) {
	out, err := a.call(ctx, MethodListPieces)
	if err != nil {
		return nil, err
	}

	var raw []*big.Int
	if err := a.abi.UnpackIntoInterface(&raw, MethodListPieces, out); err != nil {
		return nil, fmt.Errorf("failed to unpack listPieces result: %w", err)
	}

	ids := make([]uint64, len(raw))
	for i, id := range raw {
		ids[i] = id.Uint64()
	}
	return ids, nil
}

// FetchTally returns the encrypted vote handle for (piece, category)
func (a *Adapter) FetchTally(ctx context.Context, pieceID uint64, category Category) (Handle, error) {
	out, err := a.call(ctx, MethodTallyFor, new(big.Int).SetUint64(pieceID), string(category))
	if err != nil {
		return Handle{}, err
	}

	var h [32]byte
	if err := a.abi.UnpackIntoInterface(&h, MethodTallyFor, out); err != nil {
		return Handle{}, fmt.Errorf("failed to unpack tallyFor result: %w", err)
	}
	return Handle(h), nil
}

// NextPieceID returns the id the next mint will receive
func (a *Adapter) NextPieceID(ctx context.Context) (uint64, error) {
	n, err := a.callUint(ctx, MethodNextPieceID)
	if err != nil {
		return 0, err
	}
	return n.Uint64(), nil
}

// ProtocolID returns the FHEVM protocol id the contract was compiled against
func (a *Adapter) ProtocolID(ctx context.Context) (*big.Int, error) {
	return a.callUint(ctx, MethodProtocolID)
}

func (a *Adapter) callUint(ctx context.Context, method string) (*big.Int, error) {
	out, err := a.call(ctx, method)
	if err != nil {
		return nil, err
	}
	var n *big.Int
	if err := a.abi.UnpackIntoInterface(&n, method, out); err != nil {
		return nil, fmt.Errorf("failed to unpack %s result: %w", method, err)
	}
	return n, nil
}

func (a *Adapter) call(ctx context.Context, method string, args ...interface{}) ([]byte, error) {
	if !a.enabled {
		return nil, ErrUnavailable
	}

	data, err := a.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s call: %w", method, err)
	}

	msg := ethereum.CallMsg{To: &a.address, Data: data}
	if a.signer != nil {
		msg.From = a.signer.Address()
	}

	metrics.ContractCalls.WithLabelValues(method).Inc()
	out, err := a.backend.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", method, err)
	}
	return out, nil
}

func (a *Adapter) transact(ctx context.Context, method string, pieceID uint64, args ...interface{}) (*PendingTx, error) {
	if !a.enabled {
		return nil, ErrUnavailable
	}
	if a.signer == nil {
		return nil, ErrNoSigner
	}

	data, err := a.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s call: %w", method, err)
	}
	from := a.signer.Address()

	submitErr := func(err error) error {
		return &TxError{Method: method, Stage: StageSubmit, Err: err}
	}

	gasLimit, err := a.backend.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &a.address, Data: data})
	if err != nil {
		return nil, submitErr(fmt.Errorf("failed to estimate gas: %w", err))
	}
	// Add 20% buffer
	gasLimit = gasLimit * 12 / 10

	a.sendMu.Lock()
	defer a.sendMu.Unlock()

	nonce, err := a.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, submitErr(fmt.Errorf("failed to get nonce: %w", err))
	}

	gasPrice, err := a.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, submitErr(fmt.Errorf("failed to get gas price: %w", err))
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &a.address,
		Value:    big.NewInt(0),
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signedTx, err := a.signer.SignTx(tx, a.chainID)
	if err != nil {
		return nil, submitErr(err)
	}

	slog.Info("Submitting gallery transaction",
		"method", method,
		"tx_hash", signedTx.Hash().Hex(),
		"piece_id", pieceID,
		"gas_limit", gasLimit,
		"gas_price", gasPrice.String(),
		"nonce", nonce,
	)

	if err := a.backend.SendTransaction(ctx, signedTx); err != nil {
		return nil, submitErr(fmt.Errorf("failed to send transaction: %w", err))
	}
	metrics.TransactionsSubmitted.WithLabelValues(method).Inc()

	return &PendingTx{
		Method:      method,
		PieceID:     pieceID,
		Hash:        signedTx.Hash(),
		SubmittedAt: time.Now(),
		tx:          signedTx,
	}, nil
}
