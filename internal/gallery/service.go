// Package gallery coordinates the wallet provider, the FHE gate and the
// contract adapter on behalf of user sessions.
package gallery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"

	"auroraexhibit/internal/contract"
	"auroraexhibit/internal/fhe"
	"auroraexhibit/internal/provider"
	"auroraexhibit/internal/session"
	"auroraexhibit/internal/signer"

	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/sync/errgroup"
)

// BackendFunc builds a chain backend on top of the detected provider
type BackendFunc func(p provider.Provider) (contract.Backend, error)

// ContentStore publishes inline content and returns a ref
type ContentStore interface {
	Publish(ctx context.Context, data []byte) (string, error)
}

// Options configures a Service
type Options struct {
	TargetChainID      uint64
	ForceTargetNetwork bool
	Addresses          contract.AddressTable
	// Signer may be nil for a read-only service
	Signer      signer.Signer
	NewBackend  BackendFunc
	NewInstance fhe.CreateFunc
	// Content is optional; without it descriptions are stored as given
	Content ContentStore
	// FetchConcurrency bounds parallel piece reads during Refresh
	FetchConcurrency int
}

// EthBackend shares the provider's RPC connection with an ethclient
func EthBackend(p provider.Provider) (contract.Backend, error) {
	rp, ok := p.(*provider.RPCProvider)
	if !ok {
		return nil, fmt.Errorf("provider %T does not expose an RPC client", p)
	}
	return ethclient.NewClient(rp.RPC()), nil
}

// Service is the gallery application layer
type Service struct {
	negotiator *provider.Negotiator
	sessions   *session.Store
	opts       Options

	mu           sync.RWMutex
	chainID      uint64
	provider     provider.Provider
	adapter      *contract.Adapter
	gate         *fhe.Gate
	autoSwitched bool
}

// NewService creates a Service. Call Start (or Bind after a manual Detect) before use.
func NewService(n *provider.Negotiator, sessions *session.Store, opts Options) *Service {
	if opts.NewBackend == nil {
		opts.NewBackend = EthBackend
	}
	if opts.Addresses == nil {
		opts.Addresses = contract.AddressTable{}
	}
	if opts.FetchConcurrency <= 0 {
		opts.FetchConcurrency = 8
	}
	if opts.NewInstance == nil {
		opts.NewInstance = func(context.Context, provider.Provider, uint64) (fhe.Instance, error) {
			return nil, errors.New("FHE is not configured")
		}
	}
	return &Service{
		negotiator: n,
		sessions:   sessions,
		opts:       opts,
		gate:       fhe.NewGate(opts.NewInstance),
	}
}

// Sessions returns the session store
func (s *Service) Sessions() *session.Store {
	return s.sessions
}

// Close releases the current FHE instance
func (s *Service) Close() error {
	s.mu.RLock()
	gate := s.gate
	s.mu.RUnlock()
	return gate.Close()
}

// Start detects the provider and binds to its chain
func (s *Service) Start(ctx context.Context) error {
	if err := s.negotiator.Detect(ctx); err != nil {
		return err
	}
	return s.Bind(ctx)
}

// Bind attaches the adapter and FHE gate to the provider's current chain.
// A chain change discards the old gate and all chain-bound session state.
// With ForceTargetNetwork set the first bind on a foreign chain switches once.
func (s *Service) Bind(ctx context.Context) error {
	p := s.negotiator.Provider()
	if p == nil {
		return provider.ErrNoProvider
	}
	chainID := s.negotiator.ChainID()

	if s.shouldAutoSwitch(chainID) {
		if target, ok := provider.KnownNetwork(s.opts.TargetChainID); ok {
			slog.Info("Switching wallet to target network",
				"from_chain_id", chainID,
				"to_chain_id", s.opts.TargetChainID,
			)
			if _, err := s.negotiator.SwitchNetwork(ctx, target); err != nil {
				slog.Warn("Automatic network switch failed", "error", err)
			}
			chainID = s.negotiator.ChainID()
		}
	}

	return s.bindChain(ctx, p, chainID)
}

func (s *Service) shouldAutoSwitch(chainID uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.opts.ForceTargetNetwork || s.autoSwitched || chainID == s.opts.TargetChainID {
		return false
	}
	s.autoSwitched = true
	return true
}

func (s *Service) bindChain(ctx context.Context, p provider.Provider, chainID uint64) error {
	if chainID == 0 {
		return fmt.Errorf("provider reported no chain id: %w", provider.ErrNoProvider)
	}

	s.mu.Lock()
	if s.adapter != nil && s.chainID == chainID && s.provider == p {
		s.mu.Unlock()
		return nil
	}

	backend, err := s.opts.NewBackend(p)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to create chain backend: %w", err)
	}

	chainChanged := s.chainID != 0 && s.chainID != chainID
	gate := s.gate
	var discarded *fhe.Gate
	if s.adapter != nil {
		discarded = gate
		gate = fhe.NewGate(s.opts.NewInstance)
		s.gate = gate
	}
	s.chainID = chainID
	s.provider = p
	s.adapter = contract.NewAdapter(backend, chainID, s.opts.Addresses, s.opts.Signer)
	s.mu.Unlock()

	if discarded != nil {
		if err := discarded.Close(); err != nil {
			slog.Warn("Failed to release previous FHE instance", "error", err)
		}
	}

	if chainChanged {
		slog.Info("Chain changed, resetting gallery state", "chain_id", chainID)
		s.sessions.ResetChain()
	}

	gate.Start(ctx, p, chainID)
	return nil
}

// NetworkStatus summarizes provider, chain and FHE state
type NetworkStatus struct {
	State           provider.State `json:"state"`
	Connected       bool           `json:"connected"`
	ChainID         uint64         `json:"chainId"`
	ChainName       string         `json:"chainName,omitempty"`
	ExpectedChainID uint64         `json:"expectedChainId"`
	Mismatch        bool           `json:"mismatch"`
	CanAct          bool           `json:"canAct"`
	CanSign         bool           `json:"canSign"`
	ContractAddress string         `json:"contractAddress,omitempty"`
	Account         string         `json:"account,omitempty"`
	FHE             fhe.Snapshot   `json:"fhe"`
}

// Network returns the current network status
func (s *Service) Network() NetworkStatus {
	s.mu.RLock()
	adapter, gate, chainID := s.adapter, s.gate, s.chainID
	s.mu.RUnlock()

	state := s.negotiator.State()
	status := NetworkStatus{
		State:           state,
		Connected:       state == provider.StateConnected,
		ChainID:         chainID,
		ExpectedChainID: s.opts.TargetChainID,
		Mismatch:        chainID != 0 && chainID != s.opts.TargetChainID,
		FHE:             gate.Snapshot(),
	}
	if n, ok := provider.KnownNetwork(chainID); ok {
		status.ChainName = n.ChainName
	}
	if adapter != nil {
		status.CanAct = adapter.CanAct()
		status.CanSign = adapter.CanSign()
		if adapter.CanAct() {
			status.ContractAddress = adapter.Address().Hex()
		}
	}
	if s.opts.Signer != nil {
		status.Account = s.opts.Signer.Address().Hex()
	}
	return status
}

// SwitchNetwork asks the wallet to move to chainID and rebinds.
// Failing to land on chainID is a network mismatch.
func (s *Service) SwitchNetwork(ctx context.Context, chainID uint64) (NetworkStatus, error) {
	target, ok := provider.KnownNetwork(chainID)
	if !ok {
		return s.Network(), fmt.Errorf("%w: no parameters for chain %d", ErrNetworkMismatch, chainID)
	}

	id, err := s.negotiator.SwitchNetwork(ctx, target)
	if p := s.negotiator.Provider(); p != nil && id != 0 {
		if bindErr := s.bindChain(ctx, p, id); bindErr != nil && err == nil {
			err = bindErr
		}
	}
	if err != nil {
		if errors.Is(err, provider.ErrNoProvider) {
			return s.Network(), err
		}
		return s.Network(), fmt.Errorf("%w: %v", ErrNetworkMismatch, err)
	}
	if id != chainID {
		return s.Network(), fmt.Errorf("%w: wallet is on chain %d, expected %d", ErrNetworkMismatch, id, chainID)
	}
	return s.Network(), nil
}

// Connect requests wallet accounts
func (s *Service) Connect(ctx context.Context) ([]string, error) {
	accounts, err := s.negotiator.Connect(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(accounts))
	for i, a := range accounts {
		out[i] = a.Hex()
	}
	return out, nil
}

// Redetect is the explicit user action that leaves the disconnected state
func (s *Service) Redetect(ctx context.Context) (NetworkStatus, error) {
	if err := s.negotiator.Redetect(ctx); err != nil {
		return s.Network(), err
	}
	err := s.Bind(ctx)
	return s.Network(), err
}

func (s *Service) current() (*contract.Adapter, *fhe.Gate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.adapter == nil {
		return nil, s.gate, provider.ErrNoProvider
	}
	return s.adapter, s.gate, nil
}

// Refresh lists every piece and fetches them concurrently, keeping contract order
func (s *Service) Refresh(ctx context.Context, sess *session.Session) ([]contract.Piece, error) {
	adapter, _, err := s.current()
	if err != nil {
		return nil, err
	}

	ids, err := adapter.ListPieceIDs(ctx)
	if err != nil {
		return nil, err
	}

	pieces := make([]contract.Piece, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.FetchConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			p, err := adapter.FetchPiece(gctx, id)
			if err != nil {
				return fmt.Errorf("failed to fetch piece %d: %w", id, err)
			}
			pieces[i] = *p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sess.SetItems(pieces)
	slog.Debug("Gallery refreshed", "session_id", sess.ID, "pieces", len(pieces))
	return pieces, nil
}

// Piece fetches one piece
func (s *Service) Piece(ctx context.Context, pieceID uint64) (*contract.Piece, error) {
	adapter, _, err := s.current()
	if err != nil {
		return nil, err
	}
	p, err := adapter.FetchPiece(ctx, pieceID)
	if err != nil {
		return nil, notFound(pieceID, err)
	}
	return p, nil
}

// TxResult describes a confirmed transaction
type TxResult struct {
	TxHash  string `json:"txHash"`
	PieceID uint64 `json:"pieceId"`
}

// Applaud likes a piece. The session's liked flag short-circuits repeats
// only once an earlier applause has been confirmed.
func (s *Service) Applaud(ctx context.Context, sess *session.Session, pieceID uint64) (*TxResult, error) {
	if sess.Liked(pieceID) {
		return nil, ErrAlreadyApplauded
	}
	adapter, _, err := s.current()
	if err != nil {
		return nil, err
	}

	sess.BeginPending(pieceID)
	defer sess.EndPending(pieceID)

	pending, err := adapter.SubmitApplaud(ctx, pieceID)
	if err != nil {
		sess.SetMessage("Applause failed: " + err.Error())
		return nil, err
	}
	if _, err := adapter.Confirm(ctx, pending); err != nil {
		sess.SetMessage("Applause failed: " + err.Error())
		return nil, err
	}

	sess.MarkLiked(pieceID)
	sess.ForgetLikes(pieceID)
	sess.SetMessage(fmt.Sprintf("Applauded piece #%d", pieceID))
	return &TxResult{TxHash: pending.Hash.Hex(), PieceID: pieceID}, nil
}

// Endorse votes for a piece in category
func (s *Service) Endorse(ctx context.Context, sess *session.Session, pieceID uint64, category contract.Category) (*TxResult, error) {
	if !category.Valid() {
		return nil, fmt.Errorf("%w: unknown category %q", contract.ErrInvalidPiece, category)
	}
	if sess.Endorsed(pieceID) {
		return nil, ErrAlreadyEndorsed
	}
	adapter, _, err := s.current()
	if err != nil {
		return nil, err
	}

	sess.BeginPending(pieceID)
	defer sess.EndPending(pieceID)

	pending, err := adapter.SubmitEndorse(ctx, pieceID, category)
	if err != nil {
		sess.SetMessage("Endorsement failed: " + err.Error())
		return nil, err
	}
	if _, err := adapter.Confirm(ctx, pending); err != nil {
		sess.SetMessage("Endorsement failed: " + err.Error())
		return nil, err
	}

	sess.MarkEndorsed(pieceID)
	sess.ForgetTally(pieceID, category)
	sess.SetMessage(fmt.Sprintf("Endorsed piece #%d for %s", pieceID, category.Label()))
	return &TxResult{TxHash: pending.Hash.Hex(), PieceID: pieceID}, nil
}

// DecryptLikes decrypts a piece's like count and caches it in the session.
// It needs a ready FHE gate and never sends a transaction.
func (s *Service) DecryptLikes(ctx context.Context, sess *session.Session, pieceID uint64) (*big.Int, error) {
	adapter, gate, err := s.current()
	if err != nil {
		return nil, err
	}
	inst, err := gate.Instance()
	if err != nil {
		return nil, err
	}

	p, err := adapter.FetchPiece(ctx, pieceID)
	if err != nil {
		return nil, notFound(pieceID, err)
	}

	v, err := inst.Decrypt(ctx, s.decryptRequest(adapter, p.LikesHandle))
	if err != nil {
		return nil, err
	}
	sess.CacheLikes(pieceID, v)
	return v, nil
}

// DecryptTally decrypts a piece's vote count for category and caches it
func (s *Service) DecryptTally(ctx context.Context, sess *session.Session, pieceID uint64, category contract.Category) (*big.Int, error) {
	if !category.Valid() {
		return nil, fmt.Errorf("%w: unknown category %q", contract.ErrInvalidPiece, category)
	}
	adapter, gate, err := s.current()
	if err != nil {
		return nil, err
	}
	inst, err := gate.Instance()
	if err != nil {
		return nil, err
	}

	h, err := adapter.FetchTally(ctx, pieceID, category)
	if err != nil {
		return nil, notFound(pieceID, err)
	}

	v, err := inst.Decrypt(ctx, s.decryptRequest(adapter, h))
	if err != nil {
		return nil, err
	}
	sess.CacheTally(pieceID, category, v)
	return v, nil
}

func (s *Service) decryptRequest(adapter *contract.Adapter, h contract.Handle) fhe.DecryptRequest {
	req := fhe.DecryptRequest{Handle: h, Contract: adapter.Address()}
	if account, ok := adapter.Account(); ok {
		req.User = account
	}
	return req
}

// notFound turns a fetch revert into ErrPieceNotFound
func notFound(pieceID uint64, err error) error {
	if strings.Contains(strings.ToLower(err.Error()), "revert") {
		return fmt.Errorf("%w: #%d", ErrPieceNotFound, pieceID)
	}
	return err
}
