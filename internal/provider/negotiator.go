package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"auroraexhibit/internal/metrics"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
)

// State of the provider connection
type State string

const (
	StateIdle         State = "idle"
	StateDetecting    State = "detecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
)

// Locator makes a single attempt to find a provider
// It returns (nil, nil) or an error when no provider is available yet
type Locator func(ctx context.Context) (Provider, error)

// DialLocator returns a Locator that dials url and probes eth_chainId
func DialLocator(url string) Locator {
	return func(ctx context.Context) (Provider, error) {
		client, err := rpc.DialContext(ctx, url)
		if err != nil {
			return nil, err
		}
		p := NewRPCProvider(client)
		if _, err := ReadChainID(ctx, p); err != nil {
			p.Close()
			return nil, err
		}
		return p, nil
	}
}

// Negotiator finds a wallet provider and tracks the chain it is on.
// The chain id is read once on detection and afterwards only on explicit switch actions.
type Negotiator struct {
	locate   Locator
	interval time.Duration
	timeout  time.Duration

	mu       sync.RWMutex
	state    State
	provider Provider
	chainID  uint64
}

// NewNegotiator creates a Negotiator polling locate every interval for at most timeout
func NewNegotiator(locate Locator, interval, timeout time.Duration) *Negotiator {
	return &Negotiator{
		locate:   locate,
		interval: interval,
		timeout:  timeout,
		state:    StateIdle,
	}
}

// Detect polls for a provider until one is found or the timeout elapses.
// Nothing keeps running after it returns; on timeout the state stays disconnected
// until Redetect is called.
func (n *Negotiator) Detect(ctx context.Context) error {
	n.setState(StateDetecting)

	deadline := time.Now().Add(n.timeout)
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		metrics.ProviderDetectAttempts.Inc()

		p, err := n.locate(ctx)
		if err == nil && p != nil {
			n.mu.Lock()
			n.provider = p
			n.state = StateConnected
			n.mu.Unlock()

			slog.Info("Wallet provider detected", "attempts", attempt)
			if _, err := n.RefreshChainID(ctx); err != nil {
				slog.Warn("Provider found but chain id is unknown", "error", err)
			}
			return nil
		}
		if attempt == 1 {
			slog.Info("Wallet provider not ready, waiting...",
				"interval", n.interval,
				"timeout", n.timeout,
			)
		}

		select {
		case <-ctx.Done():
			n.setState(StateDisconnected)
			metrics.ProviderConnected.Set(0)
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				slog.Warn("No wallet provider found before timeout", "attempts", attempt)
				return ErrNoProvider
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Redetect drops the current provider and runs detection again
func (n *Negotiator) Redetect(ctx context.Context) error {
	n.mu.Lock()
	if n.provider != nil {
		n.provider.Close()
	}
	n.provider = nil
	n.chainID = 0
	n.mu.Unlock()
	return n.Detect(ctx)
}

// RefreshChainID re-reads the active chain id from the provider
func (n *Negotiator) RefreshChainID(ctx context.Context) (uint64, error) {
	p := n.Provider()
	if p == nil {
		return 0, ErrNoProvider
	}
	id, err := ReadChainID(ctx, p)
	if err != nil {
		return n.ChainID(), err
	}

	n.mu.Lock()
	n.chainID = id
	n.mu.Unlock()

	metrics.ProviderConnected.Set(1)
	metrics.ActiveChainID.Set(float64(id))
	return id, nil
}

// Connect asks the wallet to expose its accounts
func (n *Negotiator) Connect(ctx context.Context) ([]common.Address, error) {
	p := n.Provider()
	if p == nil {
		return nil, ErrNoProvider
	}
	var accounts []common.Address
	if err := p.Request(ctx, &accounts, MethodRequestAccounts); err != nil {
		if IsUserRejected(err) {
			return nil, fmt.Errorf("%w: %v", ErrUserRejected, err)
		}
		return nil, fmt.Errorf("failed to request accounts: %w", err)
	}
	return accounts, nil
}

// SwitchNetwork asks the wallet to switch to target. When the wallet does not
// know the chain it is added and the switch is attempted again. The chain id
// is re-read at the end whatever the outcome.
func (n *Negotiator) SwitchNetwork(ctx context.Context, target NetworkParams) (uint64, error) {
	p := n.Provider()
	if p == nil {
		return 0, ErrNoProvider
	}

	switchParams := SwitchParams{ChainID: target.ChainID}
	err := p.Request(ctx, nil, MethodSwitchChain, switchParams)
	if err != nil && IsUnknownChain(err) {
		slog.Info("Wallet does not know chain, adding it",
			"chain_id", target.ID(),
			"chain_name", target.ChainName,
		)
		if err = p.Request(ctx, nil, MethodAddChain, target); err == nil {
			err = p.Request(ctx, nil, MethodSwitchChain, switchParams)
		}
	}

	id, refreshErr := n.RefreshChainID(ctx)
	if err != nil {
		if IsUserRejected(err) {
			return id, fmt.Errorf("%w: %v", ErrUserRejected, err)
		}
		return id, fmt.Errorf("failed to switch to chain %d: %w", target.ID(), err)
	}
	if refreshErr != nil {
		return id, refreshErr
	}

	slog.Info("Network switched", "chain_id", id)
	return id, nil
}

// Provider returns the detected provider or nil
func (n *Negotiator) Provider() Provider {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.provider
}

// ChainID returns the last chain id read from the provider (0 if unknown)
func (n *Negotiator) ChainID() uint64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.chainID
}

// State returns the connection state
func (n *Negotiator) State() State {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.state
}

// Close releases the provider
func (n *Negotiator) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.provider != nil {
		n.provider.Close()
		n.provider = nil
	}
}

func (n *Negotiator) setState(s State) {
	n.mu.Lock()
	n.state = s
	n.mu.Unlock()
}
