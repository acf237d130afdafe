// Package fhe tracks FHE client readiness and decrypts encrypted handles.
package fhe

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"auroraexhibit/internal/metrics"
	"auroraexhibit/internal/provider"
)

// Status of the readiness gate
type Status string

const (
	StatusIdle         Status = "idle"
	StatusInitializing Status = "initializing"
	StatusReady        Status = "ready"
	StatusError        Status = "error"
)

var allStatuses = []Status{StatusIdle, StatusInitializing, StatusReady, StatusError}

// CreateFunc builds an instance for a provider and chain
type CreateFunc func(ctx context.Context, p provider.Provider, chainID uint64) (Instance, error)

// Snapshot is a point-in-time view of the gate
type Snapshot struct {
	Status  Status `json:"status"`
	Error   string `json:"error,omitempty"`
	ChainID uint64 `json:"chainId,omitempty"`
}

// Gate runs FHE initialization at most once.
// It never leaves ready or error on its own; create a new Gate for a new chain.
type Gate struct {
	create CreateFunc

	mu       sync.RWMutex
	started  bool
	closed   bool
	status   Status
	err      error
	chainID  uint64
	instance Instance
}

// NewGate returns an idle gate
func NewGate(create CreateFunc) *Gate {
	g := &Gate{create: create, status: StatusIdle}
	setStatusMetric(StatusIdle)
	return g
}

// Start initializes the instance. It is a no-op while p is nil or chainID is 0,
// and after the first real attempt. It blocks until the attempt finishes.
func (g *Gate) Start(ctx context.Context, p provider.Provider, chainID uint64) Status {
	if p == nil || chainID == 0 {
		return g.Status()
	}

	g.mu.Lock()
	if g.started {
		status := g.status
		g.mu.Unlock()
		return status
	}
	g.started = true
	g.status = StatusInitializing
	g.chainID = chainID
	g.mu.Unlock()
	setStatusMetric(StatusInitializing)

	slog.Info("Initializing FHE instance", "chain_id", chainID)
	inst, err := g.create(ctx, p, chainID)

	g.mu.Lock()
	defer g.mu.Unlock()
	if err == nil && g.closed {
		g.status = StatusIdle
		if cerr := closeInstance(inst); cerr != nil {
			slog.Warn("Failed to close FHE instance", "chain_id", chainID, "error", cerr)
		}
		return g.status
	}
	if err != nil {
		g.status = StatusError
		g.err = err
		slog.Error("FHE initialization failed", "chain_id", chainID, "error", err)
	} else {
		g.status = StatusReady
		g.instance = inst
		slog.Info("✅ FHE instance ready", "chain_id", chainID)
	}
	setStatusMetric(g.status)
	return g.status
}

// Close releases the ready instance. An instance that finishes initializing
// after Close is released as soon as it arrives.
func (g *Gate) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true
	inst := g.instance
	g.instance = nil
	if g.status == StatusReady {
		g.status = StatusIdle
	}
	return closeInstance(inst)
}

func closeInstance(inst Instance) error {
	if c, ok := inst.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Status returns the current status
func (g *Gate) Status() Status {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.status
}

// Err returns the initialization failure, if any
func (g *Gate) Err() error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.err
}

// ChainID returns the chain the gate was started for
func (g *Gate) ChainID() uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.chainID
}

// Instance returns the ready instance or ErrNotReady
func (g *Gate) Instance() (Instance, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	switch g.status {
	case StatusReady:
		return g.instance, nil
	case StatusError:
		return nil, &InitError{ChainID: g.chainID, Err: g.err}
	default:
		return nil, ErrNotReady
	}
}

// Snapshot returns the status with a readable error
func (g *Gate) Snapshot() Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	s := Snapshot{Status: g.status, ChainID: g.chainID}
	if g.err != nil {
		s.Error = g.err.Error()
	}
	return s
}

func setStatusMetric(current Status) {
	for _, s := range allStatuses {
		v := 0.0
		if s == current {
			v = 1
		}
		metrics.FHEGateStatus.WithLabelValues(string(s)).Set(v)
	}
}
