package contract

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrUnavailable means the active chain has no deployment: the adapter cannot act
	ErrUnavailable  = errors.New("gallery contract is not deployed on this chain")
	ErrNoSigner     = errors.New("no signing account connected")
	ErrInvalidPiece = errors.New("invalid piece")
	ErrTransaction  = errors.New("transaction failed")
	ErrReverted     = errors.New("transaction reverted")
	ErrNoMintEvent  = errors.New("receipt has no PieceMinted event")
)

// Transaction stages
const (
	StageSubmit  = "submit"
	StageConfirm = "confirm"
)

// TxError reports a failed submission or confirmation.
// It matches ErrTransaction with errors.Is and unwraps to the provider's error.
type TxError struct {
	Method string
	Stage  string
	TxHash common.Hash
	Err    error
}

func (e *TxError) Error() string {
	if e.TxHash != (common.Hash{}) {
		return fmt.Sprintf("%s %s failed (tx %s): %v", e.Method, e.Stage, e.TxHash.Hex(), e.Err)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Method, e.Stage, e.Err)
}

func (e *TxError) Unwrap() error { return e.Err }

func (e *TxError) Is(target error) bool { return target == ErrTransaction }
