package gallery

import (
	"errors"

	"auroraexhibit/internal/contract"
	"auroraexhibit/internal/fhe"
)

// Kind classifies a failure. Each kind is terminal for the action that produced it only.
type Kind string

const (
	KindConnectivity         Kind = "connectivity"
	KindNetworkMismatch      Kind = "network_mismatch"
	KindFHEInit              Kind = "fhe_init"
	KindTransaction          Kind = "transaction"
	KindDecryptAuthorization Kind = "decrypt_authorization"
	KindValidation           Kind = "validation"
	KindUnavailable          Kind = "unavailable"
	KindNotFound             Kind = "not_found"
)

var (
	ErrNetworkMismatch  = errors.New("wallet is not on the expected network")
	ErrPieceNotFound    = errors.New("piece not found")
	ErrAlreadyApplauded = errors.New("piece already applauded in this session")
	ErrAlreadyEndorsed  = errors.New("piece already endorsed in this session")
)

// Classify maps an error onto its kind
func Classify(err error) Kind {
	var initErr *fhe.InitError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, contract.ErrInvalidPiece),
		errors.Is(err, ErrAlreadyApplauded),
		errors.Is(err, ErrAlreadyEndorsed):
		return KindValidation
	case errors.Is(err, ErrPieceNotFound):
		return KindNotFound
	case errors.Is(err, contract.ErrUnavailable):
		return KindUnavailable
	case errors.Is(err, ErrNetworkMismatch):
		return KindNetworkMismatch
	case errors.Is(err, fhe.ErrNotAuthorized):
		return KindDecryptAuthorization
	case errors.As(err, &initErr), errors.Is(err, fhe.ErrNotReady):
		return KindFHEInit
	case errors.Is(err, contract.ErrTransaction),
		errors.Is(err, contract.ErrNoSigner),
		errors.Is(err, contract.ErrNoMintEvent):
		return KindTransaction
	}
	// provider, relayer and RPC transport failures
	return KindConnectivity
}
