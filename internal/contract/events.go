package contract

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Event is a decoded gallery log
type Event struct {
	Name        string
	PieceID     uint64
	Account     common.Address
	Title       string
	Category    Category
	BlockNumber uint64
	TxHash      common.Hash
	LogIndex    uint
}

// EventTopics returns the topic0 values of every gallery event, for log filters
func EventTopics() []common.Hash {
	return []common.Hash{
		ParsedABI.Events[EventPieceMinted].ID,
		ParsedABI.Events[EventPieceApplauded].ID,
		ParsedABI.Events[EventPieceEndorsed].ID,
	}
}

// DecodeEvent decodes a PieceMinted, PieceApplauded or PieceEndorsed log
func DecodeEvent(l types.Log) (*Event, error) {
	if len(l.Topics) < 3 {
		return nil, fmt.Errorf("log %s:%d has %d topics, expected 3", l.TxHash.Hex(), l.Index, len(l.Topics))
	}

	ev, err := ParsedABI.EventByID(l.Topics[0])
	if err != nil {
		return nil, fmt.Errorf("unknown event topic %s: %w", l.Topics[0].Hex(), err)
	}

	out := &Event{
		Name:        ev.Name,
		PieceID:     new(big.Int).SetBytes(l.Topics[1].Bytes()).Uint64(),
		Account:     common.BytesToAddress(l.Topics[2].Bytes()),
		BlockNumber: l.BlockNumber,
		TxHash:      l.TxHash,
		LogIndex:    l.Index,
	}

	switch ev.Name {
	case EventPieceMinted:
		var data struct{ Title string }
		if err := ParsedABI.UnpackIntoInterface(&data, ev.Name, l.Data); err != nil {
			return nil, fmt.Errorf("failed to unpack %s data: %w", ev.Name, err)
		}
		out.Title = data.Title
	case EventPieceEndorsed:
		var data struct{ Category string }
		if err := ParsedABI.UnpackIntoInterface(&data, ev.Name, l.Data); err != nil {
			return nil, fmt.Errorf("failed to unpack %s data: %w", ev.Name, err)
		}
		out.Category = Category(data.Category)
	}

	return out, nil
}
