// Package contracttest provides an in-memory gallery contract for tests.
package contracttest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"auroraexhibit/internal/contract"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// DefaultAddress is where NewChain places the gallery contract
var DefaultAddress = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

// ErrPieceNotFound is the revert reason for unknown piece ids
var ErrPieceNotFound = errors.New("execution reverted: piece does not exist")

// ProtocolID is returned by protocolId()
const ProtocolID = 10001

type piece struct {
	artist      common.Address
	title       string
	description string
	file        string
	tags        []string
	categories  []string
	timestamp   uint64
	likes       uint64
	likesHandle contract.Handle
}

type tallyKey struct {
	id       uint64
	category string
}

type tally struct {
	count  uint64
	handle contract.Handle
}

// Chain simulates one EVM chain carrying a gallery deployment.
// It satisfies contract.Backend plus the log reading surface of the indexer.
type Chain struct {
	ChainID *big.Int
	Address common.Address

	mu       sync.Mutex
	nextID   uint64
	order    []uint64
	pieces   map[uint64]*piece
	tallies  map[tallyKey]*tally
	clear    map[contract.Handle]uint64
	code     map[common.Address][]byte
	nonces   map[common.Address]uint64
	receipts map[common.Hash]*types.Receipt
	logs     []types.Log
	sent     []*types.Transaction
	calls    map[string]int
	block    uint64

	holdReceipts bool
	revertNext   bool
	callErr      error
}

// NewChain returns a chain with the gallery deployed at DefaultAddress
func NewChain(chainID uint64) *Chain {
	c := &Chain{
		ChainID:  new(big.Int).SetUint64(chainID),
		Address:  DefaultAddress,
		nextID:   1,
		pieces:   make(map[uint64]*piece),
		tallies:  make(map[tallyKey]*tally),
		clear:    make(map[contract.Handle]uint64),
		code:     make(map[common.Address][]byte),
		nonces:   make(map[common.Address]uint64),
		receipts: make(map[common.Hash]*types.Receipt),
		calls:    make(map[string]int),
	}
	c.code[c.Address] = []byte{0x60, 0x80}
	return c
}

// Table returns an address table with this chain's deployment
func (c *Chain) Table() contract.AddressTable {
	table := contract.AddressTable{}
	table.Set(contract.Deployment{
		Address:   c.Address.Hex(),
		ChainID:   c.ChainID.Uint64(),
		ChainName: "test",
	})
	return table
}

// Seed mints a piece directly, as if by artist, and returns its id
func (c *Chain) Seed(artist common.Address, req contract.MintRequest) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.block++
	cats := make([]string, len(req.Categories))
	for i, cat := range req.Categories {
		cats[i] = string(cat)
	}
	id, l := c.mint(artist, req.Title, req.DescriptionHash, req.FileHash, req.Tags, cats)
	c.appendLogs(common.Hash{}, []types.Log{l})
	return id
}

// ClearValue returns the plaintext behind a handle
func (c *Chain) ClearValue(h contract.Handle) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.clear[h]
	return v, ok
}

// Likes returns the current plaintext like count
func (c *Chain) Likes(id uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.pieces[id]; ok {
		return p.likes
	}
	return 0
}

// Calls returns how many read-only calls reached method
func (c *Chain) Calls(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[method]
}

// Sent returns every transaction received so far
func (c *Chain) Sent() []*types.Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*types.Transaction, len(c.sent))
	copy(out, c.sent)
	return out
}

// RevertNext makes the next contract transaction revert
func (c *Chain) RevertNext() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revertNext = true
}

// HoldReceipts hides receipts until released, keeping transactions pending
func (c *Chain) HoldReceipts(hold bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.holdReceipts = hold
}

// FailCalls makes every read-only call return err (nil restores)
func (c *Chain) FailCalls(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callErr = err
}

func (c *Chain) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.callErr != nil {
		return nil, c.callErr
	}
	if msg.To == nil || *msg.To != c.Address || len(msg.Data) < 4 {
		return nil, nil
	}

	method, err := contract.ParsedABI.MethodById(msg.Data[:4])
	if err != nil {
		return nil, fmt.Errorf("execution reverted: %w", err)
	}
	args, err := method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, err
	}
	c.calls[method.Name]++

	switch method.Name {
	case contract.MethodFetchPiece:
		id := args[0].(*big.Int).Uint64()
		p, ok := c.pieces[id]
		if !ok {
			return nil, ErrPieceNotFound
		}
		return method.Outputs.Pack(
			new(big.Int).SetUint64(id),
			p.artist,
			p.title,
			p.description,
			p.file,
			p.tags,
			p.categories,
			p.timestamp,
			[32]byte(p.likesHandle),
		)
	case contract.MethodListPieces:
		ids := make([]*big.Int, len(c.order))
		for i, id := range c.order {
			ids[i] = new(big.Int).SetUint64(id)
		}
		return method.Outputs.Pack(ids)
	case contract.MethodTallyFor:
		id := args[0].(*big.Int).Uint64()
		if _, ok := c.pieces[id]; !ok {
			return nil, ErrPieceNotFound
		}
		var h [32]byte
		if t, ok := c.tallies[tallyKey{id, args[1].(string)}]; ok {
			h = t.handle
		}
		return method.Outputs.Pack(h)
	case contract.MethodNextPieceID:
		return method.Outputs.Pack(new(big.Int).SetUint64(c.nextID))
	case contract.MethodProtocolID:
		return method.Outputs.Pack(big.NewInt(ProtocolID))
	}
	return nil, fmt.Errorf("execution reverted: %s is not a view", method.Name)
}

func (c *Chain) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if msg.To == nil {
		return 3_000_000, nil
	}
	if err := c.precheck(msg.Data); err != nil {
		return 0, err
	}
	return 100_000, nil
}

func (c *Chain) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nonces[account], nil
}

func (c *Chain) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (c *Chain) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	from, err := types.Sender(types.LatestSignerForChainID(c.ChainID), tx)
	if err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}
	if tx.Nonce() != c.nonces[from] {
		return fmt.Errorf("nonce too low: have %d, want %d", tx.Nonce(), c.nonces[from])
	}
	c.nonces[from]++
	c.block++
	c.sent = append(c.sent, tx)

	receipt := &types.Receipt{
		Type:        tx.Type(),
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      tx.Hash(),
		GasUsed:     tx.Gas(),
		BlockNumber: new(big.Int).SetUint64(c.block),
	}

	switch {
	case tx.To() == nil:
		addr := crypto.CreateAddress(from, tx.Nonce())
		c.code[addr] = tx.Data()
		receipt.ContractAddress = addr
	case c.revertNext:
		c.revertNext = false
		receipt.Status = types.ReceiptStatusFailed
	default:
		logs, err := c.apply(from, tx.Data())
		if err != nil {
			receipt.Status = types.ReceiptStatusFailed
		}
		receipt.Logs = c.appendLogs(tx.Hash(), logs)
	}

	c.receipts[tx.Hash()] = receipt
	return nil
}

func (c *Chain) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.receipts[txHash]
	if !ok || c.holdReceipts {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (c *Chain) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.code[account], nil
}

// BlockNumber returns the latest block
func (c *Chain) BlockNumber(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.block, nil
}

// FilterLogs returns logs in [FromBlock, ToBlock] matching address and topic0
func (c *Chain) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	from, to := uint64(0), c.block
	if q.FromBlock != nil {
		from = q.FromBlock.Uint64()
	}
	if q.ToBlock != nil {
		to = q.ToBlock.Uint64()
	}

	var out []types.Log
	for _, l := range c.logs {
		if l.BlockNumber < from || l.BlockNumber > to {
			continue
		}
		if len(q.Addresses) > 0 && !containsAddress(q.Addresses, l.Address) {
			continue
		}
		if len(q.Topics) > 0 && len(q.Topics[0]) > 0 && !containsHash(q.Topics[0], l.Topics[0]) {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (c *Chain) precheck(data []byte) error {
	if len(data) < 4 {
		return nil
	}
	method, err := contract.ParsedABI.MethodById(data[:4])
	if err != nil {
		return fmt.Errorf("execution reverted: %w", err)
	}
	if method.Name != contract.MethodApplaud && method.Name != contract.MethodEndorse {
		return nil
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return err
	}
	if _, ok := c.pieces[args[0].(*big.Int).Uint64()]; !ok {
		return ErrPieceNotFound
	}
	return nil
}

func (c *Chain) apply(from common.Address, data []byte) ([]types.Log, error) {
	if err := c.precheck(data); err != nil {
		return nil, err
	}
	method, err := contract.ParsedABI.MethodById(data[:4])
	if err != nil {
		return nil, err
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, err
	}

	switch method.Name {
	case contract.MethodMintPiece:
		_, l := c.mint(from,
			args[0].(string),
			args[1].(string),
			args[2].(string),
			args[3].([]string),
			args[4].([]string),
		)
		return []types.Log{l}, nil
	case contract.MethodApplaud:
		id := args[0].(*big.Int).Uint64()
		p := c.pieces[id]
		p.likes++
		p.likesHandle = c.newHandle("likes", id, "", p.likes)
		return []types.Log{c.eventLog(contract.EventPieceApplauded, id, from)}, nil
	case contract.MethodEndorse:
		id := args[0].(*big.Int).Uint64()
		category := args[1].(string)
		key := tallyKey{id, category}
		t, ok := c.tallies[key]
		if !ok {
			t = &tally{}
			c.tallies[key] = t
		}
		t.count++
		t.handle = c.newHandle("votes", id, category, t.count)
		return []types.Log{c.eventLog(contract.EventPieceEndorsed, id, from, category)}, nil
	}
	return nil, fmt.Errorf("execution reverted: %s is a view", method.Name)
}

func (c *Chain) mint(artist common.Address, title, desc, file string, tags, cats []string) (uint64, types.Log) {
	id := c.nextID
	c.nextID++
	if tags == nil {
		tags = []string{}
	}
	c.pieces[id] = &piece{
		artist:      artist,
		title:       title,
		description: desc,
		file:        file,
		tags:        tags,
		categories:  cats,
		timestamp:   uint64(time.Now().Unix()),
	}
	c.order = append(c.order, id)
	return id, c.eventLog(contract.EventPieceMinted, id, artist, title)
}

func (c *Chain) newHandle(kind string, id uint64, category string, value uint64) contract.Handle {
	h := contract.Handle(crypto.Keccak256Hash(
		[]byte(kind),
		new(big.Int).SetUint64(id).Bytes(),
		[]byte(category),
		new(big.Int).SetUint64(value).Bytes(),
	))
	c.clear[h] = value
	return h
}

func (c *Chain) eventLog(name string, id uint64, account common.Address, data ...interface{}) types.Log {
	ev := contract.ParsedABI.Events[name]
	packed, err := ev.Inputs.NonIndexed().Pack(data...)
	if err != nil {
		panic(err)
	}
	return types.Log{
		Address: c.Address,
		Topics: []common.Hash{
			ev.ID,
			common.BigToHash(new(big.Int).SetUint64(id)),
			common.BytesToHash(account.Bytes()),
		},
		Data: packed,
	}
}

func (c *Chain) appendLogs(txHash common.Hash, logs []types.Log) []*types.Log {
	out := make([]*types.Log, 0, len(logs))
	for _, l := range logs {
		l.BlockNumber = c.block
		l.TxHash = txHash
		l.Index = uint(len(c.logs))
		c.logs = append(c.logs, l)
		stored := l
		out = append(out, &stored)
	}
	return out
}

func containsAddress(list []common.Address, a common.Address) bool {
	for _, x := range list {
		if x == a {
			return true
		}
	}
	return false
}

func containsHash(list []common.Hash, h common.Hash) bool {
	for _, x := range list {
		if x == h {
			return true
		}
	}
	return false
}
