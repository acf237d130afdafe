package contract

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
)

// Deployment is one entry of the per-chain address table
type Deployment struct {
	Address   string `json:"address"`
	ChainID   uint64 `json:"chainId"`
	ChainName string `json:"chainName"`
}

// AddressTable maps a decimal chain id string to the deployment on that chain
type AddressTable map[string]Deployment

// Lookup returns the deployed address for chainID. An absent entry, an empty
// address or the zero address all mean "not deployed".
func (t AddressTable) Lookup(chainID uint64) (common.Address, bool) {
	d, ok := t[strconv.FormatUint(chainID, 10)]
	if !ok || !common.IsHexAddress(d.Address) {
		return common.Address{}, false
	}
	addr := common.HexToAddress(d.Address)
	if addr == (common.Address{}) {
		return common.Address{}, false
	}
	return addr, true
}

// Set records a deployment
func (t AddressTable) Set(d Deployment) {
	t[strconv.FormatUint(d.ChainID, 10)] = d
}

// ChainIDs returns the chains with an entry, ascending
func (t AddressTable) ChainIDs() []uint64 {
	ids := make([]uint64, 0, len(t))
	for k := range t {
		if id, err := strconv.ParseUint(k, 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// LoadAddressTable reads the table from path. A missing file yields an empty table.
func LoadAddressTable(path string) (AddressTable, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return AddressTable{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read address table %s: %w", path, err)
	}

	table := AddressTable{}
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("failed to decode address table %s: %w", path, err)
	}
	return table, nil
}

// Save writes the table to path, creating parent directories
func (t AddressTable) Save(path string) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode address table: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write address table %s: %w", path, err)
	}
	return nil
}
