package provider

import (
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// NativeCurrency describes a chain's gas token for wallet_addEthereumChain
type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// NetworkParams is the EIP-3085 payload for wallet_addEthereumChain
type NetworkParams struct {
	ChainID           hexutil.Uint64 `json:"chainId"`
	ChainName         string         `json:"chainName"`
	NativeCurrency    NativeCurrency `json:"nativeCurrency"`
	RPCURLs           []string       `json:"rpcUrls"`
	BlockExplorerURLs []string       `json:"blockExplorerUrls,omitempty"`
}

// SwitchParams is the payload for wallet_switchEthereumChain
type SwitchParams struct {
	ChainID hexutil.Uint64 `json:"chainId"`
}

// ID returns the chain id as a plain integer
func (n NetworkParams) ID() uint64 {
	return uint64(n.ChainID)
}

var (
	Sepolia = NetworkParams{
		ChainID:   hexutil.Uint64(11155111),
		ChainName: "Sepolia",
		NativeCurrency: NativeCurrency{
			Name:     "Sepolia ETH",
			Symbol:   "ETH",
			Decimals: 18,
		},
		RPCURLs:           []string{"https://rpc.sepolia.org"},
		BlockExplorerURLs: []string{"https://sepolia.etherscan.io"},
	}

	Hardhat = NetworkParams{
		ChainID:   hexutil.Uint64(31337),
		ChainName: "Hardhat",
		NativeCurrency: NativeCurrency{
			Name:     "Ether",
			Symbol:   "ETH",
			Decimals: 18,
		},
		RPCURLs: []string{"http://localhost:8545"},
	}
)

// KnownNetwork returns the add-chain parameters for a supported chain id
func KnownNetwork(chainID uint64) (NetworkParams, bool) {
	switch chainID {
	case Sepolia.ID():
		return Sepolia, true
	case Hardhat.ID():
		return Hardhat, true
	}
	return NetworkParams{}, false
}
