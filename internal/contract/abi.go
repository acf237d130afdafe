package contract

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Contract entry points
const (
	MethodMintPiece   = "mintPiece"
	MethodApplaud     = "applaud"
	MethodEndorse     = "endorse"
	MethodFetchPiece  = "fetchPiece"
	MethodListPieces  = "listPieces"
	MethodTallyFor    = "tallyFor"
	MethodNextPieceID = "nextPieceId"
	MethodProtocolID  = "protocolId"

	EventPieceMinted    = "PieceMinted"
	EventPieceApplauded = "PieceApplauded"
	EventPieceEndorsed  = "PieceEndorsed"
)

// ParsedABI is the gallery ABI, parsed once at init
var ParsedABI = mustParseABI(AuroraExhibitABI)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("invalid AuroraExhibit ABI: %v", err))
	}
	return parsed
}

// HardhatArtifact represents a Hardhat compilation artifact
type HardhatArtifact struct {
	Format       string          `json:"_format"`
	ContractName string          `json:"contractName"`
	SourceName   string          `json:"sourceName"`
	ABI          json.RawMessage `json:"abi"`
	Bytecode     string          `json:"bytecode,omitempty"`
}

// Code returns the creation bytecode, or nil if the artifact has none
func (a *HardhatArtifact) Code() []byte {
	if a.Bytecode == "" || a.Bytecode == "0x" {
		return nil
	}
	return common.FromHex(a.Bytecode)
}

// ParseABI parses the artifact's ABI section
func (a *HardhatArtifact) ParseABI() (abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(string(a.ABI)))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to parse ABI from artifact %s: %w", a.ContractName, err)
	}
	return parsed, nil
}

// LoadArtifact reads a Hardhat artifact from path
func LoadArtifact(path string) (*HardhatArtifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact %s: %w", path, err)
	}

	var artifact HardhatArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("failed to decode artifact %s: %w", path, err)
	}
	if artifact.Format == "" || len(artifact.ABI) == 0 {
		return nil, fmt.Errorf("%s is not a Hardhat artifact", path)
	}

	slog.Debug("Loaded Hardhat artifact",
		"path", path,
		"contract", artifact.ContractName,
		"format", artifact.Format,
		"has_bytecode", artifact.Code() != nil,
	)
	return &artifact, nil
}

// ResolvePath joins name onto dir unless name is already absolute
func ResolvePath(dir, name string) string {
	if filepath.IsAbs(name) || dir == "" {
		return name
	}
	return filepath.Join(dir, name)
}

// AuroraExhibitABI is the ABI of the deployed gallery contract.
// Encrypted counters (euint32) travel as bytes32 handles.
const AuroraExhibitABI = `[
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "internalType": "uint256", "name": "pieceId", "type": "uint256"},
			{"indexed": true, "internalType": "address", "name": "liker", "type": "address"}
		],
		"name": "PieceApplauded",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "internalType": "uint256", "name": "pieceId", "type": "uint256"},
			{"indexed": true, "internalType": "address", "name": "voter", "type": "address"},
			{"indexed": false, "internalType": "string", "name": "category", "type": "string"}
		],
		"name": "PieceEndorsed",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "internalType": "uint256", "name": "pieceId", "type": "uint256"},
			{"indexed": true, "internalType": "address", "name": "artist", "type": "address"},
			{"indexed": false, "internalType": "string", "name": "title", "type": "string"}
		],
		"name": "PieceMinted",
		"type": "event"
	},
	{
		"inputs": [{"internalType": "uint256", "name": "pieceId", "type": "uint256"}],
		"name": "applaud",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "uint256", "name": "pieceId", "type": "uint256"},
			{"internalType": "string", "name": "category", "type": "string"}
		],
		"name": "endorse",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [{"internalType": "uint256", "name": "pieceId", "type": "uint256"}],
		"name": "fetchPiece",
		"outputs": [
			{"internalType": "uint256", "name": "id", "type": "uint256"},
			{"internalType": "address", "name": "artist", "type": "address"},
			{"internalType": "string", "name": "title", "type": "string"},
			{"internalType": "string", "name": "descriptionHash", "type": "string"},
			{"internalType": "string", "name": "fileHash", "type": "string"},
			{"internalType": "string[]", "name": "tags", "type": "string[]"},
			{"internalType": "string[]", "name": "categories", "type": "string[]"},
			{"internalType": "uint64", "name": "timestamp", "type": "uint64"},
			{"internalType": "euint32", "name": "likesHandle", "type": "bytes32"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "listPieces",
		"outputs": [{"internalType": "uint256[]", "name": "ids", "type": "uint256[]"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "string", "name": "title", "type": "string"},
			{"internalType": "string", "name": "descriptionHash", "type": "string"},
			{"internalType": "string", "name": "fileHash", "type": "string"},
			{"internalType": "string[]", "name": "tags", "type": "string[]"},
			{"internalType": "string[]", "name": "categories", "type": "string[]"}
		],
		"name": "mintPiece",
		"outputs": [{"internalType": "uint256", "name": "pieceId", "type": "uint256"}],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "nextPieceId",
		"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "protocolId",
		"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
		"stateMutability": "pure",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "uint256", "name": "pieceId", "type": "uint256"},
			{"internalType": "string", "name": "category", "type": "string"}
		],
		"name": "tallyFor",
		"outputs": [{"internalType": "euint32", "name": "votesHandle", "type": "bytes32"}],
		"stateMutability": "view",
		"type": "function"
	}
]`
