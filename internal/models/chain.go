package models

// ChainKind groups chains by address and transaction identifier shape.
type ChainKind string

const (
	ChainKindEVM    ChainKind = "evm"
	ChainKindBase58 ChainKind = "base58"
)

// ChainSpec describes a supported settlement chain.
type ChainSpec struct {
	Name    string
	Kind    ChainKind
	ChainID int64 // EVM chain id, 0 for non-EVM chains
}

// knownChains is the default chain table. Ledger RPC endpoints live in
// config and are owned by the ledger client.
var knownChains = map[string]ChainSpec{
	"ethereum": {Name: "ethereum", Kind: ChainKindEVM, ChainID: 1},
	"base":     {Name: "base", Kind: ChainKindEVM, ChainID: 8453},
	"polygon":  {Name: "polygon", Kind: ChainKindEVM, ChainID: 137},
	"solana":   {Name: "solana", Kind: ChainKindBase58},
}

// LookupChain returns the chain descriptor by name.
func LookupChain(name string) (ChainSpec, bool) {
	spec, ok := knownChains[name]
	return spec, ok
}
