package domain

// Chain identifies a network family supported by the relay.
type Chain string

// ChainType distinguishes deployments of the same chain family.
type ChainType string

const (
	// Chains
	ChainCrust Chain = "crust"
	ChainPeaq  Chain = "peaq"

	// Chain types
	ChainTypeMainnet ChainType = "mainnet"
	ChainTypeTestnet ChainType = "testnet"
)

// ChainRef is the (chain, chainType) pair that scopes wallets and
// transactions. Used as a map key throughout the engine.
type ChainRef struct {
	Chain     Chain
	ChainType ChainType
}

func (r ChainRef) String() string {
	return string(r.Chain) + "/" + string(r.ChainType)
}

// KnownChains lists the chain families the relay can sign for.
var KnownChains = map[Chain]bool{
	ChainCrust: true,
	ChainPeaq:  true,
}
