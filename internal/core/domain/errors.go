package domain

import "errors"

// ErrInvalidChain is returned for (chain, chainType) pairs the relay is not
// configured for. Fatal for the triggering request; never retried.
var ErrInvalidChain = errors.New("invalid chain")
