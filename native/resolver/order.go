package resolver

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Order is the maker-signed limit order consumed from the external
// order-protocol collaborator. Signature validation and maker asset movement
// are that collaborator's concern; the resolver only forwards the record.
type Order struct {
	Salt         [32]byte
	Maker        common.Address
	Receiver     common.Address
	MakerAsset   common.Address
	TakerAsset   common.Address
	MakingAmount *big.Int
	TakingAmount *big.Int
	MakerTraits  *big.Int
}

// TakerTraits carries the taker-side flags and threshold forwarded to the fill
// call.
type TakerTraits struct {
	Threshold *big.Int
}

// FillResult reports the matched amounts and the order identity hash returned
// by the fill call.
type FillResult struct {
	MakingAmount *big.Int
	TakingAmount *big.Int
	OrderHash    common.Hash
}

// OrderProtocol is the external fill collaborator. The target argument is the
// resolver's target-override: the matched maker asset must be delivered to
// that address instead of the taker.
type OrderProtocol interface {
	FillOrder(order *Order, signature []byte, amount *big.Int, traits TakerTraits, target common.Address) (*FillResult, error)
}

// Caller forwards a raw payload to a target. It backs ArbitraryCalls, the
// operator's batched low-level escape hatch for recovery and integration work.
type Caller interface {
	Call(target common.Address, payload []byte) error
}
