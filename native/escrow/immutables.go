package escrow

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Immutables is the fixed parameter record identifying one escrow instance and
// its funding terms. It is constructed once before source-side deployment and
// never mutated; its hash is both the deployment salt and the cross-chain
// correlation key. The instance does not store a copy: callers resupply the
// exact original record on every call and the engine re-derives the hash.
type Immutables struct {
	OrderHash     common.Hash
	Hashlock      common.Hash
	Maker         common.Address
	Taker         common.Address
	Token         common.Address
	Amount        *big.Int
	SafetyDeposit *big.Int
	Timelocks     Timelocks
}

// Clone returns a deep copy so callers can safely mutate the copy without
// affecting the original record.
func (im *Immutables) Clone() *Immutables {
	if im == nil {
		return nil
	}
	clone := *im
	clone.Amount = cloneBigInt(im.Amount)
	clone.SafetyDeposit = cloneBigInt(im.SafetyDeposit)
	return &clone
}

// WithDeployedAt returns a copy with the deployment timestamp stamped into the
// timelocks. The returned record hashes differently from the unstamped one,
// which is why deployment and address computation must observe the same
// timestamp.
func (im *Immutables) WithDeployedAt(ts uint32) *Immutables {
	clone := im.Clone()
	clone.Timelocks = clone.Timelocks.WithDeployedAt(ts)
	return clone
}

// Hash returns the keccak256 digest of the canonical fixed layout: every field
// left-padded to a 32-byte word, in declaration order, with the timelocks in
// packed form. Two byte-identical records always hash identically; any field
// change produces a different digest.
func (im *Immutables) Hash() common.Hash {
	timelocks := im.Timelocks.Pack().Bytes32()
	return ethcrypto.Keccak256Hash(
		im.OrderHash.Bytes(),
		im.Hashlock.Bytes(),
		common.LeftPadBytes(im.Maker.Bytes(), 32),
		common.LeftPadBytes(im.Taker.Bytes(), 32),
		common.LeftPadBytes(im.Token.Bytes(), 32),
		common.LeftPadBytes(bigIntBytes(im.Amount), 32),
		common.LeftPadBytes(bigIntBytes(im.SafetyDeposit), 32),
		timelocks[:],
	)
}

// DstImmutablesComplement is the ancillary record emitted alongside the source
// escrow's immutables. Together they let any observer reconstruct the
// destination escrow's expected immutables without a second source of truth.
type DstImmutablesComplement struct {
	Maker         common.Address
	Amount        *big.Int
	Token         common.Address
	SafetyDeposit *big.Int
	ChainID       *big.Int
}

// Clone returns a deep copy of the complement record.
func (c *DstImmutablesComplement) Clone() *DstImmutablesComplement {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Amount = cloneBigInt(c.Amount)
	clone.SafetyDeposit = cloneBigInt(c.SafetyDeposit)
	clone.ChainID = cloneBigInt(c.ChainID)
	return &clone
}

// DeriveDstImmutables substitutes the destination-chain fields of the source
// record with the complement, producing the destination escrow's expected
// immutables. The destination timelocks still need their deployment timestamp
// stamped at creation time.
func DeriveDstImmutables(src *Immutables, c *DstImmutablesComplement) *Immutables {
	dst := src.Clone()
	dst.Maker = c.Maker
	dst.Token = c.Token
	dst.Amount = cloneBigInt(c.Amount)
	dst.SafetyDeposit = cloneBigInt(c.SafetyDeposit)
	dst.Timelocks.DeployedAt = 0
	return dst
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func bigIntBytes(v *big.Int) []byte {
	if v == nil {
		return nil
	}
	return v.Bytes()
}
