// Package resolver implements the privileged orchestration agent that
// sequences source-escrow funding, order fill and escrow lifecycle calls on
// behalf of its operator.
package resolver

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"crosslock/native/escrow"
)

var (
	// ErrUnauthorized rejects a state-changing entry point invoked by anyone
	// but the configured operator.
	ErrUnauthorized = errors.New("resolver: caller is not the operator")

	// ErrLengthMismatch rejects a batched call with unpaired targets/payloads.
	ErrLengthMismatch = errors.New("resolver: length mismatch")

	errNotConfigured = errors.New("resolver: chain not configured")
)

// ChainBackend bundles everything the resolver needs on one chain: the ledger
// it funds escrows on, the factory computing deterministic addresses and the
// engine executing lifecycle transitions.
type ChainBackend struct {
	State   escrow.EngineState
	Factory *escrow.Factory
	Engine  *escrow.Engine
	Now     func() int64
}

func (c *ChainBackend) configured() bool {
	return c != nil && c.State != nil && c.Factory != nil && c.Engine != nil && c.Now != nil
}

// Resolver is a single-operator agent. DeploySrc, DeployDst and
// ArbitraryCalls are restricted to the operator; Withdraw and Cancel are
// unrestricted pass-throughs because the escrow itself enforces access
// control for those.
type Resolver struct {
	operator common.Address
	address  common.Address
	src      ChainBackend
	dst      ChainBackend
	orders   OrderProtocol
	caller   Caller
	log      *slog.Logger
}

// New creates a resolver owned by operator, acting from the given on-ledger
// address.
func New(operator, address common.Address, src, dst ChainBackend, orders OrderProtocol) *Resolver {
	return &Resolver{
		operator: operator,
		address:  address,
		src:      src,
		dst:      dst,
		orders:   orders,
		log:      slog.Default(),
	}
}

// SetLogger overrides the structured logger. Passing nil resets to the
// process default.
func (r *Resolver) SetLogger(log *slog.Logger) {
	if log == nil {
		r.log = slog.Default()
		return
	}
	r.log = log
}

// SetCaller configures the low-level call forwarder behind ArbitraryCalls.
func (r *Resolver) SetCaller(caller Caller) { r.caller = caller }

// Address returns the resolver's on-ledger funding address.
func (r *Resolver) Address() common.Address { return r.address }

// Operator returns the configured operator identity.
func (r *Resolver) Operator() common.Address { return r.operator }

func (r *Resolver) backend(side escrow.Side) (*ChainBackend, error) {
	var b *ChainBackend
	if side == escrow.SideSrc {
		b = &r.src
	} else {
		b = &r.dst
	}
	if !b.configured() {
		return nil, errNotConfigured
	}
	return b, nil
}

func (r *Resolver) requireOperator(caller common.Address) error {
	if caller != r.operator {
		return ErrUnauthorized
	}
	return nil
}

// DeploySrc funds the source escrow and triggers the order fill in one atomic
// unit. The deployment timestamp is stamped into the timelocks first, because
// the deterministic address depends on it and the fill must observe the same
// address the deposit went to.
func (r *Resolver) DeploySrc(caller common.Address, imm *escrow.Immutables, comp *escrow.DstImmutablesComplement, order *Order, signature []byte, amount *big.Int, traits TakerTraits) (*escrow.Escrow, error) {
	if err := r.requireOperator(caller); err != nil {
		return nil, err
	}
	b, err := r.backend(escrow.SideSrc)
	if err != nil {
		return nil, err
	}
	stamped := imm.WithDeployedAt(uint32(b.Now()))
	addr := b.Factory.AddressOfEscrowSrc(stamped)
	if err := b.State.TransferNative(r.address, addr, stamped.SafetyDeposit); err != nil {
		return nil, fmt.Errorf("%w: %v", escrow.ErrNativeTokenSendingFailure, err)
	}
	result, err := r.orders.FillOrder(order, signature, amount, traits, addr)
	if err != nil {
		r.refundDeposit(b, addr, stamped.SafetyDeposit)
		return nil, fmt.Errorf("resolver: order fill: %w", err)
	}
	esc, err := b.Factory.CreateSrcEscrow(stamped, comp)
	if err != nil {
		r.refundDeposit(b, addr, stamped.SafetyDeposit)
		r.refundFill(b, addr, order, result)
		return nil, err
	}
	r.log.Info("source escrow deployed",
		"escrow", esc.Address.Hex(),
		"orderHash", result.OrderHash.Hex(),
		"makingAmount", result.MakingAmount.String(),
		"takingAmount", result.TakingAmount.String(),
	)
	return esc, nil
}

// DeploySrcPartial is the multi-fill variant of DeploySrc: the escrow is
// registered for exactly the fraction proven against the order's Merkle root.
func (r *Resolver) DeploySrcPartial(caller common.Address, imm *escrow.Immutables, comp *escrow.DstImmutablesComplement, order *Order, signature []byte, amount *big.Int, traits TakerTraits, root common.Hash, proof escrow.FillProof) (*escrow.Escrow, error) {
	if err := r.requireOperator(caller); err != nil {
		return nil, err
	}
	b, err := r.backend(escrow.SideSrc)
	if err != nil {
		return nil, err
	}
	stamped := imm.WithDeployedAt(uint32(b.Now()))
	addr := b.Factory.AddressOfEscrowSrc(stamped)
	if err := b.State.TransferNative(r.address, addr, stamped.SafetyDeposit); err != nil {
		return nil, fmt.Errorf("%w: %v", escrow.ErrNativeTokenSendingFailure, err)
	}
	result, err := r.orders.FillOrder(order, signature, amount, traits, addr)
	if err != nil {
		r.refundDeposit(b, addr, stamped.SafetyDeposit)
		return nil, fmt.Errorf("resolver: order fill: %w", err)
	}
	esc, err := b.Factory.CreateSrcEscrowPartial(stamped, comp, root, proof)
	if err != nil {
		r.refundDeposit(b, addr, stamped.SafetyDeposit)
		r.refundFill(b, addr, order, result)
		return nil, err
	}
	r.log.Info("partial source escrow deployed",
		"escrow", esc.Address.Hex(),
		"orderHash", result.OrderHash.Hex(),
		"fillIndex", proof.Index,
	)
	return esc, nil
}

// refundDeposit unwinds a pre-funded safety deposit when a later step of the
// deploy unit fails, restoring the unchanged-on-failure contract.
func (r *Resolver) refundDeposit(b *ChainBackend, addr common.Address, deposit *big.Int) {
	if err := b.State.TransferNative(addr, r.address, deposit); err != nil {
		r.log.Error("safety deposit refund failed", "escrow", addr.Hex(), "err", err)
	}
}

// refundFill returns the maker asset a successful fill delivered to the escrow
// address when registration fails afterwards. Without it the principal would
// sit at an address no registered instance can rescue from.
func (r *Resolver) refundFill(b *ChainBackend, addr common.Address, order *Order, result *FillResult) {
	if order == nil || result == nil || result.MakingAmount == nil {
		return
	}
	if err := b.State.TransferToken(order.MakerAsset, addr, order.Maker, result.MakingAmount); err != nil {
		r.log.Error("fill refund failed", "escrow", addr.Hex(), "err", err)
	}
}

// DeployDst creates the destination escrow, funding it from the resolver's
// own address.
func (r *Resolver) DeployDst(caller common.Address, imm *escrow.Immutables, srcCancellation uint32) (*escrow.Escrow, error) {
	if err := r.requireOperator(caller); err != nil {
		return nil, err
	}
	b, err := r.backend(escrow.SideDst)
	if err != nil {
		return nil, err
	}
	esc, err := b.Factory.CreateDstEscrow(r.address, imm, srcCancellation)
	if err != nil {
		return nil, err
	}
	r.log.Info("destination escrow deployed", "escrow", esc.Address.Hex(), "hashlock", imm.Hashlock.Hex())
	return esc, nil
}

// Withdraw passes a withdrawal through to the escrow on the given side. No
// operator check: the escrow enforces window and caller rules itself.
func (r *Resolver) Withdraw(side escrow.Side, addr common.Address, caller common.Address, secret [escrow.SecretLength]byte, imm *escrow.Immutables) error {
	b, err := r.backend(side)
	if err != nil {
		return err
	}
	return b.Engine.Withdraw(addr, caller, secret, imm)
}

// Cancel passes a cancellation through to the escrow on the given side.
func (r *Resolver) Cancel(side escrow.Side, addr common.Address, caller common.Address, imm *escrow.Immutables) error {
	b, err := r.backend(side)
	if err != nil {
		return err
	}
	return b.Engine.Cancel(addr, caller, imm)
}

// Rescue passes an emergency drain through to the escrow on the given side.
func (r *Resolver) Rescue(side escrow.Side, addr common.Address, caller common.Address, token common.Address, amount *big.Int, imm *escrow.Immutables) error {
	b, err := r.backend(side)
	if err != nil {
		return err
	}
	return b.Engine.Rescue(addr, caller, token, amount, imm)
}

// ArbitraryCalls forwards a batch of raw calls sequentially. The first
// failure aborts the batch and propagates its reason; the resolver's own
// state is never re-entered during execution.
func (r *Resolver) ArbitraryCalls(caller common.Address, targets []common.Address, payloads [][]byte) error {
	if err := r.requireOperator(caller); err != nil {
		return err
	}
	if len(targets) != len(payloads) {
		return ErrLengthMismatch
	}
	if r.caller == nil {
		return errors.New("resolver: call forwarder not configured")
	}
	for i := range targets {
		if err := r.caller.Call(targets[i], payloads[i]); err != nil {
			return fmt.Errorf("resolver: call %d to %s: %w", i, targets[i].Hex(), err)
		}
	}
	return nil
}
