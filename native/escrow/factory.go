package escrow

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"crosslock/core/events"
	"crosslock/core/types"
)

var (
	srcAddressTag = []byte("crosslock/escrow/src")
	dstAddressTag = []byte("crosslock/escrow/dst")
)

// Factory computes and verifies the deterministic identity of escrow instances
// and performs destination-side creation. The address of an escrow is a pure
// function of its immutables hash plus the factory identity, so any observer
// can compute it before the instance exists, and the resolver can pre-fund it.
type Factory struct {
	address common.Address
	state   EngineState
	emitter events.Emitter
	nowFn   func() int64
}

// NewFactory creates a factory bound to its chain-local address. The address
// participates in deterministic addressing, so both chains must configure the
// factory identity the relaying side expects.
func NewFactory(address common.Address) *Factory {
	return &Factory{
		address: address,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// Address returns the factory's chain-local identity.
func (f *Factory) Address() common.Address { return f.address }

// SetState configures the state backend used for creation.
func (f *Factory) SetState(state EngineState) { f.state = state }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (f *Factory) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		f.emitter = events.NoopEmitter{}
		return
	}
	f.emitter = emitter
}

// SetNowFunc overrides the chain-local time source, primarily for tests.
func (f *Factory) SetNowFunc(now func() int64) {
	if now == nil {
		f.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	f.nowFn = now
}

func (f *Factory) emit(evt *types.Event) {
	if f == nil || f.emitter == nil || evt == nil {
		return
	}
	f.emitter.Emit(escrowEvent{evt: evt})
}

func (f *Factory) now() uint32 {
	if f == nil || f.nowFn == nil {
		return uint32(time.Now().Unix())
	}
	return uint32(f.nowFn())
}

var errNilFactoryState = fmt.Errorf("escrow factory: state not configured")

func (f *Factory) deterministicAddress(tag []byte, id common.Hash) common.Address {
	digest := ethcrypto.Keccak256(tag, f.address.Bytes(), id.Bytes())
	return common.BytesToAddress(digest[12:])
}

// AddressOfEscrowSrc returns the deterministic source-side address for the
// given immutables. The record must already carry its deployment timestamp;
// restamping changes the hash and therefore the address.
func (f *Factory) AddressOfEscrowSrc(imm *Immutables) common.Address {
	return f.deterministicAddress(srcAddressTag, imm.Hash())
}

// AddressOfEscrowDst returns the deterministic destination-side address for
// the given immutables.
func (f *Factory) AddressOfEscrowDst(imm *Immutables) common.Address {
	return f.deterministicAddress(dstAddressTag, imm.Hash())
}

func (f *Factory) register(esc *Escrow) error {
	if _, ok, err := f.state.EscrowGet(esc.Address); err != nil {
		return err
	} else if ok {
		return ErrEscrowExists
	}
	return f.state.EscrowPut(esc)
}

// CreateDstEscrow deploys the destination escrow at its deterministic address,
// stamping the deployment timestamp and moving the principal and safety
// deposit in from the caller.
//
// The stamped cancellation start must not exceed srcCancellation: the
// destination escrow must never outlive the source's cancellation point, or
// the atomicity ordering breaks. This is the protocol's only cross-chain
// ordering check; everything else is caller discipline.
//
// Every precondition, including the caller's ability to cover both legs, is
// checked before the first transfer: a partial creation would strand funds at
// an address no registered instance can rescue from.
func (f *Factory) CreateDstEscrow(caller common.Address, imm *Immutables, srcCancellation uint32) (*Escrow, error) {
	if f == nil || f.state == nil {
		return nil, errNilFactoryState
	}
	now := f.now()
	stamped := imm.WithDeployedAt(now)
	if stamped.Timelocks.Start(StageDstCancellation) > srcCancellation {
		return nil, ErrInvalidCreationTime
	}
	addr := f.AddressOfEscrowDst(stamped)
	if _, ok, err := f.state.EscrowGet(addr); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrEscrowExists
	}
	if err := f.verifyCreationFunds(caller, stamped); err != nil {
		return nil, err
	}
	if err := f.state.TransferNative(caller, addr, stamped.SafetyDeposit); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNativeTokenSendingFailure, err)
	}
	if stamped.Token != (common.Address{}) {
		if err := f.state.TransferToken(stamped.Token, caller, addr, stamped.Amount); err != nil {
			return nil, err
		}
	} else {
		if err := f.state.TransferNative(caller, addr, stamped.Amount); err != nil {
			return nil, err
		}
	}
	esc := &Escrow{
		ID:         stamped.Hash(),
		Address:    addr,
		Side:       SideDst,
		Status:     StatusActive,
		DeployedAt: now,
	}
	if err := f.register(esc); err != nil {
		return nil, err
	}
	f.emit(NewDstEscrowCreatedEvent(addr, stamped.Hashlock, stamped.Taker))
	return esc.Clone(), nil
}

// CreateSrcEscrow registers the source escrow after the fill flow has
// delivered the principal and safety deposit to the precomputed address. The
// immutables must already be stamped with the deployment timestamp the
// resolver used when funding. The emitted event carries the destination
// complement for off-chain reconstruction.
func (f *Factory) CreateSrcEscrow(imm *Immutables, comp *DstImmutablesComplement) (*Escrow, error) {
	if f == nil || f.state == nil {
		return nil, errNilFactoryState
	}
	addr := f.AddressOfEscrowSrc(imm)
	if err := verifyEscrowBalance(f.state, addr, imm); err != nil {
		return nil, err
	}
	esc := &Escrow{
		ID:         imm.Hash(),
		Address:    addr,
		Side:       SideSrc,
		Status:     StatusActive,
		DeployedAt: imm.Timelocks.DeployedAt,
	}
	if err := f.register(esc); err != nil {
		return nil, err
	}
	f.emit(NewSrcEscrowCreatedEvent(addr, imm, comp))
	return esc.Clone(), nil
}

// CreateSrcEscrowPartial registers a source escrow for one partial fill of a
// multi-fill order. The fill proof must resolve to the order's Merkle root,
// the instance hashlock must match the proven leaf secret, and the instance
// amount must equal exactly the proven fraction — a proof replayed against a
// different fraction resolves to a different leaf and is rejected.
func (f *Factory) CreateSrcEscrowPartial(imm *Immutables, comp *DstImmutablesComplement, root common.Hash, proof FillProof) (*Escrow, error) {
	if !VerifyFill(root, proof) {
		return nil, ErrInvalidFillProof
	}
	if imm.Hashlock != proof.SecretHash {
		return nil, ErrInvalidFillProof
	}
	if cloneBigInt(imm.Amount).Cmp(cloneBigInt(proof.Fraction)) != 0 {
		return nil, ErrInvalidFillProof
	}
	return f.CreateSrcEscrow(imm, comp)
}

// verifyCreationFunds checks that the caller can cover both the principal and
// the native safety deposit. A native-side shortfall reports the deposit
// failure the transfer itself would have produced.
func (f *Factory) verifyCreationFunds(caller common.Address, imm *Immutables) error {
	required := cloneBigInt(imm.SafetyDeposit)
	if imm.Token == (common.Address{}) {
		required = required.Add(required, cloneBigInt(imm.Amount))
	} else {
		balance, err := f.state.TokenBalance(imm.Token, caller)
		if err != nil {
			return err
		}
		if balance.Cmp(cloneBigInt(imm.Amount)) < 0 {
			return ErrInsufficientEscrowBalance
		}
	}
	native, err := f.state.NativeBalance(caller)
	if err != nil {
		return err
	}
	if native.Cmp(required) < 0 {
		return fmt.Errorf("%w: insufficient native balance", ErrNativeTokenSendingFailure)
	}
	return nil
}

// verifyEscrowBalance checks that addr holds the full principal and safety
// deposit committed by imm. The factory uses it before registering a source
// escrow; the engine uses it before paying out, so a terminal transition never
// half-executes.
func verifyEscrowBalance(state LedgerState, addr common.Address, imm *Immutables) error {
	deposit := cloneBigInt(imm.SafetyDeposit)
	native, err := state.NativeBalance(addr)
	if err != nil {
		return err
	}
	if imm.Token == (common.Address{}) {
		required := new(big.Int).Add(deposit, cloneBigInt(imm.Amount))
		if native.Cmp(required) < 0 {
			return ErrInsufficientEscrowBalance
		}
		return nil
	}
	if native.Cmp(deposit) < 0 {
		return ErrInsufficientEscrowBalance
	}
	balance, err := state.TokenBalance(imm.Token, addr)
	if err != nil {
		return err
	}
	if balance.Cmp(cloneBigInt(imm.Amount)) < 0 {
		return ErrInsufficientEscrowBalance
	}
	return nil
}
