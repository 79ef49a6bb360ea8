package escrow

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"crosslock/core/events"
	"crosslock/core/types"
)

// LedgerState is the balance backend of one chain. Native funds pay safety
// deposits; token funds carry the swap principal. A zero token address denotes
// the chain's native asset.
type LedgerState interface {
	NativeBalance(addr common.Address) (*big.Int, error)
	TokenBalance(token, addr common.Address) (*big.Int, error)
	TransferNative(from, to common.Address, amount *big.Int) error
	TransferToken(token, from, to common.Address, amount *big.Int) error
}

// EngineState combines the balance backend with the content-addressed escrow
// instance store keyed by deterministic address.
type EngineState interface {
	LedgerState
	EscrowPut(*Escrow) error
	EscrowGet(addr common.Address) (*Escrow, bool, error)
}

// Engine enforces the per-instance escrow lifecycle of one chain: caller
// identity, time windows and secret verification for withdrawal, cancellation
// and emergency rescue. One engine instance serves every escrow on its chain;
// transitions are serialized by the backing ledger.
type Engine struct {
	state       EngineState
	emitter     events.Emitter
	nowFn       func() int64
	rescueDelay uint32
}

// NewEngine creates an engine with a no-op emitter and the wall clock. Callers
// override both via SetEmitter and SetNowFunc.
func NewEngine(rescueDelay uint32) *Engine {
	return &Engine{
		emitter:     events.NoopEmitter{},
		nowFn:       func() int64 { return time.Now().Unix() },
		rescueDelay: rescueDelay,
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state EngineState) { e.state = state }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the chain-local time source. Primarily intended for
// tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// RescueDelay returns the factory-wide rescue delay applied to every instance
// on this chain.
func (e *Engine) RescueDelay() uint32 { return e.rescueDelay }

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(escrowEvent{evt: evt})
}

func (e *Engine) now() uint32 {
	if e == nil || e.nowFn == nil {
		return uint32(time.Now().Unix())
	}
	return uint32(e.nowFn())
}

var errNilEngineState = fmt.Errorf("escrow engine: state not configured")

// load fetches the instance bound to addr and checks the supplied record
// against its identity. A missing instance and a tampered record are distinct
// failures so callers can tell resubmission from a lost address apart.
func (e *Engine) load(addr common.Address, imm *Immutables) (*Escrow, error) {
	if e == nil || e.state == nil {
		return nil, errNilEngineState
	}
	esc, ok, err := e.state.EscrowGet(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrEscrowNotFound
	}
	if imm.Hash() != esc.ID {
		return nil, ErrInvalidImmutables
	}
	return esc, nil
}

// transferPrincipal moves the escrowed asset out of the instance address. The
// zero token address denotes native funds.
func (e *Engine) transferPrincipal(token common.Address, from, to common.Address, amount *big.Int) error {
	if token == (common.Address{}) {
		return e.state.TransferNative(from, to, amount)
	}
	return e.state.TransferToken(token, from, to, amount)
}

// Withdraw releases the principal against the revealed secret.
//
// On the source side the principal goes to the taker; on the destination side
// it goes to the maker. Either way the safety deposit rewards the caller, so
// during the public window any prompt actor is compensated for finishing the
// job. The private window [Withdrawal, Cancellation) admits only the taker;
// the public window [PublicWithdrawal, Cancellation) admits anyone.
func (e *Engine) Withdraw(addr common.Address, caller common.Address, secret [SecretLength]byte, imm *Immutables) error {
	esc, err := e.load(addr, imm)
	if err != nil {
		return err
	}
	if esc.Status != StatusActive {
		return ErrEscrowCompleted
	}

	var withdrawal, publicWithdrawal, cancellation Stage
	var recipient common.Address
	switch esc.Side {
	case SideSrc:
		withdrawal, publicWithdrawal, cancellation = StageSrcWithdrawal, StageSrcPublicWithdrawal, StageSrcCancellation
		recipient = imm.Taker
	default:
		withdrawal, publicWithdrawal, cancellation = StageDstWithdrawal, StageDstPublicWithdrawal, StageDstCancellation
		recipient = imm.Maker
	}

	now := e.now()
	tl := imm.Timelocks
	if now < tl.Start(withdrawal) || now >= tl.Start(cancellation) {
		return ErrInvalidTime
	}
	if now < tl.Start(publicWithdrawal) && caller != imm.Taker {
		return ErrInvalidCaller
	}
	if !VerifySecret(imm.Hashlock, secret) {
		return ErrInvalidSecret
	}
	if err := verifyEscrowBalance(e.state, addr, imm); err != nil {
		return err
	}

	if err := e.transferPrincipal(imm.Token, addr, recipient, imm.Amount); err != nil {
		return err
	}
	if err := e.state.TransferNative(addr, caller, imm.SafetyDeposit); err != nil {
		return err
	}
	esc.Status = StatusWithdrawn
	if err := e.state.EscrowPut(esc); err != nil {
		return err
	}
	e.emit(NewWithdrawalEvent(esc, secret))
	return nil
}

// Cancel unwinds the escrow after its cancellation stage opens, returning the
// principal to its original depositor and the safety deposit to the caller.
//
// Source side: the taker may cancel from SrcCancellation and anyone from
// SrcPublicCancellation. Destination side: only the taker, from its single
// DstCancellation stage.
func (e *Engine) Cancel(addr common.Address, caller common.Address, imm *Immutables) error {
	esc, err := e.load(addr, imm)
	if err != nil {
		return err
	}
	if esc.Status != StatusActive {
		return ErrEscrowCompleted
	}

	now := e.now()
	tl := imm.Timelocks
	var recipient common.Address
	switch esc.Side {
	case SideSrc:
		if now < tl.Start(StageSrcCancellation) {
			return ErrInvalidTime
		}
		if now < tl.Start(StageSrcPublicCancellation) && caller != imm.Taker {
			return ErrInvalidCaller
		}
		recipient = imm.Maker
	default:
		if now < tl.Start(StageDstCancellation) {
			return ErrInvalidTime
		}
		if caller != imm.Taker {
			return ErrInvalidCaller
		}
		recipient = imm.Taker
	}
	if err := verifyEscrowBalance(e.state, addr, imm); err != nil {
		return err
	}

	if err := e.transferPrincipal(imm.Token, addr, recipient, imm.Amount); err != nil {
		return err
	}
	if err := e.state.TransferNative(addr, caller, imm.SafetyDeposit); err != nil {
		return err
	}
	esc.Status = StatusCancelled
	if err := e.state.EscrowPut(esc); err != nil {
		return err
	}
	e.emit(NewCancelledEvent(esc))
	return nil
}

// Rescue drains residual balances, including tokens other than the principal,
// once the rescue delay has elapsed. Only the taker may rescue, and the
// operation is independent of the withdraw/cancel outcome: it addresses stuck
// or misdirected funds, not the principal swap flow.
func (e *Engine) Rescue(addr common.Address, caller common.Address, token common.Address, amount *big.Int, imm *Immutables) error {
	esc, err := e.load(addr, imm)
	if err != nil {
		return err
	}
	if caller != imm.Taker {
		return ErrInvalidCaller
	}
	if e.now() < imm.Timelocks.RescueStart(e.rescueDelay) {
		return ErrInvalidTime
	}
	if err := e.transferPrincipal(token, addr, caller, amount); err != nil {
		return err
	}
	e.emit(NewFundsRescuedEvent(esc, token, cloneBigInt(amount).String()))
	return nil
}
