package escrow

import (
	"encoding/hex"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"crosslock/core/types"
)

const (
	EventTypeSrcEscrowCreated = "escrow.src_created"
	EventTypeDstEscrowCreated = "escrow.dst_created"
	EventTypeWithdrawal       = "escrow.withdrawal"
	EventTypeCancelled        = "escrow.cancelled"
	EventTypeFundsRescued     = "escrow.funds_rescued"
)

type escrowEvent struct {
	evt *types.Event
}

func (e escrowEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e escrowEvent) Event() *types.Event { return e.evt }

// NewSrcEscrowCreatedEvent returns the canonical event payload emitted when a
// source escrow is registered. It carries the full immutables plus the
// destination complement so any observer can reconstruct the destination
// escrow's expected parameters without a second source of truth.
func NewSrcEscrowCreatedEvent(addr common.Address, imm *Immutables, comp *DstImmutablesComplement) *types.Event {
	attrs := immutablesAttributes(imm)
	attrs["address"] = addr.Hex()
	if comp != nil {
		attrs["dstMaker"] = comp.Maker.Hex()
		attrs["dstToken"] = comp.Token.Hex()
		attrs["dstAmount"] = cloneBigInt(comp.Amount).String()
		attrs["dstSafetyDeposit"] = cloneBigInt(comp.SafetyDeposit).String()
		attrs["dstChainId"] = cloneBigInt(comp.ChainID).String()
	}
	return &types.Event{Type: EventTypeSrcEscrowCreated, Attributes: attrs}
}

// NewDstEscrowCreatedEvent returns the canonical event payload emitted when a
// destination escrow is deployed at its deterministic address.
func NewDstEscrowCreatedEvent(addr common.Address, hashlock common.Hash, taker common.Address) *types.Event {
	return &types.Event{Type: EventTypeDstEscrowCreated, Attributes: map[string]string{
		"address":  addr.Hex(),
		"hashlock": hashlock.Hex(),
		"taker":    taker.Hex(),
	}}
}

// NewWithdrawalEvent returns the event revealing the secret. Whoever observes
// it can finish the swap's other leg.
func NewWithdrawalEvent(esc *Escrow, secret [SecretLength]byte) *types.Event {
	attrs := escrowAttributes(esc)
	attrs["secret"] = hex.EncodeToString(secret[:])
	return &types.Event{Type: EventTypeWithdrawal, Attributes: attrs}
}

// NewCancelledEvent returns the event emitted when an escrow is unwound.
func NewCancelledEvent(esc *Escrow) *types.Event {
	return &types.Event{Type: EventTypeCancelled, Attributes: escrowAttributes(esc)}
}

// NewFundsRescuedEvent returns the event emitted when residual balances are
// drained by the taker after the rescue delay.
func NewFundsRescuedEvent(esc *Escrow, token common.Address, amount string) *types.Event {
	attrs := escrowAttributes(esc)
	attrs["token"] = token.Hex()
	attrs["amount"] = amount
	return &types.Event{Type: EventTypeFundsRescued, Attributes: attrs}
}

func escrowAttributes(esc *Escrow) map[string]string {
	attrs := make(map[string]string)
	if esc == nil {
		return attrs
	}
	attrs["id"] = esc.ID.Hex()
	attrs["address"] = esc.Address.Hex()
	attrs["side"] = esc.Side.String()
	attrs["deployedAt"] = strconv.FormatUint(uint64(esc.DeployedAt), 10)
	return attrs
}

func immutablesAttributes(imm *Immutables) map[string]string {
	attrs := make(map[string]string)
	if imm == nil {
		return attrs
	}
	attrs["orderHash"] = imm.OrderHash.Hex()
	attrs["hashlock"] = imm.Hashlock.Hex()
	attrs["maker"] = imm.Maker.Hex()
	attrs["taker"] = imm.Taker.Hex()
	attrs["token"] = imm.Token.Hex()
	attrs["amount"] = cloneBigInt(imm.Amount).String()
	attrs["safetyDeposit"] = cloneBigInt(imm.SafetyDeposit).String()
	attrs["timelocks"] = imm.Timelocks.Pack().Hex()
	return attrs
}
