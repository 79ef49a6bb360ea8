package escrow

import (
	"encoding/binary"
	"fmt"

	"github.com/holiman/uint256"
)

// Stage identifies one window of the escrow schedule. The canonical order
// matters: stage offsets are packed by stage index and window reasoning in the
// engine assumes this ordering.
type Stage uint8

const (
	StageSrcWithdrawal Stage = iota
	StageSrcPublicWithdrawal
	StageSrcCancellation
	StageSrcPublicCancellation
	StageDstWithdrawal
	StageDstPublicWithdrawal
	StageDstCancellation

	stageCount = 7
)

// String returns the canonical stage name.
func (s Stage) String() string {
	switch s {
	case StageSrcWithdrawal:
		return "src_withdrawal"
	case StageSrcPublicWithdrawal:
		return "src_public_withdrawal"
	case StageSrcCancellation:
		return "src_cancellation"
	case StageSrcPublicCancellation:
		return "src_public_cancellation"
	case StageDstWithdrawal:
		return "dst_withdrawal"
	case StageDstPublicWithdrawal:
		return "dst_public_withdrawal"
	case StageDstCancellation:
		return "dst_cancellation"
	default:
		return fmt.Sprintf("stage(%d)", uint8(s))
	}
}

// Timelocks carries the deployment timestamp and the seven relative stage
// offsets of one escrow schedule. The struct is the working representation;
// Pack/UnpackTimelocks form the explicit boundary to the 256-bit wire word.
//
// Offsets are trusted inputs from the order creation flow. The codec performs
// no ordering validation; the cross-chain atomicity argument relies on the
// caller supplying monotonically increasing offsets within each chain's
// sub-sequence.
type Timelocks struct {
	DeployedAt            uint32
	SrcWithdrawal         uint32
	SrcPublicWithdrawal   uint32
	SrcCancellation       uint32
	SrcPublicCancellation uint32
	DstWithdrawal         uint32
	DstPublicWithdrawal   uint32
	DstCancellation       uint32
}

func (t Timelocks) offset(stage Stage) uint32 {
	switch stage {
	case StageSrcWithdrawal:
		return t.SrcWithdrawal
	case StageSrcPublicWithdrawal:
		return t.SrcPublicWithdrawal
	case StageSrcCancellation:
		return t.SrcCancellation
	case StageSrcPublicCancellation:
		return t.SrcPublicCancellation
	case StageDstWithdrawal:
		return t.DstWithdrawal
	case StageDstPublicWithdrawal:
		return t.DstPublicWithdrawal
	case StageDstCancellation:
		return t.DstCancellation
	default:
		return 0
	}
}

// WithDeployedAt returns a copy with the deployment timestamp set, overwriting
// any previous value. Callers set it exactly once, at the moment the escrow is
// created on-ledger; every stage computation afterwards is anchored to it.
func (t Timelocks) WithDeployedAt(ts uint32) Timelocks {
	t.DeployedAt = ts
	return t
}

// Start returns the absolute start of the given stage: deployment timestamp
// plus the packed offset, with uint32 wraparound matching the packed field
// width.
func (t Timelocks) Start(stage Stage) uint32 {
	return t.DeployedAt + t.offset(stage)
}

// RescueStart returns the absolute time after which residual balances may be
// rescued. The delay is a factory-wide constant, not part of the per-stage
// schedule.
func (t Timelocks) RescueStart(delay uint32) uint32 {
	return t.DeployedAt + delay
}

// Pack encodes the schedule into its canonical 256-bit word: stage i occupies
// bits [32*i, 32*i+32) and the deployment timestamp the top 32 bits. The
// packed form is what enters the immutables hash, so the layout is
// load-bearing and must stay bit-exact.
func (t Timelocks) Pack() *uint256.Int {
	var buf [32]byte
	binary.BigEndian.PutUint32(buf[0:4], t.DeployedAt)
	for stage := Stage(0); stage < stageCount; stage++ {
		off := 32 - 4*(int(stage)+1)
		binary.BigEndian.PutUint32(buf[off:off+4], t.offset(stage))
	}
	return new(uint256.Int).SetBytes(buf[:])
}

// UnpackTimelocks decodes a packed 256-bit schedule word.
func UnpackTimelocks(word *uint256.Int) Timelocks {
	var t Timelocks
	if word == nil {
		return t
	}
	buf := word.Bytes32()
	t.DeployedAt = binary.BigEndian.Uint32(buf[0:4])
	t.SrcWithdrawal = binary.BigEndian.Uint32(buf[28:32])
	t.SrcPublicWithdrawal = binary.BigEndian.Uint32(buf[24:28])
	t.SrcCancellation = binary.BigEndian.Uint32(buf[20:24])
	t.SrcPublicCancellation = binary.BigEndian.Uint32(buf[16:20])
	t.DstWithdrawal = binary.BigEndian.Uint32(buf[12:16])
	t.DstPublicWithdrawal = binary.BigEndian.Uint32(buf[8:12])
	t.DstCancellation = binary.BigEndian.Uint32(buf[4:8])
	return t
}
