package escrow

import (
	"github.com/ethereum/go-ethereum/common"
)

// Side distinguishes the source-chain escrow (holding the maker's asset) from
// the destination-chain escrow (holding the taker's asset).
type Side uint8

const (
	SideSrc Side = iota
	SideDst
)

// String returns the canonical side label.
func (s Side) String() string {
	switch s {
	case SideSrc:
		return "src"
	case SideDst:
		return "dst"
	default:
		return "unknown"
	}
}

// Status is the lifecycle state of one escrow instance. Active is the initial
// state; Withdrawn and Cancelled are terminal and mutually exclusive. Rescue
// is not a status: it addresses stuck or extraneous balances and stays
// available regardless of the terminal outcome.
type Status uint8

const (
	StatusActive Status = iota + 1
	StatusWithdrawn
	StatusCancelled
)

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusWithdrawn, StatusCancelled:
		return true
	default:
		return false
	}
}

// String returns the canonical status label.
func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusWithdrawn:
		return "withdrawn"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Escrow is the on-ledger footprint of one instance. It deliberately stores
// only the identity hash, not the full immutables record: callers resupply the
// record on every call and the engine re-derives and compares its hash.
type Escrow struct {
	ID         common.Hash    `json:"id"`
	Address    common.Address `json:"address"`
	Side       Side           `json:"side"`
	Status     Status         `json:"status"`
	DeployedAt uint32         `json:"deployedAt"`
}

// Clone returns a copy so callers can safely mutate it without affecting the
// stored instance.
func (e *Escrow) Clone() *Escrow {
	if e == nil {
		return nil
	}
	clone := *e
	return &clone
}
