package chain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"crosslock/native/escrow"
	"crosslock/storage"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000000A1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000B2")
	token = common.HexToAddress("0x00000000000000000000000000000000000000E0")
)

func newTestState(t *testing.T) *State {
	t.Helper()
	return NewState(storage.NewMemDB(), big.NewInt(1337))
}

func TestNativeTransfer(t *testing.T) {
	state := newTestState(t)
	require.NoError(t, state.MintNative(alice, big.NewInt(100)))

	require.NoError(t, state.TransferNative(alice, bob, big.NewInt(40)))
	aliceBal, err := state.NativeBalance(alice)
	require.NoError(t, err)
	require.Equal(t, int64(60), aliceBal.Int64())
	bobBal, err := state.NativeBalance(bob)
	require.NoError(t, err)
	require.Equal(t, int64(40), bobBal.Int64())

	require.ErrorIs(t, state.TransferNative(alice, bob, big.NewInt(61)), ErrInsufficientBalance)
	require.Error(t, state.TransferNative(alice, bob, big.NewInt(-1)))

	// Zero and nil amounts are no-ops.
	require.NoError(t, state.TransferNative(alice, bob, big.NewInt(0)))
	require.NoError(t, state.TransferNative(alice, bob, nil))
}

func TestTokenBalancesIsolatedPerToken(t *testing.T) {
	state := newTestState(t)
	other := common.HexToAddress("0x00000000000000000000000000000000000000E1")
	require.NoError(t, state.MintToken(token, alice, big.NewInt(10)))

	bal, err := state.TokenBalance(other, alice)
	require.NoError(t, err)
	require.Zero(t, bal.Sign())

	require.ErrorIs(t, state.TransferToken(other, alice, bob, big.NewInt(1)), ErrInsufficientBalance)
	require.NoError(t, state.TransferToken(token, alice, bob, big.NewInt(10)))
}

func TestEscrowRoundTrip(t *testing.T) {
	state := newTestState(t)
	addr := common.HexToAddress("0x00000000000000000000000000000000000000F0")

	_, ok, err := state.EscrowGet(addr)
	require.NoError(t, err)
	require.False(t, ok)

	esc := &escrow.Escrow{
		ID:         common.HexToHash("0x01"),
		Address:    addr,
		Side:       escrow.SideDst,
		Status:     escrow.StatusActive,
		DeployedAt: 1_700_000_000,
	}
	require.NoError(t, state.EscrowPut(esc))

	got, ok, err := state.EscrowGet(addr)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, esc, got)

	// Status updates persist over the same key.
	got.Status = escrow.StatusWithdrawn
	require.NoError(t, state.EscrowPut(got))
	again, _, err := state.EscrowGet(addr)
	require.NoError(t, err)
	require.Equal(t, escrow.StatusWithdrawn, again.Status)
}

func TestEscrowPutRejectsInvalid(t *testing.T) {
	state := newTestState(t)
	require.Error(t, state.EscrowPut(nil))
	require.Error(t, state.EscrowPut(&escrow.Escrow{Status: 0}))
}

func TestChainIDCopies(t *testing.T) {
	state := newTestState(t)
	id := state.ChainID()
	id.SetInt64(9)
	require.Equal(t, int64(1337), state.ChainID().Int64())
}
