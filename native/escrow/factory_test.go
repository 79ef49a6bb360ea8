package escrow

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"crosslock/core/events"
)

func newTestFactory(state *mockState, recorder *events.Recorder, clock *int64) *Factory {
	factory := NewFactory(common.HexToAddress("0xFAC0000000000000000000000000000000000001"))
	factory.SetState(state)
	factory.SetEmitter(recorder)
	factory.SetNowFunc(func() int64 { return *clock })
	return factory
}

func sampleComplement() *DstImmutablesComplement {
	return &DstImmutablesComplement{
		Maker:         common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Amount:        big.NewInt(800),
		Token:         common.HexToAddress("0x5555555555555555555555555555555555555555"),
		SafetyDeposit: big.NewInt(80),
		ChainID:       big.NewInt(137),
	}
}

func TestDeterministicAddresses(t *testing.T) {
	clock := deployTime
	factory := newTestFactory(newMockState(), events.NewRecorder(), &clock)
	imm := sampleImmutables()

	require.Equal(t, factory.AddressOfEscrowSrc(imm), factory.AddressOfEscrowSrc(imm.Clone()))
	require.NotEqual(t, factory.AddressOfEscrowSrc(imm), factory.AddressOfEscrowDst(imm))

	// Any immutables change moves the address.
	other := imm.Clone()
	other.Amount = big.NewInt(1)
	require.NotEqual(t, factory.AddressOfEscrowSrc(imm), factory.AddressOfEscrowSrc(other))

	// So does the factory identity.
	foreign := NewFactory(common.HexToAddress("0xFAC0000000000000000000000000000000000002"))
	require.NotEqual(t, factory.AddressOfEscrowSrc(imm), foreign.AddressOfEscrowSrc(imm))
}

func TestCreateDstEscrow(t *testing.T) {
	state := newMockState()
	recorder := events.NewRecorder()
	clock := deployTime
	factory := newTestFactory(state, recorder, &clock)

	caller := common.HexToAddress("0x2222222222222222222222222222222222222222")
	imm := sampleImmutables()
	state.mintNative(caller, 100)
	state.mintToken(imm.Token, caller, 1_000)

	srcCancellation := uint32(deployTime) + 240
	esc, err := factory.CreateDstEscrow(caller, imm, srcCancellation)
	require.NoError(t, err)
	require.Equal(t, SideDst, esc.Side)
	require.Equal(t, StatusActive, esc.Status)
	require.Equal(t, uint32(deployTime), esc.DeployedAt)

	bal, _ := state.TokenBalance(imm.Token, esc.Address)
	require.Equal(t, int64(1_000), bal.Int64())
	native, _ := state.NativeBalance(esc.Address)
	require.Equal(t, int64(100), native.Int64())

	evts := recorder.Events()
	require.Len(t, evts, 1)
	require.Equal(t, EventTypeDstEscrowCreated, evts[0].EventType())

	// The address is occupied now, and the rejected retry moves nothing.
	state.mintNative(caller, 100)
	state.mintToken(imm.Token, caller, 1_000)
	_, err = factory.CreateDstEscrow(caller, imm, srcCancellation)
	require.ErrorIs(t, err, ErrEscrowExists)
	native, _ = state.NativeBalance(caller)
	require.Equal(t, int64(100), native.Int64())
	bal, _ = state.TokenBalance(imm.Token, caller)
	require.Equal(t, int64(1_000), bal.Int64())
}

func TestCreateDstEscrowUnchangedOnFailure(t *testing.T) {
	state := newMockState()
	clock := deployTime
	factory := newTestFactory(state, events.NewRecorder(), &clock)

	caller := common.HexToAddress("0x2222222222222222222222222222222222222222")
	imm := sampleImmutables()
	// The caller can cover the deposit but not the token principal.
	state.mintNative(caller, 100)

	_, err := factory.CreateDstEscrow(caller, imm, uint32(deployTime)+240)
	require.ErrorIs(t, err, ErrInsufficientEscrowBalance)

	// The deposit never left the caller and no instance was registered.
	native, _ := state.NativeBalance(caller)
	require.Equal(t, int64(100), native.Int64())
	addr := factory.AddressOfEscrowDst(imm.WithDeployedAt(uint32(deployTime)))
	_, ok, err := state.EscrowGet(addr)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCreateDstEscrowRejectsLateCancellation(t *testing.T) {
	state := newMockState()
	clock := deployTime
	factory := newTestFactory(state, events.NewRecorder(), &clock)

	caller := common.HexToAddress("0x2222222222222222222222222222222222222222")
	imm := sampleImmutables()
	state.mintNative(caller, 100)
	state.mintToken(imm.Token, caller, 1_000)

	// The destination cancellation stage would open after the source's, so
	// the taker could be cancelled out on one leg while still locked on the
	// other.
	srcCancellation := uint32(deployTime) + 100
	_, err := factory.CreateDstEscrow(caller, imm, srcCancellation)
	require.ErrorIs(t, err, ErrInvalidCreationTime)

	// Nothing moved.
	bal, _ := state.TokenBalance(imm.Token, caller)
	require.Equal(t, int64(1_000), bal.Int64())
	native, _ := state.NativeBalance(caller)
	require.Equal(t, int64(100), native.Int64())
}

func TestCreateDstEscrowDepositFailure(t *testing.T) {
	state := newMockState()
	clock := deployTime
	factory := newTestFactory(state, events.NewRecorder(), &clock)

	caller := common.HexToAddress("0x2222222222222222222222222222222222222222")
	imm := sampleImmutables()
	state.mintToken(imm.Token, caller, 1_000)

	// Caller has the principal but not the native safety deposit.
	_, err := factory.CreateDstEscrow(caller, imm, uint32(deployTime)+240)
	require.ErrorIs(t, err, ErrNativeTokenSendingFailure)
}

func TestCreateDstEscrowNativePrincipal(t *testing.T) {
	state := newMockState()
	clock := deployTime
	factory := newTestFactory(state, events.NewRecorder(), &clock)

	caller := common.HexToAddress("0x2222222222222222222222222222222222222222")
	imm := sampleImmutables()
	imm.Token = common.Address{}
	state.mintNative(caller, 1_100)

	esc, err := factory.CreateDstEscrow(caller, imm, uint32(deployTime)+240)
	require.NoError(t, err)
	native, _ := state.NativeBalance(esc.Address)
	require.Equal(t, int64(1_100), native.Int64())
}

func TestCreateSrcEscrowRequiresFunding(t *testing.T) {
	state := newMockState()
	recorder := events.NewRecorder()
	clock := deployTime
	factory := newTestFactory(state, recorder, &clock)

	imm := sampleImmutables().WithDeployedAt(uint32(deployTime))
	addr := factory.AddressOfEscrowSrc(imm)

	_, err := factory.CreateSrcEscrow(imm, sampleComplement())
	require.ErrorIs(t, err, ErrInsufficientEscrowBalance)

	// Deposit alone is not enough.
	state.mintNative(addr, 100)
	_, err = factory.CreateSrcEscrow(imm, sampleComplement())
	require.ErrorIs(t, err, ErrInsufficientEscrowBalance)

	state.mintToken(imm.Token, addr, 1_000)
	esc, err := factory.CreateSrcEscrow(imm, sampleComplement())
	require.NoError(t, err)
	require.Equal(t, SideSrc, esc.Side)
	require.Equal(t, addr, esc.Address)

	evts := recorder.Events()
	require.Len(t, evts, 1)
	require.Equal(t, EventTypeSrcEscrowCreated, evts[0].EventType())
}

func TestCreateSrcEscrowPartial(t *testing.T) {
	state := newMockState()
	clock := deployTime
	factory := newTestFactory(state, events.NewRecorder(), &clock)

	tree, secrets, fractions := quarterTree(t)
	root := tree.Root()
	path, err := tree.Path(1)
	require.NoError(t, err)
	proof := FillProof{Index: 1, SecretHash: HashSecret(secrets[1]), Fraction: fractions[1], Path: path}

	imm := sampleImmutables().WithDeployedAt(uint32(deployTime))
	imm.Hashlock = proof.SecretHash
	imm.Amount = big.NewInt(250)

	addr := factory.AddressOfEscrowSrc(imm)
	state.mintNative(addr, 100)
	state.mintToken(imm.Token, addr, 250)

	esc, err := factory.CreateSrcEscrowPartial(imm, sampleComplement(), root, proof)
	require.NoError(t, err)
	require.Equal(t, addr, esc.Address)
}

func TestCreateSrcEscrowPartialRejections(t *testing.T) {
	clock := deployTime
	factory := newTestFactory(newMockState(), events.NewRecorder(), &clock)

	tree, secrets, fractions := quarterTree(t)
	root := tree.Root()
	path, err := tree.Path(1)
	require.NoError(t, err)
	proof := FillProof{Index: 1, SecretHash: HashSecret(secrets[1]), Fraction: fractions[1], Path: path}

	imm := sampleImmutables().WithDeployedAt(uint32(deployTime))
	imm.Hashlock = proof.SecretHash
	imm.Amount = big.NewInt(250)

	// Proof that does not resolve to the root.
	broken := proof
	broken.Index = 2
	_, err = factory.CreateSrcEscrowPartial(imm, sampleComplement(), root, broken)
	require.ErrorIs(t, err, ErrInvalidFillProof)

	// Instance hashlock disagreeing with the proven leaf.
	tampered := imm.Clone()
	tampered.Hashlock = HashSecret(testSecret(9))
	_, err = factory.CreateSrcEscrowPartial(tampered, sampleComplement(), root, proof)
	require.ErrorIs(t, err, ErrInvalidFillProof)

	// Escrow amount not matching the committed fraction.
	oversized := imm.Clone()
	oversized.Amount = big.NewInt(500)
	_, err = factory.CreateSrcEscrowPartial(oversized, sampleComplement(), root, proof)
	require.ErrorIs(t, err, ErrInvalidFillProof)
}
