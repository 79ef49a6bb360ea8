package rpc

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"crosslock/chain"
	"crosslock/native/escrow"
	"crosslock/native/resolver"
	"crosslock/storage"
)

const testToken = "test-operator-token"

type serverFixture struct {
	server   *Server
	handler  http.Handler
	clock    int64
	srcState *chain.State
	dstState *chain.State
	srcFact  *escrow.Factory
	dstFact  *escrow.Factory
	operator common.Address
	funding  common.Address
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	fix := &serverFixture{
		clock:    1_700_000_000,
		operator: common.HexToAddress("0x1000000000000000000000000000000000000001"),
		funding:  common.HexToAddress("0x2000000000000000000000000000000000000002"),
	}
	now := func() int64 { return fix.clock }

	fix.srcState = chain.NewState(storage.NewMemDB(), big.NewInt(1))
	fix.dstState = chain.NewState(storage.NewMemDB(), big.NewInt(2))
	fix.srcState.SetNowFunc(now)
	fix.dstState.SetNowFunc(now)

	newBackend := func(state *chain.State, factoryAddr common.Address) (resolver.ChainBackend, *escrow.Factory) {
		factory := escrow.NewFactory(factoryAddr)
		factory.SetState(state)
		factory.SetNowFunc(now)
		engine := escrow.NewEngine(7 * 24 * 60 * 60)
		engine.SetState(state)
		engine.SetNowFunc(now)
		return resolver.ChainBackend{State: state, Factory: factory, Engine: engine, Now: now}, factory
	}
	src, srcFact := newBackend(fix.srcState, common.HexToAddress("0xFAC0000000000000000000000000000000000001"))
	dst, dstFact := newBackend(fix.dstState, common.HexToAddress("0xFAC0000000000000000000000000000000000002"))
	fix.srcFact, fix.dstFact = srcFact, dstFact

	res := resolver.New(fix.operator, fix.funding, src, dst, nil)
	fix.server = NewServer(nil, res, srcFact, dstFact, testToken)
	fix.handler = fix.server.Router()
	return fix
}

func (fix *serverFixture) post(t *testing.T, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	fix.handler.ServeHTTP(rec, req)
	return rec
}

func sampleImmutablesJSON() immutablesJSON {
	return immutablesJSON{
		OrderHash:     common.HexToHash("0x01").Hex(),
		Hashlock:      common.HexToHash("0x02").Hex(),
		Maker:         "0x3000000000000000000000000000000000000003",
		Taker:         "0x2000000000000000000000000000000000000002",
		Token:         "0x4000000000000000000000000000000000000004",
		Amount:        "500",
		SafetyDeposit: "50",
		Timelocks: timelocksJSON{
			SrcWithdrawal:         10,
			SrcPublicWithdrawal:   120,
			SrcCancellation:       240,
			SrcPublicCancellation: 360,
			DstWithdrawal:         10,
			DstPublicWithdrawal:   100,
			DstCancellation:       200,
		},
	}
}

func TestHealthz(t *testing.T) {
	fix := newServerFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	fix.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestOperatorEndpointsRequireToken(t *testing.T) {
	fix := newServerFixture(t)
	body := deployDstParams{Caller: fix.operator.Hex(), Immutables: sampleImmutablesJSON()}

	rec := fix.post(t, "/v1/resolver/deploy-dst", body, "")
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = fix.post(t, "/v1/resolver/deploy-dst", body, "wrong-token")
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAddressOf(t *testing.T) {
	fix := newServerFixture(t)
	params := sampleImmutablesJSON()
	params.Timelocks.DeployedAt = uint32(fix.clock)

	rec := fix.post(t, "/v1/escrow/address", addressOfParams{Side: "src", Immutables: params}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var result addressOfResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	imm, err := params.decode()
	require.NoError(t, err)
	require.Equal(t, fix.srcFact.AddressOfEscrowSrc(imm).Hex(), result.Address)
	require.Equal(t, imm.Hash().Hex(), result.ID)
}

func TestAddressOfRejectsBadParams(t *testing.T) {
	fix := newServerFixture(t)

	rec := fix.post(t, "/v1/escrow/address", addressOfParams{Side: "sideways", Immutables: sampleImmutablesJSON()}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	broken := sampleImmutablesJSON()
	broken.Amount = "-5"
	rec = fix.post(t, "/v1/escrow/address", addressOfParams{Side: "src", Immutables: broken}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeployDstThroughRPC(t *testing.T) {
	fix := newServerFixture(t)
	require.NoError(t, fix.dstState.MintNative(fix.funding, big.NewInt(1_000)))
	require.NoError(t, fix.dstState.MintToken(
		common.HexToAddress("0x4000000000000000000000000000000000000004"), fix.funding, big.NewInt(500)))

	body := deployDstParams{
		Caller:          fix.operator.Hex(),
		Immutables:      sampleImmutablesJSON(),
		SrcCancellation: uint32(fix.clock) + 240,
	}
	rec := fix.post(t, "/v1/resolver/deploy-dst", body, testToken)
	require.Equal(t, http.StatusOK, rec.Code)

	var result deployResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	esc, ok, err := fix.dstState.EscrowGet(common.HexToAddress(result.Address))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, escrow.StatusActive, esc.Status)
}

func TestDomainErrorMapping(t *testing.T) {
	fix := newServerFixture(t)

	// Wrong caller trips the resolver's operator gate.
	body := deployDstParams{
		Caller:          "0x9000000000000000000000000000000000000009",
		Immutables:      sampleImmutablesJSON(),
		SrcCancellation: uint32(fix.clock) + 240,
	}
	rec := fix.post(t, "/v1/resolver/deploy-dst", body, testToken)
	require.Equal(t, http.StatusForbidden, rec.Code)

	// A cancellation window the source cannot cover is a conflict.
	require.NoError(t, fix.dstState.MintNative(fix.funding, big.NewInt(1_000)))
	body.Caller = fix.operator.Hex()
	body.SrcCancellation = uint32(fix.clock)
	rec = fix.post(t, "/v1/resolver/deploy-dst", body, testToken)
	require.Equal(t, http.StatusConflict, rec.Code)

	// Withdrawing from an unknown escrow is a 404.
	lifecycle := lifecycleParams{
		Side:       "src",
		Address:    "0x00000000000000000000000000000000000000F0",
		Caller:     fix.funding.Hex(),
		Secret:     common.HexToHash("0x05").Hex(),
		Immutables: sampleImmutablesJSON(),
	}
	rec = fix.post(t, "/v1/escrow/withdraw", lifecycle, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}
