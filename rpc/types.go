package rpc

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"crosslock/native/escrow"
	"crosslock/native/resolver"
)

type timelocksJSON struct {
	DeployedAt            uint32 `json:"deployedAt,omitempty"`
	SrcWithdrawal         uint32 `json:"srcWithdrawal"`
	SrcPublicWithdrawal   uint32 `json:"srcPublicWithdrawal"`
	SrcCancellation       uint32 `json:"srcCancellation"`
	SrcPublicCancellation uint32 `json:"srcPublicCancellation"`
	DstWithdrawal         uint32 `json:"dstWithdrawal"`
	DstPublicWithdrawal   uint32 `json:"dstPublicWithdrawal"`
	DstCancellation       uint32 `json:"dstCancellation"`
}

func (t timelocksJSON) decode() escrow.Timelocks {
	return escrow.Timelocks{
		DeployedAt:            t.DeployedAt,
		SrcWithdrawal:         t.SrcWithdrawal,
		SrcPublicWithdrawal:   t.SrcPublicWithdrawal,
		SrcCancellation:       t.SrcCancellation,
		SrcPublicCancellation: t.SrcPublicCancellation,
		DstWithdrawal:         t.DstWithdrawal,
		DstPublicWithdrawal:   t.DstPublicWithdrawal,
		DstCancellation:       t.DstCancellation,
	}
}

type immutablesJSON struct {
	OrderHash     string        `json:"orderHash"`
	Hashlock      string        `json:"hashlock"`
	Maker         string        `json:"maker"`
	Taker         string        `json:"taker"`
	Token         string        `json:"token"`
	Amount        string        `json:"amount"`
	SafetyDeposit string        `json:"safetyDeposit"`
	Timelocks     timelocksJSON `json:"timelocks"`
}

func (p immutablesJSON) decode() (*escrow.Immutables, error) {
	orderHash, err := parseHash(p.OrderHash, "orderHash")
	if err != nil {
		return nil, err
	}
	hashlock, err := parseHash(p.Hashlock, "hashlock")
	if err != nil {
		return nil, err
	}
	maker, err := parseAddress(p.Maker, "maker")
	if err != nil {
		return nil, err
	}
	taker, err := parseAddress(p.Taker, "taker")
	if err != nil {
		return nil, err
	}
	token, err := parseAddress(p.Token, "token")
	if err != nil {
		return nil, err
	}
	amount, err := parseBig(p.Amount, "amount")
	if err != nil {
		return nil, err
	}
	deposit, err := parseBig(p.SafetyDeposit, "safetyDeposit")
	if err != nil {
		return nil, err
	}
	return &escrow.Immutables{
		OrderHash:     orderHash,
		Hashlock:      hashlock,
		Maker:         maker,
		Taker:         taker,
		Token:         token,
		Amount:        amount,
		SafetyDeposit: deposit,
		Timelocks:     p.Timelocks.decode(),
	}, nil
}

type complementJSON struct {
	Maker         string `json:"maker"`
	Amount        string `json:"amount"`
	Token         string `json:"token"`
	SafetyDeposit string `json:"safetyDeposit"`
	ChainID       int64  `json:"chainId"`
}

func (p complementJSON) decode() (*escrow.DstImmutablesComplement, error) {
	maker, err := parseAddress(p.Maker, "dst maker")
	if err != nil {
		return nil, err
	}
	token, err := parseAddress(p.Token, "dst token")
	if err != nil {
		return nil, err
	}
	amount, err := parseBig(p.Amount, "dst amount")
	if err != nil {
		return nil, err
	}
	deposit, err := parseBig(p.SafetyDeposit, "dst safetyDeposit")
	if err != nil {
		return nil, err
	}
	return &escrow.DstImmutablesComplement{
		Maker:         maker,
		Amount:        amount,
		Token:         token,
		SafetyDeposit: deposit,
		ChainID:       big.NewInt(p.ChainID),
	}, nil
}

type orderJSON struct {
	Salt         string `json:"salt"`
	Maker        string `json:"maker"`
	Receiver     string `json:"receiver"`
	MakerAsset   string `json:"makerAsset"`
	TakerAsset   string `json:"takerAsset"`
	MakingAmount string `json:"makingAmount"`
	TakingAmount string `json:"takingAmount"`
}

func (p orderJSON) decode() (*resolver.Order, error) {
	salt, err := parseHash(p.Salt, "salt")
	if err != nil {
		return nil, err
	}
	maker, err := parseAddress(p.Maker, "order maker")
	if err != nil {
		return nil, err
	}
	receiver := common.Address{}
	if strings.TrimSpace(p.Receiver) != "" {
		if receiver, err = parseAddress(p.Receiver, "order receiver"); err != nil {
			return nil, err
		}
	}
	makerAsset, err := parseAddress(p.MakerAsset, "makerAsset")
	if err != nil {
		return nil, err
	}
	takerAsset, err := parseAddress(p.TakerAsset, "takerAsset")
	if err != nil {
		return nil, err
	}
	making, err := parseBig(p.MakingAmount, "makingAmount")
	if err != nil {
		return nil, err
	}
	taking, err := parseBig(p.TakingAmount, "takingAmount")
	if err != nil {
		return nil, err
	}
	return &resolver.Order{
		Salt:         [32]byte(salt),
		Maker:        maker,
		Receiver:     receiver,
		MakerAsset:   makerAsset,
		TakerAsset:   takerAsset,
		MakingAmount: making,
		TakingAmount: taking,
	}, nil
}

func parseAddress(raw, field string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("invalid %s address", field)
	}
	return common.HexToAddress(raw), nil
}

func parseHash(raw, field string) (common.Hash, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil || len(decoded) != 32 {
		return common.Hash{}, fmt.Errorf("invalid %s: want 32 hex bytes", field)
	}
	return common.BytesToHash(decoded), nil
}

func parseBig(raw, field string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid %s: want non-negative decimal", field)
	}
	return v, nil
}

func parseSide(raw string) (escrow.Side, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "src":
		return escrow.SideSrc, nil
	case "dst":
		return escrow.SideDst, nil
	default:
		return 0, fmt.Errorf("invalid side: want src or dst")
	}
}
