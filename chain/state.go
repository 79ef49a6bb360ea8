// Package chain implements the ledger backend one escrow engine operates on:
// native and token balances plus the content-addressed escrow instance store,
// persisted as JSON records in a key-value database. Each State models one
// independently clocked chain; there is no shared lock or transaction spanning
// two of them.
package chain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"crosslock/native/escrow"
	"crosslock/storage"
)

var (
	accountPrefix = []byte("chain/account/")
	tokenPrefix   = []byte("chain/token/")
	escrowPrefix  = []byte("chain/escrow/")
)

// ErrInsufficientBalance rejects a transfer exceeding the sender's funds.
var ErrInsufficientBalance = errors.New("chain: insufficient balance")

func accountKey(addr common.Address) []byte {
	hexAddr := strings.ToLower(addr.Hex())
	buf := make([]byte, len(accountPrefix)+len(hexAddr))
	copy(buf, accountPrefix)
	copy(buf[len(accountPrefix):], hexAddr)
	return buf
}

func tokenKey(token, addr common.Address) []byte {
	suffix := strings.ToLower(token.Hex()) + "/" + strings.ToLower(addr.Hex())
	buf := make([]byte, len(tokenPrefix)+len(suffix))
	copy(buf, tokenPrefix)
	copy(buf[len(tokenPrefix):], suffix)
	return buf
}

func escrowKey(addr common.Address) []byte {
	hexAddr := strings.ToLower(addr.Hex())
	buf := make([]byte, len(escrowPrefix)+len(hexAddr))
	copy(buf, escrowPrefix)
	copy(buf[len(escrowPrefix):], hexAddr)
	return buf
}

type balanceRecord struct {
	Balance *big.Int `json:"balance"`
}

// State is one chain's ledger. It satisfies escrow.EngineState so the engine
// and factory can run against it directly. Operations execute with the
// chain's native serialization: a mutex ensures one operation completes fully
// before the next begins.
type State struct {
	mu      sync.Mutex
	db      storage.Database
	chainID *big.Int
	nowFn   func() int64
}

// NewState creates a ledger over the given database.
func NewState(db storage.Database, chainID *big.Int) *State {
	if chainID == nil {
		chainID = big.NewInt(0)
	}
	return &State{
		db:      db,
		chainID: new(big.Int).Set(chainID),
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// ChainID returns the chain identity baked into destination complements.
func (s *State) ChainID() *big.Int { return new(big.Int).Set(s.chainID) }

// SetNowFunc overrides the chain-local clock, primarily for tests. The engine
// and factory of this chain should share the same source.
func (s *State) SetNowFunc(now func() int64) {
	if now == nil {
		s.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	s.nowFn = now
}

// Now returns the chain-local Unix time.
func (s *State) Now() int64 { return s.nowFn() }

func (s *State) readBalance(key []byte) (*big.Int, error) {
	ok, err := s.db.Has(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	raw, err := s.db.Get(key)
	if err != nil {
		return nil, err
	}
	var rec balanceRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("chain: decode balance: %w", err)
	}
	if rec.Balance == nil {
		return big.NewInt(0), nil
	}
	return rec.Balance, nil
}

func (s *State) writeBalance(key []byte, amount *big.Int) error {
	raw, err := json.Marshal(balanceRecord{Balance: amount})
	if err != nil {
		return err
	}
	return s.db.Put(key, raw)
}

func (s *State) transfer(fromKey, toKey []byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("chain: negative transfer amount")
	}
	fromBal, err := s.readBalance(fromKey)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toBal, err := s.readBalance(toKey)
	if err != nil {
		return err
	}
	if err := s.writeBalance(fromKey, new(big.Int).Sub(fromBal, amount)); err != nil {
		return err
	}
	return s.writeBalance(toKey, new(big.Int).Add(toBal, amount))
}

// NativeBalance returns the native balance of addr.
func (s *State) NativeBalance(addr common.Address) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readBalance(accountKey(addr))
}

// TokenBalance returns the balance of token held by addr.
func (s *State) TokenBalance(token, addr common.Address) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readBalance(tokenKey(token, addr))
}

// TransferNative moves native funds between accounts.
func (s *State) TransferNative(from, to common.Address, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transfer(accountKey(from), accountKey(to), amount)
}

// TransferToken moves token funds between accounts.
func (s *State) TransferToken(token, from, to common.Address, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transfer(tokenKey(token, from), tokenKey(token, to), amount)
}

// MintNative credits native funds to addr. Used by genesis setup and tests.
func (s *State) MintNative(addr common.Address, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bal, err := s.readBalance(accountKey(addr))
	if err != nil {
		return err
	}
	return s.writeBalance(accountKey(addr), new(big.Int).Add(bal, amount))
}

// MintToken credits token funds to addr. Used by genesis setup and tests.
func (s *State) MintToken(token, addr common.Address, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bal, err := s.readBalance(tokenKey(token, addr))
	if err != nil {
		return err
	}
	return s.writeBalance(tokenKey(token, addr), new(big.Int).Add(bal, amount))
}

// EscrowPut stores an escrow instance keyed by its deterministic address.
func (s *State) EscrowPut(esc *escrow.Escrow) error {
	if esc == nil {
		return fmt.Errorf("chain: nil escrow")
	}
	if !esc.Status.Valid() {
		return fmt.Errorf("chain: invalid escrow status %d", esc.Status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := json.Marshal(esc)
	if err != nil {
		return err
	}
	return s.db.Put(escrowKey(esc.Address), raw)
}

// EscrowGet loads the escrow instance registered at addr. Callers receive a
// copy and can mutate it freely.
func (s *State) EscrowGet(addr common.Address) (*escrow.Escrow, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := escrowKey(addr)
	ok, err := s.db.Has(key)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	raw, err := s.db.Get(key)
	if err != nil {
		return nil, false, err
	}
	var esc escrow.Escrow
	if err := json.Unmarshal(raw, &esc); err != nil {
		return nil, false, fmt.Errorf("chain: decode escrow: %w", err)
	}
	return &esc, true, nil
}
