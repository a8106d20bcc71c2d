package state

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

var (
	// ErrTokenNotRegistered indicates a transfer or mint referenced a token
	// absent from the metadata registry.
	ErrTokenNotRegistered = errors.New("ledger: token not registered")
	// ErrInsufficientBalance indicates the sender lacks funds for a transfer.
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
)

var (
	tokenInfoPrefix = []byte("ledger/token/")
	balancePrefix   = []byte("ledger/balance/")
)

// TokenInfo carries the metadata recorded for a registered token. The presence
// of a record doubles as the validity probe used by the risk auditor.
type TokenInfo struct {
	Symbol   string
	Name     string
	Decimals uint8
}

type storedBalance struct {
	Amount *big.Int
}

// RegisterToken records metadata for a token address. Registration is
// idempotent for identical metadata and rejects conflicting re-registration.
func (m *Manager) RegisterToken(token [20]byte, info TokenInfo) error {
	if token == ([20]byte{}) {
		return fmt.Errorf("ledger: token address required")
	}
	symbol := strings.ToUpper(strings.TrimSpace(info.Symbol))
	if symbol == "" {
		return fmt.Errorf("ledger: token symbol required")
	}
	record := TokenInfo{Symbol: symbol, Name: strings.TrimSpace(info.Name), Decimals: info.Decimals}
	var existing TokenInfo
	ok, err := m.KVGet(tokenInfoKey(token), &existing)
	if err != nil {
		return err
	}
	if ok {
		if existing != record {
			return fmt.Errorf("ledger: token %x already registered with different metadata", token)
		}
		return nil
	}
	return m.KVPut(tokenInfoKey(token), record)
}

// TokenInfoOf returns the metadata recorded for the token, if any.
func (m *Manager) TokenInfoOf(token [20]byte) (TokenInfo, bool, error) {
	var info TokenInfo
	ok, err := m.KVGet(tokenInfoKey(token), &info)
	if err != nil || !ok {
		return TokenInfo{}, false, err
	}
	return info, true, nil
}

// TokenExists reports whether the token passes the metadata probe.
func (m *Manager) TokenExists(token [20]byte) (bool, error) {
	_, ok, err := m.TokenInfoOf(token)
	return ok, err
}

// BalanceOf returns the balance held by addr for the given token. Unknown
// accounts hold zero.
func (m *Manager) BalanceOf(token, addr [20]byte) (*big.Int, error) {
	var stored storedBalance
	ok, err := m.KVGet(balanceKey(token, addr), &stored)
	if err != nil {
		return nil, err
	}
	if !ok || stored.Amount == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(stored.Amount), nil
}

// Mint credits freshly issued funds to addr. Intended for genesis seeding and
// development venues.
func (m *Manager) Mint(token, addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("ledger: mint amount must be non-negative")
	}
	if ok, err := m.TokenExists(token); err != nil {
		return err
	} else if !ok {
		return ErrTokenNotRegistered
	}
	balance, err := m.BalanceOf(token, addr)
	if err != nil {
		return err
	}
	return m.putBalance(token, addr, new(big.Int).Add(balance, amount))
}

// Transfer moves amount of token between accounts. A zero amount is a no-op.
func (m *Manager) Transfer(token, from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("ledger: transfer amount must be non-negative")
	}
	if amount.Sign() == 0 {
		return nil
	}
	if ok, err := m.TokenExists(token); err != nil {
		return err
	} else if !ok {
		return ErrTokenNotRegistered
	}
	fromBalance, err := m.BalanceOf(token, from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toBalance, err := m.BalanceOf(token, to)
	if err != nil {
		return err
	}
	if err := m.putBalance(token, from, new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	return m.putBalance(token, to, new(big.Int).Add(toBalance, amount))
}

func (m *Manager) putBalance(token, addr [20]byte, amount *big.Int) error {
	return m.KVPut(balanceKey(token, addr), storedBalance{Amount: amount})
}

func tokenInfoKey(token [20]byte) []byte {
	suffix := hex.EncodeToString(token[:])
	key := make([]byte, len(tokenInfoPrefix)+len(suffix))
	copy(key, tokenInfoPrefix)
	copy(key[len(tokenInfoPrefix):], suffix)
	return key
}

func balanceKey(token, addr [20]byte) []byte {
	tokenPart := hex.EncodeToString(token[:])
	addrPart := hex.EncodeToString(addr[:])
	key := make([]byte, len(balancePrefix)+len(tokenPart)+1+len(addrPart))
	copy(key, balancePrefix)
	copy(key[len(balancePrefix):], tokenPart)
	key[len(balancePrefix)+len(tokenPart)] = '/'
	copy(key[len(balancePrefix)+len(tokenPart)+1:], addrPart)
	return key
}
