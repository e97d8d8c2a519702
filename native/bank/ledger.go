package bank

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	"github.com/NoahSaso/cw-receipt/core/state"
	"github.com/NoahSaso/cw-receipt/crypto"
)

var (
	ErrInvalidAmount     = errors.New("bank: amount must be positive")
	ErrInsufficientFunds = errors.New("bank: insufficient funds")
	ErrBalanceOverflow   = errors.New("bank: balance overflow")
)

var balancePrefix = []byte("bank/balance/")

// Tokens are identified by their ledger storage-key encoding so the bank does
// not depend on the receipt package.
func balanceKey(addr crypto.Address, token string) []byte {
	buf := make([]byte, 0, len(balancePrefix)+crypto.AddressLength+len(token))
	buf = append(buf, balancePrefix...)
	buf = append(buf, addr.Bytes()...)
	return append(buf, token...)
}

// Balance returns the amount of token held by addr.
func Balance(st state.Reader, addr crypto.Address, token string) (*big.Int, error) {
	balance := new(big.Int)
	if _, err := st.KVGet(balanceKey(addr, token), balance); err != nil {
		return nil, err
	}
	return balance, nil
}

// Credit adds amount of token to addr, guarding against overflow of the
// stored 256-bit balance.
func Credit(st state.Writer, addr crypto.Address, token string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	balance, err := Balance(st, addr, token)
	if err != nil {
		return err
	}
	next := new(big.Int).Add(balance, amount)
	if _, overflow := uint256.FromBig(next); overflow {
		return ErrBalanceOverflow
	}
	return st.KVPut(balanceKey(addr, token), next)
}

// Debit removes amount of token from addr.
func Debit(st state.Writer, addr crypto.Address, token string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	balance, err := Balance(st, addr, token)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientFunds, balance, amount)
	}
	return st.KVPut(balanceKey(addr, token), new(big.Int).Sub(balance, amount))
}

// Transfer moves amount of token between two accounts within the same
// transaction.
func Transfer(st state.Writer, from, to crypto.Address, token string, amount *big.Int) error {
	if err := Debit(st, from, token, amount); err != nil {
		return err
	}
	return Credit(st, to, token, amount)
}
