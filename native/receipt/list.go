package receipt

import (
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/NoahSaso/cw-receipt/crypto"
)

// Page size bounds shared by every listing. A nil limit yields DefaultPageSize
// entries; anything above MaxPageSize is clamped.
const (
	DefaultPageSize = 30
	MaxPageSize     = 100
)

func pageSize(limit *uint32) int {
	if limit == nil {
		return DefaultPageSize
	}
	if *limit > MaxPageSize {
		return MaxPageSize
	}
	return int(*limit)
}

// PaymentsCursor addresses a payment across all receipts, for the global
// listing.
type PaymentsCursor struct {
	ReceiptID string
	Sequence  uint64
}

// ListPaymentsToID returns the payments recorded for the receipt, ordered by
// ascending sequence number. startAfter is exclusive.
func (e *Engine) ListPaymentsToID(id string, startAfter *uint64, limit *uint32) ([]PaymentEntry, error) {
	var cursor []byte
	if startAfter != nil {
		cursor = seqSuffix(*startAfter)
	}
	max := pageSize(limit)
	entries := make([]PaymentEntry, 0, max)
	if max == 0 {
		return entries, nil
	}
	err := e.state.IterateWithPrefix(paymentScope(id), cursor, func(suffix, value []byte) (bool, error) {
		if len(suffix) != 8 {
			return false, errMalformedKey("payment")
		}
		var stored storedPayment
		if err := rlp.DecodeBytes(value, &stored); err != nil {
			return false, err
		}
		payment, err := stored.toPayment()
		if err != nil {
			return false, err
		}
		entries = append(entries, PaymentEntry{
			Sequence: binary.BigEndian.Uint64(suffix),
			Payment:  payment,
		})
		return len(entries) < max, nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// ListPayments returns payments across every receipt, ordered by receipt id
// and sequence number. The cursor names the last (receipt, sequence) pair
// seen.
func (e *Engine) ListPayments(startAfter *PaymentsCursor, limit *uint32) ([]ReceiptPaymentEntry, error) {
	var cursor []byte
	if startAfter != nil {
		cursor = append(appendScope(nil, []byte(startAfter.ReceiptID)), seqSuffix(startAfter.Sequence)...)
	}
	max := pageSize(limit)
	entries := make([]ReceiptPaymentEntry, 0, max)
	if max == 0 {
		return entries, nil
	}
	err := e.state.IterateWithPrefix(paymentPrefix, cursor, func(suffix, value []byte) (bool, error) {
		id, seq, err := splitPaymentSuffix(suffix)
		if err != nil {
			return false, err
		}
		var stored storedPayment
		if err := rlp.DecodeBytes(value, &stored); err != nil {
			return false, err
		}
		payment, err := stored.toPayment()
		if err != nil {
			return false, err
		}
		entries = append(entries, ReceiptPaymentEntry{ReceiptID: id, Sequence: seq, Payment: payment})
		return len(entries) < max, nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// ListTotalsPaidToID returns the per-token totals paid into the receipt,
// ordered by the tokens' encoded storage keys. Entries whose key fails token
// decoding are omitted rather than failing the listing.
func (e *Engine) ListTotalsPaidToID(id string, startAfter *Token, limit *uint32) ([]Total, error) {
	return e.listTotals(receiptTotalScope(id), startAfter, limit)
}

// ListTotalsPaidByPayer returns the per-token totals the payer has paid across
// all receipts, ordered by the tokens' encoded storage keys.
func (e *Engine) ListTotalsPaidByPayer(payer crypto.Address, startAfter *Token, limit *uint32) ([]Total, error) {
	return e.listTotals(payerTotalScope(payer), startAfter, limit)
}

func (e *Engine) listTotals(scope []byte, startAfter *Token, limit *uint32) ([]Total, error) {
	var cursor []byte
	if startAfter != nil {
		cursor = []byte(startAfter.StorageKey())
	}
	max := pageSize(limit)
	totals := make([]Total, 0, max)
	if max == 0 {
		return totals, nil
	}
	seen := 0
	err := e.state.IterateWithPrefix(scope, cursor, func(suffix, value []byte) (bool, error) {
		seen++
		token, decodeErr := TokenFromStorageKey(string(suffix))
		if decodeErr == nil {
			amount := new(big.Int)
			if err := rlp.DecodeBytes(value, amount); err != nil {
				return false, err
			}
			totals = append(totals, Total{Token: token, Amount: amount})
		}
		return seen < max, nil
	})
	if err != nil {
		return nil, err
	}
	return totals, nil
}

// ListReceiptIDsForPayer returns the receipt ids the payer is authorized for,
// in ascending id order. startAfter is the last id seen, exclusive.
func (e *Engine) ListReceiptIDsForPayer(payer crypto.Address, startAfter *string, limit *uint32) ([]string, error) {
	var cursor []byte
	if startAfter != nil {
		cursor = []byte(*startAfter)
	}
	max := pageSize(limit)
	ids := make([]string, 0, max)
	if max == 0 {
		return ids, nil
	}
	err := e.state.IterateWithPrefix(payerReceiptScope(payer), cursor, func(suffix, _ []byte) (bool, error) {
		ids = append(ids, string(suffix))
		return len(ids) < max, nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}
