package receipt

import (
	"math/big"

	"github.com/NoahSaso/cw-receipt/core/types"
	"github.com/NoahSaso/cw-receipt/crypto"
)

// Payment is the immutable record of a single deposit into a receipt. It is
// created exactly once and never mutated or deleted.
type Payment struct {
	Payer  crypto.Address
	Block  types.BlockInfo
	Token  Token
	Amount *big.Int
}

// Clone returns a deep copy so callers can safely hold on to listing results.
func (p *Payment) Clone() *Payment {
	if p == nil {
		return nil
	}
	clone := *p
	if p.Amount != nil {
		clone.Amount = new(big.Int).Set(p.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	return &clone
}

// PaymentEntry pairs a payment with its sequence number within a receipt.
type PaymentEntry struct {
	Sequence uint64
	Payment  *Payment
}

// ReceiptPaymentEntry is a payment qualified with its receipt id, returned by
// the global listing.
type ReceiptPaymentEntry struct {
	ReceiptID string
	Sequence  uint64
	Payment   *Payment
}

// Total is a per-token cumulative amount.
type Total struct {
	Token  Token
	Amount *big.Int
}

// Coin is a native (denom, amount) pair attached to a deposit request.
type Coin struct {
	Denom  string
	Amount *big.Int
}

// TransferInstruction describes a value movement toward the output address.
// The ledger constructs it but never executes it; settlement belongs to the
// caller.
type TransferInstruction struct {
	Token  Token
	Amount *big.Int
	To     crypto.Address
}

// Recorded reports the outcome of one recorded payment.
type Recorded struct {
	Sequence    uint64
	Token       Token
	Amount      *big.Int
	Instruction TransferInstruction
}

// storedPayment is the RLP shape persisted under the payment key. The token is
// held in its storage-key encoding so the stored form round-trips through the
// same codec the totals indexes use.
type storedPayment struct {
	Payer  []byte
	Height uint64
	Time   uint64
	Token  string
	Amount *big.Int
}

func newStoredPayment(p *Payment) *storedPayment {
	amount := big.NewInt(0)
	if p.Amount != nil {
		amount = new(big.Int).Set(p.Amount)
	}
	return &storedPayment{
		Payer:  p.Payer.Bytes(),
		Height: p.Block.Height,
		Time:   p.Block.Time,
		Token:  p.Token.StorageKey(),
		Amount: amount,
	}
}

func (s *storedPayment) toPayment() (*Payment, error) {
	payer, err := crypto.NewAddress(crypto.PayPrefix, s.Payer)
	if err != nil {
		return nil, err
	}
	token, err := TokenFromStorageKey(s.Token)
	if err != nil {
		return nil, err
	}
	amount := big.NewInt(0)
	if s.Amount != nil {
		amount = new(big.Int).Set(s.Amount)
	}
	return &Payment{
		Payer:  payer,
		Block:  types.BlockInfo{Height: s.Height, Time: s.Time},
		Token:  token,
		Amount: amount,
	}, nil
}
