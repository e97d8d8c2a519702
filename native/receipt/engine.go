package receipt

import (
	"fmt"
	"math/big"

	"github.com/NoahSaso/cw-receipt/core/state"
	"github.com/NoahSaso/cw-receipt/core/types"
	"github.com/NoahSaso/cw-receipt/crypto"
)

// maxAmountBits caps amounts at the 128-bit range the ledger stores.
const maxAmountBits = 128

// Engine implements the payment-recording state machine and its listings.
// Mutations run against the caller's state transaction so a failure partway
// through a request rolls back every relation together; queries read the
// committed state the engine was constructed with.
type Engine struct {
	state *state.Manager
}

// NewEngine creates an engine reading committed state from mgr.
func NewEngine(mgr *state.Manager) *Engine {
	return &Engine{state: mgr}
}

// SetOutput validates and stores the forwarding destination. Authorization is
// the caller's concern.
func (e *Engine) SetOutput(st state.Writer, output crypto.Address) error {
	if output.IsZero() {
		return fmt.Errorf("receipt: output address required")
	}
	return st.KVPut(outputKey, output.Bytes())
}

// Output returns the configured forwarding destination.
func (e *Engine) Output(st state.Reader) (crypto.Address, bool, error) {
	var raw []byte
	ok, err := st.KVGet(outputKey, &raw)
	if err != nil || !ok {
		return crypto.Address{}, false, err
	}
	addr, err := crypto.NewAddress(crypto.PayPrefix, raw)
	if err != nil {
		return crypto.Address{}, false, err
	}
	return addr, true, nil
}

// Record appends one payment to the receipt identified by id and updates every
// derived relation: the payment log, the payment counter, the per-receipt and
// per-payer token totals and, for a receipt's first payment, the authorized
// payer set. It returns the transfer instruction directing the amount to the
// output address; executing the instruction is the caller's job.
//
// All writes land in st. Callers must treat any error as fatal for the whole
// request and discard the transaction.
func (e *Engine) Record(st state.Writer, id string, token Token, payer crypto.Address, amount *big.Int, blk types.BlockInfo) (*Recorded, error) {
	if id == "" {
		return nil, ErrInvalidReceipt
	}
	if len(id) >= maxReceiptIDLength {
		return nil, fmt.Errorf("%w: id too long", ErrInvalidReceipt)
	}
	if payer.IsZero() {
		return nil, fmt.Errorf("receipt: payer address required")
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if amount.BitLen() > maxAmountBits {
		return nil, ErrAmountOverflow
	}

	output, ok, err := e.Output(st)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrOutputNotConfigured
	}

	var count uint64
	if _, err := st.KVGet(countKey(id), &count); err != nil {
		return nil, err
	}

	// Only one payer can pay for a receipt, fixed by the first payment.
	if count > 0 {
		authorized, err := st.KVHas(payerReceiptKey(payer, id))
		if err != nil {
			return nil, err
		}
		if !authorized {
			return nil, ErrUnauthorizedPayer
		}
	} else {
		if err := st.KVPut(payerReceiptKey(payer, id), true); err != nil {
			return nil, err
		}
	}

	payment := &Payment{Payer: payer, Block: blk, Token: token, Amount: amount}
	if err := st.KVPut(paymentKey(id, count), newStoredPayment(payment)); err != nil {
		return nil, err
	}
	if err := st.KVPut(countKey(id), count+1); err != nil {
		return nil, err
	}
	if err := addToTotal(st, receiptTotalKey(id, token), amount); err != nil {
		return nil, err
	}
	if err := addToTotal(st, payerTotalKey(payer, token), amount); err != nil {
		return nil, err
	}

	return &Recorded{
		Sequence: count,
		Token:    token,
		Amount:   new(big.Int).Set(amount),
		Instruction: TransferInstruction{
			Token:  token,
			Amount: new(big.Int).Set(amount),
			To:     output,
		},
	}, nil
}

// PayNative records one payment per attached coin, in the order supplied, and
// collects the resulting transfer instructions. An empty fund list is a
// MissingPayment error; a failure on any coin poisons the whole transaction.
func (e *Engine) PayNative(st state.Writer, id string, payer crypto.Address, funds []Coin, blk types.BlockInfo) ([]*Recorded, error) {
	if len(funds) == 0 {
		return nil, ErrMissingPayment
	}
	recorded := make([]*Recorded, 0, len(funds))
	for _, coin := range funds {
		token, err := NativeToken(coin.Denom)
		if err != nil {
			return nil, err
		}
		rec, err := e.Record(st, id, token, payer, coin.Amount, blk)
		if err != nil {
			return nil, err
		}
		recorded = append(recorded, rec)
	}
	return recorded, nil
}

// ReceiveContractToken records a deposit forwarded by a token contract. The
// token is fixed to the forwarding contract; the payer is the original sender
// asserted by the forwarding message, not the contract itself.
func (e *Engine) ReceiveContractToken(st state.Writer, id string, tokenContract, sender crypto.Address, amount *big.Int, blk types.BlockInfo) (*Recorded, error) {
	token, err := ContractToken(tokenContract)
	if err != nil {
		return nil, err
	}
	return e.Record(st, id, token, sender, amount, blk)
}

func addToTotal(st state.Writer, key []byte, amount *big.Int) error {
	total := new(big.Int)
	if _, err := st.KVGet(key, total); err != nil {
		return err
	}
	return st.KVPut(key, new(big.Int).Add(total, amount))
}
