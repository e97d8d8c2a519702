package core

import (
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/NoahSaso/cw-receipt/core/events"
	"github.com/NoahSaso/cw-receipt/core/state"
	"github.com/NoahSaso/cw-receipt/core/types"
	"github.com/NoahSaso/cw-receipt/crypto"
	"github.com/NoahSaso/cw-receipt/native/bank"
	"github.com/NoahSaso/cw-receipt/native/ownable"
	"github.com/NoahSaso/cw-receipt/native/receipt"
)

// ErrAlreadyInitialized is returned when Instantiate runs against a state that
// already carries an output address.
var ErrAlreadyInitialized = errors.New("core: ledger already initialized")

var heightKey = []byte("chain/height")

// Node hosts the receipt ledger: it serializes mutating requests, supplies
// each with a fresh block context and an atomic state transaction, settles the
// transfer instructions the engine returns and emits events after commit.
type Node struct {
	mu      sync.Mutex
	state   *state.Manager
	engine  *receipt.Engine
	emitter events.Emitter
	height  uint64
	nowFn   func() time.Time
}

// NewNode creates a node over the supplied state manager, restoring the last
// committed block height.
func NewNode(mgr *state.Manager) (*Node, error) {
	n := &Node{
		state:   mgr,
		engine:  receipt.NewEngine(mgr),
		emitter: events.NoopEmitter{},
		nowFn:   time.Now,
	}
	if _, err := mgr.KVGet(heightKey, &n.height); err != nil {
		return nil, err
	}
	return n, nil
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (n *Node) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		n.emitter = events.NoopEmitter{}
		return
	}
	n.emitter = emitter
}

// SetNowFunc overrides the time source. Primarily intended for tests.
func (n *Node) SetNowFunc(now func() time.Time) {
	if now == nil {
		n.nowFn = time.Now
		return
	}
	n.nowFn = now
}

// Initialized reports whether Instantiate already ran against this state.
func (n *Node) Initialized() (bool, error) {
	_, ok, err := n.engine.Output(n.state)
	return ok, err
}

// Instantiate seeds the ledger: the mandatory output address every payment is
// forwarded to, and the optional owner allowed to change it later.
func (n *Node) Instantiate(owner *crypto.Address, output crypto.Address) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	initialized, err := n.Initialized()
	if err != nil {
		return err
	}
	if initialized {
		return ErrAlreadyInitialized
	}

	txn := n.state.Begin()
	if err := n.engine.SetOutput(txn, output); err != nil {
		txn.Discard()
		return err
	}
	ownerAddr := crypto.Address{}
	if owner != nil {
		ownerAddr = *owner
	}
	if err := ownable.Initialize(txn, ownerAddr); err != nil {
		txn.Discard()
		return err
	}
	return txn.Commit()
}

func (n *Node) nextBlock() types.BlockInfo {
	return types.BlockInfo{
		Height: n.height + 1,
		Time:   uint64(n.nowFn().Unix()),
	}
}

func (n *Node) commit(txn *state.Txn, blk types.BlockInfo) error {
	if err := txn.KVPut(heightKey, blk.Height); err != nil {
		txn.Discard()
		return err
	}
	if err := txn.Commit(); err != nil {
		return err
	}
	n.height = blk.Height
	return nil
}

// settle books the attached funds against the payer and applies the transfer
// instruction, so the output account's balances track everything forwarded.
func settle(txn *state.Txn, payer crypto.Address, rec *receipt.Recorded) error {
	token := rec.Token.StorageKey()
	if err := bank.Credit(txn, payer, token, rec.Amount); err != nil {
		return err
	}
	return bank.Transfer(txn, payer, rec.Instruction.To, token, rec.Instruction.Amount)
}

// Pay records a native deposit of one or more coins under the receipt id. All
// coins commit together or not at all.
func (n *Node) Pay(payer crypto.Address, id string, funds []receipt.Coin) ([]*receipt.Recorded, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	blk := n.nextBlock()
	txn := n.state.Begin()
	recorded, err := n.engine.PayNative(txn, id, payer, funds, blk)
	if err != nil {
		txn.Discard()
		return nil, err
	}
	for _, rec := range recorded {
		if err := settle(txn, payer, rec); err != nil {
			txn.Discard()
			return nil, err
		}
	}
	if err := n.commit(txn, blk); err != nil {
		return nil, err
	}
	for _, rec := range recorded {
		n.emitter.Emit(events.ReceiptPaid{
			ID:       id,
			Sequence: rec.Sequence,
			Payer:    payer,
			Token:    rec.Token.String(),
			Amount:   rec.Amount,
			Height:   blk.Height,
		})
	}
	return recorded, nil
}

// ReceiveTokenDeposit records a deposit forwarded by a token contract. The
// asserted original sender becomes the payer; native funds must not accompany
// the call.
func (n *Node) ReceiveTokenDeposit(tokenContract, sender crypto.Address, amount *big.Int, id string, attached []receipt.Coin) (*receipt.Recorded, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if len(attached) > 0 {
		return nil, receipt.ErrUnexpectedFunds
	}

	blk := n.nextBlock()
	txn := n.state.Begin()
	rec, err := n.engine.ReceiveContractToken(txn, id, tokenContract, sender, amount, blk)
	if err != nil {
		txn.Discard()
		return nil, err
	}
	if err := settle(txn, sender, rec); err != nil {
		txn.Discard()
		return nil, err
	}
	if err := n.commit(txn, blk); err != nil {
		return nil, err
	}
	n.emitter.Emit(events.ReceiptPaid{
		ID:       id,
		Sequence: rec.Sequence,
		Payer:    sender,
		Token:    rec.Token.String(),
		Amount:   rec.Amount,
		Height:   blk.Height,
	})
	return rec, nil
}

// UpdateOutput replaces the forwarding destination. Owner only; payments
// already forwarded are unaffected.
func (n *Node) UpdateOutput(caller, output crypto.Address) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	blk := n.nextBlock()
	txn := n.state.Begin()
	if err := ownable.AssertOwner(txn, caller); err != nil {
		txn.Discard()
		return err
	}
	if err := n.engine.SetOutput(txn, output); err != nil {
		txn.Discard()
		return err
	}
	if err := n.commit(txn, blk); err != nil {
		return err
	}
	n.emitter.Emit(events.ReceiptOutputUpdated{Output: output})
	return nil
}

// UpdateOwnership applies an ownership action on behalf of caller.
func (n *Node) UpdateOwnership(caller crypto.Address, action ownable.Action) (*ownable.Ownership, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	blk := n.nextBlock()
	txn := n.state.Begin()
	ownership, err := ownable.Apply(txn, caller, action, blk.Time)
	if err != nil {
		txn.Discard()
		return nil, err
	}
	if err := n.commit(txn, blk); err != nil {
		return nil, err
	}
	return ownership, nil
}

// --- Read-only queries over committed state ---

func (n *Node) Output() (crypto.Address, bool, error) {
	return n.engine.Output(n.state)
}

func (n *Node) Ownership() (*ownable.Ownership, error) {
	return ownable.Get(n.state)
}

// Balance returns the settled amount of token held by addr. Token is given in
// its storage-key encoding.
func (n *Node) Balance(addr crypto.Address, token string) (*big.Int, error) {
	return bank.Balance(n.state, addr, token)
}

func (n *Node) ListPayments(startAfter *receipt.PaymentsCursor, limit *uint32) ([]receipt.ReceiptPaymentEntry, error) {
	return n.engine.ListPayments(startAfter, limit)
}

func (n *Node) ListPaymentsToID(id string, startAfter *uint64, limit *uint32) ([]receipt.PaymentEntry, error) {
	return n.engine.ListPaymentsToID(id, startAfter, limit)
}

func (n *Node) ListTotalsPaidToID(id string, startAfter *receipt.Token, limit *uint32) ([]receipt.Total, error) {
	return n.engine.ListTotalsPaidToID(id, startAfter, limit)
}

func (n *Node) ListReceiptIDsForPayer(payer crypto.Address, startAfter *string, limit *uint32) ([]string, error) {
	return n.engine.ListReceiptIDsForPayer(payer, startAfter, limit)
}

func (n *Node) ListTotalsPaidByPayer(payer crypto.Address, startAfter *receipt.Token, limit *uint32) ([]receipt.Total, error) {
	return n.engine.ListTotalsPaidByPayer(payer, startAfter, limit)
}
