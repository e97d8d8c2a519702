package core

import (
	"bytes"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/NoahSaso/cw-receipt/core/events"
	"github.com/NoahSaso/cw-receipt/core/state"
	"github.com/NoahSaso/cw-receipt/crypto"
	"github.com/NoahSaso/cw-receipt/native/ownable"
	"github.com/NoahSaso/cw-receipt/native/receipt"
	"github.com/NoahSaso/cw-receipt/storage"
)

func testAddress(fill byte) crypto.Address {
	return crypto.MustNewAddress(crypto.PayPrefix, bytes.Repeat([]byte{fill}, crypto.AddressLength))
}

type recordingEmitter struct {
	events []events.Event
}

func (r *recordingEmitter) Emit(evt events.Event) {
	r.events = append(r.events, evt)
}

func newTestNode(t *testing.T, owner *crypto.Address, output crypto.Address) *Node {
	t.Helper()
	node, err := NewNode(state.NewManager(storage.NewMemDB()))
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	node.SetNowFunc(func() time.Time { return time.Unix(1700000000, 0) })
	if err := node.Instantiate(owner, output); err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	return node
}

func coins(denom string, amount int64) []receipt.Coin {
	return []receipt.Coin{{Denom: denom, Amount: big.NewInt(amount)}}
}

func TestDepositForwardsToOutput(t *testing.T) {
	output := testAddress(0xFE)
	node := newTestNode(t, nil, output)
	p1 := testAddress(0x01)

	emitter := &recordingEmitter{}
	node.SetEmitter(emitter)

	recorded, err := node.Pay(p1, "r1", coins("ujuno", 2))
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if len(recorded) != 1 || recorded[0].Sequence != 0 {
		t.Fatalf("unexpected recording %+v", recorded)
	}

	// Scenario A: output now holds the forwarded 2 units.
	balance, err := node.Balance(output, "nujuno")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(big.NewInt(2)) != 0 {
		t.Fatalf("output balance = %s, want 2", balance)
	}

	if len(emitter.events) != 1 {
		t.Fatalf("expected one event, got %d", len(emitter.events))
	}
	paid, ok := emitter.events[0].(events.ReceiptPaid)
	if !ok {
		t.Fatalf("unexpected event %T", emitter.events[0])
	}
	if paid.ID != "r1" || paid.Sequence != 0 || paid.Height != 1 {
		t.Fatalf("unexpected event payload %+v", paid)
	}
}

func TestRejectedDepositLeavesBalancesAlone(t *testing.T) {
	output := testAddress(0xFE)
	node := newTestNode(t, nil, output)
	p1 := testAddress(0x01)
	p2 := testAddress(0x02)

	if _, err := node.Pay(p1, "r1", coins("ujuno", 2)); err != nil {
		t.Fatalf("first pay: %v", err)
	}
	if _, err := node.Pay(p2, "r1", coins("ujuno", 2)); !errors.Is(err, receipt.ErrUnauthorizedPayer) {
		t.Fatalf("expected ErrUnauthorizedPayer, got %v", err)
	}

	// Scenario B: output balance unchanged, receipt unchanged.
	balance, err := node.Balance(output, "nujuno")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(big.NewInt(2)) != 0 {
		t.Fatalf("output balance = %s, want 2", balance)
	}
	payments, err := node.ListPaymentsToID("r1", nil, nil)
	if err != nil {
		t.Fatalf("list payments: %v", err)
	}
	if len(payments) != 1 {
		t.Fatalf("receipt must still have one payment, got %d", len(payments))
	}
}

func TestBlockHeightAdvancesPerCommittedRequest(t *testing.T) {
	node := newTestNode(t, nil, testAddress(0xFE))
	p1 := testAddress(0x01)
	p2 := testAddress(0x02)

	if _, err := node.Pay(p1, "r1", coins("ujuno", 1)); err != nil {
		t.Fatalf("pay: %v", err)
	}
	if _, err := node.Pay(p2, "r1", coins("ujuno", 1)); err == nil {
		t.Fatal("expected rejection")
	}
	if _, err := node.Pay(p1, "r1", coins("ujuno", 1)); err != nil {
		t.Fatalf("pay: %v", err)
	}

	payments, err := node.ListPaymentsToID("r1", nil, nil)
	if err != nil {
		t.Fatalf("list payments: %v", err)
	}
	if len(payments) != 2 {
		t.Fatalf("expected two payments, got %d", len(payments))
	}
	// The rejected request must not consume a height.
	if payments[0].Payment.Block.Height != 1 || payments[1].Payment.Block.Height != 2 {
		t.Fatalf("unexpected heights %d, %d", payments[0].Payment.Block.Height, payments[1].Payment.Block.Height)
	}
}

func TestContractTokenDepositPath(t *testing.T) {
	output := testAddress(0xFE)
	node := newTestNode(t, nil, output)
	contract := testAddress(0x77)
	sender := testAddress(0x01)

	rec, err := node.ReceiveTokenDeposit(contract, sender, big.NewInt(9), "r1", nil)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if rec.Token.Kind() != receipt.TokenContract {
		t.Fatalf("unexpected token %+v", rec.Token)
	}

	balance, err := node.Balance(output, rec.Token.StorageKey())
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(big.NewInt(9)) != 0 {
		t.Fatalf("output balance = %s, want 9", balance)
	}

	// Native funds must not ride along with a contract-token deposit.
	if _, err := node.ReceiveTokenDeposit(contract, sender, big.NewInt(1), "r1", coins("ujuno", 1)); !errors.Is(err, receipt.ErrUnexpectedFunds) {
		t.Fatalf("expected ErrUnexpectedFunds, got %v", err)
	}
}

func TestUpdateOutputOwnerOnly(t *testing.T) {
	owner := testAddress(0x0A)
	stranger := testAddress(0x0B)
	first := testAddress(0xFE)
	second := testAddress(0xFD)
	node := newTestNode(t, &owner, first)
	p1 := testAddress(0x01)

	if err := node.UpdateOutput(stranger, second); !errors.Is(err, ownable.ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if err := node.UpdateOutput(owner, second); err != nil {
		t.Fatalf("update output: %v", err)
	}

	got, ok, err := node.Output()
	if err != nil || !ok {
		t.Fatalf("output: %v", err)
	}
	if !got.Equal(second) {
		t.Fatalf("output = %s, want %s", got, second)
	}

	// Payments recorded after the switch go to the new address; nothing
	// moves retroactively.
	if _, err := node.Pay(p1, "r1", coins("ujuno", 3)); err != nil {
		t.Fatalf("pay: %v", err)
	}
	balance, err := node.Balance(second, "nujuno")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(big.NewInt(3)) != 0 {
		t.Fatalf("new output balance = %s, want 3", balance)
	}
	balance, err = node.Balance(first, "nujuno")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Sign() != 0 {
		t.Fatalf("old output balance = %s, want 0", balance)
	}
}

func TestUpdateOwnershipFlow(t *testing.T) {
	owner := testAddress(0x0A)
	next := testAddress(0x0B)
	node := newTestNode(t, &owner, testAddress(0xFE))

	ownership, err := node.UpdateOwnership(owner, ownable.Action{Kind: ownable.ActionTransferOwnership, NewOwner: next})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if ownership.PendingOwner.IsZero() {
		t.Fatal("expected pending owner")
	}

	ownership, err = node.UpdateOwnership(next, ownable.Action{Kind: ownable.ActionAcceptOwnership})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if !ownership.Owner.Equal(next) {
		t.Fatalf("owner = %s, want %s", ownership.Owner, next)
	}
}

func TestInstantiateOnce(t *testing.T) {
	node := newTestNode(t, nil, testAddress(0xFE))
	if err := node.Instantiate(nil, testAddress(0xFD)); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}
}

func TestHeightRestoredAcrossRestart(t *testing.T) {
	db := storage.NewMemDB()
	mgr := state.NewManager(db)
	node, err := NewNode(mgr)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	if err := node.Instantiate(nil, testAddress(0xFE)); err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	p1 := testAddress(0x01)
	if _, err := node.Pay(p1, "r1", coins("ujuno", 1)); err != nil {
		t.Fatalf("pay: %v", err)
	}

	reopened, err := NewNode(state.NewManager(db))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if _, err := reopened.Pay(p1, "r1", coins("ujuno", 1)); err != nil {
		t.Fatalf("pay after restart: %v", err)
	}
	payments, err := reopened.ListPaymentsToID("r1", nil, nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(payments) != 2 || payments[1].Payment.Block.Height != 2 {
		t.Fatalf("height must resume after restart, got %+v", payments)
	}
}
