// Package ownable implements two-step ownership handover: the current owner
// nominates a successor, who must accept before an optional expiry; until
// acceptance the current owner stays in charge. Owner-gated components consult
// it through AssertOwner and expose no ownership semantics of their own.
package ownable

import (
	"errors"
	"fmt"

	"github.com/NoahSaso/cw-receipt/core/state"
	"github.com/NoahSaso/cw-receipt/crypto"
)

var (
	// ErrNotOwner is returned when the caller is not the current owner.
	ErrNotOwner = errors.New("ownable: caller is not the owner")
	// ErrNoOwner indicates ownership was renounced or never assigned.
	ErrNoOwner            = errors.New("ownable: no owner")
	ErrNoPendingTransfer  = errors.New("ownable: no pending ownership transfer")
	ErrNotPendingOwner    = errors.New("ownable: caller is not the pending owner")
	ErrTransferExpired    = errors.New("ownable: ownership transfer expired")
	ErrTransferToSelf     = errors.New("ownable: cannot transfer ownership to the current owner")
	ErrOwnershipImmutable = errors.New("ownable: ownership can no longer change")
)

var ownershipKey = []byte("ownable/ownership")

// ActionKind enumerates the ownership-update operations.
type ActionKind uint8

const (
	ActionTransferOwnership ActionKind = iota
	ActionAcceptOwnership
	ActionRenounceOwnership
)

// Action is a single ownership-update request. NewOwner and Expiry are only
// meaningful for ActionTransferOwnership.
type Action struct {
	Kind     ActionKind
	NewOwner crypto.Address
	Expiry   uint64
}

// Apply dispatches an ownership action on behalf of caller and returns the
// resulting ownership state. now is the host-supplied block time.
func Apply(st state.Writer, caller crypto.Address, action Action, now uint64) (*Ownership, error) {
	var err error
	switch action.Kind {
	case ActionTransferOwnership:
		err = TransferOwnership(st, caller, action.NewOwner, action.Expiry)
	case ActionAcceptOwnership:
		err = AcceptOwnership(st, caller, now)
	case ActionRenounceOwnership:
		err = RenounceOwnership(st, caller)
	default:
		err = fmt.Errorf("ownable: unknown action %d", action.Kind)
	}
	if err != nil {
		return nil, err
	}
	return load(st)
}

// Ownership is the current owner plus any in-flight handover.
type Ownership struct {
	Owner         crypto.Address
	PendingOwner  crypto.Address
	PendingExpiry uint64
}

// storedOwnership is the RLP shape. Empty byte slices mark absent addresses.
type storedOwnership struct {
	Owner         []byte
	PendingOwner  []byte
	PendingExpiry uint64
}

func load(st state.Reader) (*Ownership, error) {
	var stored storedOwnership
	if _, err := st.KVGet(ownershipKey, &stored); err != nil {
		return nil, err
	}
	out := &Ownership{PendingExpiry: stored.PendingExpiry}
	if len(stored.Owner) > 0 {
		owner, err := crypto.NewAddress(crypto.PayPrefix, stored.Owner)
		if err != nil {
			return nil, err
		}
		out.Owner = owner
	}
	if len(stored.PendingOwner) > 0 {
		pending, err := crypto.NewAddress(crypto.PayPrefix, stored.PendingOwner)
		if err != nil {
			return nil, err
		}
		out.PendingOwner = pending
	}
	return out, nil
}

func save(st state.Writer, o *Ownership) error {
	stored := storedOwnership{PendingExpiry: o.PendingExpiry}
	if !o.Owner.IsZero() {
		stored.Owner = o.Owner.Bytes()
	}
	if !o.PendingOwner.IsZero() {
		stored.PendingOwner = o.PendingOwner.Bytes()
	}
	return st.KVPut(ownershipKey, stored)
}

// Initialize records the initial owner. A zero owner leaves the ledger
// ownerless, freezing every owner-gated operation.
func Initialize(st state.Writer, owner crypto.Address) error {
	return save(st, &Ownership{Owner: owner})
}

// Get returns the current ownership state.
func Get(st state.Reader) (*Ownership, error) {
	return load(st)
}

// AssertOwner fails unless caller is the current owner.
func AssertOwner(st state.Reader, caller crypto.Address) error {
	ownership, err := load(st)
	if err != nil {
		return err
	}
	if ownership.Owner.IsZero() {
		return ErrNoOwner
	}
	if !ownership.Owner.Equal(caller) {
		return ErrNotOwner
	}
	return nil
}

// TransferOwnership nominates a successor. A non-zero expiry (unix seconds)
// bounds how long the nomination stays acceptable. Re-nominating overwrites
// any previous pending transfer.
func TransferOwnership(st state.Writer, caller, newOwner crypto.Address, expiry uint64) error {
	ownership, err := load(st)
	if err != nil {
		return err
	}
	if ownership.Owner.IsZero() {
		return ErrOwnershipImmutable
	}
	if !ownership.Owner.Equal(caller) {
		return ErrNotOwner
	}
	if newOwner.IsZero() {
		return fmt.Errorf("ownable: new owner address required")
	}
	if ownership.Owner.Equal(newOwner) {
		return ErrTransferToSelf
	}
	ownership.PendingOwner = newOwner
	ownership.PendingExpiry = expiry
	return save(st, ownership)
}

// AcceptOwnership completes a pending handover. now is the host-supplied
// block time used to check the nomination's expiry.
func AcceptOwnership(st state.Writer, caller crypto.Address, now uint64) error {
	ownership, err := load(st)
	if err != nil {
		return err
	}
	if ownership.PendingOwner.IsZero() {
		return ErrNoPendingTransfer
	}
	if !ownership.PendingOwner.Equal(caller) {
		return ErrNotPendingOwner
	}
	if ownership.PendingExpiry != 0 && now > ownership.PendingExpiry {
		return ErrTransferExpired
	}
	return save(st, &Ownership{Owner: caller})
}

// RenounceOwnership clears the owner permanently. Owner-gated operations fail
// with ErrNoOwner afterwards.
func RenounceOwnership(st state.Writer, caller crypto.Address) error {
	ownership, err := load(st)
	if err != nil {
		return err
	}
	if ownership.Owner.IsZero() {
		return ErrNoOwner
	}
	if !ownership.Owner.Equal(caller) {
		return ErrNotOwner
	}
	return save(st, &Ownership{})
}
