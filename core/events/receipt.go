package events

import (
	"math/big"
	"strconv"

	"github.com/NoahSaso/cw-receipt/core/types"
	"github.com/NoahSaso/cw-receipt/crypto"
)

const (
	TypeReceiptPaid          = "receipt.paid"
	TypeReceiptOutputUpdated = "receipt.output_updated"
)

// ReceiptPaid is emitted once per recorded payment, after the request commits.
type ReceiptPaid struct {
	ID       string
	Sequence uint64
	Payer    crypto.Address
	Token    string
	Amount   *big.Int
	Height   uint64
}

func (ReceiptPaid) EventType() string { return TypeReceiptPaid }

func (e ReceiptPaid) Event() *types.Event {
	return &types.Event{
		Type: TypeReceiptPaid,
		Attributes: map[string]string{
			"id":       e.ID,
			"sequence": strconv.FormatUint(e.Sequence, 10),
			"payer":    e.Payer.String(),
			"token":    e.Token,
			"amount":   formatAmount(e.Amount),
			"height":   strconv.FormatUint(e.Height, 10),
		},
	}
}

// ReceiptOutputUpdated is emitted when the owner replaces the output address.
type ReceiptOutputUpdated struct {
	Output crypto.Address
}

func (ReceiptOutputUpdated) EventType() string { return TypeReceiptOutputUpdated }

func (e ReceiptOutputUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeReceiptOutputUpdated,
		Attributes: map[string]string{
			"output": e.Output.String(),
		},
	}
}

func formatAmount(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.String()
}
