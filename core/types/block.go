package types

// BlockInfo captures the execution context the host attaches to a mutating
// request. Payments embed it so the ledger records when each deposit landed.
type BlockInfo struct {
	Height uint64 `json:"height"`
	Time   uint64 `json:"time"`
}
