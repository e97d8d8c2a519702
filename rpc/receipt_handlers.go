package rpc

import (
	"encoding/json"
	"errors"
	"math/big"
	"strings"

	"github.com/NoahSaso/cw-receipt/crypto"
	"github.com/NoahSaso/cw-receipt/native/ownable"
	"github.com/NoahSaso/cw-receipt/native/receipt"
)

const (
	codeReceiptUnauthorized   = -32051
	codeReceiptMissingPayment = -32052
	codeReceiptInvalidDeposit = -32053
	codeReceiptInternal       = -32054
	codeOwnershipForbidden    = -32055
)

var mutatingMethods = map[string]bool{
	"receipt_pay":             true,
	"receipt_receive":         true,
	"receipt_updateOutput":    true,
	"receipt_updateOwnership": true,
}

func (s *Server) registerHandlers() {
	s.handlers = map[string]handlerFunc{
		"receipt_pay":                   s.handlePay,
		"receipt_receive":               s.handleReceive,
		"receipt_updateOutput":          s.handleUpdateOutput,
		"receipt_updateOwnership":       s.handleUpdateOwnership,
		"receipt_output":                s.handleOutput,
		"receipt_ownership":             s.handleOwnership,
		"receipt_balance":               s.handleBalance,
		"receipt_listPayments":          s.handleListPayments,
		"receipt_listPaymentsToId":      s.handleListPaymentsToID,
		"receipt_listTotalsPaidToId":    s.handleListTotalsPaidToID,
		"receipt_listIdsForPayer":       s.handleListIDsForPayer,
		"receipt_listTotalsPaidByPayer": s.handleListTotalsPaidByPayer,
	}
}

// --- wire types ---

type coinJSON struct {
	Denom  string `json:"denom"`
	Amount string `json:"amount"`
}

type tokenJSON struct {
	Kind     string `json:"kind"`
	Denom    string `json:"denom,omitempty"`
	Contract string `json:"contract,omitempty"`
}

type blockJSON struct {
	Height uint64 `json:"height"`
	Time   uint64 `json:"time"`
}

type paymentJSON struct {
	Payer  string    `json:"payer"`
	Block  blockJSON `json:"block"`
	Token  tokenJSON `json:"token"`
	Amount string    `json:"amount"`
}

type paymentEntryJSON struct {
	Sequence uint64      `json:"sequence"`
	Payment  paymentJSON `json:"payment"`
}

type receiptPaymentJSON struct {
	ReceiptID string      `json:"receiptId"`
	Sequence  uint64      `json:"sequence"`
	Payment   paymentJSON `json:"payment"`
}

type totalJSON struct {
	Token  tokenJSON `json:"token"`
	Amount string    `json:"amount"`
}

type recordedJSON struct {
	Sequence uint64    `json:"sequence"`
	Token    tokenJSON `json:"token"`
	Amount   string    `json:"amount"`
	Output   string    `json:"output"`
}

func tokenToJSON(t receipt.Token) tokenJSON {
	if t.Kind() == receipt.TokenContract {
		return tokenJSON{Kind: "contract", Contract: t.Contract().String()}
	}
	return tokenJSON{Kind: "native", Denom: t.Denom()}
}

func tokenFromJSON(j *tokenJSON) (receipt.Token, error) {
	switch strings.ToLower(strings.TrimSpace(j.Kind)) {
	case "native":
		return receipt.NativeToken(j.Denom)
	case "contract":
		addr, err := crypto.DecodeAddress(j.Contract)
		if err != nil {
			return receipt.Token{}, err
		}
		return receipt.ContractToken(addr)
	default:
		return receipt.Token{}, errors.New("token kind must be native or contract")
	}
}

func paymentToJSON(p *receipt.Payment) paymentJSON {
	return paymentJSON{
		Payer:  p.Payer.String(),
		Block:  blockJSON{Height: p.Block.Height, Time: p.Block.Time},
		Token:  tokenToJSON(p.Token),
		Amount: p.Amount.String(),
	}
}

func recordedToJSON(rec *receipt.Recorded) recordedJSON {
	return recordedJSON{
		Sequence: rec.Sequence,
		Token:    tokenToJSON(rec.Token),
		Amount:   rec.Amount.String(),
		Output:   rec.Instruction.To.String(),
	}
}

func totalsToJSON(totals []receipt.Total) []totalJSON {
	out := make([]totalJSON, 0, len(totals))
	for _, total := range totals {
		out = append(out, totalJSON{Token: tokenToJSON(total.Token), Amount: total.Amount.String()})
	}
	return out
}

func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, errors.New("amount required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, errors.New("amount must be a base-10 integer")
	}
	return amount, nil
}

func decodeParams(req *RPCRequest, out interface{}) *RPCError {
	if len(req.Params) == 0 {
		return invalidParams("params required")
	}
	if err := json.Unmarshal(req.Params, out); err != nil {
		return invalidParams(err.Error())
	}
	return nil
}

func invalidParams(detail string) *RPCError {
	return &RPCError{Code: codeInvalidParams, Message: "invalid params", Data: detail}
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, receipt.ErrUnauthorizedPayer):
		return "unauthorized_payer"
	case errors.Is(err, receipt.ErrMissingPayment):
		return "missing_payment"
	case errors.Is(err, receipt.ErrOutputNotConfigured):
		return "output_not_configured"
	case errors.Is(err, receipt.ErrUnexpectedFunds):
		return "unexpected_funds"
	default:
		return "invalid"
	}
}

func (s *Server) observeDeposit(kind string, err error) {
	if s.metrics == nil {
		return
	}
	if err != nil {
		s.metrics.DepositsRejected.WithLabelValues(rejectionReason(err)).Inc()
		return
	}
	s.metrics.PaymentsRecorded.WithLabelValues(kind).Inc()
}

func mapNodeError(err error) *RPCError {
	switch {
	case errors.Is(err, receipt.ErrUnauthorizedPayer):
		return &RPCError{Code: codeReceiptUnauthorized, Message: err.Error()}
	case errors.Is(err, receipt.ErrMissingPayment):
		return &RPCError{Code: codeReceiptMissingPayment, Message: err.Error()}
	case errors.Is(err, receipt.ErrInvalidDenom),
		errors.Is(err, receipt.ErrInvalidToken),
		errors.Is(err, receipt.ErrInvalidAmount),
		errors.Is(err, receipt.ErrAmountOverflow),
		errors.Is(err, receipt.ErrInvalidReceipt),
		errors.Is(err, receipt.ErrUnexpectedFunds),
		errors.Is(err, receipt.ErrOutputNotConfigured):
		return &RPCError{Code: codeReceiptInvalidDeposit, Message: err.Error()}
	case errors.Is(err, ownable.ErrNotOwner),
		errors.Is(err, ownable.ErrNoOwner),
		errors.Is(err, ownable.ErrNotPendingOwner),
		errors.Is(err, ownable.ErrNoPendingTransfer),
		errors.Is(err, ownable.ErrTransferExpired),
		errors.Is(err, ownable.ErrOwnershipImmutable):
		return &RPCError{Code: codeOwnershipForbidden, Message: err.Error()}
	default:
		return &RPCError{Code: codeReceiptInternal, Message: err.Error()}
	}
}

// --- mutating handlers ---

type payParams struct {
	Payer string     `json:"payer"`
	ID    string     `json:"id"`
	Funds []coinJSON `json:"funds"`
}

func (s *Server) handlePay(req *RPCRequest) (interface{}, *RPCError) {
	var params payParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	payer, err := crypto.DecodeAddress(params.Payer)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	funds := make([]receipt.Coin, 0, len(params.Funds))
	for _, coin := range params.Funds {
		amount, err := parseAmount(coin.Amount)
		if err != nil {
			return nil, invalidParams(err.Error())
		}
		funds = append(funds, receipt.Coin{Denom: coin.Denom, Amount: amount})
	}
	recorded, err := s.node.Pay(payer, params.ID, funds)
	s.observeDeposit("native", err)
	if err != nil {
		return nil, mapNodeError(err)
	}
	out := make([]recordedJSON, 0, len(recorded))
	for _, rec := range recorded {
		out = append(out, recordedToJSON(rec))
	}
	return out, nil
}

type receiveParams struct {
	Contract string `json:"contract"`
	Sender   string `json:"sender"`
	Amount   string `json:"amount"`
	ID       string `json:"id"`
}

func (s *Server) handleReceive(req *RPCRequest) (interface{}, *RPCError) {
	var params receiveParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	contract, err := crypto.DecodeAddress(params.Contract)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	sender, err := crypto.DecodeAddress(params.Sender)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	rec, err := s.node.ReceiveTokenDeposit(contract, sender, amount, params.ID, nil)
	s.observeDeposit("contract", err)
	if err != nil {
		return nil, mapNodeError(err)
	}
	return recordedToJSON(rec), nil
}

type updateOutputParams struct {
	Caller string `json:"caller"`
	Output string `json:"output"`
}

func (s *Server) handleUpdateOutput(req *RPCRequest) (interface{}, *RPCError) {
	var params updateOutputParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, err := crypto.DecodeAddress(params.Caller)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	output, err := crypto.DecodeAddress(params.Output)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	if err := s.node.UpdateOutput(caller, output); err != nil {
		return nil, mapNodeError(err)
	}
	return map[string]string{"output": output.String()}, nil
}

type updateOwnershipParams struct {
	Caller   string `json:"caller"`
	Action   string `json:"action"`
	NewOwner string `json:"newOwner,omitempty"`
	Expiry   uint64 `json:"expiry,omitempty"`
}

func (s *Server) handleUpdateOwnership(req *RPCRequest) (interface{}, *RPCError) {
	var params updateOwnershipParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, err := crypto.DecodeAddress(params.Caller)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	action := ownable.Action{Expiry: params.Expiry}
	switch strings.ToLower(strings.TrimSpace(params.Action)) {
	case "transfer":
		newOwner, err := crypto.DecodeAddress(params.NewOwner)
		if err != nil {
			return nil, invalidParams(err.Error())
		}
		action.Kind = ownable.ActionTransferOwnership
		action.NewOwner = newOwner
	case "accept":
		action.Kind = ownable.ActionAcceptOwnership
	case "renounce":
		action.Kind = ownable.ActionRenounceOwnership
	default:
		return nil, invalidParams("action must be transfer, accept or renounce")
	}
	ownership, err := s.node.UpdateOwnership(caller, action)
	if err != nil {
		return nil, mapNodeError(err)
	}
	return ownershipToJSON(ownership), nil
}

// --- query handlers ---

type ownershipJSON struct {
	Owner         string `json:"owner,omitempty"`
	PendingOwner  string `json:"pendingOwner,omitempty"`
	PendingExpiry uint64 `json:"pendingExpiry,omitempty"`
}

func ownershipToJSON(o *ownable.Ownership) ownershipJSON {
	out := ownershipJSON{PendingExpiry: o.PendingExpiry}
	if !o.Owner.IsZero() {
		out.Owner = o.Owner.String()
	}
	if !o.PendingOwner.IsZero() {
		out.PendingOwner = o.PendingOwner.String()
	}
	return out
}

func (s *Server) handleOutput(_ *RPCRequest) (interface{}, *RPCError) {
	output, ok, err := s.node.Output()
	if err != nil {
		return nil, mapNodeError(err)
	}
	if !ok {
		return nil, &RPCError{Code: codeReceiptInternal, Message: "output address not configured"}
	}
	return map[string]string{"output": output.String()}, nil
}

func (s *Server) handleOwnership(_ *RPCRequest) (interface{}, *RPCError) {
	ownership, err := s.node.Ownership()
	if err != nil {
		return nil, mapNodeError(err)
	}
	return ownershipToJSON(ownership), nil
}

type balanceParams struct {
	Address string    `json:"address"`
	Token   tokenJSON `json:"token"`
}

func (s *Server) handleBalance(req *RPCRequest) (interface{}, *RPCError) {
	var params balanceParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	addr, err := crypto.DecodeAddress(params.Address)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	token, err := tokenFromJSON(&params.Token)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	balance, err := s.node.Balance(addr, token.StorageKey())
	if err != nil {
		return nil, mapNodeError(err)
	}
	return map[string]string{"amount": balance.String()}, nil
}

type listPaymentsParams struct {
	StartAfter *struct {
		ID       string `json:"id"`
		Sequence uint64 `json:"sequence"`
	} `json:"startAfter,omitempty"`
	Limit *uint32 `json:"limit,omitempty"`
}

func (s *Server) handleListPayments(req *RPCRequest) (interface{}, *RPCError) {
	params := listPaymentsParams{}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, invalidParams(err.Error())
		}
	}
	var cursor *receipt.PaymentsCursor
	if params.StartAfter != nil {
		cursor = &receipt.PaymentsCursor{ReceiptID: params.StartAfter.ID, Sequence: params.StartAfter.Sequence}
	}
	entries, err := s.node.ListPayments(cursor, params.Limit)
	if err != nil {
		return nil, mapNodeError(err)
	}
	out := make([]receiptPaymentJSON, 0, len(entries))
	for _, entry := range entries {
		out = append(out, receiptPaymentJSON{
			ReceiptID: entry.ReceiptID,
			Sequence:  entry.Sequence,
			Payment:   paymentToJSON(entry.Payment),
		})
	}
	return map[string]interface{}{"payments": out}, nil
}

type listPaymentsToIDParams struct {
	ID         string  `json:"id"`
	StartAfter *uint64 `json:"startAfter,omitempty"`
	Limit      *uint32 `json:"limit,omitempty"`
}

func (s *Server) handleListPaymentsToID(req *RPCRequest) (interface{}, *RPCError) {
	var params listPaymentsToIDParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	entries, err := s.node.ListPaymentsToID(params.ID, params.StartAfter, params.Limit)
	if err != nil {
		return nil, mapNodeError(err)
	}
	out := make([]paymentEntryJSON, 0, len(entries))
	for _, entry := range entries {
		out = append(out, paymentEntryJSON{Sequence: entry.Sequence, Payment: paymentToJSON(entry.Payment)})
	}
	return map[string]interface{}{"payments": out}, nil
}

type listTotalsParams struct {
	ID         string     `json:"id,omitempty"`
	Payer      string     `json:"payer,omitempty"`
	StartAfter *tokenJSON `json:"startAfter,omitempty"`
	Limit      *uint32    `json:"limit,omitempty"`
}

func (s *Server) decodeTotalsCursor(params *listTotalsParams) (*receipt.Token, *RPCError) {
	if params.StartAfter == nil {
		return nil, nil
	}
	token, err := tokenFromJSON(params.StartAfter)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	return &token, nil
}

func (s *Server) handleListTotalsPaidToID(req *RPCRequest) (interface{}, *RPCError) {
	var params listTotalsParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	cursor, rpcErr := s.decodeTotalsCursor(&params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	totals, err := s.node.ListTotalsPaidToID(params.ID, cursor, params.Limit)
	if err != nil {
		return nil, mapNodeError(err)
	}
	return map[string]interface{}{"totals": totalsToJSON(totals)}, nil
}

func (s *Server) handleListTotalsPaidByPayer(req *RPCRequest) (interface{}, *RPCError) {
	var params listTotalsParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	payer, err := crypto.DecodeAddress(params.Payer)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	cursor, rpcErr := s.decodeTotalsCursor(&params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	totals, err := s.node.ListTotalsPaidByPayer(payer, cursor, params.Limit)
	if err != nil {
		return nil, mapNodeError(err)
	}
	return map[string]interface{}{"totals": totalsToJSON(totals)}, nil
}

type listIDsParams struct {
	Payer      string  `json:"payer"`
	StartAfter *string `json:"startAfter,omitempty"`
	Limit      *uint32 `json:"limit,omitempty"`
}

func (s *Server) handleListIDsForPayer(req *RPCRequest) (interface{}, *RPCError) {
	var params listIDsParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	payer, err := crypto.DecodeAddress(params.Payer)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	ids, err := s.node.ListReceiptIDsForPayer(payer, params.StartAfter, params.Limit)
	if err != nil {
		return nil, mapNodeError(err)
	}
	return map[string]interface{}{"ids": ids}, nil
}
