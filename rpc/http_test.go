package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/NoahSaso/cw-receipt/core"
	"github.com/NoahSaso/cw-receipt/core/state"
	"github.com/NoahSaso/cw-receipt/crypto"
	"github.com/NoahSaso/cw-receipt/storage"
)

func testAddr(t *testing.T, fill byte) crypto.Address {
	t.Helper()
	buf := bytes.Repeat([]byte{fill}, crypto.AddressLength)
	addr, err := crypto.NewAddress(crypto.PayPrefix, buf)
	require.NoError(t, err)
	return addr
}

func newTestServer(t *testing.T, cfg ServerConfig) (*Server, crypto.Address, crypto.Address) {
	t.Helper()
	mgr := state.NewManager(storage.NewMemDB())
	node, err := core.NewNode(mgr)
	require.NoError(t, err)
	owner := testAddr(t, 0xAA)
	output := testAddr(t, 0xBB)
	require.NoError(t, node.Instantiate(&owner, output))
	return NewServer(node, cfg), owner, output
}

func postRPC(t *testing.T, h http.Handler, token string, method string, params interface{}) (*httptest.ResponseRecorder, *RPCResponse) {
	t.Helper()
	body := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
	}
	if params != nil {
		body["params"] = params
	}
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	resp := &RPCResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), resp))
	return rec, resp
}

func TestRPCPayAndQueryRoundTrip(t *testing.T) {
	srv, _, output := newTestServer(t, ServerConfig{})
	router := srv.Router()
	payer := testAddr(t, 0x01)

	rec, resp := postRPC(t, router, "", "receipt_pay", map[string]interface{}{
		"payer": payer.String(),
		"id":    "invoice-1",
		"funds": []map[string]string{{"denom": "ujuno", "amount": "250"}},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, resp.Error)

	var recorded []recordedJSON
	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &recorded))
	require.Len(t, recorded, 1)
	require.Equal(t, uint64(0), recorded[0].Sequence)
	require.Equal(t, "250", recorded[0].Amount)
	require.Equal(t, output.String(), recorded[0].Output)

	rec, resp = postRPC(t, router, "", "receipt_listPaymentsToId", map[string]interface{}{
		"id": "invoice-1",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, resp.Error)
	var listing struct {
		Payments []paymentEntryJSON `json:"payments"`
	}
	raw, err = json.Marshal(resp.Result)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &listing))
	require.Len(t, listing.Payments, 1)
	require.Equal(t, payer.String(), listing.Payments[0].Payment.Payer)
	require.Equal(t, "native", listing.Payments[0].Payment.Token.Kind)
	require.Equal(t, "ujuno", listing.Payments[0].Payment.Token.Denom)

	rec, resp = postRPC(t, router, "", "receipt_balance", map[string]interface{}{
		"address": output.String(),
		"token":   map[string]string{"kind": "native", "denom": "ujuno"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, resp.Error)
	var balance struct {
		Amount string `json:"amount"`
	}
	raw, err = json.Marshal(resp.Result)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &balance))
	require.Equal(t, "250", balance.Amount)
}

func TestRPCAuthGatesMutatingMethods(t *testing.T) {
	srv, _, _ := newTestServer(t, ServerConfig{AuthToken: "secret"})
	router := srv.Router()
	payer := testAddr(t, 0x02)
	params := map[string]interface{}{
		"payer": payer.String(),
		"id":    "invoice-1",
		"funds": []map[string]string{{"denom": "ujuno", "amount": "1"}},
	}

	rec, resp := postRPC(t, router, "", "receipt_pay", params)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	rec, resp = postRPC(t, router, "wrong", "receipt_pay", params)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotNil(t, resp.Error)

	rec, resp = postRPC(t, router, "secret", "receipt_pay", params)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, resp.Error)

	// Queries stay open.
	rec, resp = postRPC(t, router, "", "receipt_output", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, resp.Error)
}

func TestRPCErrorCodes(t *testing.T) {
	srv, _, _ := newTestServer(t, ServerConfig{})
	router := srv.Router()
	first := testAddr(t, 0x03)
	second := testAddr(t, 0x04)

	_, resp := postRPC(t, router, "", "receipt_pay", map[string]interface{}{
		"payer": first.String(),
		"id":    "claimed",
		"funds": []map[string]string{{"denom": "ujuno", "amount": "10"}},
	})
	require.Nil(t, resp.Error)

	rec, resp := postRPC(t, router, "", "receipt_pay", map[string]interface{}{
		"payer": second.String(),
		"id":    "claimed",
		"funds": []map[string]string{{"denom": "ujuno", "amount": "10"}},
	})
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeReceiptUnauthorized, resp.Error.Code)

	rec, resp = postRPC(t, router, "", "receipt_pay", map[string]interface{}{
		"payer": first.String(),
		"id":    "empty",
		"funds": []map[string]string{},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeReceiptMissingPayment, resp.Error.Code)

	rec, resp = postRPC(t, router, "", "receipt_pay", map[string]interface{}{
		"payer": "not-an-address",
		"id":    "x",
		"funds": []map[string]string{{"denom": "ujuno", "amount": "1"}},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeInvalidParams, resp.Error.Code)

	rec, resp = postRPC(t, router, "", "receipt_updateOutput", map[string]interface{}{
		"caller": second.String(),
		"output": second.String(),
	})
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeOwnershipForbidden, resp.Error.Code)

	rec, resp = postRPC(t, router, "", "receipt_unknown", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestRPCOwnershipFlow(t *testing.T) {
	srv, owner, _ := newTestServer(t, ServerConfig{})
	router := srv.Router()
	successor := testAddr(t, 0x05)

	rec, resp := postRPC(t, router, "", "receipt_updateOwnership", map[string]interface{}{
		"caller":   owner.String(),
		"action":   "transfer",
		"newOwner": successor.String(),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, resp.Error)

	rec, resp = postRPC(t, router, "", "receipt_updateOwnership", map[string]interface{}{
		"caller": successor.String(),
		"action": "accept",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, resp.Error)

	rec, resp = postRPC(t, router, "", "receipt_ownership", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, resp.Error)
	var ownership ownershipJSON
	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &ownership))
	require.Equal(t, successor.String(), ownership.Owner)
	require.Empty(t, ownership.PendingOwner)
}

func TestRPCRateLimitsMutatingMethods(t *testing.T) {
	srv, _, _ := newTestServer(t, ServerConfig{RateLimitPerMinute: 2})
	router := srv.Router()
	payer := testAddr(t, 0x06)

	limited := false
	for i := 0; i < 5; i++ {
		rec, _ := postRPC(t, router, "", "receipt_pay", map[string]interface{}{
			"payer": payer.String(),
			"id":    fmt.Sprintf("invoice-%d", i),
			"funds": []map[string]string{{"denom": "ujuno", "amount": "1"}},
		})
		if rec.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	require.True(t, limited)

	// Queries bypass the limiter entirely.
	for i := 0; i < 5; i++ {
		rec, resp := postRPC(t, router, "", "receipt_output", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Nil(t, resp.Error)
	}
}

func TestRPCHealthz(t *testing.T) {
	srv, _, _ := newTestServer(t, ServerConfig{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
