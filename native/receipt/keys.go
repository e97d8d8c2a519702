package receipt

import (
	"encoding/binary"
	"fmt"

	"github.com/NoahSaso/cw-receipt/crypto"
)

// Relation prefixes for the six indexed relations. Variable-length scope
// components are length-prefixed so one scope's range scan can never bleed
// into a neighbouring scope ("a" vs "ab").
var (
	outputKey          = []byte("receipt/output")
	paymentPrefix      = []byte("receipt/payment/")
	countPrefix        = []byte("receipt/count/")
	receiptTotalPrefix = []byte("receipt/total/")
	payerReceiptPrefix = []byte("receipt/payer/")
	payerTotalPrefix   = []byte("receipt/payer-total/")
)

const maxReceiptIDLength = 1 << 16

func appendScope(prefix []byte, scope []byte) []byte {
	buf := make([]byte, 0, len(prefix)+2+len(scope))
	buf = append(buf, prefix...)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(scope)))
	return append(buf, scope...)
}

func seqSuffix(seq uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	return buf[:]
}

func countKey(id string) []byte {
	return append(append([]byte(nil), countPrefix...), id...)
}

func paymentScope(id string) []byte {
	return appendScope(paymentPrefix, []byte(id))
}

func paymentKey(id string, seq uint64) []byte {
	return append(paymentScope(id), seqSuffix(seq)...)
}

func receiptTotalScope(id string) []byte {
	return appendScope(receiptTotalPrefix, []byte(id))
}

func receiptTotalKey(id string, token Token) []byte {
	return append(receiptTotalScope(id), token.StorageKey()...)
}

// Payer scopes carry a fixed-width 20-byte address, so no length prefix is
// required.
func payerReceiptScope(payer crypto.Address) []byte {
	return append(append([]byte(nil), payerReceiptPrefix...), payer.Bytes()...)
}

func payerReceiptKey(payer crypto.Address, id string) []byte {
	return append(payerReceiptScope(payer), id...)
}

func payerTotalScope(payer crypto.Address) []byte {
	return append(append([]byte(nil), payerTotalPrefix...), payer.Bytes()...)
}

func payerTotalKey(payer crypto.Address, token Token) []byte {
	return append(payerTotalScope(payer), token.StorageKey()...)
}

func errMalformedKey(relation string) error {
	return fmt.Errorf("receipt: malformed %s key", relation)
}

// splitPaymentSuffix decodes a payment key suffix back into (id, seq).
func splitPaymentSuffix(suffix []byte) (string, uint64, error) {
	if len(suffix) < 2 {
		return "", 0, fmt.Errorf("receipt: malformed payment key")
	}
	idLen := int(binary.BigEndian.Uint16(suffix))
	if len(suffix) != 2+idLen+8 {
		return "", 0, fmt.Errorf("receipt: malformed payment key")
	}
	id := string(suffix[2 : 2+idLen])
	seq := binary.BigEndian.Uint64(suffix[2+idLen:])
	return id, seq, nil
}
