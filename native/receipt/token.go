package receipt

import (
	"fmt"

	"github.com/NoahSaso/cw-receipt/crypto"
)

// TokenKind distinguishes the chain's native currency from contract-issued
// tokens.
type TokenKind uint8

const (
	TokenNative TokenKind = iota
	TokenContract
)

// Storage key tag characters, one per token kind. The tag is the first byte of
// the encoded form, so encoded tokens sort by kind first and payload second.
const (
	tokenTagNative   = 'n'
	tokenTagContract = 'c'
)

const (
	minDenomLength = 3
	maxDenomLength = 128
)

// Token identifies the asset a payment was made in. It is a tagged value: a
// native denomination string or the address of the issuing token contract.
// Tokens double as composite-key fragments inside the ledger's ordered
// indexes, via StorageKey.
type Token struct {
	kind     TokenKind
	denom    string
	contract crypto.Address
}

// NativeToken builds a Token for a native denomination after validating it.
func NativeToken(denom string) (Token, error) {
	if err := validateDenom(denom); err != nil {
		return Token{}, err
	}
	return Token{kind: TokenNative, denom: denom}, nil
}

// ContractToken builds a Token for a contract-issued asset.
func ContractToken(addr crypto.Address) (Token, error) {
	if addr.IsZero() {
		return Token{}, fmt.Errorf("%w: zero contract address", ErrInvalidToken)
	}
	return Token{kind: TokenContract, contract: addr}, nil
}

// MustNativeToken is a test helper that panics on an invalid denom.
func MustNativeToken(denom string) Token {
	t, err := NativeToken(denom)
	if err != nil {
		panic(err)
	}
	return t
}

func (t Token) Kind() TokenKind { return t.kind }

// Denom returns the native denomination. Empty for contract tokens.
func (t Token) Denom() string { return t.denom }

// Contract returns the issuing contract address. Zero for native tokens.
func (t Token) Contract() crypto.Address { return t.contract }

// String renders the token for display: the denom for native tokens, the
// bech32 contract address otherwise.
func (t Token) String() string {
	if t.kind == TokenContract {
		return t.contract.String()
	}
	return t.denom
}

// StorageKey encodes the token as a single order-stable string usable as a
// composite-key component. The first byte is the kind tag, the remainder the
// payload; no native denom and no contract address can collide once tagged.
func (t Token) StorageKey() string {
	if t.kind == TokenContract {
		return string(tokenTagContract) + t.contract.String()
	}
	return string(tokenTagNative) + t.denom
}

// Equal compares tokens by kind and payload.
func (t Token) Equal(other Token) bool {
	if t.kind != other.kind {
		return false
	}
	if t.kind == TokenContract {
		return t.contract.Equal(other.contract)
	}
	return t.denom == other.denom
}

// TokenFromStorageKey reverses StorageKey. It fails on an unknown tag or a
// malformed payload; listing callers treat a failure as "omit this entry"
// since it can only arise from data the codec never wrote.
func TokenFromStorageKey(s string) (Token, error) {
	if len(s) < 2 {
		return Token{}, fmt.Errorf("%w: storage key too short", ErrInvalidToken)
	}
	payload := s[1:]
	switch s[0] {
	case tokenTagNative:
		return NativeToken(payload)
	case tokenTagContract:
		addr, err := crypto.DecodeAddress(payload)
		if err != nil {
			return Token{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		return ContractToken(addr)
	default:
		return Token{}, fmt.Errorf("%w: unknown tag %q", ErrInvalidToken, s[0])
	}
}

// validateDenom enforces the denom shape accepted at the wire boundary: 3-128
// characters, leading letter, then letters, digits or one of "/:._-".
func validateDenom(denom string) error {
	if len(denom) < minDenomLength || len(denom) > maxDenomLength {
		return fmt.Errorf("%w: length must be between %d and %d", ErrInvalidDenom, minDenomLength, maxDenomLength)
	}
	if !isLetter(denom[0]) {
		return fmt.Errorf("%w: must start with a letter", ErrInvalidDenom)
	}
	for i := 1; i < len(denom); i++ {
		c := denom[i]
		if isLetter(c) || (c >= '0' && c <= '9') {
			continue
		}
		switch c {
		case '/', ':', '.', '_', '-':
		default:
			return fmt.Errorf("%w: illegal character %q", ErrInvalidDenom, c)
		}
	}
	return nil
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
