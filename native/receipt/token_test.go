package receipt

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	"github.com/NoahSaso/cw-receipt/crypto"
)

func testAddress(fill byte) crypto.Address {
	return crypto.MustNewAddress(crypto.PayPrefix, bytes.Repeat([]byte{fill}, crypto.AddressLength))
}

func TestTokenStorageKeyRoundTrip(t *testing.T) {
	native := MustNativeToken("ujuno")
	contract, err := ContractToken(testAddress(0x11))
	if err != nil {
		t.Fatalf("contract token: %v", err)
	}

	for _, tok := range []Token{native, contract} {
		key := tok.StorageKey()
		decoded, err := TokenFromStorageKey(key)
		if err != nil {
			t.Fatalf("decode %q: %v", key, err)
		}
		if !decoded.Equal(tok) {
			t.Fatalf("round trip mismatch for %q", key)
		}
	}

	if native.StorageKey() != "nujuno" {
		t.Fatalf("unexpected native key %q", native.StorageKey())
	}
	if contract.StorageKey()[0] != 'c' {
		t.Fatalf("unexpected contract tag in %q", contract.StorageKey())
	}
}

func TestTokenStorageKeyRoundTripRandomDenoms(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789/:._-"
	for i := 0; i < 200; i++ {
		n := 3 + rng.Intn(60)
		denom := make([]byte, n)
		denom[0] = alphabet[rng.Intn(52)] // leading letter
		for j := 1; j < n; j++ {
			denom[j] = alphabet[rng.Intn(len(alphabet))]
		}
		tok, err := NativeToken(string(denom))
		if err != nil {
			t.Fatalf("denom %q rejected: %v", denom, err)
		}
		decoded, err := TokenFromStorageKey(tok.StorageKey())
		if err != nil {
			t.Fatalf("decode %q: %v", tok.StorageKey(), err)
		}
		if !decoded.Equal(tok) {
			t.Fatalf("round trip mismatch for %q", denom)
		}
	}
}

func TestTokenFromStorageKeyRejectsUnknownTag(t *testing.T) {
	for _, key := range []string{"xujuno", "", "n", "zabc"} {
		if _, err := TokenFromStorageKey(key); err == nil {
			t.Fatalf("expected failure for %q", key)
		}
	}
	if _, err := TokenFromStorageKey("cnot-bech32"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for malformed contract payload, got %v", err)
	}
}

func TestValidateDenom(t *testing.T) {
	cases := []struct {
		denom string
		ok    bool
	}{
		{"ujuno", true},
		{"ibc/27394FB092D2ECCD56123C74F36E4C1F926001CEADA9CA97EA622B25F41E5EB2", true},
		{"factory:pay1abc:sub", true},
		{"ab", false},
		{"1abc", false},
		{"bad denom", false},
		{"", false},
	}
	for _, tc := range cases {
		_, err := NativeToken(tc.denom)
		if tc.ok && err != nil {
			t.Fatalf("denom %q should be accepted: %v", tc.denom, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("denom %q should be rejected", tc.denom)
		}
	}
}

func TestContractTokenRequiresAddress(t *testing.T) {
	if _, err := ContractToken(crypto.Address{}); err == nil {
		t.Fatal("expected zero contract address to be rejected")
	}
}

func TestTokenString(t *testing.T) {
	addr := testAddress(0x22)
	contract, _ := ContractToken(addr)
	if contract.String() != addr.String() {
		t.Fatalf("contract display = %q, want %q", contract.String(), addr.String())
	}
	if got := MustNativeToken("ujuno").String(); got != "ujuno" {
		t.Fatalf("native display = %q", got)
	}
}
