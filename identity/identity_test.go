package identity

import (
	"crypto/ed25519"
	"testing"
)

func TestAddressTextRoundTrip(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	addr := FromPublicKey(pub)
	if addr.IsAnonymous() {
		t.Fatal("derived address must not be anonymous")
	}

	parsed, err := FromText(addr.Text())
	if err != nil {
		t.Fatalf("parse text form: %v", err)
	}
	if parsed != addr {
		t.Errorf("Expected %s after round trip, got %s", addr, parsed)
	}
}

func TestFromBytesRejectsWrongLength(t *testing.T) {
	cases := []struct {
		name string
		in   []byte
	}{
		{"empty", nil},
		{"short", make([]byte, 31)},
		{"long", make([]byte, 33)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := FromBytes(tc.in); err == nil {
				t.Errorf("Expected error for %d bytes", len(tc.in))
			}
		})
	}
}

func TestAnonymousIsZero(t *testing.T) {
	var zero Address
	if !zero.IsAnonymous() {
		t.Error("zero address must be anonymous")
	}
	if !Anonymous.IsAnonymous() {
		t.Error("Anonymous must report IsAnonymous")
	}
}

func TestDeriveDeterministicAndTagged(t *testing.T) {
	a := Derive("msig", []byte("alice"), []byte{1})
	b := Derive("msig", []byte("alice"), []byte{1})
	if a != b {
		t.Error("same inputs must derive the same address")
	}

	// Length prefixing keeps shifted part boundaries apart.
	c := Derive("msig", []byte("alicex"), []byte{})
	if a == c {
		t.Error("different part boundaries must derive different addresses")
	}

	d := Derive("other", []byte("alice"), []byte{1})
	if a == d {
		t.Error("different tags must derive different addresses")
	}
}

func TestUnmarshalTextRejectsGarbage(t *testing.T) {
	var a Address
	if err := a.UnmarshalText([]byte("not-base58-0OIl")); err == nil {
		t.Error("Expected error for invalid base58")
	}
	if err := a.UnmarshalText([]byte("abc")); err == nil {
		t.Error("Expected error for short payload")
	}
}
