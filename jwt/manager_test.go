package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/authsession/claims"
	gjwt "github.com/golang-jwt/jwt/v5"
)

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

func TestIssueAccessDecodesWithoutVerification(t *testing.T) {
	m, err := NewManager(Config{SigningMethod: MethodHS256, PrivateKey: []byte("0123456789abcdef0123456789abcdef")})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	tok, err := m.IssueAccess(Principal{Subject: 7, Username: "alice", Role: "user"}, time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	ident, err := claims.Decode(tok)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ident.SubjectID != "7" || ident.Username != "alice" || ident.Role != "user" {
		t.Fatalf("unexpected identity %+v", ident)
	}
	if !ident.HasExpiry() {
		t.Fatal("expected exp claim")
	}
}

func TestVerifyRejectsWrongAlgorithm(t *testing.T) {
	pub, _ := newEdKeys(t)
	m, err := NewManager(Config{SigningMethod: MethodEd25519, PublicKey: pub})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	tok := gjwt.NewWithClaims(gjwt.SigningMethodHS256, gjwt.MapClaims{"sub": "1"})
	token, err := tok.SignedString([]byte("secret-secret-secret-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := m.Verify(token); err == nil {
		t.Fatal("expected wrong algorithm to be rejected")
	}
}

func TestVerifyIssuerAudienceAndExpiry(t *testing.T) {
	pub, priv := newEdKeys(t)
	m, err := NewManager(Config{
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Issuer:        "idp",
		Audience:      "shop",
		Leeway:        5 * time.Second,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	access, err := m.IssueAccess(Principal{Subject: "u1"}, time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(access); err != nil {
		t.Fatalf("expected valid token to verify: %v", err)
	}

	cases := map[string]gjwt.MapClaims{
		"wrong issuer":   {"sub": "u1", "iss": "other", "aud": "shop", "exp": time.Now().Add(time.Minute).Unix()},
		"wrong audience": {"sub": "u1", "iss": "idp", "aud": "other", "exp": time.Now().Add(time.Minute).Unix()},
		"expired":        {"sub": "u1", "iss": "idp", "aud": "shop", "exp": time.Now().Add(-time.Hour).Unix()},
	}
	for name, mc := range cases {
		t.Run(name, func(t *testing.T) {
			tok, err := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, mc).SignedString(priv)
			if err != nil {
				t.Fatalf("sign: %v", err)
			}
			if _, err := m.Verify(tok); err == nil {
				t.Fatal("expected verification failure")
			}
		})
	}
}

func TestDecoderWrapsVerificationFailureAsDecodeError(t *testing.T) {
	signer, err := NewManager(Config{SigningMethod: MethodHS256, PrivateKey: []byte("signer-secret-signer-secret-0000")})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	verifier, err := NewManager(Config{SigningMethod: MethodHS256, PrivateKey: []byte("other-secret-other-secret-000000")})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	tok, err := signer.IssueAccess(Principal{Subject: 1, Username: "eve"}, time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := verifier.Decoder()(tok); !errors.Is(err, claims.ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}

	ident, err := signer.Decoder()(tok)
	if err != nil {
		t.Fatalf("expected own token to verify: %v", err)
	}
	if ident.Username != "eve" || ident.SubjectID != "1" {
		t.Fatalf("unexpected identity %+v", ident)
	}
}

func TestVerifyKeySetByKid(t *testing.T) {
	pub, priv := newEdKeys(t)
	issuer, err := NewManager(Config{SigningMethod: MethodEd25519, PrivateKey: priv, PublicKey: pub, KeyID: "k1"})
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	verifier, err := NewManager(Config{SigningMethod: MethodEd25519, VerifyKeys: map[string][]byte{"k1": pub}})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	tok, err := issuer.IssueAccess(Principal{Subject: "s"}, time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := verifier.Verify(tok); err != nil {
		t.Fatalf("expected kid lookup to verify: %v", err)
	}
}

func TestNewManagerRejectsBadConfig(t *testing.T) {
	cases := map[string]Config{
		"hs256 without key":     {SigningMethod: MethodHS256},
		"ed25519 without keys":  {SigningMethod: MethodEd25519},
		"unknown method":        {SigningMethod: "rs256", PrivateKey: []byte("x")},
		"negative leeway":       {SigningMethod: MethodHS256, PrivateKey: []byte("x"), Leeway: -time.Second},
		"kid missing from keys": {SigningMethod: MethodEd25519, VerifyKeys: map[string][]byte{"a": make([]byte, ed25519.PublicKeySize)}, KeyID: "b"},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := NewManager(cfg); err == nil {
				t.Fatal("expected config error")
			}
		})
	}
}
