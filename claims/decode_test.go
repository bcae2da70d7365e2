package claims

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func segment(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return base64.RawURLEncoding.EncodeToString(data)
}

func tokenWith(t *testing.T, payload any) string {
	t.Helper()
	header := segment(t, map[string]string{"alg": "HS256", "typ": "JWT"})
	return header + "." + segment(t, payload) + ".signature"
}

func TestDecodeRoundTrip(t *testing.T) {
	exp := time.Unix(1893456000, 0)
	tok := tokenWith(t, map[string]any{
		"sub":       "42",
		"username":  "alice",
		"email":     "alice@example.com",
		"full_name": "Alice Liddell",
		"role":      "admin",
		"exp":       exp.Unix(),
	})

	ident, err := Decode(tok)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	want := Identity{
		SubjectID:   "42",
		Username:    "alice",
		Email:       "alice@example.com",
		DisplayName: "Alice Liddell",
		Role:        "admin",
		ExpiresAt:   exp,
	}
	if !ident.ExpiresAt.Equal(want.ExpiresAt) {
		t.Fatalf("expected exp %v, got %v", want.ExpiresAt, ident.ExpiresAt)
	}
	ident.ExpiresAt = want.ExpiresAt
	if ident != want {
		t.Fatalf("expected %+v, got %+v", want, ident)
	}
}

func TestDecodeNumericSubjectAndDefaults(t *testing.T) {
	tok := tokenWith(t, map[string]any{"sub": 7, "username": "alice"})

	ident, err := Decode(tok)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if ident.SubjectID != "7" {
		t.Fatalf("expected subject 7, got %q", ident.SubjectID)
	}
	if ident.Role != DefaultRole {
		t.Fatalf("expected default role %q, got %q", DefaultRole, ident.Role)
	}
	if ident.HasExpiry() {
		t.Fatal("expected unknown expiry")
	}
}

func TestDecodeAlternateClaimNames(t *testing.T) {
	tok := tokenWith(t, map[string]any{"id": 9, "name": "Bob"})

	ident, err := Decode(tok)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if ident.SubjectID != "9" || ident.DisplayName != "Bob" {
		t.Fatalf("unexpected identity %+v", ident)
	}
}

func TestDecodeSubPreferredOverID(t *testing.T) {
	tok := tokenWith(t, map[string]any{"sub": "s-1", "id": "i-1", "full_name": "Full", "name": "Short"})

	ident, err := Decode(tok)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if ident.SubjectID != "s-1" || ident.DisplayName != "Full" {
		t.Fatalf("unexpected identity %+v", ident)
	}
}

func TestDecodeAcceptsPaddedAndStdAlphabet(t *testing.T) {
	payload := []byte(`{"sub":"x","username":"a?>b"}`)
	padded := base64.URLEncoding.EncodeToString(payload)
	std := base64.StdEncoding.EncodeToString(payload)

	for name, seg := range map[string]string{"padded": padded, "std": std} {
		t.Run(name, func(t *testing.T) {
			ident, err := Decode("h." + seg + ".s")
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if ident.Username != "a?>b" {
				t.Fatalf("unexpected username %q", ident.Username)
			}
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	validPayload := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"1"}`))

	cases := map[string]string{
		"empty":          "",
		"one segment":    "abc",
		"two segments":   "a." + validPayload,
		"four segments":  "a." + validPayload + ".c.d",
		"bad base64":     "a.!!!not-base64!!!.c",
		"not json":       "a." + base64.RawURLEncoding.EncodeToString([]byte("hello")) + ".c",
		"json array":     "a." + base64.RawURLEncoding.EncodeToString([]byte(`[1,2]`)) + ".c",
		"json string":    "a." + base64.RawURLEncoding.EncodeToString([]byte(`"tok"`)) + ".c",
		"trailing data":  "a." + base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"1"} {}`)) + ".c",
		"empty payload":  "a..c",
		"exp wrong type": "a." + base64.RawURLEncoding.EncodeToString([]byte(`{"exp":"soon"}`)) + ".c",
	}

	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			ident, err := Decode(tok)
			if !errors.Is(err, ErrDecode) {
				t.Fatalf("expected ErrDecode, got %v", err)
			}
			if ident != (Identity{}) {
				t.Fatalf("expected zero identity, got %+v", ident)
			}
		})
	}
}

func TestDecodeWithFallbackUsesSubmittedUsername(t *testing.T) {
	tok := tokenWith(t, map[string]any{"sub": 3})

	ident, err := DecodeWithFallback(tok, "carol")
	if err != nil {
		t.Fatalf("DecodeWithFallback failed: %v", err)
	}
	if ident.Username != "carol" {
		t.Fatalf("expected fallback username, got %q", ident.Username)
	}

	tok = tokenWith(t, map[string]any{"sub": 3, "username": "dave"})
	ident, err = DecodeWithFallback(tok, "carol")
	if err != nil {
		t.Fatalf("DecodeWithFallback failed: %v", err)
	}
	if ident.Username != "dave" {
		t.Fatalf("expected claim username, got %q", ident.Username)
	}
}
