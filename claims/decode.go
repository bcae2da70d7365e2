package claims

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrDecode is returned for any token whose claims cannot be read. It is
// always recoverable: the provider handed back an unusable token.
var ErrDecode = errors.New("token decode failed")

// DecodeFunc turns an access token into an Identity.
type DecodeFunc func(token string) (Identity, error)

// Decode extracts the identity claims of token without verifying its
// signature. Only the payload segment is consumed.
func Decode(token string) (Identity, error) {
	segments := strings.Split(token, ".")
	if len(segments) != 3 {
		return Identity{}, decodeError(fmt.Sprintf("expected 3 segments, got %d", len(segments)), jwt.ErrTokenMalformed)
	}

	payload, err := decodeSegment(segments[1])
	if err != nil {
		return Identity{}, decodeError("payload is not base64url", err)
	}

	mc, err := parsePayload(payload)
	if err != nil {
		return Identity{}, decodeError("payload is not a claims object", err)
	}

	return FromMapClaims(mc)
}

// DecodeWithFallback decodes token and fills Username from username when the
// token has no username claim. Login uses it so the submitted name survives
// providers that omit the claim.
func DecodeWithFallback(token, username string) (Identity, error) {
	ident, err := Decode(token)
	if err != nil {
		return Identity{}, err
	}
	if ident.Username == "" {
		ident.Username = username
	}
	return ident, nil
}

// FromMapClaims maps provider claim names onto an Identity.
func FromMapClaims(mc jwt.MapClaims) (Identity, error) {
	ident := Identity{
		SubjectID:   firstString(mc, "sub", "id"),
		Username:    firstString(mc, "username"),
		Email:       firstString(mc, "email"),
		DisplayName: firstString(mc, "full_name", "name"),
		Role:        firstString(mc, "role"),
	}
	if ident.Role == "" {
		ident.Role = DefaultRole
	}

	exp, err := mc.GetExpirationTime()
	if err != nil {
		return Identity{}, decodeError("exp claim", err)
	}
	if exp != nil {
		ident.ExpiresAt = exp.Time
	}

	return ident, nil
}

func decodeSegment(seg string) ([]byte, error) {
	seg = strings.TrimRight(seg, "=")
	if strings.ContainsAny(seg, "+/") {
		seg = strings.NewReplacer("+", "-", "/", "_").Replace(seg)
	}
	return base64.RawURLEncoding.DecodeString(seg)
}

func parsePayload(payload []byte) (jwt.MapClaims, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after claims object")
	}

	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("payload is %T, not an object", raw)
	}
	return jwt.MapClaims(m), nil
}

func firstString(mc jwt.MapClaims, names ...string) string {
	for _, name := range names {
		switch v := mc[name].(type) {
		case string:
			if v != "" {
				return v
			}
		case json.Number:
			return v.String()
		case float64:
			return jsonNumber(v)
		}
	}
	return ""
}

func jsonNumber(f float64) string {
	b, err := json.Marshal(f)
	if err != nil {
		return ""
	}
	return string(b)
}

func decodeError(reason string, cause error) error {
	return fmt.Errorf("%w: %s: %w", ErrDecode, reason, cause)
}
