package identity

import (
	"bytes"
	"encoding/json"
	"strings"
	"unicode"
)

// parseToken accepts a JSON token object, a JSON string, or a bare token.
func parseToken(op string, status int, body []byte) (*Token, error) {
	body = bytes.TrimSpace(body)

	var tok Token
	switch {
	case len(body) == 0:
	case body[0] == '{':
		if err := json.Unmarshal(body, &tok); err != nil {
			return nil, &ProviderError{Op: op, StatusCode: status, Detail: "malformed token response"}
		}
	case body[0] == '"':
		if err := json.Unmarshal(body, &tok.AccessToken); err != nil {
			return nil, &ProviderError{Op: op, StatusCode: status, Detail: "malformed token response"}
		}
	default:
		tok.AccessToken = string(body)
	}

	tok.AccessToken = strings.TrimSpace(tok.AccessToken)
	if tok.AccessToken == "" || strings.IndexFunc(tok.AccessToken, unicode.IsSpace) >= 0 {
		return nil, &ProviderError{Op: op, StatusCode: status, Detail: "no usable access token in response"}
	}
	if tok.TokenType == "" {
		tok.TokenType = "bearer"
	}
	return &tok, nil
}

func parseSignup(status int, body []byte) (*SignupResult, error) {
	var envelope struct {
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &ProviderError{Op: "signup", StatusCode: status, Detail: "malformed signup response"}
	}

	res := &SignupResult{Message: envelope.Message}
	if len(envelope.Data) > 0 && !bytes.Equal(envelope.Data, []byte("null")) {
		if err := json.Unmarshal(envelope.Data, &res.User); err != nil {
			return nil, &ProviderError{Op: "signup", StatusCode: status, Detail: "malformed signup user"}
		}
		res.Raw = envelope.Data
	}
	return res, nil
}

// parseDetail reads {"detail": "..."} or {"detail": [{"msg": "..."}]}.
func parseDetail(body []byte) string {
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Detail) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(envelope.Detail, &s); err == nil {
		return s
	}

	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(envelope.Detail, &items); err == nil && len(items) > 0 {
		return items[0].Msg
	}
	return ""
}

func detailOr(body []byte, fallback string) string {
	if d := parseDetail(body); d != "" {
		return d
	}
	return fallback
}
