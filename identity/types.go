package identity

import (
	"encoding/json"
)

// Token is the credential material returned by login and refresh.
//
// RefreshToken is empty when the provider issued none.
type Token struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// Profile is the signup request body.
type Profile struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Password string `json:"password"`
}

// User is the account the provider reports after signup.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FullName  string `json:"full_name"`
	Role      string `json:"role"`
	IsActive  bool   `json:"is_active"`
	CreatedAt string `json:"created_at"`
}

// SignupResult is the decoded signup response. Raw keeps the provider's
// data object as received, including nested resources User does not model.
type SignupResult struct {
	Message string
	User    User
	Raw     json.RawMessage
}
