package model

import (
	"net/mail"
	"strings"
)

// Credentials holds the session token pair. An empty string means absent.
type Credentials struct {
	Access  string
	Refresh string
}

// Authenticated reports whether either token is present.
func (c Credentials) Authenticated() bool {
	return c.Access != "" || c.Refresh != ""
}

// LoginRequest is the body of POST /Account/login/.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenPair is the login response.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// RegisterRequest is the body of POST /Account/register/.
type RegisterRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	Password2   string `json:"password2"`
	PhoneNumber string `json:"phone_number"`
}

// ValidationError carries per-field problems found before a request is sent.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	return "invalid input"
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

// Validate applies the registration form rules.
func (r RegisterRequest) Validate() error {
	var verr ValidationError
	if strings.TrimSpace(r.Username) == "" {
		verr.add("username", "Username is required")
	}
	if _, err := mail.ParseAddress(r.Email); err != nil {
		verr.add("email", "Enter a valid email")
	}
	if len(r.PhoneNumber) < 5 {
		verr.add("phone_number", "Phone is required")
	}
	if len(r.Password) < 6 {
		verr.add("password", "At least 6 characters")
	}
	if len(r.Password2) < 6 {
		verr.add("password2", "Please confirm your password")
	} else if r.Password != r.Password2 {
		verr.add("password2", "Passwords must match")
	}
	if len(verr.Fields) > 0 {
		return &verr
	}
	return nil
}
