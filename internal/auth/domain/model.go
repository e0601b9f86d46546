package domain

import (
	"errors"
	"time"
)

// User is created on registration and never mutated afterwards.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	CodeInvalidCredentials = "invalid_credentials"
	CodeEmailTaken         = "email_taken"
	CodeInvalidInput       = "invalid_input"
)

// AuthError is a recoverable authentication failure shown on the auth form.
type AuthError struct {
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	return "auth: " + e.Message
}

// IsAuthError reports whether err is, or wraps, an *AuthError.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

var ErrNoSession = errors.New("no active session")

func InvalidCredentials() *AuthError {
	return &AuthError{Code: CodeInvalidCredentials, Message: "invalid email or password"}
}

func EmailTaken(email string) *AuthError {
	return &AuthError{Code: CodeEmailTaken, Message: "email already registered: " + email}
}

func InvalidInput(msg string) *AuthError {
	return &AuthError{Code: CodeInvalidInput, Message: msg}
}
