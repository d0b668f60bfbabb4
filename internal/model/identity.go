// Package model defines the data structures used throughout the application.
package model

import "time"

// Identity is a user account, keyed by email.
//
// An identity created by password registration has a PasswordHash and
// Federated=false. One created by a first federated login has no hash and
// Federated=true. The only mutation after creation is filling in an empty
// Name.
//
// WHY IS THE HASH NEVER SERIALIZED?
// The `json:"-"` tag keeps it out of every response, even if a handler
// accidentally writes the whole struct.
type Identity struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"` // case-sensitive, unique
	PasswordHash string    `json:"-"`     // empty for federated-only accounts
	Name         string    `json:"name"`
	Federated    bool      `json:"federated"`
	CreatedAt    time.Time `json:"createdAt"`
}

// HasPassword reports whether the identity can sign in with a password.
func (i *Identity) HasPassword() bool {
	return i.PasswordHash != ""
}
