package domain

import (
	"time"

	"github.com/google/uuid"
)

// UserID represents a unique user identifier
type UserID struct {
	ID string `json:"id" bson:"id"`
}

// NewUserID creates a new user ID
func NewUserID() UserID {
	return UserID{ID: uuid.New().String()}
}

// UserIDFromString creates a UserID from a string
func UserIDFromString(id string) UserID {
	return UserID{ID: id}
}

// String returns the string representation
func (u UserID) String() string {
	return u.ID
}

// AsUserHandle returns the ID as bytes for WebAuthn
func (u UserID) AsUserHandle() []byte {
	return []byte(u.ID)
}

// User represents an account. An account comes into existence the first
// time any sign-in surface (passkey registration, password registration,
// Google sign-in) sees a new email or Google subject; accounts are never
// deleted by this service.
type User struct {
	UUID         UserID  `json:"uuid" bson:"_id"`
	Email        *string `json:"email,omitempty" bson:"email,omitempty"`
	GoogleSub    *string `json:"google_sub,omitempty" bson:"google_sub,omitempty"`
	PasswordHash *string `json:"-" bson:"password_hash,omitempty"`
	PasswordSalt *string `json:"-" bson:"password_salt,omitempty"`

	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// HasPassword reports whether the user has completed password registration.
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && u.PasswordSalt != nil
}

// EmailOrID returns the email when present, otherwise the user ID string.
// Used for display fields where an email may not exist yet.
func (u *User) EmailOrID() string {
	if u.Email != nil && *u.Email != "" {
		return *u.Email
	}
	return u.UUID.String()
}

// AuthResponse is the common response body for every successful
// authentication surface: a signed session token plus the subject it
// was minted for.
type AuthResponse struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
}
